package etrv

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func splitHostPort(t *testing.T, rawURL string) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(rawURL[len("http://"):])
	if err != nil {
		t.Fatalf("SplitHostPort(%q) error: %v", rawURL, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("port %q: %v", portStr, err)
	}
	return host, port
}

func TestHTTPTransportGet(t *testing.T) {
	var gotPath, gotQuery, gotUA, gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotUA = r.Header.Get("User-Agent")
		gotContentType = r.Header.Get("Content-Type")
		w.Header().Set("Content-Type", "text/xml; charset=ISO-8859-1")
		_, _ = w.Write(statePayload(fullDatapoints))
	}))
	defer srv.Close()

	host, port := splitHostPort(t, srv.URL)
	tr := NewHTTPTransport(host, port, "etrv-bridge/test")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := tr.Connect(ctx)
	if err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	defer conn.Close()

	resp, err := conn.Get(ctx, "/addons/xmlapi/state.cgi?device_id=1541")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}

	if resp.Status != http.StatusOK {
		t.Errorf("Status = %d, want 200", resp.Status)
	}
	if gotPath != "/addons/xmlapi/state.cgi" || gotQuery != "device_id=1541" {
		t.Errorf("request = %s?%s", gotPath, gotQuery)
	}
	if gotUA != "etrv-bridge/test" {
		t.Errorf("User-Agent = %q", gotUA)
	}
	if gotContentType != "text/xml; charset=utf-8" {
		t.Errorf("Content-Type = %q", gotContentType)
	}

	if _, err := Decode(resp.Status, resp.Body, testRegistry(t)); err != nil {
		t.Errorf("Decode() of transported body error: %v", err)
	}
}

func TestHTTPTransportStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	host, port := splitHostPort(t, srv.URL)
	tr := NewHTTPTransport(host, port, "")

	ctx := context.Background()
	conn, err := tr.Connect(ctx)
	if err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	defer conn.Close()

	resp, err := conn.Get(ctx, "/addons/xmlapi/statechange.cgi?ise_id=1584&new_value=20")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if resp.Status != http.StatusUnauthorized {
		t.Errorf("Status = %d, want 401", resp.Status)
	}
}

func TestHTTPTransportConnectRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error: %v", err)
	}
	addr := ln.Addr().(*net.TCPAddr)
	ln.Close()

	tr := NewHTTPTransport("127.0.0.1", addr.Port, "")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := tr.Connect(ctx); err == nil {
		t.Error("Connect() to closed port should fail")
	}
}

func TestHTTPTransportGetTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	host, port := splitHostPort(t, srv.URL)
	tr := NewHTTPTransport(host, port, "")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	conn, err := tr.Connect(ctx)
	if err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Get(ctx, "/addons/xmlapi/state.cgi?device_id=1541"); err == nil {
		t.Error("Get() should fail once the context deadline passes")
	}
}
