package etrv

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"
)

// Response is the raw outcome of one appliance request.
type Response struct {
	Status int
	Body   []byte
}

// Conn is an open connection carrying a single request.
type Conn interface {
	Get(ctx context.Context, path string) (Response, error)
	Close() error
}

// Transport opens connections to the appliance.
type Transport interface {
	Connect(ctx context.Context) (Conn, error)
}

// maxResponseBytes bounds the appliance body; a full state.cgi answer for one
// device is a few kilobytes.
const maxResponseBytes = 1 << 20

// HTTPTransport talks plain HTTP/1.1 to the appliance, one TCP connection per
// request. Connect and Get are separate steps so the controller can observe
// the Connecting state.
type HTTPTransport struct {
	Address   string
	Port      int
	UserAgent string

	dialer net.Dialer
}

// NewHTTPTransport creates a transport for address:port.
func NewHTTPTransport(address string, port int, userAgent string) *HTTPTransport {
	if port == 0 {
		port = 80
	}
	return &HTTPTransport{Address: address, Port: port, UserAgent: userAgent}
}

func (t *HTTPTransport) hostPort() string {
	return net.JoinHostPort(t.Address, strconv.Itoa(t.Port))
}

// Connect dials the appliance.
func (t *HTTPTransport) Connect(ctx context.Context) (Conn, error) {
	nc, err := t.dialer.DialContext(ctx, "tcp", t.hostPort())
	if err != nil {
		return nil, err
	}
	return &httpConn{conn: nc, host: t.hostPort(), userAgent: t.UserAgent}, nil
}

type httpConn struct {
	conn      net.Conn
	host      string
	userAgent string
}

// Get sends a GET for path and reads the complete response.
func (c *httpConn) Get(ctx context.Context, path string) (Response, error) {
	if deadline, ok := ctx.Deadline(); ok {
		if err := c.conn.SetDeadline(deadline); err != nil {
			return Response{}, err
		}
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetDeadline(time.Now())
	})
	defer stop()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+c.host+path, nil)
	if err != nil {
		return Response{}, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("Accept", "Content-Type: text/html; charset=UTF-8")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Close = true

	if err := req.Write(c.conn); err != nil {
		return Response{}, fmt.Errorf("sending request: %w", err)
	}

	resp, err := http.ReadResponse(bufio.NewReader(c.conn), req)
	if err != nil {
		return Response{}, fmt.Errorf("reading response: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Response{}, fmt.Errorf("reading body: %w", err)
	}

	return Response{Status: resp.StatusCode, Body: body}, nil
}

func (c *httpConn) Close() error {
	return c.conn.Close()
}
