// Package mqtt provides MQTT client connectivity for the eTRV bridge.
//
// MQTT is the host boundary: display values leave the bridge as retained
// state messages and user commands arrive on command topics.
//
//	etrv-bridge ↔ MQTT Broker ↔ home automation host
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing with QoS and retention
//   - Subscriptions with wildcard support, restored after reconnect
//   - Last Will and Testament for offline detection
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, &mqtt.Will{Topic: mqtt.Topics{}.Health(), Payload: lwt})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllCommands("1541"), 1,
//	    func(topic string, payload []byte) error {
//	        return handleCommand(topic, payload)
//	    })
package mqtt
