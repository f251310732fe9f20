// Package mqtt provides MQTT client connectivity for the Arylic gateway.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) on <prefix>/bridge/status
//
// # Architecture
//
// Speaker state flows out to the broker and commands flow back in:
//
//	Speakers ↔ arylic.Controller ↔ arylic.Bridge ↔ mqtt.Client ↔ Broker ↔ Home Assistant
//
// The arylic bridge depends on a narrow interface; cmd/arylicgw adapts
// *Client to it.
//
// # Security Considerations
//
//   - Enable TLS (cfg.Broker.TLS=true) when the broker is not on localhost
//   - Credentials are validated against broker ACL
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe(client.Topics().AllCommands(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("command: %s = %s", topic, payload)
//	        return nil
//	    })
package mqtt
