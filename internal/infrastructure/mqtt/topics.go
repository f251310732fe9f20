package mqtt

import "fmt"

// DefaultTopicPrefix is the topic root when the configuration leaves it empty.
const DefaultTopicPrefix = "arylic"

// Topics provides builders for the gateway's own MQTT topics. Speaker state
// and command topics are built by the arylic bridge; this type covers the
// connection-level topics the client publishes itself and the wildcard
// patterns used by tooling.
//
//	topics := mqtt.Topics{Prefix: "arylic"}
//	topics.BridgeStatus() // "arylic/bridge/status"
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

// BridgeStatus returns the retained online/offline topic. It also carries
// the Last Will.
//
// Example: arylic/bridge/status
func (t Topics) BridgeStatus() string {
	return fmt.Sprintf("%s/bridge/status", t.prefix())
}

// AllStates matches every speaker state topic.
//
// Pattern: arylic/state/+/+
func (t Topics) AllStates() string {
	return fmt.Sprintf("%s/state/+/+", t.prefix())
}

// AllCommands matches every speaker command topic.
//
// Pattern: arylic/cmd/+/+
func (t Topics) AllCommands() string {
	return fmt.Sprintf("%s/cmd/+/+", t.prefix())
}

// AllTopics matches everything under the prefix.
//
// Pattern: arylic/#
func (t Topics) AllTopics() string {
	return t.prefix() + "/#"
}
