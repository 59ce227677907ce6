package mqtt

import "strings"

// DefaultTopicPrefix is used when mqtt.topic_prefix is empty.
const DefaultTopicPrefix = "hifilink"

// Topics builds hifilink MQTT topics under a configurable prefix.
//
//	topics := mqtt.NewTopics("hifilink")
//	topics.Command("deck")  // hifilink/command/deck
//	topics.Ack("deck")      // hifilink/ack/deck
type Topics struct {
	Prefix string
}

// NewTopics returns a topic builder for prefix, trimming any trailing slash.
func NewTopics(prefix string) Topics {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{Prefix: prefix}
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

// Command returns the topic producers publish device commands to.
//
// Example: hifilink/command/deck
func (t Topics) Command(device string) string {
	return t.prefix() + "/command/" + device
}

// AllCommands matches every device command topic.
//
// Pattern: hifilink/command/+
func (t Topics) AllCommands() string {
	return t.prefix() + "/command/+"
}

// Ack returns the topic command acknowledgements are published on.
//
// Example: hifilink/ack/deck
func (t Topics) Ack(device string) string {
	return t.prefix() + "/ack/" + device
}

// State returns the topic transmission events for a device are published on.
//
// Example: hifilink/state/deck
func (t Topics) State(device string) string {
	return t.prefix() + "/state/" + device
}

// Health returns the periodic service health topic.
//
// Example: hifilink/health
func (t Topics) Health() string {
	return t.prefix() + "/health"
}

// SystemStatus returns the retained online/offline topic, also used for the LWT.
//
// Example: hifilink/system/status
func (t Topics) SystemStatus() string {
	return t.prefix() + "/system/status"
}

// DeviceFromTopic extracts the trailing device segment of a command topic.
// It returns false when topic is not a command topic under this prefix.
func (t Topics) DeviceFromTopic(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, t.prefix()+"/command/")
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	return rest, true
}
