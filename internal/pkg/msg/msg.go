package msg

import "time"

// Msg is a payload received from the message bus.
type Msg struct {
	topic    string
	payload  []byte
	received time.Time
}

// New is the Msg factory function
func New(topic string, payload []byte) Msg {
	return Msg{topic, append([]byte(nil), payload...), time.Now()}
}

// Topic returns the topic the message arrived on
func (m Msg) Topic() string {
	return m.topic
}

// Payload returns the message data
func (m Msg) Payload() []byte {
	return m.payload
}

// Received returns the local arrival time
func (m Msg) Received() time.Time {
	return m.received
}
