// Package moos defines the contract between the bridge and the underlying
// application framework: the message model delivered by the community, the
// base application behaviors the bridge delegates to, and the lifecycle hooks
// the framework's loop drives.
package moos

import (
	"time"
)

// DataType identifies the payload carried by a Message.
type DataType string

const (
	DataTypeDouble DataType = "double"
	DataTypeString DataType = "string"
	DataTypeBinary DataType = "binary"
)

// String returns the string representation of the data type.
func (t DataType) String() string {
	return string(t)
}

// Message is one entry of the framework's inbound mail.
type Message struct {
	// Key is the variable name.
	Key string `json:"key"`

	// Type selects which payload field is meaningful.
	Type DataType `json:"type"`

	Double float64 `json:"double,omitempty"`
	String string  `json:"string,omitempty"`
	Binary []byte  `json:"binary,omitempty"`

	// Source is the name of the publishing process.
	Source string `json:"source,omitempty"`

	// Time is when the value was published.
	Time time.Time `json:"time"`
}

// NewDoubleMessage creates a numeric message.
func NewDoubleMessage(key string, value float64) Message {
	return Message{Key: key, Type: DataTypeDouble, Double: value, Time: time.Now()}
}

// NewStringMessage creates a textual message.
func NewStringMessage(key, value string) Message {
	return Message{Key: key, Type: DataTypeString, String: value, Time: time.Now()}
}

// NewBinaryMessage creates a binary message.
func NewBinaryMessage(key string, value []byte) Message {
	return Message{Key: key, Type: DataTypeBinary, Binary: value, Time: time.Now()}
}

// IsDouble reports whether the message carries a numeric payload.
func (m Message) IsDouble() bool {
	return m.Type == DataTypeDouble
}

// IsString reports whether the message carries a textual payload.
func (m Message) IsString() bool {
	return m.Type == DataTypeString
}

// IsBinary reports whether the message carries a binary payload.
func (m Message) IsBinary() bool {
	return m.Type == DataTypeBinary
}

// MailList is the framework's mutable inbound queue. Hooks receive a pointer
// and may remove the entries they consume.
type MailList []Message

// Len returns the number of queued messages.
func (l *MailList) Len() int {
	if l == nil {
		return 0
	}
	return len(*l)
}

// Push appends messages to the queue.
func (l *MailList) Push(msgs ...Message) {
	*l = append(*l, msgs...)
}

// Keys returns the message keys in queue order.
func (l *MailList) Keys() []string {
	if l == nil {
		return nil
	}
	keys := make([]string, 0, len(*l))
	for _, msg := range *l {
		keys = append(keys, msg.Key)
	}
	return keys
}

// RemoveFunc removes, in place, every message for which drop returns true
// and keeps the relative order of the rest. It returns the removed messages
// in their original order.
func (l *MailList) RemoveFunc(drop func(Message) bool) []Message {
	if l == nil {
		return nil
	}
	var removed []Message
	kept := (*l)[:0]
	for _, msg := range *l {
		if drop(msg) {
			removed = append(removed, msg)
			continue
		}
		kept = append(kept, msg)
	}
	// Clear the tail so dropped payloads are not retained by the backing array.
	for i := len(kept); i < len(*l); i++ {
		(*l)[i] = Message{}
	}
	*l = kept
	return removed
}
