package bridge

import (
	"github.com/felixgeelhaar/moosbridge/pkg/moos"
)

// Kind tags which value field of an Envelope is meaningful.
type Kind string

const (
	KindNumeric Kind = "numeric"
	KindText    Kind = "text"
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	return string(k)
}

// IsValid checks if the kind is one of the known tags.
func (k Kind) IsValid() bool {
	switch k {
	case KindNumeric, KindText:
		return true
	default:
		return false
	}
}

// Envelope is one translated message.
//
// Exactly one value field is meaningful per Kind; the other holds its zero
// value. Name and Text are immutable Go strings owned by the Envelope, so a
// receiver may keep them after its callback returns and never has to release
// them.
type Envelope struct {
	Name    string  `json:"name"`
	Kind    Kind    `json:"kind"`
	Numeric float64 `json:"numeric"`
	Text    string  `json:"text,omitempty"`
}

// NumericEnvelope creates a numeric envelope.
func NumericEnvelope(name string, value float64) Envelope {
	return Envelope{Name: name, Kind: KindNumeric, Numeric: value}
}

// TextEnvelope creates a textual envelope.
func TextEnvelope(name, value string) Envelope {
	return Envelope{Name: name, Kind: KindText, Text: value}
}

// IsNumeric reports whether the envelope carries a number.
func (e Envelope) IsNumeric() bool {
	return e.Kind == KindNumeric
}

// IsText reports whether the envelope carries text.
func (e Envelope) IsText() bool {
	return e.Kind == KindText
}

// EncodeMessage converts one framework message into an Envelope. Numeric
// classification is checked before textual; any other payload kind yields
// false and the message must be left where it is.
func EncodeMessage(msg moos.Message) (Envelope, bool) {
	switch {
	case msg.IsDouble():
		return NumericEnvelope(msg.Key, msg.Double), true
	case msg.IsString():
		return TextEnvelope(msg.Key, msg.String), true
	default:
		return Envelope{}, false
	}
}
