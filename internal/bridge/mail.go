package bridge

import (
	"github.com/felixgeelhaar/moosbridge/pkg/moos"
)

// TranslateMail drains every numeric and textual message from mail and
// returns them as envelopes in queue order. Messages of any other kind stay
// in mail, in their original relative order.
//
// The returned slice has exactly one element per translated message and is
// nil when nothing was translated.
func TranslateMail(mail *moos.MailList) []Envelope {
	if mail.Len() == 0 {
		return nil
	}

	var batch []Envelope
	mail.RemoveFunc(func(msg moos.Message) bool {
		env, ok := EncodeMessage(msg)
		if !ok {
			return false
		}
		batch = append(batch, env)
		return true
	})

	return batch
}
