package bridge

import (
	"testing"

	"github.com/felixgeelhaar/moosbridge/pkg/moos"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeMessage(t *testing.T) {
	tests := []struct {
		name string
		msg  moos.Message
		want Envelope
		ok   bool
	}{
		{
			name: "numeric",
			msg:  moos.NewDoubleMessage("NAV_DEPTH", 12.5),
			want: Envelope{Name: "NAV_DEPTH", Kind: KindNumeric, Numeric: 12.5},
			ok:   true,
		},
		{
			name: "text",
			msg:  moos.NewStringMessage("MODE", "SURVEY"),
			want: Envelope{Name: "MODE", Kind: KindText, Text: "SURVEY"},
			ok:   true,
		},
		{
			name: "binary is not translated",
			msg:  moos.NewBinaryMessage("IMG", []byte{1, 2}),
			ok:   false,
		},
		{
			name: "numeric ignores stray text field",
			msg:  moos.Message{Key: "X", Type: moos.DataTypeDouble, Double: 2, String: "ignored"},
			want: Envelope{Name: "X", Kind: KindNumeric, Numeric: 2},
			ok:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := EncodeMessage(tt.msg)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTranslateMail_AllRecognized(t *testing.T) {
	mail := moos.MailList{
		moos.NewDoubleMessage("A", 1),
		moos.NewStringMessage("B", "two"),
		moos.NewDoubleMessage("C", 3),
		moos.NewStringMessage("D", ""),
	}

	batch := TranslateMail(&mail)

	require.Len(t, batch, 4)
	assert.Equal(t, []Envelope{
		NumericEnvelope("A", 1),
		TextEnvelope("B", "two"),
		NumericEnvelope("C", 3),
		TextEnvelope("D", ""),
	}, batch)
	assert.Equal(t, 0, mail.Len())
}

func TestTranslateMail_Mixed(t *testing.T) {
	mail := moos.MailList{
		moos.NewBinaryMessage("B1", nil),
		moos.NewDoubleMessage("A", 1),
		moos.NewBinaryMessage("B2", nil),
		moos.NewStringMessage("C", "c"),
		moos.NewBinaryMessage("B3", nil),
	}

	batch := TranslateMail(&mail)

	assert.Len(t, batch, 2)
	assert.Less(t, len(batch), 5)
	assert.Equal(t, "A", batch[0].Name)
	assert.Equal(t, "C", batch[1].Name)
	assert.Equal(t, []string{"B1", "B2", "B3"}, mail.Keys())
}

func TestTranslateMail_Empty(t *testing.T) {
	var mail moos.MailList
	assert.Nil(t, TranslateMail(&mail))
	assert.Nil(t, TranslateMail(nil))
}

func TestTranslateMail_OnlyUnrecognized(t *testing.T) {
	mail := moos.MailList{moos.NewBinaryMessage("IMG", []byte{9})}

	batch := TranslateMail(&mail)

	assert.Empty(t, batch)
	require.Equal(t, 1, mail.Len())
	assert.Equal(t, []byte{9}, mail[0].Binary)
}

func TestKind(t *testing.T) {
	assert.True(t, KindNumeric.IsValid())
	assert.True(t, KindText.IsValid())
	assert.False(t, Kind("binary").IsValid())
	assert.Equal(t, "text", KindText.String())
	assert.True(t, NumericEnvelope("x", 1).IsNumeric())
	assert.True(t, TextEnvelope("x", "y").IsText())
}
