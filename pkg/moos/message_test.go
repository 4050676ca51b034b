package moos

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessageKinds(t *testing.T) {
	assert.True(t, NewDoubleMessage("DEPTH", 12.5).IsDouble())
	assert.True(t, NewStringMessage("MODE", "SURVEY").IsString())
	assert.True(t, NewBinaryMessage("IMG", []byte{1}).IsBinary())
	assert.False(t, NewBinaryMessage("IMG", []byte{1}).IsDouble())
}

func TestMailList_RemoveFunc(t *testing.T) {
	mail := MailList{
		NewDoubleMessage("A", 1),
		NewBinaryMessage("B", nil),
		NewStringMessage("C", "x"),
		NewBinaryMessage("D", nil),
	}

	removed := mail.RemoveFunc(func(m Message) bool { return !m.IsBinary() })

	assert.Equal(t, []string{"A", "C"}, (&MailList{removed[0], removed[1]}).Keys())
	assert.Equal(t, []string{"B", "D"}, mail.Keys())
	assert.Equal(t, 2, mail.Len())
}

func TestMailList_NilSafe(t *testing.T) {
	var mail *MailList
	assert.Equal(t, 0, mail.Len())
	assert.Nil(t, mail.Keys())
	assert.Nil(t, mail.RemoveFunc(func(Message) bool { return true }))
}

func TestMailList_Push(t *testing.T) {
	var mail MailList
	mail.Push(NewDoubleMessage("A", 1), NewDoubleMessage("B", 2))
	assert.Equal(t, []string{"A", "B"}, mail.Keys())
}
