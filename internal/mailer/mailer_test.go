package mailer

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMessage_Multipart(t *testing.T) {
	msg, err := buildMessage("shop@example.com", "mod@example.com", "Credentials", "login: mod", "<b>login:</b> mod")
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = msg.WriteTo(&buf)
	require.NoError(t, err)

	raw := buf.String()
	assert.Contains(t, raw, "Subject: Credentials")
	assert.Contains(t, raw, "multipart/alternative")
	assert.Contains(t, raw, "text/plain")
	assert.Contains(t, raw, "text/html")
}

func TestBuildMessage_TextOnly(t *testing.T) {
	msg, err := buildMessage("shop@example.com", "mod@example.com", "Hi", "plain", "")
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = msg.WriteTo(&buf)
	require.NoError(t, err)
	assert.NotContains(t, buf.String(), "text/html")
}

func TestBuildMessage_Errors(t *testing.T) {
	_, err := buildMessage("shop@example.com", "", "s", "t", "")
	assert.ErrorIs(t, err, ErrNoRecipient)

	_, err = buildMessage("not an address", "mod@example.com", "s", "t", "")
	assert.Error(t, err)
}

func TestNop_Send(t *testing.T) {
	var n Nop
	assert.NoError(t, n.Send(context.Background(), "mod@example.com", "s", "t", ""))
	assert.ErrorIs(t, n.Send(context.Background(), "", "s", "t", ""), ErrNoRecipient)
}

func TestSMTP_SendUnreachable(t *testing.T) {
	s := NewSMTP(Config{Host: "127.0.0.1", Port: 1, From: "shop@example.com"})
	err := s.Send(context.Background(), "mod@example.com", "s", "t", "")
	assert.Error(t, err)
}
