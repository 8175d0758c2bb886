package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/inboxsync/internal/model"
)

func TestRedact(t *testing.T) {
	assert.Equal(t, "T1 LOGIN [redacted]", Redact(`T1 LOGIN alice "hunter2"`))
	assert.Equal(t, "T2 authenticate [redacted]", Redact("T2 authenticate PLAIN AGFsaWNl"))
	assert.Equal(t, "T3 SELECT INBOX", Redact("T3 SELECT INBOX"))
	assert.Equal(t, "*", Redact("*"))
}

func TestIMAPDebugWriterRedactsCredentials(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(model.LogConfig{Level: "trace", Format: "json"}, &buf)
	require.NoError(t, err)

	w := NewIMAPDebugWriter(logger)
	input := []byte("T1 LOGIN alice secret\r\nT2 SELECT INBOX\r\n")
	n, err := w.Write(input)
	require.NoError(t, err)
	assert.Equal(t, len(input), n)

	out := buf.String()
	assert.NotContains(t, out, "secret")
	assert.Contains(t, out, "T1 LOGIN [redacted]")
	assert.Contains(t, out, "T2 SELECT INBOX")
}

func TestIMAPDebugWriterRedactsLiteralPassword(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(model.LogConfig{Level: "trace", Format: "json"}, &buf)
	require.NoError(t, err)

	w := NewIMAPDebugWriter(logger)
	for _, chunk := range []string{
		"T1 LOGIN alice {9}\r\n",
		"+ Ready for literal data\r\n",
		"h\u00fcnter22\r\n",
		"T1 OK LOGIN completed\r\n",
		"T2 SELECT INBOX\r\n",
	} {
		_, err := w.Write([]byte(chunk))
		require.NoError(t, err)
	}

	out := buf.String()
	assert.NotContains(t, out, "nter22")
	assert.Contains(t, out, "T1 LOGIN [redacted]")
	assert.Contains(t, out, "T1 OK LOGIN completed")
	assert.Contains(t, out, "T2 SELECT INBOX")
}

func TestIMAPDebugWriterRedactsAuthenticateExchange(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(model.LogConfig{Level: "trace", Format: "json"}, &buf)
	require.NoError(t, err)

	w := NewIMAPDebugWriter(logger)
	input := "T1 AUTHENTICATE PLAIN\r\n" +
		"+ \r\n" +
		"AGFsaWNlAGh1bnRlcjI=\r\n" +
		"T1 OK AUTHENTICATE completed\r\n" +
		"T2 LIST \"\" \"*\"\r\n"
	_, err = w.Write([]byte(input))
	require.NoError(t, err)

	out := buf.String()
	assert.NotContains(t, out, "AGFsaWNlAGh1bnRlcjI=")
	assert.Contains(t, out, "T1 AUTHENTICATE [redacted]")
	assert.Contains(t, out, "T1 OK AUTHENTICATE completed")
	assert.Contains(t, out, "T2 LIST")
}

func TestIMAPDebugWriterQuotedLoginKeepsNextLine(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(model.LogConfig{Level: "trace", Format: "json"}, &buf)
	require.NoError(t, err)

	w := NewIMAPDebugWriter(logger)
	_, err = w.Write([]byte("T1 LOGIN alice \"hunter2\"\r\nT1 OK done\r\nT2 SELECT INBOX\r\n"))
	require.NoError(t, err)

	out := buf.String()
	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, "T2 SELECT INBOX")
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New(model.LogConfig{Level: "loud"}, nil)
	assert.Error(t, err)

	_, err = New(model.LogConfig{Format: "xml"}, nil)
	assert.Error(t, err)
}

func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(model.LogConfig{Level: "warn", Format: "json"}, &buf)
	require.NoError(t, err)

	logger.Info().Msg("quiet")
	logger.Warn().Msg("loud")

	assert.NotContains(t, buf.String(), "quiet")
	assert.Contains(t, buf.String(), "loud")
}
