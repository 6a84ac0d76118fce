package emailsvc

import (
	"bytes"
	"net/mail"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speddy/speddy/core"
)

type testLogger struct {
	errors []string
}

func (l *testLogger) Debug(string, ...interface{}) {}

func (l *testLogger) Info(string, ...interface{}) {}

func (l *testLogger) Warn(string, ...interface{}) {}

func (l *testLogger) Error(msg string, _ ...interface{}) {
	l.errors = append(l.errors, msg)
}

func (l *testLogger) Fatal(msg string, args ...interface{}) {
	l.Error(msg, args...)
}

func testConfig() *core.Config {
	conf := *core.Conf
	conf.AppName = "Speddy"
	conf.TestMode = true
	return &conf
}

func TestConsoleService(t *testing.T) {
	ResetSentMessages()
	logger := new(testLogger)
	svc := NewConsoleService(testConfig(), logger, nil)

	withAttachment := &core.EmailMessage{
		To:      []mail.Address{{Name: "Pat", Address: "pat@test.com"}},
		Subject: "Week of 2024-09-09",
		BodyStr: "see attached",
	}
	require.NoError(t, withAttachment.Attach(bytes.NewBufferString("a,b\n"), "week.csv", "text/csv"))
	noRecipient := &core.EmailMessage{Subject: "dropped", BodyStr: "nobody"}

	svc.SendMessages(withAttachment, noRecipient)

	sent := SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "Week of 2024-09-09", sent[0].Subject)
	assert.Equal(t, "see attached", sent[0].TextContent)
	assert.Empty(t, logger.errors)

	ResetSentMessages()
	assert.Empty(t, SentMessages())
}

func TestSendgridPrepare(t *testing.T) {
	svc := NewSendgridService(testConfig(), new(testLogger)).(*sendgridService)

	msg := core.EmailMessage{
		To:          []mail.Address{{Name: "Pat", Address: "pat@test.com"}},
		Cc:          []mail.Address{{Address: "lead@test.com"}},
		Subject:     "Weekly schedule",
		TextContent: "text",
	}
	require.NoError(t, msg.Attach(bytes.NewBufferString("xlsx"), "week.xlsx", "application/octet-stream"))

	m := svc.prepare(msg)
	require.Len(t, m.Personalizations, 1)
	p := m.Personalizations[0]
	assert.Equal(t, "[Speddy] Weekly schedule", p.Subject)
	require.Len(t, p.To, 1)
	assert.Equal(t, "pat@test.com", p.To[0].Address)
	assert.Len(t, p.CC, 1)
	require.Len(t, m.Content, 1, "no html part without html content")
	assert.Equal(t, "text/plain", m.Content[0].Type)
	require.Len(t, m.Attachments, 1)
	assert.Equal(t, "week.xlsx", m.Attachments[0].Filename)
}
