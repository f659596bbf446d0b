package services

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gopkg.in/gomail.v2"

	"vibe/internal/metrics"
)

type capturingSender struct {
	sent []*gomail.Message
	err  error
}

func (c *capturingSender) DialAndSend(m ...*gomail.Message) error {
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, m...)
	return nil
}

func newTestEmailService(sender mailSender, dryRun bool) (*emailService, *metrics.Metrics, *observer.ObservedLogs) {
	core, logs := observer.New(zap.InfoLevel)
	m := metrics.New()
	return &emailService{
		sender:  sender,
		from:    "noreply@vibe.io",
		baseURL: "https://vibe.io",
		dryRun:  dryRun,
		metrics: m,
		log:     zap.New(core),
	}, m, logs
}

func TestEmailService_SendsVerificationEmail(t *testing.T) {
	sender := &capturingSender{}
	svc, m, _ := newTestEmailService(sender, false)

	require.NoError(t, svc.SendVerificationEmail("ana@vibe.io", "Ana", "482913", "abc", 5*time.Minute))
	require.Len(t, sender.sent, 1)

	msg := sender.sent[0]
	assert.Equal(t, []string{"ana@vibe.io"}, msg.GetHeader("To"))
	assert.Equal(t, []string{"noreply@vibe.io"}, msg.GetHeader("From"))
	assert.Equal(t, []string{"Confirm your email - Vibe"}, msg.GetHeader("Subject"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.EmailsSent.WithLabelValues("verification", "sent")))
}

func TestEmailService_DryRunLogsInsteadOfSending(t *testing.T) {
	sender := &capturingSender{}
	svc, m, logs := newTestEmailService(sender, true)

	require.NoError(t, svc.SendPasswordRecoveryEmail("ana@vibe.io", "Ana", "111222", "tok", 15*time.Minute))
	assert.Empty(t, sender.sent)

	entries := logs.FilterMessage("[email][dry-run] message not sent").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "111222", fields["code"])
	assert.Equal(t, "https://vibe.io/reset-password?token=tok", fields["link"])
	assert.Equal(t, "password_recovery", fields["template"])

	assert.Equal(t, 1.0, testutil.ToFloat64(m.EmailsSent.WithLabelValues("password_recovery", "dry_run")))
}

func TestEmailService_SenderFailure(t *testing.T) {
	sender := &capturingSender{err: errors.New("dial tcp: connection refused")}
	svc, m, _ := newTestEmailService(sender, false)

	err := svc.SendVerificationEmail("ana@vibe.io", "Ana", "482913", "abc", time.Minute)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EmailsSent.WithLabelValues("verification", "error")))
}

func TestNewEmailService_NoHostMeansDryRun(t *testing.T) {
	svc := NewEmailService(EmailSettings{PublicURL: "https://vibe.io/"}, metrics.New(), zap.NewNop()).(*emailService)
	assert.True(t, svc.dryRun)
	assert.Equal(t, "https://vibe.io", svc.baseURL)
}

func TestEmailTemplatesRender(t *testing.T) {
	data := emailData{FirstName: "Ana", Code: "482913", Link: "https://vibe.io/verify-email?token=abc", TTL: "5 minutes"}

	var body bytes.Buffer
	require.NoError(t, verificationEmailTmpl.Execute(&body, data))
	assert.Contains(t, body.String(), "482913")
	assert.Contains(t, body.String(), "expires in 5 minutes")
	assert.Contains(t, body.String(), `href="https://vibe.io/verify-email?token=abc"`)

	body.Reset()
	data.FirstName = "<script>"
	require.NoError(t, recoveryEmailTmpl.Execute(&body, data))
	assert.NotContains(t, body.String(), "<script>")
}

func TestHumanTTL(t *testing.T) {
	assert.Equal(t, "1 minute", humanTTL(time.Minute))
	assert.Equal(t, "15 minutes", humanTTL(15*time.Minute))
	assert.Equal(t, "1m30s", humanTTL(90*time.Second))
	assert.Equal(t, "a few minutes", humanTTL(0))
}
