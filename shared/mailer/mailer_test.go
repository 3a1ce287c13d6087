package mailer

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julis-sh/intranet/shared/apperr"
	"github.com/julis-sh/intranet/shared/config"
)

func TestRender(t *testing.T) {
	tests := []struct {
		name     string
		template string
		vars     map[string]string
		want     string
	}{
		{"substitutes", "Hallo {vorname} {nachname}", map[string]string{"vorname": "Anna", "nachname": "Muster"}, "Hallo Anna Muster"},
		{"unknown key is empty", "Kreis: {kreis}!", nil, "Kreis: !"},
		{"newlines become br", "Zeile 1\nZeile 2", nil, "Zeile 1<br>Zeile 2"},
		{"braces without word untouched", "{ not a key } {}", nil, "{ not a key } {}"},
		{"values with newlines", "{a}", map[string]string{"a": "x\ny"}, "x<br>y"},
		{"umlaut keys", "{straße} in {kreis_größe2}", map[string]string{"straße": "Holstenstr. 1", "kreis_größe2": "Kiel"}, "Holstenstr. 1 in Kiel"},
		{"unknown umlaut key is empty", "Ort: {örtlichkeit}", nil, "Ort: "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Render(tt.template, tt.vars))
		})
	}
}

type captured struct {
	addr string
	from string
	to   []string
	body string
}

func newTestMailer(t *testing.T, fail error) (*Mailer, *captured) {
	t.Helper()
	m := New(config.SMTPConfig{
		Host:      "smtp.example.org",
		Port:      587,
		User:      "user",
		Password:  "secret",
		FromEmail: "noreply@example.org",
		FromName:  "Landesverband",
	})
	m.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	got := &captured{}
	m.send = func(addr string, auth sasl.Client, from string, to []string, r io.Reader) error {
		data, err := io.ReadAll(r)
		require.NoError(t, err)
		got.addr, got.from, got.to, got.body = addr, from, to, string(data)
		return fail
	}
	return m, got
}

func TestSend(t *testing.T) {
	m, got := newTestMailer(t, nil)

	err := m.Send(context.Background(), Message{
		To:          []string{"a@example.org", "b@example.org"},
		Subject:     "Neues Mitglied",
		Body:        "Hallo<br>Welt",
		Attachments: []Attachment{{Filename: "info.pdf", Data: []byte("%PDF")}},
	})
	require.NoError(t, err)

	assert.Equal(t, "smtp.example.org:587", got.addr)
	assert.Equal(t, "noreply@example.org", got.from)
	assert.Equal(t, []string{"a@example.org", "b@example.org"}, got.to)
	assert.Contains(t, got.body, "To: a@example.org, b@example.org")
	assert.Contains(t, got.body, "Subject: Neues Mitglied")
	assert.Contains(t, got.body, "text/html; charset=utf-8")
	assert.Contains(t, got.body, `filename=info.pdf`)
	assert.True(t, strings.HasPrefix(got.body, "From: Landesverband <noreply@example.org>"))
}

func TestSend_Unconfigured(t *testing.T) {
	m := New(config.SMTPConfig{Host: "smtp.example.org"})
	err := m.Send(context.Background(), Message{To: []string{"a@example.org"}})

	require.Error(t, err)
	assert.Equal(t, apperr.KindUnavailable, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "SMTP_USER")
	assert.Contains(t, err.Error(), "SMTP_PASSWORD")
}

func TestSend_Failure(t *testing.T) {
	m, _ := newTestMailer(t, errors.New("connection refused"))
	err := m.Send(context.Background(), Message{To: []string{"a@example.org"}, Subject: "x"})

	require.Error(t, err)
	assert.Equal(t, apperr.KindExternalService, apperr.KindOf(err))
}

func TestSend_NoRecipients(t *testing.T) {
	m, _ := newTestMailer(t, nil)
	err := m.Send(context.Background(), Message{Subject: "x"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}
