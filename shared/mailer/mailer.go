package mailer

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/textproto"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/julis-sh/intranet/shared/apperr"
	"github.com/julis-sh/intranet/shared/config"
	"github.com/julis-sh/intranet/shared/metrics"
	"github.com/julis-sh/intranet/shared/utils"
)

// Attachment is a file sent along with a message
type Attachment struct {
	Filename string
	Data     []byte
}

// Message is one outgoing HTML mail
type Message struct {
	To          []string
	Subject     string
	Body        string
	Attachments []Attachment
}

// Sender delivers messages
type Sender interface {
	Configured() bool
	Send(ctx context.Context, msg Message) error
}

type sendFunc func(addr string, auth sasl.Client, from string, to []string, r io.Reader) error

// Mailer sends mail through an SMTP relay with STARTTLS and PLAIN auth
type Mailer struct {
	cfg     config.SMTPConfig
	breaker *utils.CircuitBreaker
	send    sendFunc
	now     func() time.Time
}

// New creates a mailer for cfg. It may be unconfigured; Send then fails with
// an Unavailable error.
func New(cfg config.SMTPConfig) *Mailer {
	return &Mailer{
		cfg:     cfg,
		breaker: utils.NewCircuitBreaker("smtp", 5, 30*time.Second),
		send:    smtp.SendMail,
		now:     time.Now,
	}
}

// Configured reports whether host and credentials are set
func (m *Mailer) Configured() bool {
	return m.cfg.Configured()
}

// Missing lists the unset settings
func (m *Mailer) Missing() []string {
	return m.cfg.Missing()
}

// Send delivers msg to all recipients in one transaction
func (m *Mailer) Send(ctx context.Context, msg Message) error {
	if !m.Configured() {
		return apperr.Unavailable("SMTP not configured. Missing: %s", strings.Join(m.Missing(), ", "))
	}
	if len(msg.To) == 0 {
		return apperr.Validation("No recipients")
	}

	raw, err := m.compose(msg)
	if err != nil {
		return apperr.Internal("failed to compose mail", err)
	}

	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	auth := sasl.NewPlainClient("", m.cfg.User, m.cfg.Password)
	err = m.breaker.Call(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return m.send(addr, auth, m.cfg.Sender(), msg.To, bytes.NewReader(raw))
	})
	metrics.ObserveMail(metrics.Result(err))
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"to":      msg.To,
			"subject": msg.Subject,
		}).WithError(err).Error("Failed to send email")
		return apperr.ExternalService("Failed to send email", err)
	}

	logrus.WithFields(logrus.Fields{
		"to":      msg.To,
		"subject": msg.Subject,
	}).Info("Email sent")
	return nil
}

func (m *Mailer) compose(msg Message) ([]byte, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	from := m.cfg.Sender()
	if m.cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", m.cfg.FromName), m.cfg.Sender())
	}
	headers := []string{
		"From: " + from,
		"To: " + strings.Join(msg.To, ", "),
		"Subject: " + mime.QEncoding.Encode("utf-8", msg.Subject),
		"Date: " + m.now().Format(time.RFC1123Z),
		"MIME-Version: 1.0",
		"Content-Type: multipart/mixed; boundary=" + w.Boundary(),
	}
	buf.WriteString(strings.Join(headers, "\r\n") + "\r\n\r\n")

	body, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"text/html; charset=utf-8"},
		"Content-Transfer-Encoding": {"base64"},
	})
	if err != nil {
		return nil, errors.Wrap(err, "body part")
	}
	if err := writeBase64(body, []byte(msg.Body)); err != nil {
		return nil, errors.Wrap(err, "body part")
	}

	for _, att := range msg.Attachments {
		part, err := w.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {"application/octet-stream"},
			"Content-Transfer-Encoding": {"base64"},
			"Content-Disposition":       {mime.FormatMediaType("attachment", map[string]string{"filename": att.Filename})},
		})
		if err != nil {
			return nil, errors.Wrapf(err, "attachment %s", att.Filename)
		}
		if err := writeBase64(part, att.Data); err != nil {
			return nil, errors.Wrapf(err, "attachment %s", att.Filename)
		}
	}

	if err := w.Close(); err != nil {
		return nil, errors.Wrap(err, "close multipart")
	}
	return buf.Bytes(), nil
}

func writeBase64(w io.Writer, data []byte) error {
	encoded := base64.StdEncoding.EncodeToString(data)
	for len(encoded) > 76 {
		if _, err := io.WriteString(w, encoded[:76]+"\r\n"); err != nil {
			return err
		}
		encoded = encoded[76:]
	}
	_, err := io.WriteString(w, encoded+"\r\n")
	return err
}

var placeholder = regexp.MustCompile(`\{([\p{L}\p{N}_]+)\}`)

// Render replaces {key} placeholders from vars, unknown keys become empty,
// and converts newlines to <br>
func Render(template string, vars map[string]string) string {
	result := placeholder.ReplaceAllStringFunc(template, func(match string) string {
		return vars[match[1:len(match)-1]]
	})
	return strings.ReplaceAll(result, "\n", "<br>")
}
