package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/google/uuid"
)

// SMTPConfig configures the outbound email provider.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	FromName string `yaml:"from_name"`
}

// SMTPSender delivers email over a single SMTP relay.
type SMTPSender struct {
	cfg    SMTPConfig
	logger *slog.Logger
}

func NewSMTPSender(cfg SMTPConfig, logger *slog.Logger) *SMTPSender {
	return &SMTPSender{
		cfg:    cfg,
		logger: logger.With("component", "smtp"),
	}
}

// Send submits one email and returns the generated Message-ID.
func (s *SMTPSender) Send(ctx context.Context, msg *Message) (string, error) {
	messageID := uuid.New().String()
	data := s.buildMessage(messageID, msg)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	var auth sasl.Client
	if s.cfg.Username != "" {
		auth = sasl.NewPlainClient("", s.cfg.Username, s.cfg.Password)
	}

	if err := smtp.SendMail(addr, auth, s.cfg.From, []string{msg.To}, bytes.NewReader(data)); err != nil {
		var smtpErr *smtp.SMTPError
		if errors.As(err, &smtpErr) && (smtpErr.Code == 535 || smtpErr.Code == 530) {
			return "", fmt.Errorf("%w: %v", ErrCredentialsRejected, err)
		}
		return "", fmt.Errorf("smtp send failed: %w", err)
	}

	s.logger.Debug("email submitted", "message_id", messageID, "to", msg.To)
	return messageID, nil
}

// buildMessage constructs RFC 5322 email data with a multipart
// alternative body when both text and HTML are present.
func (s *SMTPSender) buildMessage(messageID string, msg *Message) []byte {
	var buf bytes.Buffer

	from := s.cfg.From
	if s.cfg.FromName != "" {
		from = s.cfg.FromName + " <" + s.cfg.From + ">"
	}

	buf.WriteString(fmt.Sprintf("From: %s\r\n", from))
	buf.WriteString(fmt.Sprintf("To: %s\r\n", msg.To))
	buf.WriteString(fmt.Sprintf("Subject: %s\r\n", msg.Subject))
	buf.WriteString(fmt.Sprintf("Date: %s\r\n", time.Now().Format(time.RFC1123Z)))
	buf.WriteString(fmt.Sprintf("Message-ID: <%s@%s>\r\n", messageID, domainOf(s.cfg.From)))

	if msg.Text != "" && msg.Body != "" {
		boundary := uuid.New().String()
		buf.WriteString("MIME-Version: 1.0\r\n")
		buf.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary))
		buf.WriteString("\r\n")

		buf.WriteString(fmt.Sprintf("--%s\r\n", boundary))
		buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
		buf.WriteString("\r\n")
		buf.WriteString(msg.Text)
		buf.WriteString("\r\n")

		buf.WriteString(fmt.Sprintf("--%s\r\n", boundary))
		buf.WriteString("Content-Type: text/html; charset=utf-8\r\n")
		buf.WriteString("\r\n")
		buf.WriteString(msg.Body)
		buf.WriteString("\r\n")

		buf.WriteString(fmt.Sprintf("--%s--\r\n", boundary))
	} else {
		contentType := "text/html"
		body := msg.Body
		if body == "" {
			contentType = "text/plain"
			body = msg.Text
		}
		buf.WriteString(fmt.Sprintf("Content-Type: %s; charset=utf-8\r\n", contentType))
		buf.WriteString("\r\n")
		buf.WriteString(body)
	}

	return buf.Bytes()
}

func domainOf(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) == 2 {
		return parts[1]
	}
	return "localhost"
}
