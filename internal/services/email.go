package services

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"html"
	"mime"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	"github.com/freelancehub/backend/internal/config"
	"github.com/freelancehub/backend/internal/models"
	"github.com/freelancehub/backend/pkg/logger"
	"github.com/google/uuid"
)

type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Content     []byte `json:"content"`
}

type EmailMessage struct {
	From        string       `json:"from,omitempty"`
	To          []string     `json:"to"`
	Cc          []string     `json:"cc,omitempty"`
	Subject     string       `json:"subject"`
	HTML        string       `json:"html"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Mailer delivers one message and returns its message id.
type Mailer interface {
	Send(ctx context.Context, msg *EmailMessage) (string, error)
}

// NewMailer returns an SMTP mailer when SMTP is configured, otherwise a
// mailer that only logs.
func NewMailer(cfg *config.SMTPConfig) Mailer {
	if cfg.Enabled && cfg.Host != "" {
		return &SMTPMailer{cfg: *cfg}
	}
	return &LogMailer{}
}

type SMTPMailer struct {
	cfg config.SMTPConfig
}

func (m *SMTPMailer) Send(ctx context.Context, msg *EmailMessage) (string, error) {
	from := msg.From
	if from == "" {
		from = m.cfg.From
	}
	if from == "" {
		from = m.cfg.Username
	}

	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), m.cfg.Host)
	body, err := buildMIMEMessage(from, messageID, msg)
	if err != nil {
		return "", err
	}

	recipients := append(append([]string{}, msg.To...), msg.Cc...)
	if err := m.deliver(ctx, from, recipients, body); err != nil {
		logger.Warn().Err(err).Strs("to", msg.To).Msg("[Email] send failed")
		return "", err
	}

	logger.Info().Strs("to", msg.To).Str("subject", msg.Subject).Msg("[Email] sent")
	return messageID, nil
}

func (m *SMTPMailer) deliver(ctx context.Context, from string, to []string, body []byte) error {
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)

	var conn net.Conn
	var err error
	if m.cfg.UseTLS {
		dialer := &tls.Dialer{Config: &tls.Config{ServerName: m.cfg.Host}}
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	} else {
		var d net.Dialer
		conn, err = d.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		return err
	}
	defer client.Close()

	if !m.cfg.UseTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: m.cfg.Host}); err != nil {
				return err
			}
		}
	}

	if m.cfg.Username != "" && m.cfg.Password != "" {
		if err := client.Auth(smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)); err != nil {
			return err
		}
	}

	if err := client.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return err
		}
	}

	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(body); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}

func buildMIMEMessage(from, messageID string, msg *EmailMessage) ([]byte, error) {
	if len(msg.To) == 0 {
		return nil, errors.New("no recipients")
	}

	var buf bytes.Buffer
	headers := []struct{ k, v string }{
		{"From", from},
		{"To", strings.Join(msg.To, ", ")},
		{"Subject", mime.QEncoding.Encode("utf-8", msg.Subject)},
		{"Message-ID", messageID},
		{"Date", time.Now().Format(time.RFC1123Z)},
		{"MIME-Version", "1.0"},
	}
	if len(msg.Cc) > 0 {
		headers = append(headers, struct{ k, v string }{"Cc", strings.Join(msg.Cc, ", ")})
	}
	for _, h := range headers {
		fmt.Fprintf(&buf, "%s: %s\r\n", h.k, h.v)
	}

	mw := multipart.NewWriter(&buf)
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", mw.Boundary())

	htmlPart, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"text/html; charset=UTF-8"},
		"Content-Transfer-Encoding": {"base64"},
	})
	if err != nil {
		return nil, err
	}
	if _, err := htmlPart.Write(wrapBase64([]byte(msg.HTML))); err != nil {
		return nil, err
	}

	for _, a := range msg.Attachments {
		ct := a.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		part, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {fmt.Sprintf("%s; name=%q", ct, a.Filename)},
			"Content-Transfer-Encoding": {"base64"},
			"Content-Disposition":       {fmt.Sprintf("attachment; filename=%q", a.Filename)},
		})
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(wrapBase64(a.Content)); err != nil {
			return nil, err
		}
	}

	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// wrapBase64 encodes data in 76-column lines
func wrapBase64(data []byte) []byte {
	enc := base64.StdEncoding.EncodeToString(data)
	var out bytes.Buffer
	for len(enc) > 76 {
		out.WriteString(enc[:76])
		out.WriteString("\r\n")
		enc = enc[76:]
	}
	out.WriteString(enc)
	out.WriteString("\r\n")
	return out.Bytes()
}

// LogMailer is used when SMTP is not configured; it accepts every message.
type LogMailer struct{}

func (m *LogMailer) Send(ctx context.Context, msg *EmailMessage) (string, error) {
	id := "log-" + uuid.NewString()
	logger.Info().
		Strs("to", msg.To).
		Str("subject", msg.Subject).
		Int("attachments", len(msg.Attachments)).
		Str("message_id", id).
		Msg("[Email] SMTP disabled, message logged only")
	return id, nil
}

// --- message builders ---

func emailLayout(title string, rows [][2]string, paragraphs ...string) string {
	var sb strings.Builder
	sb.WriteString("<html><body style=\"font-family: Arial, sans-serif;\">")
	sb.WriteString("<h2>" + html.EscapeString(title) + "</h2>")
	for _, p := range paragraphs {
		sb.WriteString("<p>" + html.EscapeString(p) + "</p>")
	}
	if len(rows) > 0 {
		sb.WriteString("<table style=\"border-collapse: collapse; margin-bottom: 20px;\">")
		for _, r := range rows {
			sb.WriteString(fmt.Sprintf("<tr><td style=\"padding: 8px; border: 1px solid #ddd; font-weight: bold;\">%s</td><td style=\"padding: 8px; border: 1px solid #ddd;\">%s</td></tr>",
				html.EscapeString(r[0]), html.EscapeString(r[1])))
		}
		sb.WriteString("</table>")
	}
	sb.WriteString("<hr><p style=\"color: #888; font-size: 12px;\">Sent by FreelanceHub</p>")
	sb.WriteString("</body></html>")
	return sb.String()
}

func invoiceEmail(inv *models.Invoice, to string) *EmailMessage {
	return &EmailMessage{
		To:      []string{to},
		Subject: fmt.Sprintf("Invoice %s", inv.InvoiceNumber),
		HTML: emailLayout("New invoice", [][2]string{
			{"Invoice", inv.InvoiceNumber},
			{"Amount due", fmt.Sprintf("%.2f", inv.TotalAmount)},
			{"Due date", inv.DueDate.Format("2006-01-02")},
		}, "A new invoice has been issued to you. The PDF is attached."),
	}
}

func simpleEmail(to, subject, title string, paragraphs ...string) *EmailMessage {
	return &EmailMessage{
		To:      []string{to},
		Subject: subject,
		HTML:    emailLayout(title, nil, paragraphs...),
	}
}
