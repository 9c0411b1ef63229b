// services/mail_service.go
package services

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html/template"
	"mime"
	"net"
	"net/smtp"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type EmailMessage struct {
	To          string
	ToName      string
	Subject     string
	HTMLContent string
	TextContent string
	ReplyTo     string
}

type EmailResult struct {
	Success   bool
	Error     string
	MessageID string
}

// Mailer never returns an error: delivery problems are reported in EmailResult
// so callers can treat email as best-effort.
type Mailer interface {
	SendEmail(ctx context.Context, msg EmailMessage) EmailResult
}

// SMTPConfig holds SMTP + branding config.
type SMTPConfig struct {
	Host       string // e.g. "smtp.gmail.com"
	Port       int    // 587 (STARTTLS) or 465 (SMTPS)
	Username   string
	Password   string
	From       string // envelope from, e.g. "billing@yourapp.com"
	FromName   string
	UseSSL     bool // true for SMTPS 465, false for STARTTLS 587
	RequireTLS bool // fail if STARTTLS is not offered

	AppName    string
	AppBaseURL string
}

type smtpMailer struct {
	cfg SMTPConfig
	log zerolog.Logger
}

func NewSMTPMailer(cfg SMTPConfig, log zerolog.Logger) Mailer {
	return &smtpMailer{cfg: cfg, log: log}
}

func (s *smtpMailer) SendEmail(ctx context.Context, msg EmailMessage) EmailResult {
	if strings.TrimSpace(msg.To) == "" {
		return EmailResult{Error: "recipient address is empty"}
	}
	if s.cfg.From == "" {
		return EmailResult{Error: "sender address is not configured"}
	}

	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), s.domain())
	raw := s.compose(msg, messageID)

	if err := s.deliver(ctx, msg.To, raw); err != nil {
		s.log.Warn().Err(err).Str("to", msg.To).Str("subject", msg.Subject).Msg("email delivery failed")
		return EmailResult{Error: err.Error()}
	}
	return EmailResult{Success: true, MessageID: messageID}
}

// ------------------- Rendering -------------------

type EmailData struct {
	Title     string
	Intro     string
	Lines     []string
	ButtonURL string
	ButtonTxt string
	AppName   string
	Year      int
}

const baseHTMLTemplate = `<!doctype html>
<html>
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width,initial-scale=1">
  <title>{{.Title}}</title>
  <style>
    body { margin: 0; padding: 0; background: #f1f5f9; color: #0f172a; font-family: -apple-system, "Segoe UI", Roboto, Helvetica, Arial, sans-serif; }
    .wrapper { width: 100%; padding: 32px 16px; box-sizing: border-box; }
    .container { max-width: 600px; margin: 0 auto; background: #ffffff; border-radius: 12px; overflow: hidden; border: 1px solid #e2e8f0; }
    .header { padding: 24px 32px; border-bottom: 1px solid #e2e8f0; font-weight: 700; color: #2563eb; text-transform: uppercase; }
    .hero { padding: 32px; }
    h1 { margin: 0 0 16px; font-size: 24px; }
    p { margin: 0 0 16px; line-height: 1.6; color: #475569; }
    td { padding: 4px 0; color: #334155; }
    .btn { display: inline-block; padding: 14px 28px; background: #2563eb; color: #ffffff !important; text-decoration: none; border-radius: 8px; font-weight: 600; }
    .footer { padding: 20px 32px; color: #64748b; font-size: 12px; text-align: center; }
  </style>
</head>
<body>
  <div class="wrapper">
    <div class="container">
      <div class="header">{{.AppName}}</div>
      <div class="hero">
        <h1>{{.Title}}</h1>
        <p>{{.Intro}}</p>
        {{if .Lines}}<table>{{range .Lines}}<tr><td>{{.}}</td></tr>{{end}}</table>{{end}}
        {{if .ButtonURL}}<p><a class="btn" href="{{.ButtonURL}}">{{.ButtonTxt}}</a></p>{{end}}
      </div>
      <div class="footer">© {{.Year}} {{.AppName}}</div>
    </div>
  </div>
</body>
</html>`

const plainTextTemplate = `{{.Title}}

{{.Intro}}
{{range .Lines}}
{{.}}{{end}}
{{if .ButtonURL}}
Open this link:
{{.ButtonURL}}
{{end}}
{{.AppName}} (c) {{.Year}}
`

var (
	emailHTMLTpl = template.Must(template.New("emailHTML").Parse(baseHTMLTemplate))
	emailTextTpl = texttemplate.Must(texttemplate.New("emailText").Parse(plainTextTemplate))
)

// RenderEmail builds the HTML and plain-text bodies of a notification.
func RenderEmail(data EmailData) (html string, text string, err error) {
	var hb, tb bytes.Buffer
	if err = emailHTMLTpl.Execute(&hb, data); err != nil {
		return "", "", err
	}
	if err = emailTextTpl.Execute(&tb, data); err != nil {
		return "", "", err
	}
	return hb.String(), tb.String(), nil
}

// ------------------- SMTP Send -------------------

func (s *smtpMailer) compose(m EmailMessage, messageID string) []byte {
	boundary := fmt.Sprintf("alt_%d", time.Now().UnixNano())

	var msg bytes.Buffer
	write := func(format string, a ...any) { _, _ = msg.WriteString(fmt.Sprintf(format, a...)) }

	write("From: %s\r\n", formatAddress(s.cfg.FromName, s.cfg.From))
	write("To: %s\r\n", formatAddress(m.ToName, m.To))
	if m.ReplyTo != "" {
		write("Reply-To: %s\r\n", m.ReplyTo)
	}
	write("Subject: %s\r\n", mime.QEncoding.Encode("UTF-8", m.Subject))
	write("Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	write("Message-ID: %s\r\n", messageID)
	write("MIME-Version: 1.0\r\n")
	write("Content-Type: multipart/alternative; boundary=%q\r\n\r\n", boundary)

	if m.TextContent != "" {
		write("--%s\r\n", boundary)
		write("Content-Type: text/plain; charset=UTF-8\r\n")
		write("Content-Transfer-Encoding: 8bit\r\n\r\n")
		write("%s\r\n\r\n", m.TextContent)
	}

	write("--%s\r\n", boundary)
	write("Content-Type: text/html; charset=UTF-8\r\n")
	write("Content-Transfer-Encoding: 8bit\r\n\r\n")
	write("%s\r\n\r\n", m.HTMLContent)
	write("--%s--\r\n", boundary)

	return msg.Bytes()
}

func (s *smtpMailer) deliver(ctx context.Context, to string, raw []byte) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	tlsCfg := &tls.Config{ServerName: s.cfg.Host, MinVersion: tls.VersionTLS12}
	dialer := &net.Dialer{Timeout: 10 * time.Second}

	var (
		conn net.Conn
		err  error
	)
	if s.cfg.UseSSL {
		// SMTPS, implicit TLS
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: tlsCfg}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return err
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		return err
	}
	defer c.Quit()

	if !s.cfg.UseSSL {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err = c.StartTLS(tlsCfg); err != nil {
				return err
			}
		} else if s.cfg.RequireTLS {
			return fmt.Errorf("server does not support STARTTLS and RequireTLS=true")
		}
	}

	if s.cfg.Username != "" {
		if err = c.Auth(smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)); err != nil {
			return err
		}
	}
	if err = c.Mail(s.cfg.From); err != nil {
		return err
	}
	if err = c.Rcpt(to); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err = w.Write(raw); err != nil {
		return err
	}
	return w.Close()
}

func (s *smtpMailer) domain() string {
	if at := strings.LastIndex(s.cfg.From, "@"); at >= 0 && at < len(s.cfg.From)-1 {
		return s.cfg.From[at+1:]
	}
	return "localhost"
}

// formatAddress renders `Name <addr>`, RFC 2047 encoding non-ASCII names.
func formatAddress(name, addr string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return addr
	}
	return fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("UTF-8", name), addr)
}
