package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// RatePerSecond caps outgoing messages; zero disables throttling.
	RatePerSecond float64
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Email sends HTML notices through an SMTP relay.
type Email struct {
	addr     string
	auth     smtp.Auth
	from     string
	limiter  *rate.Limiter
	sendMail sendMailFunc
	now      func() time.Time
}

func NewEmail(cfg EmailConfig) *Email {
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	return &Email{
		addr:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		auth:     auth,
		from:     cfg.From,
		limiter:  rate.NewLimiter(limit, 1),
		sendMail: smtp.SendMail,
		now:      time.Now,
	}
}

// Send delivers one notice, waiting for the rate limiter first.
func (e *Email) Send(ctx context.Context, n Notice) error {
	if n.Recipient == "" {
		return fmt.Errorf("notice has no recipient")
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return err
	}
	msg, err := e.message(n)
	if err != nil {
		return err
	}
	if err := e.sendMail(e.addr, e.auth, e.from, []string{n.Recipient}, msg); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", n.Recipient, err)
	}
	return nil
}

var bodyTemplate = template.Must(template.New("notice").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #1f2937;">
  <h2 style="color: #15803d;">New community proposal for {{.ParkName}}</h2>
  {{if .RecipientName}}<p>Hi {{.RecipientName}},</p>{{end}}
  <p>A proposal to protect <strong>{{.ParkName}}</strong> was just submitted for your neighborhood.</p>
  <p>{{.Description}}</p>
  <table style="border-collapse: collapse;">
    <tr><td style="padding: 4px 12px 4px 0;"><strong>Proposal</strong></td><td>#{{.ProposalID}}</td></tr>
    <tr><td style="padding: 4px 12px 4px 0;"><strong>Voting deadline</strong></td><td>{{.Deadline}}</td></tr>
  </table>
  {{if .ExplorerURL}}<p><a href="{{.ExplorerURL}}">View the transaction</a></p>{{end}}
  <p>Cast your vote in ParkPulse before the deadline.</p>
  <p style="font-size: 12px; color: #6b7280;">You receive this email because your profile lists this ZIP code.</p>
</body>
</html>
`))

func (e *Email) message(n Notice) ([]byte, error) {
	var body bytes.Buffer
	if err := bodyTemplate.Execute(&body, n); err != nil {
		return nil, fmt.Errorf("failed to render email: %w", err)
	}

	subject := fmt.Sprintf("New proposal: protect %s (#%d)", n.ParkName, n.ProposalID)
	var msg bytes.Buffer
	header := func(k, v string) {
		msg.WriteString(k + ": " + v + "\r\n")
	}
	header("From", e.from)
	header("To", n.Recipient)
	header("Subject", mime.QEncoding.Encode("utf-8", subject))
	header("Date", e.now().Format(time.RFC1123Z))
	header("MIME-Version", "1.0")
	header("Content-Type", `text/html; charset="UTF-8"`)
	msg.WriteString("\r\n")
	msg.WriteString(strings.ReplaceAll(body.String(), "\n", "\r\n"))
	return msg.Bytes(), nil
}
