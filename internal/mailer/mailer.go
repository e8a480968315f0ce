// Package mailer sends plain-text notification and digest email over SMTP.
package mailer

import (
	"fmt"
	"log"
	"net/smtp"
	"strings"
)

// Mailer delivers mail through a single SMTP host.  When no host is
// configured, sends are logged and dropped so development environments work
// without a mail server.
type Mailer struct {
	host string
	port string
	user string
	pass string
	from string
}

func New(host, port, user, pass, from string) *Mailer {
	return &Mailer{host: host, port: port, user: user, pass: pass, from: from}
}

// Send delivers one plain-text message.  Errors are returned so task bodies
// can apply their retry policy.
func (m *Mailer) Send(to, subject, body string) error {
	if m.host == "" {
		log.Printf("mailer: no EMAIL_HOST configured; dropping mail to %s (%q)", to, subject)
		return nil
	}

	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("From: %s\r\n", m.from))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", to))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	var auth smtp.Auth
	if m.user != "" {
		auth = smtp.PlainAuth("", m.user, m.pass, m.host)
	}
	addr := m.host + ":" + m.port
	if err := smtp.SendMail(addr, auth, m.from, []string{to}, []byte(msg.String())); err != nil {
		return fmt.Errorf("mailer: send to %s: %w", to, err)
	}
	return nil
}
