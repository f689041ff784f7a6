package alert

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/config"
)

const emailSubject = "ACCIDENT DETECTED"

// EmailGateway sends plain-text alerts over SMTP with STARTTLS when the
// server offers it.
type EmailGateway struct {
	addr     string
	host     string
	user     string
	password string
	sendMail func(ctx context.Context, to string, msg []byte) error
}

func NewEmailGateway(cfg config.EmailConfig) (*EmailGateway, error) {
	if cfg.Host == "" || cfg.User == "" {
		return nil, errors.New("email gateway requires smtp host and user")
	}
	port := cfg.Port
	if port == 0 {
		port = 587
	}
	g := &EmailGateway{
		addr:     net.JoinHostPort(cfg.Host, strconv.Itoa(port)),
		host:     cfg.Host,
		user:     cfg.User,
		password: cfg.Password,
	}
	g.sendMail = g.deliver
	return g, nil
}

func (g *EmailGateway) Name() string { return "email" }

func (g *EmailGateway) Send(ctx context.Context, destination, message, eventID string) error {
	if !strings.Contains(destination, "@") {
		return Permanent(fmt.Errorf("invalid email destination %q", destination))
	}
	return g.sendMail(ctx, destination, buildEmail(g.user, destination, emailSubject, message, eventID))
}

func buildEmail(from, to, subject, body, eventID string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("X-Event-ID: " + eventID + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}

func (g *EmailGateway) deliver(ctx context.Context, to string, msg []byte) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", g.addr)
	if err != nil {
		return fmt.Errorf("smtp dial failed: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(30 * time.Second))
	}

	client, err := smtp.NewClient(conn, g.host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake failed: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(nil); err != nil {
			return fmt.Errorf("smtp starttls failed: %w", err)
		}
	}
	if g.password != "" {
		if err := client.Auth(smtp.PlainAuth("", g.user, g.password, g.host)); err != nil {
			return Permanent(fmt.Errorf("smtp auth failed: %w", err))
		}
	}
	if err := client.Mail(g.user); err != nil {
		return fmt.Errorf("smtp MAIL FROM failed: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return Permanent(fmt.Errorf("smtp RCPT TO %s rejected: %w", to, err))
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA failed: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("smtp write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp send failed: %w", err)
	}
	return client.Quit()
}
