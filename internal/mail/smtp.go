// Package mail sends reminder notifications over SMTP. It builds a
// multipart/alternative message (text/plain and text/html parts) and
// opens one SMTP session per Send call — sessions are never shared
// across goroutines or reused between calls. The session is upgraded with
// STARTTLS only when the server advertises it; otherwise it stays
// plaintext.
package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/mail"
	"net/smtp"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/eventcollab/videochat/internal/logging"
	"github.com/eventcollab/videochat/internal/metrics"
)

// MailError wraps any SMTP-level failure. The sink never retries; callers
// decide whether to leave the triggering work item in place.
type MailError struct {
	Op  string
	Err error
}

func (e *MailError) Error() string { return fmt.Sprintf("mail: %s: %v", e.Op, e.Err) }
func (e *MailError) Unwrap() error { return e.Err }

// Config holds the SMTP relay connection details and the fixed From
// identity used for every message this sink sends.
type Config struct {
	Host        string
	Port        int
	User        string
	Password    string
	FromName    string
	FromAddress string
}

// Sink sends mail over SMTP. One Sink is shared across callers; each Send
// call still opens its own dedicated connection.
type Sink struct {
	cfg Config
	cb  *gobreaker.CircuitBreaker
}

// NewSink validates the configured From address and returns a ready Sink.
func NewSink(cfg Config) (*Sink, error) {
	from := mail.Address{Name: cfg.FromName, Address: cfg.FromAddress}
	if _, err := mail.ParseAddress(from.Address); err != nil {
		return nil, fmt.Errorf("mail: invalid from address: %w", err)
	}

	st := gobreaker.Settings{
		Name:        "mail-sink",
		MaxRequests: 3,
		Interval:    1 * time.Minute,
		Timeout:     30 * time.Second,
		OnStateChange: func(name string, from, to gobreaker.State) {
			var v float64
			switch to {
			case gobreaker.StateOpen:
				v = 1
			case gobreaker.StateHalfOpen:
				v = 2
			}
			metrics.CircuitBreakerState.WithLabelValues("mail-sink").Set(v)
		},
	}

	return &Sink{cfg: cfg, cb: gobreaker.NewCircuitBreaker(st)}, nil
}

// Send builds a multipart/alternative message and transmits it over a
// fresh SMTP session, upgraded with STARTTLS when the server offers it
// (a server that does not offer it gets the message in plaintext). It
// never retries: any failure is returned
// as *MailError and it is the caller's job to decide what to do next.
func (s *Sink) Send(ctx context.Context, subject, recipient, plainBody, htmlBody string) error {
	to, err := sanitizeAddress(recipient)
	if err != nil {
		return &MailError{Op: "recipient", Err: err}
	}

	from := (&mail.Address{Name: s.cfg.FromName, Address: s.cfg.FromAddress}).String()
	if strings.ContainsAny(subject, "\r\n") {
		return &MailError{Op: "subject", Err: fmt.Errorf("CRLF injection detected in subject")}
	}

	message := buildMessage(from, to, subject, plainBody, htmlBody)

	start := time.Now()
	_, err = s.cb.Execute(func() (interface{}, error) {
		return nil, s.deliver(ctx, to, message)
	})
	metrics.MailSendDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.MailSendTotal.WithLabelValues("error").Inc()
		logging.Error(ctx, "mail send failed", zap.String("recipient", logging.RedactEmail(recipient)), zap.Error(err))
		return &MailError{Op: "send", Err: err}
	}

	metrics.MailSendTotal.WithLabelValues("success").Inc()
	return nil
}

func (s *Sink) deliver(ctx context.Context, to string, message []byte) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	dialer := &net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		return fmt.Errorf("new client: %w", err)
	}
	defer client.Quit()

	tlsConfig := &tls.Config{ServerName: s.cfg.Host, MinVersion: tls.VersionTLS12}
	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(tlsConfig); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}

	if s.cfg.User != "" {
		auth := smtp.PlainAuth("", s.cfg.User, s.cfg.Password, s.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}

	if err := client.Mail(s.cfg.FromAddress); err != nil {
		return fmt.Errorf("mail: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("rcpt: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(message); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return w.Close()
}

const mimeBoundary = "videochat-reminder-boundary"

func buildMessage(from, to, subject, plainBody, htmlBody string) []byte {
	var b strings.Builder

	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\r\n", mimeBoundary)
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s\r\n", mimeBoundary)
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(plainBody)
	b.WriteString("\r\n\r\n")

	fmt.Fprintf(&b, "--%s\r\n", mimeBoundary)
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
	b.WriteString(htmlBody)
	b.WriteString("\r\n\r\n")

	fmt.Fprintf(&b, "--%s--\r\n", mimeBoundary)

	return []byte(b.String())
}

// sanitizeAddress parses and re-renders recipient so a malformed or
// CRLF-bearing address can never be smuggled into the SMTP session.
func sanitizeAddress(addr string) (string, error) {
	parsed, err := mail.ParseAddress(addr)
	if err != nil {
		return "", fmt.Errorf("invalid recipient address: %w", err)
	}
	if strings.ContainsAny(parsed.Address, "\r\n") || strings.ContainsAny(parsed.Name, "\r\n") {
		return "", fmt.Errorf("CRLF injection detected in recipient address")
	}
	return parsed.String(), nil
}
