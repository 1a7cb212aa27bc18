package smtp

import (
	"context"
	"crypto/tls"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/sendforge/dispatch/internal/core"
	"github.com/sendforge/dispatch/internal/rfc822"
)

const dialTimeout = 30 * time.Second

// Adapter implements the core.Adapter interface for generic SMTP relays.
type Adapter struct{}

// New creates the SMTP adapter.
func New() core.Adapter {
	return &Adapter{}
}

// Name returns the provider type tag.
func (a *Adapter) Name() string {
	return "smtp"
}

// Send sends a single email over SMTP. The message id is synthesized since
// SMTP servers do not return one.
func (a *Adapter) Send(ctx context.Context, email *core.Email, settings core.ProviderSettings) (*core.SendResult, error) {
	if err := email.Validate(); err != nil {
		return nil, err
	}
	if err := checkSettings(settings); err != nil {
		return nil, err
	}

	host := settings.Get("host")
	messageID := uuid.NewString() + "@" + host

	raw, err := rfc822.Build(email, messageID, time.Now())
	if err != nil {
		return nil, core.NewProviderError("smtp", "message_build_error", "failed to build message: "+err.Error())
	}

	if err := a.transmit(ctx, settings, email.From.Email, email.RecipientEmails(), raw); err != nil {
		return nil, err
	}

	return &core.SendResult{
		Success:   true,
		MessageID: messageID,
		Provider:  a.Name(),
		Timestamp: time.Now(),
	}, nil
}

// transmit runs one SMTP session: connect, optional STARTTLS, optional auth,
// MAIL/RCPT/DATA, quit.
func (a *Adapter) transmit(ctx context.Context, settings core.ProviderSettings, from string, recipients []string, raw []byte) error {
	host := settings.Get("host")
	addr := net.JoinHostPort(host, settings.Get("port"))

	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return core.NewProviderError("smtp", "connect_error", "failed to connect to "+addr+": "+err.Error())
	}

	// The session deadline bounds the whole exchange; net/smtp itself is
	// not context-aware.
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(2 * dialTimeout)
	}
	_ = conn.SetDeadline(deadline)

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return core.NewProviderError("smtp", "handshake_error", "failed to start SMTP session: "+err.Error())
	}
	defer client.Close()

	if settings.Get("tls") == "true" {
		if ok, _ := client.Extension("STARTTLS"); !ok {
			return core.NewProviderError("smtp", "tls_error", "server does not support STARTTLS")
		}
		tlsConfig := &tls.Config{
			ServerName: host,
			MinVersion: tls.VersionTLS12,
		}
		if settings.Get("tls_skip_verify") == "true" {
			tlsConfig.InsecureSkipVerify = true
		}
		if err := client.StartTLS(tlsConfig); err != nil {
			return core.NewProviderError("smtp", "tls_error", "STARTTLS failed: "+err.Error())
		}
	}

	username := settings.Get("username")
	password := settings.Get("password")
	if username != "" && password != "" {
		auth := smtp.PlainAuth("", username, password, host)
		if err := client.Auth(auth); err != nil {
			return core.NewProviderError("smtp", "auth_error", "authentication failed: "+err.Error())
		}
	}

	if err := client.Mail(from); err != nil {
		return core.NewProviderError("smtp", "send_error", "MAIL FROM rejected: "+err.Error())
	}
	for _, rcpt := range recipients {
		if err := client.Rcpt(rcpt); err != nil {
			return core.NewProviderError("smtp", "send_error", "RCPT TO "+rcpt+" rejected: "+err.Error())
		}
	}

	w, err := client.Data()
	if err != nil {
		return core.NewProviderError("smtp", "send_error", "DATA rejected: "+err.Error())
	}
	if _, err := w.Write(raw); err != nil {
		return core.NewProviderError("smtp", "send_error", "failed to write message: "+err.Error())
	}
	if err := w.Close(); err != nil {
		return core.NewProviderError("smtp", "send_error", "message rejected: "+err.Error())
	}

	return client.Quit()
}

// ValidateConfig checks the settings and verifies the server answers an
// SMTP handshake. No mail is sent.
func (a *Adapter) ValidateConfig(ctx context.Context, settings core.ProviderSettings) error {
	if err := checkSettings(settings); err != nil {
		return err
	}

	host := settings.Get("host")
	addr := net.JoinHostPort(host, settings.Get("port"))

	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return core.NewProviderError("smtp", "connect_error", "failed to connect to "+addr+": "+err.Error())
	}
	_ = conn.SetDeadline(time.Now().Add(dialTimeout))

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return core.NewProviderError("smtp", "handshake_error", "failed to start SMTP session: "+err.Error())
	}
	defer client.Close()

	return client.Quit()
}

func checkSettings(settings core.ProviderSettings) error {
	if settings.Get("host") == "" {
		return core.NewValidationError("host", "SMTP host is required")
	}
	port := settings.Get("port")
	if port == "" {
		return core.NewValidationError("port", "SMTP port is required")
	}
	if _, err := strconv.Atoi(port); err != nil {
		return core.NewValidationError("port", "invalid port number: "+port)
	}
	return nil
}
