package notice

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"text/template"
	"time"

	"github.com/wneessen/go-mail"
)

type SMTPConfig struct {
	Host     string
	Port     int
	TLS      bool
	Username string
	Password string
	From     string
}

const deviceBlockedSubject = "A device was blocked on your HR account"

var deviceBlockedText = template.Must(template.New("device_blocked").Parse(`Hello,

The device "{{.DeviceName}}" was blocked on your account at {{.BlockedAt}}.
Reason: {{.Reason}}

If this was not you, contact your HR administrator to review the device.
The device stays blocked until an administrator unblocks it.
`))

// EmailNotifier sends notifications over SMTP.
type EmailNotifier struct {
	config SMTPConfig
	client *mail.Client
}

func NewEmailNotifier(config SMTPConfig) (*EmailNotifier, error) {
	opts := []mail.Option{
		mail.WithPort(config.Port),
		mail.WithTimeout(30 * time.Second),
	}

	// Only add authentication if username and password are provided
	if config.Username != "" && config.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthLogin),
			mail.WithUsername(config.Username),
			mail.WithPassword(config.Password),
		)
	}

	if config.TLS {
		opts = append(opts,
			mail.WithTLSConfig(&tls.Config{ServerName: config.Host}),
			mail.WithTLSPolicy(mail.TLSMandatory),
		)
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}

	client, err := mail.NewClient(config.Host, opts...)
	if err != nil {
		slog.Error("Failed to create mail client", "host", config.Host, "port", config.Port, "err", err)
		return nil, err
	}

	return &EmailNotifier{config: config, client: client}, nil
}

func (e *EmailNotifier) NotifyDeviceBlocked(ctx context.Context, n DeviceBlocked) error {
	if n.Email == "" {
		return fmt.Errorf("device blocked notice requires an email address")
	}

	body, err := renderDeviceBlocked(n)
	if err != nil {
		return err
	}

	msg := mail.NewMsg()
	if err := msg.From(e.config.From); err != nil {
		return fmt.Errorf("failed to set from address: %w", err)
	}
	if err := msg.To(n.Email); err != nil {
		return fmt.Errorf("failed to set to address: %w", err)
	}
	msg.Subject(deviceBlockedSubject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	if err := e.client.DialAndSendWithContext(ctx, msg); err != nil {
		slog.Error("Failed to send device blocked email", "to", n.Email, "err", err)
		return err
	}

	slog.Info("Device blocked email sent", "to", n.Email, "fingerprint", n.Fingerprint)
	return nil
}

func renderDeviceBlocked(n DeviceBlocked) (string, error) {
	data := struct {
		DeviceName string
		BlockedAt  string
		Reason     string
	}{
		DeviceName: n.DeviceName,
		BlockedAt:  n.BlockedAt.UTC().Format(time.RFC1123),
		Reason:     n.Reason,
	}
	if data.DeviceName == "" {
		data.DeviceName = "Unknown device"
	}
	if data.Reason == "" {
		data.Reason = "not specified"
	}

	var buf bytes.Buffer
	if err := deviceBlockedText.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render device blocked notice: %w", err)
	}
	return buf.String(), nil
}
