package config

import "github.com/tendant/simple-hris/pkg/notice"

// EmailConfig holds SMTP email configuration for device-blocked notices.
// An empty host disables email delivery.
type EmailConfig struct {
	Host     string `env:"EMAIL_HOST" env-default:""`
	Port     uint16 `env:"EMAIL_PORT" env-default:"1025"`
	Username string `env:"EMAIL_USERNAME" env-default:""`
	Password string `env:"EMAIL_PASSWORD" env-default:""`
	From     string `env:"EMAIL_FROM" env-default:"noreply@example.com"`
	TLS      bool   `env:"EMAIL_TLS" env-default:"false"`
}

// Enabled reports whether an SMTP host is configured.
func (e EmailConfig) Enabled() bool {
	return e.Host != ""
}

// ToSMTPConfig converts the config to a notice.SMTPConfig
func (e EmailConfig) ToSMTPConfig() notice.SMTPConfig {
	return notice.SMTPConfig{
		Host:     e.Host,
		Port:     int(e.Port),
		Username: e.Username,
		Password: e.Password,
		From:     e.From,
		TLS:      e.TLS,
	}
}
