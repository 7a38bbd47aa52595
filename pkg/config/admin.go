package config

// AdminConfig describes the administrator created on an empty installation.
// An empty email disables the bootstrap.
type AdminConfig struct {
	Email       string `env:"ADMIN_EMAIL" env-default:""`
	Password    string `env:"ADMIN_PASSWORD" env-default:""`
	DisplayName string `env:"ADMIN_DISPLAY_NAME" env-default:"Administrator"`
}

func (a AdminConfig) Enabled() bool {
	return a.Email != ""
}
