package account

import (
	"fmt"
)

// RepositoryConfig contains configuration for creating an account repository
type RepositoryConfig struct {
	DB      DBTX
	DataDir string
}

// NewAccountRepository creates an account repository based on the persistence type
func NewAccountRepository(persistenceType string, config RepositoryConfig) (AccountRepository, error) {
	switch persistenceType {
	case "postgres", "postgresql":
		if config.DB == nil {
			return nil, fmt.Errorf("db required for postgres repository")
		}
		return NewPostgresAccountRepository(config.DB), nil
	case "file":
		if config.DataDir == "" {
			return nil, fmt.Errorf("dataDir required for file repository")
		}
		return NewFileAccountRepository(config.DataDir)
	case "memory":
		return NewInMemAccountRepository(), nil
	default:
		return nil, fmt.Errorf("unsupported persistence type: %s (supported: postgres, file, memory)", persistenceType)
	}
}
