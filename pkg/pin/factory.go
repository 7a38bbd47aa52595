package pin

import (
	"fmt"
)

// RepositoryConfig contains configuration for creating a PIN repository
type RepositoryConfig struct {
	DB      DBTX
	DataDir string
}

// NewPinRepository creates a PIN repository based on the persistence type
func NewPinRepository(persistenceType string, config RepositoryConfig) (PinRepository, error) {
	switch persistenceType {
	case "postgres", "postgresql":
		if config.DB == nil {
			return nil, fmt.Errorf("db required for postgres repository")
		}
		return NewPostgresPinRepository(config.DB), nil
	case "file":
		if config.DataDir == "" {
			return nil, fmt.Errorf("dataDir required for file repository")
		}
		return NewFilePinRepository(config.DataDir)
	case "memory":
		return NewInMemPinRepository(), nil
	default:
		return nil, fmt.Errorf("unsupported persistence type: %s (supported: postgres, file, memory)", persistenceType)
	}
}
