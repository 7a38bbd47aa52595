package pin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

const pinsFileName = "pins.json"

// FilePinRepository implements PinRepository using file-based storage
type FilePinRepository struct {
	dataDir string
	pins    map[uuid.UUID]PinCredential
	mutex   sync.RWMutex
}

type pinData struct {
	Pins []PinCredential `json:"pins"`
}

func NewFilePinRepository(dataDir string) (*FilePinRepository, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	repo := &FilePinRepository{
		dataDir: dataDir,
		pins:    make(map[uuid.UUID]PinCredential),
	}
	if err := repo.load(); err != nil {
		return nil, fmt.Errorf("failed to load data: %w", err)
	}
	return repo, nil
}

func (r *FilePinRepository) GetPin(ctx context.Context, accountID uuid.UUID) (PinCredential, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	credential, ok := r.pins[accountID]
	if !ok {
		return PinCredential{}, ErrPinNotFound
	}
	return credential, nil
}

func (r *FilePinRepository) CreatePin(ctx context.Context, credential PinCredential) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, ok := r.pins[credential.AccountID]; ok {
		return ErrPinExists
	}
	r.pins[credential.AccountID] = credential
	if err := r.save(); err != nil {
		delete(r.pins, credential.AccountID)
		return fmt.Errorf("failed to save: %w", err)
	}
	return nil
}

func (r *FilePinRepository) DeletePin(ctx context.Context, accountID uuid.UUID) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	previous, ok := r.pins[accountID]
	if !ok {
		return nil
	}
	delete(r.pins, accountID)
	if err := r.save(); err != nil {
		r.pins[accountID] = previous
		return fmt.Errorf("failed to save: %w", err)
	}
	return nil
}

func (r *FilePinRepository) load() error {
	data, err := os.ReadFile(filepath.Join(r.dataDir, pinsFileName))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	var fileData pinData
	if err := json.Unmarshal(data, &fileData); err != nil {
		return fmt.Errorf("failed to unmarshal data: %w", err)
	}
	for _, credential := range fileData.Pins {
		r.pins[credential.AccountID] = credential
	}
	return nil
}

func (r *FilePinRepository) save() error {
	filePath := filepath.Join(r.dataDir, pinsFileName)

	fileData := pinData{Pins: make([]PinCredential, 0, len(r.pins))}
	for _, credential := range r.pins {
		fileData.Pins = append(fileData.Pins, credential)
	}

	data, err := json.MarshalIndent(fileData, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	tempFile := filePath + ".tmp"
	if err := os.WriteFile(tempFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tempFile, filePath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
