package account

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

const accountsFileName = "accounts.json"

// FileAccountRepository implements AccountRepository using file-based storage
type FileAccountRepository struct {
	dataDir  string
	accounts map[uuid.UUID]Account
	mutex    sync.RWMutex
}

type accountData struct {
	Accounts []Account `json:"accounts"`
}

func NewFileAccountRepository(dataDir string) (*FileAccountRepository, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	repo := &FileAccountRepository{
		dataDir:  dataDir,
		accounts: make(map[uuid.UUID]Account),
	}
	if err := repo.load(); err != nil {
		return nil, fmt.Errorf("failed to load data: %w", err)
	}
	return repo, nil
}

func (r *FileAccountRepository) CreateAccount(ctx context.Context, account Account) (Account, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, ok := r.accounts[account.ID]; ok {
		return Account{}, ErrAccountExists
	}
	for _, existing := range r.accounts {
		if existing.Email == account.Email {
			return Account{}, ErrAccountExists
		}
	}

	r.accounts[account.ID] = account
	if err := r.save(); err != nil {
		delete(r.accounts, account.ID)
		return Account{}, fmt.Errorf("failed to save: %w", err)
	}
	return account, nil
}

func (r *FileAccountRepository) GetAccount(ctx context.Context, id uuid.UUID) (Account, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	account, ok := r.accounts[id]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return account, nil
}

func (r *FileAccountRepository) FindAccountByEmail(ctx context.Context, email string) (Account, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	for _, account := range r.accounts {
		if account.Email == email {
			return account, nil
		}
	}
	return Account{}, ErrAccountNotFound
}

func (r *FileAccountRepository) UpdatePassword(ctx context.Context, id uuid.UUID, hash string, changedAt time.Time) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	previous, ok := r.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	updated := previous
	updated.PasswordHash = hash
	updated.PasswordChangedAt = &changedAt
	updated.UpdatedAt = changedAt
	r.accounts[id] = updated

	if err := r.save(); err != nil {
		r.accounts[id] = previous
		return fmt.Errorf("failed to save: %w", err)
	}
	return nil
}

func (r *FileAccountRepository) load() error {
	data, err := os.ReadFile(filepath.Join(r.dataDir, accountsFileName))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	var fileData accountData
	if err := json.Unmarshal(data, &fileData); err != nil {
		return fmt.Errorf("failed to unmarshal data: %w", err)
	}
	for _, account := range fileData.Accounts {
		r.accounts[account.ID] = account
	}
	return nil
}

func (r *FileAccountRepository) save() error {
	filePath := filepath.Join(r.dataDir, accountsFileName)

	fileData := accountData{Accounts: make([]Account, 0, len(r.accounts))}
	for _, account := range r.accounts {
		fileData.Accounts = append(fileData.Accounts, account)
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
