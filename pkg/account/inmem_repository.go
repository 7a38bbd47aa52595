package account

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemAccountRepository implements AccountRepository using in-memory maps
type InMemAccountRepository struct {
	accounts map[uuid.UUID]Account
	byEmail  map[string]uuid.UUID
	mu       sync.RWMutex
}

func NewInMemAccountRepository() *InMemAccountRepository {
	return &InMemAccountRepository{
		accounts: make(map[uuid.UUID]Account),
		byEmail:  make(map[string]uuid.UUID),
	}
}

func (r *InMemAccountRepository) CreateAccount(ctx context.Context, account Account) (Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.accounts[account.ID]; ok {
		return Account{}, ErrAccountExists
	}
	if _, ok := r.byEmail[account.Email]; ok {
		return Account{}, ErrAccountExists
	}
	r.accounts[account.ID] = account
	r.byEmail[account.Email] = account.ID
	return account, nil
}

func (r *InMemAccountRepository) GetAccount(ctx context.Context, id uuid.UUID) (Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, ok := r.accounts[id]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return account, nil
}

func (r *InMemAccountRepository) FindAccountByEmail(ctx context.Context, email string) (Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return r.accounts[id], nil
}

func (r *InMemAccountRepository) UpdatePassword(ctx context.Context, id uuid.UUID, hash string, changedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	account.PasswordHash = hash
	account.PasswordChangedAt = &changedAt
	account.UpdatedAt = changedAt
	r.accounts[id] = account
	return nil
}
