package pin

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// InMemPinRepository implements PinRepository using an in-memory map
type InMemPinRepository struct {
	pins map[uuid.UUID]PinCredential
	mu   sync.RWMutex
}

func NewInMemPinRepository() *InMemPinRepository {
	return &InMemPinRepository{pins: make(map[uuid.UUID]PinCredential)}
}

func (r *InMemPinRepository) GetPin(ctx context.Context, accountID uuid.UUID) (PinCredential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	credential, ok := r.pins[accountID]
	if !ok {
		return PinCredential{}, ErrPinNotFound
	}
	return credential, nil
}

func (r *InMemPinRepository) CreatePin(ctx context.Context, credential PinCredential) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.pins[credential.AccountID]; ok {
		return ErrPinExists
	}
	r.pins[credential.AccountID] = credential
	return nil
}

func (r *InMemPinRepository) DeletePin(ctx context.Context, accountID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.pins, accountID)
	return nil
}
