package authkit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryCredentialStore is an in-memory credential store intended for tests
// and local runs without a database.
type MemoryCredentialStore struct {
	mutex      sync.Mutex
	byID       map[string]*Credential
	byUsername map[string]string
	byEmail    map[string]string
}

// NewMemoryCredentialStore creates an empty in-memory store.
func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{
		byID:       make(map[string]*Credential),
		byUsername: make(map[string]string),
		byEmail:    make(map[string]string),
	}
}

// CreateCredential inserts a new identity record, assigning an id when absent.
func (store *MemoryCredentialStore) CreateCredential(ctx context.Context, credential *Credential) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	username := strings.ToLower(strings.TrimSpace(credential.Username))
	email := strings.ToLower(strings.TrimSpace(credential.Email))
	if _, taken := store.byUsername[username]; taken {
		return fmt.Errorf("memory_credential_store.create: %w", ErrDuplicateIdentity)
	}
	if _, taken := store.byEmail[email]; taken {
		return fmt.Errorf("memory_credential_store.create: %w", ErrDuplicateIdentity)
	}

	if credential.ID == "" {
		credential.ID = uuid.NewString()
	}
	credential.Username = username
	credential.Email = email
	now := time.Now().UTC()
	credential.CreatedAt = now
	credential.UpdatedAt = now

	clone := *credential
	store.byID[credential.ID] = &clone
	store.byUsername[username] = credential.ID
	store.byEmail[email] = credential.ID
	return nil
}

// FindCredentialByLogin matches the identifier against username or email,
// case-insensitively.
func (store *MemoryCredentialStore) FindCredentialByLogin(ctx context.Context, identifier string) (*Credential, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	normalized := strings.ToLower(strings.TrimSpace(identifier))
	if id, ok := store.byUsername[normalized]; ok {
		return store.cloneLocked(id)
	}
	if id, ok := store.byEmail[normalized]; ok {
		return store.cloneLocked(id)
	}
	return nil, fmt.Errorf("memory_credential_store.find_by_login: %w", ErrCredentialNotFound)
}

// FindCredentialByID returns the record for the given id.
func (store *MemoryCredentialStore) FindCredentialByID(ctx context.Context, id string) (*Credential, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return store.cloneLocked(id)
}

// SetRefreshToken unconditionally overwrites the refresh slot.
func (store *MemoryCredentialStore) SetRefreshToken(ctx context.Context, id string, token string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	record, ok := store.byID[id]
	if !ok {
		return fmt.Errorf("memory_credential_store.set_refresh: %w", ErrCredentialNotFound)
	}
	record.CurrentRefreshToken = token
	record.UpdatedAt = time.Now().UTC()
	return nil
}

// SwapRefreshToken replaces the slot only if it still equals the presented
// value.
func (store *MemoryCredentialStore) SwapRefreshToken(ctx context.Context, id string, presented string, next string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	record, ok := store.byID[id]
	if !ok {
		return fmt.Errorf("memory_credential_store.swap_refresh: %w", ErrCredentialNotFound)
	}
	if record.CurrentRefreshToken != presented {
		return fmt.Errorf("memory_credential_store.swap_refresh: %w", ErrRefreshTokenMismatch)
	}
	record.CurrentRefreshToken = next
	record.UpdatedAt = time.Now().UTC()
	return nil
}

// ClearRefreshToken empties the slot. Idempotent.
func (store *MemoryCredentialStore) ClearRefreshToken(ctx context.Context, id string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	record, ok := store.byID[id]
	if !ok {
		return fmt.Errorf("memory_credential_store.clear_refresh: %w", ErrCredentialNotFound)
	}
	record.CurrentRefreshToken = ""
	record.UpdatedAt = time.Now().UTC()
	return nil
}

// UpdatePasswordHash replaces the stored password hash.
func (store *MemoryCredentialStore) UpdatePasswordHash(ctx context.Context, id string, passwordHash string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	record, ok := store.byID[id]
	if !ok {
		return fmt.Errorf("memory_credential_store.update_password: %w", ErrCredentialNotFound)
	}
	record.PasswordHash = passwordHash
	record.UpdatedAt = time.Now().UTC()
	return nil
}

func (store *MemoryCredentialStore) cloneLocked(id string) (*Credential, error) {
	record, ok := store.byID[id]
	if !ok {
		return nil, fmt.Errorf("memory_credential_store.find_by_id: %w", ErrCredentialNotFound)
	}
	clone := *record
	return &clone, nil
}
