// Package pluginstore gives each plugin an isolated key-value area.
//
// Entries are namespaced by plugin, user and workspace, so two plugins (or
// the same plugin under two users or workspaces) can never observe each
// other's data. An empty workspace ID addresses the plugin's user-global
// area, which is disjoint from every named workspace.
package pluginstore

import (
	"encoding/json"
	"fmt"
	"strings"

	"plugin-hub-backend/pkg/database"
	"plugin-hub-backend/pkg/models"
)

// Store is a handle to one scope's key-value area
type Store struct {
	db    database.DatabaseInterface
	scope models.StorageScope
}

// New returns a store bound to the given scope
func New(db database.DatabaseInterface, scope models.StorageScope) *Store {
	return &Store{db: db, scope: scope}
}

// Scope returns the scope this store is bound to
func (s *Store) Scope() models.StorageScope {
	return s.scope
}

func validKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("storage key must not be empty")
	}
	return nil
}

// Get reads the value for key. A key that was never set (or was removed)
// reports found=false with no error.
func (s *Store) Get(key string) (json.RawMessage, bool, error) {
	if err := validKey(key); err != nil {
		return nil, false, err
	}
	entry, err := s.db.GetStorageEntry(s.scope, key)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}
	if entry == nil {
		return nil, false, nil
	}
	return entry.Value, true, nil
}

// Set writes the value for key, overwriting any previous value
func (s *Store) Set(key string, value json.RawMessage) error {
	if err := validKey(key); err != nil {
		return err
	}
	if !json.Valid(value) {
		return fmt.Errorf("storage value must be valid JSON")
	}
	if err := s.db.SetStorageEntry(s.scope, key, value); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}
	return nil
}

// Remove deletes the value for key. Removing an absent key is a no-op.
func (s *Store) Remove(key string) error {
	if err := validKey(key); err != nil {
		return err
	}
	if err := s.db.DeleteStorageEntry(s.scope, key); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}
	return nil
}

// Keys lists every key currently set in this scope
func (s *Store) Keys() ([]string, error) {
	keys, err := s.db.ListStorageKeys(s.scope)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}
	return keys, nil
}

// Clear removes every entry in this scope. Other scopes, including the
// same plugin's other workspaces, are untouched.
func (s *Store) Clear() error {
	if err := s.db.ClearStorage(s.scope); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}
	return nil
}
