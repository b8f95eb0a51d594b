package models

import (
	"encoding/json"
	"time"
)

// StorageScope is the (pluginID, userID, workspaceID) composite that
// isolates one plugin's persisted data from all others. An empty
// WorkspaceID means the data is global to the user, not workspace-specific.
type StorageScope struct {
	PluginID    string `json:"plugin_id"`
	UserID      string `json:"user_id"`
	WorkspaceID string `json:"workspace_id,omitempty"`
}

// PluginStorageEntry is a single scoped key/value pair. The physical key is
// always the full (plugin_id, user_id, workspace_id, key) composite.
type PluginStorageEntry struct {
	PluginID    string          `json:"plugin_id" db:"plugin_id"`
	UserID      string          `json:"user_id" db:"user_id"`
	WorkspaceID string          `json:"workspace_id,omitempty" db:"workspace_id"`
	Key         string          `json:"key" db:"key"`
	Value       json.RawMessage `json:"value" db:"value"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}
