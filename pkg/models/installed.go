package models

import (
	"encoding/json"
	"time"
)

// InstalledPlugin represents one user's installation of a plugin-type
// marketplace item. Name, version, description and metadata are pinned at
// install time; later catalog edits do not alter an existing installation.
type InstalledPlugin struct {
	ID            string                 `json:"id" db:"id"`
	UserID        string                 `json:"user_id" db:"user_id"`
	PluginID      string                 `json:"plugin_id" db:"plugin_id"`
	Name          string                 `json:"name" db:"name"`
	Version       string                 `json:"version" db:"version"`
	Description   string                 `json:"description,omitempty" db:"description"`
	Metadata      json.RawMessage        `json:"metadata,omitempty" db:"metadata"`
	Enabled       bool                   `json:"enabled" db:"enabled"`
	Configuration map[string]interface{} `json:"configuration" db:"configuration"`
	InstalledAt   time.Time              `json:"installed_at" db:"installed_at"`
}

// ConfigPatch is a partial configuration object merged key-by-key into an
// installation's configuration. Keys absent from the patch are preserved.
type ConfigPatch map[string]interface{}
