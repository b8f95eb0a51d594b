package models

import (
	"encoding/json"
	"regexp"
	"time"
)

// Marketplace item types
const (
	ItemTypePlugin = "plugin"
	ItemTypeTheme  = "theme"
)

// Sentinel filter values sent by the marketplace UI. "installed" is handled
// by the installed-plugins endpoint, "all" means no category restriction.
const (
	FilterTypeInstalled = "installed"
	FilterCategoryAll   = "all"
)

// MarketplaceItem represents a publishable artifact (plugin or theme)
type MarketplaceItem struct {
	ID          string          `json:"id" db:"id"`
	Name        string          `json:"name" db:"name"`
	Description string          `json:"description,omitempty" db:"description"`
	Type        string          `json:"type" db:"type"`
	Category    string          `json:"category,omitempty" db:"category"`
	Version     string          `json:"version" db:"version"`
	AuthorID    string          `json:"author_id" db:"author_id"`
	Tags        []string        `json:"tags,omitempty" db:"tags"`
	Metadata    json.RawMessage `json:"metadata,omitempty" db:"metadata"`
	Downloads   int             `json:"downloads" db:"downloads"`
	Rating      float64         `json:"rating" db:"rating"`
	Featured    bool            `json:"featured" db:"featured"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// ItemFilter is the recognized filter configuration for catalog queries.
// Absent fields impose no restriction; filters compose with AND.
type ItemFilter struct {
	Type     string `json:"type,omitempty"`
	Category string `json:"category,omitempty"`
	Query    string `json:"query,omitempty"`
}

// versionPattern: major.minor.patch with non-negative integers
var versionPattern = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

// ValidVersion reports whether v is a well-formed semantic version string.
func ValidVersion(v string) bool {
	return versionPattern.MatchString(v)
}

// PublishItemRequest is the request payload for publishing a marketplace item
type PublishItemRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Type        string          `json:"type"`
	Category    string          `json:"category"`
	Version     string          `json:"version"`
	Tags        []string        `json:"tags,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
}
