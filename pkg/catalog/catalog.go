// Package catalog implements browsing, search and publication of
// marketplace items.
package catalog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"plugin-hub-backend/pkg/database"
	"plugin-hub-backend/pkg/models"
	"plugin-hub-backend/pkg/permissions"
)

// Authorizer decides whether a caller may run moderation operations
// (featuring and removing items). The admin allow-list in the config
// package implements it.
type Authorizer interface {
	CanModerate(user *models.User) bool
}

// Service exposes the catalog operations
type Service struct {
	db   database.DatabaseInterface
	auth Authorizer
}

// NewService creates a catalog service on top of the given backend
func NewService(db database.DatabaseInterface, auth Authorizer) *Service {
	return &Service{db: db, auth: auth}
}

// Search returns the items matching the filter, newest first. Filters
// compose with AND; the free-text query matches name or description,
// case-insensitively.
func (s *Service) Search(filter models.ItemFilter) ([]models.MarketplaceItem, error) {
	items, err := s.db.ListMarketplaceItems(filter)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrBackendFault, err)
	}
	return items, nil
}

// Get fetches one item by ID
func (s *Service) Get(id string) (*models.MarketplaceItem, error) {
	item, err := s.db.GetMarketplaceItem(id)
	if err != nil {
		if err == models.ErrItemNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", models.ErrBackendFault, err)
	}
	return item, nil
}

// GetPlugin fetches one item and requires it to be a plugin. Themes and
// missing IDs both report ErrPluginNotFound, so callers cannot tell one
// absence from the other.
func (s *Service) GetPlugin(id string) (*models.MarketplaceItem, error) {
	item, err := s.Get(id)
	if err != nil {
		if err == models.ErrItemNotFound {
			return nil, models.ErrPluginNotFound
		}
		return nil, err
	}
	if item.Type != models.ItemTypePlugin {
		return nil, models.ErrPluginNotFound
	}
	return item, nil
}

// Categories returns the distinct categories currently in the catalog,
// sorted, with the "all" sentinel first
func (s *Service) Categories() ([]string, error) {
	items, err := s.db.ListMarketplaceItems(models.ItemFilter{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrBackendFault, err)
	}

	seen := map[string]bool{}
	var categories []string
	for _, item := range items {
		if item.Category != "" && !seen[item.Category] {
			seen[item.Category] = true
			categories = append(categories, item.Category)
		}
	}
	sort.Strings(categories)
	return append([]string{models.FilterCategoryAll}, categories...), nil
}

// Featured returns the items flagged by moderation, newest first
func (s *Service) Featured() ([]models.MarketplaceItem, error) {
	items, err := s.db.ListMarketplaceItems(models.ItemFilter{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrBackendFault, err)
	}
	var featured []models.MarketplaceItem
	for _, item := range items {
		if item.Featured {
			featured = append(featured, item)
		}
	}
	return featured, nil
}

// Publish validates and stores a new marketplace item authored by user
func (s *Service) Publish(user *models.User, req *models.PublishItemRequest) (*models.MarketplaceItem, error) {
	if user == nil {
		return nil, models.ErrUnauthenticated
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("item name must not be empty")
	}
	if req.Type != models.ItemTypePlugin && req.Type != models.ItemTypeTheme {
		return nil, fmt.Errorf("unsupported item type %q", req.Type)
	}
	if !models.ValidVersion(req.Version) {
		return nil, fmt.Errorf("version %q is not a valid major.minor.patch version", req.Version)
	}
	if len(req.Metadata) > 0 && !gjson.ValidBytes(req.Metadata) {
		return nil, fmt.Errorf("item metadata must be valid JSON")
	}

	// plugins must declare a valid permission set up front, so installs
	// never trip over a bad manifest later
	if req.Type == models.ItemTypePlugin {
		if err := permissions.Validate(ManifestPermissions(req.Metadata)); err != nil {
			return nil, err
		}
	}

	item := &models.MarketplaceItem{
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Type:        req.Type,
		Category:    req.Category,
		Version:     req.Version,
		AuthorID:    user.ID,
		Tags:        req.Tags,
		Metadata:    req.Metadata,
	}
	if err := s.db.CreateMarketplaceItem(item); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrBackendFault, err)
	}
	return item, nil
}

// SetFeatured flips an item's featured flag. Moderation only.
func (s *Service) SetFeatured(user *models.User, id string, featured bool) error {
	if user == nil {
		return models.ErrUnauthenticated
	}
	if !s.auth.CanModerate(user) {
		return models.ErrForbidden
	}
	if err := s.db.SetMarketplaceItemFeatured(id, featured); err != nil {
		if err == models.ErrItemNotFound {
			return err
		}
		return fmt.Errorf("%w: %v", models.ErrBackendFault, err)
	}
	return nil
}

// Delete removes an item from the catalog. Moderation only. Existing
// installations keep their pinned copy of the item's metadata.
func (s *Service) Delete(user *models.User, id string) error {
	if user == nil {
		return models.ErrUnauthenticated
	}
	if !s.auth.CanModerate(user) {
		return models.ErrForbidden
	}
	if err := s.db.DeleteMarketplaceItem(id); err != nil {
		if err == models.ErrItemNotFound {
			return err
		}
		return fmt.Errorf("%w: %v", models.ErrBackendFault, err)
	}
	return nil
}

// RecordDownload bumps an item's download counter. Failures are reported
// but callers generally treat them as non-fatal.
func (s *Service) RecordDownload(id string) error {
	if err := s.db.IncrementItemDownloads(id); err != nil {
		return fmt.Errorf("%w: %v", models.ErrBackendFault, err)
	}
	return nil
}

// ManifestPermissions extracts the declared permission tokens from item
// metadata. Metadata without a permissions array declares none.
func ManifestPermissions(metadata []byte) []string {
	if len(metadata) == 0 {
		return nil
	}
	result := gjson.GetBytes(metadata, "permissions")
	if !result.IsArray() {
		return nil
	}
	var tokens []string
	result.ForEach(func(_, value gjson.Result) bool {
		tokens = append(tokens, value.String())
		return true
	})
	return tokens
}
