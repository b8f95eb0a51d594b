package database

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"plugin-hub-backend/pkg/models"
)

// SupabaseDatabase talks to the hosted store through the Supabase REST API
type SupabaseDatabase struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewSupabaseDatabase creates a Supabase-backed database instance
func NewSupabaseDatabase(rawURL, key string) DatabaseInterface {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "https://" + rawURL
	}

	return &SupabaseDatabase{
		baseURL: rawURL,
		apiKey:  key,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// restError preserves the HTTP status so callers can map conflicts
type restError struct {
	status int
	body   string
}

func (e *restError) Error() string {
	return fmt.Sprintf("API request failed with status %d: %s", e.status, e.body)
}

// makeRequest sends one request to the Supabase REST endpoint
func (db *SupabaseDatabase) makeRequest(method, endpoint string, body interface{}) ([]byte, error) {
	var reqBody io.Reader

	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	reqURL := db.baseURL + "/rest/v1" + endpoint
	req, err := http.NewRequest(method, reqURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("apikey", db.apiKey)
	req.Header.Set("Authorization", "Bearer "+db.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=representation")

	resp, err := db.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &restError{status: resp.StatusCode, body: string(respBody)}
	}

	return respBody, nil
}

func q(v string) string {
	return url.QueryEscape(v)
}

// restQuote wraps a value for use inside a PostgREST filter expression.
// Double-quoting neutralizes the characters PostgREST treats as syntax
// (commas, parentheses, dots), so user input cannot break out of the filter.
func restQuote(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `"`, `\"`)
	return `"` + v + `"`
}

// searchOrExpr builds the or= expression matching the substring query
// against name and description
func searchOrExpr(query string) string {
	pattern := restQuote("*" + query + "*")
	return fmt.Sprintf("(name.ilike.%s,description.ilike.%s)", pattern, pattern)
}

// ================= Users =================

// CreateUser inserts a user row
func (db *SupabaseDatabase) CreateUser(user *models.User) error {
	payload := map[string]interface{}{
		"email":         user.Email,
		"password_hash": user.Password,
		"name":          user.Name,
	}
	data, err := db.makeRequest("POST", "/users", payload)
	if err != nil {
		return err
	}
	var rows []models.User
	if err := json.Unmarshal(data, &rows); err == nil && len(rows) > 0 {
		user.ID = rows[0].ID
		user.CreatedAt = rows[0].CreatedAt
		user.UpdatedAt = rows[0].UpdatedAt
	}
	return nil
}

// GetUserByEmail finds a user by email
func (db *SupabaseDatabase) GetUserByEmail(email string) (*models.User, error) {
	data, err := db.makeRequest("GET", "/users?email=eq."+q(email)+"&select=*", nil)
	if err != nil {
		return nil, err
	}
	var rows []models.User
	if err := json.Unmarshal(data, &rows); err != nil || len(rows) == 0 {
		return nil, fmt.Errorf("user not found")
	}
	return &rows[0], nil
}

// GetUserByID finds a user by id
func (db *SupabaseDatabase) GetUserByID(id string) (*models.User, error) {
	data, err := db.makeRequest("GET", "/users?id=eq."+q(id)+"&select=*", nil)
	if err != nil {
		return nil, err
	}
	var rows []models.User
	if err := json.Unmarshal(data, &rows); err != nil || len(rows) == 0 {
		return nil, fmt.Errorf("user not found")
	}
	return &rows[0], nil
}

// ================= Marketplace items =================

// CreateMarketplaceItem inserts a catalog row
func (db *SupabaseDatabase) CreateMarketplaceItem(item *models.MarketplaceItem) error {
	meta := item.Metadata
	if len(meta) == 0 {
		meta = json.RawMessage(`{}`)
	}
	payload := map[string]interface{}{
		"name":        item.Name,
		"description": item.Description,
		"type":        item.Type,
		"category":    item.Category,
		"version":     item.Version,
		"author_id":   item.AuthorID,
		"tags":        item.Tags,
		"metadata":    meta,
		"featured":    item.Featured,
	}
	data, err := db.makeRequest("POST", "/marketplace_items", payload)
	if err != nil {
		return err
	}
	var rows []models.MarketplaceItem
	if err := json.Unmarshal(data, &rows); err == nil && len(rows) > 0 {
		item.ID = rows[0].ID
		item.CreatedAt = rows[0].CreatedAt
	}
	return nil
}

// GetMarketplaceItem fetches one catalog row
func (db *SupabaseDatabase) GetMarketplaceItem(id string) (*models.MarketplaceItem, error) {
	data, err := db.makeRequest("GET", "/marketplace_items?id=eq."+q(id)+"&select=*", nil)
	if err != nil {
		return nil, err
	}
	var rows []models.MarketplaceItem
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse marketplace item: %w", err)
	}
	if len(rows) == 0 {
		return nil, models.ErrItemNotFound
	}
	return &rows[0], nil
}

// ListMarketplaceItems lists catalog rows matching the filter, newest first.
// Type and category become eq. filters; the substring query uses PostgREST
// ilike on name/description.
func (db *SupabaseDatabase) ListMarketplaceItems(filter models.ItemFilter) ([]models.MarketplaceItem, error) {
	endpoint := "/marketplace_items?select=*&order=created_at.desc"
	if filter.Type != "" && filter.Type != models.FilterTypeInstalled {
		endpoint += "&type=eq." + q(filter.Type)
	}
	if filter.Category != "" && filter.Category != models.FilterCategoryAll {
		endpoint += "&category=eq." + q(filter.Category)
	}
	if filter.Query != "" {
		endpoint += "&or=" + q(searchOrExpr(filter.Query))
	}

	data, err := db.makeRequest("GET", endpoint, nil)
	if err != nil {
		return nil, err
	}
	var rows []models.MarketplaceItem
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse marketplace items: %w", err)
	}
	return rows, nil
}

// SetMarketplaceItemFeatured flips the moderation flag
func (db *SupabaseDatabase) SetMarketplaceItemFeatured(id string, featured bool) error {
	data, err := db.makeRequest("PATCH", "/marketplace_items?id=eq."+q(id), map[string]interface{}{
		"featured": featured,
	})
	if err != nil {
		return err
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(data, &rows); err == nil && len(rows) == 0 {
		return models.ErrItemNotFound
	}
	return nil
}

// DeleteMarketplaceItem removes a catalog row
func (db *SupabaseDatabase) DeleteMarketplaceItem(id string) error {
	data, err := db.makeRequest("DELETE", "/marketplace_items?id=eq."+q(id), nil)
	if err != nil {
		return err
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(data, &rows); err == nil && len(rows) == 0 {
		return models.ErrItemNotFound
	}
	return nil
}

// IncrementItemDownloads bumps the download counter via an RPC function
// (plain PATCH cannot express downloads = downloads + 1)
func (db *SupabaseDatabase) IncrementItemDownloads(id string) error {
	_, err := db.makeRequest("POST", "/rpc/increment_item_downloads", map[string]interface{}{
		"item_id": id,
	})
	return err
}

// ================= Installed plugins =================

// CreateInstalledPlugin inserts an installation row. The table's unique
// constraint on (user_id, plugin_id) surfaces as HTTP 409, which we map
// back to ErrAlreadyInstalled.
func (db *SupabaseDatabase) CreateInstalledPlugin(p *models.InstalledPlugin) error {
	meta := p.Metadata
	if len(meta) == 0 {
		meta = json.RawMessage(`{}`)
	}
	cfg := p.Configuration
	if cfg == nil {
		cfg = map[string]interface{}{}
	}
	payload := map[string]interface{}{
		"user_id":       p.UserID,
		"plugin_id":     p.PluginID,
		"name":          p.Name,
		"version":       p.Version,
		"description":   p.Description,
		"metadata":      meta,
		"enabled":       p.Enabled,
		"configuration": cfg,
	}
	data, err := db.makeRequest("POST", "/installed_plugins", payload)
	if err != nil {
		var re *restError
		if errors.As(err, &re) && re.status == http.StatusConflict {
			return models.ErrAlreadyInstalled
		}
		return err
	}
	var rows []models.InstalledPlugin
	if err := json.Unmarshal(data, &rows); err == nil && len(rows) > 0 {
		p.ID = rows[0].ID
		p.InstalledAt = rows[0].InstalledAt
	}
	return nil
}

// GetInstalledPlugin fetches one installation row
func (db *SupabaseDatabase) GetInstalledPlugin(userID, pluginID string) (*models.InstalledPlugin, error) {
	endpoint := "/installed_plugins?user_id=eq." + q(userID) + "&plugin_id=eq." + q(pluginID) + "&select=*"
	data, err := db.makeRequest("GET", endpoint, nil)
	if err != nil {
		return nil, err
	}
	var rows []models.InstalledPlugin
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse installed plugin: %w", err)
	}
	if len(rows) == 0 {
		return nil, models.ErrNotInstalled
	}
	return &rows[0], nil
}

// ListInstalledPlugins lists a user's installations, newest first
func (db *SupabaseDatabase) ListInstalledPlugins(userID string) ([]models.InstalledPlugin, error) {
	endpoint := "/installed_plugins?user_id=eq." + q(userID) + "&select=*&order=installed_at.desc"
	data, err := db.makeRequest("GET", endpoint, nil)
	if err != nil {
		return nil, err
	}
	var rows []models.InstalledPlugin
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse installed plugins: %w", err)
	}
	return rows, nil
}

// SetInstalledPluginEnabled toggles the enabled flag
func (db *SupabaseDatabase) SetInstalledPluginEnabled(userID, pluginID string, enabled bool) error {
	endpoint := "/installed_plugins?user_id=eq." + q(userID) + "&plugin_id=eq." + q(pluginID)
	data, err := db.makeRequest("PATCH", endpoint, map[string]interface{}{"enabled": enabled})
	if err != nil {
		return err
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(data, &rows); err == nil && len(rows) == 0 {
		return models.ErrNotInstalled
	}
	return nil
}

// UpdateInstalledPluginConfiguration replaces the stored configuration
func (db *SupabaseDatabase) UpdateInstalledPluginConfiguration(userID, pluginID string, configuration map[string]interface{}) error {
	if configuration == nil {
		configuration = map[string]interface{}{}
	}
	endpoint := "/installed_plugins?user_id=eq." + q(userID) + "&plugin_id=eq." + q(pluginID)
	data, err := db.makeRequest("PATCH", endpoint, map[string]interface{}{"configuration": configuration})
	if err != nil {
		return err
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(data, &rows); err == nil && len(rows) == 0 {
		return models.ErrNotInstalled
	}
	return nil
}

// DeleteInstalledPlugin hard-deletes an installation row
func (db *SupabaseDatabase) DeleteInstalledPlugin(userID, pluginID string) error {
	endpoint := "/installed_plugins?user_id=eq." + q(userID) + "&plugin_id=eq." + q(pluginID)
	data, err := db.makeRequest("DELETE", endpoint, nil)
	if err != nil {
		return err
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(data, &rows); err == nil && len(rows) == 0 {
		return models.ErrNotInstalled
	}
	return nil
}

// ================= Plugin storage =================

func storageScopeQuery(scope models.StorageScope) string {
	return "plugin_id=eq." + q(scope.PluginID) +
		"&user_id=eq." + q(scope.UserID) +
		"&workspace_id=eq." + q(scope.WorkspaceID)
}

// GetStorageEntry reads one scoped entry; a missing key is (nil, nil)
func (db *SupabaseDatabase) GetStorageEntry(scope models.StorageScope, key string) (*models.PluginStorageEntry, error) {
	endpoint := "/plugin_storage?" + storageScopeQuery(scope) + "&key=eq." + q(key) + "&select=*"
	data, err := db.makeRequest("GET", endpoint, nil)
	if err != nil {
		return nil, err
	}
	var rows []models.PluginStorageEntry
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse storage entry: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// SetStorageEntry upserts one scoped entry
func (db *SupabaseDatabase) SetStorageEntry(scope models.StorageScope, key string, value json.RawMessage) error {
	payload := map[string]interface{}{
		"plugin_id":    scope.PluginID,
		"user_id":      scope.UserID,
		"workspace_id": scope.WorkspaceID,
		"key":          key,
		"value":        value,
		"updated_at":   time.Now().Format(time.RFC3339),
	}
	// on_conflict upsert against the composite primary key
	endpoint := "/plugin_storage?on_conflict=plugin_id,user_id,workspace_id,key"
	req, err := http.NewRequest("POST", db.baseURL+"/rest/v1"+endpoint, bytes.NewBuffer(mustJSON(payload)))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("apikey", db.apiKey)
	req.Header.Set("Authorization", "Bearer "+db.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "resolution=merge-duplicates,return=representation")

	resp, err := db.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return &restError{status: resp.StatusCode, body: string(respBody)}
	}
	return nil
}

func mustJSON(v interface{}) []byte {
	b, _ := json.Marshal(v)
	return b
}

// DeleteStorageEntry removes one scoped entry; missing keys are a no-op
func (db *SupabaseDatabase) DeleteStorageEntry(scope models.StorageScope, key string) error {
	endpoint := "/plugin_storage?" + storageScopeQuery(scope) + "&key=eq." + q(key)
	_, err := db.makeRequest("DELETE", endpoint, nil)
	return err
}

// ListStorageKeys lists the keys in one scope
func (db *SupabaseDatabase) ListStorageKeys(scope models.StorageScope) ([]string, error) {
	endpoint := "/plugin_storage?" + storageScopeQuery(scope) + "&select=key"
	data, err := db.makeRequest("GET", endpoint, nil)
	if err != nil {
		return nil, err
	}
	var rows []struct {
		Key string `json:"key"`
	}
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse storage keys: %w", err)
	}
	keys := make([]string, 0, len(rows))
	for _, r := range rows {
		keys = append(keys, r.Key)
	}
	return keys, nil
}

// ClearStorage removes every entry in one exact scope
func (db *SupabaseDatabase) ClearStorage(scope models.StorageScope) error {
	_, err := db.makeRequest("DELETE", "/plugin_storage?"+storageScopeQuery(scope), nil)
	return err
}

// ClearStorageAllWorkspaces removes a plugin's entries for a user across
// every workspace
func (db *SupabaseDatabase) ClearStorageAllWorkspaces(pluginID, userID string) error {
	endpoint := "/plugin_storage?plugin_id=eq." + q(pluginID) + "&user_id=eq." + q(userID)
	_, err := db.makeRequest("DELETE", endpoint, nil)
	return err
}

// HealthCheck runs a trivial request against the REST endpoint
func (db *SupabaseDatabase) HealthCheck() error {
	_, err := db.makeRequest("GET", "/", nil)
	return err
}

// Close is a no-op for the HTTP client
func (db *SupabaseDatabase) Close() error {
	return nil
}
