// Package permissions holds the fixed catalog of capabilities a plugin
// manifest may declare. Tokens are defined at build time and never created
// dynamically; enforcement at execution time happens elsewhere.
package permissions

import (
	"plugin-hub-backend/pkg/models"
)

// Permission is a capability token, namespaced as "<area>:<action>".
type Permission string

const (
	DocumentRead  Permission = "document:read"
	DocumentWrite Permission = "document:write"

	UIComponents    Permission = "ui:components"
	UINotifications Permission = "ui:notifications"

	StorageRead  Permission = "storage:read"
	StorageWrite Permission = "storage:write"

	NetworkRequest Permission = "network:request"

	SystemClipboard Permission = "system:clipboard"
	SystemCommands  Permission = "system:commands"

	PluginMessaging Permission = "plugin:messaging"

	UserProfile Permission = "user:profile"
)

type entry struct {
	token       Permission
	description string
}

// registry is the full enumerated set, in stable declaration order.
var registry = []entry{
	{DocumentRead, "Read the content and structure of the user's documents"},
	{DocumentWrite, "Modify the content and structure of the user's documents"},
	{UIComponents, "Render panels, toolbar buttons and other UI components"},
	{UINotifications, "Show in-app notifications to the user"},
	{StorageRead, "Read the plugin's own scoped storage"},
	{StorageWrite, "Write to the plugin's own scoped storage"},
	{NetworkRequest, "Make outbound network requests"},
	{SystemClipboard, "Read from and write to the system clipboard"},
	{SystemCommands, "Register commands in the command palette"},
	{PluginMessaging, "Exchange messages with other installed plugins"},
	{UserProfile, "Read the user's display name and avatar"},
}

var descriptions = func() map[Permission]string {
	m := make(map[Permission]string, len(registry))
	for _, e := range registry {
		m[e.token] = e.description
	}
	return m
}()

// List returns every known permission in declaration order.
func List() []Permission {
	out := make([]Permission, len(registry))
	for i, e := range registry {
		out[i] = e.token
	}
	return out
}

// Describe returns the human description of a permission token.
func Describe(p Permission) (string, error) {
	desc, ok := descriptions[p]
	if !ok {
		return "", models.ErrUnknownPermission
	}
	return desc, nil
}

// Known reports whether the token is part of the enumerated set.
func Known(token string) bool {
	_, ok := descriptions[Permission(token)]
	return ok
}

// Validate checks a declared permission set against the registry. On
// failure the returned error carries the exact subset of unknown tokens.
func Validate(tokens []string) error {
	var unknown []string
	for _, t := range tokens {
		if !Known(t) {
			unknown = append(unknown, t)
		}
	}
	if len(unknown) > 0 {
		return &models.InvalidPermissionSetError{Unknown: unknown}
	}
	return nil
}
