package permissions

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plugin-hub-backend/pkg/models"
)

func TestListIsStableAndDescribed(t *testing.T) {
	first := List()
	second := List()
	require.Equal(t, first, second)
	require.NotEmpty(t, first)

	for _, p := range first {
		desc, err := Describe(p)
		require.NoError(t, err)
		assert.NotEmpty(t, desc)
	}
}

func TestTokensAreNamespaced(t *testing.T) {
	for _, p := range List() {
		parts := strings.SplitN(string(p), ":", 2)
		require.Len(t, parts, 2, "token %q must be area:action", p)
		assert.NotEmpty(t, parts[0])
		assert.NotEmpty(t, parts[1])
	}
}

func TestDescribeUnknown(t *testing.T) {
	_, err := Describe("document:delete")
	assert.True(t, errors.Is(err, models.ErrUnknownPermission))
}

func TestKnown(t *testing.T) {
	assert.True(t, Known("document:read"))
	assert.False(t, Known("DOCUMENT:READ"), "tokens are case sensitive")
	assert.False(t, Known(""))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(nil))
	assert.NoError(t, Validate([]string{"storage:read", "storage:write"}))

	err := Validate([]string{"storage:read", "fs:write", "net:all"})
	require.Error(t, err)

	var permErr *models.InvalidPermissionSetError
	require.True(t, errors.As(err, &permErr))
	assert.Equal(t, []string{"fs:write", "net:all"}, permErr.Unknown)
}
