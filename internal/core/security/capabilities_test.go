package security

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dentalstock/internal/core/apperror"
)

func signed(t *testing.T, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func TestFromToken_Permissions(t *testing.T) {
	token := signed(t, Claims{
		UserID:      "nv-01",
		Permissions: []string{PermissionExportCreate, PermissionLinesEdit},
	})

	caps, claims, err := FromToken(token)
	require.NoError(t, err)

	assert.Equal(t, "nv-01", claims.UserID)
	assert.False(t, caps.CanImport)
	assert.True(t, caps.CanExport)
	assert.True(t, caps.CanEditLines)

	err = caps.RequireImport()
	assert.True(t, apperror.HasCode(err, apperror.CodeForbidden))
	assert.NoError(t, caps.RequireExport())
}

func TestFromToken_Admin(t *testing.T) {
	caps, _, err := FromToken(signed(t, Claims{UserID: "root", IsAdmin: true}))
	require.NoError(t, err)
	assert.Equal(t, Full(), caps)
}

func TestFromToken_Malformed(t *testing.T) {
	_, _, err := FromToken("not-a-token")
	assert.Error(t, err)
}
