package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssuerSignVerify(t *testing.T) {
	iss := NewIssuer("0123456789abcdef-secret", time.Hour)
	tok, signed, exp, err := iss.Sign(Claims{Subject: "user-1", TenantID: "tenant-1", Roles: []string{"tenant_admin"}})
	require.NoError(t, err)
	assert.NotEmpty(t, signed.JWTID)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	got, err := iss.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, signed, got)
}

func TestIssuerRejectsForeignKeyAndExpiry(t *testing.T) {
	iss := NewIssuer("0123456789abcdef-secret", time.Hour)
	other := NewIssuer("another-secret-0123456789", time.Hour)
	tok, _, _, err := other.Sign(Claims{Subject: "user-1"})
	require.NoError(t, err)
	_, err = iss.Verify(tok)
	assert.Error(t, err)

	past := NewIssuer("0123456789abcdef-secret", time.Minute)
	past.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	tok, _, _, err = past.Sign(Claims{Subject: "user-1"})
	require.NoError(t, err)
	_, err = iss.Verify(tok)
	assert.Error(t, err)
}

func TestValidatePassword(t *testing.T) {
	assert.Error(t, ValidatePassword("short"))
	assert.NoError(t, ValidatePassword("long-enough"))
	hash, err := HashPassword("long-enough")
	require.NoError(t, err)
	assert.NoError(t, CheckPassword(hash, "long-enough"))
	assert.Error(t, CheckPassword(hash, "wrong-one"))
}
