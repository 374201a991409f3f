package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "anchorid/pkg/domain-errors"
)

func TestValidateClaims(t *testing.T) {
	valid := map[string]any{"firstName": "Jane", "lastName": "Doe", "verified": true}

	t.Run("accepts schema-conforming claims", func(t *testing.T) {
		assert.NoError(t, ValidateClaims(TypeIdentity, valid))
	})

	t.Run("accepts optional attribute", func(t *testing.T) {
		claims := map[string]any{"firstName": "Jane", "lastName": "Doe", "verified": true, "country": "NL"}
		assert.NoError(t, ValidateClaims(TypeIdentity, claims))
	})

	t.Run("rejects missing required claim", func(t *testing.T) {
		err := ValidateClaims(TypeIdentity, map[string]any{"firstName": "Jane", "verified": true})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("rejects undeclared claim", func(t *testing.T) {
		claims := map[string]any{"firstName": "Jane", "lastName": "Doe", "verified": true, "ssn": "123"}
		err := ValidateClaims(TypeIdentity, claims)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("rejects wrong attribute type", func(t *testing.T) {
		claims := map[string]any{"firstName": "Jane", "lastName": "Doe", "verified": "yes"}
		err := ValidateClaims(TypeIdentity, claims)
		require.Error(t, err)
	})

	t.Run("rejects unknown credential type", func(t *testing.T) {
		err := ValidateClaims(CredentialType("DriversLicense"), valid)
		require.Error(t, err)
	})

	t.Run("age credential accepts float64 from JSON decoding", func(t *testing.T) {
		assert.NoError(t, ValidateClaims(TypeAge, map[string]any{"age": float64(42)}))
	})
}

func TestHasAttribute(t *testing.T) {
	assert.True(t, HasAttribute(TypeIdentity, "verified"))
	assert.True(t, HasAttribute(TypeIdentity, "country"))
	assert.False(t, HasAttribute(TypeIdentity, "ssn"))
	assert.False(t, HasAttribute(CredentialType("Nope"), "verified"))
}

func TestCredentialKind(t *testing.T) {
	c := VerifiableCredential{Type: []string{"VerifiableCredential", "IdentityCredential"}}
	assert.Equal(t, TypeIdentity, c.CredentialKind())

	empty := VerifiableCredential{Type: []string{"VerifiableCredential"}}
	assert.Equal(t, CredentialType(""), empty.CredentialKind())
}

func TestExpired(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	assert.False(t, VerifiableCredential{}.Expired(now), "no expiration date means never expired")
	assert.True(t, VerifiableCredential{ExpirationDate: &past}.Expired(now))
	assert.False(t, VerifiableCredential{ExpirationDate: &future}.Expired(now))
}
