package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strp(s string) *string { return &s }

func TestJSONBRendersInline(t *testing.T) {
	out, err := json.Marshal(struct {
		Meta JSONB `json:"meta"`
	}{Meta: JSONB(`{"a":1}`)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"meta":{"a":1}}`, string(out))

	var in struct {
		Meta JSONB `json:"meta"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"meta":{"b":[1,2]}}`), &in))
	assert.JSONEq(t, `{"b":[1,2]}`, string(in.Meta))
}

func TestJSONBScanNil(t *testing.T) {
	var j JSONB
	require.NoError(t, j.Scan(nil))
	assert.Equal(t, "{}", string(j))
	v, err := JSONB(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "{}", v)
}

func TestClientDisplayName(t *testing.T) {
	assert.Equal(t, "Acme Holdings", Client{ClientType: ClientEntity, EntityName: strp("Acme Holdings")}.DisplayName())
	assert.Equal(t, "Ada Lovelace", Client{ClientType: ClientIndividual, FirstName: strp("Ada"), LastName: strp("Lovelace")}.DisplayName())
	assert.Equal(t, "ada@example.com", Client{ClientType: ClientIndividual, Email: strp("ada@example.com")}.DisplayName())
}

func TestProductOwnership(t *testing.T) {
	p := Product{TenantID: strp("t1")}
	assert.False(t, p.IsPlatform())
	assert.True(t, p.OwnedBy("t1"))
	assert.False(t, p.OwnedBy("t2"))
	assert.True(t, Product{}.IsPlatform())
	assert.False(t, Product{}.OwnedBy("t1"))
}
