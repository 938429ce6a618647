package cachekey

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postRequest(t *testing.T, body string) *http.Request {
	t.Helper()
	r, err := http.NewRequest("POST", "https://example.com/graphql", strings.NewReader(body))
	require.NoError(t, err)
	return r
}

func TestKeyDeterministic(t *testing.T) {
	keyer := NewKeyer()
	body := `{"query":"query Q($submit: String)","variables":{"submit":"rick "}}`

	key1, err := keyer.DeriveKey(postRequest(t, body))
	require.NoError(t, err)
	key2, err := keyer.DeriveKey(postRequest(t, body))
	require.NoError(t, err)

	assert.Equal(t, key1.Value, key2.Value)
	assert.True(t, key1.FromPayload)
	assert.Equal(t, "query Q($submit: String)", key1.Query)
}

func TestKeyIgnoresInsignificantWhitespace(t *testing.T) {
	keyer := NewKeyer()
	key1, err := keyer.DeriveKey(postRequest(t, `{"query":"Q","variables":{"submit":"rick"}}`))
	require.NoError(t, err)
	key2, err := keyer.DeriveKey(postRequest(t, `{ "query": "Q", "variables": { "submit": "rick" } }`))
	require.NoError(t, err)
	assert.Equal(t, key1.Value, key2.Value)
}

func TestKeyDiffersForDifferentContent(t *testing.T) {
	keyer := NewKeyer()
	key1, err := keyer.DeriveKey(postRequest(t, `{"query":"Q","variables":{"submit":"rick"}}`))
	require.NoError(t, err)
	key2, err := keyer.DeriveKey(postRequest(t, `{"query":"Q","variables":{"submit":"morty"}}`))
	require.NoError(t, err)
	assert.NotEqual(t, key1.Value, key2.Value)
}

func TestKeyMissingFieldFallsBackToQuery(t *testing.T) {
	keyer := NewKeyer()
	key, err := keyer.DeriveKey(postRequest(t, `{"query":"Q","variables":{"other":1}}`))
	require.NoError(t, err)
	queryOnly, err := keyer.DeriveKey(postRequest(t, `{"query":"Q"}`))
	require.NoError(t, err)
	assert.Equal(t, queryOnly.Value, key.Value)
}

func TestKeyFieldPolicyUnderHashes(t *testing.T) {
	// with the default policy, payloads differing only in other fields
	// share a key; the full-payload policy tells them apart
	body1 := `{"query":"Q","variables":{"submit":"rick","page":1}}`
	body2 := `{"query":"Q","variables":{"submit":"rick","page":2}}`

	fieldKeyer := NewKeyer()
	key1, err := fieldKeyer.DeriveKey(postRequest(t, body1))
	require.NoError(t, err)
	key2, err := fieldKeyer.DeriveKey(postRequest(t, body2))
	require.NoError(t, err)
	assert.Equal(t, key1.Value, key2.Value)

	fullKeyer := Keyer{Field: "submit", Input: HashFullPayload}
	key1, err = fullKeyer.DeriveKey(postRequest(t, body1))
	require.NoError(t, err)
	key2, err = fullKeyer.DeriveKey(postRequest(t, body2))
	require.NoError(t, err)
	assert.NotEqual(t, key1.Value, key2.Value)
}

func TestKeyNotCacheableOnUnstructuredBody(t *testing.T) {
	keyer := NewKeyer()
	_, err := keyer.DeriveKey(postRequest(t, "this is not json"))
	assert.ErrorIs(t, err, ErrNotCacheable)
}

func TestKeyForGetRequestIsMethodAndURL(t *testing.T) {
	keyer := NewKeyer()
	r, err := http.NewRequest("GET", "https://example.com/api/page?q=1", nil)
	require.NoError(t, err)
	key, err := keyer.DeriveKey(r)
	require.NoError(t, err)
	assert.Equal(t, "GET:https://example.com/api/page?q=1", key.Value)
	assert.False(t, key.FromPayload)
}

func TestDeriveKeyLeavesBodyReadable(t *testing.T) {
	keyer := NewKeyer()
	body := `{"query":"Q","variables":{"submit":"rick"}}`
	r := postRequest(t, body)

	_, err := keyer.DeriveKey(r)
	require.NoError(t, err)

	read, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	assert.Equal(t, body, string(read))
}
