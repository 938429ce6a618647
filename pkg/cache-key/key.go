package cachekey

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// ErrNotCacheable is returned when a body-carrying request cannot be keyed,
// i.e. when its body is not structured data. Callers should treat such
// requests as network-only.
var ErrNotCacheable = fmt.Errorf("request body is not structured data")

// HashInput selects which part of an operation payload feeds the key hash.
type HashInput int

const (
	// HashOperationField hashes the operation string plus the one designated
	// variables field. This under-hashes on purpose: payloads differing only
	// in other fields share a key, which is the source behavior for this
	// domain (the field is the search term).
	HashOperationField HashInput = iota
	// HashFullPayload hashes the operation string plus all variables.
	HashFullPayload
)

// Keyer derives deterministic cache keys from requests.
// The zero value hashes the "submit" variables field.
type Keyer struct {
	// Field is the designated variables field used with HashOperationField.
	Field string
	Input HashInput
}

func NewKeyer() Keyer {
	return Keyer{Field: "submit"}
}

// Key is a derived cache key.
type Key struct {
	// Value is the key string, unique per cached variant.
	Value string
	// FromPayload is true if the key was derived from an operation payload
	// rather than the request URL.
	FromPayload bool
	// Query is the payload's operation string, kept for the stored record.
	Query string
}

// operationPayload is the structured body of a mutation-style request.
type operationPayload struct {
	Query     string                     `json:"query"`
	Variables map[string]json.RawMessage `json:"variables"`
}

// DeriveKey computes the cache key for the given request.
// For requests carrying a structured operation payload, the key is a hash of
// the payload content; for anything else it is the method plus URL.
// The request body is snapshotted and rewound, so it stays readable for the
// eventual network fetch.
func (k Keyer) DeriveKey(r *http.Request) (Key, error) {
	if r.Body == nil || r.Method == http.MethodGet || r.Method == http.MethodHead {
		return k.urlKey(r), nil
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return Key{}, fmt.Errorf("reading request body: %w", err)
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	if len(body) == 0 {
		return k.urlKey(r), nil
	}
	var payload operationPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return Key{}, ErrNotCacheable
	}
	input, err := k.hashInput(payload)
	if err != nil {
		return Key{}, ErrNotCacheable
	}
	return Key{
		Value:       fmt.Sprintf("%x", sha256.Sum256(input)),
		FromPayload: true,
		Query:       payload.Query,
	}, nil
}

func (k Keyer) urlKey(r *http.Request) Key {
	return Key{Value: r.Method + ":" + r.URL.String()}
}

func (k Keyer) hashInput(payload operationPayload) ([]byte, error) {
	buf := &bytes.Buffer{}
	buf.WriteString(payload.Query)
	switch k.Input {
	case HashFullPayload:
		if err := writeCanonical(buf, payload.Variables); err != nil {
			return nil, err
		}
	default:
		field := k.Field
		if field == "" {
			field = "submit"
		}
		// a missing field is fine, the key is then the query alone
		if raw, ok := payload.Variables[field]; ok {
			if err := writeCanonical(buf, raw); err != nil {
				return nil, err
			}
		}
	}
	return buf.Bytes(), nil
}

// writeCanonical writes a canonical JSON form of v to buf.
// Decoding and re-encoding drops insignificant whitespace and sorts object
// keys, so byte-identical content always hashes the same.
func writeCanonical(buf *bytes.Buffer, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return err
	}
	canonical, err := json.Marshal(decoded)
	if err != nil {
		return err
	}
	buf.Write(canonical)
	return nil
}
