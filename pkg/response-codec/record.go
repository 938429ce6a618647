// Package respcodec converts live HTTP responses to storable records and back.
//
// There are two encodings: a JSON record for structured (operation payload)
// traffic, and an HTTP/1.1 wire form for asset and document traffic. Both
// reconstruct a response a caller cannot tell from a live one at the
// status/headers/body level.
package respcodec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// SerializedResponse is the storable form of a JSON-bodied response.
type SerializedResponse struct {
	Headers    map[string]string `json:"headers"`
	Status     int               `json:"status"`
	StatusText string            `json:"statusText"`
	Body       json.RawMessage   `json:"body"`
}

// Entry is the whole cache record written to the store for payload traffic.
// Writes are whole-record replacements; there are no partial updates.
type Entry struct {
	Key string `json:"key"`
	// Query is the operation string of the request that produced the
	// response. Stored for key derivation bookkeeping only.
	Query    string             `json:"query"`
	Response SerializedResponse `json:"response"`
	// Timestamp is the write time in milliseconds since epoch.
	Timestamp int64 `json:"timestamp"`
}

// Encode reads the given response into a SerializedResponse.
// The body is consumed eagerly and must be JSON; callers needing the live
// response afterwards must snapshot it first (see CloneResponse).
func Encode(res *http.Response) (SerializedResponse, error) {
	s := SerializedResponse{
		Headers:    make(map[string]string),
		Status:     res.StatusCode,
		StatusText: statusText(res),
	}
	for name := range res.Header {
		s.Headers[name] = res.Header.Get(name)
	}
	if res.Body == nil {
		return s, fmt.Errorf("response has no body")
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return s, fmt.Errorf("reading response body: %w", err)
	}
	if !json.Valid(body) {
		return s, fmt.Errorf("response body is not JSON")
	}
	compact := &bytes.Buffer{}
	if err := json.Compact(compact, body); err != nil {
		return s, err
	}
	s.Body = compact.Bytes()
	return s, nil
}

// Decode reconstructs a live-equivalent response from a stored record.
// The body is the stored JSON re-serialized to text.
func Decode(s SerializedResponse) *http.Response {
	header := make(http.Header, len(s.Headers))
	for name, value := range s.Headers {
		header.Set(name, value)
	}
	return &http.Response{
		Status:        strconv.Itoa(s.Status) + " " + s.StatusText,
		StatusCode:    s.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(s.Body)),
		ContentLength: int64(len(s.Body)),
	}
}

func EntryToBytes(e Entry) ([]byte, error) {
	return json.Marshal(e)
}

func BytesToEntry(b []byte) (Entry, error) {
	var e Entry
	err := json.Unmarshal(b, &e)
	return e, err
}

// statusText extracts the reason phrase from a response status line,
// falling back to the standard text for the code.
func statusText(res *http.Response) string {
	if _, text, found := strings.Cut(res.Status, " "); found && text != "" {
		return text
	}
	return http.StatusText(res.StatusCode)
}
