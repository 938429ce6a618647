package respcodec

import (
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonResponse(body string) *http.Response {
	header := make(http.Header)
	header.Set("Content-Type", "application/json")
	header.Set("X-Custom", "value")
	return &http.Response{
		Status:        "200 OK",
		StatusCode:    200,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(strings.NewReader(body)),
		ContentLength: int64(len(body)),
	}
}

func TestRecordRoundTrip(t *testing.T) {
	body := `{"data":{"characters":["rick","morty"]}}`
	serialized, err := Encode(jsonResponse(body))
	require.NoError(t, err)

	assert.Equal(t, 200, serialized.Status)
	assert.Equal(t, "OK", serialized.StatusText)
	assert.Equal(t, "application/json", serialized.Headers["Content-Type"])

	decoded := Decode(serialized)
	assert.Equal(t, 200, decoded.StatusCode)
	assert.Equal(t, "value", decoded.Header.Get("X-Custom"))
	decodedBody, err := io.ReadAll(decoded.Body)
	require.NoError(t, err)
	assert.JSONEq(t, body, string(decodedBody))
}

func TestEncodeRejectsNonJSONBody(t *testing.T) {
	res := jsonResponse("<html>not json</html>")
	_, err := Encode(res)
	assert.Error(t, err)
}

func TestEntryRoundTrip(t *testing.T) {
	serialized, err := Encode(jsonResponse(`{"ok":true}`))
	require.NoError(t, err)
	entry := Entry{
		Key:       "abc123",
		Query:     "query Q",
		Response:  serialized,
		Timestamp: time.Now().UnixMilli(),
	}

	bts, err := EntryToBytes(entry)
	require.NoError(t, err)
	decoded, err := BytesToEntry(bts)
	require.NoError(t, err)

	assert.Equal(t, entry.Key, decoded.Key)
	assert.Equal(t, entry.Query, decoded.Query)
	assert.Equal(t, entry.Timestamp, decoded.Timestamp)
	assert.Equal(t, entry.Response.Status, decoded.Response.Status)
}

func TestWireRoundTrip(t *testing.T) {
	storedAt := time.Now().Truncate(time.Millisecond)
	res := jsonResponse(`{"ok":true}`)

	bts, err := ResponseToBytes(TimedResponse{Response: res, StoredAt: storedAt})
	require.NoError(t, err)

	decoded, err := BytesToResponse(bts)
	require.NoError(t, err)
	assert.Equal(t, storedAt.UnixMilli(), decoded.StoredAt.UnixMilli())
	assert.Equal(t, 200, decoded.Response.StatusCode)
	assert.Equal(t, "value", decoded.Response.Header.Get("X-Custom"))
	assert.Empty(t, decoded.Response.Header.Get("Offline-Cache-Stored-At"))

	body, err := io.ReadAll(decoded.Response.Body)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(body))
}

func TestWireLeavesOriginalBodyReadable(t *testing.T) {
	res := jsonResponse(`{"ok":true}`)
	_, err := ResponseToBytes(TimedResponse{Response: res, StoredAt: time.Now()})
	require.NoError(t, err)

	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(body))
	assert.Empty(t, res.Header.Get("Offline-Cache-Stored-At"))
}

func TestCloneRequestBothCopiesReadable(t *testing.T) {
	body := `{"query":"Q"}`
	r, err := http.NewRequest("POST", "https://example.com/graphql", strings.NewReader(body))
	require.NoError(t, err)

	clone, err := CloneRequest(r)
	require.NoError(t, err)

	original, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	cloned, err := io.ReadAll(clone.Body)
	require.NoError(t, err)
	assert.Equal(t, body, string(original))
	assert.Equal(t, body, string(cloned))
}

func TestCloneResponseBothCopiesReadable(t *testing.T) {
	res := jsonResponse(`{"ok":true}`)
	clone, err := CloneResponse(res)
	require.NoError(t, err)

	original, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	cloned, err := io.ReadAll(clone.Body)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(original))
	assert.Equal(t, `{"ok":true}`, string(cloned))
}
