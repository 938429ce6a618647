package respcodec

import (
	"bytes"
	"io"
	"net/http"
)

// CloneRequest snapshots a request so that both the returned copy and the
// original have independently readable bodies. Body streams are single-read,
// so any step that consumes a body must work on its own copy.
func CloneRequest(r *http.Request) (*http.Request, error) {
	clone := r.Clone(r.Context())
	if r.Body == nil {
		return clone, nil
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	clone.Body = io.NopCloser(bytes.NewReader(body))
	clone.ContentLength = int64(len(body))
	return clone, nil
}

// CloneResponse snapshots a response, leaving the original body readable and
// returning a copy with its own body. Use before any body-consuming encode.
func CloneResponse(res *http.Response) (*http.Response, error) {
	clone := *res
	if res.Body == nil {
		return &clone, nil
	}
	body, err := io.ReadAll(res.Body)
	res.Body.Close()
	if err != nil {
		return nil, err
	}
	res.Body = io.NopCloser(bytes.NewReader(body))
	clone.Body = io.NopCloser(bytes.NewReader(body))
	clone.Header = res.Header.Clone()
	return &clone, nil
}
