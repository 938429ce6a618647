package respcodec

import (
	"bufio"
	"bytes"
	"net/http"
	"strconv"
	"time"
)

const storedAtHeaderName = "Offline-Cache-Stored-At"

// TimedResponse is a response together with the time it was stored.
// The store time is needed for expiration checks.
type TimedResponse struct {
	Response *http.Response
	StoredAt time.Time
}

// ResponseToBytes converts a response to its HTTP/1.1 wire representation,
// with the store time embedded as an extra header. The response body is
// consumed but set back, so the response stays usable by the caller.
func ResponseToBytes(tRes TimedResponse) ([]byte, error) {
	res := tRes.Response
	res.Header.Set(storedAtHeaderName, strconv.FormatInt(tRes.StoredAt.UnixMilli(), 10))
	defer res.Header.Del(storedAtHeaderName)

	buf := &bytes.Buffer{}
	if err := res.Write(buf); err != nil {
		return nil, err
	}
	bts := buf.Bytes()
	// res.Write drained the body, read it back from the buffer
	clonedRes, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(bts)), res.Request)
	if err != nil {
		return nil, err
	}
	clonedRes.Header.Del(storedAtHeaderName)
	res.Body = clonedRes.Body
	return bts, nil
}

// BytesToResponse converts stored wire bytes back to a response.
// The embedded store-time header is stripped.
func BytesToResponse(b []byte) (TimedResponse, error) {
	tRes := TimedResponse{}
	res, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(b)), nil)
	if err != nil {
		return tRes, err
	}
	if ms, err := strconv.ParseInt(res.Header.Get(storedAtHeaderName), 10, 64); err == nil {
		tRes.StoredAt = time.UnixMilli(ms)
	}
	res.Header.Del(storedAtHeaderName)
	tRes.Response = res
	return tRes, nil
}
