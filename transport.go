package offlinecache

import "net/http"

// Transport adapts a Controller to http.RoundTripper, so the layer can be
// dropped into any http.Client and intercept every request the application
// issues. Responses are indistinguishable from live ones at the
// status/headers/body level, whether they came from the store or the network.
type Transport struct {
	Controller *Controller
}

func (t Transport) RoundTrip(r *http.Request) (*http.Response, error) {
	return t.Controller.Handle(r)
}

// Client returns an http.Client whose requests go through the controller.
func (c *Controller) Client() *http.Client {
	return &http.Client{Transport: Transport{Controller: c}}
}
