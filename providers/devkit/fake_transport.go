package devkit

import (
	"fmt"
	"net/http"
	"sync"
)

// TransportScript scripts one round trip. A nil Err lets the request through
// to the base transport.
type TransportScript struct {
	Err error
}

// FakeTransport is an http.RoundTripper that fails scripted attempts before
// delegating to a real transport. It counts every attempt it sees.
type FakeTransport struct {
	mu       sync.Mutex
	base     http.RoundTripper
	scripts  []TransportScript
	attempts int
	urls     []string
}

func NewFakeTransport(base http.RoundTripper, scripts ...TransportScript) *FakeTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &FakeTransport{
		base:    base,
		scripts: append([]TransportScript(nil), scripts...),
	}
}

func (t *FakeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t == nil {
		return nil, fmt.Errorf("devkit: fake transport is nil")
	}
	t.mu.Lock()
	index := t.attempts
	t.attempts++
	t.urls = append(t.urls, req.URL.String())
	var scripted error
	if index < len(t.scripts) {
		scripted = t.scripts[index].Err
	}
	t.mu.Unlock()

	if scripted != nil {
		if req.Body != nil {
			_ = req.Body.Close()
		}
		return nil, scripted
	}
	return t.base.RoundTrip(req)
}

func (t *FakeTransport) Attempts() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attempts
}

func (t *FakeTransport) URLs() []string {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.urls...)
}

// Client wraps the transport in an http.Client for provider configs.
func (t *FakeTransport) Client() *http.Client {
	return &http.Client{Transport: t}
}

var _ http.RoundTripper = (*FakeTransport)(nil)
