package devkit

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
)

// TokenResponse scripts one token endpoint reply.
type TokenResponse struct {
	Status      int
	ContentType string
	Body        string
}

// TokenRequest captures one form submission to the token endpoint.
type TokenRequest struct {
	Form         url.Values
	BasicUser    string
	BasicSecret  string
	HasBasicAuth bool
}

// TokenEndpoint is an httptest server standing in for a provider token
// endpoint. Replies are served in order; the last one repeats.
type TokenEndpoint struct {
	server *httptest.Server

	mu        sync.Mutex
	responses []TokenResponse
	requests  []TokenRequest
}

func NewTokenEndpoint(responses ...TokenResponse) *TokenEndpoint {
	endpoint := &TokenEndpoint{responses: append([]TokenResponse(nil), responses...)}
	endpoint.server = httptest.NewServer(http.HandlerFunc(endpoint.serve))
	return endpoint
}

// JSONToken returns a successful JSON token reply.
func JSONToken(accessToken, refreshToken string, expiresIn int) TokenResponse {
	body := fmt.Sprintf(`{"access_token":%q,"token_type":"Bearer","expires_in":%d`, accessToken, expiresIn)
	if refreshToken != "" {
		body += fmt.Sprintf(`,"refresh_token":%q`, refreshToken)
	}
	body += "}"
	return TokenResponse{Status: http.StatusOK, ContentType: "application/json", Body: body}
}

// JSONError returns an RFC 6749 error reply.
func JSONError(status int, code, description string) TokenResponse {
	return TokenResponse{
		Status:      status,
		ContentType: "application/json",
		Body:        fmt.Sprintf(`{"error":%q,"error_description":%q}`, code, description),
	}
}

func (e *TokenEndpoint) URL() string {
	return e.server.URL + "/token"
}

func (e *TokenEndpoint) Close() {
	if e != nil && e.server != nil {
		e.server.Close()
	}
}

func (e *TokenEndpoint) Requests() []TokenRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]TokenRequest, 0, len(e.requests))
	for _, item := range e.requests {
		copied := item
		copied.Form = cloneValues(item.Form)
		out = append(out, copied)
	}
	return out
}

func (e *TokenEndpoint) serve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	user, secret, hasBasic := r.BasicAuth()

	e.mu.Lock()
	index := len(e.requests)
	e.requests = append(e.requests, TokenRequest{
		Form:         cloneValues(r.PostForm),
		BasicUser:    user,
		BasicSecret:  secret,
		HasBasicAuth: hasBasic,
	})
	response := TokenResponse{Status: http.StatusOK, ContentType: "application/json", Body: `{"access_token":"access_default","token_type":"Bearer"}`}
	switch {
	case index < len(e.responses):
		response = e.responses[index]
	case len(e.responses) > 0:
		response = e.responses[len(e.responses)-1]
	}
	e.mu.Unlock()

	if response.ContentType != "" {
		w.Header().Set("Content-Type", response.ContentType)
	}
	if response.Status == 0 {
		response.Status = http.StatusOK
	}
	w.WriteHeader(response.Status)
	_, _ = w.Write([]byte(response.Body))
}

func cloneValues(in url.Values) url.Values {
	out := make(url.Values, len(in))
	for key, values := range in {
		out[key] = append([]string(nil), values...)
	}
	return out
}
