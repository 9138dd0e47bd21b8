package core

import (
	"strings"
	"testing"
	"time"
)

func TestConfigValidate_TokenRequestTimeoutWindow(t *testing.T) {
	cases := []struct {
		name    string
		timeout time.Duration
		wantErr bool
	}{
		{name: "zero uses default", timeout: 0},
		{name: "lower bound", timeout: 10 * time.Second},
		{name: "inside window", timeout: 12 * time.Second},
		{name: "upper bound", timeout: 15 * time.Second},
		{name: "too short", timeout: 9 * time.Second, wantErr: true},
		{name: "too long", timeout: 16 * time.Second, wantErr: true},
		{name: "negative", timeout: -time.Second, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.OAuth.TokenRequestTimeout = tc.timeout
			err := cfg.Validate()
			if tc.wantErr {
				if err == nil || !strings.Contains(err.Error(), "token_request_timeout") {
					t.Fatalf("expected timeout to be rejected, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("expected timeout to be accepted, got %v", err)
			}
		})
	}
}

func TestConfigWithDefaults_FillsZeroTimeout(t *testing.T) {
	oauth := OAuthConfig{}.withDefaults()
	if oauth.TokenRequestTimeout != defaultTokenRequestTimeout {
		t.Fatalf("expected default timeout, got %s", oauth.TokenRequestTimeout)
	}
}
