package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

const testKey = "0123456789abcdef-key"

func TestAuthMiddleware(t *testing.T) {
	h := AuthMiddleware(AuthConfig{Enabled: true, APIKey: testKey},
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	tests := []struct {
		name   string
		target string
		header string
		want   int
	}{
		{"root public", "/", "", http.StatusOK},
		{"health public", "/health", "", http.StatusOK},
		{"missing key", "/api/sessions", "", http.StatusUnauthorized},
		{"wrong key", "/api/sessions", "nope", http.StatusUnauthorized},
		{"header key", "/api/sessions", testKey, http.StatusOK},
		{"query key on ws", "/ws/sessions/x?api_key=" + testKey, "", http.StatusOK},
		{"query key elsewhere", "/api/sessions?api_key=" + testKey, "", http.StatusUnauthorized},
		{"wrong query key on ws", "/ws/sessions/x?api_key=nope", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("X-API-Key", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestAuthDisabled(t *testing.T) {
	h := AuthMiddleware(AuthConfig{}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions", nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want handler to run", rec.Code)
	}
}

func TestValidateAuthConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     AuthConfig
		wantErr bool
	}{
		{"disabled", AuthConfig{}, false},
		{"no key", AuthConfig{Enabled: true}, true},
		{"short key", AuthConfig{Enabled: true, APIKey: "short"}, true},
		{"ok", AuthConfig{Enabled: true, APIKey: testKey}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateAuthConfig(tt.cfg); (err != nil) != tt.wantErr {
				t.Errorf("ValidateAuthConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestServerAuth(t *testing.T) {
	_, ts := newTestServer(t, func(c *Config) {
		c.Auth = AuthConfig{Enabled: true, APIKey: testKey}
	})

	resp, err := http.Get(ts.URL + "/api/sessions")
	if err != nil {
		t.Fatal(err)
	}
	r := decode(t, resp, nil)
	if resp.StatusCode != http.StatusUnauthorized || r.Error.Code != "UNAUTHORIZED" {
		t.Errorf("status = %d, error = %+v", resp.StatusCode, r.Error)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/sessions", nil)
	req.Header.Set("X-API-Key", testKey)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("authorized status = %d, want 200", resp.StatusCode)
	}
}
