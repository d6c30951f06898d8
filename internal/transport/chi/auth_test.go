package chi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestBearerAuthMiddleware(t *testing.T) {
	const searchPath = "/v1/indexes/products/search"

	tests := []struct {
		name   string
		keys   []string
		path   string
		header string
		want   int
	}{
		{"no keys disables auth", nil, searchPath, "", http.StatusOK},
		{"blank keys disable auth", []string{"", ""}, searchPath, "", http.StatusOK},
		{"missing header", []string{"secret"}, searchPath, "", http.StatusUnauthorized},
		{"basic scheme", []string{"secret"}, searchPath, "Basic c2VjcmV0", http.StatusUnauthorized},
		{"lowercase scheme", []string{"secret"}, searchPath, "bearer secret", http.StatusUnauthorized},
		{"wrong key", []string{"secret"}, searchPath, "Bearer nope", http.StatusUnauthorized},
		{"empty token", []string{"secret"}, searchPath, "Bearer ", http.StatusUnauthorized},
		{"valid key", []string{"secret"}, searchPath, "Bearer secret", http.StatusOK},
		{"second of several keys", []string{"a", "b", "c"}, searchPath, "Bearer b", http.StatusOK},
		{"healthz exempt", []string{"secret"}, "/healthz", "", http.StatusOK},
		{"metrics exempt", []string{"secret"}, "/metrics", "", http.StatusOK},
		{"exempt match is exact", []string{"secret"}, "/healthz/extra", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := BearerAuthMiddleware(tt.keys)(okHandler())

			req := httptest.NewRequest(http.MethodGet, tt.path, http.NoBody)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.want {
				t.Fatalf("got %d, want %d", rr.Code, tt.want)
			}
			if tt.want != http.StatusUnauthorized {
				return
			}
			var errResp ErrorResponse
			if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
				t.Fatalf("decode error response: %v", err)
			}
			if errResp.Code != CodeUnauthorized {
				t.Errorf("error code: got %s, want %s", errResp.Code, CodeUnauthorized)
			}
			if errResp.Message == "" {
				t.Error("expected a message")
			}
		})
	}
}
