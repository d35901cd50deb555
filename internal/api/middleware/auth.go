package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"

	"github.com/botaniq/admind/internal/api/response"
)

const (
	// SignatureHeader carries a hex HMAC-SHA256 of the raw request body.
	SignatureHeader = "X-Button-Token"
	// StaticTokenHeader carries the long-lived operator token.
	StaticTokenHeader = "X-Admin-Token"
)

// Auth guards the admin surface. A request authenticates either with a
// per-request body signature or with the static operator token. A
// present signature header is terminal: if it does not verify, the
// request fails even when a valid static token rides along.
func Auth(buttonSecret, staticToken string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if sig := r.Header.Get(SignatureHeader); sig != "" {
				body, err := io.ReadAll(r.Body)
				if err != nil {
					response.WriteError(w, http.StatusUnauthorized, "Unauthorized")
					return
				}
				// The handler still needs to read the body.
				r.Body = io.NopCloser(bytes.NewReader(body))

				mac := hmac.New(sha256.New, []byte(buttonSecret))
				mac.Write(body)
				want := hex.EncodeToString(mac.Sum(nil))
				if !hmac.Equal([]byte(sig), []byte(want)) {
					response.WriteError(w, http.StatusUnauthorized, "Unauthorized")
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			token := r.Header.Get(StaticTokenHeader)
			if staticToken != "" && token != "" && hmac.Equal([]byte(token), []byte(staticToken)) {
				next.ServeHTTP(w, r)
				return
			}
			response.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		})
	}
}
