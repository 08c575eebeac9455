package internal

import (
	"context"
	"log"
	"net/http"

	"github.com/chatrelay/chatrelay/internal/identity"
)

// Middleware resolves the optional display token on a request. A valid
// token puts the verified identity on the context; an absent or bad token
// just means the client names itself. Nothing here ever rejects a request -
// room membership is unauthenticated by design.
func Middleware(next http.Handler, tokenSecret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token == "" {
			if cookie, err := r.Cookie("display_token"); err == nil {
				token = cookie.Value
			}
		}

		if token != "" && tokenSecret != "" {
			id, err := identity.VerifyDisplayToken(token, tokenSecret)
			if err != nil {
				log.Printf("middleware: %v", err)
			} else {
				r = r.WithContext(context.WithValue(r.Context(), identity.IdentityKey, id))
			}
		}

		next.ServeHTTP(w, r)
	}
}
