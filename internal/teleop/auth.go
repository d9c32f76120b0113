package teleop

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Verifier checks bearer tokens on session upgrade requests. A nil
// Verifier admits everyone, which is how closed-track rigs run.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a Verifier; an empty secret disables auth.
func NewVerifier(secret string) *Verifier {
	if secret == "" {
		return nil
	}
	return &Verifier{secret: []byte(secret)}
}

var errNoToken = errors.New("missing token")

// Verify admits a request when its token validates against the shared
// secret. The token comes from the Authorization header or, for
// browser clients that cannot set headers on websocket dials, the
// "token" query parameter.
func (v *Verifier) Verify(r *http.Request) error {
	if v == nil {
		return nil
	}
	raw := ""
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		raw = strings.TrimPrefix(h, "Bearer ")
	} else {
		raw = r.URL.Query().Get("token")
	}
	if raw == "" {
		return errNoToken
	}
	_, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	return err
}
