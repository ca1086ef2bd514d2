package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

var ErrUnauthorized = errors.New("api: unauthorized")

// Authorizer decides whether a request may use the mutating routes.
type Authorizer interface {
	Authorize(r *http.Request) error
}

// AllowAll accepts every request.
type AllowAll struct{}

func (AllowAll) Authorize(*http.Request) error {
	return nil
}

// StaticToken accepts requests carrying "Authorization: Bearer <token>".
type StaticToken struct {
	token []byte
}

func NewStaticToken(token string) *StaticToken {
	return &StaticToken{token: []byte(token)}
}

func (st *StaticToken) Authorize(r *http.Request) error {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ErrUnauthorized
	}

	if len(st.token) == 0 || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), st.token) != 1 {
		return ErrUnauthorized
	}

	return nil
}
