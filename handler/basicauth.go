package handler

import (
	"crypto/subtle"
	"encoding/base64"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/shravanasati/hearth/conn"
	"github.com/shravanasati/hearth/response"
)

// Account is a user allowed past BasicAuth. Password is either plain text
// or a bcrypt hash as produced by htpasswd -B.
type Account struct {
	Username string
	Password string
}

// BasicAuth guards the handlers after it in a chain. Requests with valid
// credentials pass through untouched; everything else is answered here.
type BasicAuth struct {
	realm    string
	accounts map[string]string
}

func NewBasicAuth(realm string, accounts []Account) *BasicAuth {
	accountMap := make(map[string]string, len(accounts))
	for _, acc := range accounts {
		accountMap[acc.Username] = acc.Password
	}
	if realm == "" {
		realm = "Restricted"
	}
	return &BasicAuth{realm: realm, accounts: accountMap}
}

func (b *BasicAuth) Handle(c *conn.Connection) bool {
	req := c.Request()
	if req == nil {
		return b.challenge(c)
	}

	auth := req.Headers.Get("Authorization")
	if !strings.HasPrefix(auth, "Basic ") {
		return b.challenge(c)
	}

	payload, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Basic "))
	if err != nil {
		c.WriteResponse(response.StatusBadRequest, []byte("Invalid authorization header"))
		return true
	}

	user, pass, found := strings.Cut(string(payload), ":")
	if !found {
		c.WriteResponse(response.StatusBadRequest, []byte("Invalid authorization header"))
		return true
	}

	actualPass, ok := b.accounts[user]
	if !ok || !passwordMatches(actualPass, pass) {
		return b.challenge(c)
	}
	return false
}

func passwordMatches(stored, given string) bool {
	if isBcryptHash(stored) {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(given)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(given)) == 1
}

func isBcryptHash(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}

func (b *BasicAuth) challenge(c *conn.Connection) bool {
	c.SetHeader("WWW-Authenticate", `Basic realm="`+b.realm+`"`)
	c.WriteResponse(response.StatusUnauthorized, []byte(response.GetStatusReason(response.StatusUnauthorized)))
	return true
}
