package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

// KeySet verifies API keys. Entries starting with "$2" are bcrypt hashes;
// anything else is compared in constant time.
type KeySet struct {
	plain    [][]byte
	hashed   [][]byte
	verified sync.Map // sha256 of accepted key -> struct{}
}

// NewKeySet builds a KeySet, ignoring blank entries
func NewKeySet(keys []string) *KeySet {
	ks := &KeySet{}
	for _, k := range keys {
		k = strings.TrimSpace(k)
		switch {
		case k == "":
		case strings.HasPrefix(k, "$2"):
			ks.hashed = append(ks.hashed, []byte(k))
		default:
			ks.plain = append(ks.plain, []byte(k))
		}
	}
	return ks
}

// Empty reports whether no keys are configured
func (ks *KeySet) Empty() bool {
	return len(ks.plain) == 0 && len(ks.hashed) == 0
}

// Verify reports whether key matches a configured key
func (ks *KeySet) Verify(key string) bool {
	if key == "" {
		return false
	}
	candidate := []byte(key)
	for _, p := range ks.plain {
		if subtle.ConstantTimeCompare(p, candidate) == 1 {
			return true
		}
	}
	if len(ks.hashed) == 0 {
		return false
	}

	digest := sha256.Sum256(candidate)
	if _, ok := ks.verified.Load(digest); ok {
		return true
	}
	for _, h := range ks.hashed {
		if bcrypt.CompareHashAndPassword(h, candidate) == nil {
			ks.verified.Store(digest, struct{}{})
			return true
		}
	}
	return false
}

// APIKeyAuth rejects requests without a valid bearer key. An empty key set
// disables authentication.
func APIKeyAuth(keys *KeySet) gin.HandlerFunc {
	return func(c *gin.Context) {
		if keys == nil || keys.Empty() {
			c.Next()
			return
		}
		if !keys.Verify(extractKey(c)) {
			c.Header("WWW-Authenticate", `Bearer realm="chatgate"`)
			abort(c, http.StatusUnauthorized, KindUnauthorized, "invalid or missing API key")
			return
		}
		c.Next()
	}
}

func extractKey(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if k := c.GetHeader("X-API-Key"); k != "" {
		return strings.TrimSpace(k)
	}
	// websocket clients in browsers cannot set headers
	return c.Query("api_key")
}
