// internal/common/auth/keycloak.go
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"gigflow/internal/common/errors"
	commonhttp "gigflow/internal/common/http"
)

// KeycloakResolver resolves callers by introspecting their bearer token
// against a Keycloak realm. Active tokens are cached for cacheTTL.
type KeycloakResolver struct {
	baseURL      string
	realm        string
	clientID     string
	clientSecret string
	httpClient   commonhttp.Doer
	cacheTTL     time.Duration
	now          func() time.Time

	mu    sync.Mutex
	cache map[string]cachedToken
}

// maxCachedTokens bounds the introspection cache. Beyond it new tokens are
// introspected on every request until entries expire.
const maxCachedTokens = 10000

type cachedToken struct {
	subject string
	expires time.Time
}

// TokenInfo holds the fields of the introspection response the service reads.
type TokenInfo struct {
	Active    bool   `json:"active"`
	Scope     string `json:"scope,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
	Username  string `json:"username,omitempty"`
	TokenType string `json:"token_type,omitempty"`
	Exp       int64  `json:"exp,omitempty"` // seconds since epoch
	Sub       string `json:"sub,omitempty"` // subject, the caller identity
	Iss       string `json:"iss,omitempty"`
}

// NewKeycloakResolver creates a resolver. A nil client gets a 10s timeout client.
func NewKeycloakResolver(baseURL, realm, clientID, clientSecret string, cacheTTL time.Duration, client commonhttp.Doer) *KeycloakResolver {
	if client == nil {
		client = commonhttp.NewClient(10 * time.Second)
	}
	return &KeycloakResolver{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		realm:        realm,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   client,
		cacheTTL:     cacheTTL,
		now:          time.Now,
		cache:        make(map[string]cachedToken),
	}
}

// Resolve returns the token subject of the request's bearer token.
func (k *KeycloakResolver) Resolve(r *http.Request) (string, error) {
	token := bearerToken(r)
	if token == "" {
		return "", errors.NewUnauthenticatedError("missing bearer token")
	}

	if sub, ok := k.cached(token); ok {
		return sub, nil
	}

	info, err := k.ValidateToken(r.Context(), token)
	if err != nil {
		return "", err
	}
	if info.Sub == "" {
		return "", errors.NewUnauthenticatedError("token has no subject")
	}

	k.store(token, info)
	return info.Sub, nil
}

func (k *KeycloakResolver) cached(token string) (string, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	entry, ok := k.cache[token]
	if !ok {
		return "", false
	}
	if k.now().After(entry.expires) {
		delete(k.cache, token)
		return "", false
	}
	return entry.subject, true
}

func (k *KeycloakResolver) store(token string, info *TokenInfo) {
	if k.cacheTTL <= 0 {
		return
	}
	expires := k.now().Add(k.cacheTTL)
	if info.Exp > 0 {
		if tokenExp := time.Unix(info.Exp, 0); tokenExp.Before(expires) {
			expires = tokenExp
		}
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.sweepLocked()
	if len(k.cache) >= maxCachedTokens {
		return
	}
	k.cache[token] = cachedToken{subject: info.Sub, expires: expires}
}

// sweepLocked drops expired entries. It runs on each introspection, which
// already costs a network round trip.
func (k *KeycloakResolver) sweepLocked() {
	now := k.now()
	for token, entry := range k.cache {
		if now.After(entry.expires) {
			delete(k.cache, token)
		}
	}
}

// ValidateToken checks if an access token is valid and active.
func (k *KeycloakResolver) ValidateToken(ctx context.Context, token string) (*TokenInfo, error) {
	introspectURL := fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token/introspect", k.baseURL, k.realm)

	data := url.Values{}
	data.Set("token", token)
	data.Set("token_type_hint", "access_token")
	data.Set("client_id", k.clientID)
	data.Set("client_secret", k.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, introspectURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, errors.NewInternalError(fmt.Errorf("failed to create introspection request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := k.httpClient.Do(req)
	if err != nil {
		return nil, errors.NewInternalError(fmt.Errorf("failed to send introspection request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, errors.NewInternalError(fmt.Errorf("keycloak introspection failed with status %d: %s", resp.StatusCode, string(body)))
	}

	var tokenInfo TokenInfo
	if err := json.NewDecoder(resp.Body).Decode(&tokenInfo); err != nil {
		return nil, errors.NewInternalError(fmt.Errorf("failed to decode token introspection response: %w", err))
	}

	if !tokenInfo.Active {
		return nil, errors.NewUnauthenticatedError("token is not active")
	}

	return &tokenInfo, nil
}
