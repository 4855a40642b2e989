// Package auth verifies client session tokens and resolves them to players.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

var (
	// ErrInvalidToken indicates the token is definitively invalid.
	ErrInvalidToken = errors.New("auth: invalid token")

	// ErrUnavailable indicates the auth service is unreachable or unavailable.
	ErrUnavailable = errors.New("auth: unavailable")
)

// Identity is the player a session token belongs to.
type Identity struct {
	PlayerID string `json:"user_id"`
	Username string `json:"username"`
}

// Verifier verifies session tokens.
type Verifier interface {
	// VerifySession returns the identity behind token.
	// Returns:
	//   - (*Identity, nil) if token is valid
	//   - (nil, ErrInvalidToken) if token is definitively invalid
	//   - (nil, ErrUnavailable) if the verifier cannot decide right now
	VerifySession(ctx context.Context, token string) (*Identity, error)
}

// HTTPVerifier validates tokens via HTTP callback to an external service.
type HTTPVerifier struct {
	url         string
	client      *http.Client
	adminSecret string
	retries     uint64
}

// NewHTTPVerifier creates a verifier that calls an external HTTP endpoint.
// Unavailable responses are retried a couple of times before giving up.
func NewHTTPVerifier(url string, adminSecret string) *HTTPVerifier {
	return &HTTPVerifier{
		url:         url,
		adminSecret: adminSecret,
		client: &http.Client{
			Timeout: 500 * time.Millisecond,
		},
		retries: 2,
	}
}

type verifyRequest struct {
	Token string `json:"token"`
}

type verifyResponse struct {
	Valid    bool   `json:"valid"`
	PlayerID string `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`
	Error    string `json:"error,omitempty"`
}

func (v *HTTPVerifier) VerifySession(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	var identity *Identity
	op := func() error {
		id, err := v.verifyOnce(ctx, token)
		if err != nil {
			if errors.Is(err, ErrUnavailable) {
				return err
			}
			return backoff.Permanent(err)
		}
		identity = id
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, v.retries), ctx))
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return nil, perm.Err
		}
		return nil, err
	}
	return identity, nil
}

func (v *HTTPVerifier) verifyOnce(ctx context.Context, token string) (*Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	reqBody, err := json.Marshal(verifyRequest{Token: token})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if v.adminSecret != "" {
		req.Header.Set("X-Admin-Secret", v.adminSecret)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, ErrInvalidToken
	case http.StatusTooManyRequests, http.StatusInternalServerError,
		http.StatusBadGateway, http.StatusServiceUnavailable:
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	default:
		return nil, fmt.Errorf("%w: unexpected status %d", ErrUnavailable, resp.StatusCode)
	}

	// Limit response body to 1MB to avoid pathological responses
	limitedReader := io.LimitReader(resp.Body, 1<<20)

	var authResp verifyResponse
	if err := json.NewDecoder(limitedReader).Decode(&authResp); err != nil {
		return nil, fmt.Errorf("%w: decode error: %v", ErrUnavailable, err)
	}

	if !authResp.Valid || authResp.PlayerID == "" {
		return nil, ErrInvalidToken
	}

	username := authResp.Username
	if username == "" {
		username = authResp.PlayerID
	}
	return &Identity{PlayerID: authResp.PlayerID, Username: username}, nil
}

// DevVerifier trusts the token itself: "id" or "id:name". For local play only.
type DevVerifier struct{}

// NewDevVerifier creates a verifier that accepts any non-empty token.
func NewDevVerifier() *DevVerifier {
	return &DevVerifier{}
}

func (v *DevVerifier) VerifySession(_ context.Context, token string) (*Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	id, name, ok := strings.Cut(token, ":")
	if id == "" {
		return nil, ErrInvalidToken
	}
	if !ok || name == "" {
		name = id
	}
	return &Identity{PlayerID: id, Username: name}, nil
}
