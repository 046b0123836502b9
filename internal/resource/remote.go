package resource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ashureev/pm-roleplay/internal/domain"
	"github.com/ashureev/pm-roleplay/internal/identity"
)

// UserHeaderName carries the caller's user id to the backend.
const UserHeaderName = "X-PM-User-ID"

// Remote is the primary backend consulted on a cache miss.
type Remote interface {
	FetchSnapshot(ctx context.Context, sessionID string) (*domain.SessionSnapshot, error)
	FetchOutputs(ctx context.Context, sessionID string) ([]domain.Output, error)
	FetchComments(ctx context.Context, sessionID string) ([]domain.Comment, error)
}

// HTTPRemote reads resources from the backend REST API on behalf of the
// caller in ctx. Callers without a verified bearer token cannot prove
// ownership of a session, so their lookups miss without a request.
type HTTPRemote struct {
	baseURL string
	client  *http.Client
}

var _ Remote = (*HTTPRemote)(nil)

// NewHTTPRemote creates a remote for baseURL. A nil client gets a 10s timeout.
func NewHTTPRemote(baseURL string, client *http.Client) *HTTPRemote {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPRemote{baseURL: baseURL, client: client}
}

// FetchSnapshot GETs /sessions/{id}.
func (r *HTTPRemote) FetchSnapshot(ctx context.Context, sessionID string) (*domain.SessionSnapshot, error) {
	var snap domain.SessionSnapshot
	if err := r.get(ctx, "/sessions/"+url.PathEscape(sessionID), &snap); err != nil {
		return nil, err
	}
	if snap.SessionID == "" {
		snap.SessionID = sessionID
	}
	return &snap, nil
}

// FetchOutputs GETs /sessions/{id}/outputs.
func (r *HTTPRemote) FetchOutputs(ctx context.Context, sessionID string) ([]domain.Output, error) {
	var outputs []domain.Output
	if err := r.get(ctx, "/sessions/"+url.PathEscape(sessionID)+"/outputs", &outputs); err != nil {
		return nil, err
	}
	if outputs == nil {
		outputs = []domain.Output{}
	}
	return outputs, nil
}

// FetchComments GETs /sessions/{id}/comments.
func (r *HTTPRemote) FetchComments(ctx context.Context, sessionID string) ([]domain.Comment, error) {
	var comments []domain.Comment
	if err := r.get(ctx, "/sessions/"+url.PathEscape(sessionID)+"/comments", &comments); err != nil {
		return nil, err
	}
	if comments == nil {
		comments = []domain.Comment{}
	}
	return comments, nil
}

func (r *HTTPRemote) get(ctx context.Context, path string, dst any) error {
	token := identity.TokenFromContext(ctx)
	if token == "" {
		return ErrNotFound
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(UserHeaderName, identity.UserIDFromContext(ctx))

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("fetch %s: status %d: %s", path, resp.StatusCode, body)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
