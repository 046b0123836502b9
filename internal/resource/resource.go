// Package resource caches per-session artifacts (snapshots, outputs, comments,
// evaluations) in the key/value store, optionally falling back to the primary
// backend on a local miss.
package resource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/pm-roleplay/internal/domain"
	"github.com/ashureev/pm-roleplay/internal/store"
	"github.com/google/uuid"
)

// ErrNotFound is returned when a resource is neither cached nor available remotely.
var ErrNotFound = errors.New("resource not found")

// Key suffix prefixes.
const (
	keySession    = "session:"
	keyOutputs    = "outputs:"
	keyComments   = "comments:"
	keyEvaluation = "evaluation:"
)

// Cache is safe for concurrent use. A Cache without a backend is a no-op.
type Cache struct {
	kv     store.KV
	remote Remote
	now    func() time.Time

	// mu serialises read-modify-write of list-valued keys.
	mu sync.Mutex
}

// New creates a cache. kv and remote may be nil.
func New(kv store.KV, remote Remote) *Cache {
	return &Cache{kv: kv, remote: remote, now: time.Now}
}

// Snapshot returns the cached session transcript.
func (c *Cache) Snapshot(ctx context.Context, ns store.Namespace, sessionID string) (*domain.SessionSnapshot, error) {
	var snap domain.SessionSnapshot
	found, err := c.load(ctx, ns.Key(keySession+sessionID), &snap)
	if err != nil {
		return nil, err
	}
	if found {
		return &snap, nil
	}
	if c.kv == nil || c.remote == nil {
		return nil, ErrNotFound
	}

	remote, err := c.remote.FetchSnapshot(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	c.writeThrough(ctx, ns.Key(keySession+sessionID), remote)
	return remote, nil
}

// SaveSnapshot replaces the cached transcript for snap.SessionID.
func (c *Cache) SaveSnapshot(ctx context.Context, ns store.Namespace, snap *domain.SessionSnapshot) error {
	snap.UpdatedAt = c.now().UTC()
	return c.save(ctx, ns.Key(keySession+snap.SessionID), snap)
}

// DeleteSnapshot drops the cached transcript.
func (c *Cache) DeleteSnapshot(ctx context.Context, ns store.Namespace, sessionID string) error {
	if c.kv == nil {
		return nil
	}
	if err := c.kv.Delete(ctx, ns.Key(keySession+sessionID)); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}

// Outputs lists a session's outputs. A session without outputs yields an empty list.
func (c *Cache) Outputs(ctx context.Context, ns store.Namespace, sessionID string) ([]domain.Output, error) {
	var outputs []domain.Output
	found, err := c.load(ctx, ns.Key(keyOutputs+sessionID), &outputs)
	if err != nil {
		return nil, err
	}
	if found {
		if outputs == nil {
			outputs = []domain.Output{}
		}
		return outputs, nil
	}
	if c.kv == nil || c.remote == nil {
		return []domain.Output{}, nil
	}

	remote, err := c.remote.FetchOutputs(ctx, sessionID)
	if errors.Is(err, ErrNotFound) {
		return []domain.Output{}, nil
	}
	if err != nil {
		return nil, err
	}
	if remote == nil {
		remote = []domain.Output{}
	}
	c.writeThrough(ctx, ns.Key(keyOutputs+sessionID), remote)
	return remote, nil
}

// SaveOutput inserts out, or replaces the output with the same id.
func (c *Cache) SaveOutput(ctx context.Context, ns store.Namespace, sessionID string, out domain.Output) (domain.Output, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	outputs, err := c.Outputs(ctx, ns, sessionID)
	if err != nil {
		return domain.Output{}, err
	}

	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	out.SessionID = sessionID
	out.UpdatedAt = c.now().UTC()

	replaced := false
	for i := range outputs {
		if outputs[i].ID == out.ID {
			outputs[i] = out
			replaced = true
			break
		}
	}
	if !replaced {
		outputs = append(outputs, out)
	}

	if err := c.save(ctx, ns.Key(keyOutputs+sessionID), outputs); err != nil {
		return domain.Output{}, err
	}
	return out, nil
}

// DeleteOutput removes one output. It reports whether it existed.
func (c *Cache) DeleteOutput(ctx context.Context, ns store.Namespace, sessionID, outputID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	outputs, err := c.Outputs(ctx, ns, sessionID)
	if err != nil {
		return false, err
	}
	kept := outputs[:0]
	for _, o := range outputs {
		if o.ID != outputID {
			kept = append(kept, o)
		}
	}
	if len(kept) == len(outputs) {
		return false, nil
	}
	return true, c.save(ctx, ns.Key(keyOutputs+sessionID), kept)
}

// Comments lists a session's comments in insertion order.
func (c *Cache) Comments(ctx context.Context, ns store.Namespace, sessionID string) ([]domain.Comment, error) {
	var comments []domain.Comment
	found, err := c.load(ctx, ns.Key(keyComments+sessionID), &comments)
	if err != nil {
		return nil, err
	}
	if found {
		if comments == nil {
			comments = []domain.Comment{}
		}
		return comments, nil
	}
	if c.kv == nil || c.remote == nil {
		return []domain.Comment{}, nil
	}

	remote, err := c.remote.FetchComments(ctx, sessionID)
	if errors.Is(err, ErrNotFound) {
		return []domain.Comment{}, nil
	}
	if err != nil {
		return nil, err
	}
	if remote == nil {
		remote = []domain.Comment{}
	}
	c.writeThrough(ctx, ns.Key(keyComments+sessionID), remote)
	return remote, nil
}

// AddComment appends a comment and returns it with id and timestamp filled in.
func (c *Cache) AddComment(ctx context.Context, ns store.Namespace, sessionID string, comment domain.Comment) (domain.Comment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	comments, err := c.Comments(ctx, ns, sessionID)
	if err != nil {
		return domain.Comment{}, err
	}
	if comment.ID == "" {
		comment.ID = uuid.NewString()
	}
	comment.SessionID = sessionID
	comment.CreatedAt = c.now().UTC()

	comments = append(comments, comment)
	if err := c.save(ctx, ns.Key(keyComments+sessionID), comments); err != nil {
		return domain.Comment{}, err
	}
	return comment, nil
}

// DeleteComment removes one comment. It reports whether it existed.
func (c *Cache) DeleteComment(ctx context.Context, ns store.Namespace, sessionID, commentID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	comments, err := c.Comments(ctx, ns, sessionID)
	if err != nil {
		return false, err
	}
	kept := comments[:0]
	for _, cm := range comments {
		if cm.ID != commentID {
			kept = append(kept, cm)
		}
	}
	if len(kept) == len(comments) {
		return false, nil
	}
	return true, c.save(ctx, ns.Key(keyComments+sessionID), kept)
}

// Evaluation returns the stored evaluation for a session.
func (c *Cache) Evaluation(ctx context.Context, ns store.Namespace, sessionID string) (*domain.Evaluation, error) {
	var ev domain.Evaluation
	found, err := c.load(ctx, ns.Key(keyEvaluation+sessionID), &ev)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	return &ev, nil
}

// SaveEvaluation overwrites any previous evaluation of the session.
func (c *Cache) SaveEvaluation(ctx context.Context, ns store.Namespace, ev *domain.Evaluation) error {
	return c.save(ctx, ns.Key(keyEvaluation+ev.SessionID), ev)
}

func (c *Cache) load(ctx context.Context, key string, dst any) (bool, error) {
	if c.kv == nil {
		return false, nil
	}
	raw, err := c.kv.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		// A corrupt entry is treated as a miss so callers can overwrite it.
		slog.Warn("discarding unreadable cache entry", "key", key, "error", err)
		return false, nil
	}
	return true, nil
}

func (c *Cache) save(ctx context.Context, key string, v any) error {
	if c.kv == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := c.kv.Set(ctx, key, string(raw)); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

func (c *Cache) writeThrough(ctx context.Context, key string, v any) {
	if err := c.save(ctx, key, v); err != nil {
		slog.Warn("failed to cache remote resource", "key", key, "error", err)
	}
}
