// Package pointer remembers where a user left off: the last scenario opened
// and the last session per scenario, scoped to a storage namespace.
package pointer

import (
	"context"
	"errors"
	"fmt"

	"github.com/ashureev/pm-roleplay/internal/events"
	"github.com/ashureev/pm-roleplay/internal/store"
)

// Key suffixes.
const (
	keyLastScenario  = "lastScenarioId"
	keyLastSessionID = "lastSessionId"
	keySessionPrefix = "session:last:"
)

// Store reads and writes pointers for one namespace. A Store without a
// backend is a no-op: reads return "", writes succeed and emit nothing.
type Store struct {
	kv  store.KV
	ns  store.Namespace
	pub events.Publisher
}

// New creates a pointer store. kv and pub may be nil.
func New(kv store.KV, ns store.Namespace, pub events.Publisher) *Store {
	return &Store{kv: kv, ns: ns, pub: pub}
}

// Namespace returns the namespace this store is scoped to.
func (s *Store) Namespace() store.Namespace {
	return s.ns
}

// LastScenario returns the last scenario id, or "" if none.
func (s *Store) LastScenario(ctx context.Context) (string, error) {
	return s.get(ctx, keyLastScenario)
}

// SetLastScenario records scenarioID as the last scenario.
func (s *Store) SetLastScenario(ctx context.Context, scenarioID string) error {
	if err := s.set(ctx, keyLastScenario, scenarioID); err != nil {
		return err
	}
	s.emit(ctx, events.Event{Kind: events.KindSet, Key: keyLastScenario, ScenarioID: scenarioID})
	return nil
}

// LastSession returns the last session for scenarioID, or "" if none.
func (s *Store) LastSession(ctx context.Context, scenarioID string) (string, error) {
	return s.get(ctx, keySessionPrefix+scenarioID)
}

// SetLastSession records sessionID as the last session of scenarioID,
// replacing any previous one.
func (s *Store) SetLastSession(ctx context.Context, scenarioID, sessionID string) error {
	key := keySessionPrefix + scenarioID
	if err := s.set(ctx, key, sessionID); err != nil {
		return err
	}
	s.emit(ctx, events.Event{Kind: events.KindSet, Key: key, ScenarioID: scenarioID, SessionID: sessionID})
	return nil
}

// ClearLastSession removes the pointer for scenarioID only if it still points
// at sessionID. It reports whether anything was cleared.
func (s *Store) ClearLastSession(ctx context.Context, scenarioID, sessionID string) (bool, error) {
	if s.kv == nil || sessionID == "" {
		return false, nil
	}
	key := keySessionPrefix + scenarioID
	cleared, err := s.kv.CompareAndDelete(ctx, s.ns.Key(key), sessionID)
	if err != nil {
		return false, fmt.Errorf("clear last session: %w", err)
	}
	if cleared {
		s.emit(ctx, events.Event{Kind: events.KindClear, Key: key, ScenarioID: scenarioID, SessionID: sessionID})
	}
	return cleared, nil
}

// LastSessionID returns the most recently active session across scenarios.
func (s *Store) LastSessionID(ctx context.Context) (string, error) {
	return s.get(ctx, keyLastSessionID)
}

// SetLastSessionID records the most recently active session.
func (s *Store) SetLastSessionID(ctx context.Context, sessionID string) error {
	if err := s.set(ctx, keyLastSessionID, sessionID); err != nil {
		return err
	}
	s.emit(ctx, events.Event{Kind: events.KindSet, Key: keyLastSessionID, SessionID: sessionID})
	return nil
}

func (s *Store) get(ctx context.Context, suffix string) (string, error) {
	if s.kv == nil {
		return "", nil
	}
	v, err := s.kv.Get(ctx, s.ns.Key(suffix))
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read pointer %s: %w", suffix, err)
	}
	return v, nil
}

func (s *Store) set(ctx context.Context, suffix, value string) error {
	if s.kv == nil {
		return nil
	}
	if err := s.kv.Set(ctx, s.ns.Key(suffix), value); err != nil {
		return fmt.Errorf("write pointer %s: %w", suffix, err)
	}
	return nil
}

func (s *Store) emit(ctx context.Context, ev events.Event) {
	if s.kv == nil || s.pub == nil {
		return
	}
	ev.Namespace = s.ns.String()
	s.pub.Publish(ctx, ev)
}
