// Package store provides the key/value persistence used by the pointer store
// and the resource cache, plus the key namespacing both of them share.
package store

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned by Get when a key does not exist.
var ErrNotFound = errors.New("store: key not found")

// KV is a flat string key/value store. Every operation touches a single key;
// writes are visible to subsequent reads immediately.
type KV interface {
	// Get returns the value for key or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set creates or overwrites key.
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// CompareAndDelete removes key only if its current value equals expected.
	// It reports whether a delete happened.
	CompareAndDelete(ctx context.Context, key, expected string) (bool, error)

	// Ping verifies backend connectivity.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// Namespace scopes keys as <prefix>[:user:<id>]:<suffix>.
type Namespace struct {
	Prefix string
	UserID string
}

// Key returns the fully qualified key for suffix.
func (n Namespace) Key(suffix string) string {
	var b strings.Builder
	b.WriteString(n.Prefix)
	if n.UserID != "" {
		b.WriteString(":user:")
		b.WriteString(n.UserID)
	}
	b.WriteByte(':')
	b.WriteString(suffix)
	return b.String()
}

// String identifies the namespace itself, e.g. for event routing.
func (n Namespace) String() string {
	if n.UserID == "" {
		return n.Prefix
	}
	return n.Prefix + ":user:" + n.UserID
}
