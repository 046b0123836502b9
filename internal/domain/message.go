// Package domain contains core domain types for the role-play trainer.
package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Role identifies who authored a message.
type Role string

// Message roles.
const (
	RoleUser   Role = "user"
	RoleAgent  Role = "agent"
	RoleSystem Role = "system"
)

// Tag classifies a message in the transcript UI.
type Tag string

// Message tags.
const (
	TagDecision   Tag = "decision"
	TagAssumption Tag = "assumption"
	TagRisk       Tag = "risk"
	TagNextAction Tag = "next_action"
	TagSummary    Tag = "summary"
)

// Message is a single transcript entry. Only Tags may change after creation.
type Message struct {
	ID            string    `json:"id,omitempty"`
	SessionID     string    `json:"sessionId,omitempty"`
	Role          Role      `json:"role" validate:"omitempty,oneof=user agent system"`
	Content       string    `json:"content"`
	CreatedAt     time.Time `json:"createdAt,omitzero"`
	Tags          []Tag     `json:"tags,omitempty" validate:"omitempty,dive,oneof=decision assumption risk next_action summary"`
	QueuedOffline bool      `json:"queuedOffline,omitempty"`
}

// UnmarshalJSON decodes a message written by any client version: createdAt
// may be RFC 3339 text or epoch milliseconds, and tags a single string.
func (m *Message) UnmarshalJSON(data []byte) error {
	type plain Message
	var raw struct {
		plain
		CreatedAt json.RawMessage `json:"createdAt"`
		Tags      json.RawMessage `json:"tags"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = Message(raw.plain)

	createdAt, err := decodeTimestamp(raw.CreatedAt)
	if err != nil {
		return fmt.Errorf("createdAt: %w", err)
	}
	m.CreatedAt = createdAt

	tags, err := decodeTags(raw.Tags)
	if err != nil {
		return fmt.Errorf("tags: %w", err)
	}
	m.Tags = tags
	return nil
}

func decodeTimestamp(raw json.RawMessage) (time.Time, error) {
	if isNull(raw) {
		return time.Time{}, nil
	}
	var ms json.Number
	if err := json.Unmarshal(raw, &ms); err == nil {
		n, err := ms.Float64()
		if err != nil {
			return time.Time{}, err
		}
		return time.UnixMilli(int64(n)).UTC(), nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}, err
	}
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

func decodeTags(raw json.RawMessage) ([]Tag, error) {
	if isNull(raw) {
		return nil, nil
	}
	var one Tag
	if err := json.Unmarshal(raw, &one); err == nil {
		if one == "" {
			return nil, nil
		}
		return []Tag{one}, nil
	}
	var many []Tag
	if err := json.Unmarshal(raw, &many); err != nil {
		return nil, err
	}
	return many, nil
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

// RecentMessages returns the last n messages, or all of them when there are fewer.
func RecentMessages(messages []Message, n int) []Message {
	if n <= 0 {
		return nil
	}
	if n >= len(messages) {
		return messages
	}
	return messages[len(messages)-n:]
}
