package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageDecodesClientTimestamps(t *testing.T) {
	cases := map[string]struct {
		body string
		want time.Time
	}{
		"epoch millis": {`{"role":"user","content":"x","createdAt":1714550400000}`, time.UnixMilli(1714550400000).UTC()},
		"rfc3339":      {`{"role":"user","content":"x","createdAt":"2024-05-01T08:00:00Z"}`, time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)},
		"null":         {`{"role":"user","content":"x","createdAt":null}`, time.Time{}},
		"absent":       {`{"role":"user","content":"x"}`, time.Time{}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			var m Message
			require.NoError(t, json.Unmarshal([]byte(tc.body), &m))
			assert.Equal(t, RoleUser, m.Role)
			assert.Equal(t, "x", m.Content)
			assert.True(t, tc.want.Equal(m.CreatedAt), "got %v", m.CreatedAt)
		})
	}
}

func TestMessageDecodesSingleTag(t *testing.T) {
	var m Message
	require.NoError(t, json.Unmarshal([]byte(`{"role":"agent","content":"x","tags":"risk"}`), &m))
	assert.Equal(t, []Tag{TagRisk}, m.Tags)

	require.NoError(t, json.Unmarshal([]byte(`{"role":"agent","content":"x","tags":["risk","summary"]}`), &m))
	assert.Equal(t, []Tag{TagRisk, TagSummary}, m.Tags)
}

func TestMessageRejectsUnparsableTimestamp(t *testing.T) {
	var m Message
	require.Error(t, json.Unmarshal([]byte(`{"createdAt":"yesterday"}`), &m))
}

func TestMessageOmitsZeroTimestamp(t *testing.T) {
	raw, err := json.Marshal(Message{Role: RoleUser, Content: "x"})
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "createdAt")
}

func TestRecentMessagesWindow(t *testing.T) {
	msgs := []Message{{Content: "1"}, {Content: "2"}, {Content: "3"}}
	assert.Equal(t, msgs[1:], RecentMessages(msgs, 2))
	assert.Equal(t, msgs, RecentMessages(msgs, 10))
	assert.Nil(t, RecentMessages(msgs, 0))
}
