package models

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	c := Cursor{CreatedAt: time.Date(2024, 5, 1, 12, 30, 0, 123456000, time.UTC), ID: uuid.New()}

	decoded, err := DecodeCursor(c.Encode())
	require.NoError(t, err)
	assert.True(t, c.CreatedAt.Equal(decoded.CreatedAt))
	assert.Equal(t, c.ID, decoded.ID)
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	for _, raw := range []string{
		"bad!",
		base64.RawURLEncoding.EncodeToString([]byte("no-separator")),
		base64.RawURLEncoding.EncodeToString([]byte("abc|" + uuid.NewString())),
		base64.RawURLEncoding.EncodeToString([]byte("1714566600000000|not-a-uuid")),
	} {
		_, err := DecodeCursor(raw)
		assert.ErrorIs(t, err, ErrInvalid, raw)
	}
}

func TestFeedLessBreaksTiesByID(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	low := Post{ID: uuid.MustParse("00000000-0000-0000-0000-000000000001"), CreatedAt: at}
	high := Post{ID: uuid.MustParse("00000000-0000-0000-0000-000000000002"), CreatedAt: at}
	newer := Post{ID: low.ID, CreatedAt: at.Add(time.Second)}

	assert.True(t, FeedLess(newer, high))
	assert.True(t, FeedLess(high, low))
	assert.False(t, FeedLess(low, high))
	assert.False(t, FeedLess(low, low))

	assert.True(t, CursorOf(high).After(CursorOf(low)))
	assert.False(t, CursorOf(low).After(CursorOf(low)))
}
