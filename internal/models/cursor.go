package models

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Cursor is the (created_at, id) key of the last post a viewer has seen.
// Feed order is created_at desc, then id desc.
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

func CursorOf(p Post) Cursor {
	return Cursor{CreatedAt: p.CreatedAt, ID: p.ID}
}

// After reports whether a post with key k sorts strictly after c in feed order.
func (c Cursor) After(k Cursor) bool {
	if !k.CreatedAt.Equal(c.CreatedAt) {
		return k.CreatedAt.Before(c.CreatedAt)
	}
	return bytes.Compare(k.ID[:], c.ID[:]) < 0
}

func (c Cursor) Encode() string {
	raw := strconv.FormatInt(c.CreatedAt.UnixMicro(), 10) + "|" + c.ID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func DecodeCursor(s string) (Cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Cursor{}, fmt.Errorf("cursor: %w", ErrInvalid)
	}
	ts, id, ok := strings.Cut(string(raw), "|")
	if !ok {
		return Cursor{}, fmt.Errorf("cursor: %w", ErrInvalid)
	}
	micros, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return Cursor{}, fmt.Errorf("cursor timestamp: %w", ErrInvalid)
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return Cursor{}, fmt.Errorf("cursor id: %w", ErrInvalid)
	}
	return Cursor{CreatedAt: time.UnixMicro(micros).UTC(), ID: parsed}, nil
}

// FeedLess orders posts newest first with id descending as the tie-break.
func FeedLess(a, b Post) bool {
	return CursorOf(a).After(CursorOf(b))
}
