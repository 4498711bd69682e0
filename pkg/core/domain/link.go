package domain

import (
	"encoding/json"
	"math"
	"strings"
	"time"
)

// MaxValidFor is the longest time limit a link can carry, in whole milliseconds.
const MaxValidFor = time.Duration(math.MaxInt64/int64(time.Millisecond)) * time.Millisecond

// ValidForMillis converts a time limit in milliseconds, clamping it to [0, MaxValidFor].
func ValidForMillis(ms int64) time.Duration {
	switch {
	case ms <= 0:
		return 0
	case ms > MaxValidFor.Milliseconds():
		return MaxValidFor
	}
	return time.Duration(ms) * time.Millisecond
}

// Link is a stored mapping from a short id to a destination URL.
// MaxUses and ValidFor of zero mean unlimited.
type Link struct {
	ID          string
	RedirectTo  string
	MaxUses     int64
	Invocations int64
	CreatedAt   time.Time
	ValidFor    time.Duration
}

// IsInvalid reports whether the link is expired by age or exhausted by use at now.
func (l *Link) IsInvalid(now time.Time) bool {
	if l.ValidFor != 0 && now.Sub(l.CreatedAt) > l.ValidFor {
		return true
	}
	return l.MaxUses != 0 && l.Invocations >= l.MaxUses
}

// Formatted returns the public short URL of the link.
func (l *Link) Formatted(publicURL string) string {
	return strings.TrimRight(publicURL, "/") + "/" + l.ID
}

// ExpiresAt returns the moment the link stops resolving by age.
// ok is false for links without a time limit.
func (l *Link) ExpiresAt() (t time.Time, ok bool) {
	if l.ValidFor == 0 {
		return time.Time{}, false
	}
	return l.CreatedAt.Add(l.ValidFor), true
}

type linkJSON struct {
	ID          string `json:"id"`
	RedirectTo  string `json:"redirect_to"`
	MaxUses     int64  `json:"max_uses"`
	Invocations int64  `json:"invocations"`
	CreatedAt   int64  `json:"created_at"`
	ValidFor    int64  `json:"valid_for"`
	ExpiresAt   *int64 `json:"expires_at,omitempty"`
}

// MarshalJSON encodes timestamps and durations as milliseconds.
func (l Link) MarshalJSON() ([]byte, error) {
	out := linkJSON{
		ID:          l.ID,
		RedirectTo:  l.RedirectTo,
		MaxUses:     l.MaxUses,
		Invocations: l.Invocations,
		CreatedAt:   l.CreatedAt.UnixMilli(),
		ValidFor:    l.ValidFor.Milliseconds(),
	}
	if exp, ok := l.ExpiresAt(); ok {
		ms := exp.UnixMilli()
		out.ExpiresAt = &ms
	}
	return json.Marshal(out)
}

func (l *Link) UnmarshalJSON(data []byte) error {
	var in linkJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*l = Link{
		ID:          in.ID,
		RedirectTo:  in.RedirectTo,
		MaxUses:     in.MaxUses,
		Invocations: in.Invocations,
		CreatedAt:   time.UnixMilli(in.CreatedAt),
		ValidFor:    ValidForMillis(in.ValidFor),
	}
	return nil
}

// LinkConfig is a creation request. Nil fields take the configured defaults.
// ValidFor is in milliseconds.
type LinkConfig struct {
	Link     string  `json:"link"`
	CustomID *string `json:"custom_id,omitempty"`
	MaxUses  *int64  `json:"max_uses,omitempty"`
	ValidFor *int64  `json:"valid_for,omitempty"`
}

// UnmarshalJSON accepts "id" as an alias of "custom_id".
func (c *LinkConfig) UnmarshalJSON(data []byte) error {
	type plain LinkConfig
	var in struct {
		plain
		ID *string `json:"id"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*c = LinkConfig(in.plain)
	if c.CustomID == nil {
		c.CustomID = in.ID
	}
	return nil
}
