// Package content defines the immutable content view consumed by the
// TabCoin transition engine.
package content

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Status is the lifecycle status of a content row.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusDeleted   Status = "deleted"
	StatusArchived  Status = "archived"
	StatusSpam      Status = "spam"
	StatusPending   Status = "pending"
)

// Type distinguishes top-level contents from other kinds of entries.
type Type string

const (
	TypeContent Type = "content"
	TypeComment Type = "comment"
)

// Snapshot is an immutable view of a content row at a point in its
// lifecycle. A (old, new) pair describes one transition of the same
// logical content id; old may be nil on creation.
type Snapshot struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`
	Status  Status `json:"status"`
	Type    Type   `json:"type"`

	// PublishedAt is nil while the content has never been published.
	PublishedAt *time.Time `json:"published_at,omitempty"`

	// ParentID is empty for root contents. ParentOwnerID may be empty
	// even when ParentID is set, in which case it must be looked up.
	ParentID      string `json:"parent_id,omitempty"`
	ParentOwnerID string `json:"parent_owner_id,omitempty"`

	// Tabcoins is the current net score for the content.
	Tabcoins int64 `json:"tabcoins"`

	Body string `json:"body"`
}

// Published reports whether the snapshot has ever been published.
func (s *Snapshot) Published() bool {
	return s != nil && s.PublishedAt != nil
}

// IsRoot reports whether the content has no parent.
func (s *Snapshot) IsRoot() bool {
	return s != nil && s.ParentID == ""
}

const (
	minRelevantWords = 5
	minWordLength    = 5
)

// HasSubstance reports whether the body clears the minimum-substance
// threshold: at least 5 distinct words of 5 or more characters each.
func HasSubstance(body string) bool {
	seen := make(map[string]struct{})
	for _, word := range strings.Fields(body) {
		if utf8.RuneCountInString(word) < minWordLength {
			continue
		}
		seen[strings.ToLower(word)] = struct{}{}
		if len(seen) >= minRelevantWords {
			return true
		}
	}
	return false
}
