// Package domain defines the per-creator lifetime history and its merge rules.
package domain

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"
)

var (
	ErrEntryNotFound = errors.New("history_entry_not_found")
	ErrInvalidTier   = errors.New("invalid_bonus_tier")
	ErrEmptyKey      = errors.New("empty_creator_key")
)

// TierSet is the set of bonus tiers {1,2,3} already paid to a creator.
type TierSet uint8

// Has reports whether tier is in the set.
func (s TierSet) Has(tier int) bool {
	if tier < 1 || tier > 3 {
		return false
	}
	return s&(1<<(tier-1)) != 0
}

// With returns the set plus tier.
func (s TierSet) With(tier int) TierSet {
	if tier < 1 || tier > 3 {
		return s
	}
	return s | 1<<(tier-1)
}

// Tiers lists the members in ascending order.
func (s TierSet) Tiers() []int {
	out := []int{}
	for tier := 1; tier <= 3; tier++ {
		if s.Has(tier) {
			out = append(out, tier)
		}
	}
	return out
}

func (s TierSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Tiers())
}

func (s *TierSet) UnmarshalJSON(data []byte) error {
	var tiers []int
	if err := json.Unmarshal(data, &tiers); err != nil {
		return err
	}
	var out TierSet
	for _, tier := range tiers {
		if tier < 1 || tier > 3 {
			return ErrInvalidTier
		}
		out = out.With(tier)
	}
	*s = out
	return nil
}

// Entry holds the lifetime facts of one creator.
type Entry struct {
	CreatorKey        string     `json:"creator_key"`
	BonusTiersUsed    TierSet    `json:"bonus_tier_used"`
	Confirmed         bool       `json:"confirmed"`
	FirstRelationDate *time.Time `json:"first_relation_date,omitempty"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Equal compares the lifetime facts, ignoring UpdatedAt.
func (e Entry) Equal(o Entry) bool {
	if e.CreatorKey != o.CreatorKey || e.BonusTiersUsed != o.BonusTiersUsed || e.Confirmed != o.Confirmed {
		return false
	}
	switch {
	case e.FirstRelationDate == nil && o.FirstRelationDate == nil:
		return true
	case e.FirstRelationDate == nil || o.FirstRelationDate == nil:
		return false
	}
	return e.FirstRelationDate.Equal(*o.FirstRelationDate)
}

// Merge combines two entries for the same creator. Booleans are OR-ed, tier
// sets are united and the earliest relation date wins, so the result does
// not depend on argument order.
func Merge(a, b Entry) Entry {
	out := Entry{
		CreatorKey:        a.CreatorKey,
		BonusTiersUsed:    a.BonusTiersUsed | b.BonusTiersUsed,
		Confirmed:         a.Confirmed || b.Confirmed,
		FirstRelationDate: EarliestDate(a.FirstRelationDate, b.FirstRelationDate),
		UpdatedAt:         a.UpdatedAt,
	}
	if out.CreatorKey == "" || (b.CreatorKey != "" && b.CreatorKey < out.CreatorKey) {
		out.CreatorKey = b.CreatorKey
	}
	if b.UpdatedAt.After(out.UpdatedAt) {
		out.UpdatedAt = b.UpdatedAt
	}
	return out
}

// EarliestDate returns the earlier of two optional dates.
func EarliestDate(a, b *time.Time) *time.Time {
	switch {
	case a == nil && b == nil:
		return nil
	case a == nil:
		d := *b
		return &d
	case b == nil || !b.Before(*a):
		d := *a
		return &d
	}
	d := *b
	return &d
}

// NormalizeKey trims a creator key.
func NormalizeKey(key string) string {
	return strings.TrimSpace(key)
}

// Snapshot is a deduplicated set of entries keyed by creator.
type Snapshot map[string]Entry

// NewSnapshot builds a snapshot, merging entries that share a key.
func NewSnapshot(entries ...Entry) Snapshot {
	s := make(Snapshot, len(entries))
	for _, e := range entries {
		s.Apply(e)
	}
	return s
}

// Get returns the stored entry or an empty one for key.
func (s Snapshot) Get(key string) Entry {
	key = NormalizeKey(key)
	if e, ok := s[key]; ok {
		return e
	}
	return Entry{CreatorKey: key}
}

// Apply merges e into the snapshot.
func (s Snapshot) Apply(e Entry) {
	e.CreatorKey = NormalizeKey(e.CreatorKey)
	if e.CreatorKey == "" {
		return
	}
	if cur, ok := s[e.CreatorKey]; ok {
		s[e.CreatorKey] = Merge(cur, e)
		return
	}
	s[e.CreatorKey] = e
}

// MergeSnapshot merges every entry of o into s.
func (s Snapshot) MergeSnapshot(o Snapshot) {
	for _, e := range o {
		s.Apply(e)
	}
}

// Entries returns the entries ordered by key.
func (s Snapshot) Entries() []Entry {
	out := make([]Entry, 0, len(s))
	for _, e := range s {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatorKey < out[j].CreatorKey })
	return out
}

// Store persists history. Save merges the given entries into what is
// already stored; it never regresses a stored fact.
type Store interface {
	Load(ctx context.Context) ([]Entry, error)
	Save(ctx context.Context, entries []Entry) error
	// Find returns one creator's entry, or nil when it was never observed.
	Find(ctx context.Context, key string) (*Entry, error)
}

// KeyedLoader is implemented by stores that can load a subset of creators.
type KeyedLoader interface {
	LoadKeys(ctx context.Context, keys []string) ([]Entry, error)
}
