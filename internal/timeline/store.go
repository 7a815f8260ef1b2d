// Package timeline holds the append-only run log shown to the user.
package timeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/job-agent/internal/types"
)

// Store is an ordered, append-only collection of timeline entries plus the UI state
// attached to them. Entries are only ever mutated through UpdateLast and MergeMetadata;
// nothing is reordered or deleted except by Reset and placeholder resolution.
//
// Store is not safe for concurrent use. Its owner serializes access.
type Store struct {
	entries     []types.TimelineEntry
	placeholder string // ID of the active placeholder, "" when none
	expanded    map[string]bool
	newID       func() string
	now         func() time.Time
}

// Patch describes a partial update of an entry. Nil fields are left alone;
// Metadata is merged key by key.
type Patch struct {
	Kind      *types.EntryKind
	Content   *string
	Status    *types.EntryStatus
	Timestamp *time.Time
	Metadata  map[string]any
}

// Option configures a Store
type Option func(*Store)

// WithIDGenerator overrides the entry ID source
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

// WithClock overrides the time source used for placeholder timestamps
func WithClock(fn func() time.Time) Option {
	return func(s *Store) { s.now = fn }
}

// NewStore creates an empty store
func NewStore(opts ...Option) *Store {
	s := &Store{
		expanded: make(map[string]bool),
		newID:    uuid.NewString,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append adds an entry at the end and returns the stored copy.
// A fresh ID is assigned when the entry has none. An active placeholder is
// resolved first: the new entry takes its slot.
func (s *Store) Append(entry types.TimelineEntry) types.TimelineEntry {
	if entry.ID == "" {
		entry.ID = s.newID()
	}
	entry = entry.Clone()

	if s.placeholder != "" {
		// The placeholder is always the last entry while active
		last := len(s.entries) - 1
		delete(s.expanded, s.placeholder)
		s.placeholder = ""
		s.entries[last] = entry
		return entry.Clone()
	}

	s.entries = append(s.entries, entry)
	return entry.Clone()
}

// UpdateLast merges patch into the most recently appended entry.
// Returns false when the log is empty.
func (s *Store) UpdateLast(patch Patch) bool {
	if len(s.entries) == 0 {
		return false
	}
	applyPatch(&s.entries[len(s.entries)-1], patch)
	return true
}

// StartPlaceholder shows the single transient "in progress" entry.
// If one is already active it is updated in place instead of duplicated.
func (s *Store) StartPlaceholder(kind types.EntryKind, content string) types.TimelineEntry {
	if s.placeholder != "" {
		last := &s.entries[len(s.entries)-1]
		last.Kind = kind
		last.Content = content
		last.Timestamp = s.now()
		return last.Clone()
	}

	entry := types.TimelineEntry{
		ID:        s.newID(),
		Kind:      kind,
		Content:   content,
		Timestamp: s.now(),
	}
	s.entries = append(s.entries, entry)
	s.placeholder = entry.ID
	return entry.Clone()
}

// StopPlaceholder removes the active placeholder. Returns false when there was none.
func (s *Store) StopPlaceholder() bool {
	if s.placeholder == "" {
		return false
	}
	delete(s.expanded, s.placeholder)
	s.entries = s.entries[:len(s.entries)-1]
	s.placeholder = ""
	return true
}

// Placeholder returns the active placeholder entry, if any
func (s *Store) Placeholder() (types.TimelineEntry, bool) {
	if s.placeholder == "" {
		return types.TimelineEntry{}, false
	}
	return s.entries[len(s.entries)-1].Clone(), true
}

// Reset clears the whole log, including the placeholder and expansion state
func (s *Store) Reset() {
	s.entries = nil
	s.placeholder = ""
	s.expanded = make(map[string]bool)
}

// ToggleExpansion flips the expansion flag for an entry and returns the new value.
// It is UI state only and does not touch entry content.
func (s *Store) ToggleExpansion(id string) bool {
	if s.expanded[id] {
		delete(s.expanded, id)
		return false
	}
	s.expanded[id] = true
	return true
}

// IsExpanded reports the expansion flag for an entry
func (s *Store) IsExpanded(id string) bool {
	return s.expanded[id]
}

// Expanded returns the IDs of all expanded entries
func (s *Store) Expanded() map[string]bool {
	out := make(map[string]bool, len(s.expanded))
	for id := range s.expanded {
		out[id] = true
	}
	return out
}

// Entries returns a copy of the log in display order
func (s *Store) Entries() []types.TimelineEntry {
	out := make([]types.TimelineEntry, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Clone()
	}
	return out
}

// Len returns the number of entries, placeholder included
func (s *Store) Len() int {
	return len(s.entries)
}

// Last returns the most recent entry
func (s *Store) Last() (types.TimelineEntry, bool) {
	if len(s.entries) == 0 {
		return types.TimelineEntry{}, false
	}
	return s.entries[len(s.entries)-1].Clone(), true
}

// At returns the entry at index i
func (s *Store) At(i int) types.TimelineEntry {
	return s.entries[i].Clone()
}

// FindLast scans backward from the newest entry and returns the index of the
// first entry matching pred, or -1. The placeholder is never matched.
func (s *Store) FindLast(pred func(types.TimelineEntry) bool) int {
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].ID == s.placeholder {
			continue
		}
		if pred(s.entries[i]) {
			return i
		}
	}
	return -1
}

// ContainsContent reports whether any non-placeholder entry has exactly this content
func (s *Store) ContainsContent(content string) bool {
	return s.FindLast(func(e types.TimelineEntry) bool { return e.Content == content }) >= 0
}

// MergeMetadata backfills metadata into the entry at index i
func (s *Store) MergeMetadata(i int, md map[string]any) {
	applyPatch(&s.entries[i], Patch{Metadata: md})
}

func applyPatch(e *types.TimelineEntry, p Patch) {
	if p.Kind != nil {
		e.Kind = *p.Kind
	}
	if p.Content != nil {
		e.Content = *p.Content
	}
	if p.Status != nil {
		e.Status = *p.Status
	}
	if p.Timestamp != nil {
		e.Timestamp = *p.Timestamp
	}
	if len(p.Metadata) > 0 {
		if e.Metadata == nil {
			e.Metadata = make(map[string]any, len(p.Metadata))
		}
		for k, v := range p.Metadata {
			e.Metadata[k] = v
		}
	}
}
