// Package memstore is an in-memory store.Store. It enforces the same
// foreign keys as the Postgres schema (checked per statement, with no
// cascading except moderation meta) and rolls back failed transactions,
// so it doubles as the test fake and as STORE_BACKEND=memory.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"marginalia/api/internal/store"
)

type Store struct {
	mu     sync.Mutex
	st     *state
	faults map[string]error
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		st: &state{
			documents:  map[int64]store.Document{},
			files:      map[int64]store.DocumentFile{},
			highlights: map[int64]store.Highlight{},
			rects:      map[int64]store.Rect{},
			comments:   map[int64]store.Comment{},
			metas:      map[int64]store.ModerationMeta{},
			epoch:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		faults: map[string]error{},
	}
}

// FailOn makes every later call of the named Querier method return err.
// Passing a nil error clears the fault.
func (s *Store) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.faults, method)
		return
	}
	s.faults[method] = err
}

// ForceParent rewrites a comment's parent pointer without any checks. Tests
// use it to build graphs the normal insert path refuses, such as cycles.
func (s *Store) ForceParent(commentID, parentID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.st.comments[commentID]
	if !ok {
		return
	}
	c.ParentID = &parentID
	s.st.comments[commentID] = c
}

// Counts reports the number of rows per table.
func (s *Store) Counts() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]int{
		"documents":               len(s.st.documents),
		"document_files":          len(s.st.files),
		"highlights":              len(s.st.highlights),
		"highlight_rects":         len(s.st.rects),
		"comments":                len(s.st.comments),
		"comment_moderation_meta": len(s.st.metas),
	}
}

func (s *Store) InTx(ctx context.Context, fn func(q store.Querier) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.st.clone()
	if err := fn(&txQuerier{st: work, faults: s.faults}); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) do(fn func(q *txQuerier) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&txQuerier{st: s.st, faults: s.faults})
}

type state struct {
	documents  map[int64]store.Document
	files      map[int64]store.DocumentFile
	highlights map[int64]store.Highlight
	rects      map[int64]store.Rect
	comments   map[int64]store.Comment
	metas      map[int64]store.ModerationMeta // keyed by comment id
	seq        int64
	tick       int64
	epoch      time.Time
}

func (st *state) clone() *state {
	out := &state{
		documents:  make(map[int64]store.Document, len(st.documents)),
		files:      make(map[int64]store.DocumentFile, len(st.files)),
		highlights: make(map[int64]store.Highlight, len(st.highlights)),
		rects:      make(map[int64]store.Rect, len(st.rects)),
		comments:   make(map[int64]store.Comment, len(st.comments)),
		metas:      make(map[int64]store.ModerationMeta, len(st.metas)),
		seq:        st.seq,
		tick:       st.tick,
		epoch:      st.epoch,
	}
	for k, v := range st.documents {
		out.documents[k] = v
	}
	for k, v := range st.files {
		out.files[k] = v
	}
	for k, v := range st.highlights {
		out.highlights[k] = v
	}
	for k, v := range st.rects {
		out.rects[k] = v
	}
	for k, v := range st.comments {
		v.ParentID = copyID(v.ParentID)
		out.comments[k] = v
	}
	for k, v := range st.metas {
		v.SuggestionReason = copyText(v.SuggestionReason)
		v.DeletionReason = copyText(v.DeletionReason)
		out.metas[k] = v
	}
	return out
}

func (st *state) nextID() int64 {
	st.seq++
	return st.seq
}

// now advances a logical clock so every write gets a distinct, ordered
// timestamp.
func (st *state) now() time.Time {
	st.tick++
	return st.epoch.Add(time.Duration(st.tick) * time.Millisecond)
}

func copyID(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyText(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func idSet(ids []int64) map[int64]bool {
	out := make(map[int64]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out
}

func fkError(table, constraint string) error {
	return fmt.Errorf("%s: violates foreign key constraint %q", table, constraint)
}

func normalizeTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}

func sortComments(items []store.Comment) {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})
}
