package session

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"pdf-analyzer/internal/chromemdb"
	"pdf-analyzer/internal/models"
)

// Session owns the current Index and the question/answer log of one user
// interaction. It is passed explicitly into every pipeline operation.
type Session struct {
	ID        string
	CreatedAt time.Time

	index atomic.Pointer[chromemdb.Index]

	mu  sync.RWMutex
	log []models.QARecord
}

// New creates an empty session with a random ID.
func New() *Session {
	return &Session{ID: uuid.NewString(), CreatedAt: time.Now()}
}

// Index returns the current index, or nil before the first successful process.
func (s *Session) Index() *chromemdb.Index {
	return s.index.Load()
}

// ReplaceIndex swaps in a fully built index. Readers see either the old or
// the new index, never a partial one.
func (s *Session) ReplaceIndex(idx *chromemdb.Index) {
	s.index.Store(idx)
}

// Append adds an answered turn to the end of the log.
func (s *Session) Append(rec models.QARecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = append(s.log, rec)
}

// History returns every record in chronological order.
func (s *Session) History() []models.QARecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.log)
}

// Latest returns the most recent record.
func (s *Session) Latest() (models.QARecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.log) == 0 {
		return models.QARecord{}, false
	}
	return s.log[len(s.log)-1], true
}

// Previous returns every record except the latest, newest first.
func (s *Session) Previous() []models.QARecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.log) < 2 {
		return nil
	}
	prev := slices.Clone(s.log[:len(s.log)-1])
	slices.Reverse(prev)
	return prev
}

// Len is the number of records in the log.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.log)
}
