package api

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/FocuswithJustin/TeiSync/core/align"
	"github.com/FocuswithJustin/TeiSync/core/errors"
	"github.com/FocuswithJustin/TeiSync/core/library"
)

// Side names one document of a session.
type Side string

const (
	SideSource Side = "source"
	SideDest   Side = "dest"
)

// ParseSide accepts "source" or "dest".
func ParseSide(s string) (Side, error) {
	switch Side(s) {
	case SideSource, SideDest:
		return Side(s), nil
	}
	return "", errors.NewUnsupported("side", "want source or dest, got "+s)
}

// Other returns the opposite side.
func (s Side) Other() Side {
	if s == SideSource {
		return SideDest
	}
	return SideSource
}

// DocumentInfo describes one side of a session.
type DocumentInfo struct {
	Path        string `json:"path"`
	Fingerprint string `json:"fingerprint"`
	Origin      string `json:"origin"`
	Length      int    `json:"length"`
	Segments    int    `json:"segments"`
	Notes       int    `json:"notes"`
}

// Session pairs two loaded editions for synchronized navigation.
type Session struct {
	ID        string       `json:"id"`
	Source    DocumentInfo `json:"source"`
	Dest      DocumentInfo `json:"dest"`
	CreatedAt time.Time    `json:"created_at"`
	LastUsed  time.Time    `json:"last_used"`

	pair align.Pair
}

// Pair returns the aligned document pair.
func (s *Session) Pair() align.Pair {
	return s.pair
}

// Resolve maps offset on side to the matching segment on the other side.
func (s *Session) Resolve(side Side, offset int) (align.Match, bool) {
	if side == SideSource {
		return s.pair.Forward(offset)
	}
	return s.pair.Backward(offset)
}

func describe(path string, l *library.Loaded) DocumentInfo {
	return DocumentInfo{
		Path:        path,
		Fingerprint: l.Fingerprint,
		Origin:      string(l.Origin),
		Length:      l.Doc.Len(),
		Segments:    len(l.Doc.Segments()),
		Notes:       len(l.Doc.Annotations()),
	}
}

// SessionStore keeps sessions in memory.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	max      int
	now      func() time.Time
}

// NewSessionStore creates a store holding at most max sessions
// (0 = unlimited).
func NewSessionStore(max int) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*Session),
		max:      max,
		now:      time.Now,
	}
}

// Create registers a session over two loaded documents.
func (s *SessionStore) Create(srcPath string, src *library.Loaded, dstPath string, dst *library.Loaded) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.max > 0 && len(s.sessions) >= s.max {
		return nil, errors.NewUnsupported("session", "session limit reached")
	}

	now := s.now().UTC()
	sess := &Session{
		ID:        uuid.New().String(),
		Source:    describe(srcPath, src),
		Dest:      describe(dstPath, dst),
		CreatedAt: now,
		LastUsed:  now,
		pair:      align.Pair{Source: src.Doc, Dest: dst.Doc},
	}
	s.sessions[sess.ID] = sess
	return sess, nil
}

// Get returns a session and marks it used.
func (s *SessionStore) Get(id string) (*Session, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, &errors.ValidationError{Field: "id", Value: id, Message: "not a session id", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, errors.NewNotFound("session", id)
	}
	sess.LastUsed = s.now().UTC()
	return sess, nil
}

// Delete removes a session.
func (s *SessionStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return errors.NewNotFound("session", id)
	}
	delete(s.sessions, id)
	return nil
}

// List returns all sessions, oldest first.
func (s *SessionStore) List() []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Len returns the number of open sessions.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Expire removes sessions unused for longer than idle and returns their ids.
func (s *SessionStore) Expire(idle time.Duration) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().UTC().Add(-idle)
	var expired []string
	for id, sess := range s.sessions {
		if sess.LastUsed.Before(cutoff) {
			delete(s.sessions, id)
			expired = append(expired, id)
		}
	}
	sort.Strings(expired)
	return expired
}
