package sessionstore

import (
	"sort"
	"sync"
	"time"

	"github.com/agentbridge/core/pkg/agentproto"
)

// MemoryStore is the default Store implementation: an in-memory map,
// adequate for a single-process deployment or tests. Every lookup is
// keyed by session id; (user, working directory) resolution is a
// secondary index maintained alongside it.
type MemoryStore struct {
	mu          sync.RWMutex
	byID        map[string]*agentproto.Session
	byUserAndWD map[key]string // -> session id
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:        make(map[string]*agentproto.Session),
		byUserAndWD: make(map[key]string),
	}
}

func (s *MemoryStore) GetOrCreate(userID int64, workingDir, sessionID string) (*agentproto.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sessionID != "" {
		if sess, ok := s.byID[sessionID]; ok && sess.UserID == userID {
			sess.IsNew = false
			return sess.Clone(), nil
		}
	}

	k := key{userID: userID, workingDir: workingDir}
	now := time.Now().UTC()
	sess := &agentproto.Session{
		SessionID:   tempSessionID(k),
		UserID:      userID,
		ProjectPath: workingDir,
		CreatedAt:   now,
		LastUsed:    now,
		ToolsUsed:   make(map[string]struct{}),
		IsNew:       true,
	}
	s.byID[sess.SessionID] = sess
	s.byUserAndWD[k] = sess.SessionID

	return sess.Clone(), nil
}

func (s *MemoryStore) Update(oldSessionID string, resp *agentproto.AgentResponse) (*agentproto.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.byID[oldSessionID]
	if !ok {
		return nil, &agentproto.SessionNotFoundError{SessionID: oldSessionID}
	}

	newID := oldSessionID
	if sess.IsNew && resp.SessionID != "" && resp.SessionID != oldSessionID {
		newID = resp.SessionID
		delete(s.byID, oldSessionID)
		sess.SessionID = newID
		s.byID[newID] = sess
		s.byUserAndWD[key{userID: sess.UserID, workingDir: sess.ProjectPath}] = newID
	}
	sess.IsNew = false
	sess.LastUsed = time.Now().UTC()
	sess.TotalCost += resp.Cost
	sess.MessageCount++
	for _, tu := range resp.ToolsUsed {
		sess.ToolsUsed[tu.Name] = struct{}{}
	}

	return sess.Clone(), nil
}

func (s *MemoryStore) CleanupExpired(timeout time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().UTC().Add(-timeout)
	removed := 0
	for id, sess := range s.byID {
		if sess.LastUsed.UTC().Before(cutoff) {
			delete(s.byID, id)
			delete(s.byUserAndWD, key{userID: sess.UserID, workingDir: sess.ProjectPath})
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) ListUserSessions(userID int64) ([]*agentproto.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*agentproto.Session
	for _, sess := range s.byID {
		if sess.UserID == userID {
			out = append(out, sess.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastUsed.After(out[j].LastUsed) })
	return out, nil
}

func (s *MemoryStore) MostRecentNonTemp(userID int64, workingDir string) (*agentproto.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *agentproto.Session
	for _, sess := range s.byID {
		if sess.UserID != userID || sess.ProjectPath != workingDir || IsTemp(sess.SessionID) {
			continue
		}
		if best == nil || sess.LastUsed.After(best.LastUsed) {
			best = sess
		}
	}
	if best == nil {
		return nil, &agentproto.SessionNotFoundError{SessionID: ""}
	}
	return best.Clone(), nil
}
