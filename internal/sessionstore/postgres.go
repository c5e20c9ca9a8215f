package sessionstore

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agentbridge/core/pkg/agentproto"
)

// PostgresStore implements Store backed by Postgres, with an in-memory
// read-through cache keyed by session id so a tool-heavy run that calls
// Update repeatedly doesn't round-trip to the database per call,
// following the teacher's PGSessionStore (internal/store/pg/sessions.go).
type PostgresStore struct {
	pool *pgxpool.Pool

	mu    sync.RWMutex
	cache map[string]*agentproto.Session
}

// NewPostgresStore wraps an already-connected pool. Run the migrations
// under migrations/ before first use.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, cache: make(map[string]*agentproto.Session)}
}

func (s *PostgresStore) GetOrCreate(userID int64, workingDir, sessionID string) (*agentproto.Session, error) {
	ctx := context.Background()

	if sessionID != "" {
		if sess, err := s.load(ctx, sessionID); err == nil && sess.UserID == userID {
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

	toolsJSON, _ := json.Marshal(toolNames(sess.ToolsUsed))
	_, err := s.pool.Exec(ctx,
		`INSERT INTO agent_sessions
			(session_id, user_id, project_path, created_at, last_used, total_cost, message_count, tools_used)
		 VALUES ($1, $2, $3, $4, $5, 0, 0, $6)
		 ON CONFLICT (session_id) DO NOTHING`,
		sess.SessionID, sess.UserID, sess.ProjectPath, sess.CreatedAt, sess.LastUsed, toolsJSON,
	)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cache[sess.SessionID] = sess
	s.mu.Unlock()

	return sess.Clone(), nil
}

func (s *PostgresStore) Update(oldSessionID string, resp *agentproto.AgentResponse) (*agentproto.Session, error) {
	ctx := context.Background()

	sess, err := s.load(ctx, oldSessionID)
	if err != nil {
		return nil, &agentproto.SessionNotFoundError{SessionID: oldSessionID}
	}

	newID := oldSessionID
	rekey := sess.IsNew && resp.SessionID != "" && resp.SessionID != oldSessionID
	if rekey {
		newID = resp.SessionID
	}
	sess.IsNew = false
	sess.LastUsed = time.Now().UTC()
	sess.TotalCost += resp.Cost
	sess.MessageCount++
	for _, tu := range resp.ToolsUsed {
		sess.ToolsUsed[tu.Name] = struct{}{}
	}
	sess.SessionID = newID

	toolsJSON, _ := json.Marshal(toolNames(sess.ToolsUsed))

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if rekey {
		if _, err := tx.Exec(ctx, `DELETE FROM agent_sessions WHERE session_id = $1`, oldSessionID); err != nil {
			return nil, err
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO agent_sessions
				(session_id, user_id, project_path, created_at, last_used, total_cost, message_count, tools_used)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			newID, sess.UserID, sess.ProjectPath, sess.CreatedAt, sess.LastUsed, sess.TotalCost, sess.MessageCount, toolsJSON,
		)
	} else {
		_, err = tx.Exec(ctx,
			`UPDATE agent_sessions SET last_used = $1, total_cost = $2, message_count = $3, tools_used = $4
			 WHERE session_id = $5`,
			sess.LastUsed, sess.TotalCost, sess.MessageCount, toolsJSON, oldSessionID,
		)
	}
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if rekey {
		delete(s.cache, oldSessionID)
	}
	s.cache[newID] = sess
	s.mu.Unlock()

	return sess.Clone(), nil
}

func (s *PostgresStore) CleanupExpired(timeout time.Duration) (int, error) {
	ctx := context.Background()
	cutoff := time.Now().UTC().Add(-timeout)

	rows, err := s.pool.Query(ctx, `DELETE FROM agent_sessions WHERE last_used < $1 RETURNING session_id`, cutoff)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var removedIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			continue
		}
		removedIDs = append(removedIDs, id)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	for _, id := range removedIDs {
		delete(s.cache, id)
	}
	s.mu.Unlock()

	return len(removedIDs), nil
}

func (s *PostgresStore) ListUserSessions(userID int64) ([]*agentproto.Session, error) {
	ctx := context.Background()
	rows, err := s.pool.Query(ctx,
		`SELECT session_id, user_id, project_path, created_at, last_used, total_cost, message_count, tools_used
		 FROM agent_sessions WHERE user_id = $1 ORDER BY last_used DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*agentproto.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			continue
		}
		out = append(out, sess)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastUsed.After(out[j].LastUsed) })
	return out, rows.Err()
}

func (s *PostgresStore) MostRecentNonTemp(userID int64, workingDir string) (*agentproto.Session, error) {
	ctx := context.Background()
	row := s.pool.QueryRow(ctx,
		`SELECT session_id, user_id, project_path, created_at, last_used, total_cost, message_count, tools_used
		 FROM agent_sessions
		 WHERE user_id = $1 AND project_path = $2 AND session_id NOT LIKE 'temp_%'
		 ORDER BY last_used DESC LIMIT 1`, userID, workingDir)

	sess, err := scanSession(row)
	if err != nil {
		return nil, &agentproto.SessionNotFoundError{SessionID: ""}
	}
	return sess, nil
}

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(r rowScanner) (*agentproto.Session, error) {
	var sess agentproto.Session
	var toolsJSON []byte
	if err := r.Scan(&sess.SessionID, &sess.UserID, &sess.ProjectPath, &sess.CreatedAt, &sess.LastUsed,
		&sess.TotalCost, &sess.MessageCount, &toolsJSON); err != nil {
		return nil, err
	}
	var names []string
	_ = json.Unmarshal(toolsJSON, &names)
	sess.ToolsUsed = make(map[string]struct{}, len(names))
	for _, n := range names {
		sess.ToolsUsed[n] = struct{}{}
	}
	return &sess, nil
}

func (s *PostgresStore) load(ctx context.Context, sessionID string) (*agentproto.Session, error) {
	s.mu.RLock()
	if sess, ok := s.cache[sessionID]; ok {
		s.mu.RUnlock()
		return sess, nil
	}
	s.mu.RUnlock()

	row := s.pool.QueryRow(ctx,
		`SELECT session_id, user_id, project_path, created_at, last_used, total_cost, message_count, tools_used
		 FROM agent_sessions WHERE session_id = $1`, sessionID)
	sess, err := scanSession(row)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cache[sessionID] = sess
	s.mu.Unlock()
	return sess, nil
}

func toolNames(set map[string]struct{}) []string {
	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	return names
}
