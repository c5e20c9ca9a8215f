// Package sessionstore implements the Session Store (§4.5): maps
// (user_id, working_directory) to a resumable agent session identity,
// accumulates cost/tool-usage stats, and times sessions out.
package sessionstore

import (
	"fmt"
	"hash/fnv"
	"time"

	"github.com/agentbridge/core/pkg/agentproto"
)

// Store is the Session Store contract. Every method is safe for
// concurrent use.
type Store interface {
	// GetOrCreate returns the existing session for (userID, workingDir,
	// sessionID) if one is on record, or creates a new temp_-prefixed
	// session (IsNew=true).
	GetOrCreate(userID int64, workingDir, sessionID string) (*agentproto.Session, error)

	// Update commits a completed run: rekeys a new session to the
	// agent-issued id, bumps LastUsed/MessageCount/TotalCost, and unions
	// ToolsUsed.
	Update(oldSessionID string, resp *agentproto.AgentResponse) (*agentproto.Session, error)

	// CleanupExpired removes sessions whose LastUsed is older than
	// timeout and returns how many were removed.
	CleanupExpired(timeout time.Duration) (int, error)

	// ListUserSessions returns userID's sessions ordered by LastUsed
	// descending.
	ListUserSessions(userID int64) ([]*agentproto.Session, error)

	// MostRecentNonTemp returns the most recently used non-temporary
	// session for (userID, workingDir), for continue_session (§4.6).
	MostRecentNonTemp(userID int64, workingDir string) (*agentproto.Session, error)
}

// key is the (user, working directory) pair behind the secondary index
// and the temporary session id.
type key struct {
	userID     int64
	workingDir string
}

func tempSessionID(k key) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(k.workingDir))
	return fmt.Sprintf("temp_%d_%x", k.userID, h.Sum64())
}

// IsTemp reports whether id was assigned by GetOrCreate rather than by
// an agent back-end.
func IsTemp(id string) bool {
	return len(id) >= 5 && id[:5] == "temp_"
}
