package sessionstore

import (
	"testing"
	"time"

	"github.com/agentbridge/core/pkg/agentproto"
)

func TestGetOrCreateCreatesTempSession(t *testing.T) {
	s := NewMemoryStore()

	sess, err := s.GetOrCreate(1, "/work", "")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if !sess.IsNew {
		t.Fatal("expected IsNew=true for a freshly created session")
	}
	if !IsTemp(sess.SessionID) {
		t.Fatalf("expected temp_-prefixed id, got %q", sess.SessionID)
	}
}

func TestGetOrCreateReturnsExistingSession(t *testing.T) {
	s := NewMemoryStore()
	first, _ := s.GetOrCreate(1, "/work", "")

	second, err := s.GetOrCreate(1, "/work", first.SessionID)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if second.IsNew {
		t.Fatal("expected IsNew=false for a resumed session")
	}
	if second.SessionID != first.SessionID {
		t.Fatalf("expected same session id, got %q vs %q", second.SessionID, first.SessionID)
	}
}

func TestGetOrCreateIgnoresOtherUsersSession(t *testing.T) {
	s := NewMemoryStore()
	first, _ := s.GetOrCreate(1, "/work", "")

	other, err := s.GetOrCreate(2, "/work", first.SessionID)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if other.SessionID == first.SessionID {
		t.Fatal("expected a different session for a different user")
	}
	if !other.IsNew {
		t.Fatal("expected a brand new session when the id belongs to another user")
	}
}

func TestUpdateRekeysNewSessionToAgentIssuedID(t *testing.T) {
	s := NewMemoryStore()
	sess, _ := s.GetOrCreate(1, "/work", "")

	updated, err := s.Update(sess.SessionID, &agentproto.AgentResponse{
		SessionID: "agent-issued-123",
		Cost:      0.05,
		ToolsUsed: []agentproto.ToolUse{{Name: "read_file"}},
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.SessionID != "agent-issued-123" {
		t.Fatalf("expected rekey to agent-issued-123, got %q", updated.SessionID)
	}
	if updated.IsNew {
		t.Fatal("expected IsNew=false after Update")
	}
	if updated.TotalCost != 0.05 {
		t.Fatalf("expected TotalCost=0.05, got %v", updated.TotalCost)
	}
	if updated.MessageCount != 1 {
		t.Fatalf("expected MessageCount=1, got %d", updated.MessageCount)
	}
	if _, ok := updated.ToolsUsed["read_file"]; !ok {
		t.Fatal("expected read_file in ToolsUsed")
	}

	if _, err := s.Update(sess.SessionID, &agentproto.AgentResponse{}); err == nil {
		t.Fatal("expected the old session id to no longer resolve after rekey")
	}
}

func TestUpdateUnknownSessionReturnsSessionNotFound(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Update("does-not-exist", &agentproto.AgentResponse{})
	var notFound *agentproto.SessionNotFoundError
	if !asSessionNotFound(err, &notFound) {
		t.Fatalf("expected SessionNotFoundError, got %v", err)
	}
}

func asSessionNotFound(err error, target **agentproto.SessionNotFoundError) bool {
	if e, ok := err.(*agentproto.SessionNotFoundError); ok {
		*target = e
		return true
	}
	return false
}

func TestCleanupExpiredRemovesStaleSessions(t *testing.T) {
	s := NewMemoryStore()
	sess, _ := s.GetOrCreate(1, "/work", "")

	s.mu.Lock()
	s.byID[sess.SessionID].LastUsed = time.Now().UTC().Add(-48 * time.Hour)
	s.mu.Unlock()

	removed, err := s.CleanupExpired(24 * time.Hour)
	if err != nil {
		t.Fatalf("CleanupExpired: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed session, got %d", removed)
	}

	if _, err := s.Update(sess.SessionID, &agentproto.AgentResponse{}); err == nil {
		t.Fatal("expected the expired session to be gone")
	}
}

func TestListUserSessionsOrderedByLastUsedDescending(t *testing.T) {
	s := NewMemoryStore()
	a, _ := s.GetOrCreate(1, "/a", "")
	b, _ := s.GetOrCreate(1, "/b", "")

	s.mu.Lock()
	s.byID[a.SessionID].LastUsed = time.Now().UTC().Add(-time.Hour)
	s.byID[b.SessionID].LastUsed = time.Now().UTC()
	s.mu.Unlock()

	list, err := s.ListUserSessions(1)
	if err != nil {
		t.Fatalf("ListUserSessions: %v", err)
	}
	if len(list) != 2 || list[0].SessionID != b.SessionID {
		t.Fatalf("expected %q first, got %+v", b.SessionID, list)
	}
}

func TestMostRecentNonTempSkipsTempSessions(t *testing.T) {
	s := NewMemoryStore()
	sess, _ := s.GetOrCreate(1, "/work", "")

	if _, err := s.MostRecentNonTemp(1, "/work"); err == nil {
		t.Fatal("expected no non-temp session yet")
	}

	updated, _ := s.Update(sess.SessionID, &agentproto.AgentResponse{SessionID: "real-session"})

	found, err := s.MostRecentNonTemp(1, "/work")
	if err != nil {
		t.Fatalf("MostRecentNonTemp: %v", err)
	}
	if found.SessionID != updated.SessionID {
		t.Fatalf("expected %q, got %q", updated.SessionID, found.SessionID)
	}
}
