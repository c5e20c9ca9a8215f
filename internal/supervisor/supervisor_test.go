package supervisor

import (
	"context"
	"testing"

	"github.com/agentbridge/core/pkg/agentproto"
)

func TestPrimaryCLIBuildCommandOneShot(t *testing.T) {
	cliSup := NewPrimaryCLISupervisor(PrimaryCLIConfig{Model: "claude-sonnet-4-5"})

	argv, err := cliSup.build(agentproto.AgentRequest{Prompt: "hello", WorkingDirectory: "/work"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	want := []string{"claude", "--print", "--output-format", "stream-json", "--verbose", "--model", "claude-sonnet-4-5", "hello"}
	assertArgv(t, argv, want)
}

func TestPrimaryCLIBuildCommandResume(t *testing.T) {
	cliSup := NewPrimaryCLISupervisor(PrimaryCLIConfig{})

	argv, err := cliSup.build(agentproto.AgentRequest{
		Prompt: "continue", WorkingDirectory: "/work",
		SessionID: "sess-1", ContinueSession: true,
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !containsSeq(argv, []string{"--resume", "sess-1"}) {
		t.Fatalf("expected --resume sess-1 in %v", argv)
	}
}

func TestAlternateCLIBuildCommand(t *testing.T) {
	cliSup := NewAlternateCLISupervisor(AlternateCLIConfig{ForceMode: true, ApproveMCPs: true})

	argv, err := cliSup.build(agentproto.AgentRequest{Prompt: "do it", WorkingDirectory: "/work"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	want := []string{
		"cursor-agent", "-f", "--approve-mcps", "--print", "--output-format",
		"stream-json", "--stream-partial-output", "--workspace", "/work", "do it",
	}
	assertArgv(t, argv, want)
}

func TestAlternateCLIBuildCommandWithoutForceMode(t *testing.T) {
	cliSup := NewAlternateCLISupervisor(AlternateCLIConfig{})

	argv, err := cliSup.build(agentproto.AgentRequest{Prompt: "hi", WorkingDirectory: "/w"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	for _, a := range argv {
		if a == "-f" || a == "--approve-mcps" {
			t.Fatalf("did not expect %q when ForceMode/ApproveMCPs are false: %v", a, argv)
		}
	}
}

func TestDetectPrimaryUsageLimitExtractsResetTime(t *testing.T) {
	fragment, found := detectPrimaryUsageLimit("", "Claude AI usage limit reached. Resets at 3:00pm.")
	if !found {
		t.Fatal("expected usage limit to be detected")
	}
	if fragment != "3:00pm" {
		t.Fatalf("expected reset fragment %q, got %q", "3:00pm", fragment)
	}
}

func TestDetectPrimaryUsageLimitNoMatch(t *testing.T) {
	_, found := detectPrimaryUsageLimit("", "everything is fine")
	if found {
		t.Fatal("did not expect a usage limit match")
	}
}

func TestTrackerCancelFlagsUserAndInvokesCancelFuncs(t *testing.T) {
	tr := newTracker()
	_, ctx, cleanup := tr.register(context.Background(), 42)
	defer cleanup()

	if tr.cancelled(42) {
		t.Fatal("freshly registered user should not start cancelled")
	}

	tr.Cancel(42)

	if !tr.cancelled(42) {
		t.Fatal("expected cancelled flag to be set")
	}
	select {
	case <-ctx.Done():
	default:
		t.Fatal("expected run context to be cancelled")
	}
}

func TestTrackerCleanupRemovesProcess(t *testing.T) {
	tr := newTracker()
	_, _, cleanup := tr.register(context.Background(), 7)
	cleanup()

	tr.mu.Lock()
	_, exists := tr.userProcesses[7]
	tr.mu.Unlock()
	if exists {
		t.Fatal("expected user entry to be removed after cleanup")
	}
}

func assertArgv(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("argv length mismatch: got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("argv[%d]: got %q want %q (full: %v)", i, got[i], want[i], got)
		}
	}
}

func containsSeq(haystack []string, seq []string) bool {
	for i := 0; i+len(seq) <= len(haystack); i++ {
		match := true
		for j := range seq {
			if haystack[i+j] != seq[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
