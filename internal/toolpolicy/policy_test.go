package toolpolicy

import (
	"path/filepath"
	"testing"
)

func TestValidateAllowListDenial(t *testing.T) {
	m := New(Config{AllowedTools: []string{"Read"}})
	ok, reason := m.Validate("Write", map[string]any{"path": "x.txt"}, t.TempDir(), 1)
	if ok || reason == "" {
		t.Fatalf("expected denial for tool not on allow list, got ok=%v reason=%q", ok, reason)
	}
}

func TestValidateDenyListDenial(t *testing.T) {
	m := New(Config{DisallowedTools: []string{"Bash"}})
	ok, reason := m.Validate("Bash", map[string]any{"command": "ls"}, t.TempDir(), 1)
	if ok || reason == "" {
		t.Fatalf("expected denial for explicitly disallowed tool, got ok=%v reason=%q", ok, reason)
	}
}

func TestValidateFileToolWithinRoot(t *testing.T) {
	root := t.TempDir()
	m := New(Config{ApprovedRoot: root})
	ok, reason := m.Validate("Read", map[string]any{"path": "notes.txt"}, root, 1)
	if !ok || reason != "" {
		t.Fatalf("expected allow, got ok=%v reason=%q", ok, reason)
	}
}

func TestValidateFileToolEscapesRoot(t *testing.T) {
	root := t.TempDir()
	m := New(Config{ApprovedRoot: root})
	ok, reason := m.Validate("Read", map[string]any{"path": "../../etc/passwd"}, root, 1)
	if ok || reason == "" {
		t.Fatalf("expected denial for escaping path, got ok=%v reason=%q", ok, reason)
	}
}

func TestValidateFileToolMissingPath(t *testing.T) {
	m := New(Config{})
	ok, reason := m.Validate("Write", map[string]any{}, t.TempDir(), 1)
	if ok || reason == "" {
		t.Fatalf("expected denial for missing path, got ok=%v reason=%q", ok, reason)
	}
}

func TestValidateShellToolAllowsCommand(t *testing.T) {
	m := New(Config{})
	ok, reason := m.Validate("Bash", map[string]any{"command": "ls -la | grep foo"}, t.TempDir(), 1)
	if !ok || reason != "" {
		t.Fatalf("expected allow, got ok=%v reason=%q", ok, reason)
	}
}

func TestValidateShellToolRejectsDangerousCommand(t *testing.T) {
	m := New(Config{})
	ok, reason := m.Validate("Bash", map[string]any{"command": "sudo rm -rf /"}, t.TempDir(), 1)
	if ok || reason == "" {
		t.Fatalf("expected denial for dangerous command, got ok=%v reason=%q", ok, reason)
	}
}

func TestValidateDefaultAllowIncrementsUsage(t *testing.T) {
	m := New(Config{})
	ok, _ := m.Validate("Glob", map[string]any{"pattern": "*.go"}, t.TempDir(), 1)
	if !ok {
		t.Fatalf("expected allow for unconstrained tool")
	}
	ok, _ = m.Validate("Glob", map[string]any{"pattern": "*.go"}, t.TempDir(), 1)
	if !ok {
		t.Fatalf("expected allow on second call")
	}
	stats := m.GetStats()
	if stats.TotalCalls != 2 || stats.ByTool["Glob"] != 2 || stats.UniqueTools != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestIsCritical(t *testing.T) {
	if !IsCritical("Write") || !IsCritical("Task") {
		t.Fatalf("expected Write and Task to be critical")
	}
	if IsCritical("Glob") {
		t.Fatalf("expected Glob to be non-critical")
	}
}

func TestViolationsAndReset(t *testing.T) {
	m := New(Config{DisallowedTools: []string{"Bash"}})
	m.Validate("Bash", map[string]any{"command": "ls"}, t.TempDir(), 7)
	m.Validate("Bash", map[string]any{"command": "ls"}, t.TempDir(), 7)

	vs := m.Violations()
	if len(vs) != 2 {
		t.Fatalf("expected 2 recorded violations, got %d", len(vs))
	}
	count, kinds := m.UserViolations(7)
	if count != 2 || len(kinds) != 1 || kinds[0] != "explicitly_disallowed_tool" {
		t.Fatalf("unexpected user violations: count=%d kinds=%v", count, kinds)
	}

	m.Reset()
	if len(m.Violations()) != 0 || m.GetStats().TotalCalls != 0 {
		t.Fatalf("expected reset to clear counters")
	}
}

func TestIsToolAllowed(t *testing.T) {
	m := New(Config{AllowedTools: []string{"Read"}, DisallowedTools: []string{"Bash"}})
	if !m.IsToolAllowed("Read") {
		t.Fatalf("expected Read to be allowed")
	}
	if m.IsToolAllowed("Write") {
		t.Fatalf("expected Write to be disallowed (not on allow list)")
	}
	if m.IsToolAllowed("Bash") {
		t.Fatalf("expected Bash to be disallowed (deny list)")
	}
}

func TestValidateFileToolAcceptsFilePathAlias(t *testing.T) {
	root := t.TempDir()
	m := New(Config{ApprovedRoot: root})
	ok, reason := m.Validate("Edit", map[string]any{"file_path": filepath.Join("sub", "a.go")}, root, 1)
	if !ok || reason != "" {
		t.Fatalf("expected allow via file_path alias, got ok=%v reason=%q", ok, reason)
	}
}
