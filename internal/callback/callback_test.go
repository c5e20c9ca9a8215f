package callback

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseSplitsOnFirstColon(t *testing.T) {
	action, param, hasParam := Parse("cd:/projects/foo")
	if action != "cd" || param != "/projects/foo" || !hasParam {
		t.Fatalf("got action=%q param=%q hasParam=%v", action, param, hasParam)
	}
}

func TestParseNoColonHasNoParam(t *testing.T) {
	action, param, hasParam := Parse("confirm")
	if action != "confirm" || param != "" || hasParam {
		t.Fatalf("got action=%q param=%q hasParam=%v", action, param, hasParam)
	}
}

func TestParseOnlySplitsFirstColon(t *testing.T) {
	action, param, _ := Parse("export:session:extra")
	if action != "export" || param != "session:extra" {
		t.Fatalf("got action=%q param=%q", action, param)
	}
}

func TestBuildParseRoundTrip(t *testing.T) {
	names := []string{"deploy", "run_tests", "a"}
	for _, name := range names {
		data := Build(ActionProjectCommand, name)
		action, param, hasParam := Parse(data)
		if !hasParam || action != ActionProjectCommand || param != name {
			t.Fatalf("round-trip failed for %q: action=%q param=%q hasParam=%v", name, action, param, hasParam)
		}
	}
}

func TestBuildNoParamOmitsColon(t *testing.T) {
	if got := Build("confirm", ""); got != "confirm" {
		t.Fatalf("expected bare action, got %q", got)
	}
}

func TestListProjectCommandsSortedWithDescriptions(t *testing.T) {
	root := t.TempDir()
	cmdDir := filepath.Join(root, ".claude", "commands")
	if err := os.MkdirAll(cmdDir, 0o755); err != nil {
		t.Fatal(err)
	}
	write(t, filepath.Join(cmdDir, "zeta.md"), "# Zeta Command\n\nbody")
	write(t, filepath.Join(cmdDir, "alpha.md"), "no heading here")

	commands, err := ListProjectCommands(root, root)
	if err != nil {
		t.Fatal(err)
	}
	if len(commands) != 2 {
		t.Fatalf("expected 2 commands, got %d", len(commands))
	}
	if commands[0].Name != "alpha" || commands[1].Name != "zeta" {
		t.Fatalf("expected sorted [alpha, zeta], got [%s, %s]", commands[0].Name, commands[1].Name)
	}
	if commands[1].Description != "Zeta Command" {
		t.Fatalf("expected heading stripped of '#', got %q", commands[1].Description)
	}
	if commands[0].Description != "no heading here" {
		t.Fatalf("expected first non-blank line as description, got %q", commands[0].Description)
	}
}

func TestListProjectCommandsMissingDirIsEmpty(t *testing.T) {
	root := t.TempDir()
	commands, err := ListProjectCommands(root, root)
	if err != nil || commands != nil {
		t.Fatalf("expected (nil, nil) for a missing commands dir, got (%v, %v)", commands, err)
	}
}

func TestListProjectCommandsRejectsEscapingWorkingDirectory(t *testing.T) {
	root := t.TempDir()
	_, err := ListProjectCommands("../../etc", root)
	if err == nil {
		t.Fatal("expected an error for a working_directory escaping the approved root")
	}
}

func TestFindCommandByName(t *testing.T) {
	commands := []ProjectCommand{{Name: "deploy"}, {Name: "test"}}
	if _, ok := FindCommandByName(commands, "test"); !ok {
		t.Fatal("expected to find 'test'")
	}
	if _, ok := FindCommandByName(commands, "missing"); ok {
		t.Fatal("expected 'missing' to not be found")
	}
}

func TestReadCommandContent(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "deploy.md")
	write(t, path, "# Deploy\n\nRun the deploy pipeline.")

	content, err := ReadCommandContent(ProjectCommand{Name: "deploy", FilePath: path})
	if err != nil {
		t.Fatal(err)
	}
	if content != "# Deploy\n\nRun the deploy pipeline." {
		t.Fatalf("unexpected content: %q", content)
	}
}

func TestIsProjectCommandCallback(t *testing.T) {
	if !IsProjectCommandCallback("pcmd:deploy") {
		t.Fatal("expected pcmd: prefixed data to be recognized")
	}
	if IsProjectCommandCallback("confirm:yes") {
		t.Fatal("expected non-pcmd data to be rejected")
	}
}

func write(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
