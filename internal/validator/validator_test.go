package validator

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidatePathWithinRoot(t *testing.T) {
	root := t.TempDir()
	os.MkdirAll(filepath.Join(root, "proj"), 0o755)

	ok, resolved, err := ValidatePath("proj/file.txt", root)
	if err != nil || !ok {
		t.Fatalf("expected ok, got ok=%v err=%v", ok, err)
	}
	if filepath.Base(resolved) != "file.txt" {
		t.Fatalf("unexpected resolved path: %s", resolved)
	}
}

func TestValidatePathEscapeRejected(t *testing.T) {
	root := t.TempDir()
	cases := []string{
		"../../etc/passwd",
		filepath.Join(filepath.Dir(root), "outside.txt"),
	}
	for _, c := range cases {
		ok, _, err := ValidatePath(c, root)
		if ok || err == nil {
			t.Fatalf("expected rejection for %q, got ok=%v err=%v", c, ok, err)
		}
	}
}

func TestValidatePathControlBytes(t *testing.T) {
	root := t.TempDir()
	ok, _, err := ValidatePath("evil\x01name.txt", root)
	if ok || err == nil {
		t.Fatalf("expected rejection for control bytes")
	}
}

func TestValidateCommandAllowsComposition(t *testing.T) {
	ok, err := ValidateCommand("ls -la | grep foo && echo done > out.txt")
	if !ok || err != nil {
		t.Fatalf("expected common shell composition to be allowed, got ok=%v err=%v", ok, err)
	}
}

func TestValidateCommandRejectsDangerous(t *testing.T) {
	cases := []string{
		"sudo rm -rf /important",
		"rm -rf /",
		"chmod 777 /",
		"mkfs.ext4 /dev/sda1",
		"dd if=/dev/zero of=/dev/sda",
		"cat /dev/urandom > /dev/sda",
	}
	for _, c := range cases {
		ok, err := ValidateCommand(c)
		if ok || err == nil {
			t.Fatalf("expected rejection for %q", c)
		}
	}
}

func TestValidateCommandCaseInsensitive(t *testing.T) {
	ok, err := ValidateCommand("SUDO rm -rf /tmp/x")
	if ok || err == nil {
		t.Fatalf("expected case-insensitive match to reject sudo")
	}
}
