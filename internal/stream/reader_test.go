package stream

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"
)

func TestLineReaderYieldsEachLine(t *testing.T) {
	r := strings.NewReader("one\ntwo\nthree\n")
	lr := NewLineReader(context.Background(), r)

	var got []string
	for line := range lr.Lines() {
		got = append(got, line)
	}
	if len(got) != 3 || got[0] != "one" || got[2] != "three" {
		t.Fatalf("unexpected lines: %+v", got)
	}
	if err := lr.Err(); err != nil {
		t.Fatalf("unexpected scan error: %v", err)
	}
}

func TestLineReaderStopsOnContextCancel(t *testing.T) {
	pr, pw, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	defer pw.Close()
	defer pr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	lr := NewLineReader(ctx, pr)

	if _, err := pw.Write([]byte("first\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case line := <-lr.Lines():
		if line != "first" {
			t.Fatalf("unexpected line: %q", line)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for first line")
	}

	cancel()

	select {
	case _, ok := <-lr.Lines():
		if ok {
			t.Fatal("expected channel to close after cancel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for channel close after cancel (deadline polling failed)")
	}
}

func TestLineReaderReplacesInvalidUTF8(t *testing.T) {
	r := strings.NewReader("valid\xff\xfeinvalid\n")
	lr := NewLineReader(context.Background(), r)

	line := <-lr.Lines()
	if strings.Contains(line, "\xff") {
		t.Fatalf("expected invalid UTF-8 to be replaced, got %q", line)
	}
}

func TestLineReaderFlushesTrailingPartialLine(t *testing.T) {
	r := strings.NewReader("complete\nno newline at end")
	lr := NewLineReader(context.Background(), r)

	var got []string
	for line := range lr.Lines() {
		got = append(got, line)
	}
	if len(got) != 2 || got[1] != "no newline at end" {
		t.Fatalf("expected trailing partial line to be flushed, got %+v", got)
	}
}
