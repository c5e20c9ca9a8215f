package supervisor

import (
	"os"
	"sync"
	"syscall"
	"testing"
	"time"
)

// fakeProc records every signal it receives and simulates exit after a
// configured sequence of signals, closing its own done channel — letting
// tests assert escalation order and timing without a real subprocess.
type fakeProc struct {
	mu          sync.Mutex
	signals     []os.Signal
	killed      bool
	exitAfter   int // number of Signal calls before the process "exits"
	done        chan struct{}
	doneClosed  bool
}

func newFakeProc(exitAfter int) *fakeProc {
	return &fakeProc{exitAfter: exitAfter, done: make(chan struct{})}
}

func (f *fakeProc) Signal(sig os.Signal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signals = append(f.signals, sig)
	if len(f.signals) >= f.exitAfter && !f.doneClosed {
		f.doneClosed = true
		close(f.done)
	}
	return nil
}

func (f *fakeProc) Kill() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.killed = true
	if !f.doneClosed {
		f.doneClosed = true
		close(f.done)
	}
	return nil
}

func (f *fakeProc) Signals() []os.Signal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]os.Signal(nil), f.signals...)
}

func fastEscalation() EscalationTimeouts {
	return EscalationTimeouts{AfterInterrupt: 20 * time.Millisecond, AfterTerminate: 20 * time.Millisecond}
}

func TestGracefulCancelExitsOnSIGINT(t *testing.T) {
	proc := newFakeProc(1)
	gracefulCancel(proc, proc.done, fastEscalation())

	sigs := proc.Signals()
	if len(sigs) != 1 || sigs[0] != syscall.SIGINT {
		t.Fatalf("expected exactly one SIGINT, got %v", sigs)
	}
	if proc.killed {
		t.Fatal("expected no SIGKILL when SIGINT sufficed")
	}
}

func TestGracefulCancelEscalatesToSIGTERM(t *testing.T) {
	proc := newFakeProc(2)
	gracefulCancel(proc, proc.done, fastEscalation())

	sigs := proc.Signals()
	if len(sigs) != 2 || sigs[0] != syscall.SIGINT || sigs[1] != syscall.SIGTERM {
		t.Fatalf("expected SIGINT then SIGTERM, got %v", sigs)
	}
	if proc.killed {
		t.Fatal("expected no SIGKILL when SIGTERM sufficed")
	}
}

func TestGracefulCancelEscalatesToSIGKILL(t *testing.T) {
	proc := newFakeProc(99) // never exits from a signal alone
	gracefulCancel(proc, proc.done, fastEscalation())

	sigs := proc.Signals()
	if len(sigs) != 2 || sigs[0] != syscall.SIGINT || sigs[1] != syscall.SIGTERM {
		t.Fatalf("expected SIGINT then SIGTERM before SIGKILL, got %v", sigs)
	}
	if !proc.killed {
		t.Fatal("expected SIGKILL after both graceful steps timed out")
	}
}

func TestSignalAndWaitTreatsProcessDoneAsSuccess(t *testing.T) {
	done := make(chan struct{})
	close(done)
	proc := &errorSignaler{err: os.ErrProcessDone}

	ok := signalAndWait(proc, syscall.SIGINT, done, time.Second)
	if !ok {
		t.Fatal("expected ErrProcessDone to be treated as already-exited, not a retry trigger")
	}
}

type errorSignaler struct{ err error }

func (e *errorSignaler) Signal(os.Signal) error { return e.err }
func (e *errorSignaler) Kill() error            { return nil }
