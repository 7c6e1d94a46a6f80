package proc

import (
	"strings"
	"testing"
	"time"
)

func TestRing_KeepsMostRecentBytes(t *testing.T) {
	r := NewRing(8)
	if _, err := r.Write([]byte("abcd")); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	if got := r.Tail(); got != "abcd" {
		t.Fatalf("Tail(): got %q", got)
	}
	if r.Truncated() {
		t.Fatalf("Truncated() true before overflow")
	}
	if _, err := r.Write([]byte("efghij")); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	if got := r.Tail(); got != "cdefghij" {
		t.Fatalf("Tail() after eviction: got %q", got)
	}
	if !r.Truncated() {
		t.Fatalf("Truncated() false after overflow")
	}
}

func TestRing_SingleWriteLargerThanBound(t *testing.T) {
	r := NewRing(4)
	if _, err := r.Write([]byte("0123456789")); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	if got := r.Tail(); got != "6789" {
		t.Fatalf("Tail(): got %q", got)
	}
}

func TestStart_CapturesOutputAndExitCode(t *testing.T) {
	p, err := Start([]string{"sh", "-c", "echo out; echo err 1>&2; exit 3"}, Options{})
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	select {
	case <-p.Done():
	case <-time.After(10 * time.Second):
		t.Fatalf("child did not exit")
	}
	if got := p.ExitCode(); got != 3 {
		t.Fatalf("ExitCode(): got %d", got)
	}
	tail := p.Tail()
	if !strings.Contains(tail, "out") || !strings.Contains(tail, "err") {
		t.Fatalf("Tail(): got %q", tail)
	}
	if p.Alive() {
		t.Fatalf("Alive() true after exit")
	}
}

func TestStart_EmptyCommand(t *testing.T) {
	if _, err := Start(nil, Options{}); err == nil {
		t.Fatalf("Start(nil) expected error")
	}
}

func TestKill_IsIdempotent(t *testing.T) {
	p, err := Start([]string{"sleep", "60"}, Options{})
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if !p.Alive() {
		t.Fatalf("Alive() false right after start")
	}
	if err := p.Kill(); err != nil {
		t.Fatalf("Kill() error: %v", err)
	}
	if err := p.Kill(); err != nil {
		t.Fatalf("second Kill() error: %v", err)
	}
	if p.Alive() {
		t.Fatalf("Alive() true after Kill")
	}
	if got := p.ExitCode(); got != -1 {
		t.Fatalf("ExitCode() after SIGKILL: got %d, want -1", got)
	}
}

func TestKill_AfterNaturalExit(t *testing.T) {
	p, err := Start([]string{"true"}, Options{})
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	<-p.Done()
	if err := p.Kill(); err != nil {
		t.Fatalf("Kill() after exit: %v", err)
	}
	if got := p.ExitCode(); got != 0 {
		t.Fatalf("ExitCode(): got %d", got)
	}
}
