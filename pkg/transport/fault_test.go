package transport

import "testing"

func TestFaultReadyInitially(t *testing.T) {
	f := newFault(1)
	if !f.ready() {
		t.Errorf("a fresh fault tracker must be ready")
	}
}

func TestFaultBlocksUntilBackoffElapses(t *testing.T) {
	f := newFault(60)
	f.markFaulted()
	if f.ready() {
		t.Errorf("expected fault tracker to not be ready immediately after faulting")
	}
	if !f.wasFaulted() {
		t.Errorf("expected wasFaulted to report true")
	}
}

func TestFaultClearResetsState(t *testing.T) {
	f := newFault(60)
	f.markFaulted()
	f.clear()
	if f.wasFaulted() {
		t.Errorf("expected clear to reset the faulted flag")
	}
	if !f.ready() {
		t.Errorf("expected a cleared fault tracker to be ready")
	}
}
