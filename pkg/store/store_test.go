package store

import (
	"testing"
	"time"

	bridgeerrors "modbus-mqtt-gateway/pkg/errors"
)

func TestPublishAndGet(t *testing.T) {
	s := New()
	key := Key{Bus: "line1", Object: "meter1", Param: "voltage", UnitID: 1}
	now := time.Now()
	s.Publish(key, Entry{HasValue: true, Value: 230.5, Code: bridgeerrors.OK, LastOkTS: now, LastPubTS: now})
	got, ok := s.Get(key)
	if !ok {
		t.Fatalf("expected entry to be present")
	}
	if got.Value != 230.5 {
		t.Errorf("Value = %v, want 230.5", got.Value)
	}
}

func TestTouchPreservesExistingFields(t *testing.T) {
	s := New()
	key := Key{Bus: "line1", Object: "meter1", Param: "voltage", UnitID: 1}
	now := time.Now()
	s.Publish(key, Entry{HasValue: true, Value: 230.5, Code: bridgeerrors.OK, LastPubTS: now})
	later := now.Add(time.Second)
	s.Touch(key, later, "holding", 0)
	got, _ := s.Get(key)
	if got.Value != 230.5 {
		t.Errorf("Touch must not clobber the existing value")
	}
	if !got.LastOkTS.Equal(later) {
		t.Errorf("Touch must advance LastOkTS")
	}
}

func TestPruneRemovesUnkeptKeys(t *testing.T) {
	s := New()
	keep := Key{Bus: "line1", Object: "meter1", Param: "voltage", UnitID: 1}
	drop := Key{Bus: "line1", Object: "meter1", Param: "current", UnitID: 1}
	s.Publish(keep, Entry{HasValue: true})
	s.Publish(drop, Entry{HasValue: true})
	s.Prune(map[Key]bool{keep: true})
	if _, ok := s.Get(keep); !ok {
		t.Errorf("expected surviving key to remain")
	}
	if _, ok := s.Get(drop); ok {
		t.Errorf("expected pruned key to be removed")
	}
}
