package decide

import (
	"testing"
	"time"

	"modbus-mqtt-gateway/pkg/config"
	bridgeerrors "modbus-mqtt-gateway/pkg/errors"
)

func TestBoolOnChangeEmitsOnlyOnTransitions(t *testing.T) {
	state := &State{}
	now := time.Now()
	sequence := []float64{1, 1, 0, 1}
	var emitted []Trigger
	for _, v := range sequence {
		res := Decide(state, Input{Now: now, Code: bridgeerrors.OK, Value: v, IsBoolean: true, PublishMode: config.OnChange})
		for _, d := range res.Decisions {
			emitted = append(emitted, d.Trigger)
		}
		now = now.Add(time.Second)
	}
	if len(emitted) != 3 {
		t.Fatalf("expected 3 envelopes for true,true,false,true, got %d", len(emitted))
	}
	for _, tr := range emitted {
		if tr != Change {
			t.Errorf("expected trigger=change, got %s", tr)
		}
	}
}

func TestHysteresisBandSequence(t *testing.T) {
	state := &State{}
	now := time.Now()
	sequence := []float64{0.0, 0.95, 1.05, 1.2, 0.95, 0.85}
	var changedValues []float64
	for _, v := range sequence {
		res := Decide(state, Input{Now: now, Code: bridgeerrors.OK, Value: v, PublishMode: config.OnChange, Step: 1.0, Hysteresis: 0.1})
		for _, d := range res.Decisions {
			changedValues = append(changedValues, d.Value)
		}
		now = now.Add(time.Second)
	}
	want := []float64{0.0, 1.2, 0.85}
	if len(changedValues) != len(want) {
		t.Fatalf("expected changes at %v, got %v", want, changedValues)
	}
	for i, v := range want {
		if changedValues[i] != v {
			t.Errorf("change[%d] = %v, want %v", i, changedValues[i], v)
		}
	}
}

func TestIntervalHeartbeatUnderSilence(t *testing.T) {
	state := &State{}
	now := time.Now()
	state.LastOkTS = now
	var heartbeats []Decision
	for i := 0; i < 10; i++ {
		now = now.Add(time.Second)
		res := Decide(state, Input{Now: now, Code: bridgeerrors.Timeout, Message: "timed out", PublishMode: config.Interval, PublishIntervalS: 2})
		heartbeats = append(heartbeats, res.Decisions...)
	}
	if len(heartbeats) != 5 {
		t.Fatalf("expected 5 heartbeats over 10s at interval=2s, got %d", len(heartbeats))
	}
	last := -1
	for _, d := range heartbeats {
		if d.HasValue {
			t.Errorf("heartbeat must carry no value")
		}
		if d.SilentForS < last {
			t.Errorf("silent_for_s must be monotonically increasing")
		}
		last = d.SilentForS
	}
}

func TestDualEmissionOrdersChangeBeforeInterval(t *testing.T) {
	state := &State{HasValue: true, LastValue: 1.0, LastPubTS: time.Now().Add(-10 * time.Second)}
	now := time.Now()
	res := Decide(state, Input{Now: now, Code: bridgeerrors.OK, Value: 2.0, PublishMode: config.OnChangeAndInterval, PublishIntervalS: 5})
	if len(res.Decisions) != 2 {
		t.Fatalf("expected dual emission, got %d decisions", len(res.Decisions))
	}
	if res.Decisions[0].Trigger != Change || res.Decisions[1].Trigger != IntervalT {
		t.Errorf("expected order change,interval; got %s,%s", res.Decisions[0].Trigger, res.Decisions[1].Trigger)
	}
}

func TestLastOkTSNeverUpdatedOnError(t *testing.T) {
	now := time.Now()
	state := &State{HasValue: true, LastOkTS: now}
	later := now.Add(5 * time.Second)
	Decide(state, Input{Now: later, Code: bridgeerrors.Timeout, PublishMode: config.OnChange})
	if !state.LastOkTS.Equal(now) {
		t.Errorf("LastOkTS must not change on an error result")
	}
}

