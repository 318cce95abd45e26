// Package decide implements the publication decision engine: given a read
// result and a parameter's running state, it decides whether to emit an
// outbound envelope and which trigger label it carries.
package decide

import (
	"math"
	"time"

	"modbus-mqtt-gateway/pkg/config"
	bridgeerrors "modbus-mqtt-gateway/pkg/errors"
)

// Trigger labels why an envelope was emitted.
type Trigger string

const (
	Change    Trigger = "change"
	IntervalT Trigger = "interval"
	Heartbeat Trigger = "heartbeat"
)

// Band is the currently stored effective hysteresis band,
// [k*step-h, (k+1)*step+h], around an analog value's last accepted base
// band.
type Band struct {
	Low, High float64
}

// State is one parameter's running state, exclusively owned by its Bus
// Worker. It survives across poll cycles and is preserved across hot
// reload for parameters whose identity key survives.
type State struct {
	HasValue      bool
	LastValue     float64
	LastOkTS      time.Time
	LastAttemptTS time.Time
	LastPubTS     time.Time
	Band          *Band
	lastTouchTS   time.Time
}

// Input is everything the Decider needs about one read result.
type Input struct {
	Now              time.Time
	Code             bridgeerrors.Code
	Message          string
	Value            float64
	IsBoolean        bool
	PublishMode      config.PublishMode
	PublishIntervalS int
	Step             float64
	Hysteresis       float64
	TouchReadEveryS  int
}

// Decision is one outbound envelope decision. At most two are returned
// from a single Decide call, in the order they must be emitted.
type Decision struct {
	Trigger    Trigger
	HasValue   bool
	Value      float64
	Code       bridgeerrors.Code
	Message    string
	SilentForS int
}

// Touched reports whether Decide performed a touch-only update (a
// successful read that did not publish, recorded at most once per
// touch_read_every_s).
type Result struct {
	Decisions []Decision
	Touched   bool
}

// Decide evaluates one read result against state, mutating state in
// place, and returns zero, one, or two envelope decisions.
func Decide(state *State, in Input) Result {
	state.LastAttemptTS = in.Now

	if in.Code != bridgeerrors.OK {
		return decideError(state, in)
	}
	return decideSuccess(state, in)
}

func decideSuccess(state *State, in Input) Result {
	changed := computeChanged(state, in)
	intervalDue := in.PublishIntervalS > 0 && !state.LastPubTS.IsZero() &&
		in.Now.Sub(state.LastPubTS) >= time.Duration(in.PublishIntervalS)*time.Second
	// The first sample always counts as interval-due too: there is no
	// prior publish to measure a window against.
	if in.PublishIntervalS > 0 && state.LastPubTS.IsZero() {
		intervalDue = true
	}

	var decisions []Decision
	switch in.PublishMode {
	case config.OnChange:
		if changed {
			decisions = append(decisions, Decision{Trigger: Change, HasValue: true, Value: in.Value, Code: bridgeerrors.OK})
		}
	case config.Interval:
		if intervalDue {
			decisions = append(decisions, Decision{Trigger: IntervalT, HasValue: true, Value: in.Value, Code: bridgeerrors.OK})
		}
	case config.OnChangeAndInterval:
		if changed {
			decisions = append(decisions, Decision{Trigger: Change, HasValue: true, Value: in.Value, Code: bridgeerrors.OK})
		}
		if intervalDue {
			decisions = append(decisions, Decision{Trigger: IntervalT, HasValue: true, Value: in.Value, Code: bridgeerrors.OK})
		}
	}

	touched := false
	if len(decisions) > 0 {
		state.LastPubTS = in.Now
	} else if in.TouchReadEveryS > 0 && in.Now.Sub(state.lastTouchTS) >= time.Duration(in.TouchReadEveryS)*time.Second {
		state.lastTouchTS = in.Now
		touched = true
	}
	state.HasValue = true
	state.LastValue = in.Value
	state.LastOkTS = in.Now
	return Result{Decisions: decisions, Touched: touched}
}

func decideError(state *State, in Input) Result {
	includesInterval := in.PublishMode == config.Interval || in.PublishMode == config.OnChangeAndInterval
	intervalDue := in.PublishIntervalS > 0 && !state.LastPubTS.IsZero() &&
		in.Now.Sub(state.LastPubTS) >= time.Duration(in.PublishIntervalS)*time.Second
	if in.PublishIntervalS > 0 && state.LastPubTS.IsZero() {
		intervalDue = true
	}
	if !includesInterval || !intervalDue {
		return Result{}
	}
	silentFor := 0
	if !state.LastOkTS.IsZero() {
		silentFor = int(in.Now.Sub(state.LastOkTS).Seconds())
	}
	state.LastPubTS = in.Now
	return Result{Decisions: []Decision{{
		Trigger:    Heartbeat,
		HasValue:   false,
		Code:       in.Code,
		Message:    in.Message,
		SilentForS: silentFor,
	}}}
}

// computeChanged implements §4.6's changed predicate and, for the
// hysteresis-banded case, recomputes state.Band around the new value when
// it changes.
func computeChanged(state *State, in Input) bool {
	if !state.HasValue {
		if !in.IsBoolean && in.Step > 0 {
			state.Band = baseBand(in.Value, in.Step, in.Hysteresis)
		}
		return true
	}
	if in.IsBoolean {
		return int(in.Value) != int(state.LastValue)
	}
	if in.Step <= 0 {
		if in.Hysteresis <= 0 {
			return in.Value != state.LastValue
		}
		// Hysteresis without a step has no band to widen, so plain
		// inequality governs.
		return in.Value != state.LastValue
	}
	if state.Band == nil {
		state.Band = baseBand(in.Value, in.Step, in.Hysteresis)
		return true
	}
	if in.Value < state.Band.Low || in.Value > state.Band.High {
		state.Band = baseBand(in.Value, in.Step, in.Hysteresis)
		return true
	}
	return false
}

func baseBand(value, step, hysteresis float64) *Band {
	k := math.Floor(value / step)
	return &Band{Low: k*step - hysteresis, High: (k+1)*step + hysteresis}
}
