package worker

import (
	"strconv"
	"time"

	"modbus-mqtt-gateway/pkg/bridge"
	"modbus-mqtt-gateway/pkg/codec"
	"modbus-mqtt-gateway/pkg/config"
	"modbus-mqtt-gateway/pkg/decide"
	bridgeerrors "modbus-mqtt-gateway/pkg/errors"
	"modbus-mqtt-gateway/pkg/planner"
	"modbus-mqtt-gateway/pkg/store"
)

// defaultTopic derives a parameter's publish topic when none is configured:
// "<object>/<param>", resolved against the bridge's base topic later.
func defaultTopic(node config.NodeSpec, p config.ParamSpec) string {
	if p.Topic != "" {
		return p.Topic
	}
	return node.Object + "/" + p.Name
}

// registerWriteHandlers subscribes a write-command handler for every
// mode=rw parameter across all of the worker's nodes.
func (w *Worker) registerWriteHandlers() {
	for _, node := range w.nodes {
		for _, p := range node.params {
			if p.spec.Mode != config.ModeReadWrite {
				continue
			}
			cmdTopic := bridge.ResolveTopic(w.baseTopic, defaultTopic(node.spec, p.spec)) + "/on"
			unitID := node.spec.UnitID
			name := p.spec.Name
			w.bridge.RegisterHandler(cmdTopic, func(value string) {
				v, err := strconv.ParseFloat(value, 64)
				if err != nil {
					w.log.Warn("worker %s: write %s: invalid payload %q", w.busName, cmdTopic, value)
					return
				}
				w.queue.push(writeTask{unitID: unitID, param: name, value: v})
			})
		}
	}
}

// pollNode runs one poll cycle for a single node: plan reads, issue them,
// decode results, consult the Publication Decider, enqueue envelopes, and
// update the Current-Value Store.
func (w *Worker) pollNode(unitID int, node *nodeState) {
	caps := planner.Caps{
		Enabled:      w.polling.BatchRead.Enabled,
		MaxBits:      w.polling.BatchRead.MaxBits,
		MaxRegisters: w.polling.BatchRead.MaxRegisters,
	}
	params := make([]config.ParamSpec, 0, len(node.params))
	for _, p := range node.params {
		params = append(params, p.spec)
	}
	reads, err := planner.Plan(params, w.normalize, caps)
	if err != nil {
		w.log.Error("worker %s: node %d: plan failed: %v", w.busName, unitID, err)
		return
	}

	now := time.Now()
	unitIDByte := byte(node.spec.UnitID)
	for _, r := range reads {
		switch r.RegisterType {
		case config.Coil, config.Discrete:
			bits, rerr := w.transport.ReadBits(unitIDByte, r.Start, r.Count, r.FunctionCode)
			if rerr != nil {
				node.noReply++
				w.handleReadFailure(node, r, rerr, now)
				continue
			}
			node.noReply = 0
			for _, m := range r.Members {
				w.handleBoolSuccess(node, m.Spec, bits[m.Offset], now)
			}
		case config.Holding, config.Input:
			regs, rerr := w.transport.ReadRegs(unitIDByte, r.Start, r.Count, r.FunctionCode)
			if rerr != nil {
				node.noReply++
				w.handleReadFailure(node, r, rerr, now)
				continue
			}
			node.noReply = 0
			for _, m := range r.Members {
				words := m.Spec.DataType.Words()
				slice := regs[m.Offset : m.Offset+words]
				w.handleAnalogSuccess(node, m.Spec, slice, now)
			}
		}
	}
}

func (w *Worker) handleReadFailure(node *nodeState, r planner.Read, rerr error, now time.Time) {
	classified := bridgeerrors.Classify(rerr)
	for _, m := range r.Members {
		w.applyDecision(node, m.Spec, decide.Input{
			Now:              now,
			Code:             classified.Code,
			Message:          classified.Message,
			IsBoolean:        m.Spec.RegisterType == config.Coil || m.Spec.RegisterType == config.Discrete,
			PublishMode:      m.Spec.PublishMode,
			PublishIntervalS: m.Spec.PublishIntervalS,
			Step:             m.Spec.StepValue(),
			Hysteresis:       m.Spec.HysteresisValue(),
			TouchReadEveryS:  w.current.TouchReadEveryS,
		})
	}
}

func (w *Worker) handleBoolSuccess(node *nodeState, spec config.ParamSpec, bit bool, now time.Time) {
	value := 0.0
	if bit {
		value = 1.0
	}
	w.applyDecision(node, spec, decide.Input{
		Now:              now,
		Code:             bridgeerrors.OK,
		Value:            value,
		IsBoolean:        true,
		PublishMode:      spec.PublishMode,
		PublishIntervalS: spec.PublishIntervalS,
		TouchReadEveryS:  w.current.TouchReadEveryS,
	})
}

func (w *Worker) handleAnalogSuccess(node *nodeState, spec config.ParamSpec, regs []uint16, now time.Time) {
	value, err := codec.Decode(regs, spec.DataType, spec.WordOrder, spec.Scale, w.current.PrecisionDecimals)
	if err != nil {
		classified := bridgeerrors.Classify(bridgeerrors.NewConfigErr(err.Error()))
		w.applyDecision(node, spec, decide.Input{
			Now: now, Code: classified.Code, Message: classified.Message,
			PublishMode: spec.PublishMode, PublishIntervalS: spec.PublishIntervalS,
		})
		return
	}
	w.applyDecision(node, spec, decide.Input{
		Now:              now,
		Code:             bridgeerrors.OK,
		Value:            value,
		PublishMode:      spec.PublishMode,
		PublishIntervalS: spec.PublishIntervalS,
		Step:             spec.StepValue(),
		Hysteresis:       spec.HysteresisValue(),
		TouchReadEveryS:  w.current.TouchReadEveryS,
	})
}

// applyDecision runs the Decider for one parameter's read result and
// drives the Bridge and Store from its outcome.
func (w *Worker) applyDecision(node *nodeState, spec config.ParamSpec, in decide.Input) {
	p, ok := node.params[spec.Name]
	if !ok {
		return
	}
	key := store.Key{Bus: w.busName, Object: node.spec.Object, Param: spec.Name, UnitID: node.spec.UnitID}
	res := decide.Decide(&p.decideState, in)

	for _, d := range res.Decisions {
		env := bridge.Envelope{
			Topic:      bridge.ResolveTopic(w.baseTopic, defaultTopic(node.spec, spec)),
			Timestamp:  in.Now,
			Code:       int(d.Code),
			Message:    d.Message,
			SilentForS: d.SilentForS,
			Trigger:    string(d.Trigger),
			NoReply:    node.noReply,
			Context: bridge.EnvelopeContext{
				Object:       node.spec.Object,
				Line:         w.busName,
				UnitID:       node.spec.UnitID,
				RegisterType: string(spec.RegisterType),
				Address:      spec.Address,
				Param:        spec.Name,
			},
		}
		if d.HasValue {
			if in.IsBoolean {
				env.Value = bridge.BoolValue(d.Value != 0)
			} else {
				isInteger := spec.DataType == codec.U16 || spec.DataType == codec.S16 ||
					spec.DataType == codec.U32 || spec.DataType == codec.S32 ||
					spec.DataType == codec.U64 || spec.DataType == codec.S64
				env.Value = bridge.NumberValue(d.Value, isInteger && spec.Scale == 1.0)
			}
		}
		w.bridge.Enqueue(env)
		w.store.Publish(key, store.Entry{
			HasValue:     d.HasValue,
			Value:        d.Value,
			Code:         d.Code,
			Message:      d.Message,
			LastOkTS:     p.decideState.LastOkTS,
			LastPubTS:    p.decideState.LastPubTS,
			Trigger:      d.Trigger,
			NoReply:      node.noReply,
			RegisterType: spec.RegisterType,
			Address:      spec.Address,
		})
	}
	if res.Touched {
		w.store.Touch(key, in.Now, spec.RegisterType, spec.Address)
	}
}
