// Package worker implements the Bus Worker: one goroutine per configured
// bus that owns its Transport, drains queued writes, plans and issues
// batched reads, decodes results, asks the Publication Decider, hands
// envelopes to the MQTT Bridge, and updates the Current-Value Store.
package worker

import (
	"math/rand"
	"time"

	"modbus-mqtt-gateway/pkg/addr"
	"modbus-mqtt-gateway/pkg/bridge"
	"modbus-mqtt-gateway/pkg/codec"
	"modbus-mqtt-gateway/pkg/config"
	"modbus-mqtt-gateway/pkg/decide"
	bridgeerrors "modbus-mqtt-gateway/pkg/errors"
	"modbus-mqtt-gateway/pkg/logger"
	"modbus-mqtt-gateway/pkg/store"
	"modbus-mqtt-gateway/pkg/transport"
)

// LifecycleState is one of the Bus Worker's four lifecycle states.
type LifecycleState int

const (
	Starting LifecycleState = iota
	Running
	Stopping
	Stopped
)

const writeDrainBatch = 100

type paramState struct {
	spec       config.ParamSpec
	wireStart  int
	decideState decide.State
}

type nodeState struct {
	spec     config.NodeSpec
	params   map[string]*paramState
	noReply  int
}

// Worker is one Bus Worker: exactly one goroutine drives its Transport.
type Worker struct {
	busName   string
	bus       config.BusSpec
	transport transport.Transport
	nodes     map[int]*nodeState // unit_id -> node

	polling    config.PollingConfig
	current    config.CurrentConfig
	normalize  bool

	bridge    *bridge.Bridge
	store     *store.Store
	log       logger.Logger
	baseTopic string

	queue writeQueue

	state   LifecycleState
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New builds a Worker for bus, wiring write-command handlers on br for
// every mode=rw parameter. The transport is not opened until the worker's
// run loop makes its first call.
func New(bus config.BusSpec, polling config.PollingConfig, current config.CurrentConfig, normalize bool, baseTopic string, tr transport.Transport, br *bridge.Bridge, st *store.Store, log logger.Logger) *Worker {
	w := &Worker{
		busName:   bus.Name,
		bus:       bus,
		transport: tr,
		nodes:     make(map[int]*nodeState),
		polling:   polling,
		current:   current,
		normalize: normalize,
		bridge:    br,
		store:     st,
		log:       log,
		baseTopic: baseTopic,
		state:     Starting,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	for _, n := range bus.Nodes {
		ns := &nodeState{spec: n, params: make(map[string]*paramState)}
		for _, p := range n.Params {
			wireStart := addr.Normalize(p.Address, p.RegisterType.AddrType(), normalize)
			ns.params[p.Name] = &paramState{spec: p, wireStart: wireStart}
		}
		w.nodes[n.UnitID] = ns
	}
	w.registerWriteHandlers()
	return w
}

// Start launches the worker's poll loop in its own goroutine.
func (w *Worker) Start() {
	w.state = Running
	go w.run()
}

// Stop signals the poll loop to exit and waits up to 2s for it to do so,
// matching the Hot-Reload Controller's stop-then-wait contract.
func (w *Worker) Stop() {
	w.state = Stopping
	close(w.stopCh)
	select {
	case <-w.doneCh:
	case <-time.After(2 * time.Second):
		w.log.Warn("worker %s: poll loop did not stop within 2s", w.busName)
	}
	w.transport.Close()
	w.state = Stopped
}

// State reports the worker's current lifecycle state.
func (w *Worker) State() LifecycleState { return w.state }

func (w *Worker) run() {
	defer close(w.doneCh)
	for {
		select {
		case <-w.stopCh:
			return
		default:
		}
		start := time.Now()
		w.drainWrites()
		for unitID, node := range w.nodes {
			if w.stopped() {
				return
			}
			w.pollNode(unitID, node)
			if node.noReply >= w.polling.MaxErrorsBeforeBackoff && w.polling.MaxErrorsBeforeBackoff > 0 {
				w.sleepOrStop(time.Duration(w.polling.BackoffMs) * time.Millisecond)
			}
		}
		elapsed := time.Since(start)
		pace := time.Duration(w.polling.IntervalMs)*time.Millisecond - elapsed
		if pace < 0 {
			pace = 0
		}
		if w.polling.JitterMs > 0 {
			pace += time.Duration(rand.Intn(w.polling.JitterMs)) * time.Millisecond
		}
		w.sleepOrStop(pace)
	}
}

func (w *Worker) stopped() bool {
	select {
	case <-w.stopCh:
		return true
	default:
		return false
	}
}

func (w *Worker) sleepOrStop(d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-time.After(d):
	case <-w.stopCh:
	}
}

// drainWrites executes up to writeDrainBatch pending write tasks. Each
// write updates the target parameter's last_value immediately, so the
// very next planned read of that parameter does not register a spurious
// on-change publish.
func (w *Worker) drainWrites() {
	tasks := w.queue.popUpTo(writeDrainBatch)
	for _, t := range tasks {
		node, ok := w.nodes[t.unitID]
		if !ok {
			continue
		}
		p, ok := node.params[t.param]
		if !ok {
			continue
		}
		if err := w.executeWrite(node, p, t.value); err != nil {
			w.log.Error("worker %s: write %s/%s failed: %v", w.busName, node.spec.Object, p.spec.Name, err)
			continue
		}
		p.decideState.HasValue = true
		p.decideState.LastValue = t.value
	}
}

// executeWrite issues the single Modbus write transaction for a write
// task's already-resolved engineering value.
func (w *Worker) executeWrite(node *nodeState, p *paramState, value float64) error {
	unitID := byte(node.spec.UnitID)
	switch p.spec.RegisterType {
	case config.Coil:
		return w.transport.WriteCoil(unitID, p.wireStart, value != 0)
	case config.Holding:
		if p.spec.Words != 1 {
			return bridgeerrors.NewConfigErr("multi-register holding writes are not supported")
		}
		regs, err := codec.Encode(value, p.spec.DataType, p.spec.WordOrder, p.spec.Scale)
		if err != nil {
			return err
		}
		return w.transport.WriteRegister(unitID, p.wireStart, regs[0])
	default:
		return bridgeerrors.NewConfigErr("register_type " + string(p.spec.RegisterType) + " is not writable")
	}
}
