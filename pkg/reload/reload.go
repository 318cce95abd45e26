// Package reload implements the Hot-Reload Controller: replacing the live
// worker set for a new configuration without restarting the process, while
// preserving Current-Value Store entries whose identity key survives the
// reconfiguration.
package reload

import (
	"sync"

	"golang.org/x/sync/errgroup"

	"modbus-mqtt-gateway/pkg/bridge"
	"modbus-mqtt-gateway/pkg/config"
	"modbus-mqtt-gateway/pkg/logger"
	"modbus-mqtt-gateway/pkg/store"
	"modbus-mqtt-gateway/pkg/transport"
	"modbus-mqtt-gateway/pkg/worker"
)

// OpenTransport builds the Transport variant BusSpec.Type selects. Injected
// so Controller never imports transport construction details it doesn't
// need and tests can substitute fakes.
type OpenTransport func(bus config.BusSpec) (transport.Transport, error)

// Controller owns the live worker set and serializes reconfiguration
// through a single lock, per §4.9's "one reload in flight at a time" rule.
type Controller struct {
	mu      sync.Mutex
	workers []*worker.Worker

	bridge    *bridge.Bridge
	store     *store.Store
	log       logger.Logger
	openTr    OpenTransport
	baseTopic string
}

func New(br *bridge.Bridge, st *store.Store, log logger.Logger, baseTopic string, openTr OpenTransport) *Controller {
	return &Controller{bridge: br, store: st, log: log, baseTopic: baseTopic, openTr: openTr}
}

// Apply stops the current worker set (if any), rebuilds the Current-Value
// Store's surviving keys, and starts a worker per configured bus. A single
// bus's worker failing to start is logged and does not prevent the other
// buses from starting — errgroup's own error propagation is deliberately
// not used to cancel siblings (wrapped below), matching the invariant that
// one malfunctioning device must never take down the whole gateway.
func (c *Controller) Apply(cfg *config.Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopAllLocked()
	c.pruneStoreLocked(cfg)

	var mu sync.Mutex
	var started []*worker.Worker
	var g errgroup.Group
	for _, bus := range cfg.Lines {
		bus := bus
		g.Go(func() error {
			w, err := c.startWorker(bus, cfg)
			if err != nil {
				c.log.Error("reload: bus %s failed to start: %v", bus.Name, err)
				return nil // swallowed: one bus's failure must not cancel the others
			}
			mu.Lock()
			started = append(started, w)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // every goroutine above always returns nil; error path is logged in place

	c.workers = started
	return nil
}

func (c *Controller) startWorker(bus config.BusSpec, cfg *config.Config) (*worker.Worker, error) {
	tr, err := c.openTr(bus)
	if err != nil {
		return nil, err
	}
	w := worker.New(bus, cfg.Polling, cfg.Current, cfg.Addressing.Normalize, c.baseTopic, tr, c.bridge, c.store, c.log)
	w.Start()
	return w, nil
}

// pruneStoreLocked drops Current-Value Store entries whose (bus, unit,
// object, param) key no longer appears in cfg, so a removed parameter's
// stale value cannot be served by the diagnostic surface after reload.
func (c *Controller) pruneStoreLocked(cfg *config.Config) {
	keep := make(map[store.Key]bool)
	for _, bus := range cfg.Lines {
		for _, node := range bus.Nodes {
			for _, p := range node.Params {
				keep[store.Key{Bus: bus.Name, Object: node.Object, Param: p.Name, UnitID: node.UnitID}] = true
			}
		}
	}
	c.store.Prune(keep)
}

// stopAllLocked stops every worker in the current set. Each Worker.Stop
// call already bounds itself to a 2s wait before forcing its transport
// closed, so this does not need its own timeout.
func (c *Controller) stopAllLocked() {
	for _, w := range c.workers {
		w.Stop()
	}
	c.workers = nil
}

// Workers returns the currently running worker set, for diagnostics.
func (c *Controller) Workers() []*worker.Worker {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*worker.Worker, len(c.workers))
	copy(out, c.workers)
	return out
}
