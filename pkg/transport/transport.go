// Package transport implements the two bus connection variants a Bus
// Worker polls: Modbus RTU over a serial port, and Modbus TCP over a
// socket. Both guarantee per-transaction mutual exclusion and share the
// same lazy-open, fault, and fixed-backoff reopen lifecycle.
package transport

import (
	"sync"
	"time"

	bridgeerrors "modbus-mqtt-gateway/pkg/errors"
)

const (
	FuncReadCoils          = 0x01
	FuncReadDiscreteInputs = 0x02
	FuncReadHoldingRegs    = 0x03
	FuncReadInputRegs      = 0x04
	FuncWriteSingleCoil    = 0x05
	FuncWriteSingleReg     = 0x06
)

// Transport is the polymorphic bus connection a Bus Worker drives. A single
// Transport instance owns one physical link (one serial port, one TCP
// socket) shared by every node/unit address on that bus; unitID selects
// which slave a given call addresses, matching a multi-drop RTU segment or
// a TCP gateway fanning out to several unit ids over one connection. Both
// variants serialize every call through an internal lock.
type Transport interface {
	ReadBits(unitID byte, start, count int, fn uint8) ([]bool, error)
	ReadRegs(unitID byte, start, count int, fn uint8) ([]uint16, error)
	WriteCoil(unitID byte, address int, value bool) error
	WriteRegister(unitID byte, address int, value uint16) error
	Close() error
}

// fault tracks the lazy-open / fixed-backoff reopen lifecycle shared by
// both transport variants. port_retry_backoff_s never grows across
// repeated failures in this design; each fault resets the same fixed
// delay.
type fault struct {
	mu       sync.Mutex
	faulted  bool
	retryAt  time.Time
	backoff  time.Duration
}

func newFault(backoffS float64) *fault {
	return &fault{backoff: time.Duration(backoffS * float64(time.Second))}
}

// ready reports whether a connection attempt may proceed: either the port
// has never faulted, or its retry deadline has passed.
func (f *fault) ready() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.faulted {
		return true
	}
	return !time.Now().Before(f.retryAt)
}

func (f *fault) markFaulted() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faulted = true
	f.retryAt = time.Now().Add(f.backoff)
}

func (f *fault) clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faulted = false
}

func (f *fault) wasFaulted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.faulted
}

var errPortNotReady = bridgeerrors.NewPortBusyErr("port faulted, retry_at not yet reached")
