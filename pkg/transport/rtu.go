package transport

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"

	"modbus-mqtt-gateway/pkg/crc"
	bridgeerrors "modbus-mqtt-gateway/pkg/errors"
	"modbus-mqtt-gateway/pkg/logger"
)

// RTUConfig configures a serial-RTU bus connection shared by every unit id
// addressed on that segment.
type RTUConfig struct {
	Device            string
	Baudrate          int
	Parity            string // "N", "E", "O"
	Stopbits          int    // 1 or 2
	TimeoutS          float64
	RS485RTSToggle    bool
	LocalEchoExpected bool
	PortRetryBackoffS float64
}

// RTU is the serial-RTU Transport variant. One RTU owns exactly one
// physical port; every read/write is serialized through mu.
type RTU struct {
	cfg   RTUConfig
	mu    sync.Mutex
	port  serial.Port
	fault *fault
	log   logger.Logger
}

// NewRTU constructs an RTU transport. The port itself is opened lazily on
// first use, not here.
func NewRTU(cfg RTUConfig, log logger.Logger) *RTU {
	return &RTU{cfg: cfg, fault: newFault(cfg.PortRetryBackoffS), log: log}
}

func (r *RTU) ensureOpen() error {
	if r.port != nil {
		return nil
	}
	if !r.fault.ready() {
		return errPortNotReady
	}
	mode := &serial.Mode{BaudRate: r.cfg.Baudrate, DataBits: 8}
	switch r.cfg.Stopbits {
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		mode.StopBits = serial.OneStopBit
	}
	switch r.cfg.Parity {
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	default:
		mode.Parity = serial.NoParity
	}
	port, err := serial.Open(r.cfg.Device, mode)
	if err != nil {
		r.fault.markFaulted()
		return bridgeerrors.NewPortBusyErr(fmt.Sprintf("open %s: %v", r.cfg.Device, err))
	}
	port.SetReadTimeout(time.Duration(r.cfg.TimeoutS * float64(time.Second)))
	wasFaulted := r.fault.wasFaulted()
	r.fault.clear()
	r.port = port
	if wasFaulted {
		r.log.Info("rtu: port %s reopened", r.cfg.Device)
	}
	return nil
}

func (r *RTU) closeLocked() {
	if r.port != nil {
		r.port.Close()
		r.port = nil
	}
}

// transact sends request and returns the response frame with its CRC
// still attached, verified and exception-checked. It must be called with
// mu held.
func (r *RTU) transact(request []byte) ([]byte, error) {
	if err := r.ensureOpen(); err != nil {
		return nil, err
	}
	framed := crc.Append(request)
	if r.cfg.RS485RTSToggle {
		if err := r.port.SetRTS(true); err != nil {
			r.closeLocked()
			r.fault.markFaulted()
			return nil, fmt.Errorf("rtu: assert RTS: %w", err)
		}
	}
	_, writeErr := r.port.Write(framed)
	if r.cfg.RS485RTSToggle {
		if err := r.port.SetRTS(false); err != nil {
			r.closeLocked()
			r.fault.markFaulted()
			return nil, fmt.Errorf("rtu: release RTS: %w", err)
		}
	}
	if writeErr != nil {
		r.closeLocked()
		r.fault.markFaulted()
		return nil, fmt.Errorf("rtu write: %w", writeErr)
	}
	if r.cfg.LocalEchoExpected {
		if _, err := r.readExact(len(framed)); err != nil {
			r.closeLocked()
			r.fault.markFaulted()
			return nil, fmt.Errorf("rtu echo drain: %w", err)
		}
	}
	header, err := r.readExact(2)
	if err != nil {
		r.closeLocked()
		r.fault.markFaulted()
		return nil, timeoutErr{err}
	}
	var rest []byte
	if header[1]&0x80 != 0 {
		rest, err = r.readExact(3)
	} else {
		switch header[1] {
		case FuncReadCoils, FuncReadDiscreteInputs, FuncReadHoldingRegs, FuncReadInputRegs:
			bc, berr := r.readExact(1)
			if berr != nil {
				err = berr
				break
			}
			var body []byte
			body, err = r.readExact(int(bc[0]) + 2)
			rest = append(bc, body...)
		default:
			rest, err = r.readExact(6)
		}
	}
	if err != nil {
		r.closeLocked()
		r.fault.markFaulted()
		return nil, timeoutErr{err}
	}
	frame := append(header, rest...)
	if !crc.Verify(frame) {
		return nil, bridgeerrors.NewCRCMismatchErr("rtu: response CRC mismatch")
	}
	if frame[1]&0x80 != 0 {
		return nil, bridgeerrors.NewExceptionError(frame[1]&0x7F, frame[2])
	}
	return frame, nil
}

func (r *RTU) readExact(n int) ([]byte, error) {
	buf := make([]byte, n)
	got := 0
	for got < n {
		k, err := r.port.Read(buf[got:])
		if err != nil {
			return nil, err
		}
		if k == 0 {
			return nil, fmt.Errorf("rtu: read timed out after %d/%d bytes", got, n)
		}
		got += k
	}
	return buf, nil
}

type timeoutErr struct{ err error }

func (t timeoutErr) Error() string  { return t.err.Error() }
func (t timeoutErr) Timeout() bool  { return true }
func (t timeoutErr) Unwrap() error  { return t.err }

func (r *RTU) ReadBits(unitID byte, start, count int, fn uint8) ([]bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req := []byte{unitID, fn, 0, 0, 0, 0}
	binary.BigEndian.PutUint16(req[2:], uint16(start))
	binary.BigEndian.PutUint16(req[4:], uint16(count))
	resp, err := r.transact(req)
	if err != nil {
		return nil, err
	}
	byteCount := int(resp[2])
	bits := make([]bool, count)
	for i := 0; i < count; i++ {
		byteIdx := i / 8
		bitIdx := uint(i % 8)
		if byteIdx >= byteCount {
			break
		}
		bits[i] = resp[3+byteIdx]&(1<<bitIdx) != 0
	}
	return bits, nil
}

func (r *RTU) ReadRegs(unitID byte, start, count int, fn uint8) ([]uint16, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req := []byte{unitID, fn, 0, 0, 0, 0}
	binary.BigEndian.PutUint16(req[2:], uint16(start))
	binary.BigEndian.PutUint16(req[4:], uint16(count))
	resp, err := r.transact(req)
	if err != nil {
		return nil, err
	}
	regs := make([]uint16, count)
	for i := 0; i < count; i++ {
		regs[i] = binary.BigEndian.Uint16(resp[3+i*2:])
	}
	return regs, nil
}

func (r *RTU) WriteCoil(unitID byte, address int, value bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var v uint16
	if value {
		v = 0xFF00
	}
	req := []byte{unitID, FuncWriteSingleCoil, 0, 0, 0, 0}
	binary.BigEndian.PutUint16(req[2:], uint16(address))
	binary.BigEndian.PutUint16(req[4:], v)
	_, err := r.transact(req)
	return err
}

func (r *RTU) WriteRegister(unitID byte, address int, value uint16) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	req := []byte{unitID, FuncWriteSingleReg, 0, 0, 0, 0}
	binary.BigEndian.PutUint16(req[2:], uint16(address))
	binary.BigEndian.PutUint16(req[4:], value)
	_, err := r.transact(req)
	return err
}

func (r *RTU) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeLocked()
	return nil
}
