package transport

import (
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	bridgeerrors "modbus-mqtt-gateway/pkg/errors"
	"modbus-mqtt-gateway/pkg/logger"
)

// TCPConfig configures a Modbus TCP bus connection shared by every unit id
// addressed through it.
type TCPConfig struct {
	Host              string
	Port              int
	TimeoutS          float64
	PortRetryBackoffS float64
}

// TCP is the Modbus-TCP Transport variant, framing each transaction with
// an MBAP header instead of a CRC.
type TCP struct {
	cfg   TCPConfig
	mu    sync.Mutex
	conn  net.Conn
	txID  uint32
	fault *fault
	log   logger.Logger
}

func NewTCP(cfg TCPConfig, log logger.Logger) *TCP {
	return &TCP{cfg: cfg, fault: newFault(cfg.PortRetryBackoffS), log: log}
}

func (t *TCP) ensureOpen() error {
	if t.conn != nil {
		return nil
	}
	if !t.fault.ready() {
		return errPortNotReady
	}
	addr := fmt.Sprintf("%s:%d", t.cfg.Host, t.cfg.Port)
	conn, err := net.DialTimeout("tcp", addr, time.Duration(t.cfg.TimeoutS*float64(time.Second)))
	if err != nil {
		t.fault.markFaulted()
		return bridgeerrors.NewPortBusyErr(fmt.Sprintf("dial %s: %v", addr, err))
	}
	wasFaulted := t.fault.wasFaulted()
	t.fault.clear()
	t.conn = conn
	if wasFaulted {
		t.log.Info("tcp: connection to %s reopened", addr)
	}
	return nil
}

func (t *TCP) closeLocked() {
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
}

func (t *TCP) transact(unitID byte, pdu []byte) ([]byte, error) {
	if err := t.ensureOpen(); err != nil {
		return nil, err
	}
	t.conn.SetDeadline(time.Now().Add(time.Duration(t.cfg.TimeoutS * float64(time.Second))))

	id := uint16(atomic.AddUint32(&t.txID, 1))
	header := make([]byte, 7)
	binary.BigEndian.PutUint16(header[0:], id)
	binary.BigEndian.PutUint16(header[2:], 0)
	binary.BigEndian.PutUint16(header[4:], uint16(len(pdu)+1))
	header[6] = unitID
	if _, err := t.conn.Write(append(header, pdu...)); err != nil {
		t.closeLocked()
		t.fault.markFaulted()
		return nil, fmt.Errorf("tcp write: %w", err)
	}

	respHeader := make([]byte, 7)
	if err := t.readExact(respHeader); err != nil {
		t.closeLocked()
		t.fault.markFaulted()
		return nil, timeoutErr{err}
	}
	length := binary.BigEndian.Uint16(respHeader[4:])
	if length < 1 {
		t.closeLocked()
		return nil, fmt.Errorf("tcp: malformed MBAP length %d", length)
	}
	pduResp := make([]byte, length-1)
	if err := t.readExact(pduResp); err != nil {
		t.closeLocked()
		t.fault.markFaulted()
		return nil, timeoutErr{err}
	}
	if pduResp[0]&0x80 != 0 {
		return nil, bridgeerrors.NewExceptionError(pduResp[0]&0x7F, pduResp[1])
	}
	return pduResp, nil
}

func (t *TCP) readExact(buf []byte) error {
	got := 0
	for got < len(buf) {
		k, err := t.conn.Read(buf[got:])
		if err != nil {
			return err
		}
		got += k
	}
	return nil
}

func (t *TCP) ReadBits(unitID byte, start, count int, fn uint8) ([]bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	pdu := []byte{fn, 0, 0, 0, 0}
	binary.BigEndian.PutUint16(pdu[1:], uint16(start))
	binary.BigEndian.PutUint16(pdu[3:], uint16(count))
	resp, err := t.transact(unitID, pdu)
	if err != nil {
		return nil, err
	}
	byteCount := int(resp[1])
	bits := make([]bool, count)
	for i := 0; i < count; i++ {
		byteIdx := i / 8
		bitIdx := uint(i % 8)
		if byteIdx >= byteCount {
			break
		}
		bits[i] = resp[2+byteIdx]&(1<<bitIdx) != 0
	}
	return bits, nil
}

func (t *TCP) ReadRegs(unitID byte, start, count int, fn uint8) ([]uint16, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	pdu := []byte{fn, 0, 0, 0, 0}
	binary.BigEndian.PutUint16(pdu[1:], uint16(start))
	binary.BigEndian.PutUint16(pdu[3:], uint16(count))
	resp, err := t.transact(unitID, pdu)
	if err != nil {
		return nil, err
	}
	regs := make([]uint16, count)
	for i := 0; i < count; i++ {
		regs[i] = binary.BigEndian.Uint16(resp[2+i*2:])
	}
	return regs, nil
}

func (t *TCP) WriteCoil(unitID byte, address int, value bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	var v uint16
	if value {
		v = 0xFF00
	}
	pdu := []byte{FuncWriteSingleCoil, 0, 0, 0, 0}
	binary.BigEndian.PutUint16(pdu[1:], uint16(address))
	binary.BigEndian.PutUint16(pdu[3:], v)
	_, err := t.transact(unitID, pdu)
	return err
}

func (t *TCP) WriteRegister(unitID byte, address int, value uint16) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	pdu := []byte{FuncWriteSingleReg, 0, 0, 0, 0}
	binary.BigEndian.PutUint16(pdu[1:], uint16(address))
	binary.BigEndian.PutUint16(pdu[3:], value)
	_, err := t.transact(unitID, pdu)
	return err
}

func (t *TCP) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeLocked()
	return nil
}
