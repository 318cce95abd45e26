// Package config defines the gateway's configuration data model and loads
// it from YAML, following the teacher's config-file conventions. The admin
// collaborator that authors this file is responsible for first-pass
// validation; the gateway still validates every invariant defensively
// before building Bus Workers from it.
package config

import (
	"modbus-mqtt-gateway/pkg/addr"
	"modbus-mqtt-gateway/pkg/codec"
	"modbus-mqtt-gateway/pkg/logger"
)

// RegisterType is one of the four Modbus object spaces a parameter reads
// from or writes to.
type RegisterType string

const (
	Coil     RegisterType = "coil"
	Discrete RegisterType = "discrete"
	Holding  RegisterType = "holding"
	Input    RegisterType = "input"
)

// AddrType adapts RegisterType to the addr package's own type, kept
// separate so addr has no dependency on config.
func (r RegisterType) AddrType() addr.RegisterType { return addr.RegisterType(r) }

// Mode is whether a parameter is read-only or read-write.
type Mode string

const (
	ModeRead      Mode = "r"
	ModeReadWrite Mode = "rw"
)

// PublishMode selects when a parameter's reads result in an outbound
// envelope. "both" is accepted on ingestion as a legacy alias for
// OnChangeAndInterval and normalized away by Load.
type PublishMode string

const (
	OnChange           PublishMode = "on_change"
	Interval           PublishMode = "interval"
	OnChangeAndInterval PublishMode = "on_change_and_interval"
	legacyBoth         PublishMode = "both"
)

// ParamSpec is one named register or register-run on a node.
type ParamSpec struct {
	Name         string      `yaml:"name"`
	RegisterType RegisterType `yaml:"register_type"`
	Address      int         `yaml:"address"`
	Words        int         `yaml:"words"`
	DataType     codec.DataType `yaml:"data_type"`
	WordOrder    codec.WordOrder `yaml:"word_order"`
	Scale        float64     `yaml:"scale"`
	Mode         Mode        `yaml:"mode"`

	PublishMode      PublishMode `yaml:"publish_mode"`
	PublishIntervalS int         `yaml:"publish_interval_s"`
	Step             *float64    `yaml:"step,omitempty"`
	Hysteresis       *float64    `yaml:"hysteresis,omitempty"`
	Topic            string      `yaml:"topic,omitempty"`
}

// IsAnalog reports whether this parameter carries a numeric (non-boolean)
// engineering value.
func (p ParamSpec) IsAnalog() bool {
	return p.RegisterType == Holding || p.RegisterType == Input
}

// StepValue returns the configured step, or 0 if unset.
func (p ParamSpec) StepValue() float64 {
	if p.Step == nil {
		return 0
	}
	return *p.Step
}

// HysteresisValue returns the configured hysteresis, or 0 if unset.
func (p ParamSpec) HysteresisValue() float64 {
	if p.Hysteresis == nil {
		return 0
	}
	return *p.Hysteresis
}

// NodeSpec is a single Modbus slave on a bus.
type NodeSpec struct {
	UnitID    int         `yaml:"unit_id"`
	Object    string      `yaml:"object"`
	NumObject string      `yaml:"num_object,omitempty"`
	Params    []ParamSpec `yaml:"params"`
}

// BusSpec is one physical link: a serial port or a TCP endpoint, shared by
// every node in Nodes. Type selects which of the serial/TCP fields apply.
type BusSpec struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"` // "serial" or "tcp"

	// Serial variant.
	Device         string `yaml:"device,omitempty"`
	Baudrate       int    `yaml:"baudrate,omitempty"`
	Parity         string `yaml:"parity,omitempty"`
	Stopbits       int    `yaml:"stopbits,omitempty"`
	RS485RTSToggle bool   `yaml:"rs485_rts_toggle,omitempty"`

	// TCP variant.
	Host string `yaml:"host,omitempty"`
	Port int    `yaml:"port,omitempty"`

	TimeoutS          float64 `yaml:"timeout_s"`
	PortRetryBackoffS float64 `yaml:"port_retry_backoff_s"`

	Nodes []NodeSpec `yaml:"nodes"`
}

func (b BusSpec) IsSerial() bool { return b.Type == "serial" }
func (b BusSpec) IsTCP() bool    { return b.Type == "tcp" }

type MQTTConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	BaseTopic string `yaml:"base_topic"`
	QoS       byte   `yaml:"qos"`
	Retain    bool   `yaml:"retain"`
	ClientID  string `yaml:"client_id"`
}

type BatchReadConfig struct {
	Enabled      bool `yaml:"enabled"`
	MaxBits      int  `yaml:"max_bits"`
	MaxRegisters int  `yaml:"max_registers"`
}

type PollingConfig struct {
	IntervalMs             int             `yaml:"interval_ms"`
	JitterMs                int             `yaml:"jitter_ms"`
	BackoffMs               int             `yaml:"backoff_ms"`
	MaxErrorsBeforeBackoff   int             `yaml:"max_errors_before_backoff"`
	PortRetryBackoffS        float64         `yaml:"port_retry_backoff_s"`
	BatchRead                BatchReadConfig `yaml:"batch_read"`
}

type HistoryConfig struct {
	Path         string `yaml:"path"`
	MaxRows      int    `yaml:"max_rows"`
	TTLDays      int    `yaml:"ttl_days"`
	CleanupEvery int    `yaml:"cleanup_every"`
}

type CurrentConfig struct {
	TouchReadEveryS   int `yaml:"touch_read_every_s"`
	PrecisionDecimals int `yaml:"precision_decimals"`
}

type AddressingConfig struct {
	Normalize bool `yaml:"normalize"`
}

type SerialGlobalConfig struct {
	Echo bool `yaml:"echo"`
}

// Config is the top-level configuration contract the admin collaborator
// hands to the core.
type Config struct {
	MQTT       MQTTConfig         `yaml:"mqtt"`
	Polling    PollingConfig      `yaml:"polling"`
	History    HistoryConfig      `yaml:"history"`
	Current    CurrentConfig      `yaml:"current"`
	Addressing AddressingConfig   `yaml:"addressing"`
	Serial     SerialGlobalConfig `yaml:"serial"`
	Logging    logger.Config      `yaml:"logging"`
	Lines      []BusSpec          `yaml:"lines"`
}
