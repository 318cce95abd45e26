package bridge

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Envelope is one outbound MQTT publish, matching the bit-exact wire
// contract: value, metadata.timestamp, metadata.status_code,
// metadata.silent_for_s, metadata.trigger, metadata.no_reply,
// metadata.context. No other keys are ever added.
type Envelope struct {
	Topic      string
	Value      *string
	Timestamp  time.Time
	Code       int
	Message    string
	SilentForS int
	Trigger    string
	NoReply    int
	Context    EnvelopeContext
}

// EnvelopeContext echoes the addressing of the parameter this envelope
// carries.
type EnvelopeContext struct {
	Object       string
	Line         string
	UnitID       int
	RegisterType string
	Address      int
	Param        string
}

type wireEnvelope struct {
	Value    *string `json:"value"`
	Metadata struct {
		Timestamp  string `json:"timestamp"`
		StatusCode struct {
			Source  string `json:"source"`
			Code    int    `json:"code"`
			Message string `json:"message,omitempty"`
		} `json:"status_code"`
		SilentForS int    `json:"silent_for_s"`
		Trigger    string `json:"trigger"`
		NoReply    int    `json:"no_reply"`
		Context    struct {
			Object       string `json:"object"`
			Line         string `json:"line"`
			UnitID       int    `json:"unit_id"`
			RegisterType string `json:"register_type"`
			Address      int    `json:"address"`
			Param        string `json:"param"`
		} `json:"context"`
	} `json:"metadata"`
}

// MarshalJSON renders the envelope per the exact wire contract.
func (e Envelope) MarshalJSON() ([]byte, error) {
	var w wireEnvelope
	w.Value = e.Value
	w.Metadata.Timestamp = e.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z")
	w.Metadata.StatusCode.Source = "persay"
	w.Metadata.StatusCode.Code = e.Code
	w.Metadata.StatusCode.Message = e.Message
	w.Metadata.SilentForS = e.SilentForS
	w.Metadata.Trigger = e.Trigger
	w.Metadata.NoReply = e.NoReply
	w.Metadata.Context.Object = e.Context.Object
	w.Metadata.Context.Line = e.Context.Line
	w.Metadata.Context.UnitID = e.Context.UnitID
	w.Metadata.Context.RegisterType = e.Context.RegisterType
	w.Metadata.Context.Address = e.Context.Address
	w.Metadata.Context.Param = e.Context.Param
	return json.Marshal(w)
}

// BoolValue renders a boolean read ("0"/"1") for Envelope.Value.
func BoolValue(v bool) *string {
	s := "0"
	if v {
		s = "1"
	}
	return &s
}

// NumberValue renders a decimal string for Envelope.Value. Integer engineering
// values are formatted without a fractional part.
func NumberValue(v float64, isInteger bool) *string {
	var s string
	if isInteger {
		s = fmt.Sprintf("%d", int64(v))
	} else {
		s = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return &s
}
