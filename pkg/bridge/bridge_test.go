package bridge

import (
	"encoding/json"
	"testing"
	"time"
)

func TestEnvelopeMarshalContainsExactKeys(t *testing.T) {
	e := Envelope{
		Topic:     "/devices/r1/controls/c1",
		Value:     BoolValue(true),
		Timestamp: time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC),
		Code:      0,
		Trigger:   "change",
		Context:   EnvelopeContext{Object: "r1", Line: "line1", UnitID: 1, RegisterType: "coil", Address: 0, Param: "c1"},
	}
	body, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var generic map[string]interface{}
	if err := json.Unmarshal(body, &generic); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(generic) != 2 {
		t.Errorf("expected exactly value+metadata top-level keys, got %v", generic)
	}
	if generic["value"] != "1" {
		t.Errorf(`expected value "1", got %v`, generic["value"])
	}
	meta := generic["metadata"].(map[string]interface{})
	for _, key := range []string{"timestamp", "status_code", "silent_for_s", "trigger", "no_reply", "context"} {
		if _, ok := meta[key]; !ok {
			t.Errorf("missing metadata key %q", key)
		}
	}
}

func TestEnvelopeMarshalNullValue(t *testing.T) {
	e := Envelope{Topic: "t", Value: nil, Timestamp: time.Now(), Code: 1, Message: "TIMEOUT", Trigger: "heartbeat"}
	body, _ := json.Marshal(e)
	var generic map[string]interface{}
	json.Unmarshal(body, &generic)
	if generic["value"] != nil {
		t.Errorf("expected null value, got %v", generic["value"])
	}
}

func TestResolveTopicAbsolute(t *testing.T) {
	if got := ResolveTopic("/base", "/devices/r1/c1"); got != "/devices/r1/c1" {
		t.Errorf("ResolveTopic = %q, want absolute override", got)
	}
}

func TestResolveTopicRelative(t *testing.T) {
	if got := ResolveTopic("/base", "r1/c1"); got != "/base/r1/c1" {
		t.Errorf("ResolveTopic = %q, want /base/r1/c1", got)
	}
}

func TestDecodePayloadBareString(t *testing.T) {
	if got := decodePayload([]byte(`"1"`)); got != "1" {
		t.Errorf("decodePayload bare quoted = %q, want 1", got)
	}
	if got := decodePayload([]byte(`1`)); got != "1" {
		t.Errorf("decodePayload bare = %q, want 1", got)
	}
}

func TestDecodePayloadJSONObject(t *testing.T) {
	if got := decodePayload([]byte(`{"value":"1"}`)); got != "1" {
		t.Errorf(`decodePayload object = %q, want "1"`, got)
	}
}
