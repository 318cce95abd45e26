package planner

import (
	"testing"

	"modbus-mqtt-gateway/pkg/codec"
	"modbus-mqtt-gateway/pkg/config"
)

func holdingParam(name string, address, words int, dt codec.DataType) config.ParamSpec {
	return config.ParamSpec{
		Name: name, RegisterType: config.Holding, Address: address, Words: words,
		DataType: dt, Scale: 1, Mode: config.ModeRead, PublishMode: config.OnChange,
	}
}

func TestPlanGroupsContiguousSingleWordRun(t *testing.T) {
	params := []config.ParamSpec{
		holdingParam("p1", 40001, 1, codec.U16),
		holdingParam("p2", 40002, 1, codec.U16),
		holdingParam("p3", 40003, 1, codec.U16),
	}
	reads, err := Plan(params, true, Caps{Enabled: true, MaxRegisters: 10, MaxBits: 100})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reads) != 1 {
		t.Fatalf("expected a single block read, got %d", len(reads))
	}
	if reads[0].Count != 3 || reads[0].Start != 0 {
		t.Errorf("expected block (start=0,count=3), got (start=%d,count=%d)", reads[0].Start, reads[0].Count)
	}
}

func TestPlanRespectsBlockCap(t *testing.T) {
	params := []config.ParamSpec{
		holdingParam("p1", 40001, 1, codec.U16),
		holdingParam("p2", 40002, 1, codec.U16),
		holdingParam("p3", 40003, 1, codec.U16),
	}
	reads, err := Plan(params, true, Caps{Enabled: true, MaxRegisters: 2, MaxBits: 100})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reads) != 2 {
		t.Fatalf("expected two reads under a cap of 2, got %d", len(reads))
	}
	for _, r := range reads {
		if r.Count > 2 {
			t.Errorf("read exceeds configured cap: count=%d", r.Count)
		}
	}
}

func TestPlanIsolatesMultiWordParam(t *testing.T) {
	params := []config.ParamSpec{
		holdingParam("p1", 40001, 1, codec.U16),
		holdingParam("p2", 40002, 2, codec.U32),
	}
	reads, err := Plan(params, true, Caps{Enabled: true, MaxRegisters: 10, MaxBits: 100})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reads) != 2 {
		t.Fatalf("expected the 32-bit param to be isolated into its own read, got %d reads", len(reads))
	}
	if len(reads[1].Members) != 1 || reads[1].Count != 2 {
		t.Errorf("expected isolated 2-register read for p2")
	}
}

func TestPlanDisabledBatchingIsolatesEveryParam(t *testing.T) {
	params := []config.ParamSpec{
		holdingParam("p1", 40001, 1, codec.U16),
		holdingParam("p2", 40002, 1, codec.U16),
	}
	reads, err := Plan(params, true, Caps{Enabled: false, MaxRegisters: 10, MaxBits: 100})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reads) != 2 {
		t.Fatalf("expected batching disabled to isolate every param, got %d reads", len(reads))
	}
}

func TestPlanNeverSpansMultipleRegisterTypes(t *testing.T) {
	params := []config.ParamSpec{
		holdingParam("p1", 40001, 1, codec.U16),
		{Name: "c1", RegisterType: config.Coil, Address: 1, Words: 1, Scale: 1, Mode: config.ModeRead, PublishMode: config.OnChange},
	}
	reads, err := Plan(params, true, Caps{Enabled: true, MaxRegisters: 10, MaxBits: 100})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, r := range reads {
		rt := r.Members[0].Spec.RegisterType
		for _, m := range r.Members {
			if m.Spec.RegisterType != rt {
				t.Errorf("a single read spans more than one register_type")
			}
		}
	}
}

func TestPlanRejectsStraddlingConfigError(t *testing.T) {
	params := []config.ParamSpec{
		holdingParam("bad", 40000, 2, codec.U32),
	}
	_, err := Plan(params, true, Caps{Enabled: true, MaxRegisters: 10, MaxBits: 100})
	if err == nil {
		t.Fatalf("expected a CONFIG_ERROR for a straddling address")
	}
}
