package config

import "testing"

func validConfig() *Config {
	step := 1.0
	return &Config{
		Addressing: AddressingConfig{Normalize: true},
		Lines: []BusSpec{
			{
				Name: "line1", Type: "serial", Device: "/dev/ttyUSB0",
				Nodes: []NodeSpec{
					{
						UnitID: 1, Object: "meter1",
						Params: []ParamSpec{
							{Name: "status", RegisterType: Coil, Address: 1, Words: 1, Scale: 1, Mode: ModeReadWrite, PublishMode: OnChange},
							{Name: "voltage", RegisterType: Holding, Address: 40001, Words: 2, DataType: "u32", Scale: 0.1, Mode: ModeRead, PublishMode: Interval, PublishIntervalS: 5, Step: &step},
						},
					},
				},
			},
		},
	}
}

func TestValidateAcceptsValidConfig(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsStraddlingAddress(t *testing.T) {
	cfg := validConfig()
	cfg.Lines[0].Nodes[0].Params[1].Address = 40000
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected an error for a straddling 32-bit address")
	}
}

func TestValidateRejectsRWOnInput(t *testing.T) {
	cfg := validConfig()
	cfg.Lines[0].Nodes[0].Params[1].RegisterType = Input
	cfg.Lines[0].Nodes[0].Params[1].Address = 30001
	cfg.Lines[0].Nodes[0].Params[1].Mode = ModeReadWrite
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected an error for mode=rw on an input register")
	}
}

func TestValidateRejectsDuplicateParamNames(t *testing.T) {
	cfg := validConfig()
	cfg.Lines[0].Nodes[0].Params = append(cfg.Lines[0].Nodes[0].Params, cfg.Lines[0].Nodes[0].Params[0])
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected an error for duplicate param names")
	}
}

func TestNormalizeAliasesRewritesBoth(t *testing.T) {
	cfg := validConfig()
	cfg.Lines[0].Nodes[0].Params[1].PublishMode = legacyBoth
	normalizeAliases(cfg)
	if cfg.Lines[0].Nodes[0].Params[1].PublishMode != OnChangeAndInterval {
		t.Errorf("expected legacy \"both\" to normalize to on_change_and_interval")
	}
}
