package config

import (
	"fmt"

	"modbus-mqtt-gateway/pkg/addr"
)

// Validate enforces the data-model invariants of the configuration
// contract. The admin collaborator is expected to have already validated
// these; the gateway re-checks them defensively rather than trust an
// external file blindly.
func Validate(cfg *Config) error {
	busNames := map[string]bool{}
	for _, bus := range cfg.Lines {
		if bus.Name == "" {
			return fmt.Errorf("bus with empty name")
		}
		if busNames[bus.Name] {
			return fmt.Errorf("duplicate bus name %q", bus.Name)
		}
		busNames[bus.Name] = true

		if !bus.IsSerial() && !bus.IsTCP() {
			return fmt.Errorf("bus %q: type must be serial or tcp, got %q", bus.Name, bus.Type)
		}
		if bus.IsSerial() && bus.Device == "" {
			return fmt.Errorf("bus %q: serial bus requires device", bus.Name)
		}
		if bus.IsTCP() && bus.Host == "" {
			return fmt.Errorf("bus %q: tcp bus requires host", bus.Name)
		}

		for _, node := range bus.Nodes {
			if err := validateNode(bus.Name, node, cfg.Addressing.Normalize); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateNode(busName string, node NodeSpec, normalize bool) error {
	if node.UnitID < 0 || node.UnitID > 247 {
		return fmt.Errorf("bus %q: node unit_id %d out of range [0,247]", busName, node.UnitID)
	}
	if node.Object == "" {
		return fmt.Errorf("bus %q: node with empty object", busName)
	}
	paramNames := map[string]bool{}
	for _, p := range node.Params {
		if paramNames[p.Name] {
			return fmt.Errorf("bus %q node %q: duplicate param name %q", busName, node.Object, p.Name)
		}
		paramNames[p.Name] = true
		if err := validateParam(busName, node.Object, p, normalize); err != nil {
			return err
		}
	}
	return nil
}

func validateParam(busName, object string, p ParamSpec, normalize bool) error {
	ctx := fmt.Sprintf("bus %q node %q param %q", busName, object, p.Name)
	switch p.RegisterType {
	case Coil, Discrete:
		if p.Words != 1 {
			return fmt.Errorf("%s: %s requires words=1, got %d", ctx, p.RegisterType, p.Words)
		}
	case Holding, Input:
		wantWords := p.DataType.Words()
		if wantWords == 0 {
			return fmt.Errorf("%s: unsupported data_type %q", ctx, p.DataType)
		}
		if p.Words != wantWords {
			return fmt.Errorf("%s: data_type %s requires words=%d, got %d", ctx, p.DataType, wantWords, p.Words)
		}
	default:
		return fmt.Errorf("%s: unsupported register_type %q", ctx, p.RegisterType)
	}
	if p.Mode == ModeReadWrite && p.RegisterType != Coil && p.RegisterType != Holding {
		return fmt.Errorf("%s: mode=rw requires register_type in {coil, holding}, got %s", ctx, p.RegisterType)
	}
	if p.Scale <= 0 {
		return fmt.Errorf("%s: scale must be > 0, got %v", ctx, p.Scale)
	}
	switch p.PublishMode {
	case OnChange, Interval, OnChangeAndInterval:
	default:
		return fmt.Errorf("%s: unsupported publish_mode %q", ctx, p.PublishMode)
	}
	if _, _, err := addr.Span(p.Address, p.RegisterType.AddrType(), p.Words, normalize); err != nil {
		return fmt.Errorf("%s: %w", ctx, err)
	}
	return nil
}
