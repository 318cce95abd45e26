// Package planner groups a node's parameters into the minimal sequence of
// Modbus read transactions: contiguous same-register-type runs within
// configured block-size caps, and isolated single reads for multi-word
// parameters.
package planner

import (
	"sort"

	"modbus-mqtt-gateway/pkg/addr"
	"modbus-mqtt-gateway/pkg/config"
	bridgeerrors "modbus-mqtt-gateway/pkg/errors"
	"modbus-mqtt-gateway/pkg/transport"
)

// Member is one parameter's placement inside a planned Read, carrying both
// its spec and its position within the read's returned values.
type Member struct {
	Spec   config.ParamSpec
	Offset int // index of this param's first word within the Read's result
}

// Read is one planned Modbus transaction: either a block of contiguous
// single-word parameters, or an isolated multi-word parameter.
type Read struct {
	RegisterType config.RegisterType
	FunctionCode uint8
	Start        int
	Count        int
	Members      []Member
}

// Caps bounds how large a block read the Planner may build.
type Caps struct {
	Enabled      bool
	MaxBits      int
	MaxRegisters int
}

func functionCode(rt config.RegisterType) uint8 {
	switch rt {
	case config.Coil:
		return transport.FuncReadCoils
	case config.Discrete:
		return transport.FuncReadDiscreteInputs
	case config.Holding:
		return transport.FuncReadHoldingRegs
	case config.Input:
		return transport.FuncReadInputRegs
	default:
		return 0
	}
}

func capFor(rt config.RegisterType, caps Caps) int {
	if rt == config.Coil || rt == config.Discrete {
		return caps.MaxBits
	}
	return caps.MaxRegisters
}

type placedParam struct {
	spec  config.ParamSpec
	start int
}

// Plan builds the ordered read sequence for one node's parameters.
// normalize is the addressing.normalize config flag.
func Plan(params []config.ParamSpec, normalize bool, caps Caps) ([]Read, error) {
	placed := make([]placedParam, 0, len(params))
	for _, p := range params {
		start, _, err := addr.Span(p.Address, p.RegisterType.AddrType(), p.Words, normalize)
		if err != nil {
			return nil, bridgeerrors.NewConfigErr("param " + p.Name + ": " + err.Error())
		}
		placed = append(placed, placedParam{spec: p, start: start})
	}

	// Stable sort by (register_type, normalized address); ties preserve
	// the original YAML order via sort.SliceStable.
	sort.SliceStable(placed, func(i, j int) bool {
		if placed[i].spec.RegisterType != placed[j].spec.RegisterType {
			return placed[i].spec.RegisterType < placed[j].spec.RegisterType
		}
		return placed[i].start < placed[j].start
	})

	var reads []Read
	var run []placedParam

	flush := func() {
		if len(run) == 0 {
			return
		}
		rt := run[0].spec.RegisterType
		read := Read{
			RegisterType: rt,
			FunctionCode: functionCode(rt),
			Start:        run[0].start,
			Count:        run[len(run)-1].start + run[len(run)-1].spec.Words - run[0].start,
		}
		for _, pp := range run {
			read.Members = append(read.Members, Member{Spec: pp.spec, Offset: pp.start - run[0].start})
		}
		reads = append(reads, read)
		run = nil
	}

	for _, pp := range placed {
		if pp.spec.Words > 1 {
			flush()
			reads = append(reads, Read{
				RegisterType: pp.spec.RegisterType,
				FunctionCode: functionCode(pp.spec.RegisterType),
				Start:        pp.start,
				Count:        pp.spec.Words,
				Members:      []Member{{Spec: pp.spec, Offset: 0}},
			})
			continue
		}
		if !caps.Enabled {
			flush()
			reads = append(reads, Read{
				RegisterType: pp.spec.RegisterType,
				FunctionCode: functionCode(pp.spec.RegisterType),
				Start:        pp.start,
				Count:        1,
				Members:      []Member{{Spec: pp.spec, Offset: 0}},
			})
			continue
		}
		if len(run) == 0 {
			run = append(run, pp)
			continue
		}
		last := run[len(run)-1]
		contiguous := last.spec.RegisterType == pp.spec.RegisterType && pp.start == last.start+last.spec.Words
		withinCap := pp.start-run[0].start+1 <= capFor(pp.spec.RegisterType, caps)
		if contiguous && withinCap {
			run = append(run, pp)
		} else {
			flush()
			run = append(run, pp)
		}
	}
	flush()
	return reads, nil
}
