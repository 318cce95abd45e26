// Command gateway is the Modbus-to-MQTT field gateway's entrypoint: it loads
// configuration, wires the Journal, Bridge, Current-Value Store and
// Hot-Reload Controller, and runs until SIGINT/SIGTERM.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"modbus-mqtt-gateway/pkg/addr"
	"modbus-mqtt-gateway/pkg/bridge"
	"modbus-mqtt-gateway/pkg/config"
	"modbus-mqtt-gateway/pkg/journal"
	"modbus-mqtt-gateway/pkg/logger"
	"modbus-mqtt-gateway/pkg/reload"
	"modbus-mqtt-gateway/pkg/store"
	"modbus-mqtt-gateway/pkg/transport"
)

func main() {
	configPath := ""
	diagnosticMode := false

	for i, arg := range os.Args[1:] {
		switch {
		case arg == "--help" || arg == "-h":
			fmt.Printf("Usage: %s [config_path] [--diagnostic]\n", os.Args[0])
			fmt.Printf("  config_path: path to the gateway's YAML configuration (optional)\n")
			fmt.Printf("  --diagnostic: probe every configured bus and the MQTT broker, then exit\n")
			return
		case arg == "--diagnostic":
			diagnosticMode = true
		case i == 0:
			configPath = arg
		}
	}
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gateway: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Logging)
	logger.Startup("gateway: loaded %s, %d bus(es) configured", configPath, len(cfg.Lines))

	var jrnl *journal.Journal
	if cfg.History.Path != "" {
		jrnl, err = journal.Open(cfg.History.Path, journal.Config{
			MaxRows:      cfg.History.MaxRows,
			TTLDays:      cfg.History.TTLDays,
			CleanupEvery: cfg.History.CleanupEvery,
		}, logger.GlobalLogger{})
		if err != nil {
			logger.Error("gateway: journal open failed: %v", err)
			os.Exit(1)
		}
		defer jrnl.Close()
	} else {
		logger.Info("gateway: history.path not set, publishes will not be journaled")
	}

	br := bridge.New(cfg.MQTT, jrnl, logger.GlobalLogger{})
	if err := br.Connect(); err != nil {
		logger.Error("gateway: mqtt connect failed: %v", err)
		os.Exit(1)
	}
	defer br.Close()

	st := store.New()
	openTr := func(bus config.BusSpec) (transport.Transport, error) {
		return openTransport(bus, cfg.Serial.Echo)
	}
	controller := reload.New(br, st, logger.GlobalLogger{}, cfg.MQTT.BaseTopic, openTr)

	if diagnosticMode {
		os.Exit(runDiagnostics(cfg, br))
	}

	if err := controller.Apply(cfg); err != nil {
		logger.Error("gateway: initial bus start failed: %v", err)
		os.Exit(1)
	}
	logger.Startup("gateway: running with %d worker(s)", len(controller.Workers()))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("gateway: stop signal received, shutting down")
	controller.Apply(&config.Config{})
}

// openTransport dispatches a BusSpec to the serial or TCP Transport variant
// it names, threading the global serial echo setting into every serial bus.
func openTransport(bus config.BusSpec, echo bool) (transport.Transport, error) {
	switch {
	case bus.IsSerial():
		return transport.NewRTU(transport.RTUConfig{
			Device:            bus.Device,
			Baudrate:          bus.Baudrate,
			Parity:            bus.Parity,
			Stopbits:          bus.Stopbits,
			TimeoutS:          bus.TimeoutS,
			RS485RTSToggle:    bus.RS485RTSToggle,
			LocalEchoExpected: echo,
			PortRetryBackoffS: bus.PortRetryBackoffS,
		}, logger.GlobalLogger{}), nil
	case bus.IsTCP():
		return transport.NewTCP(transport.TCPConfig{
			Host:              bus.Host,
			Port:              bus.Port,
			TimeoutS:          bus.TimeoutS,
			PortRetryBackoffS: bus.PortRetryBackoffS,
		}, logger.GlobalLogger{}), nil
	default:
		return nil, fmt.Errorf("gateway: bus %s: unknown type %q", bus.Name, bus.Type)
	}
}

// runDiagnostics probes MQTT connectivity and one read per configured bus,
// reporting reachability without starting the worker set. Returns a process
// exit code.
func runDiagnostics(cfg *config.Config, br *bridge.Bridge) int {
	logger.Info("gateway: diagnostic mode")
	failed := false

	logger.Info("gateway: test 1: mqtt broker connectivity")
	if br.Connected() {
		logger.Info("gateway: mqtt broker reachable at %s:%d", cfg.MQTT.Host, cfg.MQTT.Port)
	} else {
		logger.Error("gateway: mqtt broker not reachable at %s:%d", cfg.MQTT.Host, cfg.MQTT.Port)
		failed = true
	}

	logger.Info("gateway: test 2: bus communication (%d bus(es))", len(cfg.Lines))
	for _, bus := range cfg.Lines {
		if err := probeBus(bus, cfg.Serial.Echo, cfg.Addressing.Normalize); err != nil {
			logger.Error("gateway: bus %s: %v", bus.Name, err)
			failed = true
			continue
		}
		logger.Info("gateway: bus %s: communication OK", bus.Name)
	}

	if failed {
		logger.Error("gateway: diagnostic mode found problems")
		return 1
	}
	logger.Info("gateway: all diagnostic tests passed")
	return 0
}

// probeBus opens bus's transport and attempts a single read of the first
// configured node's first parameter, as a reachability check.
func probeBus(bus config.BusSpec, echo, normalize bool) error {
	if len(bus.Nodes) == 0 || len(bus.Nodes[0].Params) == 0 {
		return fmt.Errorf("no nodes/parameters configured to probe")
	}
	tr, err := openTransport(bus, echo)
	if err != nil {
		return err
	}
	defer tr.Close()

	node := bus.Nodes[0]
	p := node.Params[0]
	unitID := byte(node.UnitID)
	wireAddr := addr.Normalize(p.Address, p.RegisterType.AddrType(), normalize)
	switch p.RegisterType {
	case config.Coil, config.Discrete:
		_, err = tr.ReadBits(unitID, wireAddr, 1, readFuncFor(p.RegisterType))
	default:
		_, err = tr.ReadRegs(unitID, wireAddr, p.Words, readFuncFor(p.RegisterType))
	}
	return err
}

func readFuncFor(rt config.RegisterType) uint8 {
	switch rt {
	case config.Coil:
		return transport.FuncReadCoils
	case config.Discrete:
		return transport.FuncReadDiscreteInputs
	case config.Input:
		return transport.FuncReadInputRegs
	default:
		return transport.FuncReadHoldingRegs
	}
}
