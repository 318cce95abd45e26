// Package bridge owns the MQTT broker connection: it serializes outbound
// envelopes through a FIFO queue, maintains the topic-to-handler registry
// for inbound write commands with re-subscription on reconnect, and
// journals every successful publish. It also keeps a retained
// <base_topic>/status topic backed by a Last-Will-and-Testament.
package bridge

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"modbus-mqtt-gateway/pkg/config"
	"modbus-mqtt-gateway/pkg/journal"
	"modbus-mqtt-gateway/pkg/logger"
)

// WriteHandler receives a write command's decoded value as a string, as
// delivered to a registered `<pub_topic>/on` topic.
type WriteHandler func(value string)

// Bridge is the gateway's sole MQTT client. It is not recreated by hot
// reload.
type Bridge struct {
	client paho.Client
	cfg    config.MQTTConfig
	jrnl   *journal.Journal
	log    logger.Logger

	outbound chan Envelope

	mu       sync.RWMutex
	handlers map[string]WriteHandler

	stop chan struct{}
	wg   sync.WaitGroup
}

// New constructs a Bridge. Envelopes enqueued before Connect wait in the
// outbound queue until Connect starts the publisher.
func New(cfg config.MQTTConfig, jrnl *journal.Journal, log logger.Logger) *Bridge {
	b := &Bridge{
		cfg:      cfg,
		jrnl:     jrnl,
		log:      log,
		outbound: make(chan Envelope, 1024),
		handlers: make(map[string]WriteHandler),
		stop:     make(chan struct{}),
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port))
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetWill(cfg.BaseTopic+"/status", "offline", 1, true)
	opts.SetOnConnectHandler(func(c paho.Client) {
		b.log.Info("bridge: connected to %s:%d", cfg.Host, cfg.Port)
		if token := c.Publish(cfg.BaseTopic+"/status", 1, true, "online"); token.Wait() && token.Error() != nil {
			b.log.Warn("bridge: failed to publish online status: %v", token.Error())
		}
		b.resubscribeAll()
	})
	opts.SetConnectionLostHandler(func(c paho.Client, err error) {
		b.log.Error("bridge: connection lost: %v", err)
	})
	b.client = paho.NewClient(opts)
	return b
}

// Connect blocks until the broker connection succeeds or ctx-less retry is
// cancelled by Close, retrying forever with a fixed delay — there is no
// bound on broker-connect attempts in this design.
func (b *Bridge) Connect() error {
	for {
		token := b.client.Connect()
		token.Wait()
		if token.Error() == nil {
			break
		}
		b.log.Warn("bridge: connect failed: %v, retrying in 5s", token.Error())
		select {
		case <-b.stop:
			return fmt.Errorf("bridge: connect cancelled")
		case <-time.After(5 * time.Second):
		}
	}
	b.wg.Add(1)
	go b.runOutbound()
	return nil
}

// RegisterHandler subscribes to topic and records handler for
// re-subscription on reconnect.
func (b *Bridge) RegisterHandler(topic string, handler WriteHandler) {
	b.mu.Lock()
	b.handlers[topic] = handler
	b.mu.Unlock()
	b.subscribe(topic)
}

// UnregisterHandler removes a write-command subscription, used when hot
// reload drops a parameter.
func (b *Bridge) UnregisterHandler(topic string) {
	b.mu.Lock()
	delete(b.handlers, topic)
	b.mu.Unlock()
	b.client.Unsubscribe(topic)
}

func (b *Bridge) subscribe(topic string) {
	token := b.client.Subscribe(topic, b.cfg.QoS, func(c paho.Client, m paho.Message) {
		b.dispatch(m.Topic(), m.Payload())
	})
	token.Wait()
	if token.Error() != nil {
		b.log.Error("bridge: subscribe %s failed: %v", topic, token.Error())
	}
}

func (b *Bridge) resubscribeAll() {
	b.mu.RLock()
	topics := make([]string, 0, len(b.handlers))
	for t := range b.handlers {
		topics = append(topics, t)
	}
	b.mu.RUnlock()
	for _, t := range topics {
		b.subscribe(t)
	}
}

// dispatch decodes an inbound command payload (a bare value string or
// {"value": ...}) and calls the handler registered at topic, if any.
func (b *Bridge) dispatch(topic string, payload []byte) {
	b.mu.RLock()
	handler, ok := b.handlers[topic]
	b.mu.RUnlock()
	if !ok {
		return
	}
	value := decodePayload(payload)
	handler(value)
}

func decodePayload(payload []byte) string {
	trimmed := strings.TrimSpace(string(payload))
	if strings.HasPrefix(trimmed, "{") {
		var obj struct {
			Value json.RawMessage `json:"value"`
		}
		if err := json.Unmarshal(payload, &obj); err == nil {
			return strings.Trim(string(obj.Value), `"`)
		}
	}
	return strings.Trim(trimmed, `"`)
}

// ResolveTopic applies §4.7's topic resolution rule: absolute if it starts
// with "/", else relative to baseTopic.
func ResolveTopic(baseTopic, topic string) string {
	if strings.HasPrefix(topic, "/") {
		return topic
	}
	return baseTopic + "/" + topic
}

// Enqueue hands one envelope to the outbound queue. Non-blocking from the
// caller's perspective is not guaranteed; the queue is a bounded channel
// and Enqueue may block the calling Bus Worker if the publisher thread is
// behind.
func (b *Bridge) Enqueue(e Envelope) {
	select {
	case b.outbound <- e:
	case <-b.stop:
	}
}

func (b *Bridge) runOutbound() {
	defer b.wg.Done()
	for {
		select {
		case e := <-b.outbound:
			b.publish(e)
		case <-b.stop:
			return
		}
	}
}

func (b *Bridge) publish(e Envelope) {
	body, err := json.Marshal(e)
	if err != nil {
		b.log.Error("bridge: envelope marshal failed: %v", err)
		return
	}
	token := b.client.Publish(e.Topic, b.cfg.QoS, b.cfg.Retain, body)
	token.Wait()
	if token.Error() != nil {
		b.log.Error("bridge: publish %s failed: %v", e.Topic, token.Error())
		return
	}
	if b.jrnl != nil {
		b.jrnl.Append(journal.Record{
			Topic:        e.Topic,
			Object:       e.Context.Object,
			Bus:          e.Context.Line,
			UnitID:       e.Context.UnitID,
			RegisterType: e.Context.RegisterType,
			Address:      e.Context.Address,
			Param:        e.Context.Param,
			Value:        e.Value,
			Code:         e.Code,
			Message:      e.Message,
			SilentForS:   e.SilentForS,
			TS:           e.Timestamp,
		})
	}
}

// Connected reports whether the broker connection is currently up.
func (b *Bridge) Connected() bool {
	return b.client.IsConnected()
}

// Close disconnects from the broker and stops the outbound publisher.
func (b *Bridge) Close() {
	close(b.stop)
	b.wg.Wait()
	if b.client.IsConnected() {
		b.client.Publish(b.cfg.BaseTopic+"/status", 1, true, "offline").Wait()
		b.client.Disconnect(250)
	}
}
