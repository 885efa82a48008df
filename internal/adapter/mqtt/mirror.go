package mqtt

import (
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/pscheid92/ledsync/internal/domain"
	"github.com/pscheid92/ledsync/internal/protocol"
)

const (
	queueSize      = 64
	publishTimeout = 5 * time.Second
	qosAtLeastOnce = 1
)

// Publisher is the part of paho.Client the mirror needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload any) paho.Token
}

// Mirror publishes every delta as a retained message on "<prefix>/<type>".
// ObserveDelta never blocks: deltas are queued and published by a single
// goroutine, and dropped with a warning when the queue is full.
type Mirror struct {
	publisher Publisher
	prefix    string
	queue     chan domain.Delta
	done      chan struct{}
	stopOnce  sync.Once
}

var _ domain.DeltaObserver = (*Mirror)(nil)

func NewMirror(publisher Publisher, topicPrefix string) *Mirror {
	m := &Mirror{
		publisher: publisher,
		prefix:    topicPrefix,
		queue:     make(chan domain.Delta, queueSize),
		done:      make(chan struct{}),
	}
	go m.run()
	return m
}

func (m *Mirror) ObserveDelta(delta domain.Delta) {
	select {
	case m.queue <- delta:
	default:
		slog.Warn("MQTT mirror queue full, dropping delta", "type", delta.Type)
	}
}

// Stop publishes whatever is still queued and returns. ObserveDelta must not
// be called after Stop.
func (m *Mirror) Stop() {
	m.stopOnce.Do(func() {
		close(m.queue)
		<-m.done
	})
}

// Topic returns the topic a delta of the given type is published on.
func (m *Mirror) Topic(deltaType string) string {
	return m.prefix + "/" + deltaType
}

func (m *Mirror) run() {
	defer close(m.done)
	for delta := range m.queue {
		m.publish(delta)
	}
}

func (m *Mirror) publish(delta domain.Delta) {
	payload, err := protocol.Encode(delta)
	if err != nil {
		slog.Error("Failed to encode delta for MQTT", "type", delta.Type, "error", err)
		return
	}

	topic := m.Topic(delta.Type)
	token := m.publisher.Publish(topic, qosAtLeastOnce, true, payload)
	if !token.WaitTimeout(publishTimeout) {
		slog.Warn("MQTT publish timed out", "topic", topic, "timeout", publishTimeout)
		return
	}
	if err := token.Error(); err != nil {
		slog.Warn("MQTT publish failed", "topic", topic, "error", err)
		return
	}
	slog.Debug("Published delta to MQTT", "topic", topic)
}
