// v0
// internal/alerts/sinks.go
package alerts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/nats-io/nats.go"
	"github.com/segmentio/kafka-go"
)

var ErrPublishTimeout = errors.New("publish timed out")

// ---- MQTT ----

type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTSink publishes with QoS 1 and waits for the broker ack.
type MQTTSink struct {
	client  mqttClient
	broker  string
	qos     byte
	timeout time.Duration
}

func NewMQTTSink(client mqttClient, broker string) *MQTTSink {
	return &MQTTSink{client: client, broker: broker, qos: 1, timeout: 5 * time.Second}
}

// DialMQTT connects to broker (e.g. tcp://localhost:1883).
func DialMQTT(broker, clientID string, timeout time.Duration) (*MQTTSink, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(timeout)
	c := mqtt.NewClient(opts)
	tok := c.Connect()
	if !tok.WaitTimeout(timeout) {
		return nil, fmt.Errorf("mqtt connect %s: %w", broker, ErrPublishTimeout)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", broker, err)
	}
	return NewMQTTSink(c, broker), nil
}

func (s *MQTTSink) Name() string   { return "mqtt" }
func (s *MQTTSink) Target() string { return s.broker }

func (s *MQTTSink) Send(ctx context.Context, topic, _ string, payload []byte) error {
	tok := s.client.Publish(topic, s.qos, false, payload)
	timeout := s.timeout
	if dl, ok := ctx.Deadline(); ok && time.Until(dl) < timeout {
		timeout = time.Until(dl)
	}
	if !tok.WaitTimeout(timeout) {
		return ErrPublishTimeout
	}
	return tok.Error()
}

func (s *MQTTSink) Close() error {
	if c, ok := s.client.(mqtt.Client); ok {
		c.Disconnect(250)
	}
	return nil
}

// ---- Kafka ----

type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaSink writes each payload to the dotted topic, keyed so that one
// category lands on one partition.
type KafkaSink struct {
	writer  kafkaMessageWriter
	brokers []string
}

func NewKafkaSink(w kafkaMessageWriter, brokers []string) *KafkaSink {
	return &KafkaSink{writer: w, brokers: brokers}
}

func DialKafka(brokers []string) *KafkaSink {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
	}
	return NewKafkaSink(w, brokers)
}

func (s *KafkaSink) Name() string   { return "kafka" }
func (s *KafkaSink) Target() string { return strings.Join(s.brokers, ",") }

func (s *KafkaSink) Send(ctx context.Context, topic, key string, payload []byte) error {
	return s.writer.WriteMessages(ctx, kafka.Message{
		Topic: dotted(topic),
		Key:   []byte(key),
		Value: payload,
		Time:  time.Now(),
	})
}

func (s *KafkaSink) Close() error {
	if c, ok := s.writer.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// ---- NATS ----

type natsPublisher interface {
	Publish(subj string, data []byte) error
}

type NATSSink struct {
	conn natsPublisher
	url  string
}

func NewNATSSink(conn natsPublisher, url string) *NATSSink { return &NATSSink{conn: conn, url: url} }

func DialNATS(url string, timeout time.Duration) (*NATSSink, error) {
	nc, err := nats.Connect(url,
		nats.Name("fuzzycrac"),
		nats.Timeout(timeout),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}
	return NewNATSSink(nc, url), nil
}

func (s *NATSSink) Name() string   { return "nats" }
func (s *NATSSink) Target() string { return s.url }

func (s *NATSSink) Send(ctx context.Context, topic, _ string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.conn.Publish(dotted(topic), payload)
}

func (s *NATSSink) Close() error {
	if nc, ok := s.conn.(*nats.Conn); ok {
		return nc.Drain()
	}
	return nil
}

// ---- local ----

// Message is a payload held by the memory sink.
type Message struct {
	Topic   string `json:"topic"`
	Key     string `json:"key"`
	Payload []byte `json:"payload"`
}

// MemorySink keeps the most recent messages in process. It stands in for
// the broker when none is configured.
type MemorySink struct {
	mu    sync.Mutex
	limit int
	msgs  []Message
}

func NewMemorySink(limit int) *MemorySink {
	if limit <= 0 {
		limit = 100
	}
	return &MemorySink{limit: limit}
}

func (s *MemorySink) Name() string   { return "local" }
func (s *MemorySink) Target() string { return "memory" }

func (s *MemorySink) Send(_ context.Context, topic, key string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, Message{Topic: topic, Key: key, Payload: append([]byte(nil), payload...)})
	if over := len(s.msgs) - s.limit; over > 0 {
		s.msgs = append(s.msgs[:0:0], s.msgs[over:]...)
	}
	return nil
}

// Messages returns the kept messages for topic, or all of them when topic
// is empty.
func (s *MemorySink) Messages(topic string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Message
	for _, m := range s.msgs {
		if topic == "" || m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}
