package console

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// SinkFunc adapts a function to Sink.
type SinkFunc func(l Line)

func (f SinkFunc) Emit(l Line) { f(l) }

// LogSink writes lines to a structured logger at debug level.
type LogSink struct {
	Log *slog.Logger
}

func (s LogSink) Emit(l Line) {
	s.Log.Debug("console", "server", l.Server, "run", l.RunID, "line", l.Text)
}

// FileSink appends timestamped lines to a writer, typically a rotating
// lumberjack file.
type FileSink struct {
	mu sync.Mutex
	w  io.WriteCloser
}

func NewFileSink(w io.WriteCloser) *FileSink { return &FileSink{w: w} }

func (s *FileSink) Emit(l Line) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = fmt.Fprintf(s.w, "%s [%s] %s\n", l.Time.Format(time.RFC3339), l.Server, l.Text)
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Close()
}

// natsPublisher is the subset of *nats.Conn used by NATSSink.
type natsPublisher interface {
	Publish(subj string, data []byte) error
}

// NATSSink publishes each line as JSON on a NATS subject.
type NATSSink struct {
	pub     natsPublisher
	subject string
	log     *slog.Logger
}

func NewNATSSink(pub natsPublisher, subject string, log *slog.Logger) *NATSSink {
	return &NATSSink{pub: pub, subject: subject, log: log}
}

func (s *NATSSink) Emit(l Line) {
	data, err := json.Marshal(l)
	if err != nil {
		s.log.Warn("marshal console line", "error", err)
		return
	}
	if err := s.pub.Publish(s.subject, data); err != nil {
		s.log.Warn("publish console line to NATS", "subject", s.subject, "error", err)
	}
}

// mqttPublisher is the subset of mqtt.Client used by MQTTSink.
type mqttPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTSink publishes each line as JSON on an MQTT topic.
type MQTTSink struct {
	pub   mqttPublisher
	topic string
	qos   byte
	log   *slog.Logger
}

func NewMQTTSink(pub mqttPublisher, topic string, qos byte, log *slog.Logger) *MQTTSink {
	return &MQTTSink{pub: pub, topic: topic, qos: qos, log: log}
}

func (s *MQTTSink) Emit(l Line) {
	data, err := json.Marshal(l)
	if err != nil {
		s.log.Warn("marshal console line", "error", err)
		return
	}
	tok := s.pub.Publish(s.topic, s.qos, false, data)
	// do not wait for delivery; only report failures that are already known
	select {
	case <-tok.Done():
		if err := tok.Error(); err != nil {
			s.log.Warn("publish console line to MQTT", "topic", s.topic, "error", err)
		}
	default:
	}
}

// ConnectMQTT dials broker and returns a connected client.
func ConnectMQTT(broker, clientID string, timeout time.Duration) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(timeout)
	c := mqtt.NewClient(opts)
	tok := c.Connect()
	if !tok.WaitTimeout(timeout) {
		return nil, fmt.Errorf("mqtt connect %s: timeout", broker)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", broker, err)
	}
	return c, nil
}
