// Package transport receives operation requests over NATS, mirroring the
// message patterns the controller publishes.
package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/loykin/forgekeeper/internal/model"
	"github.com/loykin/forgekeeper/internal/pipeline"
	"github.com/nats-io/nats.go"
)

// Dispatcher accepts an operation for background execution.
type Dispatcher interface {
	Dispatch(op pipeline.Operation, req model.Request) error
}

// Reply is sent back to request/reply callers.
type Reply struct {
	Accepted bool   `json:"accepted"`
	Error    string `json:"error,omitempty"`
}

// Subject is the NATS subject carrying op.
func Subject(prefix string, op pipeline.Operation) string {
	if prefix == "" {
		return string(op)
	}
	return prefix + "." + string(op)
}

// Connect dials a NATS server that reconnects forever.
func Connect(url, name string, log *slog.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}
	return nc, nil
}

// NATS subscribes one subject per operation and hands decoded requests to
// the dispatcher.
type NATS struct {
	nc     *nats.Conn
	prefix string
	d      Dispatcher
	log    *slog.Logger

	mu   sync.Mutex
	subs []*nats.Subscription
}

func NewNATS(nc *nats.Conn, prefix string, d Dispatcher, log *slog.Logger) *NATS {
	if log == nil {
		log = slog.Default()
	}
	return &NATS{nc: nc, prefix: prefix, d: d, log: log}
}

// Start subscribes every operation subject.
func (t *NATS) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, op := range pipeline.Operations {
		subj := Subject(t.prefix, op)
		sub, err := t.nc.Subscribe(subj, func(msg *nats.Msg) {
			reply := t.handle(op, msg.Data)
			if msg.Reply == "" {
				return
			}
			b, _ := json.Marshal(reply)
			if err := msg.Respond(b); err != nil {
				t.log.Warn("nats respond", "subject", msg.Subject, "error", err)
			}
		})
		if err != nil {
			t.unsubscribeLocked()
			return fmt.Errorf("subscribe %s: %w", subj, err)
		}
		t.subs = append(t.subs, sub)
		t.log.Info("nats subscribed", "subject", subj)
	}
	return nil
}

// Stop removes all subscriptions.
func (t *NATS) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.unsubscribeLocked()
}

func (t *NATS) unsubscribeLocked() {
	for _, s := range t.subs {
		_ = s.Unsubscribe()
	}
	t.subs = nil
}

// handle decodes a request payload and dispatches it.
func (t *NATS) handle(op pipeline.Operation, data []byte) Reply {
	req, err := Decode(data)
	if err == nil {
		err = t.d.Dispatch(op, req)
	}
	if err != nil {
		t.log.Warn("nats request rejected", "operation", op, "error", err)
		return Reply{Accepted: false, Error: err.Error()}
	}
	t.log.Debug("nats request accepted", "operation", op, "server", req.Server.Name, "task", req.Task.ID)
	return Reply{Accepted: true}
}

// Decode parses a {server, task} payload.
func Decode(data []byte) (model.Request, error) {
	var req model.Request
	if len(data) == 0 {
		return req, errors.Join(model.ErrInvalidRequest, errors.New("empty payload"))
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("%w: %v", model.ErrInvalidRequest, err)
	}
	return req, nil
}
