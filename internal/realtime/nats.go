package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// SubjectPrefix prefixes every real-time subject.
const SubjectPrefix = "tasks.rt"

// Subject returns the NATS subject for key, tasks.rt.<kind>.<id>.
func Subject(key GroupKey) string {
	return fmt.Sprintf("%s.%s.%s", SubjectPrefix, key.Kind, key.ID)
}

// wireEvent is the NATS payload. Data stays raw so it is re-encoded verbatim.
type wireEvent struct {
	Name string          `json:"name"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NATSBroker fans events out across instances through NATS core subjects.
type NATSBroker struct {
	nc     *nats.Conn
	owned  bool
	logger *zap.Logger
}

// ConnectNATS dials url with reconnects enabled.
func ConnectNATS(url string, logger *zap.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("task-management-api"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(1*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return nc, nil
}

// NewNATSBroker wraps an existing connection. The caller keeps ownership.
func NewNATSBroker(nc *nats.Conn, logger *zap.Logger) *NATSBroker {
	return &NATSBroker{nc: nc, logger: logger}
}

// DialNATSBroker connects to url and returns a broker that closes the
// connection on Close.
func DialNATSBroker(url string, logger *zap.Logger) (*NATSBroker, error) {
	nc, err := ConnectNATS(url, logger)
	if err != nil {
		return nil, err
	}
	return &NATSBroker{nc: nc, owned: true, logger: logger}, nil
}

// Conn exposes the underlying connection for health checks.
func (b *NATSBroker) Conn() *nats.Conn {
	return b.nc
}

// Publish encodes ev as JSON and publishes it on the key's subject.
func (b *NATSBroker) Publish(_ context.Context, key GroupKey, ev Event) error {
	if err := key.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return fmt.Errorf("encode event data: %w", err)
	}
	payload, err := json.Marshal(wireEvent{Name: ev.Name, Data: data})
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := b.nc.Publish(Subject(key), payload); err != nil {
		return fmt.Errorf("publish %s: %w", Subject(key), err)
	}
	return nil
}

// Subscribe listens on the key's subject.
func (b *NATSBroker) Subscribe(key GroupKey, fn func(Event)) (func(), error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	sub, err := b.nc.Subscribe(Subject(key), func(msg *nats.Msg) {
		var w wireEvent
		if err := json.Unmarshal(msg.Data, &w); err != nil {
			b.logger.Warn("drop malformed realtime message",
				zap.String("subject", msg.Subject), zap.Error(err))
			return
		}
		ev := Event{Name: w.Name}
		if len(w.Data) > 0 {
			ev.Data = w.Data
		}
		fn(ev)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", Subject(key), err)
	}
	// Make sure the server knows about the interest before returning.
	if err := b.nc.FlushTimeout(time.Second); err != nil {
		b.logger.Warn("nats flush after subscribe", zap.String("subject", sub.Subject), zap.Error(err))
	}
	return func() {
		if err := sub.Unsubscribe(); err != nil && err != nats.ErrConnectionClosed {
			b.logger.Debug("nats unsubscribe", zap.String("subject", sub.Subject), zap.Error(err))
		}
	}, nil
}

// Close drains the connection when the broker owns it.
func (b *NATSBroker) Close() error {
	if !b.owned {
		return nil
	}
	return b.nc.Drain()
}
