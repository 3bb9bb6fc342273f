package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// NATSConfig holds connection settings for the snapshot feed.
type NATSConfig struct {
	URL           string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultNATSConfig returns the default feed configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		SubjectPrefix: "trierg.feed",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// NATSFeed publishes and subscribes to per-collection snapshot
// notifications. Every committed store write results in one message
// carrying the full collection snapshot, so late or reconnecting
// subscribers converge from any single message.
type NATSFeed struct {
	nc     *nats.Conn
	config NATSConfig
}

// NewNATSFeed connects to the NATS server.
func NewNATSFeed(config NATSConfig) (*NATSFeed, error) {
	opts := []nats.Option{
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &NATSFeed{nc: nc, config: config}, nil
}

func (f *NATSFeed) subject(c Collection) string {
	return fmt.Sprintf("%s.%s", f.config.SubjectPrefix, c)
}

// PublishSnapshot pushes a collection snapshot to all subscribers.
func (f *NATSFeed) PublishSnapshot(ctx context.Context, s Snapshot) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := f.nc.Publish(f.subject(s.Collection), data); err != nil {
		return fmt.Errorf("publish snapshot: %w", err)
	}
	log.Debug().
		Str("collection", string(s.Collection)).
		Int("bytes", len(data)).
		Msg("snapshot published")
	return nil
}

// Subscribe delivers every snapshot notification for one collection to the
// handler. Decode failures are logged and skipped; the subscriber keeps its
// last-known-good view.
func (f *NATSFeed) Subscribe(ctx context.Context, c Collection, h SnapshotHandler) (Subscription, error) {
	sub, err := f.nc.Subscribe(f.subject(c), func(msg *nats.Msg) {
		var snap Snapshot
		if err := json.Unmarshal(msg.Data, &snap); err != nil {
			log.Error().
				Err(err).
				Str("subject", msg.Subject).
				Msg("failed to decode snapshot notification")
			return
		}
		h(snap)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", f.subject(c), err)
	}

	log.Info().Str("collection", string(c)).Msg("subscribed to snapshot feed")
	return &natsSub{sub: sub}, nil
}

type natsSub struct {
	sub *nats.Subscription
}

func (s *natsSub) Unsubscribe() error {
	return s.sub.Unsubscribe()
}

// Close shuts the underlying connection down.
func (f *NATSFeed) Close() {
	if f.nc != nil {
		f.nc.Close()
	}
}
