package main

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/next-trace/scg-signal-bus/adapters/inmemory"
	"github.com/next-trace/scg-signal-bus/adapters/kafka"
	"github.com/next-trace/scg-signal-bus/adapters/nats"
	"github.com/next-trace/scg-signal-bus/adapters/rabbitmq"
	"github.com/next-trace/scg-signal-bus/config"
	serr "github.com/next-trace/scg-signal-bus/contract/errors"
	"github.com/next-trace/scg-signal-bus/contract/signal"
)

const connTimeout = 5 * time.Second

// newPublisher returns the notification publisher selected by cfg and its cleanup.
// BrokerNone yields a nil publisher, which turns email notification off.
func newPublisher(cfg config.Broker, logger *slog.Logger) (signal.Publisher, func(), error) {
	noop := func() {}

	switch cfg.Kind {
	case config.BrokerNone, "":
		return nil, noop, nil
	case config.BrokerMemory:
		return inmemory.New(), noop, nil
	case config.BrokerNATS:
		ad, cleanup, err := nats.NewWithNATS(nats.Config{
			URL:           cfg.URL,
			Name:          cfg.ClientID,
			SubjectPrefix: cfg.Prefix,
			ConnTimeout:   connTimeout,
			MaxReconnects: -1,
		})
		if err != nil {
			return nil, noop, err
		}

		return ad, cleanup, nil
	case config.BrokerRabbitMQ:
		ad, cleanup, err := rabbitmq.NewWithAMQPConn(rabbitmq.Config{
			URL:         cfg.URL,
			Exchange:    cfg.Exchange,
			ConnTimeout: connTimeout,
			Logger:      logger,
		})
		if err != nil {
			return nil, noop, err
		}

		return ad, cleanup, nil
	case config.BrokerKafka:
		ad, cleanup, err := kafka.NewWithKgo(kafkaConfig(cfg))
		if err != nil {
			return nil, noop, err
		}

		return ad, cleanup, nil
	default:
		return nil, noop, fmt.Errorf("broker %q: %w", cfg.Kind, serr.ErrConfigInvalid)
	}
}

func kafkaConfig(cfg config.Broker) kafka.Config {
	kc := kafka.Config{
		Brokers:     cfg.Brokers,
		TopicPrefix: cfg.Prefix,
		ClientID:    cfg.ClientID,
	}

	if cfg.TLS {
		kc.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	if cfg.SASLMechanism != "" {
		kc.SASL = &kafka.SASLConfig{Mechanism: cfg.SASLMechanism, Username: cfg.Username, Password: cfg.Password}
	}

	switch strings.ToLower(cfg.Acks) {
	case "leader":
		kc.Acks = kgo.LeaderAck()
	case "none":
		kc.Acks = kgo.NoAck()
	default:
		kc.Acks = kgo.AllISRAcks()
		// idempotent writes require acks from every in-sync replica
		kc.Idempotent = true
	}

	switch strings.ToLower(cfg.Compression) {
	case "none":
		kc.Compression = kgo.NoCompression()
	case "gzip":
		kc.Compression = kgo.GzipCompression()
	case "snappy":
		kc.Compression = kgo.SnappyCompression()
	case "lz4":
		kc.Compression = kgo.Lz4Compression()
	case "zstd":
		kc.Compression = kgo.ZstdCompression()
	}

	return kc
}
