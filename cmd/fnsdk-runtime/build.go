package main

import (
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/lsm/fnsdk/internal/config"
	"github.com/lsm/fnsdk/internal/control"
	"github.com/lsm/fnsdk/internal/dlq"
	"github.com/lsm/fnsdk/internal/kafka"
	"github.com/lsm/fnsdk/internal/observability"
	"github.com/lsm/fnsdk/internal/session"
	"github.com/lsm/fnsdk/internal/source"
	httpsource "github.com/lsm/fnsdk/internal/source/http"
	kafkasource "github.com/lsm/fnsdk/internal/source/kafka"
	"github.com/lsm/fnsdk/pkg/codec"
	"github.com/lsm/fnsdk/pkg/event"
	"github.com/lsm/fnsdk/pkg/platform"
	"github.com/lsm/fnsdk/pkg/runtime"
)

type deps struct {
	logger  *slog.Logger
	metrics *observability.Metrics
	tracer  trace.Tracer
	// pool shares one producing client between dead-lettering and acks.
	pool *kafka.Pool
	// newPublisher replaces the pool in tests.
	newPublisher func(*kafka.ClusterConfig) (control.Publisher, error)
}

// publisher reuses the trigger's cluster settings.
func (d deps) publisher(cfg *config.Runtime) (control.Publisher, error) {
	if cfg.Trigger.Kafka == nil {
		return nil, fmt.Errorf("a kafka trigger cluster is required")
	}
	cluster := &cfg.Trigger.Kafka.Cluster
	if d.newPublisher != nil {
		return d.newPublisher(cluster)
	}
	if d.pool == nil {
		return nil, fmt.Errorf("no kafka publisher pool")
	}
	return d.pool.Get(cluster)
}

func buildSession(cfg *config.Runtime, h runtime.Handler, d deps) (*session.Session, error) {
	var (
		src   source.Source
		acker source.Acknowledger
	)
	switch cfg.Trigger.Kind {
	case config.TriggerKafka:
		k := cfg.Trigger.Kafka
		s, err := kafkasource.NewSource(kafkasource.Config{
			Cluster:       &k.Cluster,
			Topic:         k.Topic,
			ConsumerGroup: k.ConsumerGroup,
			StartOffset:   k.StartOffset,
			ExplicitAck:   cfg.Trigger.ExplicitAck,
		}, d.logger)
		if err != nil {
			return nil, fmt.Errorf("kafka source: %w", err)
		}
		s.SetTracer(d.tracer)
		src, acker = s, s
	case config.TriggerHTTP:
		s, err := httpsource.NewSource(httpsource.Config{
			ListenAddr: cfg.Trigger.HTTP.ListenAddr,
			Path:       cfg.Trigger.HTTP.Path,
		}, d.logger)
		if err != nil {
			return nil, fmt.Errorf("http source: %w", err)
		}
		src = s
	default:
		return nil, fmt.Errorf("unsupported trigger kind: %s", cfg.Trigger.Kind)
	}

	ch, err := buildControl(cfg, acker, d)
	if err != nil {
		_ = src.Close()
		return nil, fmt.Errorf("control channel: %w", err)
	}

	opts := []session.Option{
		session.WithControl(control.Instrument(ch, d.tracer, d.metrics.Acks)),
		session.WithPlatform(platform.New(cfg.Platform.Kind, cfg.Platform.Namespace, platform.WithTracer(d.tracer))),
		session.WithMetrics(d.metrics),
		session.WithTracer(d.tracer),
		session.WithLogger(d.logger),
	}
	var dead *dlq.Handler
	if cfg.DeadLetter.Topic != "" {
		pub, err := d.publisher(cfg)
		if err != nil {
			_ = src.Close()
			_ = ch.Close()
			return nil, fmt.Errorf("dead-letter publisher: %w", err)
		}
		dead = dlq.NewHandler(pub,
			dlq.WithTopic(cfg.DeadLetter.Topic),
			dlq.WithCounter(d.metrics.DLQTotal),
		)
		opts = append(opts, session.WithDeadLetter(dead))
	}

	s, err := session.New(session.Config{
		FunctionName: cfg.Name,
		Codec: codec.Options{
			Format:       codec.Format(cfg.Codec.Format),
			Keys:         codec.KeyMode(cfg.Codec.Keys),
			Batch:        cfg.Codec.Batch,
			BodyEncoding: codec.BodyEncoding(cfg.Codec.BodyEncoding),
		},
		Trigger:     event.TriggerInfo{Kind: cfg.Trigger.Kind, Name: cfg.Trigger.Name},
		ExplicitAck: cfg.Trigger.ExplicitAck,
		Workers:     cfg.Trigger.Workers,
	}, src, h, opts...)
	if err != nil {
		_ = src.Close()
		_ = ch.Close()
		if dead != nil {
			_ = dead.Close()
		}
		return nil, err
	}
	return s, nil
}

func buildControl(cfg *config.Runtime, acker source.Acknowledger, d deps) (control.Channel, error) {
	switch cfg.Control.Type {
	case config.ControlNoop:
		return control.Noop{}, nil
	case config.ControlLocal:
		return control.NewLocal(acker)
	case config.ControlKafka:
		pub, err := d.publisher(cfg)
		if err != nil {
			return nil, err
		}
		ch, err := control.NewKafka(pub, cfg.Control.Topic)
		if err != nil {
			_ = pub.Close()
			return nil, err
		}
		return ch, nil
	case config.ControlHTTP:
		return control.NewHTTP(control.HTTPConfig{URL: cfg.Control.URL}, d.logger)
	default:
		return nil, fmt.Errorf("unsupported control type: %s", cfg.Control.Type)
	}
}
