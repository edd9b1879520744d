package sinks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ALEYI17/InfraSight_mon/internal/trace"
	"github.com/ALEYI17/InfraSight_mon/pkg/codec"
	"github.com/ALEYI17/InfraSight_mon/pkg/logutil"
	"github.com/ALEYI17/InfraSight_mon/pkg/mon"
	"github.com/ALEYI17/InfraSight_mon/pkg/types"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

const defaultKafkaTimeout = 10 * time.Second

var ErrNoBrokers = errors.New("kafka sink: no brokers configured")

// KafkaSink publishes trace records to a topic. The first message holds
// the trace header and create record; every later message is one record,
// keyed by node so a node's events stay on one partition in order.
// Records are produced synchronously.
type KafkaSink struct {
	client  *kgo.Client
	topic   string
	timeout time.Duration
}

func NewKafkaSink(brokers []string, topic string, timeout time.Duration, cal mon.Calibration) (*KafkaSink, error) {
	if len(brokers) == 0 {
		return nil, ErrNoBrokers
	}
	if timeout <= 0 {
		timeout = defaultKafkaTimeout
	}
	cl, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
	)
	if err != nil {
		return nil, fmt.Errorf("%s sink: %w", types.SinkKafka, err)
	}
	s := &KafkaSink{client: cl, topic: topic, timeout: timeout}

	hdr, err := trace.AppendHeader(nil, cal)
	if err == nil {
		err = s.produce(&kgo.Record{Value: hdr})
	}
	if err != nil {
		cl.Close()
		return nil, err
	}
	logutil.GetLogger().Info("kafka sink created",
		zap.Strings("brokers", brokers),
		zap.String("topic", topic))
	return s, nil
}

func kafkaRecord(ev mon.Event) (*kgo.Record, error) {
	value, err := trace.AppendRecord(nil, trace.FromEvent(ev))
	if err != nil {
		return nil, err
	}
	return &kgo.Record{
		Key:   codec.EncodeU16(ev.NodeID, trace.Order),
		Value: value,
	}, nil
}

func (s *KafkaSink) produce(r *kgo.Record) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.client.ProduceSync(ctx, r).FirstErr(); err != nil {
		return fmt.Errorf("%s sink: produce to %q: %w", types.SinkKafka, s.topic, err)
	}
	return nil
}

func (s *KafkaSink) Record(ev mon.CalibratedEvent) error {
	r, err := kafkaRecord(ev.Event)
	if err != nil {
		return fmt.Errorf("%s sink: %w", types.SinkKafka, err)
	}
	return s.produce(r)
}

func (s *KafkaSink) Finish() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	err := s.client.Flush(ctx)
	s.client.Close()
	if err != nil {
		return fmt.Errorf("%s sink: flush: %w", types.SinkKafka, err)
	}
	logutil.GetLogger().Info("kafka sink closed", zap.String("topic", s.topic))
	return nil
}
