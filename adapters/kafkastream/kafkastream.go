// Package kafkastream announces appended facts on a Kafka topic so that
// downstream consumers outside this process can react to them.
package kafkastream

import (
	"context"
	"strconv"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"github.com/segmentio/kafka-go"

	"github.com/appraisehq/appraise"
)

// New returns a Sender writing to the given topic. Messages are keyed by
// stream ID so that one stream's announcements preserve their order within a
// partition.
func New(brokers []string, topic string) *Sender {
	return &Sender{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.Hash{},
		},
	}
}

var _ appraise.EventSender = (*Sender)(nil)

type Sender struct {
	writer *kafka.Writer
}

func (s *Sender) Send(ctx context.Context, e appraise.Event) error {
	err := s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.StreamID.String()),
		Value: []byte(e.Type),
		Headers: []kafka.Header{
			{Key: "sequence", Value: []byte(strconv.FormatInt(e.Sequence, 10))},
			{Key: "global_id", Value: []byte(strconv.FormatInt(e.ID, 10))},
		},
	})
	if err != nil {
		return errors.Wrap(err, "write fact announcement", j.MKV{
			"stream_id": e.StreamID.String(),
			"sequence":  e.Sequence,
		})
	}

	return nil
}

func (s *Sender) Close() error {
	return s.writer.Close()
}
