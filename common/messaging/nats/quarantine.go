package nats

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/admetry-labs/admetry/common/messaging"
)

// QuarantinedMessages reads up to limit messages from the quarantine stream
// for one subject without consuming them. Used by operator tooling to
// inspect poison messages.
func (c *JetStreamClient) QuarantinedMessages(ctx context.Context, subject string, limit int) ([]*messaging.Message, error) {
	stream, err := c.js.Stream(ctx, QuarantineStream.Name)
	if err != nil {
		return nil, fmt.Errorf("getting quarantine stream: %w", err)
	}

	cons, err := stream.OrderedConsumer(ctx, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{subject},
	})
	if err != nil {
		return nil, fmt.Errorf("creating quarantine reader: %w", err)
	}

	var msgs []*messaging.Message
	for len(msgs) < limit {
		batch, err := cons.FetchNoWait(limit - len(msgs))
		if err != nil {
			return nil, fmt.Errorf("fetching quarantined messages: %w", err)
		}
		got := false
		for msg := range batch.Messages() {
			msgs = append(msgs, fromJetStreamMsg(msg))
			got = true
		}
		if err := batch.Error(); err != nil && !errors.Is(err, jetstream.ErrNoMessages) {
			return nil, fmt.Errorf("fetching quarantined messages: %w", err)
		}
		if !got {
			break
		}
	}

	return msgs, nil
}

// PurgeQuarantine drops all quarantined messages for one subject and
// returns how many were removed.
func (c *JetStreamClient) PurgeQuarantine(ctx context.Context, subject string) (uint64, error) {
	stream, err := c.js.Stream(ctx, QuarantineStream.Name)
	if err != nil {
		return 0, fmt.Errorf("getting quarantine stream: %w", err)
	}

	before, err := stream.Info(ctx)
	if err != nil {
		return 0, fmt.Errorf("getting quarantine stream info: %w", err)
	}

	if err := stream.Purge(ctx, jetstream.WithPurgeSubject(subject)); err != nil {
		return 0, fmt.Errorf("purging quarantine subject %s: %w", subject, err)
	}

	after, err := stream.Info(ctx)
	if err != nil {
		return 0, fmt.Errorf("getting quarantine stream info: %w", err)
	}

	return before.State.Msgs - after.State.Msgs, nil
}
