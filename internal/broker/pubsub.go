// Package broker moves relayed messages onto the history pipeline.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/chatrelay/chatrelay/internal/model"
)

// Publish writes one relayed message to its room's subject on the chat
// stream. The relay's own fan-out never waits on this; a failed publish
// costs history, not delivery.
func Publish(ctx context.Context, js jetstream.JetStream, payload model.Message) (uint64, error) {
	if js == nil {
		return 0, fmt.Errorf("jetstream interface is nil")
	}
	if ctx == nil {
		return 0, fmt.Errorf("context is nil")
	}

	p, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("could not encode payload to JSON: %w", err)
	}

	subject := RoomSubject(payload.Room)
	pubAck, err := js.Publish(ctx,
		subject,
		p,
		jetstream.WithMsgID(uuid.NewString()),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to publish to stream [%s]: %v", subject, err)
	}

	return pubAck.Sequence, nil
}

// Subscribe consumes every room subject on the stream and forwards decoded
// messages to receiveMsg. It returns once the consumer is running; the
// consumer drains when ctx is cancelled.
func Subscribe(ctx context.Context, stream jetstream.Stream, receiveMsg chan model.Message) error {
	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		FilterSubject: SubjectAllRooms,
	})
	if err != nil {
		return fmt.Errorf("failed to create or update consumer: %w", err)
	}

	consumeHandler := func(msg jetstream.Msg) {
		var payload model.Message

		if err := json.Unmarshal(msg.Data(), &payload); err != nil {
			msg.Term()
			log.Printf("could not decode payload: %v", err)
			return
		}

		msg.Ack()

		receiveMsg <- payload
	}

	optErrHandler := jetstream.ConsumeErrHandler(func(cctx jetstream.ConsumeContext, err error) {
		log.Printf("consumer error: %v", err)
		cctx.Drain()
	})

	consumeCtx, err := consumer.Consume(consumeHandler, optErrHandler)
	if err != nil {
		return fmt.Errorf("failed to start consuming messages: %w", err)
	}

	go func(ctx context.Context, consumeCtx jetstream.ConsumeContext) {
		<-ctx.Done()
		consumeCtx.Drain()
	}(ctx, consumeCtx)

	return nil
}
