package redis

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"metapool/internal/model"
)

const (
	// ChannelAll receives every committed operation.
	ChannelAll = "metapool:operations"
	channelOp  = "metapool:operations:%s"
)

// Publisher fans committed operations out to Redis pub/sub channels.
type Publisher struct {
	client *goredis.Client
}

func NewPublisher(addr string) (*Publisher, error) {
	if addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	return &Publisher{
		client: goredis.NewClient(&goredis.Options{
			Addr: addr,
			DB:   0,
		}),
	}, nil
}

// Ping checks connectivity.
func (p *Publisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func (p *Publisher) Close() error {
	return p.client.Close()
}

// OperationChannel returns the channel for one operation name.
func OperationChannel(operation string) string {
	return fmt.Sprintf(channelOp, operation)
}

// PutOperationBatch publishes each record to the global and per-operation channels.
func (p *Publisher) PutOperationBatch(ctx context.Context, records []model.OperationRecord) error {
	if len(records) == 0 {
		return nil
	}

	pipe := p.client.Pipeline()
	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal operation record: %w", err)
		}
		pipe.Publish(ctx, ChannelAll, data)
		pipe.Publish(ctx, OperationChannel(rec.Operation), data)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish operations: %w", err)
	}
	return nil
}

// Subscribe delivers operations from channel to handler until ctx is done.
func (p *Publisher) Subscribe(ctx context.Context, channel string, handler func(model.OperationRecord)) error {
	sub := p.client.Subscribe(ctx, channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var rec model.OperationRecord
			if err := json.Unmarshal([]byte(msg.Payload), &rec); err != nil {
				continue
			}
			handler(rec)
		}
	}
}
