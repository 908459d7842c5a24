package service

import (
	"context"
	"errors"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

// relay carries notification envelopes between API nodes so that a user's
// SSE stream receives events published on any node.
type relay interface {
	kind() string
	send(ctx context.Context, payload []byte) error
	listen(ctx context.Context, receive func([]byte)) error
}

type redisRelay struct {
	client  *redis.Client
	channel string
}

func (r redisRelay) kind() string { return "redis" }

func (r redisRelay) send(ctx context.Context, payload []byte) error {
	return r.client.Publish(ctx, r.channel, payload).Err()
}

// listen blocks until ctx is done or the subscription fails.
func (r redisRelay) listen(ctx context.Context, receive func([]byte)) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		receive([]byte(msg.Payload))
	}
}

// natsRelay uses a plain subscription: every node must see every event.
type natsRelay struct {
	conn    *nats.Conn
	subject string
}

func (r natsRelay) kind() string { return "nats" }

func (r natsRelay) send(_ context.Context, payload []byte) error {
	return r.conn.Publish(r.subject, payload)
}

func (r natsRelay) listen(ctx context.Context, receive func([]byte)) error {
	sub, err := r.conn.Subscribe(r.subject, func(msg *nats.Msg) {
		receive(msg.Data)
	})
	if err != nil {
		return err
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return err
	}
	return nil
}

// relaysFor derives the redis channel "<base>:notifications" and the NATS
// subject "<base>.notifications" from the channel base.
func relaysFor(channelBase string, redisClient *redis.Client, natsConn *nats.Conn) []relay {
	base := strings.TrimSpace(channelBase)
	if base == "" {
		return nil
	}

	var relays []relay
	if redisClient != nil {
		relays = append(relays, redisRelay{client: redisClient, channel: base + ":notifications"})
	}
	if natsConn != nil {
		relays = append(relays, natsRelay{conn: natsConn, subject: strings.ReplaceAll(base, ":", ".") + ".notifications"})
	}
	return relays
}
