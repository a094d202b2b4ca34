package changefeed

import (
	"context"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Redis broadcasts changes over a redis pub/sub channel. Writers must Publish.
type Redis struct {
	client  *redis.Client
	channel string
}

var _ Feed = (*Redis)(nil)

func NewRedis(client *redis.Client, channel string) (*Redis, error) {
	if err := vala.BeginValidation().Validate(
		vala.IsNotNil(client, "client"),
		vala.StringNotEmpty(channel, "channel"),
	).Check(); err != nil {
		return nil, err
	}
	return &Redis{client: client, channel: channel}, nil
}

// ConnectRedis opens a redis client and checks the connection.
func ConnectRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "pinging redis")
	}
	return client, nil
}

func (f *Redis) Publish(ctx context.Context) error {
	if err := f.client.Publish(ctx, f.channel, "changed").Err(); err != nil {
		return errors.Wrap(err, "publishing attendance change")
	}
	return nil
}

func (f *Redis) Listen(ctx context.Context, onChange func()) error {
	pubsub := f.client.Subscribe(ctx, f.channel)
	defer func() { _ = pubsub.Close() }()

	// wait for the subscription confirmation
	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return errors.Wrapf(err, "subscribing to %q", f.channel)
	}
	signal(onChange)

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-messages:
			if !ok {
				return errors.New("redis change feed closed")
			}
			signal(onChange)
		}
	}
}
