package eventbus

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/stockchat/pkg/events"
)

// Settings selects the transport for mirrored chat events. When Enabled is
// false the bus is an in-process go channel.
type Settings struct {
	Enabled  bool
	Addr     string
	Stream   string
	Group    string
	Consumer string
}

const (
	DefaultAddr   = "localhost:6379"
	DefaultStream = "stockchat.events"
)

func (s Settings) withDefaults() Settings {
	if s.Addr == "" {
		s.Addr = DefaultAddr
	}
	if s.Stream == "" {
		s.Stream = DefaultStream
	}
	if s.Group == "" {
		s.Group = "stockchat-tail"
	}
	if s.Consumer == "" {
		s.Consumer = "tail-" + watermill.NewShortUUID()
	}
	return s
}

// Bus publishes classified chat events as envelopes and lets observers
// follow them.
type Bus struct {
	settings Settings
	pub      message.Publisher
	sub      message.Subscriber
	redis    *redis.Client
	seq      atomic.Uint64
}

func New(s Settings) (*Bus, error) {
	s = s.withDefaults()
	logger := NewWatermillLogger(log.Logger)

	if !s.Enabled {
		// publishing waits for the ack so subscribers see events in order
		ch := gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer:            256,
			BlockPublishUntilSubscriberAck: true,
		}, logger)
		return &Bus{settings: s, pub: ch, sub: ch}, nil
	}

	client := redis.NewClient(&redis.Options{Addr: s.Addr})
	marshaler := rstream.DefaultMarshallerUnmarshaller{}

	pub, err := rstream.NewPublisher(rstream.PublisherConfig{
		Client:     client,
		Marshaller: marshaler,
	}, logger)
	if err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "create redis stream publisher")
	}

	sub, err := rstream.NewSubscriber(rstream.SubscriberConfig{
		Client:        client,
		Unmarshaller:  marshaler,
		ConsumerGroup: s.Group,
		Consumer:      s.Consumer,
	}, logger)
	if err != nil {
		_ = pub.Close()
		_ = client.Close()
		return nil, errors.Wrap(err, "create redis stream subscriber")
	}

	return &Bus{settings: s, pub: pub, sub: sub, redis: client}, nil
}

func (b *Bus) Topic() string {
	return b.settings.Stream
}

// MirrorEvent publishes ev for threadID. Failures are logged and dropped so
// a broken bus never affects the chat session.
func (b *Bus) MirrorEvent(threadID string, ev events.Event) {
	env := events.NewEnvelope(threadID, b.seq.Add(1), ev)
	if err := b.Publish(env); err != nil {
		log.Warn().Err(err).Str("component", "eventbus").Str("thread_id", threadID).Msg("failed to mirror event")
	}
}

func (b *Bus) Publish(env events.Envelope) error {
	payload, err := events.MarshalEnvelope(env)
	if err != nil {
		return err
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("type", string(env.Type))
	msg.Metadata.Set("thread_id", env.ThreadID)
	if err := b.pub.Publish(b.settings.Stream, msg); err != nil {
		return errors.Wrap(err, "publish event")
	}
	return nil
}

// Envelopes subscribes to the bus and returns the decoded envelopes. The
// subscription is live when Envelopes returns; the channel closes when ctx is
// done or the bus is closed. Messages that are not envelopes are skipped.
func (b *Bus) Envelopes(ctx context.Context) (<-chan events.Envelope, error) {
	if b.redis != nil {
		if err := EnsureGroupAtTail(ctx, b.redis, b.settings.Stream, b.settings.Group); err != nil {
			return nil, err
		}
	}

	msgs, err := b.sub.Subscribe(ctx, b.settings.Stream)
	if err != nil {
		return nil, errors.Wrap(err, "subscribe")
	}

	out := make(chan events.Envelope)
	go func() {
		defer close(out)
		for msg := range msgs {
			env, err := events.UnmarshalEnvelope(msg.Payload)
			if err != nil {
				log.Debug().Err(err).Str("component", "eventbus").Str("uuid", msg.UUID).Msg("skipping message")
				msg.Ack()
				continue
			}
			select {
			case out <- env:
				msg.Ack()
			case <-ctx.Done():
				msg.Nack()
				return
			}
		}
	}()
	return out, nil
}

// Tail calls fn for every envelope until ctx is done or fn returns an error.
func (b *Bus) Tail(ctx context.Context, fn func(events.Envelope) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	envs, err := b.Envelopes(ctx)
	if err != nil {
		return err
	}
	for env := range envs {
		if err := fn(env); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bus) Close() error {
	var errs []string
	if err := b.pub.Close(); err != nil {
		errs = append(errs, err.Error())
	}
	if b.sub != nil && b.redis != nil {
		if err := b.sub.Close(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if b.redis != nil {
		if err := b.redis.Close(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return errors.Errorf("close event bus: %s", strings.Join(errs, "; "))
	}
	return nil
}

// EnsureGroupAtTail creates the consumer group for stream at the tail ($) if
// it does not exist, so a new tail does not replay the stream's history.
func EnsureGroupAtTail(ctx context.Context, client redis.UniversalClient, stream, group string) error {
	err := client.XGroupCreateMkStream(ctx, stream, group, "$").Err()
	if err != nil {
		if strings.Contains(err.Error(), "BUSYGROUP") {
			return nil
		}
		return errors.Wrapf(err, "create consumer group %s on %s", group, stream)
	}
	log.Info().Str("stream", stream).Str("group", group).Msg("created redis consumer group at $ (tail)")
	return nil
}
