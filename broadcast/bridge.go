package broadcast

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"boardsync/domain"
)

// envelope wraps an event with its room and originating process so a
// process can skip its own echoes when they come back off the channel.
type envelope struct {
	Origin string       `json:"origin"`
	Room   string       `json:"room"`
	Event  domain.Event `json:"event"`
}

// Bridge connects a Router to a redis pub/sub channel so every server
// process shares one room space.
type Bridge struct {
	id      string
	rc      *redis.Client
	channel string
	router  *Router
	logger  *log.Logger
}

// NewBridge creates a Bridge over the given redis client and channel.
func NewBridge(rc *redis.Client, channel string, router *Router, logger *log.Logger) *Bridge {
	return &Bridge{
		id:      uuid.NewString(),
		rc:      rc,
		channel: channel,
		router:  router,
		logger:  logger,
	}
}

// Publish sends the event to the shared channel.
func (b *Bridge) Publish(ctx context.Context, room string, ev domain.Event) error {
	data, err := sonic.Marshal(envelope{Origin: b.id, Room: room, Event: ev})
	if err != nil {
		return err
	}
	return b.rc.Publish(ctx, b.channel, data).Err()
}

// Run consumes the shared channel and re-emits foreign events into the
// local router. It blocks until ctx is cancelled and reconnects when
// the pub/sub channel closes.
func (b *Bridge) Run(ctx context.Context) {
	for {
		sub := b.rc.Subscribe(ctx, b.channel)
		ch := sub.Channel()
	recv:
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break recv
				}
				var env envelope
				if err := sonic.UnmarshalString(msg.Payload, &env); err != nil {
					b.logger.Errorf("unable to parse broadcast envelope: %v", err)
					continue
				}
				if env.Origin == b.id {
					continue
				}
				b.router.emitLocal(env.Room, env.Event)
			}
		}
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		b.logger.Error("broadcast channel closed, reconnecting")
		time.Sleep(time.Second)
	}
}
