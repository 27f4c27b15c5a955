package api

import (
	"context"
	"errors"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"boardsync/broadcast"
	"boardsync/domain"
)

// parkingQueue is the subset of the azqueue client the outbox needs.
type parkingQueue interface {
	EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error)
	DequeueMessage(ctx context.Context, o *azqueue.DequeueMessageOptions) (azqueue.DequeueMessagesResponse, error)
	DeleteMessage(ctx context.Context, messageID, popReceipt string, o *azqueue.DeleteMessageOptions) (azqueue.DeleteMessageResponse, error)
}

type parkedEvent struct {
	Room  string       `json:"room"`
	Event domain.Event `json:"event"`
}

// Outbox decorates the cross-process publisher with a durable fallback:
// an event that fails to publish is parked on a cloud queue instead of
// being lost, and the background flusher replays it once the publisher
// recovers. Replayed events can arrive late and out of order, which the
// flat-map merge on the receiving side tolerates.
type Outbox struct {
	inner    broadcast.Publisher
	queue    parkingQueue
	logger   *log.Logger
	interval time.Duration
}

// NewOutbox wraps inner with queue-backed parking. A nil queue turns
// the Outbox into a plain pass-through.
func NewOutbox(inner broadcast.Publisher, queue parkingQueue, interval time.Duration, logger *log.Logger) *Outbox {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Outbox{inner: inner, queue: queue, logger: logger, interval: interval}
}

// Publish forwards to the inner publisher and parks the event on the
// queue when that fails. Publish only errors when both paths fail.
func (o *Outbox) Publish(ctx context.Context, room string, ev domain.Event) error {
	err := o.inner.Publish(ctx, room, ev)
	if err == nil {
		return nil
	}
	if o.queue == nil {
		return err
	}

	raw, merr := sonic.Marshal(parkedEvent{Room: room, Event: ev})
	if merr != nil {
		return errors.Join(err, merr)
	}
	if _, qerr := o.queue.EnqueueMessage(ctx, string(raw), nil); qerr != nil {
		return errors.Join(err, qerr)
	}
	o.logger.Warnf("publish failed, parked %s for %s: %v", ev.Name, room, err)
	return nil
}

// Run replays parked events until the context is cancelled.
func (o *Outbox) Run(ctx context.Context) {
	if o.queue == nil {
		return
	}
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.drain(ctx)
		}
	}
}

// drain replays parked events one at a time. A still-failing publisher
// stops the pass; the message stays queued and reappears after its
// visibility timeout.
func (o *Outbox) drain(ctx context.Context) {
	for {
		resp, err := o.queue.DequeueMessage(ctx, nil)
		if err != nil {
			o.logger.Errorf("outbox dequeue: %v", err)
			return
		}
		if len(resp.Messages) == 0 {
			return
		}
		msg := resp.Messages[0]
		if msg.MessageText == nil || msg.MessageID == nil || msg.PopReceipt == nil {
			return
		}

		var pe parkedEvent
		if err := sonic.UnmarshalString(*msg.MessageText, &pe); err != nil {
			// Poison message, drop it rather than loop on it.
			o.logger.Errorf("outbox decode, dropping message %s: %v", *msg.MessageID, err)
			if _, derr := o.queue.DeleteMessage(ctx, *msg.MessageID, *msg.PopReceipt, nil); derr != nil {
				o.logger.Errorf("outbox delete: %v", derr)
				return
			}
			continue
		}

		if err := o.inner.Publish(ctx, pe.Room, pe.Event); err != nil {
			o.logger.Warnf("outbox replay still failing: %v", err)
			return
		}
		if _, err := o.queue.DeleteMessage(ctx, *msg.MessageID, *msg.PopReceipt, nil); err != nil {
			o.logger.Errorf("outbox delete: %v", err)
			return
		}
	}
}
