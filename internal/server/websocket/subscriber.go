package websocket

import (
	"errors"

	"github.com/brianly1003/gitdeck/internal/domain"
	"github.com/brianly1003/gitdeck/internal/domain/events"
	"github.com/brianly1003/gitdeck/internal/server/common"
)

// connSubscriber is the hub-facing side of one connection. RoomSubscriber
// wraps it with the room and monitoring filters.
type connSubscriber struct {
	client *Client
}

func (s connSubscriber) ID() string { return s.client.ID() }

// Send queues the event. Back pressure drops the frame but keeps the
// subscription; only a closed connection is reported to the hub.
func (s connSubscriber) Send(event events.Event) error {
	err := s.client.offer(event)
	if errors.Is(err, common.ErrClosed) {
		return domain.ErrSubscriberClosed
	}
	if errors.Is(err, common.ErrBufferFull) {
		return nil
	}
	return err
}

func (s connSubscriber) Close() error {
	s.client.Close()
	return nil
}

func (s connSubscriber) Done() <-chan struct{} { return s.client.Done() }
