package protocol

import (
	"go.uber.org/zap"

	"github.com/park285/omok-room-server/internal/obslog"
	"github.com/park285/omok-room-server/internal/room"
)

// Sender queues a frame for one connection without blocking. It reports
// false when the connection is gone or its queue is full.
type Sender interface {
	Send(connID string, frame any) bool
}

// Broadcaster turns room events into event frames.
type Broadcaster struct {
	sender Sender
	logger *zap.Logger
}

var _ room.Notifier = (*Broadcaster)(nil)

func NewBroadcaster(sender Sender, logger *zap.Logger) *Broadcaster {
	if logger == nil {
		logger = obslog.L()
	}
	return &Broadcaster{sender: sender, logger: logger}
}

func (b *Broadcaster) Notify(roomID string, recipients []string, ev room.Event) {
	frame := ToEventFrame(ev)
	for _, conn := range recipients {
		if !b.sender.Send(conn, frame) {
			b.logger.Debug("protocol_event_dropped",
				zap.String("room_id", roomID),
				zap.String("conn_id", conn),
				zap.String("event", string(ev.Kind)),
			)
		}
	}
}
