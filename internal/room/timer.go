package room

import (
	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// turnTimer is the room's single countdown. gen is bumped on every disarm, and
// a callback only acts if the generation it was armed with is still current,
// so a stopped timer that already fired can never decrement or time out.
type turnTimer struct {
	gen    uint64
	handle *clock.Timer
}

// armTimer replaces any armed timer with a fresh one for the current turn.
// Caller holds r.mu.
func (r *Room) armTimer() {
	r.disarmTimer()
	gen := r.timer.gen
	r.timer.handle = r.deps.clock.AfterFunc(r.deps.tick, func() { r.onTick(gen) })
}

// disarmTimer is idempotent. Caller holds r.mu.
func (r *Room) disarmTimer() {
	r.timer.gen++
	if r.timer.handle != nil {
		r.timer.handle.Stop()
		r.timer.handle = nil
	}
}

func (r *Room) timerArmed() bool { return r.timer.handle != nil }

func (r *Room) onTick(gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	defer func() {
		if p := recover(); p != nil {
			r.log().Error("room_tick_panic", zap.Any("panic", p))
		}
	}()
	if r.closed || gen != r.timer.gen || r.phase != PhaseActive {
		return
	}

	seat := r.turn
	i := seat.Index()
	if r.budgets[i] > 0 {
		r.budgets[i]--
	}
	expired := r.budgets[i] == 0
	if expired {
		r.timer.handle = nil
	} else {
		r.timer.handle = r.deps.clock.AfterFunc(r.deps.tick, func() { r.onTick(gen) })
	}

	r.emit(Event{Kind: EventTimerUpdate, Turn: seat, Budgets: budgetsOf(r.budgets)}, "")
	if expired {
		r.log().Info("room_timeout", zap.Stringer("seat", seat))
		r.timeout(seat)
	}
}
