package results

import (
	"context"
	"encoding/base64"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/omok-room-server/internal/msgcat"
	"github.com/park285/omok-room-server/internal/notify"
	"github.com/park285/omok-room-server/internal/obslog"
	"github.com/park285/omok-room-server/internal/omok"
	"github.com/park285/omok-room-server/internal/render"
	"github.com/park285/omok-room-server/internal/room"
)

// Publisher forwards a finished game to an external consumer.
type Publisher interface {
	PublishResult(ctx context.Context, r notify.Result) error
}

type RecorderOptions struct {
	Repository Repository
	Publisher  Publisher // optional
	Catalog    *msgcat.Catalog
	Logger     *zap.Logger
	QueueSize  int

	// AttachBoard embeds a PNG of the final board in published results.
	AttachBoard bool
	SaveTimeout time.Duration
}

// Recorder archives finished games off the room goroutines.
// Enqueue never blocks; a full queue drops the result with a warning.
type Recorder struct {
	repo    Repository
	pub     Publisher
	catalog *msgcat.Catalog
	logger  *zap.Logger
	attach  bool
	timeout time.Duration

	queue  chan room.Result
	stopCh chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

func NewRecorder(opts RecorderOptions) *Recorder {
	if opts.Repository == nil {
		opts.Repository = NewMemoryRepository(0)
	}
	if opts.Logger == nil {
		opts.Logger = obslog.L()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 128
	}
	if opts.SaveTimeout <= 0 {
		opts.SaveTimeout = 10 * time.Second
	}
	return &Recorder{
		repo:    opts.Repository,
		pub:     opts.Publisher,
		catalog: opts.Catalog,
		logger:  opts.Logger,
		attach:  opts.AttachBoard,
		timeout: opts.SaveTimeout,
		queue:   make(chan room.Result, opts.QueueSize),
		stopCh:  make(chan struct{}),
	}
}

func (r *Recorder) Repository() Repository { return r.repo }

// Enqueue hands res to the worker. Safe to call under a room lock.
func (r *Recorder) Enqueue(res room.Result) {
	select {
	case <-r.stopCh:
		r.logger.Warn("results_enqueue_after_close", zap.String("game_id", res.GameID))
		return
	default:
	}
	select {
	case r.queue <- res:
	default:
		r.logger.Warn("results_queue_full", zap.String("game_id", res.GameID), zap.String("room_id", res.RoomID))
	}
}

// Start launches the worker. Close drains what is already queued.
func (r *Recorder) Start() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			select {
			case res := <-r.queue:
				r.handle(res)
			case <-r.stopCh:
				for {
					select {
					case res := <-r.queue:
						r.handle(res)
					default:
						return
					}
				}
			}
		}
	}()
}

func (r *Recorder) Close() {
	r.once.Do(func() { close(r.stopCh) })
	r.wg.Wait()
}

func (r *Recorder) handle(res room.Result) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.Record(ctx, res); err != nil {
		r.logger.Warn("results_record_failed", zap.String("game_id", res.GameID), zap.Error(err))
	}
}

// Record saves res and publishes it. Publish errors are logged, not returned.
func (r *Recorder) Record(ctx context.Context, res room.Result) error {
	rec := FromResult(res)
	if err := r.repo.Save(ctx, rec); err != nil {
		return err
	}
	r.logger.Info("results_saved",
		zap.String("game_id", rec.GameID),
		zap.String("room_id", rec.RoomID),
		zap.String("result", rec.Result),
		zap.Int("plies", len(rec.Moves)),
	)
	if r.pub == nil {
		return nil
	}

	payload := notify.Result{
		GameID:     rec.GameID,
		RoomID:     rec.RoomID,
		Winner:     rec.Winner,
		Reason:     rec.Reason,
		Plies:      len(rec.Moves),
		Transcript: rec.Transcript,
		Summary:    Summary(r.catalog, res),
		BoardSize:  rec.BoardSize,
		StartedAt:  rec.StartedAt,
		EndedAt:    rec.EndedAt,
	}
	if r.attach && len(res.Board) > 0 {
		png, err := render.RenderPNG(ctx, res.Board, boardOptions(res, payload.Summary))
		if err != nil {
			r.logger.Warn("results_render_failed", zap.String("game_id", rec.GameID), zap.Error(err))
		} else {
			payload.BoardPNGB64 = base64.StdEncoding.EncodeToString(png)
		}
	}
	if err := r.pub.PublishResult(ctx, payload); err != nil {
		r.logger.Warn("results_publish_failed", zap.String("game_id", rec.GameID), zap.Error(err))
	}
	return nil
}

func boardOptions(res room.Result, summary string) render.Options {
	opts := render.Options{Header: "Room " + res.RoomID, Footer: summary}
	if n := len(res.Moves); n > 0 {
		p := res.Moves[n-1].Point()
		opts.LastMove = &p
	}
	return opts
}

// Summary is the one-line human text for a finished game.
func Summary(c *msgcat.Catalog, res room.Result) string {
	data := map[string]any{
		"Winner": seatName(res.Winner),
		"Loser":  seatName(res.Winner.Opponent()),
		"Plies":  len(res.Moves),
	}
	fallback := resultToken(res.Winner, res.Reason)
	if c == nil {
		return fallback
	}
	return c.Text("result."+string(res.Reason), data, fallback)
}

func seatName(s omok.Seat) string {
	switch s {
	case omok.Black:
		return "Black"
	case omok.White:
		return "White"
	default:
		return ""
	}
}
