package room

import (
	"context"
	"crypto/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/park285/omok-room-server/internal/obslog"
	"github.com/park285/omok-room-server/internal/omok"
)

// CodeReserver claims room codes in a store shared by several server
// processes. Reserve returns false if the code is already taken elsewhere.
type CodeReserver interface {
	Reserve(ctx context.Context, code string) (bool, error)
	Release(ctx context.Context, code string) error
}

// Config wires a Registry. Zero values get sensible defaults.
type Config struct {
	BoardSize    int
	TickInterval time.Duration
	Clock        clock.Clock
	Notifier     Notifier
	Logger       *zap.Logger
	Reserver     CodeReserver
	OnFinish     func(Result)
}

const (
	codeLength   = 6
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeAttempts = 8
)

// Registry owns every live room of the process.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room

	deps     *deps
	reserver CodeReserver
	codeGen  func() (string, error)

	lmu       sync.RWMutex
	listeners []func(id string)
}

func NewRegistry(cfg Config) *Registry {
	if cfg.BoardSize < omok.WinLength {
		cfg.BoardSize = omok.DefaultSize
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Notifier == nil {
		cfg.Notifier = nopNotifier{}
	}
	if cfg.Logger == nil {
		cfg.Logger = obslog.L()
	}
	g := &Registry{
		rooms:    make(map[string]*Room),
		reserver: cfg.Reserver,
		codeGen:  codeGen,
	}
	g.deps = &deps{
		size:     cfg.BoardSize,
		tick:     cfg.TickInterval,
		clock:    cfg.Clock,
		notifier: cfg.Notifier,
		logger:   cfg.Logger,
		onFinish: cfg.OnFinish,
		detach:   g.detach,
	}
	return g
}

// OnRemove registers fn to run after a room leaves the registry. fn may be
// called with the room's lock held and must not call back into that room.
func (g *Registry) OnRemove(fn func(id string)) {
	g.lmu.Lock()
	g.listeners = append(g.listeners, fn)
	g.lmu.Unlock()
}

// Create allocates a fresh code and stores a pending room with creatorConn
// seated black.
func (g *Registry) Create(ctx context.Context, creatorConn string, gameTime int) (*Room, error) {
	for i := 0; i < codeAttempts; i++ {
		code, err := g.codeGen()
		if err != nil {
			return nil, err
		}
		if g.exists(code) {
			continue
		}
		if g.reserver != nil {
			ok, err := g.reserver.Reserve(ctx, code)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}

		g.mu.Lock()
		if _, taken := g.rooms[code]; taken {
			g.mu.Unlock()
			g.release(code)
			continue
		}
		r := newRoom(code, creatorConn, gameTime, g.deps)
		g.rooms[code] = r
		g.mu.Unlock()

		g.deps.logger.Info("room_create",
			zap.String("room_id", code),
			zap.String("creator", creatorConn),
			zap.Int("game_time", gameTime),
		)
		return r, nil
	}
	return nil, ErrCodeExhausted
}

func (g *Registry) exists(code string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.rooms[code]
	return ok
}

// Get looks a room up by code (case-insensitive).
func (g *Registry) Get(id string) (*Room, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.rooms[normalizeCode(id)]
	return r, ok
}

// Remove tears the room down and drops it from the registry.
func (g *Registry) Remove(id string) {
	if r, ok := g.Get(id); ok {
		r.Close()
	}
}

func (g *Registry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rooms)
}

// Summaries lists every room, oldest first.
func (g *Registry) Summaries() []Summary {
	out := make([]Summary, 0)
	for _, r := range g.all() {
		out = append(out, r.Summary())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ForEachIdle calls fn for every room that looks idle and abandoned at scan
// time. fn runs without any registry or room lock held.
func (g *Registry) ForEachIdle(idle time.Duration, fn func(*Room)) {
	now := g.deps.clock.Now()
	for _, r := range g.all() {
		r.mu.Lock()
		stale := !r.closed && r.idleLocked(now, idle)
		r.mu.Unlock()
		if stale {
			fn(r)
		}
	}
}

// Sweep removes rooms that are idle and abandoned, re-checking each one under
// its own lock before tearing it down. It returns the removed codes.
func (g *Registry) Sweep(idle time.Duration) []string {
	var removed []string
	g.ForEachIdle(idle, func(r *Room) {
		if r.reapIfIdle(g.deps.clock.Now(), idle) {
			removed = append(removed, r.id)
		}
	})
	if len(removed) > 0 {
		g.deps.logger.Info("room_sweep", zap.Strings("removed", removed), zap.Int("remaining", g.Len()))
	}
	return removed
}

// RunSweeper sweeps every interval until ctx is done.
func (g *Registry) RunSweeper(ctx context.Context, interval, idle time.Duration) {
	t := g.deps.clock.Ticker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			g.Sweep(idle)
		}
	}
}

// CloseAll tears every room down, used on shutdown.
func (g *Registry) CloseAll() {
	for _, r := range g.all() {
		r.Close()
	}
}

func (g *Registry) all() []*Room {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Room, 0, len(g.rooms))
	for _, r := range g.rooms {
		out = append(out, r)
	}
	return out
}

// detach is called from Room.teardown with the room lock held.
func (g *Registry) detach(r *Room) {
	g.mu.Lock()
	if cur, ok := g.rooms[r.id]; ok && cur == r {
		delete(g.rooms, r.id)
	}
	g.mu.Unlock()
	g.release(r.id)

	g.lmu.RLock()
	listeners := append([]func(string){}, g.listeners...)
	g.lmu.RUnlock()
	for _, fn := range listeners {
		fn(r.id)
	}
}

func (g *Registry) release(code string) {
	if g.reserver == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := g.reserver.Release(ctx, code); err != nil {
			g.deps.logger.Warn("room_code_release_error", zap.String("room_id", code), zap.Error(err))
		}
	}()
}

func normalizeCode(id string) string { return strings.ToUpper(strings.TrimSpace(id)) }

// codeGen returns 6 upper-case alphanumerics from crypto/rand.
func codeGen() (string, error) {
	b := make([]byte, codeLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	for i := range b {
		b[i] = codeAlphabet[int(b[i])%len(codeAlphabet)]
	}
	return string(b), nil
}
