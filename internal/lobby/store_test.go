package lobby

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap/zaptest"

	"github.com/park285/omok-room-server/internal/room"
)

func newStores(t *testing.T) (*miniredis.Miniredis, *Store, *Store) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	a := NewStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	b := NewStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = a.Close(); _ = b.Close() })
	return mr, a, b
}

func TestReserveIsExclusiveAcrossProcesses(t *testing.T) {
	_, a, b := newStores(t)
	ctx := context.Background()

	ok, err := a.Reserve(ctx, "ABC123")
	if err != nil || !ok {
		t.Fatalf("a.Reserve = %v, %v", ok, err)
	}
	ok, err = b.Reserve(ctx, "ABC123")
	if err != nil || ok {
		t.Fatalf("b.Reserve = %v, %v; want false", ok, err)
	}

	// b cannot release a's code
	if err := b.Release(ctx, "ABC123"); err != nil {
		t.Fatalf("b.Release: %v", err)
	}
	if ok, _ := b.Reserve(ctx, "ABC123"); ok {
		t.Fatal("code released by non-owner")
	}

	if err := a.Release(ctx, "ABC123"); err != nil {
		t.Fatalf("a.Release: %v", err)
	}
	if ok, _ := b.Reserve(ctx, "ABC123"); !ok {
		t.Fatal("code should be free after owner release")
	}
}

func TestReservedPrunesExpired(t *testing.T) {
	mr, a, _ := newStores(t)
	ctx := context.Background()
	for _, c := range []string{"AAAAAA", "BBBBBB"} {
		if ok, err := a.Reserve(ctx, c); err != nil || !ok {
			t.Fatalf("Reserve(%s) = %v, %v", c, ok, err)
		}
	}
	mr.Del(keyCode("AAAAAA"))

	got, err := a.Reserved(ctx)
	if err != nil {
		t.Fatalf("Reserved: %v", err)
	}
	if len(got) != 1 || got[0] != "BBBBBB" {
		t.Fatalf("Reserved = %v", got)
	}
	if members, _ := mr.Members(keyIndex()); len(members) != 1 {
		t.Fatalf("index not pruned: %v", members)
	}

	mr.FastForward(ttlCode + time.Second)
	if got, _ := a.Reserved(ctx); len(got) != 0 {
		t.Fatalf("expected all codes expired, got %v", got)
	}
}

func TestRegistryUsesStore(t *testing.T) {
	_, a, b := newStores(t)
	ctx := context.Background()
	regA := room.NewRegistry(room.Config{Reserver: a, Logger: zaptest.NewLogger(t)})
	regB := room.NewRegistry(room.Config{Reserver: b, Logger: zaptest.NewLogger(t)})

	seen := map[string]bool{}
	for i := 0; i < 10; i++ {
		for j, reg := range []*room.Registry{regA, regB} {
			r, err := reg.Create(ctx, fmt.Sprintf("c%d-%d", i, j), 60)
			if err != nil {
				t.Fatalf("Create: %v", err)
			}
			if seen[r.ID()] {
				t.Fatalf("duplicate code %s", r.ID())
			}
			seen[r.ID()] = true
		}
	}
	codes, err := a.Reserved(ctx)
	if err != nil {
		t.Fatalf("Reserved: %v", err)
	}
	if len(codes) != 20 {
		t.Fatalf("reserved = %d", len(codes))
	}

	regA.CloseAll()
	regB.CloseAll()
	deadline := time.Now().Add(2 * time.Second)
	for {
		codes, _ = a.Reserved(ctx)
		if len(codes) == 0 {
			break
		}
		if time.Now().After(deadline) {
			sort.Strings(codes)
			t.Fatalf("codes not released: %v", codes)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestParseRedisURL(t *testing.T) {
	opts, err := parseRedisURL("redis://:pw@localhost:6380/3")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if opts.Addr != "localhost:6380" || opts.Password != "pw" || opts.DB != 3 {
		t.Fatalf("opts = %+v", opts)
	}
	if _, err := parseRedisURL("http://localhost"); err == nil {
		t.Fatal("expected scheme error")
	}
}
