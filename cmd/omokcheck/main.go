package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/park285/omok-room-server/internal/wsclient"
	"github.com/park285/omok-room-server/pkg/omokdto"
)

func main() {
	wsURL := os.Getenv("OMOK_WS_URL")
	if wsURL == "" {
		wsURL = "ws://127.0.0.1:3001/ws"
	}
	gameTime := 60
	if v, err := strconv.Atoi(os.Getenv("OMOK_GAME_TIME")); err == nil && v > 0 {
		gameTime = v
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	black := dial(ctx, wsURL, "black")
	defer func() { _ = black.Close(context.Background()) }()
	white := dial(ctx, wsURL, "white")
	defer func() { _ = white.Close(context.Background()) }()

	var over sync.WaitGroup
	over.Add(2)
	for _, c := range []*wsclient.Client{black, white} {
		var once sync.Once
		c.OnEvent(func(f wsclient.Frame) {
			fmt.Printf("event %s room=%s\n", f.Event, f.RoomID)
			if f.Event == omokdto.EventGameOver {
				once.Do(over.Done)
			}
		})
	}

	created, err := black.CreateRoom(ctx, gameTime)
	if err != nil {
		log.Fatalf("create_room: %v", err)
	}
	log.Printf("room %s created, gameTime=%d", created.RoomID, created.GameTime)

	if _, err := white.JoinRoom(ctx, created.RoomID); err != nil {
		log.Fatalf("join_room: %v", err)
	}

	// Black builds a row on line 7; white answers on line 8.
	for i := 0; i < 5; i++ {
		mv, err := black.MakeMove(ctx, 7, 3+i)
		if err != nil {
			log.Fatalf("black move %d: %v", i, err)
		}
		if mv.Finished {
			winner := ""
			if mv.Winner != nil {
				winner = *mv.Winner
			}
			log.Printf("game finished after black move %d: winner=%s reason=%s", i+1, winner, mv.Reason)
			break
		}
		if _, err := white.MakeMove(ctx, 8, 3+i); err != nil {
			log.Fatalf("white move %d: %v", i, err)
		}
	}

	done := make(chan struct{})
	go func() { over.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		log.Fatal("game_over not received by both players")
	}

	rooms, err := black.ListRooms(ctx)
	if err != nil {
		log.Printf("list_rooms error: %v", err)
	} else {
		log.Printf("list_rooms ok: %d room(s)", len(rooms))
	}
	if _, err := white.LeaveRoom(ctx); err != nil {
		log.Printf("leave_room error: %v", err)
	}
	log.Println("smoke check ok")
}

func dial(ctx context.Context, url, name string) *wsclient.Client {
	c := wsclient.New(url, wsclient.WithReconnect(3, 500*time.Millisecond))
	c.OnStateChange(func(state wsclient.State) {
		log.Printf("%s state: %s", name, state)
	})
	if err := c.Connect(ctx); err != nil {
		log.Fatalf("%s connect error: %v", name, err)
	}
	log.Printf("%s connected as %s", name, c.ConnID())
	return c
}
