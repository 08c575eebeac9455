// Load generator: N simulated users join one room, type for a bit, and
// send messages at a fixed interval. Counts what each session saw at the
// end, which makes fan-out regressions obvious without a browser.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/chatrelay/chatrelay/internal/session"
)

func main() {
	var (
		addr     = flag.String("addr", "ws://localhost:8080/ws", "relay websocket endpoint")
		room     = flag.String("room", "loadtest", "room to join")
		clients  = flag.Int("clients", 10, "number of concurrent sessions")
		messages = flag.Int("messages", 20, "messages each session sends")
		interval = flag.Duration("interval", 250*time.Millisecond, "delay between sends")
	)
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	sessions := make([]*session.Session, 0, *clients)
	var mu sync.Mutex

	var wg sync.WaitGroup
	for i := 0; i < *clients; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			tr, err := session.Dial(ctx, *addr)
			if err != nil {
				log.Printf("client %d: dial failed: %v", n, err)
				return
			}

			s := session.New(ctx, tr)
			if err := s.Join(*room, fmt.Sprintf("loadtest-%d", n)); err != nil {
				log.Printf("client %d: join failed: %v", n, err)
				return
			}

			mu.Lock()
			sessions = append(sessions, s)
			mu.Unlock()

			for m := 0; m < *messages; m++ {
				// Simulate composing before each send.
				if err := s.Typing(); err != nil {
					log.Printf("client %d: typing failed: %v", n, err)
					return
				}
				time.Sleep(*interval)

				if err := s.Send(fmt.Sprintf("message %d from client %d", m, n)); err != nil {
					log.Printf("client %d: send failed: %v", n, err)
					return
				}
			}
		}(i)
	}
	wg.Wait()

	// Give in-flight broadcasts a moment to land.
	time.Sleep(2 * time.Second)

	expected := *clients * *messages
	for i, s := range sessions {
		got := len(s.Messages())
		fmt.Printf("client %d: state=%s log=%d (expected %d)\n", i, s.State(), got, expected)
		if err := s.Leave(); err != nil {
			log.Printf("client %d: leave failed: %v", i, err)
		}
		s.Close()
	}
}
