package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"net/url"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type stats struct {
	connected int64
	answered  int64
	finished  int64
	errors    int64

	mu        sync.Mutex
	latencies []time.Duration
}

func (s *stats) observe(d time.Duration) {
	s.mu.Lock()
	s.latencies = append(s.latencies, d)
	s.mu.Unlock()
}

func main() {
	server := flag.String("url", "ws://localhost:8080/ws", "WebSocket server URL")
	rooms := flag.Int("rooms", 5, "Number of rooms to play")
	players := flag.Int("players", 3, "Players per room")
	bet := flag.Int64("bet", 10, "Entry bet per player")
	timeout := flag.Duration("timeout", 10*time.Minute, "Give up after this long")
	flag.Parse()

	log.Printf("Load test: %d rooms x %d players, bet %d", *rooms, *players, *bet)

	st := &stats{}
	var wg sync.WaitGroup
	start := time.Now()
	deadline := start.Add(*timeout)

	for r := 0; r < *rooms; r++ {
		roomID := make(chan string, 1)
		for p := 0; p < *players; p++ {
			wg.Add(1)
			go func(host bool) {
				defer wg.Done()
				b := &bot{server: *server, id: "bot-" + uuid.NewString()[:8], bet: *bet, stats: st, deadline: deadline}
				if err := b.play(host, roomID); err != nil {
					atomic.AddInt64(&st.errors, 1)
					log.Printf("%s: %v", b.id, err)
				}
			}(p == 0)
		}
	}

	wg.Wait()
	elapsed := time.Since(start)

	sort.Slice(st.latencies, func(i, j int) bool { return st.latencies[i] < st.latencies[j] })

	fmt.Println("\n=== Load Test Results ===")
	fmt.Printf("Duration:    %s\n", elapsed.Round(time.Millisecond))
	fmt.Printf("Players:     %d connected\n", st.connected)
	fmt.Printf("Answers:     %d acknowledged\n", st.answered)
	fmt.Printf("Finished:    %d players saw game:finished\n", st.finished)
	fmt.Printf("Errors:      %d\n", st.errors)
	if len(st.latencies) > 0 {
		fmt.Printf("Ack p50:     %s\n", percentile(st.latencies, 50))
		fmt.Printf("Ack p95:     %s\n", percentile(st.latencies, 95))
		fmt.Printf("Ack p99:     %s\n", percentile(st.latencies, 99))
	}
}

// bot is one scripted player: the host creates a room and publishes its id,
// the others join it, then everybody answers every question at random.
type bot struct {
	server   string
	id       string
	bet      int64
	stats    *stats
	deadline time.Time
	conn     *websocket.Conn
	room     string
	pending  map[string]time.Time
}

func (b *bot) play(host bool, roomID chan string) error {
	u := fmt.Sprintf("%s?player=%s&name=%s", b.server, url.QueryEscape(b.id), url.QueryEscape(b.id))
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	b.conn = conn
	b.pending = make(map[string]time.Time)
	atomic.AddInt64(&b.stats.connected, 1)

	if host {
		b.send("room:create", map[string]any{"playerId": b.id, "displayName": b.id, "betAmount": b.bet})
	} else {
		id := <-roomID
		roomID <- id
		b.room = id
		b.send("room:join", map[string]any{"roomId": id, "playerId": b.id, "displayName": b.id})
	}

	conn.SetReadDeadline(b.deadline)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			return fmt.Errorf("decode: %w", err)
		}
		done, err := b.handle(f, host, roomID)
		if err != nil || done {
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return err
		}
	}
}

func (b *bot) handle(f frame, host bool, roomID chan string) (bool, error) {
	switch f.Type {
	case "room:created":
		var room struct {
			RoomID string `json:"roomId"`
		}
		json.Unmarshal(f.Data, &room)
		b.room = room.RoomID
		if host {
			roomID <- room.RoomID
		}
	case "question:displayed":
		var q struct {
			QuestionID string `json:"questionId"`
			TimeLimit  int    `json:"timeLimit"`
			Options    []struct {
				OptionID string `json:"optionId"`
			} `json:"options"`
		}
		json.Unmarshal(f.Data, &q)
		if len(q.Options) == 0 {
			return false, nil
		}
		think := rand.Float64() * float64(q.TimeLimit) / 2
		time.Sleep(time.Duration(think * float64(time.Second)))
		b.pending[q.QuestionID] = time.Now()
		b.send("player:answer", map[string]any{
			"roomId":              b.room,
			"playerId":            b.id,
			"questionId":          q.QuestionID,
			"optionId":            q.Options[rand.IntN(len(q.Options))].OptionID,
			"responseTimeSeconds": think,
		})
	case "player:answered":
		var a struct {
			PlayerID   string `json:"playerId"`
			QuestionID string `json:"questionId"`
		}
		json.Unmarshal(f.Data, &a)
		if sent, ok := b.pending[a.QuestionID]; ok && a.PlayerID == b.id {
			delete(b.pending, a.QuestionID)
			atomic.AddInt64(&b.stats.answered, 1)
			b.stats.observe(time.Since(sent))
		}
	case "game:finished":
		atomic.AddInt64(&b.stats.finished, 1)
		return true, nil
	case "error":
		var e struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		json.Unmarshal(f.Data, &e)
		return true, fmt.Errorf("server error %s: %s", e.Code, e.Message)
	}
	return false, nil
}

func (b *bot) send(typ string, data any) {
	msg, _ := json.Marshal(map[string]any{"type": typ, "data": data})
	if err := b.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		atomic.AddInt64(&b.stats.errors, 1)
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
