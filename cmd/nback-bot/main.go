// Package main - nback-bot
// A websocket client that plays N-back games against the server, for demos
// and soak testing. Several bots can share one server session.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/MRamiBalles/NBackTrainer/server/internal/events"
	"github.com/MRamiBalles/NBackTrainer/server/internal/nback"
	"github.com/MRamiBalles/NBackTrainer/server/internal/network"
)

// Config for the bot
type Config struct {
	ServerURL string
	Clients   int
	Games     int
	Accuracy  float64
	GameType  string
	Timeout   time.Duration
}

// Stats tracks what the bots saw.
type Stats struct {
	MessagesSent     int64
	MessagesReceived int64
	Errors           int64

	mu     sync.Mutex
	scores []int
}

func (s *Stats) addScore(score int) {
	s.mu.Lock()
	s.scores = append(s.scores, score)
	s.mu.Unlock()
}

var cfg Config

var rootCmd = &cobra.Command{
	Use:          "nback-bot",
	Short:        "Play N-back games against a running nback-server",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Accuracy < 0 || cfg.Accuracy > 1 {
			return fmt.Errorf("accuracy must be within [0,1], got %v", cfg.Accuracy)
		}

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
		defer cancel()
		ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
		defer stop()

		fmt.Fprintf(cmd.OutOrStdout(), "Server: %s  Clients: %d  Games: %d  Accuracy: %.2f\n",
			cfg.ServerURL, cfg.Clients, cfg.Games, cfg.Accuracy)
		stats := runBots(ctx, cfg)
		printResults(cmd, stats)
		return nil
	},
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&cfg.ServerURL, "url", "ws://localhost:8080/ws", "WebSocket server URL")
	f.IntVar(&cfg.Clients, "clients", 1, "number of concurrent bots")
	f.IntVar(&cfg.Games, "games", 3, "games the first bot starts")
	f.Float64Var(&cfg.Accuracy, "accuracy", 0.8, "probability of a correct answer")
	f.StringVar(&cfg.GameType, "game-type", "", "game type to select before playing")
	f.DurationVar(&cfg.Timeout, "timeout", 5*time.Minute, "give up after this long")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runBots(ctx context.Context, config Config) *Stats {
	stats := &Stats{}
	var wg sync.WaitGroup
	for i := 0; i < config.Clients; i++ {
		wg.Add(1)
		go func(clientID int) {
			defer wg.Done()
			// Only the first bot drives the session; the rest shadow it.
			runClient(ctx, clientID, clientID == 0, config, stats)
		}(i)

		// Stagger client starts to avoid thundering herd
		time.Sleep(10 * time.Millisecond)
	}
	wg.Wait()
	return stats
}

func runClient(ctx context.Context, clientID int, driver bool, config Config, stats *Stats) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, config.ServerURL, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bot %d: connection failed: %v\n", clientID, err)
		atomic.AddInt64(&stats.Errors, 1)
		return
	}
	defer conn.Close()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	send := func(a network.PlayerAction) bool {
		if err := conn.WriteJSON(a); err != nil {
			atomic.AddInt64(&stats.Errors, 1)
			return false
		}
		atomic.AddInt64(&stats.MessagesSent, 1)
		return true
	}

	if driver {
		if config.GameType != "" && !send(network.PlayerAction{Type: network.ActionSetGameType, GameType: config.GameType}) {
			return
		}
		if !send(network.PlayerAction{Type: network.ActionStart}) {
			return
		}
	}

	p := newPlayer(rand.New(rand.NewSource(time.Now().UnixNano()+int64(clientID))), config.Accuracy)
	played := 0
	for {
		var msg network.ServerMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() == nil {
				atomic.AddInt64(&stats.Errors, 1)
			}
			return
		}
		atomic.AddInt64(&stats.MessagesReceived, 1)
		if msg.Type != network.MessageEvent || msg.Event == nil {
			continue
		}

		switch msg.Event.Type {
		case events.EventTypeSessionStarted:
			var started nback.SessionStartedPayload
			if decodePayload(msg.Event, &started) == nil {
				p.reset(started.NBack)
			}
		case events.EventTypeStimulusShown:
			var stim nback.StimulusPayload
			if decodePayload(msg.Event, &stim) != nil {
				continue
			}
			if p.observe(stim.Index, stim.Value) && !send(network.PlayerAction{Type: network.ActionMatch}) {
				return
			}
		case events.EventTypeSessionEnded:
			var summary nback.Summary
			if decodePayload(msg.Event, &summary) != nil || !summary.Completed {
				continue
			}
			stats.addScore(summary.Score)
			played++
			if played >= config.Games {
				return
			}
			if driver && !send(network.PlayerAction{Type: network.ActionStart}) {
				return
			}
		}
	}
}

// decodePayload re-decodes the generic payload of a received event.
func decodePayload(e *events.GameEvent, dst interface{}) error {
	raw, err := json.Marshal(e.Payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}

func printResults(cmd *cobra.Command, stats *Stats) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Messages Sent:     %d\n", atomic.LoadInt64(&stats.MessagesSent))
	fmt.Fprintf(out, "Messages Received: %d\n", atomic.LoadInt64(&stats.MessagesReceived))
	fmt.Fprintf(out, "Errors:            %d\n", atomic.LoadInt64(&stats.Errors))

	stats.mu.Lock()
	defer stats.mu.Unlock()
	fmt.Fprintf(out, "Scores:            %v\n", stats.scores)
}
