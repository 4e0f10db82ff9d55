// Package blockwatch streams new block headers over a WebSocket subscription.
// It is purely observational: the watcher logs heads as they arrive and keeps
// a small tally, and any failure degrades to no watching at all.
package blockwatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	dialTimeout  = 5 * time.Second
	writeTimeout = 5 * time.Second
)

// Head is one new-block notification.
type Head struct {
	Number    uint64
	Hash      string
	GasUsed   uint64
	Timestamp time.Time
}

// Watcher subscribes to eth_subscribe("newHeads") and records every header
// until stopped.
type Watcher struct {
	url    string
	logger *slog.Logger

	mu    sync.Mutex
	heads []Head

	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a watcher for the given WebSocket endpoint.
func New(url string, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		url:    url,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Start dials the endpoint and subscribes. A failed dial or subscribe returns
// an error; the caller is expected to log it and carry on without the watcher.
func (w *Watcher) Start(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, _, err := dialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return fmt.Errorf("websocket dial failed: %w", err)
	}

	sub := map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "eth_subscribe",
		"params":  []any{"newHeads"},
	}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return fmt.Errorf("subscribe failed: %w", err)
	}

	// First frame is the subscription confirmation
	var confirm struct {
		Result string          `json:"result"`
		Error  json.RawMessage `json:"error"`
	}
	if err := conn.ReadJSON(&confirm); err != nil {
		conn.Close()
		return fmt.Errorf("subscribe response failed: %w", err)
	}
	if len(confirm.Error) > 0 {
		conn.Close()
		return fmt.Errorf("subscribe rejected: %s", confirm.Error)
	}

	w.logger.Info("Block watcher subscribed",
		slog.String("url", w.url),
		slog.String("subscription", confirm.Result),
	)

	w.wg.Add(1)
	go w.readLoop(conn)
	return nil
}

// Stop ends the subscription and waits for the read loop to exit.
func (w *Watcher) Stop() {
	close(w.done)
	w.wg.Wait()
}

// Heads returns a copy of the headers seen so far.
func (w *Watcher) Heads() []Head {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Head, len(w.heads))
	copy(out, w.heads)
	return out
}

func (w *Watcher) readLoop(conn *websocket.Conn) {
	defer w.wg.Done()
	defer conn.Close()

	// Unblock ReadJSON when Stop is called
	go func() {
		<-w.done
		conn.Close()
	}()

	for {
		var msg struct {
			Params struct {
				Result struct {
					Number    string `json:"number"`
					Hash      string `json:"hash"`
					GasUsed   string `json:"gasUsed"`
					Timestamp string `json:"timestamp"`
				} `json:"result"`
			} `json:"params"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			select {
			case <-w.done:
			default:
				w.logger.Warn("Block watcher stopped", slog.String("err", err.Error()))
			}
			return
		}

		head := Head{
			Number:    parseHexUint(msg.Params.Result.Number),
			Hash:      msg.Params.Result.Hash,
			GasUsed:   parseHexUint(msg.Params.Result.GasUsed),
			Timestamp: time.Unix(int64(parseHexUint(msg.Params.Result.Timestamp)), 0),
		}
		if head.Number == 0 && head.Hash == "" {
			continue
		}

		w.mu.Lock()
		w.heads = append(w.heads, head)
		w.mu.Unlock()

		w.logger.Debug("New block",
			slog.Uint64("number", head.Number),
			slog.Uint64("gasUsed", head.GasUsed),
		)
	}
}

func parseHexUint(s string) uint64 {
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return 0
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0
	}
	return v
}
