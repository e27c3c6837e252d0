package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"lobsim/config"
	"lobsim/engine"
)

const (
	defaultDepth      = 10
	defaultTradeLimit = 100
	subscriberBuffer  = 32
)

type server struct {
	matcher    *engine.Matcher
	gatherer   prometheus.Gatherer
	tradeHub   *hub[engine.Trade]
	bookHub    *hub[engine.BookView]
	botTrades  chan engine.Trade
	upgrader   websocket.Upgrader
	authToken  string
	corsOrigin string
	log        *zap.Logger
}

type bookResponse struct {
	Depth  engine.DepthSnapshot `json:"depth"`
	Mid    float64              `json:"mid"`
	HasMid bool                 `json:"hasMid"`
}

type outboundMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func newServer(m *engine.Matcher, gatherer prometheus.Gatherer, cfg config.ServerConfig, logger *zap.Logger) *server {
	if logger == nil {
		logger = zap.NewNop()
	}
	buffer := cfg.StreamBuffer
	if buffer < 1 {
		buffer = subscriberBuffer
	}
	s := &server{
		matcher:    m,
		gatherer:   gatherer,
		tradeHub:   newHub[engine.Trade](),
		bookHub:    newHub[engine.BookView](),
		botTrades:  make(chan engine.Trade, buffer),
		upgrader:   websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		authToken:  cfg.AuthToken,
		corsOrigin: cfg.AllowedOrigin,
		log:        logger,
	}

	go s.consumeTrades()
	go s.consumeBookUpdates()
	return s
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/book", s.withCORS(s.withAuth(http.HandlerFunc(s.handleBook))))
	mux.Handle("/stats", s.withCORS(s.withAuth(http.HandlerFunc(s.handleStats))))
	mux.Handle("/trades", s.withCORS(s.withAuth(http.HandlerFunc(s.handleTrades))))
	mux.Handle("/ws/trades", s.withCORS(s.withAuth(http.HandlerFunc(s.handleTradeStream))))
	mux.Handle("/ws/book", s.withCORS(s.withAuth(http.HandlerFunc(s.handleBookStream))))
	mux.Handle("/metrics", s.withAuth(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	return mux
}

func (s *server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.corsOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.authToken == "" {
			next.ServeHTTP(w, r)
			return
		}

		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if token != s.authToken {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte("missing or invalid token"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *server) handleBook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	depth, err := intParam(r, "depth", defaultDepth)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var resp bookResponse
	err = s.matcher.Query(func(b *engine.OrderBook) {
		resp.Depth = b.Depth(depth)
		resp.Mid, resp.HasMid = b.MidPrice()
	})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	stats, err := s.matcher.Stats()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *server) handleTrades(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit, err := intParam(r, "limit", defaultTradeLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	trades, err := s.matcher.RecentTrades(limit)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, trades)
}

func (s *server) handleTradeStream(w http.ResponseWriter, r *http.Request) {
	sub := s.tradeHub.Subscribe(subscriberBuffer)
	defer s.tradeHub.Unsubscribe(sub)
	stream(s, w, r, sub, "trade")
}

func (s *server) handleBookStream(w http.ResponseWriter, r *http.Request) {
	sub := s.bookHub.Subscribe(subscriberBuffer)
	defer s.bookHub.Unsubscribe(sub)
	stream(s, w, r, sub, "book")
}

// stream upgrades the request and relays sub until either side goes away.
// The subscription is taken before the upgrade so nothing published after
// the handshake is missed.
func stream[T any](s *server, w http.ResponseWriter, r *http.Request, sub *subscription[T], kind string) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case v, ok := <-sub.ch:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "book stopped"), time.Now().Add(time.Second))
				return
			}
			if err := conn.WriteJSON(outboundMessage{Type: kind, Data: v}); err != nil {
				s.log.Debug("websocket write failed", zap.String("stream", kind), zap.Error(err))
				return
			}
		}
	}
}

// consumeTrades fans the matcher's trade stream out to websocket
// subscribers and the bot supervisor.
func (s *server) consumeTrades() {
	defer close(s.botTrades)
	defer s.tradeHub.Close()
	for trade := range s.matcher.Trades() {
		s.tradeHub.Broadcast(trade)
		select {
		case s.botTrades <- trade:
		default:
		}
	}
}

func (s *server) consumeBookUpdates() {
	defer s.bookHub.Close()
	for view := range s.matcher.BookUpdates() {
		s.bookHub.Broadcast(view)
	}
}

// runLiquidity drives the book's liquidity provider once per tick, stamping
// each call on the provider's interval grid.
func (s *server) runLiquidity(ctx context.Context, every time.Duration, interval int64) {
	if every <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	var n int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n++
			if added := s.matcher.InjectLiquidity(n * interval); added > 0 {
				s.log.Debug("liquidity injected", zap.Int("quotes", added))
			}
		}
	}
}

func intParam(r *http.Request, key string, fallback int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", key)
	}
	return v, nil
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
