package market

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10 // must be less than pongWait
	reconnectGap = 5 * time.Second

	// A streamed price older than this is considered stale and ignored.
	priceStaleAfter = 30 * time.Second
)

// TradeStream maintains a websocket subscription to the aggTrade stream of
// one symbol and caches the latest trade price. The connection is re-dialed
// after any failure until Stop is called.
type TradeStream struct {
	wsBaseURL string
	symbol    string
	logger    *zap.SugaredLogger

	mu        sync.RWMutex
	lastPrice float64
	lastSeen  time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	doneCh   chan struct{}
}

func NewTradeStream(wsBaseURL, symbol string, logger *zap.SugaredLogger) *TradeStream {
	return &TradeStream{
		wsBaseURL: wsBaseURL,
		symbol:    symbol,
		logger:    logger,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Price returns the cached trade price. ok is false until the first message
// arrives and turns false again if the feed goes stale.
func (s *TradeStream) Price() (price float64, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastSeen.IsZero() || time.Since(s.lastSeen) > priceStaleAfter {
		return 0, false
	}
	return s.lastPrice, true
}

// Start runs the connect/read/reconnect loop in its own goroutine.
func (s *TradeStream) Start() {
	go s.run()
}

// Stop closes the stream and waits for the loop to exit.
func (s *TradeStream) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.doneCh
}

func (s *TradeStream) run() {
	defer close(s.doneCh)
	for {
		select {
		case <-s.stopCh:
			s.logger.Infow("trade stream stopped", "symbol", s.symbol)
			return
		default:
		}

		conn, err := s.dial()
		if err != nil {
			s.logger.Warnw("trade stream dial failed, retrying",
				"symbol", s.symbol, "error", err)
			s.sleep(reconnectGap)
			continue
		}

		s.logger.Infow("trade stream connected", "symbol", s.symbol)
		if err := s.readLoop(conn); err != nil {
			s.logger.Warnw("trade stream disconnected",
				"symbol", s.symbol, "error", err)
		}
		conn.Close()

		select {
		case <-s.stopCh:
			return
		default:
			s.sleep(reconnectGap)
		}
	}
}

func (s *TradeStream) dial() (*websocket.Conn, error) {
	wsURL := fmt.Sprintf("%s/ws/%s@aggTrade", s.wsBaseURL, strings.ToLower(s.symbol))
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial %s: %w", wsURL, err)
	}
	return conn, nil
}

// readLoop blocks on the connection until it breaks or Stop is called. The
// ping goroutine keeps the read deadline moving and tears the connection down
// on Stop so a read blocked on a quiet stream returns immediately.
func (s *TradeStream) readLoop(conn *websocket.Conn) error {
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	pingTicker := time.NewTicker(pingPeriod)
	defer pingTicker.Stop()

	pingStop := make(chan struct{})
	defer close(pingStop)

	go func() {
		for {
			select {
			case <-pingTicker.C:
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-pingStop:
				return
			case <-s.stopCh:
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				conn.Close()
				return
			}
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-s.stopCh:
				return nil
			default:
			}
			return fmt.Errorf("read message: %w", err)
		}

		var trade struct {
			Price json.Number `json:"p"`
		}
		if err := json.Unmarshal(message, &trade); err != nil {
			s.logger.Warnw("failed to parse trade message", "error", err)
			continue
		}
		price, err := trade.Price.Float64()
		if err != nil || price <= 0 {
			continue
		}

		s.mu.Lock()
		s.lastPrice = price
		s.lastSeen = time.Now()
		s.mu.Unlock()
	}
}

// sleep waits d or returns early on Stop.
func (s *TradeStream) sleep(d time.Duration) {
	select {
	case <-time.After(d):
	case <-s.stopCh:
	}
}
