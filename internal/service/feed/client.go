package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"QuantDesk/internal/domain/models"
	drepo "QuantDesk/internal/domain/repository"
	applogger "QuantDesk/pkg/logger"

	"github.com/gorilla/websocket"
)

// Client implements a MarketStream over the Finnhub trade websocket,
// rolling the tick stream up into daily OHLCV bars. A bar is emitted once
// its trading day (UTC) has rolled over, so downstream only ever sees one
// finalized bar per symbol per day.
type Client struct {
	apiKey         string
	websocketURL   string
	symbols        []string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	l              *applogger.Logger

	conn      *websocket.Conn
	connected bool

	mu      sync.Mutex
	days    map[string]*dayAgg // open aggregate per symbol
	barsOut chan *models.Bar
}

// dayAgg accumulates one trading day for one symbol.
type dayAgg struct {
	day    string
	open   float64
	high   float64
	low    float64
	close  float64
	volume float64
}

func New(apiKey, websocketURL string, symbols []string, reconnectDelay, pingInterval time.Duration, l *applogger.Logger) drepo.MarketStream {
	if l == nil {
		l = applogger.Nop()
	}
	return &Client{
		apiKey:         apiKey,
		websocketURL:   websocketURL,
		symbols:        symbols,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		l:              l,
		days:           make(map[string]*dayAgg),
		barsOut:        make(chan *models.Bar, 256),
	}
}

// Connect establishes the websocket connection.
func (c *Client) Connect(ctx context.Context) error {
	u := fmt.Sprintf("%s?token=%s", c.websocketURL, c.apiKey)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("feed connect: %w", err)
	}
	c.conn = conn
	c.connected = true
	c.l.Info("feed connected", applogger.Strings("symbols", c.symbols))
	return nil
}

// Subscribe subscribes to the configured symbols.
func (c *Client) Subscribe(ctx context.Context) error {
	if c.conn == nil || !c.connected {
		return fmt.Errorf("feed not connected")
	}
	for _, s := range c.symbols {
		msg := map[string]string{"type": "subscribe", "symbol": s}
		if err := c.conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("subscribe %s: %w", s, err)
		}
	}
	return nil
}

type wsTrade struct {
	S string  `json:"s"`
	P float64 `json:"p"`
	V float64 `json:"v"`
	T int64   `json:"t"` // ms
}

type wsMessage struct {
	Type string    `json:"type"`
	Data []wsTrade `json:"data"`
}

// Read streams finalized daily bars and errors.
func (c *Client) Read(ctx context.Context) (<-chan *models.Bar, <-chan error) {
	errs := make(chan error, 1)

	go func() {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if c.conn != nil {
					_ = c.conn.WriteMessage(websocket.PingMessage, nil)
				}
			}
		}
	}()

	go func() {
		defer close(errs)
		for {
			select {
			case <-ctx.Done():
				return
			default:
				if c.conn == nil {
					errs <- fmt.Errorf("feed conn nil")
					return
				}
				_, b, err := c.conn.ReadMessage()
				if err != nil {
					errs <- fmt.Errorf("feed read: %w", err)
					return
				}
				var m wsMessage
				if err := json.Unmarshal(b, &m); err != nil {
					continue // non-trade frame
				}
				if m.Type != "trade" {
					continue
				}
				for _, d := range m.Data {
					c.ingestTick(d)
				}
			}
		}
	}()

	return c.barsOut, errs
}

// ingestTick folds one trade into the symbol's open day aggregate,
// emitting the previous day's bar on rollover.
func (c *Client) ingestTick(t wsTrade) {
	if t.S == "" || t.P <= 0 {
		return
	}
	day := time.UnixMilli(t.T).UTC().Format("2006-01-02")

	c.mu.Lock()
	agg, ok := c.days[t.S]
	if ok && agg.day != day {
		bar := agg.toBar(t.S)
		c.days[t.S] = newDayAgg(day, t)
		c.mu.Unlock()
		c.emit(bar)
		return
	}
	if !ok {
		c.days[t.S] = newDayAgg(day, t)
		c.mu.Unlock()
		return
	}
	agg.close = t.P
	agg.volume += t.V
	if t.P > agg.high {
		agg.high = t.P
	}
	if t.P < agg.low {
		agg.low = t.P
	}
	c.mu.Unlock()
}

func newDayAgg(day string, t wsTrade) *dayAgg {
	return &dayAgg{day: day, open: t.P, high: t.P, low: t.P, close: t.P, volume: t.V}
}

func (a *dayAgg) toBar(symbol string) *models.Bar {
	return &models.Bar{
		Symbol: symbol,
		Date:   a.day,
		Open:   a.open,
		High:   a.high,
		Low:    a.low,
		Close:  a.close,
		Volume: a.volume,
	}
}

func (c *Client) emit(b *models.Bar) {
	select {
	case c.barsOut <- b:
	default:
		c.l.Warn("feed bar dropped on backpressure", applogger.String("symbol", b.Symbol))
	}
}

// Flush emits every open day aggregate as a provisional bar. Called on
// shutdown so the current day is not lost.
func (c *Client) Flush() {
	c.mu.Lock()
	open := make([]*models.Bar, 0, len(c.days))
	for sym, agg := range c.days {
		open = append(open, agg.toBar(sym))
	}
	c.days = make(map[string]*dayAgg)
	c.mu.Unlock()
	for _, b := range open {
		c.emit(b)
	}
}

// Reconnect closes and reconnects with the configured delay.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	time.Sleep(c.reconnectDelay)
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

// Close closes the websocket connection.
func (c *Client) Close() error {
	c.connected = false
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// IsConnected reports connection status.
func (c *Client) IsConnected() bool { return c.connected }
