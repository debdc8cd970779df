// Package feed adapts push and polled market data sources to MarketStream.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"PowerDesk/internal/domain/models"
	drepo "PowerDesk/internal/domain/repository"
	"PowerDesk/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

var ErrNotConnected = errors.New("feed: not connected")

// WSStream is a MarketStream backed by a WebSocket price feed.
type WSStream struct {
	log            *logger.Logger
	apiKey         string
	url            string
	regions        []string
	reconnectDelay time.Duration
	pingInterval   time.Duration

	mu        sync.Mutex // guards conn writes and connected
	conn      *websocket.Conn
	connected bool
}

func NewWSStream(log *logger.Logger, feedURL, apiKey string, regions []string, reconnectDelay, pingInterval time.Duration) *WSStream {
	return &WSStream{
		log:            log,
		apiKey:         apiKey,
		url:            feedURL,
		regions:        regions,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
	}
}

func (c *WSStream) Connect(ctx context.Context) error {
	u, err := url.Parse(c.url)
	if err != nil {
		return fmt.Errorf("feed url: %w", err)
	}
	if c.apiKey != "" {
		q := u.Query()
		q.Set("token", c.apiKey)
		u.RawQuery = q.Encode()
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("feed connect: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()
	c.log.Info("market feed connected", logger.String("url", c.url))
	return nil
}

type subscribeMessage struct {
	Type   string `json:"type"`
	Region string `json:"region"`
}

// Subscribe asks for every configured region.
func (c *WSStream) Subscribe(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || !c.connected {
		return ErrNotConnected
	}
	for _, r := range c.regions {
		if err := c.conn.WriteJSON(subscribeMessage{Type: "subscribe", Region: r}); err != nil {
			return fmt.Errorf("subscribe %s: %w", r, err)
		}
		c.log.Debug("market feed subscribed", logger.String("region", r))
	}
	return nil
}

type wsPrice struct {
	Region string          `json:"region"`
	Price  decimal.Decimal `json:"price"`
	Volume float64         `json:"volume"`
	T      int64           `json:"t"` // ms
}

type wsMessage struct {
	Type string    `json:"type"`
	Data []wsPrice `json:"data"`
}

// Read streams prices until the context ends or the connection fails.
// Ticks are dropped when the consumer falls behind.
func (c *WSStream) Read(ctx context.Context) (<-chan *models.MarketPrice, <-chan error) {
	prices := make(chan *models.MarketPrice, 1024)
	errs := make(chan error, 1)

	go func() {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.mu.Lock()
				if c.conn != nil {
					_ = c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
				}
				c.mu.Unlock()
			}
		}
	}()

	go func() {
		defer close(prices)
		defer close(errs)
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			errs <- ErrNotConnected
			return
		}
		for {
			if ctx.Err() != nil {
				return
			}
			_, b, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					errs <- fmt.Errorf("feed read: %w", err)
				}
				return
			}
			var m wsMessage
			if err := json.Unmarshal(b, &m); err != nil || m.Type != "price" {
				continue
			}
			for _, d := range m.Data {
				p := &models.MarketPrice{
					Region:    d.Region,
					Timestamp: time.UnixMilli(d.T).UTC(),
					Price:     d.Price,
					Volume:    d.Volume,
					Source:    models.SourceFeed,
				}
				select {
				case prices <- p:
				default:
				}
			}
		}
	}()

	return prices, errs
}

func (c *WSStream) Reconnect(ctx context.Context) error {
	_ = c.Close()
	select {
	case <-time.After(c.reconnectDelay):
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

func (c *WSStream) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

func (c *WSStream) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

var _ drepo.MarketStream = (*WSStream)(nil)
