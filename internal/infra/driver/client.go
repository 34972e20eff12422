// Package driver implements the Extractor interface against the external
// browser-automation driver. The driver renders the remote inbox in a real
// browser and exposes a small local HTTP surface: JSON endpoints that
// evaluate read-only extraction scripts or perform click/type actions, and
// a websocket that pushes debounced change signals whenever the watched DOM
// mutates.
package driver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/raidenlabs/inbox-bridge/internal/biz/domain"
)

// Client talks to the browser-automation driver.
type Client struct {
	baseURL string
	wsURL   string
	http    *http.Client
	logger  *zap.Logger

	changes chan struct{}

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

// NewClient creates a driver client and starts the change-signal
// subscription in the background.
func NewClient(baseURL, wsURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		baseURL: baseURL,
		wsURL:   wsURL,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
		changes: make(chan struct{}, 1),
	}
	go c.watchChanges()
	return c
}

type inboxResponse struct {
	Chats []domain.InboxEntry `json:"chats"`
}

// ExtractInbox scrapes the sidebar and returns the visible chats.
func (c *Client) ExtractInbox(ctx context.Context) ([]domain.InboxEntry, error) {
	var resp inboxResponse
	if err := c.post(ctx, "/extract/inbox", nil, &resp); err != nil {
		return nil, fmt.Errorf("extract inbox: %w", err)
	}
	return resp.Chats, nil
}

type historyRequest struct {
	ChatID string `json:"chat_id"`
	Limit  int    `json:"limit"`
}

type historyResponse struct {
	Messages []*domain.Message `json:"messages"`
}

// ExtractHistory opens a chat and scrapes up to limit messages.
func (c *Client) ExtractHistory(ctx context.Context, chatID string, limit int) ([]*domain.Message, error) {
	var resp historyResponse
	if err := c.post(ctx, "/extract/history", historyRequest{ChatID: chatID, Limit: limit}, &resp); err != nil {
		return nil, fmt.Errorf("extract history: %w", err)
	}
	for i, m := range resp.Messages {
		m.ChatID = chatID
		m.Position = i
	}
	return resp.Messages, nil
}

type sendRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type sendResponse struct {
	OK bool `json:"ok"`
}

// Send types and sends a text message into the chat.
func (c *Client) Send(ctx context.Context, chatID, text string) error {
	var resp sendResponse
	if err := c.post(ctx, "/send", sendRequest{ChatID: chatID, Text: text}, &resp); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	if !resp.OK {
		return fmt.Errorf("send: driver reported failure")
	}
	return nil
}

// Changes delivers opaque wakeup hints. The channel has capacity one;
// signals arriving while one is already pending coalesce.
func (c *Client) Changes() <-chan struct{} {
	return c.changes
}

// Close shuts down the change subscription.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("driver returned status %d", resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// watchChanges maintains the websocket subscription, reconnecting with a
// fixed backoff until Close is called. Every received frame becomes one
// coalesced wakeup hint; frame contents are ignored.
func (c *Client) watchChanges() {
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		conn, _, err := websocket.DefaultDialer.Dial(c.wsURL, nil)
		if err != nil {
			c.logger.Warn("driver change socket dial failed", zap.Error(err))
			time.Sleep(2 * time.Second)
			continue
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			conn.Close()
			return
		}
		c.conn = conn
		c.mu.Unlock()

		c.logger.Info("driver change socket connected")
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				c.mu.Lock()
				closed := c.closed
				c.conn = nil
				c.mu.Unlock()
				if closed {
					return
				}
				c.logger.Warn("driver change socket lost", zap.Error(err))
				break
			}
			select {
			case c.changes <- struct{}{}:
			default:
			}
		}
		conn.Close()
	}
}
