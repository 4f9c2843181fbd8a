package searchindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/psds-microservice/citizen-desk/internal/model"
	"github.com/psds-microservice/citizen-desk/pkg/logger"
)

// Client отправляет тикеты в search-service для индексации (best-effort, не блокирует бота).
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *logger.Logger
	wg         sync.WaitGroup
}

// NewClient возвращает клиент. Если baseURL пустой, вызовы IndexTicket — no-op.
func NewClient(baseURL string, log *logger.Logger) *Client {
	if log == nil {
		log = logger.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		log: log.Named("searchindex"),
	}
}

// Enabled reports whether a search service is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.baseURL != ""
}

// IndexTicketPayload — тело POST /search/index/ticket.
type IndexTicketPayload struct {
	TicketID   string   `json:"ticket_id"`
	AuthorID   int64    `json:"author_id"`
	Text       string   `json:"text"`
	Status     string   `json:"status"`
	Category   string   `json:"category,omitempty"`
	Urgent     bool     `json:"urgent"`
	Department string   `json:"department,omitempty"`
	Latitude   *float64 `json:"latitude,omitempty"`
	Longitude  *float64 `json:"longitude,omitempty"`
	CreatedAt  string   `json:"created_at"`
	UpdatedAt  string   `json:"updated_at"`
}

func payloadFor(t *model.Ticket) IndexTicketPayload {
	return IndexTicketPayload{
		TicketID:   t.TicketID,
		AuthorID:   t.AuthorID,
		Text:       t.Text,
		Status:     string(t.Status),
		Category:   string(t.Category),
		Urgent:     t.Urgent,
		Department: t.Department,
		Latitude:   t.Latitude,
		Longitude:  t.Longitude,
		CreatedAt:  t.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:  t.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// IndexTicket отправляет тикет в search-service.
func (c *Client) IndexTicket(ctx context.Context, t *model.Ticket) error {
	if !c.Enabled() {
		return nil
	}
	body, err := json.Marshal(payloadFor(t))
	if err != nil {
		return fmt.Errorf("searchindex: marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search/index/ticket", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("searchindex: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("searchindex: request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("searchindex: status %d for ticket %s", resp.StatusCode, t.TicketID)
	}
	return nil
}

// IndexTicketAsync вызывает IndexTicket в отдельной горутине.
func (c *Client) IndexTicketAsync(t *model.Ticket) {
	if !c.Enabled() {
		return
	}
	snapshot := *t
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.IndexTicket(ctx, &snapshot); err != nil {
			c.log.Warn("index ticket", zap.String("ticket_id", snapshot.TicketID), zap.Error(err))
		}
	}()
}

// Wait blocks until asynchronous indexing calls have finished.
func (c *Client) Wait() {
	if c != nil {
		c.wg.Wait()
	}
}
