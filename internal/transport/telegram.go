package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/watchhound/telewatch/internal/logger"
)

const telegramAPIBase = "https://api.telegram.org"

// Telegram implements Transport against the Telegram Bot HTTP API:
// sendMessage for outbound, long-polling getUpdates for inbound.
type Telegram struct {
	botToken string
	chatID   string
	client   *http.Client
	log      logger.Logger

	ch     chan Inbound
	mu     sync.Mutex
	offset int64
}

// NewTelegram constructs a Telegram transport. Call Run in a goroutine
// to start the inbound long-poll loop.
func NewTelegram(botToken, chatID string, log logger.Logger) *Telegram {
	return &Telegram{
		botToken: botToken,
		chatID:   chatID,
		client:   &http.Client{Timeout: 30 * time.Second},
		log:      log,
		ch:       make(chan Inbound, 16),
	}
}

type sendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

// Send implements Transport, splitting text at MaxMessageLen line
// boundaries and sending each chunk as a separate message.
func (t *Telegram) Send(ctx context.Context, text string) error {
	for _, chunk := range Split(text) {
		if err := t.sendOne(ctx, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (t *Telegram) sendOne(ctx context.Context, text string) error {
	body, err := json.Marshal(sendMessageRequest{ChatID: t.chatID, Text: text})
	if err != nil {
		return fmt.Errorf("telegram: marshal: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", telegramAPIBase, t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("telegram: send returned status %d", resp.StatusCode)
	}
	return nil
}

// Receive implements Transport.
func (t *Telegram) Receive() <-chan Inbound {
	return t.ch
}

type getUpdatesResponse struct {
	OK     bool `json:"ok"`
	Result []struct {
		UpdateID int64 `json:"update_id"`
		Message  struct {
			Text string `json:"text"`
		} `json:"message"`
	} `json:"result"`
}

// Run long-polls getUpdates until ctx is cancelled, delivering any
// message text onto the Receive channel. Callers run this in its own
// goroutine.
func (t *Telegram) Run(ctx context.Context) {
	defer close(t.ch)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		updates, err := t.poll(ctx)
		if err != nil {
			if t.log != nil {
				t.log.WithField("error", err.Error()).Warn("telegram poll failed")
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}

		for _, u := range updates.Result {
			t.mu.Lock()
			if u.UpdateID >= t.offset {
				t.offset = u.UpdateID + 1
			}
			t.mu.Unlock()
			if u.Message.Text != "" {
				select {
				case t.ch <- Inbound{Text: u.Message.Text}:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

func (t *Telegram) poll(ctx context.Context) (getUpdatesResponse, error) {
	t.mu.Lock()
	offset := t.offset
	t.mu.Unlock()

	url := fmt.Sprintf("%s/bot%s/getUpdates?timeout=20&offset=%s", telegramAPIBase, t.botToken, strconv.FormatInt(offset, 10))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return getUpdatesResponse{}, err
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return getUpdatesResponse{}, err
	}
	defer resp.Body.Close()

	var out getUpdatesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return getUpdatesResponse{}, err
	}
	return out, nil
}

var _ Transport = (*Telegram)(nil)
