// Package telegram adapts the Telegram Bot API to the abstract transport
// surface: long-poll (or webhook) updates in, sendMessage out.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/medreach/clinic-reminder-bot/internal/transport"
	"github.com/medreach/clinic-reminder-bot/pkg/logging"
)

var sendTracer = otel.Tracer("clinic.internal.transport.telegram")

// ErrUnauthorized signals a rejected bot token. The poll loop treats it as
// fatal and stops instead of retrying.
var ErrUnauthorized = errors.New("telegram: unauthorized")

const (
	pollBackoffBase = 2 * time.Second
	pollBackoffMax  = time.Minute
)

// Client is a minimal Telegram Bot API client. Identities are chat ids in
// decimal string form.
type Client struct {
	token       string
	baseURL     string
	pollTimeout int
	httpClient  *http.Client
	backoffBase time.Duration
	backoffMax  time.Duration
	logger      *logging.Logger
}

// NewClient builds a Telegram client. baseURL defaults to the public Bot API.
func NewClient(token, baseURL string, pollTimeout int, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}
	if pollTimeout <= 0 {
		pollTimeout = 30
	}
	return &Client{
		token:       token,
		baseURL:     baseURL,
		pollTimeout: pollTimeout,
		httpClient: &http.Client{
			Timeout: time.Duration(pollTimeout+10) * time.Second,
		},
		backoffBase: pollBackoffBase,
		backoffMax:  pollBackoffMax,
		logger:      logger,
	}
}

var _ transport.Sender = (*Client)(nil)

// update mirrors the subset of the Bot API update object the bot consumes.
type update struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		From *struct {
			ID        int64  `json:"id"`
			FirstName string `json:"first_name"`
			Username  string `json:"username"`
		} `json:"from"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		Text    string `json:"text"`
		Contact *struct {
			PhoneNumber string `json:"phone_number"`
		} `json:"contact"`
	} `json:"message"`
}

// Send posts one message via the Bot API, retrying transient failures.
func (c *Client) Send(ctx context.Context, identity, text string, opts *transport.SendOptions) error {
	if c.token == "" {
		return errors.New("telegram: bot token missing")
	}
	if identity == "" {
		return errors.New("telegram: identity required")
	}

	ctx, span := sendTracer.Start(ctx, "telegram.send")
	defer span.End()
	span.SetAttributes(attribute.String("clinic.chat_id", identity))

	payload := map[string]interface{}{
		"chat_id": identity,
		"text":    text,
	}
	if opts != nil {
		if opts.Markdown {
			payload["parse_mode"] = "Markdown"
		}
		if markup := replyMarkup(opts); markup != nil {
			payload["reply_markup"] = markup
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram: marshal payload: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL("sendMessage"), bytes.NewReader(body))
		if err != nil {
			lastErr = err
			break
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
		} else {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
			resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return nil
			}
			lastErr = fmt.Errorf("telegram send failed: status %d, body: %s", resp.StatusCode, respBody)
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				break
			}
		}

		if attempt < 3 {
			sleep := time.Duration(200+rand.Intn(300)) * time.Millisecond
			time.Sleep(sleep)
		}
	}

	span.RecordError(lastErr)
	c.logger.Error("telegram send failed", "error", lastErr, "chat_id", identity)
	return fmt.Errorf("telegram: send: %w", lastErr)
}

// Poll long-polls getUpdates and feeds each update to handle until ctx is
// canceled. Transient failures back off exponentially up to backoffMax; a
// rejected token is returned immediately so the caller can stop the transport.
func (c *Client) Poll(ctx context.Context, handle func(transport.InboundEvent)) error {
	var offset int64
	backoff := c.backoffBase
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		updates, err := c.getUpdates(ctx, offset)
		if err != nil {
			if errors.Is(err, ErrUnauthorized) {
				c.logger.Error("telegram poll stopped: bot token rejected", "error", err)
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("telegram poll failed, backing off", "error", err, "backoff", backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
			if backoff > c.backoffMax {
				backoff = c.backoffMax
			}
			continue
		}
		backoff = c.backoffBase

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			if ev, ok := mapUpdate(u); ok {
				handle(ev)
			}
		}
	}
}

// WebhookHandler returns an http.HandlerFunc decoding one update per request.
// Mounted on the API router when webhook mode is enabled.
func (c *Client) WebhookHandler(handle func(transport.InboundEvent)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var u update
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&u); err != nil {
			c.logger.Warn("telegram webhook: bad payload", "error", err)
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if ev, ok := mapUpdate(u); ok {
			handle(ev)
		}
		w.WriteHeader(http.StatusOK)
	}
}

func (c *Client) getUpdates(ctx context.Context, offset int64) ([]update, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"offset":  offset,
		"timeout": c.pollTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: marshal getUpdates: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL("getUpdates"), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram: getUpdates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		return nil, fmt.Errorf("telegram: getUpdates status %d: %s", resp.StatusCode, body)
	}

	var parsed struct {
		OK     bool     `json:"ok"`
		Result []update `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("telegram: decode getUpdates: %w", err)
	}
	if !parsed.OK {
		return nil, errors.New("telegram: getUpdates returned ok=false")
	}
	return parsed.Result, nil
}

func (c *Client) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
}

// mapUpdate converts a Bot API update to an InboundEvent. Non-message updates
// are dropped.
func mapUpdate(u update) (transport.InboundEvent, bool) {
	if u.Message == nil {
		return transport.InboundEvent{}, false
	}
	msg := u.Message

	ev := transport.InboundEvent{
		Identity:  strconv.FormatInt(msg.Chat.ID, 10),
		Transport: transport.Telegram,
	}
	if msg.From != nil {
		ev.DisplayName = msg.From.FirstName
		if msg.From.Username != "" {
			ev.DisplayName = "@" + msg.From.Username
		}
	}

	switch {
	case msg.Contact != nil:
		ev.Kind = transport.KindContact
		ev.Contact = msg.Contact.PhoneNumber
	case msg.Text == "/start":
		ev.Kind = transport.KindStart
	case msg.Text != "":
		ev.Kind = transport.KindText
		ev.Text = msg.Text
	default:
		return transport.InboundEvent{}, false
	}
	return ev, true
}

// replyMarkup builds the Bot API reply_markup object for the given hints.
func replyMarkup(opts *transport.SendOptions) interface{} {
	switch {
	case opts.RequestContact:
		return map[string]interface{}{
			"keyboard": [][]map[string]interface{}{{
				{"text": "Отправить номер телефона", "request_contact": true},
			}},
			"resize_keyboard": true,
		}
	case opts.YesNoKeyboard:
		return map[string]interface{}{
			"keyboard":        [][]map[string]interface{}{{{"text": "Да"}, {"text": "Нет"}}},
			"resize_keyboard": true,
		}
	case opts.RemoveKeyboard:
		return map[string]interface{}{"remove_keyboard": true}
	}
	return nil
}
