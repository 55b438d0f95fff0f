// Package greenapi adapts the Green API WhatsApp gateway to the abstract
// transport surface. Inbound messages arrive through the receiveNotification
// queue; each consumed notification is acknowledged with deleteNotification.
package greenapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/medreach/clinic-reminder-bot/internal/transport"
	"github.com/medreach/clinic-reminder-bot/pkg/logging"
)

var tracer = otel.Tracer("clinic.internal.transport.greenapi")

// ErrUnauthorized signals invalid instance credentials. The poll loop treats
// it as fatal and stops instead of retrying.
var ErrUnauthorized = errors.New("greenapi: unauthorized")

const (
	pollBackoffBase = 2 * time.Second
	pollBackoffMax  = time.Minute
)

// Client talks to one Green API WhatsApp instance. Identities are chat ids in
// the gateway's form, e.g. "79161234567@c.us".
type Client struct {
	baseURL     string
	instanceID  string
	token       string
	httpClient  *http.Client
	backoffBase time.Duration
	backoffMax  time.Duration
	logger      *logging.Logger
}

func NewClient(baseURL, instanceID, token string, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	if baseURL == "" {
		baseURL = "https://api.green-api.com"
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		instanceID:  instanceID,
		token:       token,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		backoffBase: pollBackoffBase,
		backoffMax:  pollBackoffMax,
		logger:      logger,
	}
}

var _ transport.Sender = (*Client)(nil)

// Send posts one outbound WhatsApp message. Keyboard hints in opts are
// ignored: the gateway renders plain text only.
func (c *Client) Send(ctx context.Context, identity, text string, opts *transport.SendOptions) error {
	if identity == "" {
		return errors.New("greenapi: identity required")
	}

	ctx, span := tracer.Start(ctx, "greenapi.send")
	defer span.End()
	span.SetAttributes(attribute.String("clinic.chat_id", identity))

	payload, err := json.Marshal(map[string]string{
		"chatId":  identity,
		"message": text,
	})
	if err != nil {
		return fmt.Errorf("greenapi: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL("sendMessage"), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("greenapi: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		err := fmt.Errorf("greenapi send failed: status %d, body: %s", resp.StatusCode, body)
		span.RecordError(err)
		return err
	}
	return nil
}

// notification mirrors the subset of the receiveNotification body the bot
// consumes.
type notification struct {
	ReceiptID int64 `json:"receiptId"`
	Body      struct {
		TypeWebhook string `json:"typeWebhook"`
		SenderData  struct {
			ChatID     string `json:"chatId"`
			SenderName string `json:"senderName"`
		} `json:"senderData"`
		MessageData struct {
			TypeMessage     string `json:"typeMessage"`
			TextMessageData struct {
				TextMessage string `json:"textMessage"`
			} `json:"textMessageData"`
			ExtendedTextMessageData struct {
				Text string `json:"text"`
			} `json:"extendedTextMessageData"`
		} `json:"messageData"`
	} `json:"body"`
}

// Poll consumes the notification queue until ctx is canceled. Transient
// failures back off exponentially up to pollBackoffMax; auth failures are
// returned immediately so the caller can stop the transport.
func (c *Client) Poll(ctx context.Context, handle func(transport.InboundEvent)) error {
	backoff := c.backoffBase
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := c.receiveNotification(ctx)
		if err != nil {
			if errors.Is(err, ErrUnauthorized) {
				c.logger.Error("greenapi poll stopped: credentials rejected", "error", err)
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("greenapi poll failed, backing off", "error", err, "backoff", backoff)
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

		if n == nil {
			continue
		}
		if ev, ok := mapNotification(*n); ok {
			handle(ev)
		}
		if err := c.deleteNotification(ctx, n.ReceiptID); err != nil {
			c.logger.Warn("greenapi delete notification failed", "error", err, "receipt_id", n.ReceiptID)
		}
	}
}

// receiveNotification returns the next queued notification, or nil when the
// queue is empty.
func (c *Client) receiveNotification(ctx context.Context) (*notification, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.methodURL("receiveNotification"), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("greenapi: receive: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		return nil, fmt.Errorf("greenapi: receive status %d: %s", resp.StatusCode, body)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("greenapi: read notification: %w", err)
	}
	// Empty queue is reported as a literal null body.
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, nil
	}

	var n notification
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, fmt.Errorf("greenapi: decode notification: %w", err)
	}
	return &n, nil
}

func (c *Client) deleteNotification(ctx context.Context, receiptID int64) error {
	url := fmt.Sprintf("%s/%d", c.methodURL("deleteNotification"), receiptID)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("greenapi: delete: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("greenapi: delete status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) methodURL(method string) string {
	return fmt.Sprintf("%s/waInstance%s/%s/%s", c.baseURL, c.instanceID, method, c.token)
}

// mapNotification converts an incoming-message notification to an
// InboundEvent. Group chats, outbound echoes and non-text payloads are
// dropped.
func mapNotification(n notification) (transport.InboundEvent, bool) {
	if n.Body.TypeWebhook != "incomingMessageReceived" {
		return transport.InboundEvent{}, false
	}
	chatID := n.Body.SenderData.ChatID
	if !strings.HasSuffix(chatID, "@c.us") {
		return transport.InboundEvent{}, false
	}

	var text string
	switch n.Body.MessageData.TypeMessage {
	case "textMessage":
		text = n.Body.MessageData.TextMessageData.TextMessage
	case "extendedTextMessage":
		text = n.Body.MessageData.ExtendedTextMessageData.Text
	default:
		return transport.InboundEvent{}, false
	}
	if text == "" {
		return transport.InboundEvent{}, false
	}

	ev := transport.InboundEvent{
		Identity:    chatID,
		Transport:   transport.WhatsApp,
		DisplayName: n.Body.SenderData.SenderName,
	}
	if strings.EqualFold(strings.TrimSpace(text), "/start") {
		ev.Kind = transport.KindStart
		// WhatsApp cannot request a contact card; the sender's own phone
		// is the chat id prefix.
		ev.Contact = SenderPhone(chatID)
		return ev, true
	}
	ev.Kind = transport.KindText
	ev.Text = text
	return ev, true
}

// SenderPhone extracts the bare digits from a "digits@c.us" chat id.
func SenderPhone(chatID string) string {
	if i := strings.IndexByte(chatID, '@'); i >= 0 {
		return chatID[:i]
	}
	return chatID
}
