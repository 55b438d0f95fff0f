package greenapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medreach/clinic-reminder-bot/internal/transport"
)

func TestSendPostsToInstance(t *testing.T) {
	var gotPath string
	var gotBody map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`{"idMessage":"x"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "1101000001", "secret", nil)
	err := c.Send(context.Background(), "79161234567@c.us", "Здравствуйте", nil)
	require.NoError(t, err)

	assert.Equal(t, "/waInstance1101000001/sendMessage/secret", gotPath)
	assert.Equal(t, "79161234567@c.us", gotBody["chatId"])
	assert.Equal(t, "Здравствуйте", gotBody["message"])
}

func TestSendUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad token", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "1", "bad", nil)
	err := c.Send(context.Background(), "79161234567@c.us", "x", nil)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestReceiveNotificationEmptyQueue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("null"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "1", "tok", nil)
	n, err := c.receiveNotification(context.Background())
	require.NoError(t, err)
	assert.Nil(t, n)
}

func TestPollConsumesAndAcknowledges(t *testing.T) {
	const body = `{
		"receiptId": 7,
		"body": {
			"typeWebhook": "incomingMessageReceived",
			"senderData": {"chatId": "79161234567@c.us", "senderName": "Анна"},
			"messageData": {"typeMessage": "textMessage", "textMessageData": {"textMessage": "да"}}
		}
	}`

	var deleted []string
	ctx, cancel := context.WithCancel(context.Background())
	served := false

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodDelete:
			deleted = append(deleted, r.URL.Path)
			w.Write([]byte(`{"result":true}`))
		case served:
			cancel()
			w.Write([]byte("null"))
		default:
			served = true
			w.Write([]byte(body))
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "11", "tok", nil)

	var got []transport.InboundEvent
	err := c.Poll(ctx, func(ev transport.InboundEvent) { got = append(got, ev) })
	assert.ErrorIs(t, err, context.Canceled)

	require.Len(t, got, 1)
	assert.Equal(t, "79161234567@c.us", got[0].Identity)
	assert.Equal(t, transport.WhatsApp, got[0].Transport)
	assert.Equal(t, transport.KindText, got[0].Kind)
	assert.Equal(t, "да", got[0].Text)

	require.Len(t, deleted, 1)
	assert.Equal(t, "/waInstance11/deleteNotification/tok/7", deleted[0])
}

func TestPollBacksOffOnTransientErrors(t *testing.T) {
	failures := 0
	ctx, cancel := context.WithCancel(context.Background())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failures < 4 {
			failures++
			http.Error(w, "upstream flaked", http.StatusBadGateway)
			return
		}
		cancel()
		w.Write([]byte("null"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "1", "tok", nil)
	c.backoffBase = time.Millisecond
	c.backoffMax = 4 * time.Millisecond

	started := time.Now()
	err := c.Poll(ctx, func(transport.InboundEvent) { t.Fatal("handler called") })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 4, failures)
	// 1 + 2 + 4 + 4 ms of backoff, capped; well under a second even on slow CI.
	assert.Less(t, time.Since(started), time.Second)
}

func TestPollStopsOnUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad token", http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "1", "bad", nil)
	err := c.Poll(context.Background(), func(transport.InboundEvent) {
		t.Fatal("handler called")
	})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestMapNotification(t *testing.T) {
	base := func(webhook, chatID, msgType, text string) notification {
		var n notification
		n.ReceiptID = 1
		n.Body.TypeWebhook = webhook
		n.Body.SenderData.ChatID = chatID
		n.Body.MessageData.TypeMessage = msgType
		n.Body.MessageData.TextMessageData.TextMessage = text
		return n
	}

	t.Run("plain text", func(t *testing.T) {
		ev, ok := mapNotification(base("incomingMessageReceived", "79161234567@c.us", "textMessage", "нет"))
		require.True(t, ok)
		assert.Equal(t, transport.KindText, ev.Kind)
		assert.Equal(t, "нет", ev.Text)
	})

	t.Run("start carries sender phone", func(t *testing.T) {
		ev, ok := mapNotification(base("incomingMessageReceived", "79161234567@c.us", "textMessage", "/start"))
		require.True(t, ok)
		assert.Equal(t, transport.KindStart, ev.Kind)
		assert.Equal(t, "79161234567", ev.Contact)
	})

	t.Run("group chat dropped", func(t *testing.T) {
		_, ok := mapNotification(base("incomingMessageReceived", "120363000000000000@g.us", "textMessage", "да"))
		assert.False(t, ok)
	})

	t.Run("outbound echo dropped", func(t *testing.T) {
		_, ok := mapNotification(base("outgoingMessageStatus", "79161234567@c.us", "textMessage", "да"))
		assert.False(t, ok)
	})

	t.Run("non-text dropped", func(t *testing.T) {
		_, ok := mapNotification(base("incomingMessageReceived", "79161234567@c.us", "imageMessage", ""))
		assert.False(t, ok)
	})

	t.Run("extended text", func(t *testing.T) {
		n := base("incomingMessageReceived", "79161234567@c.us", "extendedTextMessage", "")
		n.Body.MessageData.ExtendedTextMessageData.Text = "5"
		ev, ok := mapNotification(n)
		require.True(t, ok)
		assert.Equal(t, "5", ev.Text)
	})
}

func TestSenderPhone(t *testing.T) {
	assert.Equal(t, "79161234567", SenderPhone("79161234567@c.us"))
	assert.Equal(t, "79161234567", SenderPhone("79161234567"))
}
