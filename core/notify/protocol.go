package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Pusher channel protocol event names.
const (
	evConnectionEstablished = "pusher:connection_established"
	evSubscribe             = "pusher:subscribe"
	evSubscriptionSucceeded = "pusher_internal:subscription_succeeded"
	evSubscriptionError     = "pusher:subscription_error"
	evError                 = "pusher:error"
	evPing                  = "pusher:ping"
	evPong                  = "pusher:pong"
	evDeposit               = "deposit"
)

const protocolVersion = "7"

// frame is one protocol message. Data is either a JSON object or a string that
// itself holds JSON, depending on the sender.
type frame struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type established struct {
	SocketID        string `json:"socket_id"`
	ActivityTimeout int    `json:"activity_timeout"`
}

type subscribeData struct {
	Auth        string `json:"auth"`
	Channel     string `json:"channel"`
	ChannelData string `json:"channel_data,omitempty"`
}

type protocolError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Deposit is the payload of a deposit event.
type Deposit struct {
	Amount        json.Number `json:"amount"`
	Network       string      `json:"network"`
	TransactionID string      `json:"transactionId"`
}

// decodeData unmarshals frame data, unwrapping a string-encoded payload first.
func decodeData(raw json.RawMessage, v any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return fmt.Errorf("notify: empty event data")
	}
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return fmt.Errorf("notify: decode string data: %w", err)
		}
		raw = []byte(inner)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("notify: decode data: %w", err)
	}
	return nil
}

// socketURL builds the application endpoint. host overrides the cluster host and
// may carry its own scheme, e.g. ws://127.0.0.1:6001.
func socketURL(key, cluster, host string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("notify: empty app key")
	}
	base := host
	if base == "" {
		if cluster == "" {
			return "", fmt.Errorf("notify: cluster or host is required")
		}
		base = "ws-" + cluster + ".pusher.com"
	}
	if !strings.Contains(base, "://") {
		base = "wss://" + base
	}
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", fmt.Errorf("notify: parse host: %w", err)
	}
	u.Path += "/app/" + url.PathEscape(key)
	u.RawQuery = url.Values{
		"protocol": {protocolVersion},
		"client":   {"copperx-bot-go"},
		"version":  {"1.0"},
	}.Encode()
	return u.String(), nil
}

// wsConn serialises writes; gorilla connections allow one concurrent writer.
type wsConn struct {
	c  *websocket.Conn
	mu sync.Mutex
}

func (w *wsConn) send(event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.c.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return w.c.WriteJSON(frame{Event: event, Data: payload})
}

func (w *wsConn) read(timeout time.Duration) (frame, error) {
	if timeout > 0 {
		_ = w.c.SetReadDeadline(time.Now().Add(timeout))
	}
	var f frame
	err := w.c.ReadJSON(&f)
	return f, err
}
