// Package transport owns the duplex WebSocket connection to the Azure
// OpenAI realtime API. It exposes send/receive/close primitives and maps
// connection failures to a small error taxonomy; it does not interpret
// inbound payloads.
package transport

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// DialConfig carries everything needed to establish one realtime session
type DialConfig struct {
	// Endpoint is the Azure resource endpoint, e.g. https://<resource>.openai.azure.com.
	// An https scheme is rewritten to wss.
	Endpoint string

	// Deployment identifies the model deployment. The realtime endpoint
	// takes this as a "deployment" query parameter, not "intent".
	Deployment string

	APIVersion string
	APIKey     string

	DialTimeout  time.Duration
	WriteTimeout time.Duration
	CloseTimeout time.Duration

	Logger zerolog.Logger
}

// Conn is one open realtime session. Send and Receive are safe to call
// concurrently from one producer and one consumer goroutine; Close is
// idempotent and safe from any goroutine.
type Conn struct {
	ws *websocket.Conn

	// writeMu serializes Send and SendSessionUpdate: gorilla/websocket
	// allows at most one concurrent data writer. Close does not take it;
	// WriteControl is safe alongside an in-flight write.
	writeMu sync.Mutex
	closed  atomic.Bool

	closeOnce sync.Once
	closeErr  error

	writeTimeout time.Duration
	closeTimeout time.Duration
	logger       zerolog.Logger
}

// BuildURL forms the realtime WebSocket URL from the resource endpoint
func BuildURL(cfg DialConfig) (string, error) {
	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", cfg.Endpoint, err)
	}

	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "wss", "ws":
		// Already a WebSocket endpoint; plain ws is for local testing
	default:
		return "", fmt.Errorf("endpoint %q must use https or wss scheme", cfg.Endpoint)
	}

	u.Path = strings.TrimSuffix(u.Path, "/") + "/openai/realtime"

	q := u.Query()
	q.Set("api-version", cfg.APIVersion)
	q.Set("deployment", cfg.Deployment)
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// Dial opens the WebSocket session. Handshake failures, including 401/403
// credential rejections, are returned as *ConnectionError.
func Dial(ctx context.Context, cfg DialConfig) (*Conn, error) {
	wsURL, err := BuildURL(cfg)
	if err != nil {
		return nil, &ConnectionError{URL: cfg.Endpoint, Err: err}
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: cfg.DialTimeout,
	}

	header := http.Header{}
	header.Set("api-key", cfg.APIKey)

	ws, resp, err := dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		connErr := &ConnectionError{URL: wsURL, Err: err}
		if resp != nil {
			connErr.StatusCode = resp.StatusCode
		}
		return nil, connErr
	}

	closeTimeout := cfg.CloseTimeout
	if closeTimeout <= 0 {
		closeTimeout = 5 * time.Second
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}

	cfg.Logger.Debug().Str("url", redactQuery(wsURL)).Msg("realtime session connected")

	return &Conn{
		ws:           ws,
		writeTimeout: writeTimeout,
		closeTimeout: closeTimeout,
		logger:       cfg.Logger,
	}, nil
}

// SendSessionUpdate sends the one-shot session configuration message
func (c *Conn) SendSessionUpdate(settings SessionSettings) error {
	return c.writeJSON(newSessionUpdateMessage(settings))
}

// Send encodes one audio frame as an input_audio_buffer.append message.
// Returns ErrTransportClosed after Close.
func (c *Conn) Send(frame AudioFrame) error {
	msg := audioAppendMessage{
		Type:  msgTypeAudioAppend,
		Audio: base64.StdEncoding.EncodeToString(frame.Data),
	}
	if err := c.writeJSON(msg); err != nil {
		return err
	}
	c.logger.Trace().Uint64("seq", frame.Seq).Int("bytes", len(frame.Data)).Msg("frame sent")
	return nil
}

func (c *Conn) writeJSON(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed.Load() {
		return ErrTransportClosed
	}

	_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if err := c.ws.WriteJSON(v); err != nil {
		if c.closed.Load() || isClosedConnError(err) {
			return ErrTransportClosed
		}
		return fmt.Errorf("writing message: %w", err)
	}
	return nil
}

// Receive blocks until one message arrives and returns its raw payload.
// Returns ErrTransportClosed once the connection closes from either side.
func (c *Conn) Receive() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		if c.closed.Load() || isClosedConnError(err) {
			return nil, ErrTransportClosed
		}
		return nil, fmt.Errorf("reading message: %w", err)
	}
	return data, nil
}

// Close shuts the connection down. It is idempotent: concurrent and
// repeated calls perform one physical close and return the same result.
// A parked Receive and any in-flight Send are unblocked.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		// Best-effort close frame so the server ends the session cleanly;
		// the socket close below is what actually releases resources and
		// unblocks any parked read or in-flight write
		deadline := time.Now().Add(c.closeTimeout)
		_ = c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			deadline,
		)

		c.closeErr = c.ws.Close()
		c.logger.Debug().Msg("realtime session closed")
	})
	return c.closeErr
}

// isClosedConnError matches the errors both sides produce once the socket
// is gone: WebSocket close frames and the net package's use-of-closed error
func isClosedConnError(err error) bool {
	if err == nil {
		return false
	}
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "connection reset by peer") ||
		strings.Contains(msg, "broken pipe")
}

// redactQuery strips query values from a URL for logging
func redactQuery(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		return raw[:i]
	}
	return raw
}
