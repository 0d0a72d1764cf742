package transport

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// startServer runs an in-process WebSocket endpoint that feeds every
// received message into sink and optionally pushes canned messages
func startServer(t *testing.T, push []string, sink chan<- []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("api-key") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer ws.Close()

		for _, msg := range push {
			if err := ws.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
		}

		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			if sink != nil {
				sink <- data
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// dialConfigFor points the dialer at the httptest listener over plain ws
func dialConfigFor(srv *httptest.Server) DialConfig {
	return DialConfig{
		Endpoint:     strings.Replace(srv.URL, "http://", "ws://", 1),
		Deployment:   "gpt-4o-mini-transcribe",
		APIVersion:   "2025-04-01-preview",
		APIKey:       "test-key",
		DialTimeout:  5 * time.Second,
		CloseTimeout: time.Second,
		Logger:       zerolog.Nop(),
	}
}

func dialTest(t *testing.T, srv *httptest.Server) *Conn {
	t.Helper()
	conn, err := Dial(context.Background(), dialConfigFor(srv))
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	return conn
}

func TestBuildURL(t *testing.T) {
	cfg := DialConfig{
		Endpoint:   "https://my-resource.openai.azure.com",
		Deployment: "gpt-4o-mini-transcribe",
		APIVersion: "2025-04-01-preview",
	}

	got, err := BuildURL(cfg)
	if err != nil {
		t.Fatalf("BuildURL failed: %v", err)
	}

	if !strings.HasPrefix(got, "wss://my-resource.openai.azure.com/openai/realtime?") {
		t.Errorf("Unexpected URL prefix: %s", got)
	}
	if !strings.Contains(got, "deployment=gpt-4o-mini-transcribe") {
		t.Errorf("Expected deployment parameter in URL, got %s", got)
	}
	if !strings.Contains(got, "api-version=2025-04-01-preview") {
		t.Errorf("Expected api-version parameter in URL, got %s", got)
	}
	if strings.Contains(got, "intent=") {
		t.Errorf("URL must not carry an intent parameter: %s", got)
	}
}

func TestBuildURL_BadScheme(t *testing.T) {
	_, err := BuildURL(DialConfig{Endpoint: "ftp://example.com"})
	if err == nil {
		t.Error("Expected error for non-https endpoint")
	}
}

func TestDial_AuthRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := Dial(context.Background(), dialConfigFor(srv))
	if err == nil {
		t.Fatal("Expected handshake to fail")
	}

	var connErr *ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("Expected *ConnectionError, got %T: %v", err, err)
	}
	if !connErr.IsAuthRejection() {
		t.Errorf("Expected auth rejection, got status %d", connErr.StatusCode)
	}
}

func TestDial_Unreachable(t *testing.T) {
	cfg := DialConfig{
		Endpoint:    "wss://127.0.0.1:1",
		Deployment:  "gpt-4o-mini-transcribe",
		APIVersion:  "2025-04-01-preview",
		APIKey:      "key",
		DialTimeout: 500 * time.Millisecond,
		Logger:      zerolog.Nop(),
	}

	_, err := Dial(context.Background(), cfg)
	if err == nil {
		t.Fatal("Expected connection error")
	}

	var connErr *ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("Expected *ConnectionError, got %T: %v", err, err)
	}
}

func TestSend_EncodesFrame(t *testing.T) {
	sink := make(chan []byte, 10)
	srv := startServer(t, nil, sink)
	conn := dialTest(t, srv)
	defer conn.Close()

	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	if err := conn.Send(AudioFrame{Seq: 0, Data: pcm}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	select {
	case data := <-sink:
		var msg struct {
			Type  string `json:"type"`
			Audio string `json:"audio"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("Server received invalid JSON: %v", err)
		}
		if msg.Type != "input_audio_buffer.append" {
			t.Errorf("Expected type 'input_audio_buffer.append', got '%s'", msg.Type)
		}
		decoded, err := base64.StdEncoding.DecodeString(msg.Audio)
		if err != nil {
			t.Fatalf("Audio payload is not valid base64: %v", err)
		}
		if string(decoded) != string(pcm) {
			t.Errorf("PCM bytes corrupted in transit: %v", decoded)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Server never received the frame")
	}
}

func TestSendSessionUpdate(t *testing.T) {
	sink := make(chan []byte, 10)
	srv := startServer(t, nil, sink)
	conn := dialTest(t, srv)
	defer conn.Close()

	settings := SessionSettings{
		Model:          "gpt-4o-mini-transcribe",
		AudioFormat:    "pcm16",
		Language:       "en",
		NoiseReduction: "near_field",
		VADThreshold:   0.5,
		VADPrefixMs:    300,
		VADSilenceMs:   200,
	}
	if err := conn.SendSessionUpdate(settings); err != nil {
		t.Fatalf("SendSessionUpdate failed: %v", err)
	}

	select {
	case data := <-sink:
		var msg map[string]interface{}
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("Server received invalid JSON: %v", err)
		}
		if msg["type"] != "transcription_session.update" {
			t.Errorf("Expected type 'transcription_session.update', got '%v'", msg["type"])
		}
		session, ok := msg["session"].(map[string]interface{})
		if !ok {
			t.Fatal("Missing session payload")
		}
		if session["input_audio_format"] != "pcm16" {
			t.Errorf("Expected pcm16 format, got '%v'", session["input_audio_format"])
		}
		if _, ok := session["turn_detection"]; !ok {
			t.Error("Expected turn_detection payload")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Server never received the session update")
	}
}

func TestReceive(t *testing.T) {
	srv := startServer(t, []string{`{"type":"response.text.done","text":"hi"}`}, nil)
	conn := dialTest(t, srv)
	defer conn.Close()

	data, err := conn.Receive()
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if !strings.Contains(string(data), "response.text.done") {
		t.Errorf("Unexpected payload: %s", data)
	}
}

func TestSend_AfterClose(t *testing.T) {
	srv := startServer(t, nil, nil)
	conn := dialTest(t, srv)

	if err := conn.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	err := conn.Send(AudioFrame{Seq: 0, Data: []byte{1, 2}})
	if !errors.Is(err, ErrTransportClosed) {
		t.Errorf("Expected ErrTransportClosed, got %v", err)
	}
}

func TestReceive_AfterClose(t *testing.T) {
	srv := startServer(t, nil, nil)
	conn := dialTest(t, srv)

	done := make(chan error, 1)
	go func() {
		_, err := conn.Receive()
		done <- err
	}()

	// Give the reader time to park, then close underneath it
	time.Sleep(50 * time.Millisecond)
	conn.Close()

	select {
	case err := <-done:
		if !errors.Is(err, ErrTransportClosed) {
			t.Errorf("Expected ErrTransportClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Receive never unblocked after Close")
	}
}

func TestClose_Idempotent(t *testing.T) {
	srv := startServer(t, nil, nil)
	conn := dialTest(t, srv)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = conn.Close()
		}(i)
	}
	wg.Wait()

	if errs[0] != errs[1] {
		t.Errorf("Concurrent Close calls returned different results: %v vs %v", errs[0], errs[1])
	}
	if errs[0] != nil {
		t.Errorf("Close returned error: %v", errs[0])
	}

	// A third call after the fact is also fine
	if err := conn.Close(); err != nil {
		t.Errorf("Repeated Close returned error: %v", err)
	}
}
