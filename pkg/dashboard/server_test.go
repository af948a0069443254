package dashboard

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mayhemchaos/mayhem-go/pkg/types"
)

// runningStatus reports a fixed in-flight experiment
type runningStatus struct{}

func (runningStatus) Status() types.StatusSnapshot {
	return types.StatusSnapshot{
		Running:       true,
		Name:          "cpu-check",
		Type:          types.CPUStress,
		TargetService: "web-server",
		Duration:      300,
	}
}

func newTestServer(t *testing.T) (*Server, *httptest.Server, *Producer) {
	t.Helper()

	hub := NewHub()
	source := &scriptedSource{metrics: map[string]float64{"requests": 100}}
	producer := NewProducer(source, runningStatus{}, hub, DefaultPollInterval, DefaultErrorBackoff)
	server := NewServer(":0", hub, producer, runningStatus{})

	httpServer := httptest.NewServer(http.HandlerFunc(server.handleWebsocket))
	t.Cleanup(httpServer.Close)
	return server, httpServer, producer
}

func dialWebsocket(t *testing.T, httpServer *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(httpServer.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("unable to dial websocket: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var message Message
	if err := conn.ReadJSON(&message); err != nil {
		t.Fatalf("unable to read frame: %v", err)
	}
	return message
}

func TestWebsocketGreeting(t *testing.T) {
	server, httpServer, _ := newTestServer(t)
	conn := dialWebsocket(t, httpServer)

	greeting := readMessage(t, conn)
	if greeting.Type != "experiment_status" {
		t.Fatalf("first frame type = %v, want experiment_status", greeting.Type)
	}
	status, ok := greeting.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("status payload type = %T", greeting.Data)
	}
	if status["running"] != true || status["name"] != "cpu-check" {
		t.Errorf("status payload = %v", status)
	}

	// give the handler goroutine a moment to register the client
	deadline := time.Now().Add(time.Second)
	for server.hub.Clients() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if server.hub.Clients() != 1 {
		t.Errorf("hub has %v clients, want 1", server.hub.Clients())
	}
}

func TestWebsocketStreamCommands(t *testing.T) {
	_, httpServer, producer := newTestServer(t)
	conn := dialWebsocket(t, httpServer)
	readMessage(t, conn) // greeting

	if err := conn.WriteJSON(clientCommand{Action: "start_metrics_stream", Service: "api-gateway"}); err != nil {
		t.Fatalf("unable to send command: %v", err)
	}

	started := readMessage(t, conn)
	if started.Type != "stream_started" {
		t.Fatalf("frame type = %v, want stream_started", started.Type)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		producer.mu.Lock()
		service := producer.service
		producer.mu.Unlock()
		if service == "api-gateway" {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("producer service was not switched by the stream command")
}

func TestWebsocketDisconnectUnregisters(t *testing.T) {
	server, httpServer, _ := newTestServer(t)
	conn := dialWebsocket(t, httpServer)
	readMessage(t, conn) // greeting

	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for server.hub.Clients() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if server.hub.Clients() != 0 {
		t.Errorf("hub still has %v clients after disconnect", server.hub.Clients())
	}
}

// toggleStatus flips between an idle and a running snapshot under test
// control
type toggleStatus struct {
	mu      sync.Mutex
	running bool
}

func (s *toggleStatus) Status() types.StatusSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return types.StatusSnapshot{}
	}
	return types.StatusSnapshot{
		Running:       true,
		Name:          "cpu-check",
		Type:          types.CPUStress,
		TargetService: "web-server",
		Duration:      300,
	}
}

func (s *toggleStatus) set(running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = running
}

func TestWatchStatusAnnouncesTransitions(t *testing.T) {
	hub := NewHub()
	status := &toggleStatus{}
	source := &scriptedSource{metrics: map[string]float64{"requests": 100}}
	producer := NewProducer(source, status, hub, DefaultPollInterval, DefaultErrorBackoff)
	server := NewServer(":0", hub, producer, status)
	server.statusPoll = 10 * time.Millisecond

	httpServer := httptest.NewServer(http.HandlerFunc(server.handleWebsocket))
	t.Cleanup(httpServer.Close)
	conn := dialWebsocket(t, httpServer)
	readMessage(t, conn) // status greeting

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go server.watchStatus(ctx)

	status.set(true)
	frame := readMessage(t, conn)
	if frame.Type != "experiment_started" {
		t.Fatalf("frame type = %v, want experiment_started", frame.Type)
	}

	status.set(false)
	frame = readMessage(t, conn)
	if frame.Type != "experiment_stopped" {
		t.Fatalf("frame type = %v, want experiment_stopped", frame.Type)
	}
	payload, ok := frame.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("stop payload type = %T", frame.Data)
	}
	if _, ok := payload["results"]; !ok {
		t.Errorf("stop payload missing the final experiment state: %v", payload)
	}
}
