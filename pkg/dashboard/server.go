package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mayhemchaos/mayhem-go/pkg/log"
	"github.com/mayhemchaos/mayhem-go/pkg/types"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// clientCommand is the shape of the frames clients send to the server
type clientCommand struct {
	Action  string `json:"action"`
	Service string `json:"service,omitempty"`
}

// Server serves the live dashboard: a websocket endpoint for metric
// streaming and a prometheus exposition endpoint for the framework's own
// counters
type Server struct {
	addr       string
	hub        *Hub
	producer   *Producer
	status     StatusSource
	statusPoll time.Duration
	upgrader   websocket.Upgrader
}

func NewServer(addr string, hub *Hub, producer *Producer, status StatusSource) *Server {
	return &Server{
		addr:       addr,
		hub:        hub,
		producer:   producer,
		status:     status,
		statusPoll: time.Second,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// the dashboard is an operator tool, not an internet surface
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Run starts the producer loop and serves until the context is cancelled
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebsocket)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/status", s.handleStatus)

	server := &http.Server{Addr: s.addr, Handler: mux}

	go s.producer.Run(ctx)
	go s.watchStatus(ctx)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Infof("[Dashboard]: Serving on %v", s.addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.status.Status())
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Errorf("websocket upgrade failed, err: %v", err)
		return
	}

	s.hub.Register(conn)
	connectedClients.Set(float64(s.hub.Clients()))
	defer func() {
		s.hub.Unregister(conn)
		connectedClients.Set(float64(s.hub.Clients()))
		conn.Close()
	}()

	// greet the new client with the current status and recent samples
	s.hub.Send(conn, Message{Type: "experiment_status", Data: s.status.Status()})
	if history := s.producer.History(50); len(history) > 0 {
		s.hub.Send(conn, Message{Type: "metrics_history", Data: history})
	}

	for {
		var command clientCommand
		if err := conn.ReadJSON(&command); err != nil {
			return
		}
		s.dispatch(command)
	}
}

func (s *Server) dispatch(command clientCommand) {
	service := command.Service
	if service == "" {
		service = "web-server"
	}

	switch command.Action {
	case "start_metrics_stream":
		s.producer.SetService(service)
		s.hub.Broadcast(Message{Type: "stream_started", Data: map[string]string{"service": service}})
	case "stop_metrics_stream":
		s.producer.SetService("")
		s.hub.Broadcast(Message{Type: "stream_stopped", Data: map[string]string{}})
	case "get_baseline":
		s.producer.CaptureBaseline(service)
	default:
		log.Debugf("[Dashboard]: ignoring unknown client action %q", command.Action)
	}
}

// watchStatus polls the runner status and announces start/stop
// transitions to the connected clients
func (s *Server) watchStatus(ctx context.Context) {
	ticker := time.NewTicker(s.statusPoll)
	defer ticker.Stop()

	var last types.StatusSnapshot
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			current := s.status.Status()
			if current.Running && !last.Running {
				s.AnnounceStart()
			}
			if !current.Running && last.Running {
				s.AnnounceStop(last)
			}
			last = current
		}
	}
}

// AnnounceStart publishes an experiment start to all clients
func (s *Server) AnnounceStart() {
	experimentRunning.Set(1)
	s.hub.Broadcast(Message{Type: "experiment_started", Data: s.status.Status()})
}

// AnnounceStop publishes an experiment end, with its final state, to all
// clients
func (s *Server) AnnounceStop(results interface{}) {
	experimentRunning.Set(0)
	s.hub.Broadcast(Message{Type: "experiment_stopped", Data: map[string]interface{}{"results": results}})
}
