package eventbus

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/sitemapindexerpro/workercore/infrastructure/logging"
	"github.com/sitemapindexerpro/workercore/infrastructure/metrics"
	"github.com/sitemapindexerpro/workercore/internal/jobcontrol"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// AuthFunc resolves a token query parameter to an organization ID,
// rejecting the upgrade if the token does not identify a valid user
// record. The user/organization table itself is out of the core's scope;
// this is the seam the owning service plugs into.
type AuthFunc func(ctx context.Context, token, projectID string) (org string, ok bool)

// Server exposes /ws/jobs/{projectId} over gorilla/mux, upgrading each
// connection to a per-(org,project) subscriber with a ping/pong heartbeat,
// plus the operator pause/resume/cancel endpoints backed by jobcontrol.
type Server struct {
	bus          *Bus
	auth         AuthFunc
	log          *logging.Logger
	metrics      *metrics.Metrics
	pingInterval time.Duration
	control      *jobcontrol.Controller
}

func NewServer(bus *Bus, auth AuthFunc, log *logging.Logger, m *metrics.Metrics, pingInterval time.Duration, control *jobcontrol.Controller) *Server {
	return &Server{bus: bus, auth: auth, log: log, metrics: m, pingInterval: pingInterval, control: control}
}

// Router returns a gorilla/mux router exposing the WebSocket, job-control,
// and metrics endpoints.
func (s *Server) Router(metricsHandler http.Handler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/ws/jobs/{projectId}", s.handleWS)
	r.HandleFunc("/jobs/{jobId}/pause", s.handleJobControl("pause")).Methods(http.MethodPost)
	r.HandleFunc("/jobs/{jobId}/resume", s.handleJobControl("resume")).Methods(http.MethodPost)
	r.HandleFunc("/jobs/{jobId}/cancel", s.handleJobControl("cancel")).Methods(http.MethodPost)
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}
	return r
}

// handleJobControl reaches a running job's jobcontrol handle. The job
// must currently be registered (i.e. in flight on a worker) for pause,
// resume, or cancel to take effect; a job that hasn't started yet or has
// already finished reports 404.
func (s *Server) handleJobControl(action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.control == nil {
			http.Error(w, "job control disabled", http.StatusNotImplemented)
			return
		}
		jobID := mux.Vars(r)["jobId"]

		var ok bool
		switch action {
		case "pause":
			ok = s.control.Pause(jobID)
		case "resume":
			ok = s.control.Resume(jobID)
		case "cancel":
			ok = s.control.Cancel(jobID)
		}
		if !ok {
			http.Error(w, "job is not currently running", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	projectID := vars["projectId"]
	token := r.URL.Query().Get("token")

	org, ok := s.auth(r.Context(), token, projectID)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	events, unsubscribe := s.bus.Subscribe(org, projectID)
	defer unsubscribe()

	s.serve(conn, events)
}

func (s *Server) serve(conn *websocket.Conn, events <-chan Event) {
	pongDeadline := s.pingInterval + s.pingInterval/2
	_ = conn.SetReadDeadline(time.Now().Add(pongDeadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongDeadline))
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case evt, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		}
	}
}
