package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/arylic-gateway/internal/bridges/arylic"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "method not allowed")
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
	})

	wsPath := s.wsCfg.Path
	if wsPath == "" {
		wsPath = "/arylic/events"
	}
	r.Get(wsPath, s.handleWebSocket)

	r.Route("/arylic", func(r chi.Router) {
		r.Get("/", s.handleListDevices)

		r.Route("/{device}", func(r chi.Router) {
			r.Get("/mute", s.handleCommand("mute", "muted"))
			r.Get("/unmute", s.handleCommand("unmute", "unmuted"))
			r.Get("/play", s.handleCommand("play", "playing"))
			r.Get("/pause", s.handleCommand("pause", "paused"))
			r.Get("/playpause", s.handlePlayPause)
			r.Get("/volume/{level}", s.handleVolume)

			r.Get("/device-info", s.handleRequest(arylic.DeviceInfoRequest{}, arylic.KindDeviceInfo))
			r.Get("/metadata", s.handleRequest(arylic.PlaybackMetadataRequest{}, arylic.KindData))
			r.Get("/status", s.handleRequest(arylic.PlaybackStatusRequest{}, arylic.KindPlayInfo))
		})
	})

	return r
}

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	UptimeSec int64           `json:"uptime_seconds"`
	Devices   *DeviceCountsV1 `json:"devices,omitempty"`
	WSClients int             `json:"websocket_clients"`
}

// DeviceCountsV1 mirrors the controller counters.
type DeviceCountsV1 struct {
	Connected   int    `json:"connected"`
	Pending     int    `json:"pending"`
	Discovered  int    `json:"discovered"`
	Known       int    `json:"known"`
	Handshakes  uint64 `json:"handshakes"`
	Failures    uint64 `json:"failures"`
	Disconnects uint64 `json:"disconnects"`
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := HealthResponse{
		Status:    "ok",
		Version:   s.version,
		UptimeSec: int64(time.Since(s.startTime).Seconds()),
		WSClients: s.hub.ClientCount(),
	}
	if s.stats != nil {
		st := s.stats.Stats()
		resp.Devices = &DeviceCountsV1{
			Connected:   st.Connected,
			Pending:     st.Pending,
			Discovered:  st.Discovered,
			Known:       st.Known,
			Handshakes:  st.Handshakes,
			Failures:    st.Failures,
			Disconnects: st.Disconnects,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
