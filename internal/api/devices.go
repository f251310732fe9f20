package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/arylic-gateway/internal/bridges/arylic"
)

// DeviceSummary is one entry of GET /arylic.
type DeviceSummary struct {
	ID   string `json:"id"`
	Host string `json:"host"`
	Port int    `json:"port"`
}

// handleListDevices returns the live devices ordered by name.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.registry.Devices()
	out := make([]DeviceSummary, 0, len(devices))
	for _, d := range devices {
		id := d.Identity()
		out = append(out, DeviceSummary{ID: d.Name(), Host: id.Host, Port: id.Port})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleCommand sends a fixed command and confirms with "<device> <verb>".
func (s *Server) handleCommand(name, verb string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cmd, err := arylic.ParseCommand(name, "")
		if err != nil {
			writeInternalError(w, err.Error())
			return
		}
		s.send(w, r, cmd, verb)
	}
}

// handlePlayPause toggles, or plays/pauses when ?state=PLAY|PAUSE|ON|OFF.
func (s *Server) handlePlayPause(w http.ResponseWriter, r *http.Request) {
	cmd, err := arylic.ParseCommand("playpause", r.URL.Query().Get("state"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	verb := "toggled"
	switch cmd.Kind() {
	case arylic.KindPlay:
		verb = "playing"
	case arylic.KindPause:
		verb = "paused"
	}
	s.send(w, r, cmd, verb)
}

// handleVolume sets the volume to the {level} path segment.
func (s *Server) handleVolume(w http.ResponseWriter, r *http.Request) {
	level := chi.URLParam(r, "level")
	cmd, err := arylic.ParseCommand("volume", level)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	s.send(w, r, cmd, "volume "+level)
}

func (s *Server) send(w http.ResponseWriter, r *http.Request, cmd arylic.SentCommand, verb string) {
	device, ok := s.lookup(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	if err := device.Send(ctx, cmd); err != nil {
		s.writeDeviceError(w, device, err)
		return
	}
	writeText(w, http.StatusOK, fmt.Sprintf("%s %s\n", device.Name(), verb))
}

// handleRequest sends req and answers with the JSON body of the first reply
// of the given kind.
func (s *Server) handleRequest(req arylic.SentCommand, reply arylic.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		device, ok := s.lookup(w, r)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
		defer cancel()

		resp, err := device.Request(ctx, req, reply)
		if err != nil {
			s.writeDeviceError(w, device, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (Device, bool) {
	name := chi.URLParam(r, "device")
	device, ok := s.registry.Device(name)
	if !ok {
		writeNotFound(w, fmt.Sprintf("device with name %s not found", name))
		return nil, false
	}
	return device, true
}

// writeDeviceError maps session errors to HTTP statuses.
func (s *Server) writeDeviceError(w http.ResponseWriter, device Device, err error) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, ErrCodeTimeout,
			fmt.Sprintf("no reply from %s within %s", device.Name(), s.timeout))
	case errors.Is(err, arylic.ErrNotConnected), errors.Is(err, arylic.ErrConnectionClosed):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable,
			fmt.Sprintf("%s is not connected", device.Name()))
	case errors.Is(err, context.Canceled):
		// Client went away; nothing useful to write.
	default:
		s.logger.Error("device command failed", "device", device.Name(), "error", err)
		writeError(w, http.StatusBadGateway, ErrCodeUnavailable, err.Error())
	}
}
