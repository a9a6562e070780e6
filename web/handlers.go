package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/zenibako/cuebridge/live"
	"github.com/zenibako/cuebridge/templates"

	"github.com/VictoriaMetrics/metrics"
	"github.com/charmbracelet/log"
)

type playRequest struct {
	CueIndex  *int            `json:"cue_index"`
	CuePoints []live.CuePoint `json:"cue_points"`
}

type monitorRequest struct {
	StopPos *float64 `json:"stop_pos"`
}

type statusResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

const (
	statusIdle      = "idle"
	statusOK        = "ok"
	statusStopped   = "stopped"
	statusCancelled = "cancelled"
)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.RenderIndex(w, templates.NewPageData(s.title, s.pollInterval)); err != nil {
		log.Errorf("Failed to render index: %v", err)
	}
}

func (s *Server) handleGetCuePoints(w http.ResponseWriter, r *http.Request) {
	cues, err := s.song.CuePoints(r.Context())
	if err != nil {
		writeLiveError(w, err)
		return
	}
	if cues == nil {
		cues = []live.CuePoint{}
	}
	writeJSON(w, http.StatusOK, cues)
}

func (s *Server) handlePlaySong(w http.ResponseWriter, r *http.Request) {
	var req playRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.CueIndex == nil {
		writeError(w, http.StatusBadRequest, "cue_index is required")
		return
	}

	result, err := s.song.Play(req.CuePoints, *req.CueIndex)
	if err != nil {
		writeLiveError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleMonitorPlayhead long-polls a playhead watch. A client that goes
// away does not cancel the watch; playback is still stopped on time.
func (s *Server) handleMonitorPlayhead(w http.ResponseWriter, r *http.Request) {
	var req monitorRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.StopPos == nil {
		writeError(w, http.StatusBadRequest, "stop_pos is required")
		return
	}

	watch := s.monitor.Start(*req.StopPos)

	select {
	case <-watch.Done():
	case <-r.Context().Done():
		log.Debugf("Client left while watch %s is running", watch.ID())
		return
	}

	switch watch.State() {
	case live.WatchStopped:
		writeJSON(w, http.StatusOK, statusResponse{Status: statusStopped})
	case live.WatchCancelled:
		writeJSON(w, http.StatusOK, statusResponse{Status: statusCancelled})
	default:
		writeLiveError(w, watch.Err())
	}
}

func (s *Server) handleMonitorStatus(w http.ResponseWriter, r *http.Request) {
	watch := s.monitor.Current()
	if watch == nil {
		writeJSON(w, http.StatusOK, statusResponse{Status: statusIdle})
		return
	}
	writeJSON(w, http.StatusOK, watch.Status())
}

func (s *Server) handleMonitorCancel(w http.ResponseWriter, r *http.Request) {
	if s.monitor.Cancel() {
		writeJSON(w, http.StatusOK, statusResponse{Status: statusCancelled})
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: statusIdle})
}

func (s *Server) handleStopSong(w http.ResponseWriter, r *http.Request) {
	s.monitor.Cancel()
	if err := s.song.Stop(); err != nil {
		writeLiveError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: statusStopped})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, statusResponse{Status: "unavailable", Error: err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: statusOK})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	metrics.WritePrometheus(w, true)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Errorf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeLiveError maps Live failures to HTTP statuses: bad input is 400,
// silence from Live is 504 and anything else 502.
func writeLiveError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, live.ErrCueIndexOutOfRange):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, live.ErrNoReply):
		writeError(w, http.StatusGatewayTimeout, err.Error())
	default:
		writeError(w, http.StatusBadGateway, err.Error())
	}
}
