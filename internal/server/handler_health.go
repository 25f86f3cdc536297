package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/me/govm/pkg/model"
)

type healthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	GoVersion string            `json:"go_version"`
	Uptime    string            `json:"uptime"`
	Scheduler string            `json:"scheduler"`
	Halted    string            `json:"halted,omitempty"`
	Store     string            `json:"store"`
	Executors map[string]string `json:"executors"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	resp := healthResponse{
		Status:    "healthy",
		Version:   "0.1.0",
		GoVersion: runtime.Version(),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Scheduler: "running",
		Store:     "disabled",
		Executors: map[string]string{},
	}
	if err := s.scheduler.Err(); err != nil {
		resp.Status = "degraded"
		resp.Scheduler = "halted"
		resp.Halted = err.Error()
	}
	if s.store != nil {
		resp.Store = "sqlite"
	}
	if s.registry != nil {
		for _, t := range s.registry.Types() {
			resp.Executors[string(t)] = "available"
		}
	}
	respondOK(w, reqID, resp)
}

// statsResponse is the snapshot without per-object detail.
type statsResponse struct {
	Tick            uint64               `json:"tick"`
	Inbound         int                  `json:"inbound"`
	WaitingContexts int                  `json:"waiting_contexts"`
	InFlight        int                  `json:"in_flight"`
	Backpressure    bool                 `json:"backpressure"`
	Objects         int                  `json:"objects"`
	Units           []model.UnitSnapshot `json:"units"`
	Counters        model.Counters       `json:"counters"`
	Halted          string               `json:"halted,omitempty"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	snap := s.scheduler.Snapshot()
	resp := statsResponse{
		Tick:            snap.Tick,
		Inbound:         snap.Inbound,
		WaitingContexts: snap.WaitingContexts,
		InFlight:        snap.InFlight,
		Backpressure:    snap.Backpressure,
		Objects:         len(snap.Objects),
		Units:           snap.Units,
		Counters:        snap.Counters,
	}
	if err := s.scheduler.Err(); err != nil {
		resp.Halted = err.Error()
	}
	respondOK(w, reqID, resp)
}
