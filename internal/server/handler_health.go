package server

import (
	"net/http"
	"runtime"
	"time"
)

type healthResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	GoVersion   string `json:"go_version"`
	Uptime      string `json:"uptime"`
	SchedulerID string `json:"scheduler_id"`
	Ticks       string `json:"ticks"`
	LiveTasks   int    `json:"live_tasks"`
	RunID       string `json:"run_id,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	ticks := "running"
	if s.sched.TicksPaused() {
		ticks = "paused"
	}
	respondOK(w, reqID, healthResponse{
		Status:      "healthy",
		Version:     Version,
		GoVersion:   runtime.Version(),
		Uptime:      time.Since(s.startTime).Round(time.Second).String(),
		SchedulerID: s.sched.ID(),
		Ticks:       ticks,
		LiveTasks:   s.sched.Stats().Live,
		RunID:       s.runID,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	respondOK(w, RequestIDFromContext(r.Context()), s.sched.Stats())
}

func (s *Server) handlePauseTicks(w http.ResponseWriter, r *http.Request) {
	s.sched.PauseTicks()
	s.logger.Info("ticks paused", "request_id", RequestIDFromContext(r.Context()))
	respondOK(w, RequestIDFromContext(r.Context()), map[string]any{"ticks": "paused"})
}

func (s *Server) handleResumeTicks(w http.ResponseWriter, r *http.Request) {
	s.sched.ResumeTicks()
	s.logger.Info("ticks resumed", "request_id", RequestIDFromContext(r.Context()))
	respondOK(w, RequestIDFromContext(r.Context()), map[string]any{"ticks": "running"})
}
