package server

import "net/http"

type endpointInfo struct {
	Path        string   `json:"path"`
	Methods     []string `json:"methods"`
	Description string   `json:"description"`
}

type discoveryResponse struct {
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	Description string         `json:"description"`
	Endpoints   []endpointInfo `json:"endpoints"`
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, discoveryResponse{
		Name:        "gocoro API",
		Version:     "v1",
		Description: "Inspection and control of a fixed-tick cooperative task scheduler",
		Endpoints: []endpointInfo{
			{"/api/v1/health", []string{"GET"}, "Server health and scheduler status"},
			{"/api/v1/stats", []string{"GET"}, "Cumulative scheduler counters"},
			{"/api/v1/tasks", []string{"GET"}, "List live tasks. Filters: ?tag=, ?state="},
			{"/api/v1/tasks/{id}", []string{"GET"}, "Single task detail"},
			{"/api/v1/tasks/{id}/kill", []string{"PUT"}, "Flag a task for removal at the next sweep"},
			{"/api/v1/tasks/{id}/pause", []string{"PUT"}, "Stop advancing a task"},
			{"/api/v1/tasks/{id}/resume", []string{"PUT"}, "Resume a paused task"},
			{"/api/v1/tags/{tag}", []string{"DELETE"}, "Kill every task with this tag"},
			{"/api/v1/ticks/pause", []string{"PUT"}, "Suspend the tick loop"},
			{"/api/v1/ticks/resume", []string{"PUT"}, "Resume the tick loop"},
			{"/api/v1/vars", []string{"GET"}, "Globals of the shared expression environment"},
			{"/api/v1/vars/{name}", []string{"PUT"}, "Set a global from a JSON body"},
		},
	})
}
