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
		Name:        "govm API",
		Version:     "v1",
		Description: "Instruction scheduler for a dataflow virtual machine",
		Endpoints: []endpointInfo{
			{"/api/v1/instructions", []string{"POST"}, "Submit instruction messages for the next tick. 429 while backpressure holds"},
			{"/api/v1/stats", []string{"GET"}, "Scheduler counters, queue depths and unit state"},
			{"/api/v1/objects", []string{"GET"}, "Logical objects with per-replica access mode and queue lengths"},
			{"/api/v1/objects/{id}", []string{"GET"}, "Single logical object"},
			{"/api/v1/packages", []string{"GET"}, "Dispatched packages from the journal. ?unit= filters by unit type"},
			{"/api/v1/packages/{id}", []string{"GET"}, "Single package with its instructions"},
			{"/api/v1/idle-events", []string{"GET"}, "Object replicas that went idle on release"},
			{"/api/v1/health", []string{"GET"}, "Server health and version"},
		},
	})
}
