package server

import (
	"net/http"
	"slices"
	"strings"
)

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
	RPCMethods  []string       `json:"rpc_methods"`
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	methods := make([]string, 0, len(s.methods))
	for name := range s.methods {
		methods = append(methods, name)
	}
	slices.SortFunc(methods, strings.Compare)

	endpoints := []endpointInfo{
		{s.config.RPCPath, []string{"POST"}, "JSON-RPC: task dispatch, leases and job progress"},
		{"/", []string{"GET"}, "Scheduler status: queue, offered and running tasks"},
		{"/api/v1/jobs", []string{"GET"}, "List jobs with progress"},
		{"/api/v1/jobs/{project}/{job}", []string{"GET"}, "Single job progress"},
		{"/api/v1/leases", []string{"GET"}, "Outstanding leases"},
		{"/api/v1/health", []string{"GET"}, "Server health and version"},
	}
	if s.metrics != nil {
		endpoints = append(endpoints, endpointInfo{"/metrics", []string{"GET"}, "Prometheus metrics"})
	}

	respondOK(w, reqID, discoveryResponse{
		Name:        "controlnode API",
		Version:     "v1",
		Description: "Lease-based task scheduler for simulation jobs",
		Endpoints:   endpoints,
		RPCMethods:  methods,
	})
}
