package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/me/controlnode/pkg/model"
)

type healthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Uptime    string `json:"uptime"`
	Waiting   int    `json:"waiting"`
	Offered   int    `json:"offered"`
	Running   int    `json:"running"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	st := s.scheduler.Snapshot(r.Context())
	respondOK(w, reqID, healthResponse{
		Status:    "healthy",
		Version:   model.Version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Waiting:   st.Waiting,
		Offered:   st.Offered,
		Running:   st.Running,
	})
}

type statusResponse struct {
	Service   string                `json:"service"`
	Version   string                `json:"version"`
	RPCPath   string                `json:"rpc_path"`
	Scheduler model.SchedulerStatus `json:"scheduler"`
}

// handleStatus serves the scheduler snapshot: container sizes, the waiting
// queue in dispatch order and the outstanding leases.
// GET /
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, statusResponse{
		Service:   "controlnode",
		Version:   model.Version,
		RPCPath:   s.config.RPCPath,
		Scheduler: s.scheduler.Snapshot(r.Context()),
	})
}
