package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"drivewatch/internal/types"
)

const healthCheckTimeout = 2 * time.Second

type componentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status     string                     `json:"status"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

type checkResult struct {
	idx int
	err error
}

func runCheck(ctx context.Context, p types.HealthChecker) (err error) {
	defer func() {
		if rvr := recover(); rvr != nil {
			err = fmt.Errorf("check panicked: %v", rvr)
		}
	}()
	return p.Check(ctx)
}

// HandleHealth runs every check concurrently. A check that fails, panics or
// misses the deadline makes the response 503.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if len(s.HealthCheckers) == 0 {
		JSON(w, r, http.StatusOK, healthResponse{Status: "healthy"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	// Buffered so late checks never block after the handler returns.
	results := make(chan checkResult, len(s.HealthCheckers))
	for i, p := range s.HealthCheckers {
		go func() { results <- checkResult{idx: i, err: runCheck(ctx, p)} }()
	}

	errs := make([]error, len(s.HealthCheckers))
	done := make([]bool, len(s.HealthCheckers))
collect:
	for range s.HealthCheckers {
		select {
		case res := <-results:
			errs[res.idx], done[res.idx] = res.err, true
		case <-ctx.Done():
			break collect
		}
	}

	resp := healthResponse{Status: "healthy", Components: make(map[string]componentStatus, len(s.HealthCheckers))}
	for i, p := range s.HealthCheckers {
		cs := componentStatus{Status: "healthy"}
		switch {
		case !done[i]:
			cs = componentStatus{Status: "unhealthy", Message: "health check timed out"}
		case errs[i] != nil:
			cs = componentStatus{Status: "unhealthy", Message: errs[i].Error()}
		}
		if cs.Status != "healthy" {
			resp.Status = "unhealthy"
		}
		resp.Components[p.Name()] = cs
	}

	status := http.StatusOK
	if resp.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	JSON(w, r, status, resp)
}
