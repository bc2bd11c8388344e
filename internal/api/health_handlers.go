package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
)

func (s *Server) registerHealthRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "healthCheck",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns server health status with component checks",
		Tags:        []string{"Health"},
	}, s.handleHealthCheck)
}

// ComponentHealth describes the health of a single component.
type ComponentHealth struct {
	Status  string `json:"status" doc:"Component status: healthy, degraded, or unhealthy"`
	Latency string `json:"latency,omitempty" doc:"Response time for this component"`
	Message string `json:"message,omitempty" doc:"Additional status information"`
}

// HealthResponse contains health check data in API responses.
type HealthResponse struct {
	Status     string                     `json:"status" doc:"Overall status: healthy, degraded, or unhealthy"`
	Components map[string]ComponentHealth `json:"components" doc:"Individual component statuses"`
}

// HealthOutput wraps the health response for Huma.
type HealthOutput struct {
	Body HealthResponse
}

func (s *Server) handleHealthCheck(ctx context.Context, _ *struct{}) (*HealthOutput, error) {
	components := map[string]ComponentHealth{
		"database":      s.checkDatabase(ctx),
		"search":        s.checkSearchIndex(),
		"realtime":      s.checkHub(),
		"notifications": s.checkNotifications(),
	}

	overall := "healthy"
	for _, c := range components {
		switch {
		case c.Status == "unhealthy":
			overall = "unhealthy"
		case c.Status == "degraded" && overall == "healthy":
			overall = "degraded"
		}
	}

	return &HealthOutput{
		Body: HealthResponse{
			Status:     overall,
			Components: components,
		},
	}, nil
}

func (s *Server) checkDatabase(ctx context.Context) ComponentHealth {
	if s.store == nil {
		return ComponentHealth{Status: "degraded", Message: "database not configured"}
	}

	start := time.Now()
	err := s.store.Ping(ctx)
	latency := time.Since(start)

	if err != nil {
		return ComponentHealth{
			Status:  "unhealthy",
			Latency: latency.String(),
			Message: "database ping failed",
		}
	}
	return ComponentHealth{Status: "healthy", Latency: latency.String()}
}

func (s *Server) checkSearchIndex() ComponentHealth {
	if s.services == nil || s.services.Catalog == nil {
		return ComponentHealth{Status: "degraded", Message: "catalog service not configured"}
	}

	start := time.Now()
	count, err := s.services.Catalog.IndexedBooks()
	latency := time.Since(start)

	if err != nil {
		return ComponentHealth{
			Status:  "degraded",
			Latency: latency.String(),
			Message: "search index unavailable",
		}
	}
	return ComponentHealth{
		Status:  "healthy",
		Latency: latency.String(),
		Message: fmt.Sprintf("%d books indexed", count),
	}
}

func (s *Server) checkHub() ComponentHealth {
	if s.hub == nil {
		return ComponentHealth{Status: "degraded", Message: "broadcaster not configured"}
	}

	stats := s.hub.Stats()
	return ComponentHealth{
		Status:  "healthy",
		Message: fmt.Sprintf("%d subscribers, %d events dropped", stats.Subscribers, stats.Dropped),
	}
}

func (s *Server) checkNotifications() ComponentHealth {
	if s.services == nil || s.services.Dispatcher == nil {
		return ComponentHealth{Status: "degraded", Message: "dispatcher not configured"}
	}

	stats := s.services.Dispatcher.Stats()
	status := "healthy"
	if stats.Dropped > 0 || stats.Failed > 0 {
		status = "degraded"
	}
	return ComponentHealth{
		Status:  status,
		Message: fmt.Sprintf("%d sent, %d failed, %d dropped, %d pending", stats.Sent, stats.Failed, stats.Dropped, stats.Pending),
	}
}
