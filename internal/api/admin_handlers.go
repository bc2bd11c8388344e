package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	domainerrors "github.com/JoeAtEgypt/library-management/internal/errors"
	"github.com/JoeAtEgypt/library-management/internal/notify"
)

func (s *Server) registerAdminRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listNotifications",
		Method:      http.MethodGet,
		Path:        "/api/v1/admin/notifications",
		Summary:     "List notification deliveries",
		Description: "Returns recent notification delivery attempts, newest first (admin only)",
		Tags:        []string{"Admin"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleListNotifications)
}

// ListNotificationsInput contains parameters for the delivery log.
type ListNotificationsInput struct {
	Status string `query:"status" enum:"sent,failed" doc:"Only deliveries with this status"`
	Limit  int    `query:"limit" default:"50" minimum:"1" maximum:"500" doc:"Maximum entries"`
}

// ListNotificationsOutput wraps the delivery log for Huma.
type ListNotificationsOutput struct {
	Body struct {
		Deliveries []notify.Delivery `json:"deliveries" doc:"Delivery attempts"`
		Stats      *notify.Stats     `json:"stats,omitempty" doc:"Dispatcher counters since startup"`
	}
}

func (s *Server) handleListNotifications(ctx context.Context, input *ListNotificationsInput) (*ListNotificationsOutput, error) {
	if _, err := s.RequireAdmin(ctx); err != nil {
		return nil, err
	}

	if s.services.Journal == nil {
		return nil, domainerrors.Internal("notification journal is not available")
	}

	deliveries, err := s.services.Journal.Recent(ctx, input.Status, input.Limit)
	if err != nil {
		return nil, err
	}

	out := &ListNotificationsOutput{}
	out.Body.Deliveries = deliveries
	if s.services.Dispatcher != nil {
		stats := s.services.Dispatcher.Stats()
		out.Body.Stats = &stats
	}
	return out, nil
}
