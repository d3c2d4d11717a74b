package service

import (
	"context"

	"github.com/campushub/campus-events/internal/model"
	"github.com/campushub/campus-events/internal/store"
)

// AnalyticsService computes the admin dashboard counters.
type AnalyticsService struct {
	st store.Store
}

// NewAnalyticsService constructs an AnalyticsService.
func NewAnalyticsService(st store.Store) *AnalyticsService {
	return &AnalyticsService{st: st}
}

// Summary returns aggregate counts over users, events, and registrations.
func (s *AnalyticsService) Summary(ctx context.Context) (*model.AnalyticsSummary, error) {
	totalEvents, err := s.st.CountEvents(ctx)
	if err != nil {
		return nil, err
	}
	upcoming, err := s.st.CountEventsByStatus(ctx, model.StatusUpcoming)
	if err != nil {
		return nil, err
	}
	completed, err := s.st.CountEventsByStatus(ctx, model.StatusCompleted)
	if err != nil {
		return nil, err
	}
	totalUsers, err := s.st.CountUsers(ctx)
	if err != nil {
		return nil, err
	}
	totalRegs, err := s.st.CountRegistrations(ctx)
	if err != nil {
		return nil, err
	}
	return &model.AnalyticsSummary{
		TotalEvents:        totalEvents,
		UpcomingEvents:     upcoming,
		CompletedEvents:    completed,
		TotalUsers:         totalUsers,
		TotalRegistrations: totalRegs,
	}, nil
}
