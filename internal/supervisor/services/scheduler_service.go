// Figures - Learner Analytics Metrics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/figures

package services

import (
	"context"
	"fmt"
)

// Lifecycle is satisfied by *scheduler.Scheduler.
type Lifecycle interface {
	Start(ctx context.Context) error
	Stop() error
}

// SchedulerService adapts a Start/Stop component to suture's Serve: it
// starts the component, waits for cancellation, then stops it.
type SchedulerService struct {
	manager Lifecycle
}

func NewSchedulerService(manager Lifecycle) *SchedulerService {
	return &SchedulerService{manager: manager}
}

// Serve implements suture.Service. A Start failure is returned at once so
// suture restarts the service with backoff.
func (s *SchedulerService) Serve(ctx context.Context) error {
	if err := s.manager.Start(ctx); err != nil {
		return fmt.Errorf("metrics scheduler start failed: %w", err)
	}
	<-ctx.Done()
	if err := s.manager.Stop(); err != nil {
		return fmt.Errorf("metrics scheduler stop failed: %w", err)
	}
	return ctx.Err()
}

func (s *SchedulerService) String() string { return "metrics-scheduler" }
