// Figures - Learner Analytics Metrics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/figures

package api

import (
	"net/http"
	"time"
)

// HealthStatus is the payload of GET /api/v1/health.
type HealthStatus struct {
	Status            string  `json:"status"` // healthy or degraded
	Version           string  `json:"version"`
	DatabaseConnected bool    `json:"database_connected"`
	BackfillRunning   bool    `json:"backfill_running"`
	Uptime            float64 `json:"uptime_seconds"`
}

// Health reports database connectivity. A degraded service answers 503 so
// load balancers take it out of rotation.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	health := HealthStatus{
		Status:            "healthy",
		Version:           h.version,
		DatabaseConnected: h.store != nil && h.store.Ping(r.Context()) == nil,
		BackfillRunning:   h.jobs != nil && h.jobs.backfiller.IsRunning(),
		Uptime:            time.Since(h.startTime).Seconds(),
	}
	if !health.DatabaseConnected {
		health.Status = "degraded"
		rw.writeJSON(http.StatusServiceUnavailable, APIResponse{Success: false, Data: health, Meta: rw.meta()})
		return
	}
	rw.Success(health)
}
