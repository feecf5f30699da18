package handler

import (
	"net/http"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
}

// Health reports whether the pool can hand out a connection and, when
// configured, whether Redis answers
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	services := make(map[string]string)

	if h.pool.HealthCheck(ctx) {
		services["database"] = "healthy"
	} else {
		services["database"] = "unhealthy"
	}

	if h.rdb != nil {
		if err := h.rdb.HealthCheck(ctx); err != nil {
			services["redis"] = "unhealthy"
		} else {
			services["redis"] = "healthy"
		}
	}

	status := "healthy"
	for _, s := range services {
		if s == "unhealthy" {
			status = "degraded"
			break
		}
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, HealthResponse{Status: status, Services: services})
}

// Ready returns whether the service is ready to accept requests
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if !h.pool.HealthCheck(ctx) {
		http.Error(w, "database not ready", http.StatusServiceUnavailable)
		return
	}

	if h.rdb != nil {
		if err := h.rdb.HealthCheck(ctx); err != nil {
			http.Error(w, "redis not ready", http.StatusServiceUnavailable)
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
