package handlers

import (
	"net/http"

	"github.com/sirupsen/logrus"
)

type SystemHandlers struct {
	redis  Pinger
	routes []RouteDoc
	logger *logrus.Logger
}

type RouteDoc struct {
	Name   string   `json:"name"`
	Method string   `json:"method"`
	Path   string   `json:"path"`
	Public bool     `json:"public"`
	Scopes []string `json:"scopes,omitempty"`
}

type HealthResponse struct {
	Status string `json:"status"`
	Redis  string `json:"redis"`
}

func NewSystemHandlers(redis Pinger, logger *logrus.Logger) *SystemHandlers {
	return &SystemHandlers{redis: redis, logger: logger}
}

func (h *SystemHandlers) SetRoutes(routes []Route) {
	docs := make([]RouteDoc, 0, len(routes))
	for _, rt := range routes {
		docs = append(docs, RouteDoc{
			Name:   rt.Name,
			Method: rt.Method,
			Path:   rt.Path,
			Public: rt.Public,
			Scopes: rt.Scopes,
		})
	}
	h.routes = docs
}

func (h *SystemHandlers) Health(w http.ResponseWriter, r *http.Request) {
	if h.redis != nil {
		if err := h.redis.Ping(r.Context()); err != nil {
			h.logger.WithError(err).Warn("Health check: redis unreachable")
			respondWithJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "degraded", Redis: "unavailable"})
			return
		}
	}
	respondWithJSON(w, http.StatusOK, HealthResponse{Status: "ok", Redis: "ok"})
}

// Docs lists the route table.
func (h *SystemHandlers) Docs(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"routes": h.routes})
}
