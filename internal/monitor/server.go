// Package monitor expone una vista HTTP read-only del cluster activo:
// /status con el snapshot de nodos (refrescado en cada request) y /metrics
// con las métricas de lifecycle en formato prometheus.
package monitor

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zackse/ccm/internal/cluster"
	"github.com/zackse/ccm/internal/metrics"
	"github.com/zackse/ccm/internal/observability/logger"
)

// Server sirve el estado de un cluster. No muta nada: los refresh de estado
// que dispara son los mismos que haría cualquier consulta de status.
type Server struct {
	cluster *cluster.Cluster
}

func New(c *cluster.Cluster) *Server {
	return &Server{cluster: c}
}

// Router arma el router chi con los dos endpoints.
func (s *Server) Router() http.Handler {
	_ = metrics.Register(nil)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/status", s.handleStatus)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// ListenAndServe bloquea sirviendo en addr.
func (s *Server) ListenAndServe(addr string) error {
	logger.Named("monitor").Info("listening", logger.Cluster(s.cluster.Name()))
	return http.ListenAndServe(addr, s.Router())
}

type statusResponse struct {
	Cluster string             `json:"cluster"`
	ID      string             `json:"id"`
	Nodes   []cluster.NodeInfo `json:"nodes"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.cluster.Snapshot()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(statusResponse{
		Cluster: s.cluster.Name(),
		ID:      s.cluster.ID(),
		Nodes:   nodes,
	})
}
