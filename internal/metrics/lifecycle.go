package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Métricas de ciclo de vida de nodos. Viven en un package standalone para
// evitar ciclos de import entre node/logwatch y la capa HTTP del monitor.

var (
	NodeStarts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ccm_node_starts_total",
		Help: "Arranques de nodo exitosos",
	})

	NodeStops = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ccm_node_stops_total",
		Help: "Detenciones de nodo confirmadas",
	})

	StatusTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ccm_status_transitions_total",
		Help: "Transiciones de estado observadas por el liveness probe",
	}, []string{"from", "to"})

	WatchTimeouts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ccm_watch_timeouts_total",
		Help: "Watches de log que vencieron por timeout",
	})

	WatchProcessFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ccm_watch_process_failures_total",
		Help: "Watches abortados por salida anormal del proceso observado",
	})
)

// Register registra las métricas de lifecycle en el registry dado (o el
// default si es nil). Tolera registros duplicados.
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	collectors := []prometheus.Collector{
		NodeStarts,
		NodeStops,
		StatusTransitions,
		WatchTimeouts,
		WatchProcessFailures,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
