package node

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/zackse/ccm/internal/metrics"
)

// Status es el estado de ciclo de vida de un nodo, derivado del liveness
// probe. Máquina de estados: UNINITIALIZED → DOWN ⇄ UP → DECOMMISSIONED.
type Status string

const (
	StatusUninitialized  Status = "UNINITIALIZED"
	StatusUp             Status = "UP"
	StatusDown           Status = "DOWN"
	StatusDecommissioned Status = "DECOMMISSIONED"
)

// kill0 es el liveness probe portable: señal 0 al pid y se interpreta el
// errno. No es invasivo, no afecta al proceso.
func kill0(pid int) error {
	return unix.Kill(pid, 0)
}

// Refresh recomputa el estado del nodo a partir del pid registrado.
//
// pid ausente: si estaba UP/DECOMMISSIONED se degrada a DOWN; si no, no-op.
// ESRCH/EPERM del probe: el proceso no corre, misma degradación. Cualquier
// otro error del probe es fatal y se propaga sin tocar el estado. Un probe
// exitoso promueve DOWN/UNINITIALIZED a UP.
//
// Si el estado observado difiere del anterior se limpia el pid en la
// degradación y se persiste el registro completo, exactamente una vez por
// transición: un refresh sin cambio nunca escribe.
func (n *Node) Refresh() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.refreshLocked()
}

func (n *Node) refreshLocked() error {
	old := n.status

	if n.pid == 0 {
		if old == StatusUp || old == StatusDecommissioned {
			n.status = StatusDown
		}
	} else {
		err := n.probe(n.pid)
		switch {
		case err == nil:
			if old == StatusDown || old == StatusUninitialized {
				n.status = StatusUp
			}
		case errors.Is(err, unix.ESRCH), errors.Is(err, unix.EPERM):
			// no existe, o no tenemos permiso para señalarlo: no corre
			if old == StatusUp || old == StatusDecommissioned {
				n.status = StatusDown
			}
		default:
			// condición de OS inesperada; nunca se traga
			return fmt.Errorf("liveness probe for pid %d: %w", n.pid, err)
		}
	}

	if old == n.status {
		return nil
	}
	if (old == StatusUp || old == StatusDecommissioned) && n.status == StatusDown {
		n.pid = 0
	}
	metrics.StatusTransitions.WithLabelValues(string(old), string(n.status)).Inc()
	return n.saveLocked()
}

// IsRunning reporta si el proceso del nodo está vivo (UP o DECOMMISSIONED).
// Siempre recomputa el estado primero; nunca confía en el cache.
func (n *Node) IsRunning() (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.refreshLocked(); err != nil {
		return false, err
	}
	return n.status == StatusUp || n.status == StatusDecommissioned, nil
}

// IsLive reporta si el nodo está vivo y sigue siendo miembro del cluster
// (solo UP; un nodo decomisionado corre pero ya no participa).
func (n *Node) IsLive() (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.refreshLocked(); err != nil {
		return false, err
	}
	return n.status == StatusUp, nil
}

// Status retorna el estado actual sin recomputarlo.
func (n *Node) Status() Status {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.status
}

// StatusString es la forma legible del estado para el CLI: UNINITIALIZED se
// muestra como DOWN con aclaración.
func (n *Node) StatusString() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.status == StatusUninitialized {
		return fmt.Sprintf("%s (%s)", StatusDown, "Not initialized")
	}
	return string(n.status)
}
