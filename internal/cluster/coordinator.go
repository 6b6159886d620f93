package cluster

import (
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zackse/ccm/internal/node"
	"github.com/zackse/ccm/internal/observability/logger"
)

// peerMark es un par (peer, marca de log) capturado antes de la acción que lo
// dispara. La captura previa es la única primitiva de orden del sistema: la
// línea del peer solo puede aparecer después de la marca.
type peerMark struct {
	peer *node.Node
	mark int64
}

// StartNodeOptions extiende el arranque local con la coordinación de peers.
type StartNodeOptions struct {
	node.StartOptions

	// WaitOtherNotice bloquea hasta que cada peer que corría al momento del
	// arranque haya logueado que marcó UP a este nodo.
	WaitOtherNotice bool
	// NoticeTimeout acota cada watch de peer individual.
	NoticeTimeout time.Duration
}

// StopNodeOptions extiende la detención local con la coordinación de peers.
type StopNodeOptions struct {
	node.StopOptions

	// WaitOtherNotice bloquea hasta que cada peer vivo haya logueado que
	// marcó muerto a este nodo. Un solo watch por peer, sin reintentos.
	WaitOtherNotice bool
	NoticeTimeout   time.Duration
}

// capturePeerMarks enumera los peers corriendo (excluyendo exclude) y captura
// la marca de log de cada uno. Tiene que llamarse estrictamente antes del
// spawn o la señal: capturar después podría perder la línea.
func (c *Cluster) capturePeerMarks(exclude string) ([]peerMark, error) {
	running, err := c.RunningNodes()
	if err != nil {
		return nil, err
	}
	var marks []peerMark
	for _, p := range running {
		if p.Name() == exclude {
			continue
		}
		marks = append(marks, peerMark{peer: p, mark: p.MarkLog()})
	}
	return marks, nil
}

// StartNode arranca el nodo dado y, si se pidió, espera a que todos los peers
// que ya corrían lo marquen UP. Los watches de peers son independientes entre
// sí y corren en paralelo: la latencia total la acota el peer más lento.
func (c *Cluster) StartNode(name string, opts StartNodeOptions) error {
	n, err := c.Node(name)
	if err != nil {
		return err
	}

	var marks []peerMark
	if opts.WaitOtherNotice {
		marks, err = c.capturePeerMarks(name)
		if err != nil {
			return err
		}
	}

	if _, err := n.Start(opts.StartOptions); err != nil {
		return err
	}

	if opts.WaitOtherNotice {
		var g errgroup.Group
		for _, pm := range marks {
			pm := pm
			g.Go(func() error {
				return pm.peer.WatchLogForAlive([]*node.Node{n}, pm.mark, opts.NoticeTimeout)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		c.log.Info("peers noticed node up", logger.Node(name))
	}
	return nil
}

// StopNode detiene el nodo dado. Con WaitOtherNotice, las marcas de los peers
// se capturan antes de señalar y la confirmación de muerte del proceso se
// hace recién después de que todos los peers lo hayan notado.
func (c *Cluster) StopNode(name string, opts StopNodeOptions) (bool, error) {
	n, err := c.Node(name)
	if err != nil {
		return false, err
	}

	var marks []peerMark
	if opts.WaitOtherNotice {
		marks, err = c.capturePeerMarks(name)
		if err != nil {
			return false, err
		}
	}

	ok, err := n.Signal(!opts.Force)
	if err != nil || !ok {
		return false, err
	}

	if opts.WaitOtherNotice {
		var g errgroup.Group
		for _, pm := range marks {
			pm := pm
			g.Go(func() error {
				return pm.peer.WatchLogForDeath([]*node.Node{n}, pm.mark, opts.NoticeTimeout)
			})
		}
		if err := g.Wait(); err != nil {
			return false, err
		}
		c.log.Info("peers noticed node down", logger.Node(name))
	} else {
		time.Sleep(100 * time.Millisecond)
	}

	if !opts.NoWait {
		if err := n.ConfirmStopped(); err != nil {
			return false, err
		}
	}
	return true, nil
}

// Start arranca todos los nodos del cluster en orden de nombre.
func (c *Cluster) Start(opts node.StartOptions) error {
	for _, n := range c.Nodes() {
		if _, err := n.Start(opts); err != nil {
			return err
		}
	}
	return nil
}

// Stop detiene todos los nodos del cluster. Retorna cuántos estaban corriendo.
func (c *Cluster) Stop(opts node.StopOptions) (int, error) {
	stopped := 0
	for _, n := range c.Nodes() {
		ok, err := n.Stop(opts)
		if err != nil {
			return stopped, err
		}
		if ok {
			stopped++
		}
	}
	return stopped, nil
}
