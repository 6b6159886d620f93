package node

import (
	"fmt"
	"time"

	"github.com/zackse/ccm/internal/logwatch"
)

// Timeouts default para los watches de "peer notice". Detectar un peer UP es
// rápido (gossip); detectar la muerte puede tardar bastante más.
const (
	DefaultAliveTimeout = 2 * time.Minute
	DefaultDeathTimeout = 10 * time.Minute
)

// MarkLog captura la posición actual del log del nodo, para acotar watches
// posteriores a contenido nuevo. La marca queda sin sentido si el log rota o
// se trunca; eso no se reconcilia.
func (n *Node) MarkLog() int64 {
	return logwatch.Mark(n.LogFile())
}

// GrepLog retorna todas las líneas del log del nodo que matchean expr.
func (n *Node) GrepLog(expr string) ([]logwatch.Match, error) {
	return logwatch.Grep(n.LogFile(), expr)
}

// WatchLogFor bloquea hasta que todas las expresiones aparezcan en el log de
// este nodo (o timeout / muerte del proceso observado, si viene en opts).
func (n *Node) WatchLogFor(exprs []string, opts logwatch.Options) ([]logwatch.Match, error) {
	opts.Node = n.name
	return logwatch.Watch(n.LogFile(), exprs, opts)
}

// WatchLogForAlive bloquea hasta que el log de ESTE nodo muestre que marcó UP
// a cada uno de los peers dados, desde fromMark.
func (n *Node) WatchLogForAlive(peers []*Node, fromMark int64, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultAliveTimeout
	}
	exprs := make([]string, len(peers))
	for i, p := range peers {
		exprs[i] = fmt.Sprintf("%s.* now UP", p.Address())
	}
	_, err := n.WatchLogFor(exprs, logwatch.Options{FromMark: fromMark, Timeout: timeout})
	return err
}

// WatchLogForDeath bloquea hasta que el log de ESTE nodo muestre que marcó
// muertos a los peers dados, desde fromMark.
func (n *Node) WatchLogForDeath(peers []*Node, fromMark int64, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultDeathTimeout
	}
	exprs := make([]string, len(peers))
	for i, p := range peers {
		exprs[i] = fmt.Sprintf("%s is now (?:dead|DOWN)", p.Address())
	}
	_, err := n.WatchLogFor(exprs, logwatch.Options{FromMark: fromMark, Timeout: timeout})
	return err
}
