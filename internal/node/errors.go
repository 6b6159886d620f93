package node

import (
	"errors"
	"fmt"

	"github.com/zackse/ccm/internal/proc"
)

// ErrAlreadyRunning se retorna al intentar arrancar un nodo vivo.
var ErrAlreadyRunning = errors.New("node is already running")

// PortInUseError indica que un endpoint declarado del nodo no se pudo bindear
// antes del arranque.
type PortInUseError struct {
	Addr string
	Err  error
}

func (e *PortInUseError) Error() string {
	return fmt.Sprintf("address %s already in use: %v", e.Addr, e.Err)
}

func (e *PortInUseError) Unwrap() error { return e.Err }

// StartError indica un arranque fallido (pid ilegible o liveness negativo
// post-launch). Lleva el handle del proceso para diagnóstico: su stderr
// capturado suele contener la causa real.
type StartError struct {
	Node    string
	Process *proc.Handle
	Err     error
}

func (e *StartError) Error() string {
	msg := fmt.Sprintf("error starting node %s", e.Node)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Process != nil {
		if stderr := e.Process.Stderr(); stderr != "" {
			msg += "\nstderr:\n" + stderr
		}
	}
	return msg
}

func (e *StartError) Unwrap() error { return e.Err }

// StopError indica que el proceso siguió vivo después de agotar los reintentos
// de espera escalonados.
type StopError struct {
	Node string
}

func (e *StopError) Error() string {
	return fmt.Sprintf("problem stopping node %s: process still alive after retry budget", e.Node)
}
