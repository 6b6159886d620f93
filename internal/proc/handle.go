// Package proc envuelve procesos lanzados con os/exec detrás de un handle
// consultable sin bloquear: el server gestionado corre como proceso
// independiente y solo se observa por exit code y output capturado.
package proc

import (
	"bytes"
	"os/exec"
	"sync"
)

// Handle es el proceso lanzado, con stdout/stderr capturados y estado de
// salida consultable vía Poll.
type Handle struct {
	cmd *exec.Cmd

	mu     sync.Mutex
	stdout bytes.Buffer
	stderr bytes.Buffer
	exited bool
	code   int
}

// lockedWriter serializa escrituras del proceso hijo contra lecturas del
// watcher (Stdout/Stderr pueden llamarse mientras el proceso sigue vivo).
type lockedWriter struct {
	mu  *sync.Mutex
	buf *bytes.Buffer
}

func (w lockedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

// Start lanza el comando con el entorno y directorio dados y queda esperando
// su salida en background.
func Start(name string, args []string, env []string, dir string) (*Handle, error) {
	h := &Handle{}
	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	if env != nil {
		cmd.Env = env
	}
	cmd.Stdout = lockedWriter{mu: &h.mu, buf: &h.stdout}
	cmd.Stderr = lockedWriter{mu: &h.mu, buf: &h.stderr}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	h.cmd = cmd

	go func() {
		err := cmd.Wait()
		h.mu.Lock()
		defer h.mu.Unlock()
		h.exited = true
		if cmd.ProcessState != nil {
			h.code = cmd.ProcessState.ExitCode()
		} else if err != nil {
			h.code = -1
		}
	}()

	return h, nil
}

// Poll reporta si el proceso terminó y con qué exit code.
// No bloquea nunca.
func (h *Handle) Poll() (exited bool, code int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exited, h.code
}

// Pid retorna el pid del proceso lanzado.
func (h *Handle) Pid() int {
	if h.cmd == nil || h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

// Stdout retorna el stdout capturado hasta el momento.
func (h *Handle) Stdout() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stdout.String()
}

// Stderr retorna el stderr capturado hasta el momento.
func (h *Handle) Stderr() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stderr.String()
}
