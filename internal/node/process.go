package node

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/zackse/ccm/internal/logwatch"
	"github.com/zackse/ccm/internal/metrics"
	"github.com/zackse/ccm/internal/observability/logger"
	"github.com/zackse/ccm/internal/proc"
	"github.com/zackse/ccm/internal/util/textfile"
)

// binaryProtoPattern es la línea que el server emite justo antes de bindear
// el listener de clientes.
const binaryProtoPattern = "Starting listening for CQL clients"

// StartOptions controla el arranque del proceso del server.
// El zero value es el arranque default: join ring, esperar el pid file.
type StartOptions struct {
	// NoJoinRing arranca con -Dcassandra.join_ring=false.
	NoJoinRing bool

	// NoWait no espera el pid file; duerme un margen corto y sigue.
	NoWait bool

	// ReplaceToken / ReplaceAddress pasan los hints de reemplazo al server.
	ReplaceToken   string
	ReplaceAddress string

	// JVMArgs son flags extra para el runtime.
	JVMArgs []string

	// ProfileAgent inyecta un -agentpath en el launcher local del nodo.
	// ProfileOptions se agrega como =opciones del agente.
	ProfileAgent   string
	ProfileOptions string

	// WaitForBinaryProto bloquea hasta que el log anuncie el listener de
	// clientes y aplica luego SettleDelay: la línea se emite un poco antes
	// del bind real. SettleDelay es un tunable, no una garantía.
	WaitForBinaryProto bool
	SettleDelay        time.Duration
	BinaryProtoTimeout time.Duration

	// PIDWaitTimeout acota la espera del pid file. Default: 30s.
	PIDWaitTimeout time.Duration
}

// Start lanza el proceso del server para un nodo que no está corriendo.
// Verifica primero que cada endpoint declarado se pueda bindear, regenera la
// configuración del server, y después del spawn lee el pid que el proceso
// mismo escribe y fuerza un refresh de estado.
func (n *Node) Start(opts StartOptions) (*proc.Handle, error) {
	running, err := n.IsRunning()
	if err != nil {
		return nil, err
	}
	if running {
		return nil, fmt.Errorf("%s: %w", n.name, ErrAlreadyRunning)
	}

	addrs := []Addr{n.interfaces.Storage, n.interfaces.Thrift}
	if n.interfaces.Binary != nil {
		addrs = append(addrs, *n.interfaces.Binary)
	}
	for _, a := range addrs {
		if err := checkSocketAvailable(a); err != nil {
			return nil, err
		}
	}

	// La configuración del server se regenera siempre antes del spawn: el
	// registro del nodo es la fuente de verdad, no los archivos viejos.
	if err := n.render(); err != nil {
		return nil, err
	}

	installDir, err := n.resolveInstallDir()
	if err != nil {
		return nil, err
	}

	// Copia local del launcher: el profiling lo modifica, y una corrida
	// anterior pudo haberlo dejado modificado.
	launcher, err := n.stageLauncher(installDir, opts)
	if err != nil {
		return nil, err
	}

	args := []string{"-p", n.pidFilePath(), fmt.Sprintf("-Dcassandra.join_ring=%t", !opts.NoJoinRing)}
	if opts.ReplaceToken != "" {
		args = append(args, "-Dcassandra.replace_token="+opts.ReplaceToken)
	}
	if opts.ReplaceAddress != "" {
		args = append(args, "-Dcassandra.replace_address="+opts.ReplaceAddress)
	}
	args = append(args, opts.JVMArgs...)

	// El pid file lo escribe el proceso; uno viejo confundiría la lectura.
	_ = os.Remove(n.pidFilePath())

	n.log.Info("starting", logger.Cluster(n.cluster.Name()))
	h, err := proc.Start(launcher, args, n.serverEnv(installDir), n.Path())
	if err != nil {
		return nil, &StartError{Node: n.name, Err: err}
	}

	if opts.NoWait {
		// margen para detectar errores tempranos y que el pid quede escrito
		time.Sleep(2 * time.Second)
	} else {
		timeout := opts.PIDWaitTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		if err := n.waitForPIDFile(h, timeout); err != nil {
			return h, err
		}
	}

	if err := n.updatePIDFromFile(h); err != nil {
		return h, err
	}

	running, err = n.IsRunning()
	if err != nil {
		return h, err
	}
	if !running {
		return h, &StartError{Node: n.name, Process: h, Err: errors.New("process not alive after startup")}
	}

	if opts.WaitForBinaryProto {
		_, err := logwatch.Watch(n.LogFile(), []string{binaryProtoPattern}, logwatch.Options{
			Node:    n.name,
			Process: h,
			Timeout: opts.BinaryProtoTimeout,
		})
		if err != nil {
			return h, err
		}
		settle := opts.SettleDelay
		if settle <= 0 {
			settle = 200 * time.Millisecond
		}
		time.Sleep(settle)
	}

	metrics.NodeStarts.Inc()
	n.log.Info("started", logger.PID(n.PID()))
	return h, nil
}

// stageLauncher copia el launcher de la instalación al bin del nodo, lo deja
// ejecutable y aplica la inyección de profiling si corresponde.
func (n *Node) stageLauncher(installDir string, opts StartOptions) (string, error) {
	src := filepath.Join(installDir, "bin", "cassandra")
	dst := filepath.Join(n.BinDir(), "cassandra")
	if err := copyFile(src, dst); err != nil {
		return "", fmt.Errorf("stage launcher: %w", err)
	}
	if err := os.Chmod(dst, 0o755); err != nil {
		return "", err
	}
	if opts.ProfileAgent != "" {
		agent := "-agentpath:" + opts.ProfileAgent
		if opts.ProfileOptions != "" {
			agent += "=" + opts.ProfileOptions
		}
		pattern := `cassandra_parms="-Dlog4j\.configuration=log4j-server\.properties -Dlog4j\.defaultInitOverride=true`
		repl := `    cassandra_parms="-Dlog4j.configuration=log4j-server.properties -Dlog4j.defaultInitOverride=true ` + agent + `"`
		if err := textfile.ReplaceInFile(dst, pattern, repl); err != nil {
			return "", fmt.Errorf("inject profiling agent: %w", err)
		}
	}
	return dst, nil
}

// serverEnv arma el entorno del proceso del server apuntando a la instalación
// y a la configuración renderizada de este nodo.
func (n *Node) serverEnv(installDir string) []string {
	return append(os.Environ(),
		"CASSANDRA_HOME="+installDir,
		"CASSANDRA_CONF="+n.ConfDir(),
		"CASSANDRA_INCLUDE="+filepath.Join(installDir, "bin", "cassandra.in.sh"),
		"CASSANDRA_LOG_DIR="+filepath.Join(n.Path(), "logs"),
	)
}

// waitForPIDFile espera a que el proceso escriba su pid file. Si el proceso
// muere antes, el error lleva el handle con el stderr capturado.
func (n *Node) waitForPIDFile(h *proc.Handle, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if st, err := os.Stat(n.pidFilePath()); err == nil && st.Size() > 0 {
			return nil
		}
		if exited, code := h.Poll(); exited && code != 0 {
			return &StartError{Node: n.name, Process: h, Err: fmt.Errorf("process exited with code %d before writing pid file", code)}
		}
		if time.Now().After(deadline) {
			return &StartError{Node: n.name, Process: h, Err: errors.New("timed out waiting for pid file")}
		}
		time.Sleep(100 * time.Millisecond)
	}
}

// updatePIDFromFile lee el pid que el proceso escribió y fuerza un refresh.
func (n *Node) updatePIDFromFile(h *proc.Handle) error {
	b, err := os.ReadFile(n.pidFilePath())
	if err != nil {
		return &StartError{Node: n.name, Process: h, Err: fmt.Errorf("read pid file: %w", err)}
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return &StartError{Node: n.name, Process: h, Err: fmt.Errorf("parse pid file: %w", err)}
	}
	n.mu.Lock()
	n.pid = pid
	n.mu.Unlock()
	return n.Refresh()
}

// StopOptions controla la detención. El zero value es la detención default:
// señal graceful y esperar la muerte confirmada.
type StopOptions struct {
	// Force manda SIGKILL en vez de SIGTERM.
	Force bool
	// NoWait retorna después de señalar, sin confirmar la muerte.
	NoWait bool
}

// Signal envía la señal de terminación al proceso del nodo.
// Retorna false si el nodo no estaba corriendo (no-op).
func (n *Node) Signal(gentle bool) (bool, error) {
	running, err := n.IsRunning()
	if err != nil || !running {
		return false, err
	}
	n.mu.Lock()
	pid := n.pid
	n.mu.Unlock()
	if pid == 0 {
		return false, nil
	}

	sig := unix.SIGTERM
	if !gentle {
		sig = unix.SIGKILL
	}
	n.log.Info("signaling", logger.PID(pid))
	if err := unix.Kill(pid, sig); err != nil && !errors.Is(err, unix.ESRCH) {
		return false, fmt.Errorf("signal pid %d: %w", pid, err)
	}
	return true, nil
}

// ConfirmStopped espera a que el refresh reporte que el proceso ya no corre,
// con reintentos de espera que se duplican (1+2+4+…+64 unidades; con la
// unidad default de 1s el server no debería tardar más de un minuto en
// apagarse). Agotar los reintentos con el proceso vivo es *StopError.
func (n *Node) ConfirmStopped() error {
	running, err := n.IsRunning()
	if err != nil {
		return err
	}
	if !running {
		return nil
	}
	wait := n.stopWaitUnit
	for i := 0; i < 7; i++ {
		time.Sleep(wait)
		running, err = n.IsRunning()
		if err != nil {
			return err
		}
		if !running {
			return nil
		}
		wait *= 2
	}
	return &StopError{Node: n.name}
}

// Stop detiene el nodo: señal, settling corto, y confirmación de muerte salvo
// NoWait. Retorna false si el nodo no estaba corriendo.
func (n *Node) Stop(opts StopOptions) (bool, error) {
	ok, err := n.Signal(!opts.Force)
	if err != nil || !ok {
		return false, err
	}

	time.Sleep(100 * time.Millisecond)

	if !opts.NoWait {
		if err := n.ConfirmStopped(); err != nil {
			return false, err
		}
	}
	metrics.NodeStops.Inc()
	n.log.Info("stopped")
	return true, nil
}

// Nodetool corre el comando de administración JMX contra este nodo y hereda
// stdout/stderr del proceso actual.
func (n *Node) Nodetool(cmd string, extra ...string) error {
	installDir, err := n.resolveInstallDir()
	if err != nil {
		return err
	}
	bin := filepath.Join(installDir, "bin", "nodetool")
	args := append([]string{"-h", n.Address(), "-p", strconv.Itoa(n.jmxPort), cmd}, extra...)
	c := exec.Command(bin, args...)
	c.Env = n.serverEnv(installDir)
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	return c.Run()
}

// Decommission saca el nodo del ring. Solo es válido sobre un nodo UP; el
// estado resultante es terminal para la membresía pero el proceso sigue
// contando como "corriendo".
func (n *Node) Decommission() error {
	live, err := n.IsLive()
	if err != nil {
		return err
	}
	if !live {
		return fmt.Errorf("%s: decommission requires a live node", n.name)
	}
	if err := n.Nodetool("decommission"); err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	old := n.status
	n.status = StatusDecommissioned
	metrics.StatusTransitions.WithLabelValues(string(old), string(n.status)).Inc()
	return n.saveLocked()
}

// checkSocketAvailable verifica que el endpoint esté libre para bindear.
func checkSocketAvailable(a Addr) error {
	l, err := net.Listen("tcp", a.String())
	if err != nil {
		return &PortInUseError{Addr: a.String(), Err: err}
	}
	return l.Close()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
