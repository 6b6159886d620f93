package node

import (
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func TestStart_AlreadyRunning(t *testing.T) {
	n := newTestNode(t)
	n.probe = func(int) error { return nil }
	n.pid = 4242
	n.status = StatusUp

	_, err := n.Start(StartOptions{})
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
}

func TestStart_PortInUse(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	port := l.Addr().(*net.TCPAddr).Port

	n := New(&testCluster{path: t.TempDir()}, Options{
		Name:             "node1",
		ThriftInterface:  Addr{Host: "127.0.0.1", Port: port},
		StorageInterface: Addr{Host: "127.0.0.1", Port: port},
	})

	_, err = n.Start(StartOptions{})
	var pe *PortInUseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *PortInUseError, got %v", err)
	}
}

func TestSignal_NotRunningIsNoop(t *testing.T) {
	n := newTestNode(t)
	ok, err := n.Signal(true)
	if err != nil {
		t.Fatalf("Signal err: %v", err)
	}
	if ok {
		t.Fatal("signaling a stopped node must be a no-op")
	}
}

func TestStop_NotRunning(t *testing.T) {
	n := newTestNode(t)
	ok, err := n.Stop(StopOptions{})
	if err != nil {
		t.Fatalf("Stop err: %v", err)
	}
	if ok {
		t.Fatal("stopping a stopped node must report false")
	}
}

func TestConfirmStopped_ExhaustsRetryBudget(t *testing.T) {
	n := newTestNode(t)
	probes := 0
	n.probe = func(int) error { probes++; return nil } // nunca muere
	n.pid = 4242
	n.status = StatusUp
	n.stopWaitUnit = time.Microsecond

	err := n.ConfirmStopped()
	var se *StopError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StopError, got %v", err)
	}
	// chequeo inicial + 7 reintentos con espera duplicada
	if probes != 8 {
		t.Fatalf("expected 8 liveness checks, got %d", probes)
	}
}

func TestConfirmStopped_ReturnsOnceDead(t *testing.T) {
	n := newTestNode(t)
	probes := 0
	n.probe = func(int) error {
		probes++
		if probes >= 3 {
			return unix.ESRCH
		}
		return nil
	}
	n.pid = 4242
	n.status = StatusUp
	n.stopWaitUnit = time.Microsecond

	if err := n.ConfirmStopped(); err != nil {
		t.Fatalf("ConfirmStopped err: %v", err)
	}
	if n.Status() != StatusDown {
		t.Fatalf("expected DOWN, got %s", n.Status())
	}
	if n.PID() != 0 {
		t.Fatalf("pid must be cleared after confirmed death, got %d", n.PID())
	}
}

// fakeInstall arma una instalación mínima cuyo launcher es un shell script:
// escribe su pid donde se lo piden, anuncia el listener en el log y se queda
// dormido hasta que lo maten.
func fakeInstall(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	script := `#!/bin/sh
while [ $# -gt 0 ]; do
  case "$1" in
    -p) pidfile="$2"; shift 2 ;;
    *) shift ;;
  esac
done
echo $$ > "$pidfile"
mkdir -p "$CASSANDRA_LOG_DIR"
echo "INFO Starting listening for CQL clients" >> "$CASSANDRA_LOG_DIR/system.log"
exec sleep 60
`
	if err := os.MkdirAll(filepath.Join(dir, "bin"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "bin", "cassandra"), []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "conf"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "conf", "cassandra.yaml"), []byte("cluster_name: template\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestStartStop_RealProcess(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("needs a POSIX shell")
	}
	install := fakeInstall(t)
	n := New(&testCluster{path: t.TempDir(), install: install}, Options{
		Name:             "node1",
		ThriftInterface:  Addr{Host: "127.0.0.1", Port: 0},
		StorageInterface: Addr{Host: "127.0.0.1", Port: 0},
	})
	if err := n.EnsureLayout(); err != nil {
		t.Fatal(err)
	}

	h, err := n.Start(StartOptions{
		WaitForBinaryProto: true,
		BinaryProtoTimeout: 30 * time.Second,
		SettleDelay:        time.Millisecond,
		PIDWaitTimeout:     10 * time.Second,
	})
	if err != nil {
		stderr := ""
		if h != nil {
			stderr = h.Stderr()
		}
		t.Fatalf("Start err: %v (stderr: %s)", err, stderr)
	}
	if n.Status() != StatusUp {
		t.Fatalf("expected UP after start, got %s", n.Status())
	}
	if n.PID() == 0 {
		t.Fatal("expected the pid read back from the pid file")
	}

	n.stopWaitUnit = 20 * time.Millisecond
	ok, err := n.Stop(StopOptions{})
	if err != nil {
		t.Fatalf("Stop err: %v", err)
	}
	if !ok {
		t.Fatal("Stop should report the node was running")
	}
	if n.Status() != StatusDown {
		t.Fatalf("expected DOWN after stop, got %s", n.Status())
	}
}
