package node

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/zackse/ccm/internal/logwatch"
)

func appendLog(t *testing.T, n *Node, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(n.LogFile()), 0o755); err != nil {
		t.Fatal(err)
	}
	f, err := os.OpenFile(n.LogFile(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		t.Fatal(err)
	}
}

func twoNodes(t *testing.T) (watcher, peer *Node) {
	t.Helper()
	cl := &testCluster{path: t.TempDir()}
	watcher = New(cl, Options{
		Name:             "node1",
		ThriftInterface:  Addr{Host: "127.0.0.1", Port: 9160},
		StorageInterface: Addr{Host: "127.0.0.1", Port: 7000},
	})
	peer = New(cl, Options{
		Name:             "node2",
		ThriftInterface:  Addr{Host: "127.0.0.2", Port: 9160},
		StorageInterface: Addr{Host: "127.0.0.2", Port: 7000},
	})
	return watcher, peer
}

func TestWatchLogForAlive(t *testing.T) {
	w, p := twoNodes(t)
	appendLog(t, w, "INFO Node /127.0.0.2 state jump to normal\n")
	appendLog(t, w, "INFO InetAddress /127.0.0.2 is now UP\n")

	if err := w.WatchLogForAlive([]*Node{p}, 0, 5*time.Second); err != nil {
		t.Fatalf("WatchLogForAlive err: %v", err)
	}
}

func TestWatchLogForDeath_BothSpellings(t *testing.T) {
	w, p := twoNodes(t)

	appendLog(t, w, "INFO InetAddress /127.0.0.2 is now DOWN\n")
	if err := w.WatchLogForDeath([]*Node{p}, 0, 5*time.Second); err != nil {
		t.Fatalf("DOWN spelling: %v", err)
	}

	mark := w.MarkLog()
	appendLog(t, w, "INFO InetAddress /127.0.0.2 is now dead\n")
	if err := w.WatchLogForDeath([]*Node{p}, mark, 5*time.Second); err != nil {
		t.Fatalf("dead spelling: %v", err)
	}
}

func TestWatchLogFor_CarriesNodeName(t *testing.T) {
	w, _ := twoNodes(t)
	appendLog(t, w, "INFO nothing relevant\n")

	_, err := w.WatchLogFor([]string{"never"}, logwatch.Options{
		Timeout:          30 * time.Millisecond,
		PollInterval:     5 * time.Millisecond,
		FilePollInterval: 5 * time.Millisecond,
	})
	var te *logwatch.TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("expected *TimeoutError, got %v", err)
	}
	if te.Node != "node1" {
		t.Fatalf("timeout should name the node, got %q", te.Node)
	}
}

func TestMarkAndGrepLog(t *testing.T) {
	w, _ := twoNodes(t)
	if w.MarkLog() != 0 {
		t.Fatal("mark of a missing log must be 0")
	}
	appendLog(t, w, "ERROR exploded\nINFO fine\n")
	if w.MarkLog() == 0 {
		t.Fatal("expected nonzero mark after writing")
	}
	ms, err := w.GrepLog("^ERROR")
	if err != nil {
		t.Fatalf("GrepLog err: %v", err)
	}
	if len(ms) != 1 || ms[0].Line != "ERROR exploded" {
		t.Fatalf("unexpected grep result: %+v", ms)
	}
}
