package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_UsesCCMHome(t *testing.T) {
	home := filepath.Join(t.TempDir(), "ccm-home")
	t.Setenv("CCM_HOME", home)
	t.Setenv("CCM_YOURKIT_AGENT", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}
	if cfg.Home != home {
		t.Fatalf("expected home %s, got %s", home, cfg.Home)
	}
	// el home se crea si no existe
	if st, err := os.Stat(home); err != nil || !st.IsDir() {
		t.Fatalf("home not created: %v", err)
	}
}

func TestLoad_ReadsConfigFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("CCM_HOME", home)
	t.Setenv("CCM_YOURKIT_AGENT", "")
	if err := os.WriteFile(filepath.Join(home, "config.yaml"), []byte("yourkit_agent: /opt/yk/agent.so\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}
	if cfg.YourkitAgent != "/opt/yk/agent.so" {
		t.Fatalf("config file not read: %q", cfg.YourkitAgent)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("CCM_HOME", home)
	t.Setenv("CCM_YOURKIT_AGENT", "/env/agent.so")
	if err := os.WriteFile(filepath.Join(home, "config.yaml"), []byte("yourkit_agent: /file/agent.so\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}
	if cfg.YourkitAgent != "/env/agent.so" {
		t.Fatalf("env must win: %q", cfg.YourkitAgent)
	}
}

func TestCurrentCluster_Lifecycle(t *testing.T) {
	cfg := &Config{Home: t.TempDir()}

	if _, err := cfg.CurrentCluster(); !errors.Is(err, ErrNoCurrentCluster) {
		t.Fatalf("expected ErrNoCurrentCluster, got %v", err)
	}

	if err := cfg.SetCurrentCluster("mycluster"); err != nil {
		t.Fatalf("SetCurrentCluster err: %v", err)
	}
	name, err := cfg.CurrentCluster()
	if err != nil {
		t.Fatalf("CurrentCluster err: %v", err)
	}
	if name != "mycluster" {
		t.Fatalf("unexpected current: %q", name)
	}

	if err := cfg.ClearCurrentCluster(); err != nil {
		t.Fatalf("ClearCurrentCluster err: %v", err)
	}
	if _, err := cfg.CurrentCluster(); !errors.Is(err, ErrNoCurrentCluster) {
		t.Fatalf("expected ErrNoCurrentCluster after clear, got %v", err)
	}
	// clear repetido es un no-op
	if err := cfg.ClearCurrentCluster(); err != nil {
		t.Fatalf("repeated clear err: %v", err)
	}
}

func TestListClusters(t *testing.T) {
	home := t.TempDir()
	cfg := &Config{Home: home}

	// solo los directorios con cluster.conf cuentan
	for _, name := range []string{"alpha", "beta"} {
		dir := filepath.Join(home, name)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "cluster.conf"), []byte("name: "+name+"\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.MkdirAll(filepath.Join(home, "not-a-cluster"), 0o755); err != nil {
		t.Fatal(err)
	}

	names, err := cfg.ListClusters()
	if err != nil {
		t.Fatalf("ListClusters err: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("expected 2 clusters, got %v", names)
	}
}
