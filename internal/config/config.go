// Package config maneja la configuración de la herramienta: el directorio
// home donde viven los clusters y el puntero al cluster activo.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrNoCurrentCluster indica que no hay cluster activo seleccionado.
var ErrNoCurrentCluster = errors.New("no current cluster (use switch)")

// Config es la configuración de la herramienta, no de los servers.
type Config struct {
	// Home es el directorio raíz; cada cluster es un subdirectorio.
	Home string

	// YourkitAgent es el path al agente de profiling, si se usa --profile.
	YourkitAgent string `yaml:"yourkit_agent"`
}

// Load resuelve el home (CCM_HOME, o ~/.ccm) y lee config.yaml si existe.
// Variables de entorno pisan el archivo.
func Load() (*Config, error) {
	home := os.Getenv("CCM_HOME")
	if home == "" {
		userHome, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		home = filepath.Join(userHome, ".ccm")
	}
	if err := os.MkdirAll(home, 0o755); err != nil {
		return nil, err
	}

	cfg := &Config{Home: home}
	if b, err := os.ReadFile(filepath.Join(home, "config.yaml")); err == nil {
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, err
		}
		cfg.Home = home // el archivo no puede moverse a sí mismo
	}
	if agent := os.Getenv("CCM_YOURKIT_AGENT"); agent != "" {
		cfg.YourkitAgent = agent
	}
	return cfg, nil
}

// CurrentCluster retorna el nombre del cluster activo.
func (c *Config) CurrentCluster() (string, error) {
	b, err := os.ReadFile(filepath.Join(c.Home, "CURRENT"))
	if err != nil {
		return "", ErrNoCurrentCluster
	}
	name := strings.TrimSpace(string(b))
	if name == "" {
		return "", ErrNoCurrentCluster
	}
	return name, nil
}

// SetCurrentCluster fija el cluster activo.
func (c *Config) SetCurrentCluster(name string) error {
	return os.WriteFile(filepath.Join(c.Home, "CURRENT"), []byte(name+"\n"), 0o644)
}

// ClearCurrentCluster borra el puntero (por ejemplo al remover el cluster).
func (c *Config) ClearCurrentCluster() error {
	err := os.Remove(filepath.Join(c.Home, "CURRENT"))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// ListClusters enumera los clusters existentes bajo el home.
func (c *Config) ListClusters() ([]string, error) {
	entries, err := os.ReadDir(c.Home)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(c.Home, e.Name(), "cluster.conf")); err == nil {
			out = append(out, e.Name())
		}
	}
	return out, nil
}
