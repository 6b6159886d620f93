// Package repository resuelve y valida directorios de instalación del server.
// La validación es barata pero se repite en cada arranque y en cada render de
// configuración, así que los resultados positivos se cachean con TTL.
package repository

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// ValidationError indica un directorio de instalación inválido.
type ValidationError struct {
	Dir    string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid installation directory %s: %s", e.Dir, e.Reason)
}

// validated cachea directorios que ya pasaron la validación. Una instalación
// no cambia de forma entre arranques; 5 minutos es más que suficiente.
var validated = gocache.New(5*time.Minute, 10*time.Minute)

// Validate verifica que dir sea una instalación utilizable: tiene que existir
// el launcher bin/cassandra y el template conf/cassandra.yaml.
func Validate(dir string) error {
	if dir == "" {
		return &ValidationError{Dir: dir, Reason: "empty path"}
	}
	if _, ok := validated.Get(dir); ok {
		return nil
	}
	st, err := os.Stat(dir)
	if err != nil || !st.IsDir() {
		return &ValidationError{Dir: dir, Reason: "not a directory"}
	}
	if _, err := os.Stat(filepath.Join(dir, "bin", "cassandra")); err != nil {
		return &ValidationError{Dir: dir, Reason: "missing bin/cassandra"}
	}
	if _, err := os.Stat(filepath.Join(dir, "conf", "cassandra.yaml")); err != nil {
		return &ValidationError{Dir: dir, Reason: "missing conf/cassandra.yaml"}
	}
	validated.SetDefault(dir, true)
	return nil
}

// Resolve elige el directorio de instalación efectivo: el override del nodo
// si está presente, si no el del cluster. El elegido se valida siempre.
func Resolve(override, clusterDir string) (string, error) {
	dir := override
	if dir == "" {
		dir = clusterDir
	}
	if err := Validate(dir); err != nil {
		return "", err
	}
	return dir, nil
}
