// Package nodeconf regenera los archivos de configuración del server a partir
// del registro de un nodo: cassandra.yaml por sustitución key/value,
// cassandra-env.sh y logback.xml por sustitución de líneas. Es el colaborador
// de templating que el controller de procesos invoca antes de cada spawn.
package nodeconf

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/zackse/ccm/internal/node"
	"github.com/zackse/ccm/internal/util/atomicwrite"
	"github.com/zackse/ccm/internal/util/textfile"
)

const (
	serverConfFile  = "cassandra.yaml"
	envFile         = "cassandra-env.sh"
	logbackConfFile = "logback.xml"
)

// Renderer implementa node.ConfigRenderer.
type Renderer struct{}

var _ node.ConfigRenderer = Renderer{}

// Render reescribe la configuración completa del server del nodo.
func (Renderer) Render(n *node.Node) error {
	if err := updateYAML(n); err != nil {
		return err
	}
	if err := updateEnvFile(n); err != nil {
		return err
	}
	return updateLogback(n)
}

// ImportConfigFiles copia los templates de configuración de la instalación al
// conf del nodo y los renderiza. Se usa al crear el nodo y al cambiar de
// instalación.
func ImportConfigFiles(n *node.Node, installDir string) error {
	if err := copyDirFiles(filepath.Join(installDir, "conf"), n.ConfDir()); err != nil {
		return err
	}
	return Renderer{}.Render(n)
}

// ImportBinFiles copia los scripts de la instalación al bin del nodo.
func ImportBinFiles(n *node.Node, installDir string) error {
	return copyDirFiles(filepath.Join(installDir, "bin"), n.BinDir())
}

// updateYAML reescribe cassandra.yaml: identidad del cluster, seeds,
// direcciones de este nodo, directorios de datos y los overrides mergeados
// (cluster primero, nodo después: el nodo gana). Un override con valor nil
// elimina la key del yaml.
func updateYAML(n *node.Node) error {
	confPath := filepath.Join(n.ConfDir(), serverConfFile)
	b, err := os.ReadFile(confPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", confPath, err)
	}
	var data map[string]any
	if err := yaml.Unmarshal(b, &data); err != nil {
		return fmt.Errorf("parse %s: %w", confPath, err)
	}
	if data == nil {
		data = map[string]any{}
	}

	cl := n.Cluster()
	data["cluster_name"] = cl.Name()
	data["auto_bootstrap"] = n.AutoBootstrap()
	if tok := n.InitialToken(); tok != "" {
		data["initial_token"] = tok
	} else {
		data["initial_token"] = nil
	}
	setSeeds(data, cl.Seeds())

	itf := n.Interfaces()
	data["listen_address"] = itf.Storage.Host
	data["storage_port"] = itf.Storage.Port
	data["rpc_address"] = itf.Thrift.Host
	data["rpc_port"] = itf.Thrift.Port
	if itf.Binary != nil {
		data["native_transport_port"] = itf.Binary.Port
	}

	data["data_file_directories"] = []string{filepath.Join(n.Path(), "data")}
	data["commitlog_directory"] = filepath.Join(n.Path(), "commitlogs")
	data["saved_caches_directory"] = filepath.Join(n.Path(), "saved_caches")

	if p := cl.Partitioner(); p != "" {
		data["partitioner"] = p
	}

	merged := map[string]any{}
	for k, v := range cl.ConfigOptions() {
		merged[k] = v
	}
	for k, v := range n.ConfigOptions() {
		merged[k] = v
	}
	for k, v := range merged {
		if v == nil {
			// eliminar una key ausente es válido
			delete(data, k)
		} else {
			data[k] = v
		}
	}

	out, err := yaml.Marshal(data)
	if err != nil {
		return err
	}
	return atomicwrite.WriteFile(confPath, out, 0o644)
}

// setSeeds soporta los dos formatos del template: la key plana "seeds" de
// versiones viejas y el seed_provider estructurado de las nuevas.
func setSeeds(data map[string]any, seeds []string) {
	if _, ok := data["seeds"]; ok {
		data["seeds"] = seeds
		return
	}
	joined := strings.Join(seeds, ",")
	if providers, ok := data["seed_provider"].([]any); ok && len(providers) > 0 {
		if provider, ok := providers[0].(map[string]any); ok {
			if params, ok := provider["parameters"].([]any); ok && len(params) > 0 {
				if param, ok := params[0].(map[string]any); ok {
					param["seeds"] = joined
					return
				}
			}
		}
	}
	// template sin seed_provider: dejar la forma estructurada mínima
	data["seed_provider"] = []any{map[string]any{
		"class_name": "org.apache.cassandra.locator.SimpleSeedProvider",
		"parameters": []any{map[string]any{"seeds": joined}},
	}}
}

// updateEnvFile fija el puerto JMX y, si está configurado, el agente de
// debug remoto en cassandra-env.sh.
func updateEnvFile(n *node.Node) error {
	confPath := filepath.Join(n.ConfDir(), envFile)
	if _, err := os.Stat(confPath); err != nil {
		// template sin env file: nada que sustituir
		return nil
	}
	if err := textfile.ReplaceInFile(confPath, `JMX_PORT=`, fmt.Sprintf("JMX_PORT=\"%d\"", n.JMXPort())); err != nil {
		return err
	}
	if port := n.RemoteDebugPort(); port != 0 {
		repl := fmt.Sprintf(`JVM_OPTS="$JVM_OPTS -Xdebug -Xnoagent -Xrunjdwp:transport=dt_socket,server=y,suspend=n,address=%d"`, port)
		if err := textfile.ReplaceInFile(confPath, `address=`, repl); err != nil {
			return err
		}
	}
	return nil
}

// updateLogback apunta el log del server al logs/ del nodo y aplica los
// niveles configurados.
func updateLogback(n *node.Node) error {
	confPath := filepath.Join(n.ConfDir(), logbackConfFile)
	if _, err := os.Stat(confPath); err != nil {
		return nil
	}
	logFile := n.LogFile()
	if err := textfile.ReplaceInFile(confPath, `<file>.*</file>`, "<file>"+logFile+"</file>"); err != nil {
		return err
	}
	if err := textfile.ReplaceInFile(confPath, `<fileNamePattern>.*</fileNamePattern>`, "<fileNamePattern>"+logFile+".%i.zip</fileNamePattern>"); err != nil {
		return err
	}
	if level := n.LogLevel(); level != "" {
		if err := textfile.ReplaceInFile(confPath, `<root level=".*">`, `<root level="`+level+`">`); err != nil {
			return err
		}
	}
	for class, level := range n.ClassLogLevels() {
		pattern := `<logger name="` + class + `" level=".*"/>`
		repl := `	<logger name="` + class + `" level="` + level + `"/>`
		if err := textfile.ReplaceOrAppend(confPath, pattern, repl); err != nil {
			return err
		}
	}
	return nil
}

func copyDirFiles(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := copyFile(filepath.Join(src, e.Name()), filepath.Join(dst, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	st, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, st.Mode().Perm())
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}
