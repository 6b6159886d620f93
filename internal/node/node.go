// Package node gestiona el ciclo de vida de un server como proceso OS
// independiente: registro de configuración en disco, máquina de estados de
// liveness, arranque/detención del proceso y watches sobre su log.
package node

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/zackse/ccm/internal/observability/logger"
	"github.com/zackse/ccm/internal/repository"
	"github.com/zackse/ccm/internal/util/atomicwrite"
)

// Cluster es la vista que un nodo tiene de su agregado dueño. Es una
// back-reference débil: el nodo nunca posee al cluster.
type Cluster interface {
	Name() string
	// Path es el directorio que contiene los directorios de nodo.
	Path() string
	// InstallDir es el directorio de instalación default del cluster.
	InstallDir() string
	// Seeds son las direcciones seed para la configuración del server.
	Seeds() []string
	Partitioner() string
	// ConfigOptions son los overrides a nivel cluster; los del nodo pisan.
	ConfigOptions() map[string]any
}

// ConfigRenderer regenera los archivos de configuración del server a partir
// del registro del nodo. Se invoca siempre antes de cada spawn.
type ConfigRenderer interface {
	Render(n *Node) error
}

// Addr es un endpoint host:puerto del nodo.
type Addr struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

func (a Addr) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// Interfaces agrupa los endpoints de red del nodo. Binary es opcional
// (versiones viejas del server no lo exponen).
type Interfaces struct {
	Thrift  Addr  `yaml:"thrift"`
	Storage Addr  `yaml:"storage"`
	Binary  *Addr `yaml:"binary,omitempty"`
}

// Node es un server gestionado: identidad, endpoints, estado de liveness y el
// pid del último proceso conocido. Todo cambio de estado se persiste entero
// en node.conf; el mutex serializa refresh+persistencia por nodo.
type Node struct {
	mu sync.Mutex

	name    string
	cluster Cluster

	autoBootstrap   bool
	interfaces      Interfaces
	jmxPort         int
	remoteDebugPort int
	initialToken    string
	dataCenter      string
	installDir      string // override por nodo; vacío usa el del cluster
	configOptions   map[string]any
	logLevel        string
	classLogLevels  map[string]string

	pid    int // 0 = nunca arrancado o muerte confirmada
	status Status

	renderer ConfigRenderer
	probe    func(pid int) error // liveness probe, inyectable en tests
	onSave   func()              // hook de tests para contar persistencias

	stopWaitUnit time.Duration
	log          *zap.Logger
}

// Options define la identidad y los endpoints de un nodo nuevo.
type Options struct {
	Name             string
	AutoBootstrap    bool
	ThriftInterface  Addr
	StorageInterface Addr
	BinaryInterface  *Addr
	JMXPort          int
	RemoteDebugPort  int
	InitialToken     string
	DataCenter       string
}

// New construye un nodo en estado UNINITIALIZED. No toca el disco: el caller
// decide cuándo crear el layout y persistir (ver EnsureLayout y Save).
func New(cluster Cluster, opts Options) *Node {
	return &Node{
		name:    opts.Name,
		cluster: cluster,
		status:  StatusUninitialized,

		autoBootstrap: opts.AutoBootstrap,
		interfaces: Interfaces{
			Thrift:  opts.ThriftInterface,
			Storage: opts.StorageInterface,
			Binary:  opts.BinaryInterface,
		},
		jmxPort:         opts.JMXPort,
		remoteDebugPort: opts.RemoteDebugPort,
		initialToken:    opts.InitialToken,
		dataCenter:      opts.DataCenter,
		configOptions:   map[string]any{},
		classLogLevels:  map[string]string{},

		probe:        kill0,
		stopWaitUnit: time.Second,
		log:          logger.Named("node").With(logger.Node(opts.Name)),
	}
}

// record es la forma en disco de node.conf. Se reescribe completo en cada
// transición de estado.
type record struct {
	Name            string            `yaml:"name"`
	Status          Status            `yaml:"status"`
	AutoBootstrap   bool              `yaml:"auto_bootstrap"`
	Interfaces      Interfaces        `yaml:"interfaces"`
	JMXPort         int               `yaml:"jmx_port"`
	ConfigOptions   map[string]any    `yaml:"config_options"`
	PID             int               `yaml:"pid,omitempty"`
	InitialToken    string            `yaml:"initial_token,omitempty"`
	InstallDir      string            `yaml:"install_dir,omitempty"`
	DataCenter      string            `yaml:"data_center,omitempty"`
	RemoteDebugPort int               `yaml:"remote_debug_port,omitempty"`
	LogLevel        string            `yaml:"log_level,omitempty"`
	ClassLogLevels  map[string]string `yaml:"class_log_levels,omitempty"`
}

// Load reconstruye un nodo desde su node.conf.
func Load(cluster Cluster, name string) (*Node, error) {
	path := filepath.Join(cluster.Path(), name, "node.conf")
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rec record
	if err := yaml.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if rec.Name == "" {
		return nil, fmt.Errorf("load %s: missing property name", path)
	}

	n := New(cluster, Options{
		Name:             rec.Name,
		AutoBootstrap:    rec.AutoBootstrap,
		ThriftInterface:  rec.Interfaces.Thrift,
		StorageInterface: rec.Interfaces.Storage,
		BinaryInterface:  rec.Interfaces.Binary,
		JMXPort:          rec.JMXPort,
		RemoteDebugPort:  rec.RemoteDebugPort,
		InitialToken:     rec.InitialToken,
		DataCenter:       rec.DataCenter,
	})
	n.status = rec.Status
	n.pid = rec.PID
	n.installDir = rec.InstallDir
	n.logLevel = rec.LogLevel
	if rec.ConfigOptions != nil {
		n.configOptions = rec.ConfigOptions
	}
	if rec.ClassLogLevels != nil {
		n.classLogLevels = rec.ClassLogLevels
	}
	return n, nil
}

// Save persiste el registro completo del nodo.
func (n *Node) Save() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.saveLocked()
}

// saveLocked asume n.mu tomado. La escritura es atómica: otras herramientas
// leen node.conf en cualquier momento.
func (n *Node) saveLocked() error {
	rec := record{
		Name:            n.name,
		Status:          n.status,
		AutoBootstrap:   n.autoBootstrap,
		Interfaces:      n.interfaces,
		JMXPort:         n.jmxPort,
		ConfigOptions:   n.configOptions,
		PID:             n.pid,
		InitialToken:    n.initialToken,
		InstallDir:      n.installDir,
		DataCenter:      n.dataCenter,
		RemoteDebugPort: n.remoteDebugPort,
		LogLevel:        n.logLevel,
		ClassLogLevels:  n.classLogLevels,
	}
	b, err := yaml.Marshal(rec)
	if err != nil {
		return err
	}
	if err := atomicwrite.WriteFile(n.confRecordPath(), b, 0o644); err != nil {
		return err
	}
	if n.onSave != nil {
		n.onSave()
	}
	return nil
}

// EnsureLayout crea el directorio del nodo y sus subdirectorios estándar.
func (n *Node) EnsureLayout() error {
	for _, d := range []string{"data", "commitlogs", "saved_caches", "logs", "conf", "bin"} {
		if err := os.MkdirAll(filepath.Join(n.Path(), d), 0o755); err != nil {
			return err
		}
	}
	return nil
}

// ─── paths ───

// Path es el directorio top-level del nodo (config y datos).
func (n *Node) Path() string { return filepath.Join(n.cluster.Path(), n.name) }

// BinDir contiene la copia local de los scripts del server.
func (n *Node) BinDir() string { return filepath.Join(n.Path(), "bin") }

// ConfDir contiene la configuración renderizada del server.
func (n *Node) ConfDir() string { return filepath.Join(n.Path(), "conf") }

// LogFile es el log principal del server de este nodo.
func (n *Node) LogFile() string { return filepath.Join(n.Path(), "logs", "system.log") }

func (n *Node) pidFilePath() string    { return filepath.Join(n.Path(), "cassandra.pid") }
func (n *Node) confRecordPath() string { return filepath.Join(n.Path(), "node.conf") }

// ─── accessors ───

func (n *Node) Name() string { return n.name }

// Cluster retorna el agregado dueño del nodo.
func (n *Node) Cluster() Cluster { return n.cluster }

// Address es la IP que el nodo usa para comunicación interna; es la dirección
// con la que los peers lo nombran en sus logs.
func (n *Node) Address() string { return n.interfaces.Storage.Host }

func (n *Node) Interfaces() Interfaces { return n.interfaces }
func (n *Node) JMXPort() int           { return n.jmxPort }
func (n *Node) RemoteDebugPort() int   { return n.remoteDebugPort }
func (n *Node) InitialToken() string   { return n.initialToken }
func (n *Node) AutoBootstrap() bool    { return n.autoBootstrap }
func (n *Node) DataCenter() string     { return n.dataCenter }
func (n *Node) LogLevel() string       { return n.logLevel }

// ClassLogLevels retorna una copia de los niveles por clase; el mapa interno
// solo se toca bajo el mutex.
func (n *Node) ClassLogLevels() map[string]string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make(map[string]string, len(n.classLogLevels))
	for k, v := range n.classLogLevels {
		out[k] = v
	}
	return out
}

func (n *Node) PID() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.pid
}

// SetRenderer engancha el colaborador de templating de configuración.
func (n *Node) SetRenderer(r ConfigRenderer) { n.renderer = r }

// SetDataCenter etiqueta el datacenter del nodo y persiste.
func (n *Node) SetDataCenter(dc string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dataCenter = dc
	return n.saveLocked()
}

// SetInstallDir fija un override de instalación para este nodo. El directorio
// se valida acá mismo: fallar en el arranque sería tarde.
func (n *Node) SetInstallDir(dir string) error {
	if dir != "" {
		if err := repository.Validate(dir); err != nil {
			return err
		}
	}
	n.mu.Lock()
	n.installDir = dir
	err := n.saveLocked()
	n.mu.Unlock()
	if err != nil {
		return err
	}
	return n.render()
}

// ConfigOptions retorna una copia de los overrides de configuración propios
// del nodo (las keys marcadas nil incluidas); el mapa interno solo se toca
// bajo el mutex.
func (n *Node) ConfigOptions() map[string]any {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make(map[string]any, len(n.configOptions))
	for k, v := range n.configOptions {
		out[k] = v
	}
	return out
}

// SetConfigurationOptions mergea values sobre los overrides del nodo (un valor
// nil marca la key para eliminar del yaml renderizado), persiste y re-renderiza.
func (n *Node) SetConfigurationOptions(values map[string]any) error {
	n.mu.Lock()
	for k, v := range values {
		n.configOptions[k] = v
	}
	err := n.saveLocked()
	n.mu.Unlock()
	if err != nil {
		return err
	}
	return n.render()
}

// knownLogLevels son los niveles que el server acepta.
var knownLogLevels = []string{"TRACE", "DEBUG", "INFO", "WARN", "ERROR"}

// SetLogLevel fija el nivel de log global del server (o el de una clase, si
// class no es vacío), valida contra los niveles conocidos y re-renderiza.
func (n *Node) SetLogLevel(level, class string) error {
	valid := false
	for _, l := range knownLogLevels {
		if level == l {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("unknown log level %s (use one of %v)", level, knownLogLevels)
	}
	n.mu.Lock()
	if class != "" {
		n.classLogLevels[class] = level
	} else {
		n.logLevel = level
	}
	err := n.saveLocked()
	n.mu.Unlock()
	if err != nil {
		return err
	}
	return n.render()
}

func (n *Node) render() error {
	if n.renderer == nil {
		return nil
	}
	return n.renderer.Render(n)
}

// resolveInstallDir aplica la precedencia override-de-nodo → dir del cluster
// y valida el resultado.
func (n *Node) resolveInstallDir() (string, error) {
	return repository.Resolve(n.installDir, n.cluster.InstallDir())
}
