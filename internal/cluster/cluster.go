// Package cluster implementa el agregado que posee los nodos de un cluster
// simulado y la coordinación "esperar a que los peers se enteren" sobre los
// watches de log de cada nodo.
package cluster

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/zackse/ccm/internal/node"
	"github.com/zackse/ccm/internal/nodeconf"
	"github.com/zackse/ccm/internal/observability/logger"
	"github.com/zackse/ccm/internal/repository"
	"github.com/zackse/ccm/internal/util/atomicwrite"
)

// ErrNodeExists se retorna al agregar un nodo con nombre ya tomado.
var ErrNodeExists = errors.New("node already exists")

// ErrNodeNotFound se retorna al operar sobre un nodo desconocido.
var ErrNodeNotFound = errors.New("node not found")

// Cluster es el agregado dueño de un conjunto de nodos. Los nodos guardan una
// back-reference débil hacia él; el cluster es el único que los enumera.
type Cluster struct {
	mu sync.Mutex

	name        string
	id          string
	path        string // directorio del cluster, contiene los dirs de nodo
	installDir  string
	partitioner string
	seeds       []string // nombres de nodos seed; vacío = todos
	options     map[string]any

	nodes map[string]*node.Node
	log   *zap.Logger
}

// clusterRecord es la forma en disco de cluster.conf.
type clusterRecord struct {
	Name        string         `yaml:"name"`
	ID          string         `yaml:"id"`
	InstallDir  string         `yaml:"install_dir,omitempty"`
	Partitioner string         `yaml:"partitioner,omitempty"`
	Seeds       []string       `yaml:"seeds,omitempty"`
	Options     map[string]any `yaml:"config_options,omitempty"`
}

// New crea un cluster nuevo bajo root. El directorio de instalación se valida
// acá: todo lo demás depende de él.
func New(root, name, installDir string) (*Cluster, error) {
	if err := repository.Validate(installDir); err != nil {
		return nil, err
	}
	c := &Cluster{
		name:       name,
		id:         uuid.NewString(),
		path:       filepath.Join(root, name),
		installDir: installDir,
		options:    map[string]any{},
		nodes:      map[string]*node.Node{},
		log:        logger.Named("cluster").With(logger.Cluster(name)),
	}
	if err := os.MkdirAll(c.path, 0o755); err != nil {
		return nil, err
	}
	if err := c.Save(); err != nil {
		return nil, err
	}
	return c, nil
}

// Load reconstruye un cluster y todos sus nodos desde disco. Cada subdirectorio
// con un node.conf es un nodo.
func Load(root, name string) (*Cluster, error) {
	path := filepath.Join(root, name)
	b, err := os.ReadFile(filepath.Join(path, "cluster.conf"))
	if err != nil {
		return nil, err
	}
	var rec clusterRecord
	if err := yaml.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("parse cluster.conf: %w", err)
	}

	c := &Cluster{
		name:        rec.Name,
		id:          rec.ID,
		path:        path,
		installDir:  rec.InstallDir,
		partitioner: rec.Partitioner,
		seeds:       rec.Seeds,
		options:     rec.Options,
		nodes:       map[string]*node.Node{},
		log:         logger.Named("cluster").With(logger.Cluster(rec.Name)),
	}
	if c.options == nil {
		c.options = map[string]any{}
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(path, e.Name(), "node.conf")); err != nil {
			continue
		}
		n, err := node.Load(c, e.Name())
		if err != nil {
			return nil, fmt.Errorf("load node %s: %w", e.Name(), err)
		}
		n.SetRenderer(nodeconf.Renderer{})
		c.nodes[n.Name()] = n
	}
	return c, nil
}

// Save persiste cluster.conf.
func (c *Cluster) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec := clusterRecord{
		Name:        c.name,
		ID:          c.id,
		InstallDir:  c.installDir,
		Partitioner: c.partitioner,
		Seeds:       c.seeds,
		Options:     c.options,
	}
	b, err := yaml.Marshal(rec)
	if err != nil {
		return err
	}
	return atomicwrite.WriteFile(filepath.Join(c.path, "cluster.conf"), b, 0o644)
}

// ─── node.Cluster (vista que cada nodo tiene de su agregado) ───

func (c *Cluster) Name() string        { return c.name }
func (c *Cluster) ID() string          { return c.id }
func (c *Cluster) Path() string        { return c.path }
func (c *Cluster) InstallDir() string  { return c.installDir }
func (c *Cluster) Partitioner() string { return c.partitioner }

// ConfigOptions retorna una copia de los overrides a nivel cluster; el mapa
// interno solo se toca bajo el mutex.
func (c *Cluster) ConfigOptions() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]any, len(c.options))
	for k, v := range c.options {
		out[k] = v
	}
	return out
}

// Seeds retorna las direcciones seed para la configuración de los servers:
// los nodos marcados seed, o todos si no hay ninguno marcado.
func (c *Cluster) Seeds() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := c.seeds
	if len(names) == 0 {
		names = make([]string, 0, len(c.nodes))
		for name := range c.nodes {
			names = append(names, name)
		}
		sort.Strings(names)
	}
	out := make([]string, 0, len(names))
	for _, name := range names {
		if n, ok := c.nodes[name]; ok {
			out = append(out, n.Address())
		}
	}
	return out
}

// ─── membership ───

// AddNode crea un nodo nuevo en el cluster: layout en disco, templates de
// configuración importados y renderizados, y registro persistido.
func (c *Cluster) AddNode(opts node.Options, seed bool) (*node.Node, error) {
	c.mu.Lock()
	if _, ok := c.nodes[opts.Name]; ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", opts.Name, ErrNodeExists)
	}
	n := node.New(c, opts)
	n.SetRenderer(nodeconf.Renderer{})
	c.nodes[opts.Name] = n
	if seed {
		c.seeds = append(c.seeds, opts.Name)
	}
	c.mu.Unlock()

	if err := n.EnsureLayout(); err != nil {
		return nil, err
	}
	if err := n.Save(); err != nil {
		return nil, err
	}
	installDir, err := repository.Resolve("", c.installDir)
	if err != nil {
		return nil, err
	}
	if err := nodeconf.ImportBinFiles(n, installDir); err != nil {
		return nil, err
	}
	if err := nodeconf.ImportConfigFiles(n, installDir); err != nil {
		return nil, err
	}
	if err := c.Save(); err != nil {
		return nil, err
	}
	c.log.Info("node added", logger.Node(opts.Name))
	return n, nil
}

// Node retorna el nodo por nombre.
func (c *Cluster) Node(name string) (*node.Node, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.nodes[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrNodeNotFound)
	}
	return n, nil
}

// Nodes retorna todos los nodos, ordenados por nombre.
func (c *Cluster) Nodes() []*node.Node {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.nodes))
	for name := range c.nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]*node.Node, 0, len(names))
	for _, name := range names {
		out = append(out, c.nodes[name])
	}
	return out
}

// RunningNodes retorna los nodos cuyo proceso está vivo (UP o DECOMMISSIONED).
func (c *Cluster) RunningNodes() ([]*node.Node, error) {
	var out []*node.Node
	for _, n := range c.Nodes() {
		running, err := n.IsRunning()
		if err != nil {
			return nil, err
		}
		if running {
			out = append(out, n)
		}
	}
	return out, nil
}

// LiveNodes retorna los nodos UP (miembros activos del cluster).
func (c *Cluster) LiveNodes() ([]*node.Node, error) {
	var out []*node.Node
	for _, n := range c.Nodes() {
		live, err := n.IsLive()
		if err != nil {
			return nil, err
		}
		if live {
			out = append(out, n)
		}
	}
	return out, nil
}

// SetConfigurationOptions mergea overrides a nivel cluster y re-renderiza la
// configuración de todos los nodos.
func (c *Cluster) SetConfigurationOptions(values map[string]any) error {
	c.mu.Lock()
	for k, v := range values {
		c.options[k] = v
	}
	c.mu.Unlock()
	if err := c.Save(); err != nil {
		return err
	}
	r := nodeconf.Renderer{}
	for _, n := range c.Nodes() {
		if err := r.Render(n); err != nil {
			return err
		}
	}
	return nil
}

// Remove detiene todos los nodos y borra el cluster de disco.
func (c *Cluster) Remove() error {
	for _, n := range c.Nodes() {
		if _, err := n.Stop(node.StopOptions{Force: true, NoWait: true}); err != nil {
			return err
		}
	}
	return os.RemoveAll(c.path)
}

// NodeInfo es el snapshot serializable de un nodo para el monitor y el CLI.
type NodeInfo struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Address string `json:"address"`
	PID     int    `json:"pid,omitempty"`
}

// Snapshot refresca y reporta el estado de todos los nodos.
func (c *Cluster) Snapshot() ([]NodeInfo, error) {
	nodes := c.Nodes()
	out := make([]NodeInfo, 0, len(nodes))
	for _, n := range nodes {
		if err := n.Refresh(); err != nil {
			return nil, err
		}
		out = append(out, NodeInfo{
			Name:    n.Name(),
			Status:  string(n.Status()),
			Address: n.Address(),
			PID:     n.PID(),
		})
	}
	return out, nil
}
