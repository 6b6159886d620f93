package cluster

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/zackse/ccm/internal/node"
)

const yamlTemplate = `cluster_name: template
listen_address: 0.0.0.0
seed_provider:
  - class_name: org.apache.cassandra.locator.SimpleSeedProvider
    parameters:
      - seeds: "0.0.0.0"
`

const envTemplate = `MAX_HEAP_SIZE="500M"
JMX_PORT="7199"
`

const logbackTemplate = `<configuration>
  <appender name="FILE">
    <file>/var/log/cassandra/system.log</file>
    <fileNamePattern>/var/log/cassandra/system.log.%i.zip</fileNamePattern>
  </appender>
  <root level="INFO">
  </root>
</configuration>
`

// fakeInstall arma un directorio de instalación mínimo con los templates que
// el render consume.
func fakeInstall(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "bin"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bin", "cassandra"), []byte("#!/bin/sh\nexit 0\n"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "conf"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "conf", "cassandra.yaml"), []byte(yamlTemplate), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "conf", "cassandra-env.sh"), []byte(envTemplate), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "conf", "logback.xml"), []byte(logbackTemplate), 0o644))
	return dir
}

func addNode(t *testing.T, c *Cluster, name, host string, jmx int, seed bool) *node.Node {
	t.Helper()
	n, err := c.AddNode(node.Options{
		Name:             name,
		ThriftInterface:  node.Addr{Host: host, Port: 9160},
		StorageInterface: node.Addr{Host: host, Port: 7000},
		BinaryInterface:  &node.Addr{Host: host, Port: 9042},
		JMXPort:          jmx,
	}, seed)
	require.NoError(t, err)
	return n
}

func readYAML(t *testing.T, path string) map[string]any {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	var data map[string]any
	require.NoError(t, yaml.Unmarshal(b, &data))
	return data
}

func TestNew_RequiresValidInstall(t *testing.T) {
	_, err := New(t.TempDir(), "c1", t.TempDir())
	require.Error(t, err)
}

func TestAddNode_RendersConfig(t *testing.T) {
	root := t.TempDir()
	c, err := New(root, "test-cluster", fakeInstall(t))
	require.NoError(t, err)

	n := addNode(t, c, "node1", "127.0.0.1", 7101, true)

	// el registro del nodo quedó en disco
	_, err = os.Stat(filepath.Join(root, "test-cluster", "node1", "node.conf"))
	require.NoError(t, err)

	data := readYAML(t, filepath.Join(n.ConfDir(), "cassandra.yaml"))
	require.Equal(t, "test-cluster", data["cluster_name"])
	require.Equal(t, "127.0.0.1", data["listen_address"])
	require.Equal(t, "127.0.0.1", data["rpc_address"])
	require.Equal(t, 9042, data["native_transport_port"])

	providers := data["seed_provider"].([]any)
	params := providers[0].(map[string]any)["parameters"].([]any)
	require.Equal(t, "127.0.0.1", params[0].(map[string]any)["seeds"])

	env, err := os.ReadFile(filepath.Join(n.ConfDir(), "cassandra-env.sh"))
	require.NoError(t, err)
	require.Contains(t, string(env), `JMX_PORT="7101"`)

	logback, err := os.ReadFile(filepath.Join(n.ConfDir(), "logback.xml"))
	require.NoError(t, err)
	require.Contains(t, string(logback), "<file>"+n.LogFile()+"</file>")
}

func TestAddNode_Duplicate(t *testing.T) {
	c, err := New(t.TempDir(), "c1", fakeInstall(t))
	require.NoError(t, err)
	addNode(t, c, "node1", "127.0.0.1", 7101, false)

	_, err = c.AddNode(node.Options{
		Name:             "node1",
		ThriftInterface:  node.Addr{Host: "127.0.0.1", Port: 9160},
		StorageInterface: node.Addr{Host: "127.0.0.1", Port: 7000},
	}, false)
	require.ErrorIs(t, err, ErrNodeExists)
}

func TestNode_NotFound(t *testing.T) {
	c, err := New(t.TempDir(), "c1", fakeInstall(t))
	require.NoError(t, err)
	_, err = c.Node("ghost")
	require.ErrorIs(t, err, ErrNodeNotFound)
}

func TestLoad_RoundTrip(t *testing.T) {
	root := t.TempDir()
	c, err := New(root, "c1", fakeInstall(t))
	require.NoError(t, err)
	addNode(t, c, "node2", "127.0.0.2", 7102, false)
	addNode(t, c, "node1", "127.0.0.1", 7101, true)

	got, err := Load(root, "c1")
	require.NoError(t, err)
	require.Equal(t, c.ID(), got.ID())
	require.Equal(t, c.Name(), got.Name())

	nodes := got.Nodes()
	require.Len(t, nodes, 2)
	// orden por nombre, siempre
	require.Equal(t, "node1", nodes[0].Name())
	require.Equal(t, "node2", nodes[1].Name())

	// los seeds sobreviven la recarga
	require.Equal(t, []string{"127.0.0.1"}, got.Seeds())
}

func TestSeeds_DefaultsToAllNodes(t *testing.T) {
	c, err := New(t.TempDir(), "c1", fakeInstall(t))
	require.NoError(t, err)
	addNode(t, c, "node2", "127.0.0.2", 7102, false)
	addNode(t, c, "node1", "127.0.0.1", 7101, false)

	require.Equal(t, []string{"127.0.0.1", "127.0.0.2"}, c.Seeds())
}

func TestSnapshot_FreshNodes(t *testing.T) {
	c, err := New(t.TempDir(), "c1", fakeInstall(t))
	require.NoError(t, err)
	addNode(t, c, "node1", "127.0.0.1", 7101, false)

	infos, err := c.Snapshot()
	require.NoError(t, err)
	require.Len(t, infos, 1)
	require.Equal(t, "node1", infos[0].Name)
	require.Equal(t, "UNINITIALIZED", infos[0].Status)
	require.Equal(t, "127.0.0.1", infos[0].Address)
	require.Zero(t, infos[0].PID)
}

func TestSetConfigurationOptions_RerendersAll(t *testing.T) {
	c, err := New(t.TempDir(), "c1", fakeInstall(t))
	require.NoError(t, err)
	n := addNode(t, c, "node1", "127.0.0.1", 7101, false)

	require.NoError(t, c.SetConfigurationOptions(map[string]any{"hinted_handoff_enabled": false}))

	data := readYAML(t, filepath.Join(n.ConfDir(), "cassandra.yaml"))
	require.Equal(t, false, data["hinted_handoff_enabled"])
}

func TestRemove_DeletesTree(t *testing.T) {
	root := t.TempDir()
	c, err := New(root, "c1", fakeInstall(t))
	require.NoError(t, err)
	addNode(t, c, "node1", "127.0.0.1", 7101, false)

	require.NoError(t, c.Remove())
	_, err = os.Stat(filepath.Join(root, "c1"))
	require.True(t, errors.Is(err, os.ErrNotExist))
}
