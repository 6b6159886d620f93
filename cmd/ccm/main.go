// ccm: gestiona clusters simulados de Cassandra como procesos locales.
package main

import (
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/zackse/ccm/internal/cluster"
	"github.com/zackse/ccm/internal/config"
	"github.com/zackse/ccm/internal/node"
	"github.com/zackse/ccm/internal/observability/logger"
)

// cliEnv junta lo que todos los subcomandos necesitan: la config de la
// herramienta y el acceso al cluster activo.
type cliEnv struct {
	cfg *config.Config
}

func (e *cliEnv) current() (*cluster.Cluster, error) {
	name, err := e.cfg.CurrentCluster()
	if err != nil {
		return nil, err
	}
	return cluster.Load(e.cfg.Home, name)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// parseAddr interpreta "host:puerto" para los flags de endpoints.
func parseAddr(s string) (node.Addr, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return node.Addr{}, fmt.Errorf("invalid address %q (want host:port): %w", s, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return node.Addr{}, fmt.Errorf("invalid port in %q: %w", s, err)
	}
	return node.Addr{Host: host, Port: port}, nil
}

func main() {
	_ = godotenv.Load(".env")

	logger.Init(logger.Config{
		Env:   envOr("CCM_ENV", "dev"),
		Level: envOr("CCM_LOG_LEVEL", "info"),
	})
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "ccm:", err)
		os.Exit(1)
	}
	env := &cliEnv{cfg: cfg}

	root := &cobra.Command{
		Use:           "ccm",
		Short:         "Cassandra Cluster Manager: clusters de prueba como procesos locales",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(clusterCommands(env)...)
	root.AddCommand(nodeCommands(env))
	root.AddCommand(monitorCommand(env))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ccm:", err)
		os.Exit(1)
	}
}
