package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zackse/ccm/internal/cluster"
	"github.com/zackse/ccm/internal/monitor"
	"github.com/zackse/ccm/internal/node"
)

func clusterCommands(env *cliEnv) []*cobra.Command {
	var createInstallDir string
	var createNodes int
	createCmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Crea un cluster nuevo y lo deja activo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			c, err := cluster.New(env.cfg.Home, name, createInstallDir)
			if err != nil {
				return err
			}
			// nodos autogenerados: node1..nodeN en loopbacks consecutivas
			for i := 1; i <= createNodes; i++ {
				host := fmt.Sprintf("127.0.0.%d", i)
				opts := node.Options{
					Name:             fmt.Sprintf("node%d", i),
					AutoBootstrap:    false,
					ThriftInterface:  node.Addr{Host: host, Port: 9160},
					StorageInterface: node.Addr{Host: host, Port: 7000},
					BinaryInterface:  &node.Addr{Host: host, Port: 9042},
					JMXPort:          7100 + i,
				}
				if _, err := c.AddNode(opts, i == 1); err != nil {
					return err
				}
			}
			return env.cfg.SetCurrentCluster(name)
		},
	}
	createCmd.Flags().StringVar(&createInstallDir, "install-dir", "", "directorio de instalación del server (requerido)")
	createCmd.Flags().IntVarP(&createNodes, "nodes", "n", 0, "cantidad de nodos a crear de entrada")
	_ = createCmd.MarkFlagRequired("install-dir")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Lista los clusters existentes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := env.cfg.ListClusters()
			if err != nil {
				return err
			}
			current, _ := env.cfg.CurrentCluster()
			for _, name := range names {
				marker := " "
				if name == current {
					marker = "*"
				}
				fmt.Printf(" %s%s\n", marker, name)
			}
			return nil
		},
	}

	switchCmd := &cobra.Command{
		Use:   "switch <name>",
		Short: "Cambia el cluster activo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := cluster.Load(env.cfg.Home, args[0]); err != nil {
				return err
			}
			return env.cfg.SetCurrentCluster(args[0])
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Muestra el estado de los nodos del cluster activo",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := env.current()
			if err != nil {
				return err
			}
			for _, n := range c.Nodes() {
				if err := n.Refresh(); err != nil {
					return err
				}
				fmt.Printf("%s: %s\n", n.Name(), n.StatusString())
			}
			return nil
		},
	}

	var startBinaryProto bool
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Arranca todos los nodos del cluster activo",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := env.current()
			if err != nil {
				return err
			}
			return c.Start(node.StartOptions{WaitForBinaryProto: startBinaryProto})
		},
	}
	startCmd.Flags().BoolVar(&startBinaryProto, "wait-for-binary-proto", false, "esperar el listener de clientes de cada nodo")

	var stopForce bool
	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Detiene todos los nodos del cluster activo",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := env.current()
			if err != nil {
				return err
			}
			stopped, err := c.Stop(node.StopOptions{Force: stopForce})
			if err != nil {
				return err
			}
			fmt.Printf("%d node(s) stopped\n", stopped)
			return nil
		},
	}
	stopCmd.Flags().BoolVar(&stopForce, "force", false, "SIGKILL en vez de SIGTERM")

	removeCmd := &cobra.Command{
		Use:   "remove",
		Short: "Detiene y borra el cluster activo",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := env.current()
			if err != nil {
				return err
			}
			if err := c.Remove(); err != nil {
				return err
			}
			return env.cfg.ClearCurrentCluster()
		},
	}

	return []*cobra.Command{createCmd, listCmd, switchCmd, statusCmd, startCmd, stopCmd, removeCmd}
}

func monitorCommand(env *cliEnv) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Sirve /status y /metrics del cluster activo por HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := env.current()
			if err != nil {
				return err
			}
			return monitor.New(c).ListenAndServe(addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:7199", "dirección de escucha")
	return cmd
}
