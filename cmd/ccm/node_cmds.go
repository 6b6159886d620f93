package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/zackse/ccm/internal/cluster"
	"github.com/zackse/ccm/internal/logwatch"
	"github.com/zackse/ccm/internal/node"
)

func nodeCommands(env *cliEnv) *cobra.Command {
	nodeCmd := &cobra.Command{
		Use:   "node",
		Short: "Operaciones sobre un nodo del cluster activo",
	}

	var addThrift, addStorage, addBinary, addToken, addDC string
	var addJMX, addDebugPort int
	var addSeed, addBootstrap bool
	addCmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Agrega un nodo al cluster activo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := env.current()
			if err != nil {
				return err
			}
			thrift, err := parseAddr(addThrift)
			if err != nil {
				return err
			}
			storage, err := parseAddr(addStorage)
			if err != nil {
				return err
			}
			var binary *node.Addr
			if addBinary != "" {
				a, err := parseAddr(addBinary)
				if err != nil {
					return err
				}
				binary = &a
			}
			_, err = c.AddNode(node.Options{
				Name:             args[0],
				AutoBootstrap:    addBootstrap,
				ThriftInterface:  thrift,
				StorageInterface: storage,
				BinaryInterface:  binary,
				JMXPort:          addJMX,
				RemoteDebugPort:  addDebugPort,
				InitialToken:     addToken,
				DataCenter:       addDC,
			}, addSeed)
			return err
		},
	}
	addCmd.Flags().StringVar(&addThrift, "thrift", "", "endpoint thrift host:port (requerido)")
	addCmd.Flags().StringVar(&addStorage, "storage", "", "endpoint storage host:port (requerido)")
	addCmd.Flags().StringVar(&addBinary, "binary", "", "endpoint binario host:port")
	addCmd.Flags().IntVar(&addJMX, "jmx-port", 7199, "puerto JMX")
	addCmd.Flags().IntVar(&addDebugPort, "remote-debug-port", 0, "puerto de debug remoto")
	addCmd.Flags().StringVar(&addToken, "token", "", "initial token")
	addCmd.Flags().StringVar(&addDC, "data-center", "", "etiqueta de datacenter")
	addCmd.Flags().BoolVar(&addSeed, "seed", false, "marcar el nodo como seed")
	addCmd.Flags().BoolVar(&addBootstrap, "auto-bootstrap", false, "habilitar auto bootstrap")
	_ = addCmd.MarkFlagRequired("thrift")
	_ = addCmd.MarkFlagRequired("storage")

	var startOpts node.StartOptions
	var startNotice bool
	var startNoticeTimeout time.Duration
	startCmd := &cobra.Command{
		Use:   "start <name>",
		Short: "Arranca el nodo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := env.current()
			if err != nil {
				return err
			}
			if startOpts.ProfileAgent != "" && env.cfg.YourkitAgent != "" && startOpts.ProfileAgent == "config" {
				startOpts.ProfileAgent = env.cfg.YourkitAgent
			}
			return c.StartNode(args[0], cluster.StartNodeOptions{
				StartOptions:    startOpts,
				WaitOtherNotice: startNotice,
				NoticeTimeout:   startNoticeTimeout,
			})
		},
	}
	startCmd.Flags().BoolVar(&startOpts.NoJoinRing, "no-join-ring", false, "arrancar fuera del ring")
	startCmd.Flags().BoolVar(&startOpts.NoWait, "no-wait", false, "no esperar el pid file")
	startCmd.Flags().StringVar(&startOpts.ReplaceToken, "replace-token", "", "token a reemplazar")
	startCmd.Flags().StringVar(&startOpts.ReplaceAddress, "replace-address", "", "dirección a reemplazar")
	startCmd.Flags().StringArrayVar(&startOpts.JVMArgs, "jvm-arg", nil, "flag extra para el runtime (repetible)")
	startCmd.Flags().StringVar(&startOpts.ProfileAgent, "profile", "", "agentpath de profiling ('config' usa el de config.yaml)")
	startCmd.Flags().BoolVar(&startOpts.WaitForBinaryProto, "wait-for-binary-proto", false, "esperar el listener de clientes")
	startCmd.Flags().BoolVar(&startNotice, "wait-other-notice", false, "esperar a que los peers vivos marquen el nodo UP")
	startCmd.Flags().DurationVar(&startNoticeTimeout, "notice-timeout", 0, "timeout por peer del wait-other-notice")

	var stopOpts node.StopOptions
	var stopNotice bool
	var stopNoticeTimeout time.Duration
	stopCmd := &cobra.Command{
		Use:   "stop <name>",
		Short: "Detiene el nodo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := env.current()
			if err != nil {
				return err
			}
			ok, err := c.StopNode(args[0], cluster.StopNodeOptions{
				StopOptions:     stopOpts,
				WaitOtherNotice: stopNotice,
				NoticeTimeout:   stopNoticeTimeout,
			})
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("not running")
			}
			return nil
		},
	}
	stopCmd.Flags().BoolVar(&stopOpts.Force, "force", false, "SIGKILL en vez de SIGTERM")
	stopCmd.Flags().BoolVar(&stopOpts.NoWait, "no-wait", false, "no confirmar la muerte del proceso")
	stopCmd.Flags().BoolVar(&stopNotice, "wait-other-notice", false, "esperar a que los peers vivos marquen el nodo muerto")
	stopCmd.Flags().DurationVar(&stopNoticeTimeout, "notice-timeout", 0, "timeout por peer del wait-other-notice")

	showCmd := &cobra.Command{
		Use:   "show <name>",
		Short: "Muestra la configuración y el estado del nodo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := lookupNode(env, args[0])
			if err != nil {
				return err
			}
			if err := n.Refresh(); err != nil {
				return err
			}
			fmt.Printf("%s: %s\n", n.Name(), n.StatusString())
			itf := n.Interfaces()
			fmt.Printf("    auto_bootstrap=%t\n", n.AutoBootstrap())
			fmt.Printf("    thrift=%s\n", itf.Thrift)
			if itf.Binary != nil {
				fmt.Printf("    binary=%s\n", itf.Binary)
			}
			fmt.Printf("    storage=%s\n", itf.Storage)
			fmt.Printf("    jmx_port=%d\n", n.JMXPort())
			if n.RemoteDebugPort() != 0 {
				fmt.Printf("    remote_debug_port=%d\n", n.RemoteDebugPort())
			}
			if n.InitialToken() != "" {
				fmt.Printf("    initial_token=%s\n", n.InitialToken())
			}
			if pid := n.PID(); pid != 0 {
				fmt.Printf("    pid=%d\n", pid)
			}
			return nil
		},
	}

	markCmd := &cobra.Command{
		Use:   "mark <name>",
		Short: "Imprime la marca actual del log del nodo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := lookupNode(env, args[0])
			if err != nil {
				return err
			}
			fmt.Println(n.MarkLog())
			return nil
		},
	}

	var watchMark int64
	var watchTimeout time.Duration
	watchCmd := &cobra.Command{
		Use:   "watch <name> <pattern>...",
		Short: "Bloquea hasta que los patrones aparezcan en el log del nodo",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := lookupNode(env, args[0])
			if err != nil {
				return err
			}
			matches, err := n.WatchLogFor(args[1:], logwatch.Options{
				FromMark: watchMark,
				Timeout:  watchTimeout,
			})
			if err != nil {
				return err
			}
			for _, m := range matches {
				fmt.Println(m.Line)
			}
			return nil
		},
	}
	watchCmd.Flags().Int64Var(&watchMark, "from-mark", 0, "offset desde el que mirar")
	watchCmd.Flags().DurationVar(&watchTimeout, "timeout", 0, "timeout del watch")

	grepCmd := &cobra.Command{
		Use:   "grep <name> <pattern>",
		Short: "Imprime las líneas del log del nodo que matchean el patrón",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := lookupNode(env, args[0])
			if err != nil {
				return err
			}
			matches, err := n.GrepLog(args[1])
			if err != nil {
				return err
			}
			for _, m := range matches {
				fmt.Println(m.Line)
			}
			return nil
		},
	}

	var setlogClass string
	setlogCmd := &cobra.Command{
		Use:   "setlog <name> <level>",
		Short: "Cambia el nivel de log del server del nodo",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := lookupNode(env, args[0])
			if err != nil {
				return err
			}
			return n.SetLogLevel(args[1], setlogClass)
		},
	}
	setlogCmd.Flags().StringVar(&setlogClass, "class", "", "limitar el nivel a una clase del server")

	decommissionCmd := &cobra.Command{
		Use:   "decommission <name>",
		Short: "Saca el nodo del ring (el proceso sigue corriendo)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := lookupNode(env, args[0])
			if err != nil {
				return err
			}
			return n.Decommission()
		},
	}

	nodeCmd.AddCommand(addCmd, startCmd, stopCmd, showCmd, markCmd, watchCmd, grepCmd, setlogCmd, decommissionCmd)
	return nodeCmd
}

func lookupNode(env *cliEnv, name string) (*node.Node, error) {
	c, err := env.current()
	if err != nil {
		return nil, err
	}
	return c.Node(name)
}
