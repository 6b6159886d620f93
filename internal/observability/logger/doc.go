// Package logger provee un logger zap singleton para toda la herramienta.
//
// Uso:
//
//	logger.Init(logger.Config{Env: "dev", Level: "info"})
//	defer logger.Sync()
//
//	log := logger.Named("node")
//	log.Info("starting", logger.Node("node1"))
package logger
