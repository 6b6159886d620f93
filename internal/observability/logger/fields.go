package logger

import "go.uber.org/zap"

// Helpers de campos comunes para mantener nombres consistentes en los logs.

// Node identifica el nodo sobre el que opera la acción.
func Node(name string) zap.Field { return zap.String("node", name) }

// Cluster identifica el cluster activo.
func Cluster(name string) zap.Field { return zap.String("cluster", name) }

// PID es el process id del proceso gestionado.
func PID(pid int) zap.Field { return zap.Int("pid", pid) }

// Err envuelve un error como campo.
func Err(err error) zap.Field { return zap.Error(err) }
