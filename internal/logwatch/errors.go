package logwatch

import (
	"fmt"
	"strings"
	"time"
)

// TimeoutError indica que el watch venció antes de encontrar todos los
// patrones. Lleva el contexto completo para diagnosticar sin re-ejecutar.
type TimeoutError struct {
	When    time.Time
	Node    string
	Missing []string // patrones que nunca matchearon
	Reads   string   // todo el texto leído durante el watch
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s [%s] missing: [%s]:\n%s",
		e.When.UTC().Format("02 Jan 2006 15:04:05"),
		e.Node,
		strings.Join(e.Missing, ", "),
		e.Reads)
}

// ProcessError indica que el proceso observado salió con código distinto de
// cero mientras el watch estaba en curso.
type ProcessError struct {
	Node   string
	Code   int
	Stderr string
}

func (e *ProcessError) Error() string {
	msg := fmt.Sprintf("[%s] process exited with code %d during watch", e.Node, e.Code)
	if e.Stderr != "" {
		msg += ":\n" + e.Stderr
	}
	return msg
}
