// Package textfile implementa sustituciones línea-a-línea sobre archivos de
// configuración de texto plano (cassandra-env.sh, logback.xml, launchers).
package textfile

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/zackse/ccm/internal/util/atomicwrite"
)

// ReplaceInFile reemplaza cada línea que matchee pattern (regexp) por repl.
// El archivo se reescribe completo de forma atómica.
func ReplaceInFile(path, pattern, repl string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("compile %q: %w", pattern, err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	lines := strings.Split(string(b), "\n")
	for i, line := range lines {
		if re.MatchString(line) {
			lines[i] = repl
		}
	}
	return atomicwrite.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o644)
}

// ReplaceOrAppend reemplaza la línea que matchee pattern, o agrega repl al
// final del archivo si ninguna línea matchea.
func ReplaceOrAppend(path, pattern, repl string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("compile %q: %w", pattern, err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	lines := strings.Split(string(b), "\n")
	replaced := false
	for i, line := range lines {
		if re.MatchString(line) {
			lines[i] = repl
			replaced = true
		}
	}
	if !replaced {
		// sin newline doble si el archivo ya termina en "\n"
		if len(lines) > 0 && lines[len(lines)-1] == "" {
			lines[len(lines)-1] = repl
			lines = append(lines, "")
		} else {
			lines = append(lines, repl)
		}
	}
	return atomicwrite.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o644)
}
