// Package logwatch implementa el watch bloqueante sobre el log append-only de
// un nodo: un conjunto de regexps a encontrar desde una marca, con timeout y
// detección de muerte del proceso observado. El log nunca se escribe, solo se
// lee; el archivo puede no existir todavía cuando arranca el watch.
package logwatch

import (
	"bufio"
	"errors"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/zackse/ccm/internal/metrics"
)

// Process es la vista mínima que el watcher necesita de un proceso lanzado:
// saber si terminó, con qué código, y su stderr capturado.
type Process interface {
	Poll() (exited bool, code int)
	Stderr() string
}

// Match es el resultado de un patrón encontrado: la primera línea que lo
// satisfizo y los grupos capturados.
type Match struct {
	Pattern string   // expresión original
	Line    string   // línea completa (sin el newline final)
	Groups  []string // resultado de FindStringSubmatch
}

// Options controla un watch individual.
type Options struct {
	// Node es el nombre del nodo dueño del log, solo para diagnóstico.
	Node string

	// FromMark es el offset en bytes desde el que leer. Cero lee desde el
	// principio. Una marca queda sin sentido si el log rota o se trunca;
	// eso no se reconcilia acá.
	FromMark int64

	// Timeout acota el tiempo acumulado de espera. Default: 10 minutos.
	Timeout time.Duration

	// Process, si está presente, aborta el watch cuando el proceso termina:
	// exit 0 es benigno (retorna sin matches), exit != 0 es *ProcessError.
	Process Process

	// PollInterval es la espera entre lecturas cuando se alcanzó EOF.
	// Default: 1s. FilePollInterval es la espera mientras el archivo no
	// existe. Default: 500ms. Solo los tests deberían bajarlos.
	PollInterval     time.Duration
	FilePollInterval time.Duration
}

const (
	defaultTimeout      = 10 * time.Minute
	defaultPollInterval = time.Second
	defaultFilePoll     = 500 * time.Millisecond
)

func (o *Options) fill() {
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = defaultPollInterval
	}
	if o.FilePollInterval <= 0 {
		o.FilePollInterval = defaultFilePoll
	}
}

type pending struct {
	src string
	re  *regexp.Regexp
}

// Watch bloquea hasta que cada expresión de exprs haya matcheado al menos una
// línea de path posterior a FromMark, o hasta timeout / muerte del proceso.
//
// Cada patrón matchea a lo sumo una vez (gana la primera línea); los matches
// se devuelven en el orden en que fueron apareciendo. Un retorno (nil, nil)
// significa que el proceso observado terminó con código cero antes de que
// aparecieran todos los patrones: el caller decide si eso es aceptable.
func Watch(path string, exprs []string, opts Options) ([]Match, error) {
	if len(exprs) == 0 {
		return nil, nil
	}
	opts.fill()

	active := make([]pending, 0, len(exprs))
	for _, e := range exprs {
		re, err := regexp.Compile(e)
		if err != nil {
			return nil, err
		}
		active = append(active, pending{src: e, re: re})
	}

	var elapsed time.Duration

	// Fase 1: esperar a que el log exista. Si el proceso muere antes de
	// llegar a escribir su log, acá es donde se detecta el arranque fallido.
	for {
		if _, err := os.Stat(path); err == nil {
			break
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		if opts.Process != nil {
			if exited, code := opts.Process.Poll(); exited {
				if code != 0 {
					metrics.WatchProcessFailures.Inc()
					return nil, &ProcessError{Node: opts.Node, Code: code, Stderr: opts.Process.Stderr()}
				}
				return nil, nil
			}
		}
		time.Sleep(opts.FilePollInterval)
		elapsed += opts.FilePollInterval
		if elapsed > opts.Timeout {
			metrics.WatchTimeouts.Inc()
			return nil, &TimeoutError{When: time.Now(), Node: opts.Node, Missing: missing(active)}
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if opts.FromMark > 0 {
		if _, err := f.Seek(opts.FromMark, io.SeekStart); err != nil {
			return nil, err
		}
	}

	r := bufio.NewReader(f)
	var matches []Match
	var reads strings.Builder   // todo lo leído, para el TimeoutError
	var partial strings.Builder // cola de línea incompleta en EOF

	// Fase 2: loop de lectura.
	for {
		if opts.Process != nil {
			if exited, code := opts.Process.Poll(); exited && code != 0 {
				metrics.WatchProcessFailures.Inc()
				return nil, &ProcessError{Node: opts.Node, Code: code, Stderr: opts.Process.Stderr()}
			}
		}

		chunk, err := r.ReadString('\n')
		if err == nil {
			line := partial.String() + chunk
			partial.Reset()
			reads.WriteString(line)
			line = strings.TrimRight(line, "\n")

			// Una línea puede satisfacer más de un patrón pendiente, pero
			// cada patrón se satisface una sola vez.
			remaining := active[:0]
			for _, p := range active {
				if g := p.re.FindStringSubmatch(line); g != nil {
					matches = append(matches, Match{Pattern: p.src, Line: line, Groups: g})
				} else {
					remaining = append(remaining, p)
				}
			}
			active = remaining
			if len(active) == 0 {
				return matches, nil
			}
			continue
		}

		// EOF: guardar la cola parcial y decidir entre abortar y esperar.
		partial.WriteString(chunk)

		if opts.Process != nil {
			if exited, code := opts.Process.Poll(); exited {
				if code != 0 {
					metrics.WatchProcessFailures.Inc()
					return nil, &ProcessError{Node: opts.Node, Code: code, Stderr: opts.Process.Stderr()}
				}
				// El proceso terminó bien antes de loguear lo esperado.
				return nil, nil
			}
		}

		time.Sleep(opts.PollInterval)
		elapsed += opts.PollInterval
		if elapsed > opts.Timeout {
			metrics.WatchTimeouts.Inc()
			return nil, &TimeoutError{
				When:    time.Now(),
				Node:    opts.Node,
				Missing: missing(active),
				// la cola parcial también es texto leído
				Reads: reads.String() + partial.String(),
			}
		}
	}
}

// WatchOne es la variante escalar de Watch: un solo patrón, un solo match.
// Retorna nil (sin error) si el proceso observado terminó con código cero
// antes de que el patrón apareciera.
func WatchOne(path, expr string, opts Options) (*Match, error) {
	ms, err := Watch(path, []string{expr}, opts)
	if err != nil || len(ms) == 0 {
		return nil, err
	}
	return &ms[0], nil
}

func missing(active []pending) []string {
	out := make([]string, len(active))
	for i, p := range active {
		out[i] = p.src
	}
	return out
}

// Mark retorna la posición actual de fin del log, para acotar watches
// posteriores a contenido nuevo. Si el archivo no existe todavía retorna 0.
func Mark(path string) int64 {
	st, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return st.Size()
}

// Grep retorna todas las líneas del log que matchean expr, desde el principio
// del archivo. No bloquea: lee lo que hay y termina.
func Grep(path, expr string) ([]Match, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []Match
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if g := re.FindStringSubmatch(line); g != nil {
			out = append(out, Match{Pattern: expr, Line: line, Groups: g})
		}
	}
	return out, sc.Err()
}
