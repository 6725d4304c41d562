// Package expr evaluates parameter expressions for Plantarium.
// An expression is a small zygomys program run in a fresh sandbox with a few
// numeric variables bound (value, alpha, i); its last form yields the result.
package expr

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	zygo "github.com/glycerine/zygomys/zygo"
)

// EvalError represents a non-fatal error in an expression, such as a parse
// error or a runtime error in user code.
type EvalError struct {
	Line    int
	Col     int
	Message string
}

func (e EvalError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return e.Message
}

// Evaluator runs parameter expressions. It is safe for concurrent use; each
// call to Eval creates a fresh sandboxed environment for determinism. A newer
// call supersedes one that is still running.
type Evaluator struct {
	mu         sync.Mutex
	generation uint64
	timeout    time.Duration
}

// NewEvaluator creates an Evaluator. A non-positive timeout selects
// DefaultTimeout.
func NewEvaluator(timeout time.Duration) *Evaluator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Evaluator{timeout: timeout}
}

// Timeout returns the hard limit for a single evaluation.
func (e *Evaluator) Timeout() time.Duration {
	return e.timeout
}

// Eval evaluates source with vars bound as globals and returns the numeric
// result. Parse and runtime failures are returned as EvalError; timeouts and
// panics as plain errors.
func (e *Evaluator) Eval(source string, vars map[string]float64) (float64, error) {
	e.mu.Lock()
	e.generation++
	gen := e.generation
	e.mu.Unlock()

	ch := make(chan evalResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- evalResult{err: fmt.Errorf("panic during evaluation: %v", r)}
			}
		}()

		v, err := evaluate(source, vars)
		ch <- evalResult{value: v, err: err}
	}()

	return waitWithTimeout(ch, gen, &e.mu, &e.generation, e.timeout)
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// evaluate performs the actual zygomys evaluation in a fresh sandbox.
func evaluate(source string, vars map[string]float64) (float64, error) {
	if strings.TrimSpace(source) == "" {
		return 0, EvalError{Message: "empty expression"}
	}

	// Sandbox mode prevents user code from accessing the filesystem or syscalls.
	env := zygo.NewZlispSandbox()
	defer env.Stop()
	registerBuiltins(env)

	prelude, err := bindings(vars)
	if err != nil {
		return 0, err
	}

	// The prelude shares the first line so reported line numbers stay valid.
	if err := env.LoadString(prelude + source); err != nil {
		return 0, parseZygomysError(err)
	}

	res, err := env.Run()
	if err != nil {
		return 0, parseZygomysError(err)
	}

	v, err := toFloat64(res)
	if err != nil {
		return 0, EvalError{Message: err.Error()}
	}
	return v, nil
}

// bindings renders vars as (def name value) forms in a stable order.
func bindings(vars map[string]float64) (string, error) {
	names := make([]string, 0, len(vars))
	for name := range vars {
		if !identPattern.MatchString(name) {
			return "", fmt.Errorf("expr: invalid variable name %q", name)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	for _, name := range names {
		fmt.Fprintf(&sb, "(def %s %s) ", name, formatNumber(vars[name]))
	}
	return sb.String(), nil
}

// formatNumber always includes a decimal point so zygomys reads a float.
func formatNumber(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// linePattern matches zygomys error messages that include "Error on line N: ..."
var linePattern = regexp.MustCompile(`(?i)(?:error )?on line (\d+):\s*(.*)`)

// linePatternShort matches simpler "line N: ..." patterns.
var linePatternShort = regexp.MustCompile(`(?i)^line (\d+):\s*(.*)`)

// parseZygomysError converts a zygomys error into an EvalError, extracting
// the line number when the message carries one.
func parseZygomysError(err error) EvalError {
	msg := err.Error()

	for _, p := range []*regexp.Regexp{linePattern, linePatternShort} {
		if m := p.FindStringSubmatch(msg); m != nil {
			line, _ := strconv.Atoi(m[1])
			return EvalError{Line: line, Message: strings.TrimSpace(m[2])}
		}
	}
	return EvalError{Message: strings.TrimSpace(msg)}
}
