// Package sandbox executes generated verification programs in a yaegi
// interpreter. The search toolkit is the only capability surface a program
// can reach, plus a short whitelist of stdlib packages. No filesystem,
// network, or exec access is reachable from interpreted code.
package sandbox

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"cardcheck/internal/logging"
	"cardcheck/internal/search"
)

// StubProgram deterministically reports no evidence. It is substituted for
// every missing or unusable generator output so a malformed batch never
// fails the run.
const StubProgram = `package main

import "cardcheck/internal/search"

func RunCheck(t *search.Toolkit) (*search.Result, error) {
	return &search.Result{Found: false, Count: 0}, nil
}
`

// Runner executes one generated program against the snapshot toolkit.
// The engine depends on this interface so tests can substitute a fake.
type Runner interface {
	Run(ctx context.Context, program string) (*search.Result, error)
}

// Executor is the yaegi-backed Runner. Each Run gets a fresh interpreter;
// programs are stateless and share nothing but the read-only toolkit.
type Executor struct {
	toolkit *search.Toolkit
	timeout time.Duration
	allowed map[string]bool
}

// NewExecutor builds an executor over one run's toolkit.
func NewExecutor(toolkit *search.Toolkit, timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Executor{
		toolkit: toolkit,
		timeout: timeout,
		allowed: map[string]bool{
			"strings": true,
			"strconv": true,
			"fmt":     true,
			"regexp":  true,
			"sort":    true,

			// The one capability surface.
			"cardcheck/internal/search": true,

			// Blocked by omission: os, os/exec, net, net/http, syscall,
			// io/ioutil, unsafe.
		},
	}
}

// Run evaluates one program and calls its RunCheck entry point. A panic,
// evaluation error, or timeout is returned as an error; the caller records
// it as no-evidence and continues with sibling programs.
func (e *Executor) Run(ctx context.Context, program string) (*search.Result, error) {
	if err := e.validateImports(program); err != nil {
		return nil, fmt.Errorf("rejected program: %w", err)
	}

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("load stdlib symbols: %w", err)
	}
	if err := i.Use(Symbols); err != nil {
		return nil, fmt.Errorf("load capability symbols: %w", err)
	}

	if _, err := i.Eval(wrapProgram(program)); err != nil {
		return nil, fmt.Errorf("program evaluation failed: %w", err)
	}

	entry, err := i.Eval("main.RunCheck")
	if err != nil {
		return nil, fmt.Errorf("RunCheck not found: %w", err)
	}
	runCheck, ok := entry.Interface().(func(*search.Toolkit) (*search.Result, error))
	if !ok {
		return nil, fmt.Errorf("RunCheck has wrong signature (want func(*search.Toolkit) (*search.Result, error))")
	}

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resultCh := make(chan *search.Result, 1)
	errCh := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				errCh <- fmt.Errorf("program panicked: %v", r)
			}
		}()
		res, err := runCheck(e.toolkit)
		if err != nil {
			errCh <- err
			return
		}
		if res == nil {
			res = &search.Result{}
		}
		resultCh <- res
	}()

	select {
	case res := <-resultCh:
		logging.SandboxDebug("program completed: found=%v count=%d", res.Found, res.Count)
		return res, nil
	case err := <-errCh:
		return nil, err
	case <-runCtx.Done():
		return nil, fmt.Errorf("program execution timed out: %w", runCtx.Err())
	}
}

// validateImports rejects any import outside the whitelist before the
// interpreter ever sees the code.
func (e *Executor) validateImports(program string) error {
	var forbidden []string
	for _, pkg := range extractImports(program) {
		if !e.allowed[pkg] {
			forbidden = append(forbidden, pkg)
		}
	}
	if len(forbidden) > 0 {
		return fmt.Errorf("forbidden imports: %v", forbidden)
	}
	return nil
}

// extractImports pulls import paths out of source text. Line-based on
// purpose: the program has not been parsed yet at this point.
func extractImports(program string) []string {
	var imports []string
	inBlock := false
	for _, line := range strings.Split(program, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "import ("):
			inBlock = true
		case inBlock && strings.HasPrefix(trimmed, ")"):
			inBlock = false
		case inBlock:
			if pkg := unquoteImport(trimmed); pkg != "" {
				imports = append(imports, pkg)
			}
		case strings.HasPrefix(trimmed, "import "):
			if pkg := unquoteImport(strings.TrimPrefix(trimmed, "import ")); pkg != "" {
				imports = append(imports, pkg)
			}
		}
	}
	return imports
}

// unquoteImport strips an optional alias and the quotes from one import line.
func unquoteImport(line string) string {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "//") {
		return ""
	}
	if i := strings.IndexByte(line, '"'); i >= 0 {
		line = line[i:]
	}
	return strings.Trim(line, `"`)
}

// wrapProgram ensures the snippet carries a package clause.
func wrapProgram(program string) string {
	if strings.Contains(program, "package main") {
		return program
	}
	return "package main\n\n" + program
}
