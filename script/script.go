// Package script compiles and runs the extra code that customizes a
// snapshot's global scope before it is captured.
//
// A script is a sequence of lines, each an expr-lang expression. A line of
// the form
//
//	name = expression
//
// binds the result as a global; any other line is evaluated for its
// effect on the run. Blank lines and lines starting with # or // are
// ignored.
package script

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/expr-lang/expr"

	"github.com/chazu/mksnapshot/heap"
)

var assignRe = regexp.MustCompile(`^\s*([A-Za-z_][A-Za-z0-9_]*)\s*=([^=].*)$`)

type statement struct {
	line   int    // 1-based
	text   string // full source line
	target string // assigned global, empty for bare expressions
	source string // the expression
	offset int    // column of source within text
}

// Program is a compiled script.
type Program struct {
	name  string
	stmts []statement
}

// Name returns the script's name as used in diagnostics.
func (p *Program) Name() string { return p.name }

// Len returns the number of statements.
func (p *Program) Len() int { return len(p.stmts) }

// Compile splits source into statements and parses each one. The first
// failure is returned as an *Error in the Compiling phase.
func Compile(name, source string) (*Program, error) {
	p := &Program{name: name}
	for i, text := range strings.Split(source, "\n") {
		text = strings.TrimRight(text, "\r")
		trimmed := strings.TrimSpace(text)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "//") {
			continue
		}

		st := statement{line: i + 1, text: text, source: text}
		if m := assignRe.FindStringSubmatchIndex(text); m != nil {
			st.target = text[m[2]:m[3]]
			st.source = text[m[4]:m[5]]
			st.offset = m[4]
		}
		if strings.TrimSpace(st.source) == "" {
			return nil, newError(Compiling, name, st, fmt.Errorf("missing expression"))
		}
		if _, err := expr.Compile(st.source); err != nil {
			return nil, newError(Compiling, name, st, err)
		}
		p.stmts = append(p.stmts, st)
	}
	return p, nil
}

// Run evaluates the statements in order inside scope. Each statement is
// checked against the globals bound so far, so an unknown name or a type
// mismatch fails the run at that line. Run returns the value of the last
// statement.
func (p *Program) Run(scope *heap.Scope) (any, error) {
	h := scope.Heap()
	var last any
	for _, st := range p.stmts {
		env, err := scope.Globals()
		if err != nil {
			return nil, newError(Running, p.name, st, err)
		}
		program, err := expr.Compile(st.source, expr.Env(env))
		if err != nil {
			return nil, newError(Running, p.name, st, err)
		}
		out, err := expr.Run(program, env)
		if err != nil {
			return nil, newError(Running, p.name, st, err)
		}
		if st.target != "" {
			v, err := h.FromGo(out)
			if err != nil {
				return nil, newError(Running, p.name, st, err)
			}
			scope.Define(st.target, v)
		}
		last = out
	}
	return last, nil
}
