package script

import (
	"errors"
	"fmt"
	"strings"

	"github.com/expr-lang/expr/file"
	"github.com/fatih/color"
)

// Phase is the stage of extra-code processing that failed.
type Phase int

const (
	Compiling Phase = iota
	Running
)

func (p Phase) String() string {
	if p == Running {
		return "running"
	}
	return "compiling"
}

// Error is a compile or run failure with enough source context to point
// at the offending text. Columns are 0-based; EndColumn is exclusive.
type Error struct {
	Phase       Phase
	Name        string
	Line        int
	StartColumn int
	EndColumn   int
	SourceLine  string
	Message     string
	Err         error
}

func (e *Error) Error() string {
	return e.Format(false)
}

func (e *Error) Unwrap() error { return e.Err }

// Format renders the diagnostic: a headline naming the script, the
// message with its line number, the source line, and a caret line under
// the failing columns. colored highlights the carets.
func (e *Error) Format(colored bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Failure %s '%s'\n", e.Phase, e.Name)
	fmt.Fprintf(&b, "%s at line %d\n", e.Message, e.Line)
	b.WriteString(e.SourceLine)
	b.WriteByte('\n')

	end := e.EndColumn
	if end <= e.StartColumn {
		end = e.StartColumn + 1
	}
	marker := color.New(color.FgRed, color.Bold)
	if colored {
		marker.EnableColor()
	} else {
		marker.DisableColor()
	}
	b.WriteString(strings.Repeat(" ", e.StartColumn))
	b.WriteString(marker.Sprint(strings.Repeat("^", end-e.StartColumn)))
	return b.String()
}

// newError builds an Error for statement st, locating the failure from
// the expression error when it carries a position.
func newError(phase Phase, name string, st statement, err error) *Error {
	e := &Error{
		Phase:       phase,
		Name:        name,
		Line:        st.line,
		StartColumn: st.offset,
		EndColumn:   len(st.text),
		SourceLine:  st.text,
		Message:     err.Error(),
		Err:         err,
	}
	var fe *file.Error
	if errors.As(err, &fe) {
		e.Message = fe.Message
		width := fe.To - fe.From
		if width < 1 {
			width = 1
		}
		e.StartColumn = min(st.offset+fe.Column, len(st.text))
		e.EndColumn = min(e.StartColumn+width, len(st.text))
	}
	return e
}
