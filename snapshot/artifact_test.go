package snapshot

import (
	"go/ast"
	"go/importer"
	"go/parser"
	"go/token"
	"go/types"
	"os"
	"strconv"
	"testing"
)

// artifact is a parsed generated file.
type artifact struct {
	src    string
	file   *ast.File
	values map[string]ast.Expr // var or const name -> value (nil when absent)
	types  map[string]ast.Expr
	consts []string // const names in declaration order
}

func parseArtifact(t *testing.T, path string) *artifact {
	t.Helper()
	src, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, path, src, parser.ParseComments)
	if err != nil {
		t.Fatalf("generated artifact does not parse: %v\n%s", err, src)
	}
	conf := types.Config{Importer: importer.Default()}
	if _, err := conf.Check(f.Name.Name, fset, []*ast.File{f}, nil); err != nil {
		t.Fatalf("generated artifact does not type-check: %v", err)
	}

	a := &artifact{
		src:    string(src),
		file:   f,
		values: make(map[string]ast.Expr),
		types:  make(map[string]ast.Expr),
	}
	for _, decl := range f.Decls {
		gd, ok := decl.(*ast.GenDecl)
		if !ok {
			continue
		}
		for _, spec := range gd.Specs {
			vs := spec.(*ast.ValueSpec)
			for i, name := range vs.Names {
				var v ast.Expr
				if i < len(vs.Values) {
					v = vs.Values[i]
				}
				a.values[name.Name] = v
				a.types[name.Name] = vs.Type
				if gd.Tok == token.CONST {
					a.consts = append(a.consts, name.Name)
				}
			}
		}
	}
	return a
}

func (a *artifact) has(name string) bool {
	_, ok := a.values[name]
	return ok
}

// table decodes a []byte composite literal.
func (a *artifact) table(t *testing.T, name string) []byte {
	t.Helper()
	lit, ok := a.values[name].(*ast.CompositeLit)
	if !ok {
		t.Fatalf("%s is not a composite literal: %T", name, a.values[name])
	}
	out := make([]byte, 0, len(lit.Elts))
	for _, e := range lit.Elts {
		bl, ok := e.(*ast.BasicLit)
		if !ok || bl.Kind != token.INT {
			t.Fatalf("%s: unexpected element %T", name, e)
		}
		n, err := strconv.ParseUint(bl.Value, 10, 8)
		if err != nil {
			t.Fatalf("%s: element %q: %v", name, bl.Value, err)
		}
		out = append(out, byte(n))
	}
	return out
}

// intConst resolves an integer constant, following identifier aliases.
func (a *artifact) intConst(t *testing.T, name string) int {
	t.Helper()
	switch v := a.values[name].(type) {
	case *ast.BasicLit:
		n, err := strconv.Atoi(v.Value)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		return n
	case *ast.Ident:
		return a.intConst(t, v.Name)
	default:
		t.Fatalf("%s: unexpected value %T", name, v)
		return 0
	}
}

// rawAlias returns the identifier RawData aliases, or "" when it is nil.
func (a *artifact) rawAlias(t *testing.T, name string) string {
	t.Helper()
	if !a.has(name) {
		t.Fatalf("%s not declared", name)
	}
	switch v := a.values[name].(type) {
	case nil:
		return ""
	case *ast.Ident:
		return v.Name
	default:
		t.Fatalf("%s: unexpected value %T", name, v)
		return ""
	}
}
