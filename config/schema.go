package config

import (
	_ "embed"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

//go:embed schema.cue
var schemaSource string

var (
	schemaOnce sync.Once
	schemaCtx  *cue.Context
	schemaDef  cue.Value
	schemaErr  error
)

func loadSchema() {
	schemaCtx = cuecontext.New()
	v := schemaCtx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := v.Err(); err != nil {
		schemaErr = fmt.Errorf("compile schema: %w", err)
		return
	}
	schemaDef = v.LookupPath(cue.ParsePath("#Config"))
	if err := schemaDef.Err(); err != nil {
		schemaErr = fmt.Errorf("schema has no #Config: %w", err)
	}
}

func validateSchema(c *Config) error {
	schemaOnce.Do(loadSchema)
	if schemaErr != nil {
		return schemaErr
	}
	v := schemaCtx.Encode(c)
	if err := v.Err(); err != nil {
		return err
	}
	if err := schemaDef.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%s", cueerrors.Details(err, nil))
	}
	return nil
}
