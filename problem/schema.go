package problem

import (
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cuejson "cuelang.org/go/encoding/json"
)

// definitionSchema constrains the JSON interchange shape before decoding:
// at least one IO case, values as integers or one-character strings, and
// memory in either the full or the sparse form.
const definitionSchema = `
#value: int | string

#io: {
	input: [...#value]
	output: [...#value]
}

ios: [#io, ...#io]

memory?: {
	full?: [...(#value | null)]
	partial?: {
		dim: int & >=0
		values?: {[string]: #value}
	}
}

commands: [...string]
`

var (
	schemaOnce  sync.Once
	schemaValue cue.Value
	schemaErr   error
)

func schema() (cue.Value, error) {
	schemaOnce.Do(func() {
		v := cuecontext.New().CompileString(definitionSchema)
		if err := v.Err(); err != nil {
			schemaErr = fmt.Errorf("problem: schema: %w", err)
			return
		}
		schemaValue = v
	})
	return schemaValue, schemaErr
}

// validateJSON checks raw JSON against the definition schema.
func validateJSON(data []byte) error {
	sv, err := schema()
	if err != nil {
		return err
	}
	if err := cuejson.Validate(data, sv); err != nil {
		return fmt.Errorf("problem: invalid definition: %w", err)
	}
	return nil
}
