package runtime

import (
	"fmt"

	"github.com/pugjinja/pugjinja/pkg/compiler"
	"github.com/pugjinja/pugjinja/pkg/jinja2"
)

// Register installs the helpers under the names compiled templates call.
func Register(env jinja2.Context) {
	env[compiler.AttrsFunc] = jinja2.CallableValue{Name: compiler.AttrsFunc, Fn: attrsFunc}
	env[compiler.IterFunc] = jinja2.CallableValue{Name: compiler.IterFunc, Fn: iterFunc}
}

// NewRenderer returns a renderer whose globals include the helpers.
func NewRenderer(loader jinja2.Loader) *jinja2.Renderer {
	r := jinja2.NewRenderer(loader)
	Register(r.Evaluator.Globals)
	return r
}

func attrsFunc(args []jinja2.Value) (jinja2.Value, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, fmt.Errorf("want 1 or 2 arguments, got %d", len(args))
	}
	terse := len(args) == 2 && args[1].Truth()
	s, err := Attrs(args[0], terse)
	if err != nil {
		return nil, err
	}
	return jinja2.SafeValue(s), nil
}

func iterFunc(args []jinja2.Value) (jinja2.Value, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("want 2 arguments, got %d", len(args))
	}
	n, ok := args[1].(jinja2.IntValue)
	if !ok {
		return nil, fmt.Errorf("binding count must be an int, got %s", args[1])
	}
	return Iterate(args[0], int(n))
}
