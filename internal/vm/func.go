package vm

import (
	"fmt"

	"hotscript/internal/errors"
)

// Param is one formal parameter of a user-defined function
type Param struct {
	Name       string
	ByRef      bool
	Default    Value
	HasDefault bool
}

// Body is the executable part of a user-defined function. The parser and
// line engine live outside this module; they hand the interpreter a Body.
type Body func(t *Thread, a *Activation) (Value, error)

// Func represents a user-defined function
type Func struct {
	Name     string
	Params   []Param // formal parameters, excluding the variadic one
	Variadic bool    // the function accepts surplus arguments
	Body     Body
}

// Activation is the per-invocation record of a function: its own locals,
// never shared with another invocation of the same function, so recursive
// and re-entrant calls cannot alias each other.
type Activation struct {
	Func   *Func
	Locals []*Var
	Rest   []Value // surplus arguments of a variadic call
	// RestAddr is set instead of Rest when the surplus arguments live in
	// native memory (callbacks); it is the address of the first one.
	RestAddr uintptr
	RestLen  int
	Depth    int // number of live activations of Func including this one
}

// MinParams returns the number of mandatory parameters
func (f *Func) MinParams() int {
	n := 0
	for _, p := range f.Params {
		if !p.HasDefault {
			n++
		}
	}
	return n
}

// MaxParams returns the number of formal parameters
func (f *Func) MaxParams() int {
	return len(f.Params)
}

// HasByRefParams reports whether any formal is declared by reference
func (f *Func) HasByRefParams() bool {
	for _, p := range f.Params {
		if p.ByRef {
			return true
		}
	}
	return false
}

// Local returns the local variable bound to the named parameter
func (a *Activation) Local(name string) *Var {
	for i, p := range a.Func.Params {
		if p.Name == name {
			return a.Locals[i]
		}
	}
	return nil
}

// Arg returns the value of the i-th formal parameter
func (a *Activation) Arg(i int) Value {
	if i < 0 || i >= len(a.Locals) {
		return nil
	}
	return a.Locals[i].Value
}

// newActivation allocates the locals of one invocation of f
func newActivation(f *Func) *Activation {
	a := &Activation{Func: f, Locals: make([]*Var, len(f.Params))}
	for i, p := range f.Params {
		a.Locals[i] = NewVar(p.Name, nil)
	}
	return a
}

// bind assigns actual arguments to formals. ByRef formals alias the caller's
// variable when one is supplied; missing trailing formals take their default.
func (a *Activation) bind(args []Value) error {
	f := a.Func
	if len(args) < f.MinParams() {
		return errors.NewTypeError("Too few parameters passed to function.", f.Name)
	}
	if len(args) > len(f.Params) && !f.Variadic {
		return errors.NewTypeError("Too many parameters passed to function.", f.Name)
	}
	for i, p := range f.Params {
		if i >= len(args) {
			if !p.HasDefault {
				return errors.NewTypeError(fmt.Sprintf("Missing a required parameter: %s", p.Name), f.Name)
			}
			a.Locals[i].Value = p.Default
			continue
		}
		if p.ByRef {
			if vr, ok := args[i].(*Var); ok {
				a.Locals[i] = vr
				continue
			}
		}
		a.Locals[i].Value = Deref(args[i])
	}
	if len(args) > len(f.Params) {
		for _, extra := range args[len(f.Params):] {
			a.Rest = append(a.Rest, Deref(extra))
		}
	}
	return nil
}
