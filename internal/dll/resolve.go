package dll

import (
	"strings"
	"sync"

	"hotscript/internal/errors"
	"hotscript/internal/native"
	"hotscript/internal/vm"
)

const errNoFunction = "Call to nonexistent function."

// suffix is appended to an export name that was not found as given, for
// APIs exported in A and W variants
var suffix = func() string {
	if native.NativeString == native.KindWStr {
		return "W"
	}
	return "A"
}()

// Resolver turns a DllCall target into a function address
type Resolver struct {
	Loader native.Loader

	once   sync.Once
	system []uintptr
}

// NewResolver returns a resolver using loader
func NewResolver(loader native.Loader) *Resolver {
	return &Resolver{Loader: loader}
}

// systemModules loads the handles of the always-resident modules once.
// Modules that cannot be loaded are skipped.
func (r *Resolver) systemModules() []uintptr {
	r.once.Do(func() {
		for _, name := range r.Loader.SystemModules() {
			h, ok := r.Loader.GetModuleHandle(name)
			if !ok {
				var err error
				if h, err = r.Loader.LoadLibrary(name); err != nil {
					continue
				}
			}
			r.system = append(r.system, h)
		}
	})
	return r.system
}

// Resolve returns the address target refers to and a name for messages.
// target is an address (an integer, or an object with a Ptr property) or
// "[module\]function". A bare function is looked up in the system modules.
func (r *Resolver) Resolve(target vm.Value) (uintptr, string, error) {
	target = vm.Deref(target)
	if obj, ok := target.(*vm.Object); ok {
		p, ok := obj.Get("Ptr")
		if !ok {
			return 0, "", errors.NewTargetError(errNoFunction, "object without Ptr")
		}
		target = p
	}
	if _, isFloat := target.(float64); !isFloat && vm.IsPureInteger(target) {
		name := vm.ToString(target)
		addr := vm.ToInt64(target)
		if addr <= 0 {
			return 0, name, errors.NewTargetError(errNoFunction, name)
		}
		return uintptr(addr), name, nil
	}

	text := vm.ToString(target)
	module, fn := "", text
	if i := strings.LastIndexByte(text, '\\'); i >= 0 {
		module, fn = text[:i], text[i+1:]
	}
	if fn == "" {
		return 0, text, errors.NewTargetError(errNoFunction, text)
	}

	if module == "" {
		for _, h := range r.systemModules() {
			if addr, ok := r.Loader.GetProcAddress(h, fn); ok {
				return addr, text, nil
			}
		}
		for _, h := range r.systemModules() {
			if addr, ok := r.Loader.GetProcAddress(h, fn+suffix); ok {
				return addr, text, nil
			}
		}
		return 0, text, errors.NewTargetError(errNoFunction, text)
	}

	h, ok := r.Loader.GetModuleHandle(module)
	if !ok {
		var err error
		if h, err = r.Loader.LoadLibrary(module); err != nil {
			return 0, text, errors.NewTargetError(errNoFunction, text).WithCause(err)
		}
	}
	if addr, ok := r.Loader.GetProcAddress(h, fn); ok {
		return addr, text, nil
	}
	if addr, ok := r.Loader.GetProcAddress(h, fn+suffix); ok {
		return addr, text, nil
	}
	return 0, text, errors.NewTargetError(errNoFunction, text)
}
