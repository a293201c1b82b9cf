package native

// Loader resolves modules and their exports
type Loader interface {
	// GetModuleHandle returns an already loaded module without changing
	// its reference count.
	GetModuleHandle(name string) (uintptr, bool)
	// LoadLibrary loads a module. It stays loaded for the process lifetime.
	LoadLibrary(name string) (uintptr, error)
	// GetProcAddress resolves an exported function
	GetProcAddress(module uintptr, name string) (uintptr, bool)
	// SystemModules lists the always-resident modules searched, in
	// priority order, when a bare function name is given.
	SystemModules() []string
}

// DefaultLoader returns the platform loader
func DefaultLoader() Loader {
	return platformLoader
}
