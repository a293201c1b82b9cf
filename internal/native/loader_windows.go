package native

import (
	"golang.org/x/sys/windows"
)

type winLoader struct{}

var platformLoader Loader = winLoader{}

func (winLoader) GetModuleHandle(name string) (uintptr, bool) {
	p, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return 0, false
	}
	var h windows.Handle
	if err := windows.GetModuleHandleEx(windows.GET_MODULE_HANDLE_EX_FLAG_UNCHANGED_REFCOUNT, p, &h); err != nil {
		return 0, false
	}
	return uintptr(h), true
}

func (winLoader) LoadLibrary(name string) (uintptr, error) {
	h, err := windows.LoadLibrary(name)
	if err != nil {
		return 0, err
	}
	return uintptr(h), nil
}

func (winLoader) GetProcAddress(module uintptr, name string) (uintptr, bool) {
	addr, err := windows.GetProcAddress(windows.Handle(module), name)
	if err != nil || addr == 0 {
		return 0, false
	}
	return addr, true
}

var systemModules = []string{"user32", "kernel32", "comctl32", "gdi32"}

func (winLoader) SystemModules() []string {
	return systemModules
}
