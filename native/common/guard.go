package common

import "errors"

var ErrModulePaused = errors.New("module paused")

// knownModules lists the module names the pause registry accepts.
var knownModules = map[string]struct{}{
	"vault": {},
}

// KnownModule reports whether the name identifies a pausable module.
func KnownModule(module string) bool {
	_, ok := knownModules[module]
	return ok
}

type PauseView interface {
	IsPaused(module string) bool
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
