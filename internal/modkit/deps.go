// Package modkit provides module wiring and core deps
package modkit

import (
	"amplisend/internal/platform/config"
	"amplisend/internal/platform/logger"
)

// Deps holds the shared process dependencies handed to every module
type Deps struct {
	Log *logger.Logger
	Cfg config.Conf
}

// Logger returns d.Log, or a component logger when none was supplied
func (d Deps) Logger(component string) *logger.Logger {
	if d.Log != nil {
		return d.Log
	}
	return logger.Named(component)
}
