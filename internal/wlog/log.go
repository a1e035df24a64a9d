// Package wlog is a thin wrapper over logrus: package-level helpers
// backed by a single injectable logger, so call sites never import the
// underlying logging library directly.
package wlog

import "github.com/sirupsen/logrus"

var std = logrus.New()

// SetLogger replaces the package-level logger, letting a host application
// route engine logs into its own logrus instance/hooks.
func SetLogger(l *logrus.Logger) {
	if l != nil {
		std = l
	}
}

// SetLevel adjusts verbosity. VERBOSE extraction flags map to logrus.DebugLevel.
func SetLevel(level logrus.Level) {
	std.SetLevel(level)
}

func Debugf(format string, args ...any)   { std.Debugf(format, args...) }
func Infof(format string, args ...any)    { std.Infof(format, args...) }
func Warningf(format string, args ...any) { std.Warnf(format, args...) }
func Errorf(format string, args ...any)   { std.Errorf(format, args...) }
