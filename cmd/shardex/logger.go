package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

type logLevel int

const (
	levelSilent logLevel = iota
	levelQuiet
	levelInfo
	levelDebug
)

// cliLogger writes run diagnostics to stderr. --quiet keeps warnings only,
// --verbose adds debug output.
type cliLogger struct {
	out   io.Writer
	level logLevel
	warn  *color.Color
	debug *color.Color
}

func newLogger(out io.Writer) *cliLogger {
	level := levelInfo
	switch {
	case quiet:
		level = levelQuiet
	case verbose:
		level = levelDebug
	}
	return &cliLogger{
		out:   out,
		level: level,
		warn:  color.New(color.FgYellow),
		debug: color.New(color.FgHiBlack),
	}
}

// manifestOnly leaves stderr to the manifest unless --verbose asked for
// diagnostics.
func (l *cliLogger) manifestOnly() *cliLogger {
	if l.level < levelDebug {
		l.level = levelSilent
	}
	return l
}

func (l *cliLogger) Debugf(format string, args ...any) {
	if l.level >= levelDebug {
		l.debug.Fprintf(l.out, "debug: "+format+"\n", args...)
	}
}

func (l *cliLogger) Infof(format string, args ...any) {
	if l.level >= levelInfo {
		fmt.Fprintf(l.out, format+"\n", args...)
	}
}

func (l *cliLogger) Warnf(format string, args ...any) {
	if l.level < levelQuiet {
		return
	}
	l.warn.Fprintf(l.out, "warning: "+format+"\n", args...)
}
