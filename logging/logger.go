package logging

import (
	"fmt"
	"testing"
	"time"
)

// Logger is the logging interface used by every corecalib component. It is
// always obtained via NewLogger/Sublogger, never constructed directly, so
// that its level stays under registry control.
type Logger interface {
	Debugf(template string, args ...interface{})
	Infof(template string, args ...interface{})
	Warnf(template string, args ...interface{})
	Errorf(template string, args ...interface{})

	GetLevel() Level
	SetLevel(level Level)

	// Sublogger returns (creating if necessary) a child logger named
	// "parent.name", sharing appenders with its parent.
	Sublogger(name string) Logger

	// Name returns the logger's fully-dotted name.
	Name() string
}

type impl struct {
	name       string
	level      *AtomicLevel
	appenders  []Appender
	registry   *Registry
	testHelper func()
}

var defaultRegistry = newRegistry()

// NewLogger creates (or returns the existing) logger named name, registered
// in the process-wide default registry, with INFO as its initial level
// unless a pattern already configured in the registry says otherwise.
func NewLogger(name string) Logger {
	return newNamed(defaultRegistry, name, INFO, []Appender{NewStdoutAppender()})
}

// NewDebugLogger is NewLogger with DEBUG as the (pattern-overridable)
// initial level.
func NewDebugLogger(name string) Logger {
	return newNamed(defaultRegistry, name, DEBUG, []Appender{NewStdoutAppender()})
}

// NewBlankLogger creates a logger with no appenders: it computes and
// tracks a level but never emits anything. Useful for tests that only
// assert on level propagation.
func NewBlankLogger(name string) Logger {
	return newNamed(defaultRegistry, name, INFO, nil)
}

// NewLoggerWithRegistry creates a fresh, isolated Registry plus a root
// logger registered in it. Intended for tests that need to exercise
// pattern-based level updates without touching process-global state.
func NewLoggerWithRegistry(name string) (Logger, *Registry) {
	r := newRegistry()
	l := newNamed(r, name, INFO, []Appender{NewStdoutAppender()})
	return l, r
}

// NewTestLogger returns a blank logger suitable for use inside a *testing.T,
// named after the running test.
func NewTestLogger(tb testing.TB) Logger {
	l := newNamed(newRegistry(), tb.Name(), INFO, nil)
	if i, ok := l.(*impl); ok {
		i.testHelper = tb.Helper
	}
	return l
}

func newNamed(r *Registry, name string, fallback Level, appenders []Appender) Logger {
	lg := &impl{
		name:       name,
		level:      NewAtomicLevelAt(fallback),
		appenders:  appenders,
		registry:   r,
		testHelper: func() {},
	}
	return r.getOrRegister(name, lg)
}

func (i *impl) Name() string { return i.name }

func (i *impl) GetLevel() Level { return i.level.Get() }

func (i *impl) SetLevel(level Level) { i.level.Set(level) }

func (i *impl) Sublogger(name string) Logger {
	i.testHelper()
	fullName := i.name + "." + name
	child := &impl{
		name:       fullName,
		level:      NewAtomicLevelAt(INFO),
		appenders:  i.appenders,
		registry:   i.registry,
		testHelper: i.testHelper,
	}
	return i.registry.getOrRegister(fullName, child)
}

func (i *impl) log(level Level, template string, args ...interface{}) {
	if level < i.level.Get() {
		return
	}
	msg := template
	if len(args) > 0 {
		msg = fmt.Sprintf(template, args...)
	}
	entry := Entry{Time: time.Now(), Level: level, LoggerName: i.name, Message: msg}
	for _, a := range i.appenders {
		_ = a.Write(entry)
	}
}

func (i *impl) Debugf(template string, args ...interface{}) { i.log(DEBUG, template, args...) }
func (i *impl) Infof(template string, args ...interface{})  { i.log(INFO, template, args...) }
func (i *impl) Warnf(template string, args ...interface{})  { i.log(WARN, template, args...) }
func (i *impl) Errorf(template string, args ...interface{}) { i.log(ERROR, template, args...) }
