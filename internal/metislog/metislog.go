// Package metislog is the forwarder's leveled, structured logger. It
// follows ingest/log's shape (a Level enum gating output, RFC5424-encoded
// structured records, a mutex-guarded set of writers) trimmed to what a
// single-process forwarder needs: no relays, no rotation, no self-ingest.
package metislog

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/crewjam/rfc5424"
)

// Level gates which records reach the writers; OFF suppresses everything.
type Level int

const (
	OFF Level = iota
	DEBUG
	INFO
	WARN
	ERROR
	CRITICAL
	FATAL
)

func (l Level) String() string {
	switch l {
	case OFF:
		return "OFF"
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case CRITICAL:
		return "CRITICAL"
	case FATAL:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

func (l Level) valid() bool { return l >= OFF && l <= FATAL }

func (l Level) priority() rfc5424.Priority {
	switch l {
	case DEBUG:
		return rfc5424.User | rfc5424.Debug
	case INFO:
		return rfc5424.User | rfc5424.Info
	case WARN:
		return rfc5424.User | rfc5424.Warning
	case ERROR:
		return rfc5424.User | rfc5424.Error
	case CRITICAL:
		return rfc5424.User | rfc5424.Crit
	case FATAL:
		return rfc5424.User | rfc5424.Emergency
	default:
		return rfc5424.User | rfc5424.Debug
	}
}

// LevelFromString parses a config-file level name, case-insensitively.
func LevelFromString(s string) (Level, error) {
	switch strings.ToUpper(s) {
	case "OFF":
		return OFF, nil
	case "DEBUG":
		return DEBUG, nil
	case "INFO":
		return INFO, nil
	case "WARN":
		return WARN, nil
	case "ERROR":
		return ERROR, nil
	case "CRITICAL":
		return CRITICAL, nil
	case "FATAL":
		return FATAL, nil
	default:
		return OFF, fmt.Errorf("metislog: invalid level %q", s)
	}
}

// KV builds one structured-data parameter, e.g. KV("connection", connID).
func KV(name string, value interface{}) rfc5424.SDParam {
	var r rfc5424.SDParam
	r.Name = name
	if s, ok := value.(string); ok {
		r.Value = s
	} else {
		r.Value = fmt.Sprintf("%v", value)
	}
	return r
}

// KVErr is shorthand for KV("error", err).
func KVErr(err error) rfc5424.SDParam {
	return KV("error", err)
}

const structuredDataID = "metis@1"

// Logger is a mutex-guarded, leveled RFC5424 logger writing to one or more
// io.Writers. Single-threaded dispatcher discipline doesn't extend to
// logging: listeners and the status HTTP surface (internal/status) may log
// from other goroutines, so the mutex stays.
type Logger struct {
	mu       sync.Mutex
	writers  []io.Writer
	lvl      Level
	appname  string
	hostname string
}

// New constructs a Logger at INFO level writing to w.
func New(w io.Writer) *Logger {
	l := &Logger{writers: []io.Writer{w}, lvl: INFO}
	l.appname = "metisd"
	if h, err := os.Hostname(); err == nil {
		l.hostname = h
	}
	return l
}

// NewDiscard constructs a Logger that drops everything, for tests.
func NewDiscard() *Logger {
	return New(io.Discard)
}

// AddWriter appends an additional destination for every future record.
func (l *Logger) AddWriter(w io.Writer) {
	l.mu.Lock()
	l.writers = append(l.writers, w)
	l.mu.Unlock()
}

// SetAppname overrides the RFC5424 APP-NAME field.
func (l *Logger) SetAppname(name string) {
	l.mu.Lock()
	l.appname = name
	l.mu.Unlock()
}

// SetLevel changes the minimum level that reaches the writers.
func (l *Logger) SetLevel(lvl Level) error {
	if !lvl.valid() {
		return fmt.Errorf("metislog: invalid level %d", lvl)
	}
	l.mu.Lock()
	l.lvl = lvl
	l.mu.Unlock()
	return nil
}

func (l *Logger) emit(lvl Level, msg string, sds ...rfc5424.SDParam) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.lvl == OFF || lvl < l.lvl {
		return
	}
	m := rfc5424.Message{
		Priority:  lvl.priority(),
		Timestamp: time.Now(),
		Hostname:  l.hostname,
		AppName:   l.appname,
		Message:   []byte(msg),
	}
	if len(sds) > 0 {
		m.StructuredData = []rfc5424.StructuredData{{ID: structuredDataID, Parameters: sds}}
	}
	b, err := m.MarshalBinary()
	if err != nil {
		return
	}
	for _, w := range l.writers {
		w.Write(b)
		io.WriteString(w, "\n")
	}
}

func (l *Logger) Debug(msg string, sds ...rfc5424.SDParam)    { l.emit(DEBUG, msg, sds...) }
func (l *Logger) Info(msg string, sds ...rfc5424.SDParam)     { l.emit(INFO, msg, sds...) }
func (l *Logger) Warn(msg string, sds ...rfc5424.SDParam)     { l.emit(WARN, msg, sds...) }
func (l *Logger) Error(msg string, sds ...rfc5424.SDParam)    { l.emit(ERROR, msg, sds...) }
func (l *Logger) Critical(msg string, sds ...rfc5424.SDParam) { l.emit(CRITICAL, msg, sds...) }

// Fatal logs at FATAL and terminates the process, mirroring
// ingest/log.Logger.Fatal.
func (l *Logger) Fatal(msg string, sds ...rfc5424.SDParam) {
	l.emit(FATAL, msg, sds...)
	os.Exit(-1)
}
