package log

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is a leveled printf-style logger shared by every component.
// Named sub-loggers share the writer of their parent.
type Logger struct {
	out *output

	name  string
	level LogLevel

	timeFormat string
	noColor    bool
	json       bool
	exit       func(int)
}

// output serializes writes from all loggers derived from the same root.
type output struct {
	mu       sync.Mutex
	writer   io.Writer
	terminal bool
	closer   io.Closer
}

type Options struct {
	Name  string
	Level LogLevel

	// File enables an additional rotated log file when non-empty.
	File       string
	NoTerminal bool
	NoColor    bool
	JSON       bool
	TimeFormat string
	Rotation   *Rotation

	// Writer replaces stdout as terminal sink, mostly for tests.
	Writer io.Writer
}

type Rotation struct {
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
}

type logEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Service   string `json:"service,omitempty"`
	Message   string `json:"message"`
}

func New(opts Options) *Logger {
	if opts.TimeFormat == "" {
		opts.TimeFormat = "2006-01-02 15:04:05"
	}
	if opts.Rotation == nil {
		opts.Rotation = &Rotation{
			MaxSize:    128,
			MaxBackups: 5,
			MaxAge:     16,
		}
	}

	return &Logger{
		out:        newOutput(opts),
		name:       opts.Name,
		level:      opts.Level,
		timeFormat: opts.TimeFormat,
		noColor:    opts.NoColor,
		json:       opts.JSON,
		exit:       os.Exit,
	}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return New(Options{
		Level:      Fatal + 1,
		NoTerminal: true,
		Writer:     io.Discard,
	})
}

func newOutput(opts Options) *output {
	var writers []io.Writer
	out := &output{}

	if !opts.NoTerminal {
		if opts.Writer != nil {
			writers = append(writers, opts.Writer)
		} else {
			writers = append(writers, os.Stdout)
			out.terminal = true
		}
	}

	if opts.File != "" {
		fileWriter := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.Rotation.MaxSize,
			MaxBackups: opts.Rotation.MaxBackups,
			MaxAge:     opts.Rotation.MaxAge,
			Compress:   opts.Rotation.Compress,
		}
		writers = append(writers, fileWriter)
		out.closer = fileWriter
	}

	if len(writers) == 0 {
		if opts.Writer != nil {
			writers = append(writers, opts.Writer)
		} else {
			writers = append(writers, os.Stdout)
		}
	}

	out.writer = io.MultiWriter(writers...)
	return out
}

func (l *Logger) log(level LogLevel, msg string, args ...any) {
	if level < l.level {
		return
	}

	timestamp := time.Now().Format(l.timeFormat)
	formatted := fmt.Sprintf(msg, args...)

	l.out.mu.Lock()
	if l.json {
		entry := logEntry{
			Timestamp: timestamp,
			Level:     level.String(),
			Service:   l.name,
			Message:   formatted,
		}

		line, _ := json.Marshal(entry)
		fmt.Fprintf(l.out.writer, "%s\n", line)
	} else {
		prefix := fmt.Sprintf("[%s] %-5s", timestamp, level)
		if l.name != "" {
			prefix = fmt.Sprintf("%s [%s]", prefix, l.name)
		}

		if l.out.terminal && !l.noColor {
			fmt.Fprintf(l.out.writer, "%s%s %s\033[0m\n", level.color(), prefix, formatted)
		} else {
			fmt.Fprintf(l.out.writer, "%s %s\n", prefix, formatted)
		}
	}
	l.out.mu.Unlock()

	if level == Fatal {
		l.exit(1)
	}
}

func (l *Logger) Debug(msg string, args ...any) {
	l.log(Debug, msg, args...)
}

func (l *Logger) Info(msg string, args ...any) {
	l.log(Info, msg, args...)
}

func (l *Logger) Warn(msg string, args ...any) {
	l.log(Warn, msg, args...)
}

func (l *Logger) Error(msg string, args ...any) {
	l.log(Error, msg, args...)
}

// Fatal logs and terminates the process.
func (l *Logger) Fatal(msg string, args ...any) {
	l.log(Fatal, msg, args...)
}

func (l *Logger) Level() LogLevel {
	return l.level
}

// Named returns a sub-logger whose name is appended to the parent name.
func (l *Logger) Named(name string) *Logger {
	sub := *l
	if l.name != "" {
		sub.name = fmt.Sprintf("%s/%s", l.name, name)
	} else {
		sub.name = name
	}

	return &sub
}

// Close releases the rotated log file, if any.
func (l *Logger) Close() error {
	if l.out.closer == nil {
		return nil
	}

	return l.out.closer.Close()
}
