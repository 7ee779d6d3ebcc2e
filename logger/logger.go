// logger/logger.go
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorGray   = "\033[90m"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "debug"
	case INFO:
		return "info"
	case WARN:
		return "warn"
	case ERROR:
		return "error"
	}
	return "unknown"
}

// ParseLevel maps "debug", "info", "warn"/"warning" and "error" to a level.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "":
		return DEBUG, nil
	case "info":
		return INFO, nil
	case "warn", "warning":
		return WARN, nil
	case "error":
		return ERROR, nil
	}
	return DEBUG, fmt.Errorf("unknown log level %q", s)
}

type Logger struct {
	debugLogger        *log.Logger
	infoLogger         *log.Logger
	warnLogger         *log.Logger
	errorLogger        *log.Logger
	debugLoggerNoColor *log.Logger
	infoLoggerNoColor  *log.Logger
	warnLoggerNoColor  *log.Logger
	errorLoggerNoColor *log.Logger
	file               *os.File
	consoleOutput      io.Writer
	fileOutput         io.Writer
	minLevel           LogLevel
}

var (
	defaultLogger *Logger
	mu            sync.Mutex
)

// current returns the default logger, creating a console logger on first
// use. Callers must hold mu.
func current() *Logger {
	if defaultLogger == nil {
		defaultLogger = &Logger{
			consoleOutput: os.Stdout,
			minLevel:      DEBUG,
		}
		defaultLogger.setupLoggers()
	}
	return defaultLogger
}

// Init initializes the logger with optional file and console output.
// If filename is empty, logs only to console; if console is false, logs
// only to file.
func Init(filename string, console bool) error {
	mu.Lock()
	defer mu.Unlock()

	level := DEBUG
	if defaultLogger != nil {
		level = defaultLogger.minLevel
		if defaultLogger.file != nil {
			defaultLogger.file.Close()
		}
	}

	l := &Logger{minLevel: level}

	if filename != "" {
		file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		l.file = file
		l.fileOutput = file
	}

	if console {
		l.consoleOutput = os.Stdout
	}

	if l.fileOutput == nil && l.consoleOutput == nil {
		return fmt.Errorf("no output destination specified")
	}

	l.setupLoggers()
	defaultLogger = l
	return nil
}

// SetOutput sends uncolored output to w only. Used by tests and by the CLI
// when stdout is not a terminal.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	level := DEBUG
	if defaultLogger != nil {
		level = defaultLogger.minLevel
	}
	l := &Logger{fileOutput: w, minLevel: level}
	l.setupLoggers()
	defaultLogger = l
}

// SetLevel sets the minimum log level. Messages below it are dropped.
func SetLevel(level LogLevel) {
	mu.Lock()
	defer mu.Unlock()
	current().minLevel = level
}

func (l *Logger) setupLoggers() {
	flags := log.Ldate | log.Ltime | log.Lshortfile

	if l.consoleOutput != nil {
		l.debugLogger = log.New(l.consoleOutput, colorGray+"[DEBUG] "+colorReset, flags)
		l.infoLogger = log.New(l.consoleOutput, colorReset+"[INFO]  "+colorReset, flags)
		l.warnLogger = log.New(l.consoleOutput, colorYellow+"[WARN]  "+colorReset, flags)
		l.errorLogger = log.New(l.consoleOutput, colorRed+"[ERROR] "+colorReset, flags)
	}

	if l.fileOutput != nil {
		l.debugLoggerNoColor = log.New(l.fileOutput, "[DEBUG] ", flags)
		l.infoLoggerNoColor = log.New(l.fileOutput, "[INFO]  ", flags)
		l.warnLoggerNoColor = log.New(l.fileOutput, "[WARN]  ", flags)
		l.errorLoggerNoColor = log.New(l.fileOutput, "[ERROR] ", flags)
	}
}

// Close closes the log file if one is open
func Close() {
	mu.Lock()
	defer mu.Unlock()

	if defaultLogger != nil && defaultLogger.file != nil {
		defaultLogger.file.Close()
		defaultLogger.file = nil
		defaultLogger.fileOutput = nil
	}
}

func (l *Logger) shouldLog(level LogLevel) bool {
	return level >= l.minLevel
}

func (l *Logger) loggersFor(level LogLevel) (*log.Logger, *log.Logger) {
	switch level {
	case DEBUG:
		return l.debugLogger, l.debugLoggerNoColor
	case INFO:
		return l.infoLogger, l.infoLoggerNoColor
	case WARN:
		return l.warnLogger, l.warnLoggerNoColor
	default:
		return l.errorLogger, l.errorLoggerNoColor
	}
}

func output(level LogLevel, msg string) {
	mu.Lock()
	l := current()
	mu.Unlock()
	if !l.shouldLog(level) {
		return
	}
	colorLogger, noColorLogger := l.loggersFor(level)
	if l.consoleOutput != nil && colorLogger != nil {
		colorLogger.Output(3, msg)
	}
	if l.fileOutput != nil && noColorLogger != nil {
		noColorLogger.Output(3, msg)
	}
}

// Fields renders alternating key/value pairs as "k=v k=v". A dangling key
// is rendered with the value "?".
func Fields(kv ...interface{}) string {
	var b strings.Builder
	for i := 0; i < len(kv); i += 2 {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprint(&b, kv[i])
		b.WriteByte('=')
		if i+1 < len(kv) {
			v := fmt.Sprint(kv[i+1])
			if strings.ContainsAny(v, " \t\"") {
				v = fmt.Sprintf("%q", v)
			}
			b.WriteString(v)
		} else {
			b.WriteByte('?')
		}
	}
	return b.String()
}

func withFields(msg string, kv []interface{}) string {
	if len(kv) == 0 {
		return msg
	}
	return msg + " " + Fields(kv...)
}

func Debug(v ...interface{}) { output(DEBUG, fmt.Sprint(v...)) }

func Debugf(format string, v ...interface{}) { output(DEBUG, fmt.Sprintf(format, v...)) }

// Debugw logs msg followed by key/value fields.
func Debugw(msg string, kv ...interface{}) { output(DEBUG, withFields(msg, kv)) }

func Info(v ...interface{}) { output(INFO, fmt.Sprint(v...)) }

func Infof(format string, v ...interface{}) { output(INFO, fmt.Sprintf(format, v...)) }

func Infow(msg string, kv ...interface{}) { output(INFO, withFields(msg, kv)) }

func Warn(v ...interface{}) { output(WARN, fmt.Sprint(v...)) }

func Warnf(format string, v ...interface{}) { output(WARN, fmt.Sprintf(format, v...)) }

func Warnw(msg string, kv ...interface{}) { output(WARN, withFields(msg, kv)) }

func Error(v ...interface{}) { output(ERROR, fmt.Sprint(v...)) }

func Errorf(format string, v ...interface{}) { output(ERROR, fmt.Sprintf(format, v...)) }

func Errorw(msg string, kv ...interface{}) { output(ERROR, withFields(msg, kv)) }

// Fatal logs an error message and exits the program
func Fatal(v ...interface{}) {
	output(ERROR, fmt.Sprint(v...))
	os.Exit(1)
}

// Fatalf logs a formatted error message and exits the program
func Fatalf(format string, v ...interface{}) {
	output(ERROR, fmt.Sprintf(format, v...))
	os.Exit(1)
}
