package log

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type Logger interface {
	Println(v ...interface{})
	Printf(format string, v ...interface{})
}

var DefaultLogger *log.Logger
var defaultFilter *logFilter

type Level string

const (
	LDebug    = Level("debug")
	LProgress = Level("progress")
	LStep     = Level("step")
	LInfo     = Level("info")
	LWarn     = Level("warn")
	LError    = Level("error")
	LFatal    = Level("fatal")
)

var zerologLevels = map[Level]zerolog.Level{
	LDebug:    zerolog.DebugLevel,
	LProgress: zerolog.InfoLevel,
	LStep:     zerolog.InfoLevel,
	LInfo:     zerolog.InfoLevel,
	LWarn:     zerolog.WarnLevel,
	LError:    zerolog.ErrorLevel,
	LFatal:    zerolog.FatalLevel,
}

func init() {
	defaultFilter = &logFilter{
		levels:   []Level{LDebug, LProgress, LStep, LInfo, LWarn, LError, LFatal},
		minLevel: LProgress,
	}
	defaultFilter.setOutput(os.Stderr)
	defaultFilter.init()
	DefaultLogger = log.New(defaultFilter, "", 0)
}

// logFilter receives single lines from the standard logger, extracts
// the [level] prefix and writes the record through zerolog.
type logFilter struct {
	mu        sync.Mutex
	zl        zerolog.Logger
	badLevels map[Level]struct{}
	minLevel  Level
	levels    []Level
}

func (f *logFilter) setOutput(w io.Writer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	if w != os.Stderr && w != os.Stdout {
		out.NoColor = true
	}
	f.zl = zerolog.New(out).With().Timestamp().Logger()
}

func (f *logFilter) SetMinLevel(lvl Level) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.minLevel = lvl
	f.init()
}

func (f *logFilter) init() {
	badLevels := make(map[Level]struct{})
	for _, level := range f.levels {
		if level == f.minLevel {
			break
		}
		badLevels[level] = struct{}{}
	}
	f.badLevels = badLevels
}

// parse splits a line into its level and the remaining message.
// Lines without a known level are info records.
func parse(line []byte) (Level, string) {
	line = bytes.TrimRight(line, "\n")
	x := bytes.IndexByte(line, '[')
	if x >= 0 {
		y := bytes.IndexByte(line[x:], ']')
		if y >= 0 {
			level := Level(line[x+1 : x+y])
			if _, ok := zerologLevels[level]; ok {
				msg := string(line[:x]) + string(line[x+y+1:])
				msg = strings.TrimLeft(strings.TrimSpace(msg), ": ")
				return level, msg
			}
		}
	}
	return LInfo, string(line)
}

func (f *logFilter) Write(p []byte) (n int, err error) {
	level, msg := parse(p)

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.badLevels[level]; ok {
		return len(p), nil
	}
	e := f.zl.WithLevel(zerologLevels[level])
	if level == LStep || level == LProgress {
		e = e.Str("kind", string(level))
	}
	e.Msg(msg)
	return len(p), nil
}

func SetMinLevel(lvl Level) {
	defaultFilter.SetMinLevel(lvl)
}

// SetOutput redirects all records to w.
func SetOutput(w io.Writer) {
	defaultFilter.setOutput(w)
}

func Println(v ...interface{}) {
	DefaultLogger.Println(v...)
}

func Printf(format string, v ...interface{}) {
	DefaultLogger.Printf(format, v...)
}

func Fatal(v ...interface{}) {
	DefaultLogger.Println("[fatal]", fmt.Sprint(v...))
	os.Exit(1)
}

func Fatalf(format string, v ...interface{}) {
	DefaultLogger.Printf("[fatal] "+format, v...)
	os.Exit(1)
}

func Step(name string) func() {
	start := time.Now()
	Println("[step] Starting:", name)
	return func() {
		Printf("[step] Finished: %s in %s", name, time.Since(start))
	}
}
