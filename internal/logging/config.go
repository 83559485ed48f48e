package logging

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

const envVar = "LOGLEVEL"

var (
	tagLevels []tagLevel

	// Every logger derived from DefaultLogger, so that SetLevel can reach
	// loggers created at package init time.
	registry   []*Logger
	registryMu sync.Mutex
)

type tagLevel struct {
	tag   string
	level Level
}

func init() {
	parseDirectives(os.Getenv(envVar))
	DefaultLogger.Level = defaultLevel
}

// Parse comma-separated "tag=level" directives. If "tag=" is absent, use the
// level as the default.
func parseDirectives(s string) {
	for _, d := range strings.Split(s, ",") {
		if d == "" {
			continue
		}
		v := strings.SplitN(d, "=", 2)
		level, err := ParseLevel(v[len(v)-1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid %s directive '%s': %s\n", envVar, d, err)
			continue
		}
		if len(v) == 1 {
			defaultLevel = level
		} else {
			tagLevels = append(tagLevels, tagLevel{v[0], level})
		}
	}
}

func determineLevel(tag string, fallback Level) Level {
	for _, e := range tagLevels {
		if e.tag == tag {
			return e.level
		}
	}
	return fallback
}

// SetLevel changes the default level of DefaultLogger and of every tagged
// logger without an explicit per-tag directive in LOGLEVEL.
func SetLevel(level Level) {
	registryMu.Lock()
	defer registryMu.Unlock()

	defaultLevel = level
	DefaultLogger.Level = level
	for _, l := range registry {
		l.Level = determineLevel(l.Tag, level)
	}
}

func register(l *Logger) *Logger {
	registryMu.Lock()
	registry = append(registry, l)
	registryMu.Unlock()
	return l
}
