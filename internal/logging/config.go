package logging

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

const envVar = "LOGLEVEL"

type tagLevel struct {
	tag   string
	level Level
}

var (
	tagLevels   []tagLevel
	tagLevelsMu sync.RWMutex
)

func init() {
	if err := Configure(os.Getenv(envVar)); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", envVar, err)
	}
}

// Configure parses comma-separated "tag=level" directives. A directive without
// "tag=" sets the default level. Valid directives are applied even when others
// fail to parse; the first parse failure is returned.
//
// Loggers derived with WithTag after this call pick up the new levels.
func Configure(directives string) (firstErr error) {
	var levels []tagLevel
	for _, d := range strings.Split(directives, ",") {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		v := strings.SplitN(d, "=", 2)
		level, err := parseLevel(v[len(v)-1])
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("invalid directive '%s': %v", d, err)
			}
			continue
		}
		if len(v) == 1 {
			defaultLevel = level
			DefaultLogger.Level = level
		} else {
			levels = append(levels, tagLevel{v[0], level})
		}
	}

	tagLevelsMu.Lock()
	tagLevels = levels
	tagLevelsMu.Unlock()
	return
}

func determineLevel(tag string, fallback Level) Level {
	tagLevelsMu.RLock()
	defer tagLevelsMu.RUnlock()
	for _, e := range tagLevels {
		if e.tag == tag {
			return e.level
		}
	}
	return fallback
}
