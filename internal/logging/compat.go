package logging

import (
	"fmt"
	"os"
)

// These ease the use of a Logger wherever a standard 'log'-style logger is
// expected. Prefer the explicitly leveled API, e.g. log.Error().

// exit is replaced in tests.
var (
	osExit = os.Exit
	exit   = osExit
)

func (log *Logger) Fatal(v ...interface{}) {
	log.Log(Error, 1, "%s", fmt.Sprint(v...))
	exit(1)
}

func (log *Logger) Fatalf(format string, v ...interface{}) {
	log.Log(Error, 1, format, v...)
	exit(1)
}

func (log *Logger) Print(v ...interface{}) {
	log.Log(Info, 1, "%s", fmt.Sprint(v...))
}

func (log *Logger) Printf(format string, v ...interface{}) {
	log.Log(Info, 1, format, v...)
}
