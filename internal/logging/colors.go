package logging

import (
	"github.com/fatih/color"
)

// Level colors. fatih/color disables itself when stderr is not a terminal or
// NO_COLOR is set, so these degrade to plain text in pipes and log files.
var (
	colorError = color.New(color.FgRed, color.Bold)
	colorWarn  = color.New(color.FgRed)
	colorInfo  = color.New(color.Reset)
	colorDebug = color.New(color.FgGreen)
	colorTrace = color.New(color.FgYellow)
	colorFaint = color.New(color.FgWhite)
)

// SetColor forces colored output on or off, overriding terminal detection.
func SetColor(enabled bool) {
	color.NoColor = !enabled
}
