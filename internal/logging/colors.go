package logging

import "github.com/fatih/color"

// Colors for the level/tag/location prefix of each log line. fatih/color
// disables escape sequences on its own when the output is not a terminal.
var (
	timestampColor = color.New(color.FgWhite)
	errorColor     = color.New(color.FgRed, color.Bold)
	warnColor      = color.New(color.FgRed)
	infoColor      = color.New(color.Reset)
	debugColor     = color.New(color.FgGreen)
	traceColor     = color.New(color.FgYellow)
)

// SetColor forces colored output on or off, overriding terminal detection.
func SetColor(enabled bool) {
	color.NoColor = !enabled
}
