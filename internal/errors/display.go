package errors

import (
	"fmt"
	"os"

	"github.com/fatih/color"
)

// DisplayError prints err to stderr with the enhanced formatting the CLI
// boundary uses; non-TelewatchError values fall back to a plain message.
func DisplayError(err error) {
	color.NoColor = os.Getenv("NO_COLOR") != "" || os.Getenv("TELEWATCH_NO_COLOR") != ""

	twErr, ok := err.(*TelewatchError)
	if !ok {
		color.Red("Error: %v", err)
		return
	}

	fmt.Fprintf(os.Stderr, "\n%s\n", colorFor(twErr.Kind)(twErr.Message))
	if twErr.Cause != "" {
		fmt.Fprintf(os.Stderr, "   %s %s\n", color.YellowString("Cause:"), color.HiBlackString(twErr.Cause))
	}
	if len(twErr.Solutions) > 0 {
		fmt.Fprintf(os.Stderr, "\n   %s\n", color.GreenString("Solutions:"))
		for i, s := range twErr.Solutions {
			fmt.Fprintf(os.Stderr, "   %s %s\n", color.HiBlackString(fmt.Sprintf("%d.", i+1)), s)
		}
	}
}

func colorFor(k Kind) func(format string, a ...interface{}) string {
	switch k {
	case KindConfiguration, KindSource:
		return color.RedString
	case KindAdvisor, KindTransport:
		return color.YellowString
	default:
		return color.HiRedString
	}
}
