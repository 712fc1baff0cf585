package logging

import (
	"fmt"

	"github.com/fatih/color"

	"github.com/forgehq/forge/pkg/models"
)

// PrintPhaseEvent renders one DAG Executor phase event as a colored,
// human-facing status line on stdout — the CLI-output half of the
// "Logging" ambient concern; the DebugLogger above is the durable half.
func PrintPhaseEvent(ev models.PhaseEvent) {
	switch ev.Kind {
	case models.EventStarted:
		printStatus("▶", fmt.Sprintf("phase %s (%s) started", ev.PhaseNumber, ev.PhaseName), color.FgCyan)
	case models.EventCompleted:
		printStatus("✓", fmt.Sprintf("phase %s (%s) completed", ev.PhaseNumber, ev.PhaseName), color.FgGreen)
	case models.EventFailed:
		printStatus("✗", fmt.Sprintf("phase %s (%s) failed: %s", ev.PhaseNumber, ev.PhaseName, ev.Message), color.FgRed)
	case models.EventSkipped:
		printStatus("⊘", fmt.Sprintf("phase %s (%s) skipped: %s", ev.PhaseNumber, ev.PhaseName, ev.Message), color.FgYellow)
	case models.EventCompactionApplied:
		printStatus("↺", fmt.Sprintf("phase %s (%s) compacted context", ev.PhaseNumber, ev.PhaseName), color.FgYellow)
	case models.EventIterationComplete:
		printStatus("·", fmt.Sprintf("phase %s iteration %d complete", ev.PhaseNumber, ev.Iteration), color.FgWhite)
	default:
		printStatus("·", fmt.Sprintf("phase %s: %s", ev.PhaseNumber, ev.Message), color.FgWhite)
	}
}

func printStatus(symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	c.Printf("%s %s\n", symbol, message)
}
