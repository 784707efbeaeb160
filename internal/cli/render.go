package cli

import (
	"fmt"
	"io"
	"sort"
	"time"

	"telchat/internal/llm"
	"telchat/internal/metrics"

	"github.com/charmbracelet/lipgloss"
)

type styles struct {
	prompt lipgloss.Style
	bot    lipgloss.Style
	err    lipgloss.Style
}

// newStyles binds styles to out so colors are dropped when out is not a
// terminal.
func newStyles(out io.Writer) styles {
	r := lipgloss.NewRenderer(out)
	return styles{
		prompt: r.NewStyle().Bold(true).Foreground(lipgloss.Color("#3b82f6")),
		bot:    r.NewStyle().Bold(true).Foreground(lipgloss.Color("#22c55e")),
		err:    r.NewStyle().Foreground(lipgloss.Color("#ef4444")),
	}
}

func (c *console) render(res llm.Result) {
	switch err := res.Err.(type) {
	case nil:
		fmt.Fprintf(c.out, "%s %s\n", c.styles.bot.Render("Bot:"), res.Reply)
	case *llm.TransportError:
		c.printError("Error al conectar con la API:", err)
	case *llm.MalformedPayloadError:
		c.printError("Respuesta no válida de la API:", err.Raw)
	case *llm.ProviderError:
		c.printError(fmt.Sprintf("Error %d:", err.StatusCode), string(err.Detail))
	case *llm.UnexpectedFormatError:
		c.printError("Formato inesperado en la respuesta:", string(err.Payload))
	default:
		c.printError("Error:", err)
	}
}

// printError styles only the label; detail is printed verbatim.
func (c *console) printError(label string, detail any) {
	fmt.Fprintf(c.out, "%s %v\n", c.styles.err.Render(label), detail)
}

func printStats(w io.Writer, rec *metrics.Recorder) {
	snap, err := rec.Snapshot()
	if err != nil {
		fmt.Fprintln(w, "stats unavailable:", err)
		return
	}
	fmt.Fprintf(w, "exchanges: %.0f  attempts: %.0f  retries: %.0f\n", snap.Total(), snap.Attempts, snap.Retries)
	fmt.Fprintf(w, "mean latency: %s\n", snap.MeanLatency().Round(time.Millisecond))
	outcomes := make([]string, 0, len(snap.Exchanges))
	for outcome := range snap.Exchanges {
		outcomes = append(outcomes, outcome)
	}
	sort.Strings(outcomes)
	for _, outcome := range outcomes {
		fmt.Fprintf(w, "  %-18s %.0f\n", outcome, snap.Exchanges[outcome])
	}
}
