package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"telchat/internal/config"
	"telchat/internal/llm"
	"telchat/internal/logging"
	"telchat/internal/metrics"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const (
	greeting = "¡Hola! Soy tu chatbot personalizado. Escribe '%s' para terminar."
	farewell = "Chat finalizado. ¡Hasta luego!"
)

func runChat(cmd *cobra.Command, opts *Options) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	level, err := config.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger, err := logging.New(cmd.ErrOrStderr(), level, cfg.Log.Format)
	if err != nil {
		return err
	}

	recorder := metrics.New()
	session, err := llm.NewSession(llm.SessionConfig{
		Token: cfg.LLM.Token,
		Retry: llm.RetryPolicy{
			MaxAttempts:     cfg.Retry.MaxAttempts,
			BackoffFactor:   cfg.Retry.BackoffFactor,
			RetryableStatus: cfg.Retry.StatusCodes,
		},
		Logger:  logger,
		Metrics: recorder,
	})
	if err != nil {
		return err
	}
	defer session.Close()

	exchange, err := llm.NewExchange(llm.ExchangeConfig{
		BaseURL: cfg.LLM.URL,
		Model:   cfg.LLM.Model,
		Timeout: cfg.LLM.Timeout,
		Logger:  logger,
		Metrics: recorder,
	})
	if err != nil {
		return err
	}
	logger.Debug("chat session ready", "endpoint", exchange.Endpoint(), "model", cfg.LLM.Model)

	c := newConsole(cmd.InOrStdin(), cmd.OutOrStdout(), cfg.Chat.ExitKeyword)
	err = c.run(cmd.Context(), func(ctx context.Context, prompt string) llm.Result {
		return exchange.Send(ctx, session, prompt)
	})
	if opts.Stats {
		printStats(cmd.ErrOrStderr(), recorder)
	}
	return err
}

type sendFunc func(ctx context.Context, prompt string) llm.Result

// console is the read-print loop. It reads one line, forwards it verbatim
// and prints the interpreted result until the exit keyword or end of input.
type console struct {
	in          *bufio.Scanner
	out         io.Writer
	exitKeyword string
	interactive bool
	styles      styles
}

func newConsole(in io.Reader, out io.Writer, exitKeyword string) *console {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &console{
		in:          scanner,
		out:         out,
		exitKeyword: exitKeyword,
		interactive: isTerminal(in),
		styles:      newStyles(out),
	}
}

func (c *console) run(ctx context.Context, send sendFunc) error {
	fmt.Fprintf(c.out, greeting+"\n", c.exitKeyword)
	for {
		if c.interactive {
			fmt.Fprint(c.out, c.styles.prompt.Render("Tú:")+" ")
		}
		if !c.in.Scan() {
			if err := c.in.Err(); err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			if c.interactive {
				fmt.Fprintln(c.out)
			}
			break
		}
		prompt := c.in.Text()
		if isExit(prompt, c.exitKeyword) {
			break
		}
		c.render(send(ctx, prompt))
	}
	fmt.Fprintln(c.out, farewell)
	return nil
}

func isExit(input, keyword string) bool {
	return strings.EqualFold(strings.TrimSpace(input), strings.TrimSpace(keyword))
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}
