package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nexuslabs/nexus-go/engine"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the agent on stdin",
	Long: `Starts an interactive session. Each line is sent to the agent.

Commands:
  /stats   show memory and learning totals
  /clear   clear memories and episodes
  /quit    exit`,
	RunE: runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	gateway, err := newGateway(cfg)
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), cfg, gateway)
	if err != nil {
		return err
	}
	defer a.Close()

	return chatLoop(cmd.Context(), a.engine, cmd.InOrStdin(), cmd.OutOrStdout())
}

// chatLoop reads one message per line until EOF or /quit.
func chatLoop(ctx context.Context, eng *engine.Engine, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	fmt.Fprint(out, "> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
		case "/quit", "/exit":
			return nil
		case "/stats":
			stats, err := eng.Stats(ctx)
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				break
			}
			fmt.Fprintf(out, "memories: %d  episodes: %d  patterns: %d  skills: %d\n",
				stats.VectorMemories, stats.Episodes,
				stats.LearningStats.TotalPatterns, stats.LearningStats.TotalSkills)
		case "/clear":
			if err := eng.Clear(ctx); err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				break
			}
			fmt.Fprintln(out, "memories cleared")
		default:
			result, err := eng.ProcessMessage(ctx, line)
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				break
			}
			printResult(out, result)
		}
		fmt.Fprint(out, "> ")
	}
	return scanner.Err()
}

func printResult(out io.Writer, r *engine.Result) {
	fmt.Fprintln(out, r.Response)
	if len(r.ToolResults) > 0 {
		names := make([]string, len(r.ToolResults))
		for i, ex := range r.ToolResults {
			names[i] = ex.Tool
		}
		fmt.Fprintf(out, "[tools: %s]\n", strings.Join(names, ", "))
	}
	if r.PatternDetected != nil {
		fmt.Fprintf(out, "[pattern: %s]\n", *r.PatternDetected)
	}
	for _, w := range r.Warnings {
		fmt.Fprintf(out, "[warning: %s]\n", w)
	}
}
