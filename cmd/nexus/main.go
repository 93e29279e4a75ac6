// Command nexus runs the Nexus agent as an HTTP service or an interactive chat.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/nexuslabs/nexus-go/config"
	"github.com/nexuslabs/nexus-go/logging"
	"github.com/nexuslabs/nexus-go/server"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "nexus",
	Short: "Nexus - a self-learning agent with semantic and episodic memory",
	Long: `Nexus is an agent that remembers past conversations, learns which tools
it uses most and detects recurring request patterns.

Configuration:
  1. --config flag (explicit path)
  2. ./nexus.yaml
  3. $HOME/.config/nexus/nexus.yaml

Environment Variables:
  ANTHROPIC_API_KEY   - Anthropic API key
  OPENAI_API_KEY      - OpenAI API key (openai provider or embedder)
  NEXUS_<SECTION>_<KEY> overrides any config value, e.g. NEXUS_LLM_PROVIDER`,
	Version:       server.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./nexus.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(toolsCmd)
}

func main() {
	// Load .env if present
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration and sets up logging from it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}
	logging.Setup(level, cfg.Log.Pretty)
	return cfg, nil
}
