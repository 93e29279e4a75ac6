package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nexuslabs/nexus-go/llm"
)

var toolsJSON bool

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools offered to the model",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		defs := newRegistry(cfg).Definitions()

		out := cmd.OutOrStdout()
		if toolsJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(defs)
		}
		for _, d := range defs {
			fmt.Fprintf(out, "%-14s %s\n", d.Name, d.Description)
			if req := llm.RequiredFields(d.InputSchema); len(req) > 0 {
				fmt.Fprintf(out, "%-14s required: %s\n", "", strings.Join(req, ", "))
			}
		}
		return nil
	},
}

func init() {
	toolsCmd.Flags().BoolVar(&toolsJSON, "json", false, "print definitions as JSON")
}
