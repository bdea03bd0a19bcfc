package main

import (
	"fmt"
	"io"
	"log"

	"kairos-demo/server/internal/catalog"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

func newAgentsCmd(root *rootOptions) *cobra.Command {
	var catalogPath string

	cmd := &cobra.Command{
		Use:   "agents",
		Short: "List catalog agents and their topics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig(cmd, nil)
			if err != nil {
				return err
			}
			if catalogPath != "" {
				cfg.Catalog.Path = catalogPath
			}
			cat, err := catalog.Load(cfg.Catalog.Path, log.New(io.Discard, "", 0))
			if err != nil {
				return err
			}
			printAgents(cmd.OutOrStdout(), cat)
			return nil
		},
	}
	cmd.Flags().StringVar(&catalogPath, "catalog", "", "catalog file (overrides config)")
	return cmd
}

func printAgents(w io.Writer, cat *catalog.Catalog) {
	title := lipgloss.NewStyle().Bold(true)
	muted := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	for _, agent := range cat.Agents() {
		entry, _ := cat.Lookup(agent.ID)
		fmt.Fprintf(w, "%s %s\n", title.Render(agent.Title), muted.Render("("+agent.ID+")"))
		if len(entry.Topics) == 0 {
			fmt.Fprintf(w, "  %s\n", muted.Render("no topics, plays the agent overview"))
			continue
		}
		for i, t := range entry.Topics {
			label := t.Label
			if label == "" {
				label = t.Name
			}
			fmt.Fprintf(w, "  [%d] %s %s\n", i, label, muted.Render(fmt.Sprintf("%d turns", len(t.Turns))))
		}
	}
}
