package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/harunnryd/warden/internal/approval"
	"github.com/harunnryd/warden/internal/config"
	"github.com/harunnryd/warden/internal/intent"
	"github.com/harunnryd/warden/internal/orchestrator"
	"github.com/harunnryd/warden/internal/routing"

	"github.com/spf13/cobra"
)

var routeCmd = &cobra.Command{
	Use:   "route [query]",
	Short: "Route one query locally without a server",
	Long: `Dispatches a single query against the local configuration and prints the route.
Generated skills are read but never written, approvals go to a throwaway queue
and nothing is recorded in the ledger. Collaborators and models are called for real.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := orchestrator.Request{Text: strings.Join(args, " "), Channel: "cli"}
		if forced, _ := cmd.Flags().GetString("intent"); forced != "" {
			parsed, ok := intent.Parse(forced)
			if !ok {
				return fmt.Errorf("unknown intent %q", forced)
			}
			req.Intent = parsed
		}
		route, err := dryRun(commandContext(cmd), cfg, req)
		if err != nil {
			return err
		}

		format, err := outputFormat(cmd)
		if err != nil {
			return err
		}
		out, err := render(format, route, func() string { return routeTable(route) })
		if err != nil {
			return err
		}
		return writeLine(cmd.OutOrStdout(), out)
	},
}

func dryRun(ctx context.Context, c *config.Config, req orchestrator.Request) (orchestrator.Route, error) {
	registry, err := loadSkillsReadOnly(c)
	if err != nil {
		return orchestrator.Route{}, err
	}

	scratch, err := os.MkdirTemp("", "warden-route-*")
	if err != nil {
		return orchestrator.Route{}, err
	}
	defer os.RemoveAll(scratch)

	store, err := approval.NewStore(scratch)
	if err != nil {
		return orchestrator.Route{}, err
	}
	queue, err := approval.NewQueue(store)
	if err != nil {
		return orchestrator.Route{}, err
	}
	defer queue.Close()

	built, err := routing.Build(ctx, c, routing.Shared{Skills: registry, Approvals: queue})
	if err != nil {
		return orchestrator.Route{}, err
	}
	return built.Router.Dispatch(ctx, req)
}

func init() {
	routeCmd.Flags().String("intent", "", "skip classification and use this intent (search, task, knowledge, chat, action)")
	rootCmd.AddCommand(routeCmd)
}
