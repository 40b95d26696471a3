package main

import (
	"context"
	"fmt"
	"time"

	"github.com/harunnryd/warden/internal/approval"
	"github.com/harunnryd/warden/internal/auth"
	"github.com/harunnryd/warden/internal/config"

	"github.com/spf13/cobra"
)

const clientTimeout = 30 * time.Second

var approvalsCmd = &cobra.Command{
	Use:   "approvals",
	Short: "Work the approval queue",
	Long:  `Operators list and resolve pending approvals with the operator key. Agents file requests and poll them with the shared secret.`,
}

var approvalsPendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List pending approvals",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := operatorClient(cfg)
		if err != nil {
			return err
		}
		items, err := client.Pending(commandContext(cmd))
		if err != nil {
			return fmt.Errorf("failed to list approvals: %w", err)
		}
		return printApprovals(cmd, items)
	},
}

var approvalsResolveCmd = &cobra.Command{
	Use:   "resolve [id] [approve|reject]",
	Short: "Approve or reject a pending request",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		decision, err := approval.ParseDecision(args[1])
		if err != nil {
			return err
		}
		client, err := operatorClient(cfg)
		if err != nil {
			return err
		}
		item, err := client.Resolve(commandContext(cmd), args[0], decision)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", args[0], err)
		}
		return printApproval(cmd, item)
	},
}

var approvalsRequestCmd = &cobra.Command{
	Use:   "request",
	Short: "File an approval request as this service",
	RunE: func(cmd *cobra.Command, args []string) error {
		rationale, _ := cmd.Flags().GetString("rationale")
		needs, _ := cmd.Flags().GetString("needs")
		requestType, _ := cmd.Flags().GetString("type")
		wait, _ := cmd.Flags().GetBool("wait")

		client, err := agentClient(cfg)
		if err != nil {
			return err
		}
		payload := approval.Payload{Rationale: rationale, Needs: needs, RequestType: requestType}

		if !wait {
			id, err := client.Request(commandContext(cmd), payload)
			if err != nil {
				return fmt.Errorf("failed to file request: %w", err)
			}
			return writeLine(cmd.OutOrStdout(), id)
		}

		interval, err := config.DurationOrDefault(cfg.Approvals.PollInterval, config.DefaultApprovalsPollInterval)
		if err != nil {
			return err
		}
		maxWait, err := config.DurationOrDefault(cfg.Approvals.MaxWait, config.DefaultApprovalsMaxWait)
		if err != nil {
			return err
		}
		waiter := approval.NewWaiter(client, interval, maxWait)
		id, state, err := approval.RequestAndWait(commandContext(cmd), client, waiter, payload)
		if err != nil {
			if id != "" {
				return fmt.Errorf("request %s: %w", id, err)
			}
			return err
		}
		return writeLine(cmd.OutOrStdout(), fmt.Sprintf("%s %s", id, state))
	},
}

var approvalsStatusCmd = &cobra.Command{
	Use:   "status [id]",
	Short: "Show the state of a request this service filed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := agentClient(cfg)
		if err != nil {
			return err
		}
		item, err := client.Status(commandContext(cmd), args[0])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}
		return printApproval(cmd, item)
	},
}

func operatorClient(c *config.Config) (*approval.OperatorClient, error) {
	if c == nil {
		return nil, fmt.Errorf("config not loaded")
	}
	if c.Auth.OperatorAPIKey == "" {
		return nil, fmt.Errorf("auth.operator_api_key is required")
	}
	return approval.NewOperatorClient(auth.NewOperatorClient(c.Approvals.ServerURL, c.Auth.OperatorAPIKey, clientTimeout)), nil
}

func agentClient(c *config.Config) (*approval.Client, error) {
	signer, err := signerFor(c)
	if err != nil {
		return nil, err
	}
	return approval.NewClient(auth.NewClient(c.Approvals.ServerURL, signer, clientTimeout)), nil
}

func signerFor(c *config.Config) (*auth.Signer, error) {
	if c == nil {
		return nil, fmt.Errorf("config not loaded")
	}
	if c.Auth.ServiceID == "" || c.Auth.Secret == "" {
		return nil, fmt.Errorf("auth.service_id and auth.secret are required to sign requests")
	}
	return auth.NewSigner(c.Auth.ServiceID, c.Auth.Secret), nil
}

func printApprovals(cmd *cobra.Command, items []approval.Item) error {
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}
	if items == nil {
		items = []approval.Item{}
	}
	out, err := render(format, items, func() string { return approvalsTable(items) })
	if err != nil {
		return err
	}
	return writeLine(cmd.OutOrStdout(), out)
}

func printApproval(cmd *cobra.Command, item approval.Item) error {
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}
	out, err := render(format, item, func() string { return approvalTable(item) })
	if err != nil {
		return err
	}
	return writeLine(cmd.OutOrStdout(), out)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func init() {
	approvalsRequestCmd.Flags().String("rationale", "", "why the capability is needed")
	approvalsRequestCmd.Flags().String("needs", "", "what is being asked for")
	approvalsRequestCmd.Flags().String("type", "", "credential, permission or notification (default credential)")
	approvalsRequestCmd.Flags().Bool("wait", false, "block until an operator decides or the request expires")

	approvalsCmd.AddCommand(approvalsPendingCmd)
	approvalsCmd.AddCommand(approvalsResolveCmd)
	approvalsCmd.AddCommand(approvalsRequestCmd)
	approvalsCmd.AddCommand(approvalsStatusCmd)
	rootCmd.AddCommand(approvalsCmd)
}
