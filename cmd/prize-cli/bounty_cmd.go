package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"prizechain/client"
	"prizechain/crypto"
	"prizechain/rpc"
)

func (a *app) newBountyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bounty",
		Short: "Create, manage and inspect bounties",
	}
	cmd.AddCommand(
		a.newBountyInitCmd(),
		a.newBountyCreateCmd(),
		a.newBountyAssignCmd(),
		a.newBountyCompleteCmd(),
		a.newBountyCancelCmd(),
		a.newBountyGetCmd(),
		a.newBountyListCmd(),
		a.newBountyConfigCmd(),
	)
	return cmd
}

func parseID(raw string) (uint64, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid bounty id %q", raw)
	}
	return id, nil
}

func (a *app) newBountyInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize the bounty program with the wallet as authority",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w, err := a.wallet()
			if err != nil {
				return err
			}
			ctx, cancel := a.context(cmd)
			defer cancel()
			res, err := w.Initialize(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Program initialized\nSignature: %s\n", res.Signature)
			return nil
		},
	}
}

func (a *app) newBountyCreateCmd() *cobra.Command {
	var (
		reward string
		url    string
		repo   string
		issue  uint64
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Escrow a reward for a GitHub issue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			lamports, err := parseAmount(reward)
			if err != nil {
				return err
			}
			w, err := a.wallet()
			if err != nil {
				return err
			}
			ctx, cancel := a.context(cmd)
			defer cancel()
			id, res, err := w.CreateBounty(ctx, client.CreateParams{
				RewardAmount:   lamports,
				GithubIssueURL: url,
				RepoName:       repo,
				IssueNumber:    issue,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created bounty %d\nSignature: %s\n", id, res.Signature)
			return nil
		},
	}
	cmd.Flags().StringVar(&reward, "reward", "", "Reward in PRIZE, e.g. 2.5")
	cmd.Flags().StringVar(&url, "url", "", "GitHub issue URL")
	cmd.Flags().StringVar(&repo, "repo", "", "Repository in owner/name form")
	cmd.Flags().Uint64Var(&issue, "issue", 0, "Issue number")
	for _, name := range []string{"reward", "url", "repo", "issue"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func (a *app) newBountyAssignCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "assign <id> <assignee>",
		Short: "Assign an open bounty to a contributor",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			assignee, err := crypto.DecodeAddress(args[1])
			if err != nil {
				return err
			}
			w, err := a.wallet()
			if err != nil {
				return err
			}
			ctx, cancel := a.context(cmd)
			defer cancel()
			res, err := w.AssignBounty(ctx, id, assignee)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Assigned bounty %d to %s\nSignature: %s\n", id, assignee, res.Signature)
			return nil
		},
	}
}

func (a *app) newBountyCompleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "complete <id> <recipient>",
		Short: "Pay out a bounty and close it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			recipient, err := crypto.DecodeAddress(args[1])
			if err != nil {
				return err
			}
			w, err := a.wallet()
			if err != nil {
				return err
			}
			ctx, cancel := a.context(cmd)
			defer cancel()
			res, err := w.CompleteBounty(ctx, id, recipient)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Completed bounty %d, paid %s\nSignature: %s\n", id, recipient, res.Signature)
			return nil
		},
	}
}

func (a *app) newBountyCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel an open bounty and refund the escrow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			w, err := a.wallet()
			if err != nil {
				return err
			}
			ctx, cancel := a.context(cmd)
			defer cancel()
			res, err := w.CancelBounty(ctx, id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cancelled bounty %d\nSignature: %s\n", id, res.Signature)
			return nil
		},
	}
}

func (a *app) newBountyGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id|address>",
		Short: "Show one bounty",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()
			c := a.client()
			var (
				entry *rpc.BountyResult
				err   error
			)
			if id, parseErr := strconv.ParseUint(args[0], 10, 64); parseErr == nil {
				entry, err = c.Bounty(ctx, id)
			} else {
				addr, decodeErr := crypto.DecodeAddress(args[0])
				if decodeErr != nil {
					return decodeErr
				}
				entry, err = c.BountyAt(ctx, addr)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), entry)
		},
	}
}

func (a *app) newBountyListCmd() *cobra.Command {
	var filter rpc.ListParams
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List live bounties",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()
			entries, err := a.client().ListBounties(ctx, filter)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), entries)
		},
	}
	cmd.Flags().StringVar(&filter.Creator, "creator", "", "Only bounties created by this address")
	cmd.Flags().StringVar(&filter.Status, "status", "", "Only bounties in this status (open, assigned)")
	cmd.Flags().IntVar(&filter.Limit, "limit", 0, "Maximum number of results")
	return cmd
}

func (a *app) newBountyConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the program config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()
			cfg, err := a.client().BountyConfig(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), cfg)
		},
	}
}
