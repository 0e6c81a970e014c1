package main

import (
	"context"
	"strconv"
	"time"

	"ecofusion-backend/internal/app"
	actionsvc "ecofusion-backend/internal/application/actions"
	authsvc "ecofusion-backend/internal/application/auth"
	"ecofusion-backend/internal/config"
	"ecofusion-backend/internal/infrastructure/database"
	"ecofusion-backend/internal/pkg/fixedpoint"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the mirror tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		db, err := database.Open(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		if err := database.AutoMigrate(db); err != nil {
			return err
		}
		return printOutput(map[string]any{"migrated": len(database.Models())})
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Bring actions and listings in line with the ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(cmd, false, func(ctx context.Context, c *app.Container, _ *operator) error {
			ar, err := c.Actions.Reconcile(ctx)
			if err != nil {
				return errors.Wrap(err, "actions")
			}
			lr, err := c.Listings.Reconcile(ctx)
			if err != nil {
				return errors.Wrap(err, "listings")
			}
			return printOutput(map[string]any{"actions": ar, "listings": lr})
		})
	},
}

var expireCmd = &cobra.Command{
	Use:   "expire-listings",
	Short: "Mark listed rows past their expiry as expired",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(cmd, false, func(ctx context.Context, c *app.Container, _ *operator) error {
			n, err := c.Listings.ExpireSweep(ctx, time.Now().UTC())
			if err != nil {
				return err
			}
			return printOutput(map[string]any{"expired": n})
		})
	},
}

var (
	verdictStatus string
	verdictCO2    string
	verdictTokens string
	verdictReason string
)

var verdictCmd = &cobra.Command{
	Use:   "verdict <action-id>",
	Short: "Verify or reject a pending action, signed with the operator key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return errors.Wrap(err, "action id")
		}
		var v actionsvc.Verdict
		switch verdictStatus {
		case "verified":
			co2, err := decimal.NewFromString(verdictCO2)
			if err != nil {
				return errors.Wrap(err, "--co2")
			}
			tokens, err := fixedpoint.Parse(verdictTokens)
			if err != nil {
				return errors.Wrap(err, "--tokens")
			}
			v = actionsvc.VerifyVerdict{CO2Impact: co2, TokenAmount: tokens}
		case "rejected":
			v = actionsvc.RejectVerdict{Reason: verdictReason}
		default:
			return errors.Errorf("--status must be verified or rejected, got %q", verdictStatus)
		}
		return withContainer(cmd, true, func(ctx context.Context, c *app.Container, op *operator) error {
			action, err := c.Actions.ApplyVerdict(ctx, op.account, id, v)
			if err != nil {
				return err
			}
			return printOutput(action)
		})
	},
}

func init() {
	verdictCmd.Flags().StringVar(&verdictStatus, "status", "", "verified or rejected")
	verdictCmd.Flags().StringVar(&verdictCO2, "co2", "", "verified CO2 impact in kg")
	verdictCmd.Flags().StringVar(&verdictTokens, "tokens", "", "tokens to mint")
	verdictCmd.Flags().StringVar(&verdictReason, "reason", "", "rejection reason")
	_ = verdictCmd.MarkFlagRequired("status")

	roundsCmd.AddCommand(roundsListCmd, roundsCertifyCmd)
}

var roundsCmd = &cobra.Command{
	Use:   "rounds",
	Short: "Inspect and certify VerraRounds",
}

var roundsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every round",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(cmd, false, func(ctx context.Context, c *app.Container, _ *operator) error {
			list, err := c.Rounds.ListRounds(ctx)
			if err != nil {
				return err
			}
			return printOutput(list)
		})
	},
}

var roundsCertifyCmd = &cobra.Command{
	Use:   "certify <round-number>",
	Short: "Certify a round that reached its target",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return errors.Wrap(err, "round number")
		}
		return withContainer(cmd, false, func(ctx context.Context, c *app.Container, _ *operator) error {
			round, err := c.Rounds.CertifyRound(ctx, n)
			if err != nil {
				return err
			}
			return printOutput(round)
		})
	},
}

var setRoleCmd = &cobra.Command{
	Use:   "set-role <email> <role>",
	Short: "Change a user's role (user or admin)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		db, err := database.Open(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		u, err := (&authsvc.Service{DB: db}).SetRole(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		return printOutput(map[string]any{"email": u.Email, "role": u.Role})
	},
}
