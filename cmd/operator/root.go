package main

import (
	"context"

	"ecofusion-backend/internal/app"
	"ecofusion-backend/internal/config"
	"ecofusion-backend/internal/domain"
	"ecofusion-backend/internal/infrastructure/ledger"
	"ecofusion-backend/internal/infrastructure/wallet"
	"ecofusion-backend/internal/pkg/logger"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var outputFmt string

var rootCmd = &cobra.Command{
	Use:   "operator",
	Short: "Maintenance commands for the ecofusion backend",
	Long: `operator runs the jobs the API schedules in the background (reconciliation, listing
expiry) on demand, and a few admin tasks that have no HTTP surface.

Ledger writes are signed with OPERATOR_KEY. Commands that only read the ledger work without it.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "json", "Output format: json, yaml")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(expireCmd)
	rootCmd.AddCommand(verdictCmd)
	rootCmd.AddCommand(roundsCmd)
	rootCmd.AddCommand(setRoleCmd)
}

// operator is the admin identity behind OPERATOR_KEY.
type operator struct {
	account domain.Account
	signer  ledger.Signer
}

func loadOperator(cfg *config.Config) (*operator, error) {
	if cfg.OperatorKey == "" {
		return nil, nil
	}
	key, err := wallet.NewKeySigner(cfg.OperatorKey)
	if err != nil {
		return nil, err
	}
	return &operator{
		account: domain.Account{UserID: uuid.Nil, Address: key.Address(), Role: domain.RoleAdmin},
		signer:  key,
	}, nil
}

// withContainer loads config, builds the container and runs fn. requireKey rejects the command
// when OPERATOR_KEY is unset.
func withContainer(cmd *cobra.Command, requireKey bool, fn func(ctx context.Context, c *app.Container, op *operator) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	l := logger.Init(cfg.LogLevel, cfg.LogFormat)
	op, err := loadOperator(cfg)
	if err != nil {
		return err
	}
	if requireKey && op == nil {
		return errors.New("OPERATOR_KEY is required for this command")
	}
	var signer ledger.Signer
	if op != nil {
		signer = op.signer
	}

	ctx := cmd.Context()
	c, err := app.New(ctx, cfg, l, signer)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(ctx, c, op)
}
