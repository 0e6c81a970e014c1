package app

import (
	"context"
	stderrors "errors"
	"time"

	actionsvc "ecofusion-backend/internal/application/actions"
	authsvc "ecofusion-backend/internal/application/auth"
	listsvc "ecofusion-backend/internal/application/listings"
	roundsvc "ecofusion-backend/internal/application/rounds"
	"ecofusion-backend/internal/application/sweeper"
	txsvc "ecofusion-backend/internal/application/transactions"
	"ecofusion-backend/internal/config"
	"ecofusion-backend/internal/infrastructure/audit"
	"ecofusion-backend/internal/infrastructure/cache"
	"ecofusion-backend/internal/infrastructure/database"
	"ecofusion-backend/internal/infrastructure/ledger"
	"ecofusion-backend/internal/infrastructure/wallet"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Container holds the shared clients and the services built on them. The API process and the
// operator CLI both start from here.
type Container struct {
	Cfg    *config.Config
	Logger zerolog.Logger

	DB     *gorm.DB
	Rdb    *redis.Client
	RPC    *ledger.RPCClient
	Ledger *ledger.Client
	Wallet *wallet.RedisSigner

	Auth         *authsvc.Service
	Actions      *actionsvc.Service
	Listings     *listsvc.Service
	Rounds       *roundsvc.Service
	Transactions *txsvc.Service
}

// New dials postgres, redis and the ledger RPC and wires the services. Ledger writes are signed
// through the redis wallet inbox unless signer is given.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger, signer ledger.Signer) (*Container, error) {
	c := &Container{Cfg: cfg, Logger: logger}
	fail := func(err error, msg string) (*Container, error) {
		c.Close()
		return nil, errors.Wrap(err, msg)
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database url is not configured")
	}
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fail(err, "open database")
	}
	c.DB = db
	if err := database.AutoMigrate(db); err != nil {
		return fail(err, "migrate database")
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fail(err, "parse redis url")
	}
	c.Rdb = redis.NewClient(opts)
	if err := c.Rdb.Ping(ctx).Err(); err != nil {
		return fail(err, "redis ping")
	}

	c.RPC, err = ledger.DialRPC(ctx, cfg.Ledger.RPCURLs, cfg.Ledger.ChainID, logger)
	if err != nil {
		return fail(err, "dial ledger rpc")
	}
	c.Wallet = wallet.NewRedisSigner(c.Rdb, cfg.Signer.Timeout, logger)
	if signer == nil {
		signer = c.Wallet
	}
	c.Ledger, err = ledger.NewClient(c.RPC, signer, ledger.Config{
		ChainID:           cfg.Ledger.ChainID,
		ActionRepository:  cfg.Ledger.ActionRepositoryAddress,
		ActionNFT:         cfg.Ledger.ActionNFTAddress,
		CarbonCreditToken: cfg.Ledger.CarbonCreditTokenAddress,
		Marketplace:       cfg.Ledger.MarketplaceAddress,
		ConfirmTimeout:    cfg.Ledger.ConfirmTimeout,
		PollInterval:      cfg.Ledger.ReceiptPollInterval,
	}, logger)
	if err != nil {
		return fail(err, "ledger client")
	}

	c.wire()
	return c, nil
}

func (c *Container) wire() {
	cursors := cache.NewCursors(c.Rdb)
	c.Auth = &authsvc.Service{DB: c.DB}
	c.Rounds = &roundsvc.Service{DB: c.DB, Logger: c.Logger.With().Str("component", "rounds").Logger()}
	c.Transactions = &txsvc.Service{DB: c.DB}
	c.Actions = &actionsvc.Service{
		DB:         c.DB,
		Ledger:     c.Ledger,
		Audit:      audit.New(c.Cfg.Audit.Backend, c.DB, c.Rdb, c.Logger),
		Intents:    cache.NewIntents(c.Rdb),
		Cursors:    cursors,
		Rounds:     c.Rounds,
		ChannelID:  c.Cfg.Audit.ReviewChannelID,
		Lease:      c.Cfg.Actions.VerdictLease,
		ClaimLease: c.Cfg.Actions.ClaimLease,
		Grace:      c.Cfg.Sweeps.ReconcileGrace,
		StartBlock: c.Cfg.Sweeps.ReconcileStartBlock,
		Logger:     c.Logger.With().Str("component", "actions").Logger(),
	}
	c.Listings = &listsvc.Service{
		DB:         c.DB,
		Ledger:     c.Ledger,
		Cursors:    cursors,
		StartBlock: c.Cfg.Sweeps.ReconcileStartBlock,
		Logger:     c.Logger.With().Str("component", "listings").Logger(),
	}
}

// Sweepers are the background jobs the API process runs: the cosmetic listing expiry and the
// ledger reconciliation pass.
func (c *Container) Sweepers() []*sweeper.Sweeper {
	return []*sweeper.Sweeper{
		sweeper.New(sweeper.Config{
			Name:     "expire_listings",
			Interval: c.Cfg.Sweeps.ExpireInterval,
			Logger:   c.Logger,
			Job: func(ctx context.Context) (int, error) {
				return c.Listings.ExpireSweep(ctx, time.Now().UTC())
			},
		}),
		sweeper.New(sweeper.Config{
			Name:     "reconcile",
			Interval: c.Cfg.Sweeps.ReconcileInterval,
			Logger:   c.Logger,
			Job:      c.Reconcile,
		}),
	}
}

// Reconcile runs the action pass and the listing pass and returns the number of rows changed. A
// failing pass does not stop the other; their errors are joined.
func (c *Container) Reconcile(ctx context.Context) (int, error) {
	return reconcileAll(ctx, []reconcilePass{
		{name: "actions", run: func(ctx context.Context) (int, error) {
			r, err := c.Actions.Reconcile(ctx)
			return r.Total(), err
		}},
		{name: "listings", run: func(ctx context.Context) (int, error) {
			r, err := c.Listings.Reconcile(ctx)
			return r.Total(), err
		}},
	})
}

type reconcilePass struct {
	name string
	run  func(ctx context.Context) (int, error)
}

func reconcileAll(ctx context.Context, passes []reconcilePass) (int, error) {
	total := 0
	var errs []error
	for _, p := range passes {
		n, err := p.run(ctx)
		total += n
		if err != nil {
			errs = append(errs, errors.Wrap(err, p.name))
		}
	}
	return total, stderrors.Join(errs...)
}

// Close releases every client. Safe on a partially built container.
func (c *Container) Close() {
	if c.RPC != nil {
		c.RPC.Close()
	}
	if c.Rdb != nil {
		_ = c.Rdb.Close()
	}
	if c.DB != nil {
		if sqlDB, err := c.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}
