package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration (env + Viper).
type Config struct {
	Env                 string
	Port                string
	SessionSecret       string
	DatabaseURL         string
	RedisURL            string
	FrontendURLEndsWith string
	DevPassword         string
	AllowCrossSiteDev   bool
	CookieDomain        string
	HealthAdminKey      string

	LogLevel  string
	LogFormat string // "json" or console

	Ledger  LedgerConfig
	Signer  SignerConfig
	Sweeps  SweepConfig
	Audit   AuditConfig
	Actions ActionsConfig

	// LedgerEventsSecret signs POST /api/v1/ledger/events bodies (HMAC-SHA256, hex).
	LedgerEventsSecret string
	// OperatorKey is a hex ECDSA key used only by cmd/operator.
	OperatorKey string
}

// LedgerConfig points the ledger client at the JSON-RPC relay and the deployed contracts.
type LedgerConfig struct {
	RPCURLs                  []string
	ChainID                  int64
	ActionRepositoryAddress  string
	ActionNFTAddress         string
	CarbonCreditTokenAddress string
	MarketplaceAddress       string
	ConfirmTimeout           time.Duration
	ReceiptPollInterval      time.Duration
}

type SignerConfig struct {
	Timeout time.Duration
}

type SweepConfig struct {
	ExpireInterval      time.Duration
	ReconcileInterval   time.Duration
	ReconcileStartBlock uint64
	ReconcileGrace      time.Duration
}

type AuditConfig struct {
	Backend         string // "redis" or "database"
	ReviewChannelID string
}

type ActionsConfig struct {
	VerdictLease time.Duration
	// ClaimLease covers the three signed claim steps. Unset, it is derived from the signer and
	// confirm timeouts.
	ClaimLease time.Duration
}

// claimSteps is the number of wallet-signed ledger writes a claim can make.
const claimSteps = 3

const claimLeaseMargin = 5 * time.Minute

// Load loads config from env and optional .env file.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	_ = viper.ReadInConfig()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults()

	port := viper.GetString("PORT")
	if port == "" {
		port = "8080"
	}
	env := viper.GetString("NODE_ENV")
	if env == "" {
		env = viper.GetString("APP_ENV")
	}
	if env == "" {
		env = "development"
	}

	dbURL := viper.GetString("DATABASE_URL_DEV")
	if env == "production" {
		dbURL = viper.GetString("DATABASE_URL_PROD")
	} else if env == "test" {
		dbURL = viper.GetString("DATABASE_URL_TEST")
	}
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL_DEV")
	}

	return &Config{
		Env:                 env,
		Port:                port,
		SessionSecret:       viper.GetString("SESSION_SECRET"),
		DatabaseURL:         dbURL,
		RedisURL:            viper.GetString("REDIS_URL"),
		FrontendURLEndsWith: viper.GetString("FRONTEND_URL_ENDS_WITH"),
		DevPassword:         viper.GetString("DEV_PASSWORD"),
		AllowCrossSiteDev:   strings.EqualFold(viper.GetString("ALLOW_CROSS_SITE_DEV"), "true"),
		CookieDomain:        viper.GetString("COOKIE_DOMAIN"),
		HealthAdminKey:      viper.GetString("HEALTH_ADMIN_KEY"),
		LogLevel:            viper.GetString("LOG_LEVEL"),
		LogFormat:           viper.GetString("LOG_FORMAT"),
		Ledger: LedgerConfig{
			RPCURLs:                  splitList(viper.GetString("LEDGER_RPC_URLS")),
			ChainID:                  viper.GetInt64("LEDGER_CHAIN_ID"),
			ActionRepositoryAddress:  viper.GetString("ACTION_REPOSITORY_ADDRESS"),
			ActionNFTAddress:         viper.GetString("ACTION_NFT_ADDRESS"),
			CarbonCreditTokenAddress: viper.GetString("CARBON_CREDIT_TOKEN_ADDRESS"),
			MarketplaceAddress:       viper.GetString("MARKETPLACE_ADDRESS"),
			ConfirmTimeout:           viper.GetDuration("LEDGER_CONFIRM_TIMEOUT"),
			ReceiptPollInterval:      viper.GetDuration("LEDGER_RECEIPT_POLL"),
		},
		Signer: SignerConfig{
			Timeout: viper.GetDuration("SIGNER_TIMEOUT"),
		},
		Sweeps: SweepConfig{
			ExpireInterval:      viper.GetDuration("EXPIRE_SWEEP_INTERVAL"),
			ReconcileInterval:   viper.GetDuration("RECONCILE_INTERVAL"),
			ReconcileStartBlock: viper.GetUint64("RECONCILE_START_BLOCK"),
			ReconcileGrace:      viper.GetDuration("RECONCILE_GRACE"),
		},
		Audit: AuditConfig{
			Backend:         strings.ToLower(viper.GetString("AUDIT_BACKEND")),
			ReviewChannelID: viper.GetString("REVIEW_CHANNEL_ID"),
		},
		Actions: ActionsConfig{
			VerdictLease: viper.GetDuration("VERDICT_LEASE"),
			ClaimLease:   claimLease(),
		},
		LedgerEventsSecret: viper.GetString("LEDGER_EVENTS_SECRET"),
		OperatorKey:        viper.GetString("OPERATOR_KEY"),
	}, nil
}

func setDefaults() {
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_FORMAT", "console")
	// Hedera testnet JSON-RPC relay
	viper.SetDefault("LEDGER_CHAIN_ID", 296)
	viper.SetDefault("LEDGER_CONFIRM_TIMEOUT", "60s")
	viper.SetDefault("LEDGER_RECEIPT_POLL", "2s")
	viper.SetDefault("SIGNER_TIMEOUT", "2m")
	viper.SetDefault("EXPIRE_SWEEP_INTERVAL", "1m")
	viper.SetDefault("RECONCILE_INTERVAL", "5m")
	viper.SetDefault("RECONCILE_GRACE", "10m")
	viper.SetDefault("AUDIT_BACKEND", "database")
	viper.SetDefault("REVIEW_CHANNEL_ID", "review")
	viper.SetDefault("VERDICT_LEASE", "10m")
}

func claimLease() time.Duration {
	if d := viper.GetDuration("CLAIM_LEASE"); d > 0 {
		return d
	}
	perStep := viper.GetDuration("SIGNER_TIMEOUT") + viper.GetDuration("LEDGER_CONFIRM_TIMEOUT")
	return claimSteps*perStep + claimLeaseMargin
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
