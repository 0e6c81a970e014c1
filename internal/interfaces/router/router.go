package router

import (
	"ecofusion-backend/internal/app"
	"ecofusion-backend/internal/constants"
	actionhandler "ecofusion-backend/internal/interfaces/handlers/actions"
	adminhandler "ecofusion-backend/internal/interfaces/handlers/admin"
	authhandler "ecofusion-backend/internal/interfaces/handlers/auth"
	healthhandler "ecofusion-backend/internal/interfaces/handlers/health"
	eventhandler "ecofusion-backend/internal/interfaces/handlers/ledgerevents"
	listhandler "ecofusion-backend/internal/interfaces/handlers/listings"
	roundhandler "ecofusion-backend/internal/interfaces/handlers/rounds"
	sighandler "ecofusion-backend/internal/interfaces/handlers/signatures"
	txhandler "ecofusion-backend/internal/interfaces/handlers/transactions"
	"ecofusion-backend/internal/middleware"
	"ecofusion-backend/internal/pkg/metrics"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"gorm.io/gorm"
)

type gormDBPinger struct {
	db *gorm.DB
}

func (g *gormDBPinger) Ping() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// CreateApp registers middleware and every route on a new fiber app.
func CreateApp(c *app.Container) *fiber.App {
	cfg := c.Cfg
	rdb := c.Rdb

	fa := fiber.New(fiber.Config{
		DisableStartupMessage:   true,
		ErrorHandler:            middleware.NewErrorHandler(rdb),
		EnableTrustedProxyCheck: true,
	})

	fa.Use(middleware.CORS(middleware.CORSConfig{
		AllowedSuffix: cfg.FrontendURLEndsWith,
		DevPassword:   cfg.DevPassword,
	}))

	// The relay signs the raw body, so this route sits before the session middleware.
	webhook := &eventhandler.WebhookHandler{Fills: c.Listings, Secret: cfg.LedgerEventsSecret}
	fa.Post("/api/v1/ledger/events", webhook.HandleWebhook)
	fa.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	fa.Use(middleware.Session(rdb))
	fa.Use(middleware.HealthMarker(rdb))
	fa.Use(middleware.Tracing())
	fa.Use(middleware.RouteLogger())

	hh := &healthhandler.Handlers{
		Rdb:            rdb,
		DB:             &gormDBPinger{db: c.DB},
		Ledger:         c.Ledger,
		HealthAdminKey: cfg.HealthAdminKey,
	}
	fa.Get("/", hh.Root)
	fa.Get("/reset", hh.Reset)
	fa.Get("/health/json", hh.JSON)
	fa.Get("/health/errors", hh.Errors)

	sessionCfg := middleware.SessionConfig{
		AllowCrossSiteDev: cfg.AllowCrossSiteDev,
		IsProduction:      cfg.Env == "production",
		CookieDomain:      cfg.CookieDomain,
	}
	ah := &authhandler.Handlers{
		UserFinder: c.Auth,
		Registrar:  c.Auth,
		Rdb:        rdb,
		Config:     sessionCfg,
	}
	authGroup := fa.Group("/api/v1/auth")
	authGroup.Post("/register", ah.Register)
	authGroup.Post("/login", ah.Login)
	authGroup.Get("/me", ah.Me)
	authGroup.Delete("/logout", ah.Logout)

	wallet := []fiber.Handler{middleware.RequireAuth(), middleware.RequireWallet()}
	perm := middleware.AuthorizePermission

	acth := &actionhandler.Handlers{Service: c.Actions}
	ag := fa.Group("/api/v1/actions", wallet...)
	ag.Post("/submit", perm(constants.SubmitAction), acth.Submit)
	ag.Get("/mine", perm(constants.ViewData), acth.Mine)
	ag.Get("/pending", perm(constants.ReviewAction), acth.Pending)
	ag.Get("/:id", perm(constants.ViewData), acth.Get)
	ag.Post("/:id/claim", perm(constants.ClaimAction), acth.Claim)
	ag.Post("/:id/verdict", perm(constants.ReviewAction), acth.Verdict)

	lh := &listhandler.Handlers{Service: c.Listings}
	lg := fa.Group("/api/v1/listings", middleware.RequireAuth())
	lg.Get("/active", perm(constants.ViewData), lh.Active)
	lg.Post("/create-listing", middleware.RequireWallet(), perm(constants.CreateListing), lh.CreateListing)
	lg.Get("/mine", middleware.RequireWallet(), perm(constants.ViewData), lh.Mine)
	lg.Get("/:id", perm(constants.ViewData), lh.Get)
	lg.Post("/:id/cancel", middleware.RequireWallet(), perm(constants.CancelListing), lh.Cancel)

	rh := &roundhandler.Handlers{Service: c.Rounds}
	rg := fa.Group("/api/v1/rounds", middleware.RequireAuth())
	rg.Get("/", perm(constants.ViewData), rh.List)
	rg.Get("/:round_number", perm(constants.ViewData), rh.Get)
	rg.Post("/", perm(constants.ManageRounds), rh.Create)
	rg.Post("/:round_number/activate", perm(constants.ManageRounds), rh.Activate)
	rg.Post("/:round_number/progress", perm(constants.ManageRounds), rh.Progress)
	rg.Post("/:round_number/certify", perm(constants.ManageRounds), rh.Certify)
	rg.Post("/:round_number/complete", perm(constants.ManageRounds), rh.Complete)

	txh := &txhandler.Handlers{Service: c.Transactions}
	txg := fa.Group("/api/v1/transactions", middleware.RequireAuth())
	txg.Get("/mine", perm(constants.ViewData), txh.Mine)
	txg.Get("/:tx_ref", perm(constants.ViewData), txh.Get)

	sh := &sighandler.Handlers{Inbox: c.Wallet}
	sg := fa.Group("/api/v1/signatures", middleware.RequireAuth(), middleware.RequireWallet(), perm(constants.SignRequests))
	sg.Get("/pending", sh.Pending)
	sg.Get("/:id", sh.Get)
	sg.Post("/:id/sign", sh.Sign)
	sg.Post("/:id/reject", sh.Reject)

	adh := &adminhandler.Handlers{Reconcile: c.Reconcile}
	fa.Post("/api/v1/admin/reconcile", middleware.RequireAuth(), perm(constants.Reconcile), adh.RunReconcile)

	return fa
}
