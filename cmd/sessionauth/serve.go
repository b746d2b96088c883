package main

import (
	"time"

	"github.com/gofiber/fiber/v2"
	auth "github.com/goliatone/go-session-auth"
	"github.com/goliatone/go-session-auth/activitymap"
	"github.com/goliatone/go-session-auth/directory"
	"github.com/goliatone/go-session-auth/middleware/jwtware"
	"github.com/goliatone/go-session-auth/middleware/renewal"
	"github.com/goliatone/go-session-auth/middleware/throttle"
	"github.com/goliatone/go-print"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP session service",
	Long: `Run the HTTP session service.

Routes:
  POST /login       authenticate and set the session cookie
  POST /refresh     renew the session once the refresh interval elapsed
  POST /logout      clear the session cookie
  GET  /me          current identity
  GET  /admin/me    current identity, admin role required`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	opts, err := loadOptions()
	if err != nil {
		return err
	}

	if err := opts.Validate(); err != nil {
		return err
	}

	logger := auth.DefaultLogger()

	db, err := openDB(opts)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := auth.CreateSchema(ctx, db); err != nil {
		return err
	}

	repos := auth.NewRepositoryManager(db, logger)
	repos.MustValidate()

	hasher := auth.NewBcryptHasher()

	if opts.AdminPassword != "" {
		if _, err := auth.Seed(ctx, repos, hasher, auth.SeedOptions{AdminPassword: opts.AdminPassword}); err != nil {
			return err
		}
	}

	activity := activitymap.Sink(func(n activitymap.Normalized) error {
		logger.Info("activity %s", print.MaybePrettyJSON(n))
		return nil
	})

	var dir auth.DirectoryService
	if opts.Directory.Enabled() {
		dir = directory.New(directory.FromOptions(opts.Directory), directory.WithLogger(logger))
	}

	resolver := auth.NewIdentityResolver(repos.Accounts(), repos.Roles(), hasher, dir,
		auth.WithLocalUsernames(opts.LocalUsers...),
		auth.WithDefaultRole(opts.DefaultRole),
		auth.WithEmailDomain(opts.EmailDomain),
		auth.WithDirectoryTimeout(opts.Directory.Timeout),
		auth.WithResolverLogger(logger),
		auth.WithResolverActivitySink(activity),
	)

	policy := auth.NewSessionPolicy(opts,
		auth.WithPolicyLogger(logger),
		auth.WithIdentityLookup(resolver),
	)

	cookie := auth.NewSessionCookie(opts, policy.Now)

	controller := auth.NewSessionController(policy, resolver, cookie,
		auth.WithControllerLogger(logger),
		auth.WithControllerActivitySink(activity),
	)

	app := fiber.New(fiber.Config{
		AppName:      "sessionauth",
		ErrorHandler: auth.ErrorHandler(logger),
	})

	app.Use(renewal.New(renewal.Config{
		Filter:  controller.SessionRoutesFilter,
		Renewer: policy,
		Cookie:  cookie,
		Logger:  logger,
	}))

	lookup := "cookie:" + cookie.Name + ",header:" + fiber.HeaderAuthorization

	controller.Register(app, auth.RouteGuards{
		Login: []fiber.Handler{
			throttle.New(throttle.Config{PerSecond: opts.LoginRate, Burst: opts.LoginBurst}),
		},
		Protected: jwtware.New(jwtware.Config{
			TokenValidator: policy,
			TokenLookup:    lookup,
		}),
		Admin: jwtware.New(jwtware.Config{
			TokenValidator: policy,
			TokenLookup:    lookup,
			RequiredRole:   opts.AdminRole,
		}),
	})

	go func() {
		<-ctx.Done()
		if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
			logger.Error("shutdown: %v", err)
		}
	}()

	logger.Info("listening on %s", opts.Listen)

	return app.Listen(opts.Listen)
}
