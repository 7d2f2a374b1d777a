package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/MarcoPoloResearchLab/satisfaction/internal/analytics"
	"github.com/MarcoPoloResearchLab/satisfaction/internal/auth"
	"github.com/MarcoPoloResearchLab/satisfaction/internal/config"
	"github.com/MarcoPoloResearchLab/satisfaction/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const dashboardTokenIssuer = "satisfaction-dashboard"

var errSignInUnsupported = errors.New("dashboard sign-in requires the postgrest backend")

func newDashboardCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Run the admin reporting API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDashboard(cmd.Context())
		},
	}

	defaults := config.NewViper()
	flags := cmd.PersistentFlags()
	flags.String("address", defaults.GetString("dashboard.address"), "Dashboard HTTP listen address")
	flags.String("signing-secret", "", "Admin session signing secret (overrides env)")
	flags.String("admin-emails", "", "Comma-separated admin email allow-list")
	flags.String("admin-email-domain", "", "Email domain admitted when no allow-list is set")
	flags.String("allow-origins", "", "Comma-separated origins allowed to call the API with credentials")
	flags.Duration("token-ttl", defaults.GetDuration("admin.token_ttl"), "Admin session lifetime")

	bindFlag(cmd, "dashboard.address", "address")
	bindFlag(cmd, "admin.signing_secret", "signing-secret")
	bindFlag(cmd, "admin.emails", "admin-emails")
	bindFlag(cmd, "admin.email_domain", "admin-email-domain")
	bindFlag(cmd, "admin.allow_origins", "allow-origins")
	bindFlag(cmd, "admin.token_ttl", "token-ttl")
	return cmd
}

func runDashboard(ctx context.Context) error {
	appConfig, logger, err := setup(config.ModeDashboard)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	location, err := appConfig.Location()
	if err != nil {
		return err
	}

	remoteStore, err := openRemote(ctx, appConfig.Remote, logger)
	if err != nil {
		return err
	}
	defer remoteStore.close()
	if remoteStore.postgrest == nil {
		return errSignInUnsupported
	}

	reports, err := analytics.NewService(analytics.Config{
		Querier:   remoteStore.service,
		Table:     appConfig.Remote.Table,
		Location:  location,
		CacheTTL:  appConfig.CacheTTL,
		CacheSize: appConfig.CacheSize,
		Logger:    logger.Named("analytics"),
	})
	if err != nil {
		return err
	}

	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.Admin.SigningSecret),
		Issuer:        dashboardTokenIssuer,
		CookieName:    appConfig.Admin.CookieName,
		TokenTTL:      appConfig.Admin.TokenTTL,
	})
	if err != nil {
		return err
	}
	authenticator := auth.NewAuthenticator(
		remoteStore.postgrest,
		auth.NewAccessPolicy(appConfig.Admin.Emails, appConfig.Admin.EmailDomain),
		issuer,
		logger.Named("auth"),
	)
	unsubscribe := authenticator.OnAuthStateChange(func(state auth.AuthState) {
		reports.Invalidate()
		logger.Debug("admin auth state changed",
			zap.String("email", state.Email),
			zap.Bool("signed_in", state.SignedIn))
	})
	defer unsubscribe()

	handler, err := server.NewDashboardHandler(server.DashboardDependencies{
		Analytics:     reports,
		Authenticator: authenticator,
		AllowOrigins:  appConfig.Admin.AllowOrigins,
		SecureCookies: appConfig.Admin.SecureCookies,
		Logger:        logger.Named("http"),
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.DashboardAddress,
		Handler: handler,
	}
	return serve(ctx, httpServer, logger, nil)
}
