package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"fieldpay/cmd/fx/account_fx"
	"fieldpay/cmd/fx/config_fx"
	"fieldpay/cmd/fx/controllers_fx"
	"fieldpay/cmd/fx/db_fx"
	"fieldpay/cmd/fx/gateway_fx"
	"fieldpay/cmd/fx/ledger_fx"
	"fieldpay/cmd/fx/mail_fx"
	"fieldpay/cmd/fx/memcache_fx"
	"fieldpay/cmd/fx/payment_service_fx"
	"fieldpay/cmd/fx/redis_fx"
	"fieldpay/cmd/fx/webhook_fx"
	"fieldpay/internal/api"
	"fieldpay/internal/api/controllers"
	"fieldpay/internal/config"
	"fieldpay/internal/logger"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the billing HTTP API and webhook receiver",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fx.New(
				config_fx.Module,
				db_fx.Module,
				redis_fx.Module,
				memcache_fx.Module,
				gateway_fx.Module,
				mail_fx.Module,
				account_fx.Module,
				ledger_fx.Module,
				payment_service_fx.Module,
				webhook_fx.Module,
				controllers_fx.Module,

				fx.Provide(ProvideRouter),
				fx.Invoke(StartServer),
				fx.NopLogger,
			)
			if err := app.Err(); err != nil {
				return err
			}
			app.Run()
			return nil
		},
	}
}

func StartServer(lc fx.Lifecycle, cfg *config.Config, engine *gin.Engine) {
	log := logger.WithComponent("http")
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info().Str("addr", srv.Addr).Msg("Starting HTTP server")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal().Err(err).Msg("Failed to start server")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info().Msg("Stopping HTTP server")
			return srv.Shutdown(ctx)
		},
	})
}

func ProvideRouter(
	cfg *config.Config,
	paymentController *controllers.PaymentController,
	webhookController *controllers.WebhookController) *gin.Engine {

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	return api.NewRouter([]byte(cfg.JWTSecret), paymentController, webhookController, logger.WithComponent("http"))
}
