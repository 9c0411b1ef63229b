package mail_fx

import (
	"go.uber.org/fx"
	"fieldpay/internal/config"
	"fieldpay/internal/logger"
	"fieldpay/internal/services"
)

var Module = fx.Provide(provideMailService)

func provideMailService(cfg *config.Config) services.Mailer {
	log := logger.WithComponent("mail")

	smtpCfg := services.SMTPConfig{
		Host:       cfg.SMTP.Host,
		Port:       cfg.SMTP.Port, // 587 for STARTTLS; use 465 with UseSSL=true for SMTPS
		Username:   cfg.SMTP.Username,
		Password:   cfg.SMTP.Password,
		From:       cfg.SMTP.From,
		FromName:   cfg.SMTP.FromName,
		UseSSL:     cfg.SMTP.UseSSL,
		RequireTLS: cfg.SMTP.RequireTLS,

		AppName:    cfg.AppName,
		AppBaseURL: cfg.AppBaseURL,
	}
	if smtpCfg.From == "" {
		log.Warn().Msg("SMTP_FROM is not set, notification emails will be logged as not sent")
	}

	return services.NewSMTPMailer(smtpCfg, log)
}
