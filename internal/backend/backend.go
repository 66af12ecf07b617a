// Package backend builds the delivery adapter selected by configuration.
package backend

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shineum/mailkit/adapter"
	"github.com/shineum/mailkit/adapter/graph"
	"github.com/shineum/mailkit/adapter/local"
	"github.com/shineum/mailkit/adapter/ses"
	"github.com/shineum/mailkit/adapter/smtp"
	"github.com/shineum/mailkit/adapter/stdout"
	"github.com/shineum/mailkit/internal/config"
)

// New validates cfg and returns the adapter it selects. When no adapter is
// named, one is inferred from the credentials present (Graph, then SES,
// then SMTP, else stdout).
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (adapter.Adapter, error) {
	logger = adapter.Logger(logger)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	name := cfg.AdapterName()
	inferred := cfg.Adapter == ""

	switch name {
	case config.AdapterMail, config.AdapterSendmail:
		logger.Info("using local sendmail adapter", "path", cfg.Sendmail.Path)
		return local.New(
			local.WithDelivery(local.NewSendmail(cfg.Sendmail.Path, cfg.Sendmail.Args...)),
			local.WithLogger(logger),
		), nil

	case config.AdapterSMTP:
		secure, err := smtp.ParseSecure(cfg.SMTP.Secure)
		if err != nil {
			return nil, err
		}
		logger.Info("using SMTP adapter",
			"host", cfg.SMTP.Host,
			"port", cfg.SMTP.Port,
			"secure", string(secure),
			"auto_detected", inferred,
		)
		a, err := smtp.New(smtp.Options{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			User:     cfg.SMTP.User,
			Password: cfg.SMTP.Password,
			Secure:   secure,
			SkipAuth: !cfg.SMTP.Auth,
			Debug:    cfg.SMTP.Debug,
			Timeout:  cfg.SMTP.Timeout,
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create SMTP adapter: %w", err)
		}
		return a, nil

	case config.AdapterSES:
		logger.Info("using AWS SES adapter",
			"region", cfg.SES.Region,
			"sender", cfg.SES.Sender,
			"auto_detected", inferred,
		)
		a, err := ses.New(ctx, ses.Config{
			Region:          cfg.SES.Region,
			AccessKeyID:     cfg.SES.AccessKeyID,
			SecretAccessKey: cfg.SES.SecretAccessKey,
			Sender:          cfg.SES.Sender,
			Logger:          logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create SES adapter: %w", err)
		}
		return a, nil

	case config.AdapterGraph:
		logger.Info("using Microsoft Graph adapter",
			"sender", cfg.Graph.Sender,
			"auto_detected", inferred,
		)
		return graph.New(graph.Config{
			TenantID:        cfg.Graph.TenantID,
			ClientID:        cfg.Graph.ClientID,
			ClientSecret:    cfg.Graph.ClientSecret,
			Sender:          cfg.Graph.Sender,
			SaveToSentItems: cfg.Graph.SaveToSentItems,
			Logger:          logger,
		}), nil

	default:
		logger.Info("using stdout adapter", "auto_detected", inferred)
		return stdout.New(logger), nil
	}
}
