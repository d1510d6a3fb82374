package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rohittupe/prediction-service/config"
	"github.com/rohittupe/prediction-service/internal/domain/job"
)

// BuildRetention resolves the starting retention policy from env settings and the optional policy file.
func BuildRetention(cfg config.JobsConfig, logger *slog.Logger) (*job.DynamicRetention, error) {
	base, err := cfg.Retention()
	if err != nil {
		return nil, fmt.Errorf("retention config: %w", err)
	}

	policy := base
	if cfg.PolicyFile != "" {
		policy, err = config.LoadPolicy(cfg.PolicyFile, base)
		if err != nil {
			return nil, fmt.Errorf("load retention policy: %w", err)
		}
		logger.Info("retention policy loaded", "path", cfg.PolicyFile)
	}

	logger.Info("retention policy active",
		"completed_ttl", policy.CompletedTTL,
		"failed_ttl", policy.FailedTTL,
		"pending_max_age", policy.PendingMaxAge,
	)
	return job.NewDynamicRetention(policy)
}

// WatchRetention reloads the policy file into retention until ctx is cancelled.
// It returns immediately when no policy file is configured.
func WatchRetention(ctx context.Context, cfg config.JobsConfig, retention *job.DynamicRetention, logger *slog.Logger) error {
	if cfg.PolicyFile == "" {
		return nil
	}
	base, err := cfg.Retention()
	if err != nil {
		return fmt.Errorf("retention config: %w", err)
	}
	return config.WatchPolicy(ctx, cfg.PolicyFile, base, logger, func(p job.RetentionPolicy) {
		if err := retention.Update(p); err != nil {
			logger.ErrorContext(ctx, "rejected retention policy update", "error", err)
		}
	})
}
