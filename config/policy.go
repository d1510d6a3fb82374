package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/rohittupe/prediction-service/internal/domain/job"
)

// policyFile mirrors the YAML retention policy file. Omitted keys keep the base value.
//
//	completed_ttl: 1h
//	failed_ttl: 30m
//	pending_max_age: 10m
type policyFile struct {
	Retention *job.RetentionPolicy `yaml:"retention"`
}

// LoadPolicy reads a retention policy from path, layered over base.
// The file holds a top-level "retention" mapping; unknown keys are rejected.
func LoadPolicy(path string, base job.RetentionPolicy) (job.RetentionPolicy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return job.RetentionPolicy{}, fmt.Errorf("read policy file: %w", err)
	}
	return ParsePolicy(raw, base)
}

// ParsePolicy decodes a retention policy document layered over base and validates the result.
func ParsePolicy(raw []byte, base job.RetentionPolicy) (job.RetentionPolicy, error) {
	out := base
	doc := policyFile{Retention: &out}

	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return job.RetentionPolicy{}, fmt.Errorf("parse policy file: %w", err)
	}
	if err := out.Validate(); err != nil {
		return job.RetentionPolicy{}, err
	}
	return out, nil
}

// WatchPolicy reloads the policy file whenever it changes and passes the result to onChange.
// It runs until ctx is cancelled. A reload that fails is logged and the previous policy stays active.
//
// The parent directory is watched so editors that save by rename are picked up.
func WatchPolicy(
	ctx context.Context,
	path string,
	base job.RetentionPolicy,
	logger *slog.Logger,
	onChange func(job.RetentionPolicy),
) error {
	if logger == nil {
		logger = slog.Default()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create policy watcher: %w", err)
	}
	defer watcher.Close()

	target := filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch policy dir: %w", err)
	}
	logger.InfoContext(ctx, "watching retention policy", "path", target)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			p, err := LoadPolicy(target, base)
			if err != nil {
				logger.ErrorContext(ctx, "retention policy reload failed, keeping previous policy",
					"path", target, "error", err)
				continue
			}
			logger.InfoContext(ctx, "retention policy reloaded",
				"path", target,
				"completed_ttl", p.CompletedTTL,
				"failed_ttl", p.FailedTTL,
				"pending_max_age", p.PendingMaxAge,
			)
			onChange(p)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.ErrorContext(ctx, "retention policy watcher error", "error", err)
		}
	}
}
