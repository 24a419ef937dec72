// Package handlers implements the business logic behind the CLI commands.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/imamik/ec2keeper/internal/config"
	"github.com/imamik/ec2keeper/internal/connectivity"
	"github.com/imamik/ec2keeper/internal/keys"
	"github.com/imamik/ec2keeper/internal/logging"
	"github.com/imamik/ec2keeper/internal/platform/ec2"
	"github.com/imamik/ec2keeper/internal/platform/s3"
	"github.com/imamik/ec2keeper/internal/provisioning"
	"github.com/imamik/ec2keeper/internal/store"
)

// defaultConfigFile is looked up in the working directory when no
// --config is given.
const defaultConfigFile = "ec2keeper.yaml"

// Environment variables read by the CLI.
const (
	envAccessKeyID     = "AWS_ACCESS_KEY_ID"
	envSecretAccessKey = "AWS_SECRET_ACCESS_KEY"
	envSessionToken    = "AWS_SESSION_TOKEN"
	envEC2Endpoint     = "EC2KEEPER_EC2_ENDPOINT"
)

// Options are the global flags shared by every command.
type Options struct {
	ConfigPath  string
	Verbosity   int
	LogJSON     bool
	MetricsFile string
}

// Factory function variables - can be replaced in tests.
var (
	stdout io.Writer = os.Stdout

	newConnector = func(endpoint string) ec2.Connector {
		return ec2.SDKConnector{Endpoint: endpoint}
	}

	newArchive = func(ctx context.Context, cfg config.ArchiveConfig, creds ec2.Credentials) (keys.Archive, error) {
		client, err := s3.NewClient(ctx, s3.Options{
			Endpoint:        cfg.Endpoint,
			Region:          cfg.Region,
			Bucket:          cfg.Bucket,
			Prefix:          cfg.Prefix,
			AccessKeyID:     creds.AccessKeyID,
			SecretAccessKey: creds.SecretAccessKey,
			SessionToken:    creds.SessionToken,
			UsePathStyle:    cfg.Endpoint != "",
		})
		if err != nil {
			return nil, err
		}
		if err := client.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return client, nil
	}

	loadTimeouts = config.LoadTimeouts
)

// runtime bundles the components a command works with.
type runtime struct {
	opts     Options
	cfg      *config.Config
	timeouts *config.Timeouts
	logger   logr.Logger

	creds     ec2.Credentials
	connector ec2.Connector
	store     *store.SQLiteStore
	prober    *connectivity.Prober
	keys      *keys.Store

	registry *prometheus.Registry
	metrics  *provisioning.Metrics
}

// loadConfig reads the configuration file. Without an explicit path it
// falls back to ec2keeper.yaml in the working directory, then to
// defaults. Launch settings are only validated when a file is read.
func loadConfig(configPath string) (*config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}
	if _, err := os.Stat(defaultConfigFile); err == nil {
		return config.LoadFile(defaultConfigFile)
	}
	return config.Default(), nil
}

// credentialsFromEnv reads the cloud credentials of this invocation.
func credentialsFromEnv() ec2.Credentials {
	return ec2.Credentials{
		AccessKeyID:     os.Getenv(envAccessKeyID),
		SecretAccessKey: os.Getenv(envSecretAccessKey),
		SessionToken:    os.Getenv(envSessionToken),
	}
}

// newRuntime loads configuration and opens the state database.
func newRuntime(ctx context.Context, opts Options) (*runtime, error) {
	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.New(logging.Options{Verbosity: opts.Verbosity, JSON: opts.LogJSON})
	timeouts := loadTimeouts()

	st, err := store.Open(cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	rt := &runtime{
		opts:      opts,
		cfg:       cfg,
		timeouts:  timeouts,
		logger:    logger,
		creds:     credentialsFromEnv(),
		connector: newConnector(os.Getenv(envEC2Endpoint)),
		store:     st,
		registry:  prometheus.NewRegistry(),
	}
	rt.metrics = provisioning.NewMetrics(rt.registry)
	rt.prober = connectivity.NewProber(logger,
		connectivity.WithPingTimeout(timeouts.PingTimeout),
		connectivity.WithSSHPort(cfg.SSH.Port),
	)

	var archive keys.Archive
	if cfg.Archive.Enabled() {
		archive, err = newArchive(ctx, cfg.Archive, rt.creds)
		if err != nil {
			// The archive is a secondary copy; run without it.
			logger.Error(err, "key archive unavailable", "bucket", cfg.Archive.Bucket)
			archive = nil
		}
	}

	rt.keys = keys.NewStore(st, rt.connector, rt.prober, logger, keys.Options{
		Dir:            cfg.KeyDir,
		SSHUser:        cfg.SSH.User,
		CommandTimeout: timeouts.SSHCommandTimeout,
		Archive:        archive,
	})
	return rt, nil
}

// Close writes the metrics textfile, when requested, and closes the
// database.
func (r *runtime) Close() error {
	var errs []error
	if r.opts.MetricsFile != "" {
		if err := prometheus.WriteToTextfile(r.opts.MetricsFile, r.registry); err != nil {
			errs = append(errs, fmt.Errorf("failed to write metrics: %w", err))
		}
	}
	if err := r.store.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// closeRuntime closes rt, keeping the first error.
func closeRuntime(rt *runtime, err *error) {
	if cerr := rt.Close(); cerr != nil && *err == nil {
		*err = cerr
	}
}
