/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	bind           string
	db             string
	heartbeat      time.Duration
	identitySecret string
	identityTTL    time.Duration
	port           int
	prefix         string
	profile        bool
	queueTimeout   time.Duration
	sessionTimeout time.Duration
	sweep          time.Duration
	tlsCert        string
	tlsKey         string
	verbose        bool
	version        bool
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.heartbeat < time.Second {
		return fmt.Errorf("invalid heartbeat interval (must be at least 1s): %s", c.heartbeat)
	}
	if c.queueTimeout <= c.heartbeat {
		return fmt.Errorf("invalid queue timeout (must exceed heartbeat interval %s): %s", c.heartbeat, c.queueTimeout)
	}
	if c.sessionTimeout < time.Minute {
		return fmt.Errorf("invalid session timeout (must be at least 1m): %s", c.sessionTimeout)
	}
	if c.sweep < time.Second {
		return fmt.Errorf("invalid sweep interval (must be at least 1s): %s", c.sweep)
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("RAJARANI")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "rajarani",
		Short:         "A six-player Raja Rani guessing game, synchronized over websockets.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: RAJARANI_BIND)")
	fs.StringVar(&cfg.db, "db", "", "path to sqlite database file, empty for in-memory state (env: RAJARANI_DB)")
	fs.DurationVar(&cfg.heartbeat, "heartbeat", 15*time.Second, "presence refresh interval (env: RAJARANI_HEARTBEAT)")
	fs.StringVar(&cfg.identitySecret, "identity-secret", "", "HMAC secret for identity tokens, random per run if empty (env: RAJARANI_IDENTITY_SECRET)")
	fs.DurationVar(&cfg.identityTTL, "identity-ttl", 720*time.Hour, "lifetime of minted identity tokens (env: RAJARANI_IDENTITY_TTL)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: RAJARANI_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: RAJARANI_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: RAJARANI_PROFILE)")
	fs.DurationVar(&cfg.queueTimeout, "queue-timeout", time.Minute, "time before unrefreshed quick play entries go stale (env: RAJARANI_QUEUE_TIMEOUT)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", time.Hour, "time before idle sessions with nobody present are removed (env: RAJARANI_SESSION_TIMEOUT)")
	fs.DurationVar(&cfg.sweep, "sweep", 30*time.Second, "interval between quick play queue sweeps (env: RAJARANI_SWEEP)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: RAJARANI_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: RAJARANI_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: RAJARANI_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: RAJARANI_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("rajarani v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
