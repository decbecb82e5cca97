// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

// Package process wires cobra commands to configuration, logging and
// signal-aware contexts.
package process

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"tempora.dev/tempora/internal/cfgstruct"
)

// Error is the class of process setup errors.
var Error = errs.Class("process")

// the environment prefix for all configuration values
const envPrefix = "tempora"

var (
	contextMtx sync.Mutex
	contexts   = map[*cobra.Command]context.Context{}
)

// Bind attaches the flags of a configuration struct to the command.
func Bind(cmd *cobra.Command, config any, opts ...cfgstruct.BindOpt) {
	cfgstruct.Bind(cmd.Flags(), config, opts...)
}

// Ctx returns the context for a command, creating one that is canceled on
// SIGINT or SIGTERM. A second signal terminates the process immediately.
func Ctx(cmd *cobra.Command) context.Context {
	contextMtx.Lock()
	defer contextMtx.Unlock()

	if ctx, ok := contexts[cmd]; ok {
		return ctx
	}

	ctx, cancel := context.WithCancel(context.Background())
	contexts[cmd] = ctx

	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-c
		zap.L().Info("got a signal from the os", zap.String("signal", sig.String()))
		cancel()
		sig = <-c
		zap.L().Warn("got a second signal, terminating", zap.String("signal", sig.String()))
		os.Exit(1)
	}()

	return ctx
}

// Exec runs a cobra command tree after hooking up configuration loading
// and logger construction around every RunE.
func Exec(cmd *cobra.Command) {
	cmd.SilenceUsage = true
	cmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)

	cleanup(cmd)
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func cleanup(cmd *cobra.Command) {
	for _, child := range cmd.Commands() {
		cleanup(child)
	}
	if cmd.RunE == nil {
		return
	}

	internalRun := cmd.RunE
	cmd.RunE = func(cmd *cobra.Command, args []string) (err error) {
		// a .env file is optional and feeds the TEMPORA_* environment
		_ = godotenv.Load()

		vip := viper.New()
		if err := vip.BindPFlags(cmd.Flags()); err != nil {
			return Error.Wrap(err)
		}
		vip.SetEnvPrefix(envPrefix)
		vip.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
		vip.AutomaticEnv()

		if confDir := findConfigDir(cmd); confDir != "" {
			configFile := filepath.Join(confDir, "config.yaml")
			if _, statErr := os.Stat(configFile); statErr == nil {
				vip.SetConfigFile(configFile)
				if err := vip.ReadInConfig(); err != nil {
					return Error.Wrap(err)
				}
			}
		}

		// apply configuration values onto flags the command line left alone,
		// so that the bound config structs observe them
		var brokenKeys []string
		for _, key := range vip.AllKeys() {
			f := cmd.Flags().Lookup(key)
			if f == nil || f.Changed {
				continue
			}
			value := vip.GetString(key)
			if f.Value.Type() == "stringSlice" {
				value = strings.Join(vip.GetStringSlice(key), ",")
			}
			if value == f.DefValue {
				continue
			}
			if err := cmd.Flags().Set(key, value); err != nil {
				brokenKeys = append(brokenKeys, key)
			}
		}
		if len(brokenKeys) > 0 {
			return Error.New("invalid configuration keys: %s", strings.Join(brokenKeys, ", "))
		}

		logger, err := NewLogger()
		if err != nil {
			return Error.Wrap(err)
		}
		defer func() { _ = logger.Sync() }()
		defer zap.ReplaceGlobals(logger)()
		defer zap.RedirectStdLog(logger)()

		err = internalRun(cmd, args)
		if err != nil {
			logger.Error("unrecoverable error", zap.Error(err))
		}
		return err
	}
}

// findConfigDir locates the config-dir flag on the command or any parent.
func findConfigDir(cmd *cobra.Command) string {
	if f := cmd.Flags().Lookup("config-dir"); f != nil {
		return f.Value.String()
	}
	if f := cmd.InheritedFlags().Lookup("config-dir"); f != nil {
		return f.Value.String()
	}
	return ""
}
