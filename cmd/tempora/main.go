// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"tempora.dev/tempora/arcade"
	"tempora.dev/tempora/arcade/arcadedb"
	"tempora.dev/tempora/internal/cfgstruct"
	"tempora.dev/tempora/internal/process"
	"tempora.dev/tempora/internal/version"
)

var (
	rootCmd = &cobra.Command{
		Use:   "tempora",
		Short: "Tempora game server",
	}
	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the game server",
		RunE:  cmdRun,
	}
	setupCmd = &cobra.Command{
		Use:         "setup",
		Short:       "Create a config file with defaults",
		RunE:        cmdSetup,
		Annotations: map[string]string{"type": "setup"},
	}
	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema, then exit",
		RunE:  cmdMigrate,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE:  cmdVersion,
	}

	runCfg   arcade.Config
	setupCfg arcade.Config

	confDir string
)

func init() {
	defaults := cfgstruct.DefaultsFlag(rootCmd)
	cfgstruct.SetupFlag(zap.L(), rootCmd, &confDir, "config-dir", "config",
		"main directory for tempora configuration")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd)

	process.Bind(runCmd, &runCfg, defaults, cfgstruct.ConfDir(confDir))
	process.Bind(migrateCmd, &runCfg, defaults, cfgstruct.ConfDir(confDir))
	process.Bind(setupCmd, &setupCfg, defaults, cfgstruct.ConfDir(confDir))
}

func cmdRun(cmd *cobra.Command, args []string) (err error) {
	ctx := process.Ctx(cmd)
	log := zap.L()

	db, err := arcadedb.Open(ctx, log.Named("db"), runCfg.Database)
	if err != nil {
		return errs.New("error opening database: %+v", err)
	}
	defer func() { err = errs.Combine(err, db.Close()) }()

	peer, err := arcade.New(ctx, log, db, runCfg)
	if err != nil {
		return err
	}

	runError := peer.Run(ctx)
	closeError := peer.Close()
	return errs.Combine(runError, closeError)
}

func cmdMigrate(cmd *cobra.Command, args []string) (err error) {
	ctx := process.Ctx(cmd)
	log := zap.L()

	db, err := arcadedb.Open(ctx, log.Named("db"), runCfg.Database)
	if err != nil {
		return errs.New("error opening database: %+v", err)
	}
	defer func() { err = errs.Combine(err, db.Close()) }()

	err = db.CreateTables(ctx)
	if err == nil {
		log.Info("database schema is up to date")
	}
	return err
}

func cmdVersion(cmd *cobra.Command, args []string) error {
	fmt.Println(version.Build.String())
	return nil
}

func cmdSetup(cmd *cobra.Command, args []string) (err error) {
	setupDir, err := filepath.Abs(confDir)
	if err != nil {
		return err
	}

	configFile := filepath.Join(setupDir, "config.yaml")
	if _, err := os.Stat(configFile); err == nil {
		return errs.New("configuration already exists (%v)", configFile)
	}

	if err := os.MkdirAll(setupDir, 0700); err != nil {
		return err
	}
	return process.SaveConfigWithAllDefaults(cmd, configFile, nil)
}

func main() {
	process.Exec(rootCmd)
}
