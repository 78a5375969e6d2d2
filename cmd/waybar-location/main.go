// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

//go:build linux

// Package main implements the waybar-location service.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wneessen/waybar-location/internal/config"
	"github.com/wneessen/waybar-location/internal/i18n"
	"github.com/wneessen/waybar-location/internal/logger"
	"github.com/wneessen/waybar-location/internal/service"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var confPath string
	cmd := &cobra.Command{
		Use:          "waybar-location",
		Short:        "Waybar module that shows where you are",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGABRT,
				os.Interrupt)
			defer cancel()
			return run(ctx, confPath)
		},
	}
	cmd.Flags().StringVarP(&confPath, "config", "c", "", "path to the config file")
	return cmd
}

func run(ctx context.Context, confPath string) error {
	log := logger.New(slog.LevelError)

	conf, err := loadConfig(confPath)
	if err != nil {
		log.Error("failed to load config", logger.Err(err))
		return err
	}

	log = logger.New(conf.LogLevel)
	t, err := i18n.New(conf.Locale)
	if err != nil {
		log.Error("failed to initialize localizer", logger.Err(err))
		return err
	}

	serv, err := service.New(conf, log, t)
	if err != nil {
		log.Error("failed to initialize waybar-location service", logger.Err(err))
		return err
	}

	log.Info("starting waybar-location service", slog.String("version", version),
		slog.String("commit", commit), slog.String("date", date))
	if err = serv.Run(ctx); err != nil {
		log.Error("failed to run waybar-location service", logger.Err(err))
		return err
	}
	log.Info("shutting down waybar-location service")
	return nil
}

// loadConfig reads the config from confPath, from the default location or, if neither exists,
// from the defaults and environment only.
func loadConfig(confPath string) (*config.Config, error) {
	if confPath != "" {
		return config.NewFromFile(filepath.Dir(confPath), filepath.Base(confPath))
	}
	if path, file := findConfigFile(); path != "" && file != "" {
		return config.NewFromFile(path, file)
	}
	return config.New()
}

func findConfigFile() (string, string) {
	homedir, err := os.UserHomeDir()
	if err != nil {
		return "", ""
	}
	exts := []string{"toml", "yaml", "yml", "json"}
	for _, ext := range exts {
		path := filepath.Join(homedir, ".config", "waybar-location", "config."+ext)
		if _, err = os.Stat(path); err == nil {
			return filepath.Dir(path), filepath.Base(path)
		}
	}
	return "", ""
}
