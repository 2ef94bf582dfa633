// Copyright 2026 The apisentry Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package main provides the entry point for the apisentry server.
// The server runs registered API health probes, heals failures through the
// diagnose/plan/execute/verify pipeline, and exposes the attempt ledger over
// a management API with live step streaming.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/apisentry/apisentry/internal/api"
	"github.com/apisentry/apisentry/internal/buildinfo"
	"github.com/apisentry/apisentry/internal/catalog"
	"github.com/apisentry/apisentry/internal/config"
	"github.com/apisentry/apisentry/internal/healing"
	"github.com/apisentry/apisentry/internal/logging"
	"github.com/apisentry/apisentry/internal/probe"
	"github.com/apisentry/apisentry/internal/reasoning"
	"github.com/apisentry/apisentry/internal/remedy"
	"github.com/apisentry/apisentry/internal/store"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// init initializes the shared logger setup.
func init() {
	logging.SetupBaseLogger()
	buildinfo.Version = Version
	buildinfo.Commit = Commit
	buildinfo.BuildDate = BuildDate
}

func main() {
	var (
		configPath  = flag.String("config", "config.yaml", "path to the YAML configuration file")
		showVersion = flag.Bool("version", false, "print version information and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("apisentry %s (%s, built %s)\n", buildinfo.Version, buildinfo.Commit, buildinfo.BuildDate)
		return
	}

	// .env is optional; environment overrides apply either way.
	if err := godotenv.Load(); err == nil {
		log.Debug("loaded environment from .env")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	if err := logging.ConfigureLogOutput(cfg.LoggingToFile, cfg.LogDir); err != nil {
		log.Fatalf("failed to configure logging: %v", err)
	}

	log.Infof("apisentry %s starting", buildinfo.Version)

	ledger, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open healing ledger: %v", err)
	}
	defer func() {
		if errClose := ledger.Close(); errClose != nil {
			log.Errorf("failed to close healing ledger: %v", errClose)
		}
	}()

	reasoningClient := reasoning.NewClient(cfg.Reasoning)
	if reasoningClient.Available() {
		log.Infof("reasoning backend enabled (model: %s)", cfg.Reasoning.Model)
	} else {
		log.Info("reasoning backend not configured; deterministic classifiers only")
	}

	var backend remedy.Backend
	if cfg.Remedy.BaseURL != "" {
		backend = remedy.NewClient(cfg.Remedy.BaseURL, cfg.Remedy.APIToken, cfg.Remedy.AccountID, cfg.Remedy.Timeout())
		log.Info("remediation backend enabled")
	} else {
		log.Info("remediation backend not configured; fixes will be documented, not applied")
	}

	controller := healing.NewController(
		ledger,
		healing.NewDiagnoser(reasoningClient),
		healing.NewPlanner(catalog.New(cfg.Catalog)),
		healing.NewExecutor(backend),
		healing.NewVerifier(reasoningClient),
		cfg.Healing.MaxConcurrentAttempts,
	)

	runner := probe.NewRunner(cfg.Remedy.BaseURL, cfg.Remedy.APIToken, cfg.Remedy.Timeout())
	runner.RegisterFromConfig(cfg.Probes)
	log.Infof("registered %d probes", len(runner.Checks()))

	server := api.NewServer(cfg, controller, ledger, runner)
	if err := server.Run(); err != nil {
		log.Errorf("server exited: %v", err)
		os.Exit(1)
	}
}
