// Copyright 2026 The apisentry Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package api exposes the apisentry management API: probe execution, healing
// attempt history, and live step streaming.
package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/apisentry/apisentry/internal/api/handlers"
	"github.com/apisentry/apisentry/internal/buildinfo"
	"github.com/apisentry/apisentry/internal/config"
	"github.com/apisentry/apisentry/internal/healing"
	"github.com/apisentry/apisentry/internal/probe"
)

// Server is the HTTP front of the apisentry service.
type Server struct {
	cfg    *config.Config
	engine *gin.Engine
}

// NewServer builds the router over the healing controller, its ledger, and
// the probe runner.
func NewServer(cfg *config.Config, controller *healing.Controller, ledger healing.Ledger, runner *probe.Runner) *Server {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	h := handlers.NewHealingHandler(controller, ledger, runner)

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"version": buildinfo.Version,
			"commit":  buildinfo.Commit,
		})
	})

	v0 := engine.Group("/v0")
	{
		v0.POST("/healing/run", h.RunHealing)
		v0.GET("/healing/attempts", h.ListAttempts)
		v0.GET("/healing/attempts/:id", h.GetAttempt)
		v0.GET("/healing/attempts/:id/live", h.LiveSteps)
		v0.GET("/probes/run", h.RunProbes)
	}

	return &Server{cfg: cfg, engine: engine}
}

// Engine exposes the underlying router, mainly for tests.
func (s *Server) Engine() *gin.Engine { return s.engine }

// Run starts serving and blocks until the listener fails.
func (s *Server) Run() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	log.Infof("api: listening on %s", addr)
	return s.engine.Run(addr)
}
