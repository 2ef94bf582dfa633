// Copyright 2026 The apisentry Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/apisentry/apisentry/internal/healing"
)

var liveUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The management API is same-origin or trusted-tooling only.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	liveWriteTimeout = 10 * time.Second
	// liveIdleTimeout closes a stream that has seen no step for this long.
	liveIdleTimeout = 5 * time.Minute
)

// LiveSteps handles GET /v0/healing/attempts/:id/live.
// It upgrades to a websocket, replays the steps already persisted for the
// attempt, then streams each new step recording as it is produced. The
// stream closes after the attempt's terminal step or when the client
// disconnects.
func (h *HealingHandler) LiveSteps(c *gin.Context) {
	attemptID := c.Param("id")

	conn, err := liveUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Errorf("live: websocket upgrade failed: %v", err)
		return
	}
	defer func() {
		if errClose := conn.Close(); errClose != nil {
			log.Debugf("live: close connection error: %v", errClose)
		}
	}()

	// Subscribe before replaying so recordings between replay and subscribe
	// are not lost; duplicates are filtered below.
	updates := make(chan healing.Step, 64)
	sub := h.controller.Notifier().Subscribe(attemptID, func(step healing.Step) {
		select {
		case updates <- step:
		default:
			log.Warnf("live: update buffer full for attempt %s, dropping step %d", attemptID, step.StepNumber)
		}
	})
	defer sub.Unsubscribe()

	type recording struct {
		number int
		status healing.StepStatus
	}
	seen := make(map[recording]bool)

	send := func(step healing.Step) bool {
		key := recording{number: step.StepNumber, status: step.Status}
		if seen[key] {
			return true
		}
		seen[key] = true

		payload, err := json.Marshal(step)
		if err != nil {
			log.Errorf("live: marshal step: %v", err)
			return true
		}
		_ = conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return false
		}
		return true
	}

	// Replay persisted steps; an unknown attempt id just replays nothing and
	// waits for recordings.
	persisted, err := h.ledger.ListSteps(c.Request.Context(), attemptID)
	if err != nil {
		log.Warnf("live: replay failed for attempt %s: %v", attemptID, err)
	}
	lastTerminal := false
	for _, step := range persisted {
		if !send(*step) {
			return
		}
		lastTerminal = isTerminalStep(*step)
	}
	if lastTerminal {
		return
	}

	// Surface client disconnects; no inbound messages are expected.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	idle := time.NewTimer(liveIdleTimeout)
	defer idle.Stop()
	for {
		select {
		case step := <-updates:
			if !send(step) {
				return
			}
			if isTerminalStep(step) {
				return
			}
			if !idle.Stop() {
				<-idle.C
			}
			idle.Reset(liveIdleTimeout)
		case <-done:
			return
		case <-idle.C:
			return
		}
	}
}

// isTerminalStep reports whether a recording ends the stream: the
// verification step reaching a terminal status is the pipeline's last
// transition, and a failed analysis step is a recorded pipeline fault.
func isTerminalStep(step healing.Step) bool {
	if step.Kind == healing.StepVerification && (step.Status == healing.StepCompleted || step.Status == healing.StepFailed) {
		return true
	}
	return step.Kind == healing.StepAnalysis && step.Status == healing.StepFailed
}
