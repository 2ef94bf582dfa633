// Copyright 2026 The apisentry Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package healing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Controller drives the diagnose/plan/execute/verify pipeline for each failed
// probe, owning attempt state transitions and step numbering. Attempts within
// a batch are independent; a fault in one never aborts its siblings.
type Controller struct {
	ledger    Ledger
	notifier  *StepNotifier
	diagnoser *Diagnoser
	planner   *Planner
	executor  *Executor
	verifier  *Verifier

	maxConcurrent int
}

// NewController wires the pipeline components together. maxConcurrent bounds
// how many attempts of one batch run in parallel; values below 1 mean serial.
func NewController(ledger Ledger, diagnoser *Diagnoser, planner *Planner, executor *Executor, verifier *Verifier, maxConcurrent int) *Controller {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Controller{
		ledger:        ledger,
		notifier:      NewStepNotifier(),
		diagnoser:     diagnoser,
		planner:       planner,
		executor:      executor,
		verifier:      verifier,
		maxConcurrent: maxConcurrent,
	}
}

// Notifier exposes the controller-owned step observer registry.
func (c *Controller) Notifier() *StepNotifier { return c.notifier }

// HealBatch processes every failed probe of a batch and returns one Result
// per input, in input order. Errors are encoded in the results, never raised.
func (c *Controller) HealBatch(ctx context.Context, probes []FailedProbe) []Result {
	results := make([]Result, len(probes))

	var wg sync.WaitGroup
	sem := make(chan struct{}, c.maxConcurrent)
	for i, p := range probes {
		wg.Add(1)
		go func(i int, p FailedProbe) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = c.HealOne(ctx, p)
		}(i, p)
	}
	wg.Wait()

	return results
}

// HealOne runs the full pipeline for a single failed probe. It always returns
// a well-formed Result; pipeline faults finalize the attempt as failed and
// surface in the result's error message.
func (c *Controller) HealOne(ctx context.Context, p FailedProbe) Result {
	attempt := &Attempt{
		ID:         uuid.NewString(),
		RunGroupID: p.RunGroupID,
		ProbeID:    p.TestID,
		Status:     AttemptPending,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}

	if err := c.ledger.CreateAttempt(ctx, attempt); err != nil {
		log.WithField("attempt_id", attempt.ID).Errorf("healing: create attempt failed: %v", err)
		return Result{
			AttemptID:    attempt.ID,
			RunGroupID:   p.RunGroupID,
			ProbeID:      p.TestID,
			Status:       AttemptFailed,
			ErrorMessage: fmt.Sprintf("persist attempt: %v", err),
		}
	}
	defer c.notifier.Deregister(attempt.ID)

	run := &attemptRun{controller: c, attempt: attempt}
	result, fault := run.execute(ctx, p)
	if fault != nil {
		run.finalizeFault(ctx, fault)
		result = Result{
			AttemptID:    attempt.ID,
			RunGroupID:   p.RunGroupID,
			ProbeID:      p.TestID,
			Status:       AttemptFailed,
			ErrorMessage: fault.Error(),
		}
	}
	return result
}

// attemptRun owns step numbering for one attempt; steps are strictly
// sequential within a run, so no locking is needed.
type attemptRun struct {
	controller *Controller
	attempt    *Attempt
	stepNumber int
}

// execute drives the five-step pipeline. The returned error is a pipeline
// fault (persistence or internal), not a handled remediation failure.
func (r *attemptRun) execute(ctx context.Context, p FailedProbe) (result Result, fault error) {
	defer func() {
		if rec := recover(); rec != nil {
			fault = fmt.Errorf("pipeline panic: %v", rec)
		}
	}()

	c := r.controller

	// Step 1: describe the raw failure.
	failureDesc := fmt.Sprintf("Probe %q failed: %s %s returned %d %s",
		p.TestName, p.Method, p.Endpoint, p.StatusCode, p.StatusText)
	if p.ErrorMessage != "" {
		failureDesc += ": " + p.ErrorMessage
	}
	step, err := r.begin(ctx, StepThinking, "Examining probe failure", failureDesc)
	if err != nil {
		return Result{}, err
	}
	if err := r.finish(ctx, step, StepCompleted, failureDesc, "", nil); err != nil {
		return Result{}, err
	}

	// Step 2: diagnose.
	step, err = r.begin(ctx, StepAnalysis, "Diagnosing root cause", "Classifying the failure by status code and error signature")
	if err != nil {
		return Result{}, err
	}
	diag := c.diagnoser.Diagnose(ctx, p)
	if err := r.finish(ctx, step, StepCompleted, diag.Analysis, "", map[string]any{
		"category":     string(diag.Category),
		"auto_fixable": diag.AutoFixable,
	}); err != nil {
		return Result{}, err
	}
	r.attempt.Diagnosis = &diag
	if err := r.persistAttempt(ctx); err != nil {
		return Result{}, err
	}

	// Step 3: plan. The attempt moves to in_progress once an action is chosen.
	step, err = r.begin(ctx, StepDecision, "Selecting remediation", "Mapping the diagnosis to a remediation strategy")
	if err != nil {
		return Result{}, err
	}
	plan := c.planner.Plan(diag, p)
	if err := r.finish(ctx, step, StepCompleted, plan.Description, string(plan.Kind), nil); err != nil {
		return Result{}, err
	}
	r.attempt.Plan = &plan
	r.attempt.Status = AttemptInProgress
	if err := r.persistAttempt(ctx); err != nil {
		return Result{}, err
	}

	// Step 4: act.
	step, err = r.begin(ctx, StepAction, "Executing remediation", plan.Description)
	if err != nil {
		return Result{}, err
	}
	outcome := c.executor.Execute(ctx, plan)
	stepStatus := StepCompleted
	content := describeOutcome(outcome)
	if outcome.Status == OutcomeFailed {
		stepStatus = StepFailed
	}
	if err := r.finish(ctx, step, stepStatus, content, "", nil); err != nil {
		return Result{}, err
	}
	r.attempt.Outcome = &outcome
	if err := r.persistAttempt(ctx); err != nil {
		return Result{}, err
	}

	// Step 5: verify. The final step's status mirrors the terminal attempt
	// status.
	step, err = r.begin(ctx, StepVerification, "Verifying effectiveness", "Judging whether the remediation resolved the failure")
	if err != nil {
		return Result{}, err
	}
	eff := c.verifier.Verify(ctx, p, outcome)
	finalStepStatus := StepCompleted
	finalStatus := AttemptSuccess
	if outcome.Status == OutcomeFailed {
		finalStepStatus = StepFailed
		finalStatus = AttemptFailed
	}
	if err := r.finish(ctx, step, finalStepStatus, eff.Analysis, "", nil); err != nil {
		return Result{}, err
	}

	r.attempt.Effectiveness = &eff
	r.attempt.Status = finalStatus
	if finalStatus == AttemptFailed {
		r.attempt.ErrorMessage = outcome.ErrorMessage
	}
	if err := r.persistAttempt(ctx); err != nil {
		return Result{}, err
	}

	log.WithField("attempt_id", r.attempt.ID).Infof("healing attempt finalized as %s (probe %q)", finalStatus, p.TestName)

	return Result{
		AttemptID:          r.attempt.ID,
		RunGroupID:         p.RunGroupID,
		ProbeID:            p.TestID,
		DiagnosisAnalysis:  diag.Analysis,
		Recommendation:     diag.Recommendation,
		ActionKind:         plan.Kind,
		ActionDescription:  plan.Description,
		Status:             finalStatus,
		ErrorMessage:       outcome.ErrorMessage,
		Verification:       outcome.Verification,
		EffectivenessNotes: eff.Analysis,
		ManualSteps:        eff.ManualSteps,
	}, nil
}

// begin records the next step as in_progress. The recording is persisted and
// broadcast before the pipeline proceeds.
func (r *attemptRun) begin(ctx context.Context, kind StepKind, title, content string) (Step, error) {
	r.stepNumber++
	step := Step{
		AttemptID:  r.attempt.ID,
		StepNumber: r.stepNumber,
		Kind:       kind,
		Title:      title,
		Content:    content,
		Status:     StepInProgress,
		CreatedAt:  time.Now().UTC(),
	}
	if err := r.record(ctx, step); err != nil {
		// The number was never recorded; release it so a fault step does not
		// leave a gap in the sequence.
		r.stepNumber--
		return Step{}, err
	}
	return step, nil
}

// finish re-records a step under its number with a terminal status. Both
// recordings stay distinguishable: the intent reaches observers and the
// ledger keeps first/last recording timestamps.
func (r *attemptRun) finish(ctx context.Context, step Step, status StepStatus, content, decision string, metadata map[string]any) error {
	step.Status = status
	if content != "" {
		step.Content = content
	}
	step.Decision = decision
	step.Metadata = metadata
	return r.record(ctx, step)
}

func (r *attemptRun) record(ctx context.Context, step Step) error {
	if err := r.controller.ledger.RecordStep(ctx, &step); err != nil {
		return fmt.Errorf("persist step %d: %w", step.StepNumber, err)
	}
	r.controller.notifier.Notify(step)
	return nil
}

// persistAttempt writes the attempt's current state.
func (r *attemptRun) persistAttempt(ctx context.Context) error {
	r.attempt.UpdatedAt = time.Now().UTC()
	if err := r.controller.ledger.UpdateAttempt(ctx, r.attempt); err != nil {
		return fmt.Errorf("persist attempt: %w", err)
	}
	return nil
}

// finalizeFault records a pipeline fault as a final failed analysis step and
// finalizes the attempt as failed. Persistence here is best-effort: the fault
// being recorded may itself be a persistence fault.
func (r *attemptRun) finalizeFault(ctx context.Context, fault error) {
	log.WithField("attempt_id", r.attempt.ID).Errorf("healing: pipeline fault: %v", fault)

	r.stepNumber++
	step := Step{
		AttemptID:  r.attempt.ID,
		StepNumber: r.stepNumber,
		Kind:       StepAnalysis,
		Title:      "Pipeline fault",
		Content:    fault.Error(),
		Status:     StepFailed,
		CreatedAt:  time.Now().UTC(),
	}
	if err := r.controller.ledger.RecordStep(ctx, &step); err != nil {
		log.WithField("attempt_id", r.attempt.ID).Errorf("healing: could not record fault step: %v", err)
	}
	r.controller.notifier.Notify(step)

	r.attempt.Status = AttemptFailed
	r.attempt.ErrorMessage = fault.Error()
	r.attempt.UpdatedAt = time.Now().UTC()
	if err := r.controller.ledger.UpdateAttempt(ctx, r.attempt); err != nil {
		log.WithField("attempt_id", r.attempt.ID).Errorf("healing: could not finalize faulted attempt: %v", err)
	}
}

// describeOutcome renders an outcome for the ledger.
func describeOutcome(outcome ActionOutcome) string {
	if outcome.Status == OutcomeFailed {
		return "Remediation failed: " + outcome.ErrorMessage
	}
	if outcome.Verification == nil {
		return "Remediation completed"
	}
	switch outcome.Verification.Kind {
	case DetailTokenProvisioned:
		d := outcome.Verification.TokenProvisioned
		return fmt.Sprintf("Issued replacement credential %q scoped to %d permission(s)", d.TokenName, len(d.Permissions))
	case DetailFixDocumented:
		return "Documented the required fix; automatic application was not possible: " + outcome.Verification.FixDocumented.Reason
	case DetailBodyAnalyzed:
		return outcome.Verification.BodyAnalyzed.Note
	case DetailAnalyzed:
		return outcome.Verification.Analyzed.Summary
	default:
		return "Remediation completed"
	}
}
