// Copyright 2026 The apisentry Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package healing

import (
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// StepObserver receives each step recording for one attempt as it happens.
type StepObserver func(step Step)

// Subscription is a handle for a registered step observer.
type Subscription struct {
	ID          string
	AttemptID   string
	Callback    StepObserver
	Unsubscribe func()
}

// StepNotifier fans out step recordings to observers registered per attempt
// id. It is owned by the controller, not process-wide state; the controller
// drops an attempt's observers once the attempt reaches a terminal state.
type StepNotifier struct {
	mu        sync.RWMutex
	observers map[string][]*Subscription
}

// NewStepNotifier creates an empty notifier.
func NewStepNotifier() *StepNotifier {
	return &StepNotifier{observers: make(map[string][]*Subscription)}
}

// Subscribe registers an observer for the given attempt id and returns its
// handle. Subscribing before the attempt exists is allowed; the observer then
// receives every step from the first recording on.
func (n *StepNotifier) Subscribe(attemptID string, obs StepObserver) *Subscription {
	sub := &Subscription{
		ID:        uuid.NewString(),
		AttemptID: attemptID,
		Callback:  obs,
	}
	sub.Unsubscribe = func() {
		n.unsubscribe(sub)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.observers[attemptID] = append(n.observers[attemptID], sub)
	return sub
}

func (n *StepNotifier) unsubscribe(sub *Subscription) {
	n.mu.Lock()
	defer n.mu.Unlock()

	subs := n.observers[sub.AttemptID]
	for i, s := range subs {
		if s.ID == sub.ID {
			n.observers[sub.AttemptID] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(n.observers[sub.AttemptID]) == 0 {
		delete(n.observers, sub.AttemptID)
	}
}

// Deregister drops all observers for the given attempt id.
func (n *StepNotifier) Deregister(attemptID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.observers, attemptID)
}

// Notify delivers a step recording to the attempt's observers. Observer
// panics are contained so a misbehaving consumer cannot fault the pipeline.
// No ordering is guaranteed across different attempts.
func (n *StepNotifier) Notify(step Step) {
	n.mu.RLock()
	subs := n.observers[step.AttemptID]
	active := make([]*Subscription, len(subs))
	copy(active, subs)
	n.mu.RUnlock()

	for _, sub := range active {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Errorf("notifier: panic in step observer for attempt %s: %v", step.AttemptID, r)
				}
			}()
			sub.Callback(step)
		}()
	}
}
