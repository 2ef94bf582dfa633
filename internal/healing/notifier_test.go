// Copyright 2026 The apisentry Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package healing

import (
	"testing"
)

func TestStepNotifier_FanOutPerAttempt(t *testing.T) {
	n := NewStepNotifier()

	var a, b []int
	n.Subscribe("attempt-a", func(step Step) { a = append(a, step.StepNumber) })
	n.Subscribe("attempt-b", func(step Step) { b = append(b, step.StepNumber) })

	n.Notify(Step{AttemptID: "attempt-a", StepNumber: 1})
	n.Notify(Step{AttemptID: "attempt-a", StepNumber: 2})
	n.Notify(Step{AttemptID: "attempt-b", StepNumber: 1})

	if len(a) != 2 || a[0] != 1 || a[1] != 2 {
		t.Errorf("observer a saw %v, want [1 2]", a)
	}
	if len(b) != 1 || b[0] != 1 {
		t.Errorf("observer b saw %v, want [1]", b)
	}
}

func TestStepNotifier_Unsubscribe(t *testing.T) {
	n := NewStepNotifier()

	var got int
	sub := n.Subscribe("attempt-a", func(step Step) { got++ })
	keep := 0
	n.Subscribe("attempt-a", func(step Step) { keep++ })

	n.Notify(Step{AttemptID: "attempt-a", StepNumber: 1})
	sub.Unsubscribe()
	n.Notify(Step{AttemptID: "attempt-a", StepNumber: 2})

	if got != 1 {
		t.Errorf("unsubscribed observer saw %d notifications, want 1", got)
	}
	if keep != 2 {
		t.Errorf("remaining observer saw %d notifications, want 2", keep)
	}
}

func TestStepNotifier_Deregister(t *testing.T) {
	n := NewStepNotifier()

	var got int
	n.Subscribe("attempt-a", func(step Step) { got++ })
	n.Subscribe("attempt-a", func(step Step) { got++ })

	n.Deregister("attempt-a")
	n.Notify(Step{AttemptID: "attempt-a", StepNumber: 1})

	if got != 0 {
		t.Errorf("deregistered observers saw %d notifications, want 0", got)
	}
}

func TestStepNotifier_ObserverPanicIsContained(t *testing.T) {
	n := NewStepNotifier()

	n.Subscribe("attempt-a", func(step Step) { panic("observer bug") })
	var got int
	n.Subscribe("attempt-a", func(step Step) { got++ })

	n.Notify(Step{AttemptID: "attempt-a", StepNumber: 1})

	if got != 1 {
		t.Errorf("healthy observer saw %d notifications, want 1", got)
	}
}

func TestStepNotifier_NoObserversIsNoop(t *testing.T) {
	n := NewStepNotifier()
	n.Notify(Step{AttemptID: "unknown", StepNumber: 1})
	n.Deregister("unknown")
}
