package collector

import "testing"

func TestDetectTransitionFirstReading(t *testing.T) {
	tests := []struct {
		name      string
		watts     float64
		wantTr    Transition
		wantState PowerState
	}{
		{"above threshold", 600, TransitionOn, PowerOn},
		{"below threshold", 0.2, TransitionOff, PowerOff},
		{"exactly threshold", 1, TransitionOff, PowerOff},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, state := DetectTransition(PowerUnknown, tt.watts, 1)
			if tr != tt.wantTr {
				t.Errorf("transition = %q, want %q", tr, tt.wantTr)
			}
			if state != tt.wantState {
				t.Errorf("state = %v, want %v", state, tt.wantState)
			}
		})
	}
}

func TestDetectTransitionCrossings(t *testing.T) {
	tests := []struct {
		name      string
		prev      PowerState
		watts     float64
		wantTr    Transition
		wantState PowerState
	}{
		{"on stays on", PowerOn, 500, TransitionNone, PowerOn},
		{"on drops off", PowerOn, 0.5, TransitionOff, PowerOff},
		{"off stays off", PowerOff, 0.5, TransitionNone, PowerOff},
		{"off rises on", PowerOff, 500, TransitionOn, PowerOn},
		{"on at threshold holds", PowerOn, 1, TransitionNone, PowerOn},
		{"off at threshold holds", PowerOff, 1, TransitionNone, PowerOff},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, state := DetectTransition(tt.prev, tt.watts, 1)
			if tr != tt.wantTr {
				t.Errorf("transition = %q, want %q", tr, tt.wantTr)
			}
			if state != tt.wantState {
				t.Errorf("state = %v, want %v", state, tt.wantState)
			}
		})
	}
}

// A stream of readings never emits two consecutive identical transitions.
func TestDetectTransitionNoDuplicates(t *testing.T) {
	readings := []float64{500, 480, 0.3, 0.1, 700, 650, 0.2}

	state := PowerUnknown
	var last Transition
	for i, watts := range readings {
		tr, next := DetectTransition(state, watts, 1)
		if tr != TransitionNone {
			if tr == last {
				t.Fatalf("reading %d: duplicate %q transition", i, tr)
			}
			last = tr
		}
		state = next
	}
}
