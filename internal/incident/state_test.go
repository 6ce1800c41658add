package incident

import (
	"testing"
	"time"

	"github.com/hamed0406/uptimemonitor/internal/domain"
)

func outcome(at time.Time, ok bool, msg string) domain.CheckOutcome {
	return domain.CheckOutcome{TargetID: "t", CheckedAt: at, Success: ok, Error: msg}
}

func TestTransition_Table(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	down := State{Down: true, Incident: domain.Incident{ID: "i", TargetID: "t", StartedAt: t0, Error: "first"}}

	cases := []struct {
		name     string
		in       State
		o        domain.CheckOutcome
		wantDown bool
		wantKind domain.EventKind
	}{
		{"healthy stays healthy", State{}, outcome(t0, true, ""), false, NoEvent},
		{"healthy opens", State{}, outcome(t0, false, "boom"), true, domain.EventOpened},
		{"down stays down", down, outcome(t0.Add(time.Minute), false, "later"), true, NoEvent},
		{"down resolves", down, outcome(t0.Add(2*time.Minute), true, ""), false, domain.EventResolved},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, kind := Transition(tc.in, tc.o)
			if got.Down != tc.wantDown || kind != tc.wantKind {
				t.Fatalf("got down=%v kind=%q, want down=%v kind=%q", got.Down, kind, tc.wantDown, tc.wantKind)
			}
		})
	}
}

func TestTransition_FirstTimestampFirstError(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s, _ := Transition(State{}, outcome(t0, false, "first"))
	s, _ = Transition(s, outcome(t0.Add(time.Minute), false, "second"))
	s, _ = Transition(s, outcome(t0.Add(2*time.Minute), false, "third"))
	if !s.Incident.StartedAt.Equal(t0) || s.Incident.Error != "first" {
		t.Fatalf("incident should keep first failure: %+v", s.Incident)
	}

	s, kind := Transition(s, outcome(t0.Add(3*time.Minute), true, ""))
	if kind != domain.EventResolved || s.Incident.EndedAt == nil || !s.Incident.EndedAt.Equal(t0.Add(3*time.Minute)) {
		t.Fatalf("unexpected resolve: kind=%q %+v", kind, s.Incident)
	}
	if !s.Incident.Resolved || s.Incident.Error != "first" {
		t.Fatalf("resolved incident lost its cause: %+v", s.Incident)
	}
}
