// Package incident turns a stream of check outcomes into incidents.
package incident

import "github.com/hamed0406/uptimemonitor/internal/domain"

// NoEvent is returned by Transition when the state does not change.
const NoEvent domain.EventKind = ""

// State is Healthy when Down is false. While Down, Incident holds the open
// incident; its ID is empty until the store has accepted it.
type State struct {
	Down     bool
	Incident domain.Incident
}

// Transition is the pure up/down state machine. The incident starts at the
// first failing outcome and keeps that outcome's error; later failures do not
// touch it. It ends at the first succeeding outcome.
func Transition(s State, o domain.CheckOutcome) (State, domain.EventKind) {
	switch {
	case !s.Down && o.Success:
		return s, NoEvent
	case !s.Down && !o.Success:
		return State{
			Down: true,
			Incident: domain.Incident{
				TargetID:  o.TargetID,
				StartedAt: o.CheckedAt,
				Error:     o.Error,
			},
		}, domain.EventOpened
	case s.Down && !o.Success:
		return s, NoEvent
	default:
		inc := s.Incident
		end := o.CheckedAt
		inc.EndedAt = &end
		inc.Resolved = true
		return State{Incident: inc}, domain.EventResolved
	}
}
