package domain

import "time"

// DetectedGoal is the outcome of a single scan of the gate.
type DetectedGoal uint8

const (
	GoalNone DetectedGoal = iota
	GoalHome
	GoalAway
)

func (g DetectedGoal) String() string {
	switch g {
	case GoalHome:
		return "Home"
	case GoalAway:
		return "Away"
	default:
		return "None"
	}
}

// Side identifies one of the two monitored goal mouths.
type Side uint8

const (
	SideHome Side = iota
	SideAway
)

func (s Side) String() string {
	if s == SideAway {
		return "AWAY"
	}
	return "HOME"
}

// Goal maps a side to the event it produces when triggered.
func (s Side) Goal() DetectedGoal {
	if s == SideAway {
		return GoalAway
	}
	return GoalHome
}

// Sides lists both sides in tie-break order.
var Sides = [...]Side{SideHome, SideAway}

// GoalEvent is what the scan loop hands to the notification queue.
type GoalEvent struct {
	Goal       DetectedGoal `json:"goal"`
	DetectedAt time.Time    `json:"detected_at"`
}

// Notification is a numbered, formatted goal ready for delivery.
type Notification struct {
	Seq        uint32       `json:"seq"`
	Goal       DetectedGoal `json:"goal"`
	DetectedAt time.Time    `json:"detected_at"`
	SentAt     time.Time    `json:"sent_at"`
	Text       string       `json:"text"`
}
