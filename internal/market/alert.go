package market

import "time"

// AlertKind names the rule that raised an alert.
type AlertKind string

const (
	ImpliedSpike    AlertKind = "implied_spike"
	UnderlyingSpike AlertKind = "underlying_spike"
	YieldDivergence AlertKind = "yield_divergence"
)

// AlertStatus is the review state of an alert.
type AlertStatus string

const (
	StatusNew       AlertStatus = "new"
	StatusReviewed  AlertStatus = "reviewed"
	StatusDismissed AlertStatus = "dismissed"
)

// Alert records a rate change beyond a threshold. ChangePercent is signed:
// negative values are drops.
type Alert struct {
	ID            string      `json:"id"`
	PoolID        string      `json:"pool_id"`
	Kind          AlertKind   `json:"alert_type"`
	PreviousValue float64     `json:"previous_value"`
	CurrentValue  float64     `json:"current_value"`
	ChangePercent float64     `json:"change_percent"`
	Analysis      *string     `json:"ai_analysis"`
	Sources       []string    `json:"sources"`
	Status        AlertStatus `json:"status"`
	CreatedAt     time.Time   `json:"created_at"`
	Pool          *Pool       `json:"pool,omitempty"`
}

// Label describes the alert for humans, including its direction.
func (a *Alert) Label() string {
	switch a.Kind {
	case YieldDivergence:
		return "Underlying APY above Implied APY"
	case ImpliedSpike:
		return Direction(a.Falling()) + " Implied APY (YT)"
	case UnderlyingSpike:
		return Direction(a.Falling()) + " Underlying APY"
	}
	return string(a.Kind)
}

// Falling reports whether the alerted value moved down. Underlying spikes
// store an unsigned change, so their direction comes from the values.
func (a *Alert) Falling() bool {
	if a.Kind == UnderlyingSpike {
		return a.CurrentValue < a.PreviousValue
	}
	return a.ChangePercent < 0
}

// Direction returns "Drop" for a falling value and "Rise" otherwise.
func Direction(falling bool) string {
	if falling {
		return "Drop"
	}
	return "Rise"
}
