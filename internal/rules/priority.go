package rules

// Priority levels as used by ntfy.
const (
	PriorityMin     = 1
	PriorityLow     = 2
	PriorityDefault = 3
	PriorityHigh    = 4
	PriorityUrgent  = 5
)

var priorityLabels = map[int]string{
	PriorityMin:     "Min",
	PriorityLow:     "Low",
	PriorityDefault: "Default",
	PriorityHigh:    "High",
	PriorityUrgent:  "Urgent",
}

// ValidPriority reports whether p is within 1..5.
func ValidPriority(p int) bool {
	return p >= PriorityMin && p <= PriorityUrgent
}

// PriorityLabel maps 1..5 to Min, Low, Default, High, Urgent.
// Anything else is shown as Default.
func PriorityLabel(p int) string {
	if label, ok := priorityLabels[p]; ok {
		return label
	}
	return priorityLabels[PriorityDefault]
}

// PriorityClass returns the style class the console renders for p.
func PriorityClass(p int) string {
	switch PriorityLabel(p) {
	case "Min":
		return "priority-min"
	case "Low":
		return "priority-low"
	case "High":
		return "priority-high"
	case "Urgent":
		return "priority-urgent"
	default:
		return "priority-default"
	}
}

// SeverityPriority maps an event severity to the ntfy priority used when
// the event is pushed.
func SeverityPriority(severity string) int {
	switch severity {
	case SeverityCritical:
		return PriorityUrgent
	case SeverityWarning:
		return PriorityHigh
	default:
		return PriorityDefault
	}
}
