package dispatch

// Overall summarizes a fleet of outcomes.
type Overall string

const (
	AllSuccess     Overall = "all-success"
	PartialFailure Overall = "partial-failure"
	AllFailed      Overall = "all-failed"
)

// AggregateResult is the fleet-wide view of a dispatched command.
type AggregateResult struct {
	Overall    Overall   `json:"overall"`
	Total      int       `json:"total"`
	Successful int       `json:"successful"`
	Failed     int       `json:"failed"`
	Outcomes   []Outcome `json:"outcomes"`
}

// Aggregate folds per-target outcomes into a fleet result, reordering
// them to match the registry order regardless of completion order.
// Targets with no outcome are skipped.
func Aggregate(outcomes []Outcome, order []string) AggregateResult {
	byName := make(map[string]Outcome, len(outcomes))
	for _, o := range outcomes {
		byName[o.Target] = o
	}

	ordered := make([]Outcome, 0, len(outcomes))
	for _, name := range order {
		if o, ok := byName[name]; ok {
			ordered = append(ordered, o)
		}
	}

	result := AggregateResult{
		Total:    len(ordered),
		Outcomes: ordered,
	}
	for _, o := range ordered {
		if o.Status == StatusSuccess {
			result.Successful++
		} else {
			result.Failed++
		}
	}

	switch {
	case result.Total > 0 && result.Successful == result.Total:
		result.Overall = AllSuccess
	case result.Successful == 0:
		result.Overall = AllFailed
	default:
		result.Overall = PartialFailure
	}
	return result
}
