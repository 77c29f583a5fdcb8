package policy

// Recommendation is the advisory text returned with every prediction
type Recommendation string

const (
	Immediate Recommendation = "Immediate irrigation recommended"
	Within24h Recommendation = "Consider irrigation in the next 24 hours"
	Monitor   Recommendation = "Monitor conditions closely"
	NoAction  Recommendation = "No immediate irrigation needed"
)

// Band lower bounds. A probability equal to a bound falls into the lower band.
const (
	ImmediateAbove = 0.8
	Within24hAbove = 0.6
	MonitorAbove   = 0.4
)

// Recommend maps a probability to its advisory band. NaN maps to NoAction.
func Recommend(p float64) Recommendation {
	switch {
	case p > ImmediateAbove:
		return Immediate
	case p > Within24hAbove:
		return Within24h
	case p > MonitorAbove:
		return Monitor
	default:
		return NoAction
	}
}

// Urgency orders recommendations, higher is more urgent
func (r Recommendation) Urgency() int {
	switch r {
	case Immediate:
		return 3
	case Within24h:
		return 2
	case Monitor:
		return 1
	default:
		return 0
	}
}

// Valid checks if the recommendation is one of the fixed bands
func (r Recommendation) Valid() bool {
	switch r {
	case Immediate, Within24h, Monitor, NoAction:
		return true
	}
	return false
}

// String returns string representation
func (r Recommendation) String() string {
	return string(r)
}
