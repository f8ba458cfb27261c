package domain

// PlanLocus names the operator family a plan signal is attributed to.
type PlanLocus string

const (
	LocusScan       PlanLocus = "scan"
	LocusFilter     PlanLocus = "filter"
	LocusJoin       PlanLocus = "join"
	LocusAggregate  PlanLocus = "aggregate"
	LocusProjection PlanLocus = "projection"
	LocusCTE        PlanLocus = "cte"
	LocusOther      PlanLocus = "other"
)

// ErrorDirection records which way the planner misjudged a node.
type ErrorDirection string

const (
	DirectionOver  ErrorDirection = "over"  // estimated > actual
	DirectionUnder ErrorDirection = "under" // estimated < actual
	DirectionZero  ErrorDirection = "zero"  // actual was zero; ratio undefined
)

// Severity buckets a q-error against fixed thresholds.
type Severity string

const (
	SeverityAccurate     Severity = "accurate"     // < 2
	SeverityMinor        Severity = "minor"        // [2, 10)
	SeverityModerate     Severity = "moderate"     // [10, 100)
	SeverityMajor        Severity = "major"        // [100, 10000)
	SeverityCatastrophic Severity = "catastrophic" // >= 10000
)

// PlanSignal is the structured cardinality-error summary for one DAG node,
// derived read-only from a single plan capture. Advisory: it feeds
// generator context and the workload router but never blocks generation.
type PlanSignal struct {
	NodeID        string
	Locus         PlanLocus
	EstimatedRows int64
	ActualRows    *int64 // nil when the capture had no actuals
	QError        float64
	Direction     ErrorDirection
	Severity      Severity
}
