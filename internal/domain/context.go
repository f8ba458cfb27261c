package domain

// RewriteExample is one (before, after, rationale) hint supplied by the
// caller's knowledge layer. The core neither computes nor stores these.
type RewriteExample struct {
	BeforeSQL string
	AfterSQL  string
	Rationale string
}

// GapHint describes a known optimizer gap and when it applies.
type GapHint struct {
	GapDescription     string
	ApplicabilitySignal string
}

// DagNodeSummary is the generator-facing digest of one DAG node.
type DagNodeSummary struct {
	ID           string
	Role         NodeRole
	Tables       []string
	Columns      []string
	IsCorrelated bool
}

// PlanSignalSummary is the generator-facing digest of one plan signal.
type PlanSignalSummary struct {
	NodeID    string
	Locus     PlanLocus
	QError    float64
	Direction ErrorDirection
	Severity  Severity
}

// GeneratorContext is the full input to one generator call. Serialization
// is caller-defined; the core only assembles the value.
type GeneratorContext struct {
	OriginalSQL string
	Nodes       []DagNodeSummary
	Signals     []PlanSignalSummary
	Target      string // natural-language description of the desired transform
	Examples    []RewriteExample
	Gaps        []GapHint
	History     *SortieHistory // set on synthesis requests only
	Feedback    string         // violated rule or observed delta on a retry
}
