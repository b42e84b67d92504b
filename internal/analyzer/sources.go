package analyzer

// Issue source names as recorded on candidates and merged issues.
const (
	SourceRules     = "rules"
	SourceHeuristic = "heuristic"
	SourceReconcile = "reconcile"
)
