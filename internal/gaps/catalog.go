package gaps

// Capability is a catalog entry: a reasoning pattern the agent applies,
// how mechanically checkable it is, and what tooling it lacks.
type Capability struct {
	Name                string
	AutomationPotential float64
	Missing             []string
}

// DefaultCatalog is the fixed capability catalog. Its order is the
// tie-break for equal priorities.
var DefaultCatalog = []Capability{
	{
		Name:                "Gap Analysis",
		AutomationPotential: 0.7,
		Missing: []string{
			"Checklist generator for common missing items (tests, docs, error handling)",
			"Code analyzer to detect missing error paths",
			"API design validator (pagination, filtering, sorting)",
		},
	},
	{
		Name:                "Tradeoff Analysis",
		AutomationPotential: 0.3,
		Missing: []string{
			"Tradeoff template generator (pros/cons structure)",
			"Benchmark data fetcher (performance comparisons)",
			"Cost calculator for cloud services",
		},
	},
	{
		Name:                "Production Readiness",
		AutomationPotential: 0.9,
		Missing: []string{
			"Type checking for unchecked interface conversions",
			"Test coverage checker",
			"Documentation completeness checker",
			"Error handling validator",
		},
	},
	{
		Name:                "Brutal Accuracy",
		AutomationPotential: 0.1,
	},
	{
		Name:                "Multi-Dimensional Evaluation",
		AutomationPotential: 0.6,
		Missing: []string{
			"Evaluation criteria generator (dimensions to consider)",
			"Scoring template builder",
		},
	},
	{
		Name:                "Hint-Based Learning",
		AutomationPotential: 0.4,
		Missing: []string{
			"Debugging hint generator (common error patterns)",
			"Example trace generator",
		},
	},
	{
		Name:                "Diminishing Returns",
		AutomationPotential: 0.5,
		Missing: []string{
			"Code complexity estimator (Big-O analyzer)",
			"Performance impact calculator",
		},
	},
	{
		Name:                "Mechanistic Understanding",
		AutomationPotential: 0.2,
	},
	{
		Name:                "Context-Dependent Recommendations",
		AutomationPotential: 0.3,
		Missing: []string{
			"Context extractor (identify constraints from query)",
			"Recommendation template with context placeholders",
		},
	},
	{
		Name:                "Precision Policing",
		AutomationPotential: 0.6,
		Missing: []string{
			"Vague term detector (finds 'fast', 'slow', 'better')",
			"Specific alternative suggester",
		},
	},
}
