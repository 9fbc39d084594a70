package dataset

import (
	"fmt"

	"diapredict/ml"
)

// RowRule checks one training row and reports a problem. Rules only flag;
// rows are never mutated or dropped here, imputation stays with the scaler.
type RowRule interface {
	Name() string
	Severity() string
	Apply(row ml.TrainingRow) error
}

// QualityIssue is one flagged observation in a scanned dataset.
type QualityIssue struct {
	Rule     string `json:"rule"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Row      int    `json:"row"`
}

// ScanStats summarizes one quality scan.
type ScanStats struct {
	TotalRows int            `json:"total_rows"`
	Clean     int            `json:"clean"`
	Flagged   int            `json:"flagged"`
	Issues    map[string]int `json:"issues"`
}

// Scanner runs every rule over every row and collects the findings, so an
// operator sees what a training run is about to learn from.
type Scanner struct {
	rules []RowRule
}

// NewScanner builds a scanner with the default rule set: plausibility
// windows per measurement plus a reminder for zeros the scaler will impute.
func NewScanner() *Scanner {
	s := &Scanner{}
	for _, r := range defaultRangeRules() {
		s.AddRule(r)
	}
	s.AddRule(NewImputableZeroRule())
	return s
}

// AddRule appends a rule. Rules run in insertion order.
func (s *Scanner) AddRule(rule RowRule) {
	s.rules = append(s.rules, rule)
}

// Scan applies every rule to every row. A row with at least one finding
// counts as flagged; high-severity findings mark rows the operator should
// inspect before trusting a model trained on them.
func (s *Scanner) Scan(rows []ml.TrainingRow) ([]QualityIssue, ScanStats) {
	stats := ScanStats{
		TotalRows: len(rows),
		Issues:    make(map[string]int),
	}

	var issues []QualityIssue
	for i, row := range rows {
		flagged := false
		for _, rule := range s.rules {
			if err := rule.Apply(row); err != nil {
				issues = append(issues, QualityIssue{
					Rule:     rule.Name(),
					Severity: rule.Severity(),
					Message:  err.Error(),
					Row:      i,
				})
				stats.Issues[rule.Name()]++
				flagged = true
			}
		}
		if flagged {
			stats.Flagged++
		} else {
			stats.Clean++
		}
	}

	return issues, stats
}

// RangeRule flags a measurement outside its plausible physiological window.
type RangeRule struct {
	Field string
	Index int
	Min   float64
	Max   float64
}

func (r *RangeRule) Name() string {
	return r.Field + "_range"
}

func (r *RangeRule) Severity() string {
	return "high"
}

func (r *RangeRule) Apply(row ml.TrainingRow) error {
	v := row.Features.Vector()[r.Index]
	if v < r.Min || v > r.Max {
		return fmt.Errorf("%s %.2f outside [%.1f, %.1f]", r.Field, v, r.Min, r.Max)
	}
	return nil
}

// defaultRangeRules covers every contract field with a generous window; the
// point is catching unit mixups and export glitches, not outlier hunting.
func defaultRangeRules() []RowRule {
	bounds := []struct {
		min, max float64
	}{
		{0, 20},  // pregnancies
		{0, 300}, // glucose
		{0, 200}, // blood_pressure
		{0, 110}, // skin_thickness
		{0, 900}, // insulin
		{0, 70},  // bmi
		{0, 3},   // pedigree
		{0, 120}, // age
	}

	names := ml.FeatureNames()
	rules := make([]RowRule, len(names))
	for i, name := range names {
		rules[i] = &RangeRule{
			Field: name,
			Index: i,
			Min:   bounds[i].min,
			Max:   bounds[i].max,
		}
	}
	return rules
}

// ImputableZeroRule flags the zeros the scaler will treat as missing, so a
// dataset full of unmeasured insulin shows up in the scan instead of being
// silently median-filled.
type ImputableZeroRule struct {
	fields map[string]int
}

func NewImputableZeroRule() *ImputableZeroRule {
	fields := make(map[string]int)
	for i, name := range ml.FeatureNames() {
		fields[name] = i
	}
	rule := &ImputableZeroRule{fields: make(map[string]int)}
	for _, name := range ml.ZeroInvalidFields() {
		rule.fields[name] = fields[name]
	}
	return rule
}

func (r *ImputableZeroRule) Name() string {
	return "imputable_zero"
}

func (r *ImputableZeroRule) Severity() string {
	return "low"
}

func (r *ImputableZeroRule) Apply(row ml.TrainingRow) error {
	vector := row.Features.Vector()
	var zeroed []string
	for _, name := range ml.ZeroInvalidFields() {
		if vector[r.fields[name]] == 0 {
			zeroed = append(zeroed, name)
		}
	}
	if len(zeroed) > 0 {
		return fmt.Errorf("unmeasured fields will be imputed: %v", zeroed)
	}
	return nil
}
