// Package pipeline implements the staged compliance-assessment pipeline:
// asset identification, criteria selection, and vulnerability assessment,
// each an AI-backed transformation with a fixed output contract enforced
// by a per-stage validator.
package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Stage identifies one AI-backed transformation step.
type Stage int

const (
	StageAsset Stage = iota + 1
	StageCriteria
	StageAssessment
)

func (s Stage) String() string {
	switch s {
	case StageAsset:
		return "stage1_asset_identification"
	case StageCriteria:
		return "stage2_criteria_selection"
	case StageAssessment:
		return "stage3_assessment"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// State is the pipeline controller state. Transitions run strictly forward;
// any unrecoverable stage error moves to StateFailed and the run ends.
type State int

const (
	StateStage1 State = iota
	StateStage2
	StateStage3
	StateAssembled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStage1:
		return "stage1"
	case StateStage2:
		return "stage2"
	case StateStage3:
		return "stage3"
	case StateAssembled:
		return "assembled"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Confidence is either a numeric score in [0,1] or one of the labels
// low/medium/high. Model output uses both forms interchangeably; the
// validator normalizes labels to lowercase and keeps numbers as-is.
type Confidence struct {
	Numeric float64
	Label   string
	IsNum   bool
}

func (c Confidence) String() string {
	if c.IsNum {
		return fmt.Sprintf("%.2f", c.Numeric)
	}
	return c.Label
}

// MarshalJSON writes the confidence back in the form it arrived in.
func (c Confidence) MarshalJSON() ([]byte, error) {
	if c.IsNum {
		return json.Marshal(c.Numeric)
	}
	return json.Marshal(c.Label)
}

// UnmarshalJSON accepts a JSON number or string without validating range
// or vocabulary; that is the validator's job.
func (c *Confidence) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*c = Confidence{Numeric: n, IsNum: true}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("confidence must be a number or string: %w", err)
	}
	*c = Confidence{Label: strings.ToLower(strings.TrimSpace(s))}
	return nil
}

// AssetInfo is the stage 1 result: what the device is. Produced once per
// run and immutable afterward.
type AssetInfo struct {
	Vendor     string     `json:"device_vendor"`
	Model      string     `json:"device_model"`
	OSType     string     `json:"os_type"`
	OSVersion  string     `json:"os_version"`
	Role       string     `json:"device_role"`
	Hostname   string     `json:"hostname"`
	Confidence Confidence `json:"confidence"`
}

// Category is the compliance category of a check.
type Category string

const (
	CategoryAccountManagement Category = "account_management"
	CategoryAccessControl     Category = "access_control"
	CategoryLoggingAudit      Category = "logging_audit"
	CategoryNetworkSecurity   Category = "network_security"
	CategoryEncryption        Category = "encryption"
	CategoryPatchManagement   Category = "patch_management"
	CategoryServiceHardening  Category = "service_hardening"
)

// Categories is the fixed set of valid check categories.
var Categories = map[Category]bool{
	CategoryAccountManagement: true,
	CategoryAccessControl:     true,
	CategoryLoggingAudit:      true,
	CategoryNetworkSecurity:   true,
	CategoryEncryption:        true,
	CategoryPatchManagement:   true,
	CategoryServiceHardening:  true,
}

// Severity ranks how serious a finding against a check is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Severities is the fixed set of valid check severities.
var Severities = map[Severity]bool{
	SeverityCritical: true,
	SeverityHigh:     true,
	SeverityMedium:   true,
	SeverityLow:      true,
}

// ComplianceCheck is one criterion the device is assessed against.
type ComplianceCheck struct {
	CheckID             string   `json:"check_id"`
	Category            Category `json:"category"`
	Title               string   `json:"title"`
	Description         string   `json:"description"`
	Severity            Severity `json:"severity"`
	CheckCommand        string   `json:"check_command"`
	ExpectedPattern     string   `json:"expected_pattern"`
	CompliantExample    string   `json:"compliant_example"`
	NonCompliantExample string   `json:"non_compliant_example"`
}

// CriteriaSet is an ordered sequence of checks with unique check_ids.
type CriteriaSet []ComplianceCheck

// CheckIDs returns the ids in order.
func (cs CriteriaSet) CheckIDs() []string {
	ids := make([]string, len(cs))
	for i, c := range cs {
		ids[i] = c.CheckID
	}
	return ids
}

// Validate enforces check_id uniqueness. Used on cache loads, where a
// corrupt entry must not smuggle duplicates past the stage 2 validator.
func (cs CriteriaSet) Validate() error {
	seen := make(map[string]bool, len(cs))
	for _, c := range cs {
		if seen[c.CheckID] {
			return &InvariantViolationError{
				Kind:   InvariantDuplicateCheckID,
				Detail: fmt.Sprintf("check_id %q appears more than once", c.CheckID),
			}
		}
		seen[c.CheckID] = true
	}
	return nil
}

// Status is the assessment outcome for a single check.
type Status string

const (
	StatusPass          Status = "pass"
	StatusFail          Status = "fail"
	StatusManualReview  Status = "manual_review"
	StatusNotConfigured Status = "not_configured"
)

// Statuses is the fixed set of valid assessment statuses.
var Statuses = map[Status]bool{
	StatusPass:          true,
	StatusFail:          true,
	StatusManualReview:  true,
	StatusNotConfigured: true,
}

// AssessmentResult is the stage 3 verdict for one check.
type AssessmentResult struct {
	CheckID        string `json:"check_id"`
	Status         Status `json:"status"`
	RiskLevel      string `json:"risk_level"`
	Finding        string `json:"finding"`
	Evidence       string `json:"evidence"`
	Recommendation string `json:"recommendation"`
	Reference      string `json:"reference,omitempty"`
}

// Summary aggregates assessment results. It is always recomputed from the
// individual results; a model-supplied summary is advisory only.
type Summary struct {
	TotalChecks      int     `json:"total_checks"`
	Passed           int     `json:"passed"`
	Failed           int     `json:"failed"`
	ManualReview     int     `json:"manual_review"`
	NotConfigured    int     `json:"not_configured"`
	NotApplicable    int     `json:"not_applicable"`
	CriticalFindings int     `json:"critical_findings"`
	HighFindings     int     `json:"high_findings"`
	ComplianceScore  float64 `json:"compliance_score"`
}

// PipelineResult is the assembled output of one run. On a failed run the
// fields populated so far are preserved for diagnostics.
type PipelineResult struct {
	RunID     string             `json:"run_id,omitempty"`
	Asset     *AssetInfo         `json:"asset,omitempty"`
	Checks    CriteriaSet        `json:"checks,omitempty"`
	Results   []AssessmentResult `json:"assessment_results,omitempty"`
	Summary   *Summary           `json:"summary,omitempty"`
	State     State              `json:"-"`
	StartedAt time.Time          `json:"started_at,omitempty"`
	Duration  time.Duration      `json:"-"`
	FromCache bool               `json:"criteria_from_cache,omitempty"`
}

// computeSummary derives the Summary from the validated results. Risk is
// taken from the result's risk_level when present, otherwise from the
// check's own severity.
func computeSummary(checks CriteriaSet, results []AssessmentResult) Summary {
	sevByID := make(map[string]Severity, len(checks))
	for _, c := range checks {
		sevByID[c.CheckID] = c.Severity
	}

	var s Summary
	s.TotalChecks = len(results)
	for _, r := range results {
		switch r.Status {
		case StatusPass:
			s.Passed++
		case StatusFail:
			s.Failed++
		case StatusManualReview:
			s.ManualReview++
		case StatusNotConfigured:
			s.NotConfigured++
		}
		if r.Status == StatusFail {
			risk := strings.ToLower(r.RiskLevel)
			if risk == "" {
				risk = string(sevByID[r.CheckID])
			}
			switch risk {
			case string(SeverityCritical):
				s.CriticalFindings++
			case string(SeverityHigh):
				s.HighFindings++
			}
		}
	}
	s.NotApplicable = s.ManualReview + s.NotConfigured

	if applicable := s.Passed + s.Failed; applicable > 0 {
		s.ComplianceScore = float64(s.Passed) / float64(applicable) * 100
	}
	return s
}
