package pipeline

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// knownVendorTokens are vendor names the stage 1 cross-check scans the raw
// configuration for. The check is a consistency heuristic, not a parse: it
// only fires when a token appears in the config text and the declared
// vendor does not contain it.
var knownVendorTokens = []string{
	"cisco",
	"juniper",
	"arista",
	"huawei",
	"fortinet",
	"paloalto",
	"mikrotik",
	"hpe",
}

// validateStage1 checks the asset-identification contract: all identity
// fields present and non-empty, confidence in range or in vocabulary, and
// the declared vendor consistent with vendor tokens visible in the raw
// configuration.
func validateStage1(doc string, rawConfig string) (*AssetInfo, error) {
	var asset AssetInfo
	if err := json.Unmarshal([]byte(doc), &asset); err != nil {
		return nil, &ValidationError{Reason: fmt.Sprintf("response does not match the stage 1 schema: %v", err)}
	}

	required := map[string]string{
		"device_vendor": asset.Vendor,
		"device_model":  asset.Model,
		"os_type":       asset.OSType,
		"os_version":    asset.OSVersion,
		"device_role":   asset.Role,
	}
	for _, field := range []string{"device_vendor", "device_model", "os_type", "os_version", "device_role"} {
		if strings.TrimSpace(required[field]) == "" {
			return nil, &ValidationError{Field: field, Reason: "required and must be a non-empty string"}
		}
	}

	if err := checkConfidence(asset.Confidence); err != nil {
		return nil, err
	}

	if err := crossCheckVendor(asset.Vendor, rawConfig); err != nil {
		return nil, err
	}

	return &asset, nil
}

// checkConfidence validates the dual-form confidence field. A zero-value
// Confidence means the field was absent from the response.
func checkConfidence(c Confidence) error {
	if c.IsNum {
		if c.Numeric < 0 || c.Numeric > 1 {
			return &ValidationError{Field: "confidence", Reason: fmt.Sprintf("numeric confidence %v outside [0,1]", c.Numeric)}
		}
		return nil
	}
	switch c.Label {
	case "low", "medium", "high":
		return nil
	case "":
		return &ValidationError{Field: "confidence", Reason: "required: a number in [0,1] or one of low/medium/high"}
	default:
		return &ValidationError{Field: "confidence", Reason: fmt.Sprintf("%q is not a number in [0,1] or one of low/medium/high", c.Label)}
	}
}

// crossCheckVendor fires when the configuration text case-insensitively
// contains a known vendor token that the declared vendor does not match.
func crossCheckVendor(declared, rawConfig string) error {
	cfg := strings.ToLower(rawConfig)
	decl := strings.ToLower(declared)
	for _, token := range knownVendorTokens {
		if strings.Contains(cfg, token) && !strings.Contains(decl, token) {
			return &VendorMismatchError{Declared: declared, Found: token}
		}
	}
	return nil
}

// minCriteriaChecks is the smallest acceptable criteria set. A model that
// returns fewer is not taking the baseline seriously and gets retried.
const minCriteriaChecks = 10

type stage2Wire struct {
	Checks []ComplianceCheck `json:"checks"`
}

// validateStage2 checks the criteria-selection contract: at least
// minCriteriaChecks entries, unique check_ids, category and severity from
// their fixed sets (case-insensitive on input, lowercase canonical on
// output), and every descriptive field present.
func validateStage2(doc string) (CriteriaSet, error) {
	var wire stage2Wire
	if err := json.Unmarshal([]byte(doc), &wire); err != nil {
		return nil, &ValidationError{Reason: fmt.Sprintf("response does not match the stage 2 schema: %v", err)}
	}
	if wire.Checks == nil {
		return nil, &ValidationError{Field: "checks", Reason: "required array of compliance checks"}
	}
	if len(wire.Checks) < minCriteriaChecks {
		return nil, &ValidationError{
			Field:  "checks",
			Reason: fmt.Sprintf("%d checks returned, need at least %d", len(wire.Checks), minCriteriaChecks),
		}
	}

	seen := make(map[string]bool, len(wire.Checks))
	out := make(CriteriaSet, 0, len(wire.Checks))
	for i, c := range wire.Checks {
		where := fmt.Sprintf("checks[%d]", i)
		if strings.TrimSpace(c.CheckID) == "" {
			return nil, &ValidationError{Field: where + ".check_id", Reason: "required and must be non-empty"}
		}
		if seen[c.CheckID] {
			return nil, &ValidationError{Field: where + ".check_id", Reason: fmt.Sprintf("duplicate check_id %q", c.CheckID)}
		}
		seen[c.CheckID] = true

		c.Category = Category(strings.ToLower(string(c.Category)))
		if !Categories[c.Category] {
			return nil, &ValidationError{Field: where + ".category", Reason: fmt.Sprintf("%q is not a valid category", c.Category)}
		}
		c.Severity = Severity(strings.ToLower(string(c.Severity)))
		if !Severities[c.Severity] {
			return nil, &ValidationError{Field: where + ".severity", Reason: fmt.Sprintf("%q is not a valid severity", c.Severity)}
		}

		for field, v := range map[string]string{
			"title":                 c.Title,
			"description":           c.Description,
			"check_command":         c.CheckCommand,
			"expected_pattern":      c.ExpectedPattern,
			"compliant_example":     c.CompliantExample,
			"non_compliant_example": c.NonCompliantExample,
		} {
			if strings.TrimSpace(v) == "" {
				return nil, &ValidationError{Field: where + "." + field, Reason: "required and must be non-empty"}
			}
		}
		out = append(out, c)
	}
	return out, nil
}

type stage3Wire struct {
	AssessmentResults json.RawMessage `json:"assessment_results"`
	Summary           *Summary        `json:"summary"`
}

type stage3Entry struct {
	CheckID        string `json:"check_id"`
	Status         string `json:"status"`
	RiskLevel      string `json:"risk_level"`
	Finding        string `json:"finding"`
	Evidence       string `json:"evidence"`
	Recommendation string `json:"recommendation"`
	Reference      string `json:"reference"`
}

// validateStage3 checks the assessment contract against the stage 2
// criteria: assessment_results accepted as a map keyed by check_id or a
// list of objects carrying check_id (normalized to the map form), the
// check_id sets exactly equal, statuses from the fixed set after lowercase
// normalization, and every fail carrying a recommendation. The
// model-supplied summary is discarded in favor of a recomputation.
func validateStage3(doc string, checks CriteriaSet) ([]AssessmentResult, *Summary, error) {
	var wire stage3Wire
	if err := json.Unmarshal([]byte(doc), &wire); err != nil {
		return nil, nil, &ValidationError{Reason: fmt.Sprintf("response does not match the stage 3 schema: %v", err)}
	}
	if len(wire.AssessmentResults) == 0 {
		return nil, nil, &ValidationError{Field: "assessment_results", Reason: "required map or array of per-check results"}
	}

	byID, err := decodeResultsMapOrList(wire.AssessmentResults)
	if err != nil {
		return nil, nil, err
	}

	if err := checkIDSetsEqual(checks, byID); err != nil {
		return nil, nil, err
	}

	// Emit results in criteria order so the output is deterministic.
	out := make([]AssessmentResult, 0, len(checks))
	for _, c := range checks {
		e := byID[c.CheckID]
		status := Status(strings.ToLower(strings.TrimSpace(e.Status)))
		if !Statuses[status] {
			return nil, nil, &ValidationError{
				Field:  fmt.Sprintf("assessment_results[%s].status", c.CheckID),
				Reason: fmt.Sprintf("%q is not one of pass/fail/manual_review/not_configured", e.Status),
			}
		}
		if status == StatusFail && strings.TrimSpace(e.Recommendation) == "" {
			return nil, nil, &ValidationError{
				Field:  "recommendation",
				Reason: fmt.Sprintf("check %s has status fail but no recommendation", c.CheckID),
			}
		}
		out = append(out, AssessmentResult{
			CheckID:        c.CheckID,
			Status:         status,
			RiskLevel:      strings.ToLower(strings.TrimSpace(e.RiskLevel)),
			Finding:        e.Finding,
			Evidence:       e.Evidence,
			Recommendation: e.Recommendation,
			Reference:      e.Reference,
		})
	}

	summary := computeSummary(checks, out)
	if summary.ComplianceScore < 0 || summary.ComplianceScore > 100 {
		return nil, nil, &InvariantViolationError{
			Kind:   InvariantScoreOutOfRange,
			Detail: fmt.Sprintf("compliance_score %v outside [0,100]", summary.ComplianceScore),
		}
	}
	return out, &summary, nil
}

// decodeResultsMapOrList normalizes the list-or-map duality of
// assessment_results into one canonical map keyed by check_id. Duplicate
// keys in the list form are a validation error, not a silent overwrite.
func decodeResultsMapOrList(raw json.RawMessage) (map[string]stage3Entry, error) {
	var asMap map[string]stage3Entry
	if err := json.Unmarshal(raw, &asMap); err == nil {
		for id, e := range asMap {
			if e.CheckID == "" {
				e.CheckID = id
				asMap[id] = e
			}
		}
		return asMap, nil
	}

	var asList []stage3Entry
	if err := json.Unmarshal(raw, &asList); err != nil {
		return nil, &ValidationError{Field: "assessment_results", Reason: "must be a map keyed by check_id or an array of objects with check_id"}
	}
	byID := make(map[string]stage3Entry, len(asList))
	for i, e := range asList {
		if strings.TrimSpace(e.CheckID) == "" {
			return nil, &ValidationError{Field: fmt.Sprintf("assessment_results[%d].check_id", i), Reason: "required in the array form"}
		}
		if _, dup := byID[e.CheckID]; dup {
			return nil, &ValidationError{Field: "assessment_results", Reason: fmt.Sprintf("duplicate check_id %q", e.CheckID)}
		}
		byID[e.CheckID] = e
	}
	return byID, nil
}

// checkIDSetsEqual enforces the cross-stage invariant: one result per
// criteria check, no additions, no omissions.
func checkIDSetsEqual(checks CriteriaSet, results map[string]stage3Entry) error {
	var missing, extra []string
	for _, c := range checks {
		if _, ok := results[c.CheckID]; !ok {
			missing = append(missing, c.CheckID)
		}
	}
	want := make(map[string]bool, len(checks))
	for _, c := range checks {
		want[c.CheckID] = true
	}
	for id := range results {
		if !want[id] {
			extra = append(extra, id)
		}
	}
	if len(missing) == 0 && len(extra) == 0 {
		return nil
	}
	sort.Strings(missing)
	sort.Strings(extra)
	return &InvariantViolationError{
		Kind:   InvariantCheckIDSetMismatch,
		Detail: fmt.Sprintf("missing=%v extra=%v", missing, extra),
	}
}
