package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Prompt builders for the three stages. The configuration text is passed
// through opaque; nothing here parses device syntax. When a previous
// attempt was rejected, the rejection reason is appended so the model can
// correct itself.

func buildStage1Prompt(configText, feedback string) string {
	var b strings.Builder
	b.WriteString(`Analyze the following network device configuration and identify the asset.

Respond with exactly one JSON object of this shape:
{"device_vendor": "...", "device_model": "...", "os_type": "...", "os_version": "...", "device_role": "...", "hostname": "...", "confidence": 0.0}

Rules:
- confidence is a number between 0 and 1, or one of "low", "medium", "high".
- device_role describes the network function, e.g. "core_switch", "edge_router", "firewall".
- Use "unknown" for values the configuration does not reveal, except the fields above which must always be present.

Configuration:
`)
	b.WriteString("```\n")
	b.WriteString(configText)
	b.WriteString("\n```\n")
	appendFeedback(&b, feedback)
	return b.String()
}

func buildStage2Prompt(asset *AssetInfo, feedback string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `Produce a security compliance baseline for this device:
vendor=%s model=%s os_type=%s os_version=%s role=%s

Respond with exactly one JSON object:
{"checks": [{"check_id": "N-01", "category": "...", "title": "...", "description": "...", "severity": "...", "check_command": "...", "expected_pattern": "...", "compliant_example": "...", "non_compliant_example": "..."}]}

Rules:
- At least %d checks, each with a unique check_id like "N-01", "N-02".
- category must be one of: account_management, access_control, logging_audit, network_security, encryption, patch_management, service_hardening.
- severity must be one of: critical, high, medium, low.
- Every field is required and must be non-empty.
`, asset.Vendor, asset.Model, asset.OSType, asset.OSVersion, asset.Role, minCriteriaChecks)
	appendFeedback(&b, feedback)
	return b.String()
}

func buildStage3Prompt(configText string, asset *AssetInfo, checks CriteriaSet, feedback string) string {
	checksJSON, _ := json.MarshalIndent(checks, "", "  ")

	var b strings.Builder
	fmt.Fprintf(&b, `Assess the following device configuration against each compliance check.
Device: vendor=%s os_type=%s role=%s

Checks:
%s

Respond with exactly one JSON object:
{"assessment_results": {"<check_id>": {"status": "...", "risk_level": "...", "finding": "...", "evidence": "...", "recommendation": "...", "reference": "..."}}, "summary": {"total_checks": 0, "passed": 0, "failed": 0, "not_applicable": 0, "critical_findings": 0, "high_findings": 0, "compliance_score": 0}}

Rules:
- Exactly one result per check_id listed above; no extra and no missing entries.
- status must be one of: pass, fail, manual_review, not_configured.
- Every result with status "fail" must include a non-empty recommendation.
- Quote the relevant configuration lines in evidence.

Configuration:
`, asset.Vendor, asset.OSType, asset.Role, string(checksJSON))
	b.WriteString("```\n")
	b.WriteString(configText)
	b.WriteString("\n```\n")
	appendFeedback(&b, feedback)
	return b.String()
}

func appendFeedback(b *strings.Builder, feedback string) {
	if feedback == "" {
		return
	}
	b.WriteString("\nYour previous response was rejected: ")
	b.WriteString(feedback)
	b.WriteString("\nReturn a corrected JSON object.\n")
}
