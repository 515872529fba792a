// Package regulatory implements the regulatory-obligation analysis
// pipeline: a workflow that takes a raw regulatory text through term
// extraction, context retrieval, obligation analysis, theme classification
// with a human checkpoint, risk scoring, and a QA-reviewed summary.
package regulatory

import "github.com/nortide/regflow/graph"

// Envelope fields the pipeline populates. Each field is written by exactly
// one step (see the contracts in Register).
const (
	// FieldRawText is the input regulation text, supplied at Start.
	FieldRawText graph.Field = "raw_text"

	// FieldRegulatoryTerms holds the key terms, names, and acronyms the
	// term identifier extracted.
	FieldRegulatoryTerms graph.Field = "regulatory_terms"

	// FieldExternalContext is background the context retriever gathered
	// for the extracted terms.
	FieldExternalContext graph.Field = "external_context"

	// FieldObligation is the main obligation sentence of the text.
	FieldObligation graph.Field = "obligation_sentence"

	// FieldPolicyTheme and its reasoning come from the theme classifier;
	// the theme is the value a human reviewer may override.
	FieldPolicyTheme          graph.Field = "policy_theme"
	FieldPolicyThemeReasoning graph.Field = "policy_theme_reasoning"

	// FieldResponsibleParty names who must satisfy the obligation.
	FieldResponsibleParty          graph.Field = "responsible_party"
	FieldResponsiblePartyReasoning graph.Field = "responsible_party_reasoning"

	// FieldDivisionalImpact lists the business divisions affected.
	FieldDivisionalImpact          graph.Field = "divisional_impact"
	FieldDivisionalImpactReasoning graph.Field = "divisional_impact_reasoning"

	// FieldRiskScore is the compliance risk assessment.
	FieldRiskScore          graph.Field = "risk_score"
	FieldRiskScoreReasoning graph.Field = "risk_score_reasoning"

	// FieldSummary is the analyst-facing summary of the analysis.
	FieldSummary graph.Field = "summary"

	// FieldQANotes holds the QA critic's review. By convention the notes
	// start with "APPROVED" or "REVISE"; the router reads the prefix.
	FieldQANotes graph.Field = "qa_notes"

	// FieldNeedsHuman flags that the theme classification awaits human
	// review. Set by the classifier, cleared when the review gate is
	// passed.
	FieldNeedsHuman graph.Field = "human_intervention_needed"

	// FieldReport is the final compiled report, written by the terminal
	// step.
	FieldReport graph.Field = "report"
)

// Step identifiers, in pipeline order.
const (
	StepExtractTerms      = "extract_terms"
	StepRetrieveContext   = "retrieve_context"
	StepExtractObligation = "extract_obligation"
	StepClassifyTheme     = "classify_theme"
	StepFindParty         = "find_party"
	StepIdentifyDivision  = "identify_division"
	StepScoreRisk         = "score_risk"
	StepSummarize         = "summarize"
	StepQACritic          = "qa_critic"
	StepCompileReport     = "compile_report"
)
