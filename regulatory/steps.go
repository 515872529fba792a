package regulatory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nortide/regflow/graph"
	"github.com/nortide/regflow/graph/oracle"
)

// Each step builds a prompt from the envelope, consults the oracle, parses
// the thought/action reply, and returns an update limited to the fields the
// step owns. The step's Note carries the oracle's thought line, so the
// progress log reads as the pipeline's reasoning trail.

func extractTerms(ctx context.Context, env *graph.Envelope, orc oracle.Oracle) (graph.StepResult, error) {
	prompt := fmt.Sprintf(`You are a compliance analyst AI.
Text: %s

Think step-by-step about how to extract key regulatory terms, names, and acronyms.
Then output your Thought, Action, and Action Result (comma-separated terms).

Format:
Thought: ...
Action: extract_terms
Action Result: ...`, env.GetString(FieldRawText))

	res, err := orc.Invoke(ctx, prompt)
	if err != nil {
		return graph.StepResult{}, err
	}
	parsed, err := parseReact(StepExtractTerms, res.Text)
	if err != nil {
		return graph.StepResult{}, err
	}

	return graph.StepResult{
		Update: graph.Update{
			FieldRegulatoryTerms: graph.Strings(splitTerms(parsed.Result)...),
		},
		Note: parsed.Thought,
	}, nil
}

func retrieveContext(ctx context.Context, env *graph.Envelope, orc oracle.Oracle) (graph.StepResult, error) {
	terms, _ := env.Get(FieldRegulatoryTerms)
	prompt := fmt.Sprintf(`You are a compliance AI. Based on the key terms '%s', provide external context.
Format:
Thought: ...
Action: retrieve_context
Action Result: ...`, strings.Join(terms.AsStrings(), ", "))

	res, err := orc.Invoke(ctx, prompt)
	if err != nil {
		return graph.StepResult{}, err
	}
	parsed, err := parseReact(StepRetrieveContext, res.Text)
	if err != nil {
		return graph.StepResult{}, err
	}

	return graph.StepResult{
		Update: graph.Update{FieldExternalContext: graph.String(parsed.Result)},
		Note:   parsed.Thought,
	}, nil
}

func extractObligation(ctx context.Context, env *graph.Envelope, orc oracle.Oracle) (graph.StepResult, error) {
	prompt := fmt.Sprintf(`Extract the main obligation sentence.
Text: %s
Format:
Thought: ...
Action: extract_obligation
Action Result: ...`, env.GetString(FieldRawText))

	res, err := orc.Invoke(ctx, prompt)
	if err != nil {
		return graph.StepResult{}, err
	}
	parsed, err := parseReact(StepExtractObligation, res.Text)
	if err != nil {
		return graph.StepResult{}, err
	}

	return graph.StepResult{
		Update: graph.Update{FieldObligation: graph.String(parsed.Result)},
		Note:   parsed.Thought,
	}, nil
}

// classifyTheme proposes a policy theme and flags the run for human review;
// the review gate on find_party holds the run until the proposal is
// approved or overridden.
func classifyTheme(ctx context.Context, env *graph.Envelope, orc oracle.Oracle) (graph.StepResult, error) {
	prompt := fmt.Sprintf(`Classify the obligation below into a theme. Return JSON with 'theme' and 'reasoning'.
Obligation: %s
Format:
Thought: ...
Action: classify_theme
Action Result: { "theme": ..., "reasoning": ... }`, env.GetString(FieldObligation))

	res, err := orc.Invoke(ctx, prompt)
	if err != nil {
		return graph.StepResult{}, err
	}
	parsed, err := parseReact(StepClassifyTheme, res.Text)
	if err != nil {
		return graph.StepResult{}, err
	}

	var out struct {
		Theme     string `json:"theme"`
		Reasoning string `json:"reasoning"`
	}
	if err := parseJSONResult(StepClassifyTheme, res.Text, parsed.Result, &out); err != nil {
		return graph.StepResult{}, err
	}

	return graph.StepResult{
		Update: graph.Update{
			FieldPolicyTheme:          graph.String(out.Theme),
			FieldPolicyThemeReasoning: graph.String(out.Reasoning),
			FieldNeedsHuman:           graph.Bool(true),
		},
		Note: parsed.Thought,
	}, nil
}

func findParty(ctx context.Context, env *graph.Envelope, orc oracle.Oracle) (graph.StepResult, error) {
	prompt := fmt.Sprintf(`Who is responsible for this obligation? Return JSON with 'party' and 'reasoning'.
Obligation: %s
Format:
Thought: ...
Action: find_party
Action Result: { "party": ..., "reasoning": ... }`, env.GetString(FieldObligation))

	res, err := orc.Invoke(ctx, prompt)
	if err != nil {
		return graph.StepResult{}, err
	}
	parsed, err := parseReact(StepFindParty, res.Text)
	if err != nil {
		return graph.StepResult{}, err
	}

	var out struct {
		Party     string `json:"party"`
		Reasoning string `json:"reasoning"`
	}
	if err := parseJSONResult(StepFindParty, res.Text, parsed.Result, &out); err != nil {
		return graph.StepResult{}, err
	}

	return graph.StepResult{
		Update: graph.Update{
			FieldResponsibleParty:          graph.String(out.Party),
			FieldResponsiblePartyReasoning: graph.String(out.Reasoning),
		},
		Note: parsed.Thought,
	}, nil
}

func identifyDivision(ctx context.Context, env *graph.Envelope, orc oracle.Oracle) (graph.StepResult, error) {
	prompt := fmt.Sprintf(`Identify business divisions affected by the obligation. Return JSON with 'divisions' and 'reasoning'.
Obligation: %s
Format:
Thought: ...
Action: identify_division
Action Result: { "divisions": ..., "reasoning": ... }`, env.GetString(FieldObligation))

	res, err := orc.Invoke(ctx, prompt)
	if err != nil {
		return graph.StepResult{}, err
	}
	parsed, err := parseReact(StepIdentifyDivision, res.Text)
	if err != nil {
		return graph.StepResult{}, err
	}

	var out struct {
		Divisions string `json:"divisions"`
		Reasoning string `json:"reasoning"`
	}
	if err := parseJSONResult(StepIdentifyDivision, res.Text, parsed.Result, &out); err != nil {
		return graph.StepResult{}, err
	}

	return graph.StepResult{
		Update: graph.Update{
			FieldDivisionalImpact:          graph.String(out.Divisions),
			FieldDivisionalImpactReasoning: graph.String(out.Reasoning),
		},
		Note: parsed.Thought,
	}, nil
}

func scoreRisk(ctx context.Context, env *graph.Envelope, orc oracle.Oracle) (graph.StepResult, error) {
	prompt := fmt.Sprintf(`Assess compliance risk. Return JSON with 'score' and 'reasoning'.
Obligation: %s
Theme: %s
Format:
Thought: ...
Action: score_risk
Action Result: { "score": ..., "reasoning": ... }`,
		env.GetString(FieldObligation), env.GetString(FieldPolicyTheme))

	res, err := orc.Invoke(ctx, prompt)
	if err != nil {
		return graph.StepResult{}, err
	}
	parsed, err := parseReact(StepScoreRisk, res.Text)
	if err != nil {
		return graph.StepResult{}, err
	}

	var out struct {
		Score     string `json:"score"`
		Reasoning string `json:"reasoning"`
	}
	if err := parseJSONResult(StepScoreRisk, res.Text, parsed.Result, &out); err != nil {
		return graph.StepResult{}, err
	}

	return graph.StepResult{
		Update: graph.Update{
			FieldRiskScore:          graph.String(out.Score),
			FieldRiskScoreReasoning: graph.String(out.Reasoning),
		},
		Note: parsed.Thought,
	}, nil
}

// analysisFields are the findings the summarizer and report compiler fold
// together, in presentation order.
var analysisFields = []graph.Field{
	FieldRegulatoryTerms,
	FieldExternalContext,
	FieldObligation,
	FieldPolicyTheme,
	FieldPolicyThemeReasoning,
	FieldResponsibleParty,
	FieldResponsiblePartyReasoning,
	FieldDivisionalImpact,
	FieldDivisionalImpactReasoning,
	FieldRiskScore,
	FieldRiskScoreReasoning,
}

func analysisJSON(env *graph.Envelope) string {
	data := make(map[string]interface{}, len(analysisFields))
	for _, f := range analysisFields {
		v, ok := env.Get(f)
		if !ok {
			continue
		}
		if ss := v.AsStrings(); ss != nil {
			data[string(f)] = ss
		} else {
			data[string(f)] = v.AsString()
		}
	}
	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(out)
}

func summarize(ctx context.Context, env *graph.Envelope, orc oracle.Oracle) (graph.StepResult, error) {
	prompt := fmt.Sprintf(`Summarize this analysis:
%s
Format:
Thought: ...
Action: summarize
Action Result: ...`, analysisJSON(env))

	// Rework the summary when the critic asked for a revision.
	if notes := env.GetString(FieldQANotes); strings.HasPrefix(notes, revisePrefix) {
		prompt = fmt.Sprintf(`Summarize this analysis, addressing the reviewer notes.
Reviewer notes: %s
%s
Format:
Thought: ...
Action: summarize
Action Result: ...`, notes, analysisJSON(env))
	}

	res, err := orc.Invoke(ctx, prompt)
	if err != nil {
		return graph.StepResult{}, err
	}
	parsed, err := parseReact(StepSummarize, res.Text)
	if err != nil {
		return graph.StepResult{}, err
	}

	return graph.StepResult{
		Update: graph.Update{FieldSummary: graph.String(parsed.Result)},
		Note:   parsed.Thought,
	}, nil
}

func qaCritic(ctx context.Context, env *graph.Envelope, orc oracle.Oracle) (graph.StepResult, error) {
	prompt := fmt.Sprintf(`You are a QA critic. Review the analysis and summary for consistency.
Analysis:
%s
Summary: %s
Begin your Action Result with APPROVED or REVISE, followed by your notes.
Format:
Thought: ...
Action: qa_review
Action Result: ...`, analysisJSON(env), env.GetString(FieldSummary))

	res, err := orc.Invoke(ctx, prompt)
	if err != nil {
		return graph.StepResult{}, err
	}
	parsed, err := parseReact(StepQACritic, res.Text)
	if err != nil {
		return graph.StepResult{}, err
	}

	return graph.StepResult{
		Update: graph.Update{FieldQANotes: graph.String(parsed.Result)},
		Note:   parsed.Thought,
	}, nil
}

// compileReport is the pure terminal step: it folds the findings, summary,
// and QA notes into the final report without consulting the oracle.
func compileReport(_ context.Context, env *graph.Envelope, _ oracle.Oracle) (graph.StepResult, error) {
	var b strings.Builder
	b.WriteString("Regulatory Obligation Analysis\n")
	b.WriteString("==============================\n\n")
	fmt.Fprintf(&b, "Obligation: %s\n", env.GetString(FieldObligation))
	fmt.Fprintf(&b, "Theme: %s\n", env.GetString(FieldPolicyTheme))
	fmt.Fprintf(&b, "Responsible party: %s\n", env.GetString(FieldResponsibleParty))
	fmt.Fprintf(&b, "Divisional impact: %s\n", env.GetString(FieldDivisionalImpact))
	fmt.Fprintf(&b, "Risk score: %s\n\n", env.GetString(FieldRiskScore))
	fmt.Fprintf(&b, "Summary:\n%s\n\n", env.GetString(FieldSummary))
	fmt.Fprintf(&b, "QA notes:\n%s\n", env.GetString(FieldQANotes))

	return graph.StepResult{
		Update: graph.Update{FieldReport: graph.String(b.String())},
		Note:   "compiled final report",
	}, nil
}
