package regulatory

import (
	"strings"
	"time"

	"github.com/nortide/regflow/graph"
)

// QA verdict prefixes. The critic is instructed to begin its notes with one
// of these; the router reads the prefix and nothing else.
const (
	approvePrefix = "APPROVED"
	revisePrefix  = "REVISE"
)

// Router labels for the QA decision.
const (
	LabelApprove graph.Label = "approve"
	LabelRevise  graph.Label = "revise"
)

// Options configures pipeline construction.
type Options struct {
	// ReviewTimeout is the deadline for the human theme review. Zero
	// means graph.DefaultGateTimeout.
	ReviewTimeout time.Duration

	// ApproveOnTimeout lets a timed-out review fall through with the
	// classifier's proposal instead of failing the run.
	ApproveOnTimeout bool
}

// NewRegistry registers the pipeline's steps with their field contracts.
func NewRegistry() (*graph.Registry, error) {
	reg := graph.NewRegistry()

	steps := []struct {
		id       string
		contract []graph.Field
		fn       graph.ApplyFunc
	}{
		{StepExtractTerms, []graph.Field{FieldRegulatoryTerms}, extractTerms},
		{StepRetrieveContext, []graph.Field{FieldExternalContext}, retrieveContext},
		{StepExtractObligation, []graph.Field{FieldObligation}, extractObligation},
		{StepClassifyTheme, []graph.Field{FieldPolicyTheme, FieldPolicyThemeReasoning, FieldNeedsHuman}, classifyTheme},
		{StepFindParty, []graph.Field{FieldResponsibleParty, FieldResponsiblePartyReasoning}, findParty},
		{StepIdentifyDivision, []graph.Field{FieldDivisionalImpact, FieldDivisionalImpactReasoning}, identifyDivision},
		{StepScoreRisk, []graph.Field{FieldRiskScore, FieldRiskScoreReasoning}, scoreRisk},
		{StepSummarize, []graph.Field{FieldSummary}, summarize},
		{StepQACritic, []graph.Field{FieldQANotes}, qaCritic},
		{StepCompileReport, []graph.Field{FieldReport}, compileReport},
	}

	for _, s := range steps {
		if err := reg.Register(s.id, s.contract, s.fn); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// BuildGraph wires the full pipeline:
//
//	extract_terms -> retrieve_context -> extract_obligation -> classify_theme
//	  -> find_party (human review gate) -> identify_division -> score_risk
//	  -> summarize -> qa_critic -> compile_report
//
// The classifier flags its proposal for human review; the gate on
// find_party suspends the run until a reviewer approves or overrides the
// theme. The QA critic can send the run back to the summarizer; the
// executor's step budget bounds that loop.
func BuildGraph(opts Options) (*graph.Graph, error) {
	reg, err := NewRegistry()
	if err != nil {
		return nil, err
	}

	g := graph.NewGraph(reg)
	if err := g.SetEntry(StepExtractTerms); err != nil {
		return nil, err
	}

	edges := [][2]string{
		{StepExtractTerms, StepRetrieveContext},
		{StepRetrieveContext, StepExtractObligation},
		{StepExtractObligation, StepClassifyTheme},
		{StepClassifyTheme, StepFindParty},
		{StepFindParty, StepIdentifyDivision},
		{StepIdentifyDivision, StepScoreRisk},
		{StepScoreRisk, StepSummarize},
		{StepSummarize, StepQACritic},
	}
	for _, e := range edges {
		if err := g.AddEdge(e[0], e[1]); err != nil {
			return nil, err
		}
	}

	if err := g.AddConditionalEdge(StepQACritic, qaRouter, map[graph.Label]string{
		LabelApprove: StepCompileReport,
		LabelRevise:  StepSummarize,
	}); err != nil {
		return nil, err
	}

	if err := g.MarkTerminal(StepCompileReport); err != nil {
		return nil, err
	}

	if err := g.Gate(StepFindParty, graph.GatePolicy{
		Timeout:       opts.ReviewTimeout,
		When:          needsReview,
		Payload:       reviewPayload,
		DefaultAccept: opts.ApproveOnTimeout,
		OnResolve:     graph.Update{FieldNeedsHuman: graph.Bool(false)},
	}); err != nil {
		return nil, err
	}

	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// qaRouter reads the critic's verdict prefix. Anything other than the two
// declared prefixes routes to an undeclared label and fails the run, which
// is deliberate: a critic that ignores the protocol should not silently
// approve.
func qaRouter(env *graph.Envelope) graph.Label {
	notes := env.GetString(FieldQANotes)
	switch {
	case strings.HasPrefix(notes, approvePrefix):
		return LabelApprove
	case strings.HasPrefix(notes, revisePrefix):
		return LabelRevise
	}
	return graph.Label("unknown_verdict")
}

// needsReview guards the theme review gate.
func needsReview(env *graph.Envelope) bool {
	v, _ := env.Get(FieldNeedsHuman)
	return v.IsTrue()
}

// reviewPayload is what the reviewer sees: the classifier's proposal and
// its reasoning.
func reviewPayload(env *graph.Envelope) map[string]string {
	return map[string]string{
		string(FieldPolicyTheme):          env.GetString(FieldPolicyTheme),
		string(FieldPolicyThemeReasoning): env.GetString(FieldPolicyThemeReasoning),
	}
}
