package regulatory

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/nortide/regflow/graph"
)

var errMissingResult = errors.New("no Action Result line in response")

// reactResponse is the parsed form of an oracle reply in the
// thought/action format every pipeline prompt requests:
//
//	Thought: <reasoning>
//	Action: <step name>
//	Action Result: <payload>
type reactResponse struct {
	Thought string
	Result  string
}

// parseReact extracts the thought and action-result lines from an oracle
// reply. Unknown lines are ignored; a missing result line is reported as a
// malformed response so the run never advances on a guess.
func parseReact(stepID, raw string) (reactResponse, error) {
	var r reactResponse
	for _, line := range strings.Split(raw, "\n") {
		switch {
		case strings.HasPrefix(line, "Thought:"):
			r.Thought = strings.TrimSpace(strings.TrimPrefix(line, "Thought:"))
		case strings.HasPrefix(line, "Action Result:"):
			r.Result = strings.TrimSpace(strings.TrimPrefix(line, "Action Result:"))
		}
	}
	if r.Result == "" {
		return r, &graph.MalformedResponseError{
			StepID: stepID,
			Raw:    raw,
			Cause:  errMissingResult,
		}
	}
	return r, nil
}

// parseJSONResult decodes an action result expected to be a JSON object
// into dst. A decode failure is a malformed response carrying the raw
// reply.
func parseJSONResult(stepID, raw, result string, dst interface{}) error {
	if err := json.Unmarshal([]byte(result), dst); err != nil {
		return &graph.MalformedResponseError{StepID: stepID, Raw: raw, Cause: err}
	}
	return nil
}

// splitTerms turns a comma-separated action result into trimmed,
// non-empty term strings.
func splitTerms(result string) []string {
	parts := strings.Split(result, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
