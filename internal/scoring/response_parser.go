package scoring

import (
	"encoding/json"
	"strconv"
	"strings"
)

// extractJSON extracts the first complete JSON object from text that
// may carry extra prose or markdown fencing around it, since scoring
// providers routinely add explanation despite prompt instructions.
func extractJSON(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	if start == -1 {
		return text
	}

	braceCount := 0
	inString := false
	escape := false

	for i := start; i < len(text); i++ {
		c := text[i]

		if escape {
			escape = false
			continue
		}
		if c == '\\' {
			escape = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if !inString {
			switch c {
			case '{':
				braceCount++
			case '}':
				braceCount--
				if braceCount == 0 {
					return text[start : i+1]
				}
			}
		}
	}
	return text
}

type topicsResponse struct {
	Topics []string `json:"topics"`
}

// parseTopics parses a topics JSON response, truncating to maxK.
func parseTopics(raw string, maxK int) ([]string, error) {
	var resp topicsResponse
	if err := json.Unmarshal([]byte(extractJSON(raw)), &resp); err != nil {
		return nil, err
	}
	if maxK > 0 && len(resp.Topics) > maxK {
		resp.Topics = resp.Topics[:maxK]
	}
	return resp.Topics, nil
}

type importanceResponse struct {
	Importance float64 `json:"importance"`
}

// parseImportance parses an importance JSON response. Callers clamp
// to DefaultImportance on any error, per §4.3/§7.
func parseImportance(raw string) (float64, error) {
	candidate := extractJSON(raw)

	var resp importanceResponse
	if err := json.Unmarshal([]byte(candidate), &resp); err == nil {
		return clamp01(resp.Importance), nil
	}

	// Some providers answer with a bare number instead of JSON.
	trimmed := strings.TrimSpace(raw)
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return clamp01(f), nil
	}

	return 0, errParse
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

var errParse = jsonParseError("scoring: could not parse importance score")

type jsonParseError string

func (e jsonParseError) Error() string { return string(e) }

type summaryResponse struct {
	Summary string `json:"summary"`
}

// parseSummary parses a summarize JSON response, falling back to the
// raw trimmed text if it isn't wrapped in JSON (providers vary).
func parseSummary(raw string) string {
	candidate := extractJSON(raw)
	var resp summaryResponse
	if err := json.Unmarshal([]byte(candidate), &resp); err == nil && resp.Summary != "" {
		return resp.Summary
	}
	return strings.TrimSpace(raw)
}
