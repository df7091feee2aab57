package llm

import (
	"encoding/json"
	"regexp"
)

var fencedJSONBlock = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// extractJSON pulls a JSON object out of a provider response. Providers
// sometimes wrap their structured answer in a markdown fenced code block
// even when explicitly asked for raw JSON; this strips the fence before
// parsing. If no fence is present the raw body is tried as-is.
func extractJSON(body string, out any) error {
	candidate := body
	if m := fencedJSONBlock.FindStringSubmatch(body); m != nil {
		candidate = m[1]
	}
	return json.Unmarshal([]byte(candidate), out)
}
