// Package tally normalises inbound form-webhook payloads into a stable
// submission identity. Upstream deliveries have drifted through several
// shapes over time, so extraction probes a fixed priority list instead of
// trusting any single schema.
package tally

import (
	"encoding/json"
	"strings"
)

// hiddenFieldKey is the conventional name of the hidden form field carrying
// the submission identifier when it is not present at a structural path.
const hiddenFieldKey = "submission_id"

// Submission is the normalised identity extracted from one webhook delivery.
// Either field may be empty; extraction never fails.
type Submission struct {
	SubmissionID string
	Email        string
}

// submissionProbe attempts to pull a submission id out of a parsed payload.
// Probes return "" on no match and never panic.
type submissionProbe func(payload map[string]any) string

// submissionProbes is the fixed priority order for identifier extraction.
// The first probe returning a non-empty string wins; order is stable across
// calls and covered by tests.
var submissionProbes = []submissionProbe{
	func(p map[string]any) string { return nestedString(p, "submission", "id") },
	func(p map[string]any) string { return nestedString(p, "data", "submissionId") },
	func(p map[string]any) string { return nestedString(p, "data", "id") },
	func(p map[string]any) string { return stringValue(p["id"]) },
	func(p map[string]any) string { return hiddenFieldValue(p, hiddenFieldKey) },
}

// ExtractSubmission parses raw webhook bytes and returns the submission
// identity. Malformed input degrades to an empty Submission; deliveries
// wrapped in an extra layer of JSON string quoting are unwrapped once.
func ExtractSubmission(raw []byte) Submission {
	payload := parseObject(raw)
	return Submission{
		SubmissionID: extractSubmissionID(payload),
		Email:        extractEmail(payload),
	}
}

func extractSubmissionID(payload map[string]any) string {
	for _, probe := range submissionProbes {
		if id := probe(payload); id != "" {
			return id
		}
	}
	return ""
}

func extractEmail(payload map[string]any) string {
	for _, field := range collectFields(payload) {
		if !looksLikeEmailField(field) {
			continue
		}
		value := stringValue(field["value"])
		if strings.Contains(value, "@") {
			return value
		}
	}
	return ""
}

func looksLikeEmailField(field map[string]any) bool {
	fieldType := strings.ToLower(stringValue(field["type"]))
	if strings.Contains(fieldType, "email") {
		return true
	}
	label := strings.ToLower(stringValue(field["label"]))
	return strings.Contains(label, "email")
}

// collectFields gathers the fields collections seen across payload drafts:
// top-level and nested under the data envelope.
func collectFields(payload map[string]any) []map[string]any {
	var fields []map[string]any
	fields = append(fields, fieldEntries(payload["fields"])...)
	if data, ok := payload["data"].(map[string]any); ok {
		fields = append(fields, fieldEntries(data["fields"])...)
	}
	return fields
}

func fieldEntries(value any) []map[string]any {
	list, ok := value.([]any)
	if !ok {
		return nil
	}
	entries := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if entry, ok := item.(map[string]any); ok {
			entries = append(entries, entry)
		}
	}
	return entries
}

func hiddenFieldValue(payload map[string]any, key string) string {
	for _, field := range collectFields(payload) {
		for _, nameKey := range []string{"key", "name", "label"} {
			if strings.EqualFold(strings.TrimSpace(stringValue(field[nameKey])), key) {
				if value := stringValue(field["value"]); value != "" {
					return value
				}
			}
		}
	}
	return ""
}

// parseObject decodes raw bytes into a JSON object, treating anything
// unparseable as an empty object. A payload delivered as a JSON-encoded
// string is unwrapped one level before giving up.
func parseObject(raw []byte) map[string]any {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return map[string]any{}
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(trimmed), &payload); err == nil && payload != nil {
		return payload
	}

	var wrapped string
	if err := json.Unmarshal([]byte(trimmed), &wrapped); err == nil {
		if err := json.Unmarshal([]byte(wrapped), &payload); err == nil && payload != nil {
			return payload
		}
	}
	return map[string]any{}
}

// ParsePayload exposes the defensive object parse for callers that persist
// the raw payload alongside the extracted identity.
func ParsePayload(raw []byte) map[string]any {
	return parseObject(raw)
}

func nestedString(payload map[string]any, outer, inner string) string {
	nested, ok := payload[outer].(map[string]any)
	if !ok {
		return ""
	}
	return stringValue(nested[inner])
}

func stringValue(value any) string {
	s, ok := value.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}
