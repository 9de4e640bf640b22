// Package structured recovers key/value data from loosely formatted model output.
package structured

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// Method names how the data was recovered.
type Method string

const (
	MethodNone     Method = "none"
	MethodDirect   Method = "direct"
	MethodExtract  Method = "extracted"
	MethodRepaired Method = "repaired"
	MethodKeyValue Method = "key_value"
	MethodRaw      Method = "raw"
)

// Confidence per method.
const (
	confDirect   = 1.0
	confExtract  = 0.9
	confRepaired = 0.7
	confKeyValue = 0.5
	confRaw      = 0.3
)

type pass struct {
	method Method
	conf   float64
	fn     func(string) string
}

// passes run cumulatively; each later pass sees the output of the earlier ones.
var passes = []pass{
	{MethodDirect, confDirect, strings.TrimSpace},
	{MethodExtract, confExtract, stripFences},
	{MethodExtract, confExtract, extractBrackets},
	{MethodRepaired, confRepaired, removeTrailingCommas},
	{MethodRepaired, confRepaired, normalizeQuotes},
}

// Parse runs ordered repair passes over raw and returns the first object
// that decodes, with string booleans and numbers coerced. When no pass yields
// JSON it falls back to "key: value" lines and finally to {"value": raw}.
func Parse(raw string) (map[string]any, float64, Method) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, 0, MethodNone
	}

	candidate := text
	for _, p := range passes {
		candidate = p.fn(candidate)
		if data, ok := decode(candidate); ok {
			return coerce(data), p.conf, p.method
		}
	}

	if kv := keyValues(stripFences(text)); len(kv) > 0 {
		return coerce(kv), confKeyValue, MethodKeyValue
	}

	return map[string]any{"value": firstLine(stripFences(text))}, confRaw, MethodRaw
}

func decode(s string) (map[string]any, bool) {
	if s == "" {
		return nil, false
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, false
	}
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case []any:
		return map[string]any{"items": t}, true
	case string:
		return map[string]any{"value": t}, true
	}
	return nil, false
}

var fenceRe = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)\\s*```")

func stripFences(s string) string {
	if m := fenceRe.FindStringSubmatch(s); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return s
}

// extractBrackets trims conversational text around the outermost object or array.
func extractBrackets(s string) string {
	for _, pair := range [][2]string{{"{", "}"}, {"[", "]"}} {
		start := strings.Index(s, pair[0])
		end := strings.LastIndex(s, pair[1])
		if start != -1 && end > start {
			return s[start : end+1]
		}
	}
	return s
}

var trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)

func removeTrailingCommas(s string) string {
	return trailingCommaRe.ReplaceAllString(s, "$1")
}

var (
	smartQuotes   = strings.NewReplacer("“", `"`, "”", `"`, "‘", "'", "’", "'")
	singleKeyRe   = regexp.MustCompile(`([{,]\s*)'([^'"]+?)'\s*:`)
	singleValueRe = regexp.MustCompile(`:\s*'([^']*?)'(\s*[,}\]])`)
	bareKeyRe     = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)\s*:`)
)

func normalizeQuotes(s string) string {
	s = smartQuotes.Replace(s)
	s = singleKeyRe.ReplaceAllString(s, `$1"$2":`)
	s = singleValueRe.ReplaceAllString(s, `: "$1"$2`)
	s = bareKeyRe.ReplaceAllString(s, `$1"$2":`)
	return s
}

var kvLineRe = regexp.MustCompile(`^\s*[-*]?\s*"?([A-Za-z_][A-Za-z0-9_ ]{0,40})"?\s*[:=]\s*(.+?)\s*,?\s*$`)

func keyValues(s string) map[string]any {
	out := map[string]any{}
	for _, line := range strings.Split(s, "\n") {
		m := kvLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(m[1]))
		out[key] = strings.Trim(strings.TrimSpace(m[2]), `"'`)
	}
	return out
}

func coerce(data map[string]any) map[string]any {
	for k, v := range data {
		s, ok := v.(string)
		if !ok {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true", "yes":
			data[k] = true
			continue
		case "false", "no":
			data[k] = false
			continue
		}
		if n, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			data[k] = n
		}
	}
	return data
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.Trim(strings.TrimSpace(s), `"'`)
}

// String returns data[key] rendered as a string.
func String(data map[string]any, key string) (string, bool) {
	v, ok := data[key]
	if !ok || v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", false
	}
	return string(b), true
}
