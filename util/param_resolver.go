package util

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/oliveagle/jsonpath"
)

var tokenRegex = regexp.MustCompile(`{(\$.*?)}`)

// ResolveParams copies params, replacing every {$.path} token inside string
// values with the value found at that path in data. A string that is exactly
// one token keeps the looked-up value's type. Unresolvable tokens become nil
// when standing alone and empty text when embedded.
func ResolveParams(data map[string]any, params map[string]any) map[string]any {
	output := make(map[string]any, len(params))
	for k, v := range params {
		output[k] = resolveValue(data, v)
	}
	return output
}

// LookupPath evaluates a jsonpath expression against data. A path without the
// leading "$" is treated as relative to the root.
func LookupPath(data any, path string) (any, error) {
	if !strings.HasPrefix(path, "$") {
		path = "$." + path
	}
	return jsonpath.JsonPathLookup(data, path)
}

func resolveValue(data map[string]any, v any) any {
	switch val := v.(type) {
	case map[string]any:
		return ResolveParams(data, val)
	case []any:
		return resolveList(data, val)
	case string:
		return resolveString(data, val)
	default:
		return v
	}
}

func resolveList(data map[string]any, list []any) []any {
	output := make([]any, 0, len(list))
	for _, v := range list {
		output = append(output, resolveValue(data, v))
	}
	return output
}

func resolveString(data map[string]any, s string) any {
	matches := tokenRegex.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 {
		return s
	}
	if len(matches) == 1 && matches[0][0] == s {
		value, err := LookupPath(data, matches[0][1])
		if err != nil {
			return nil
		}
		return value
	}
	return tokenRegex.ReplaceAllStringFunc(s, func(token string) string {
		value, err := LookupPath(data, token[1:len(token)-1])
		if err != nil || value == nil {
			return ""
		}
		return fmt.Sprintf("%v", value)
	})
}
