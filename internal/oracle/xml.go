package oracle

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// XML fallback: some models ignore native tool calling and emit
// pseudo-XML blocks instead. We recover those into ToolCalls and strip
// them from the visible content.
var (
	functionCallsRe = regexp.MustCompile(`(?s)<function_calls>(.*?)</function_calls>`)
	invokeRe        = regexp.MustCompile(`(?s)<invoke name="([^"]+)">(.*?)</invoke>`)
	parameterRe     = regexp.MustCompile(`(?s)<parameter name="([^"]+)">(.*?)</parameter>`)
)

// parseXMLToolCalls extracts tool calls from fallback blocks in
// content. It returns the content with the blocks removed and the
// recovered calls, each with a synthetic id xml_call_<n>.
func parseXMLToolCalls(content string) (string, []ToolCall) {
	blocks := functionCallsRe.FindAllStringSubmatch(content, -1)
	if len(blocks) == 0 {
		return content, nil
	}
	var calls []ToolCall
	n := 0
	for _, block := range blocks {
		for _, invoke := range invokeRe.FindAllStringSubmatch(block[1], -1) {
			args := make(map[string]any)
			for _, param := range parameterRe.FindAllStringSubmatch(invoke[2], -1) {
				args[param[1]] = coerceParameter(strings.TrimSpace(param[2]))
			}
			calls = append(calls, ToolCall{
				ID:        fmt.Sprintf("xml_call_%d", n),
				Name:      invoke[1],
				Arguments: args,
			})
			n++
		}
	}
	cleaned := strings.TrimSpace(functionCallsRe.ReplaceAllString(content, ""))
	return cleaned, calls
}

// coerceParameter interprets a parameter value the way the model most
// likely meant it: JSON first, then booleans, then integers, then the
// raw string.
func coerceParameter(value string) any {
	if value == "" {
		return ""
	}
	switch value[0] {
	case '{', '[':
		var out any
		if err := json.Unmarshal([]byte(value), &out); err == nil {
			return out
		}
	}
	switch value {
	case "true":
		return true
	case "false":
		return false
	}
	if i, err := strconv.Atoi(value); err == nil {
		return i
	}
	return value
}
