// Package utils holds helpers for coercing LLM output into usable data.
package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
	hjson "github.com/hjson/hjson-go/v4"
)

// ErrUnparseable is returned by SmartParse when no strategy yields a value
// that decodes into the target.
var ErrUnparseable = errors.New("all parsing strategies failed")

// RepairJSON attempts to fix common JSON errors from LLM outputs:
// single quotes, unquoted keys, trailing commas, unclosed objects and
// markdown code fences.
func RepairJSON(malformedJSON string) (string, error) {
	repaired, err := jsonrepair.RepairJSON(malformedJSON)
	if err != nil {
		return "", fmt.Errorf("json repair failed: %w", err)
	}
	return repaired, nil
}

// ParseHJSON parses Human-friendly JSON (Hjson) and returns standard JSON.
func ParseHJSON(hjsonData string) (string, error) {
	var result interface{}
	if err := hjson.Unmarshal([]byte(hjsonData), &result); err != nil {
		return "", fmt.Errorf("hjson parse failed: %w", err)
	}

	jsonBytes, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("json marshal failed: %w", err)
	}
	return string(jsonBytes), nil
}

// ExtractJSONObject returns the outermost {...} span of input, or input
// unchanged when it has no braces. Models often wrap the object in prose.
func ExtractJSONObject(input string) string {
	start := strings.Index(input, "{")
	end := strings.LastIndex(input, "}")
	if start < 0 || end <= start {
		return input
	}
	return input[start : end+1]
}

// SmartParse tries multiple parsing strategies to decode input into dest.
// Order of attempts:
// 1. Standard JSON parse
// 2. Standard JSON parse of the embedded object
// 3. JSON repair
// 4. Hjson parse (most lenient)
func SmartParse(input string, dest interface{}) (string, error) {
	input = strings.TrimSpace(input)
	if err := json.Unmarshal([]byte(input), dest); err == nil {
		return input, nil
	}

	obj := ExtractJSONObject(input)
	if obj != input {
		if err := json.Unmarshal([]byte(obj), dest); err == nil {
			return obj, nil
		}
	}

	if repaired, err := RepairJSON(input); err == nil {
		if err := json.Unmarshal([]byte(repaired), dest); err == nil {
			return repaired, nil
		}
	}

	if h, err := ParseHJSON(obj); err == nil {
		if err := json.Unmarshal([]byte(h), dest); err == nil {
			return h, nil
		}
	}

	return "", ErrUnparseable
}
