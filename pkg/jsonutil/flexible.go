// Package jsonutil decodes loosely typed JSON produced by LLMs.
package jsonutil

import (
	"encoding/json"
	"strconv"
	"strings"
)

// FlexibleString is a string that also accepts JSON numbers, booleans and
// arrays of scalars. Arrays are joined with "," so an "in" filter value
// such as ["West", "South"] reads the same as "West,South".
type FlexibleString string

func (s *FlexibleString) UnmarshalJSON(data []byte) error {
	*s = FlexibleString(FlexibleStringValue(data))
	return nil
}

// FlexibleStringValue converts raw JSON to a string. null and empty input
// give "". Values that are not scalars or arrays of scalars are returned as
// raw JSON text.
func FlexibleStringValue(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	if v, ok := scalarString(raw); ok {
		return v
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err == nil {
		parts := make([]string, 0, len(items))
		for _, item := range items {
			v, ok := scalarString(item)
			if !ok {
				return string(raw)
			}
			if v != "" {
				parts = append(parts, v)
			}
		}
		return strings.Join(parts, ",")
	}

	return string(raw)
}

func scalarString(raw json.RawMessage) (string, bool) {
	if string(raw) == "null" {
		return "", true
	}

	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str, true
	}

	var num float64
	if err := json.Unmarshal(raw, &num); err == nil {
		if num == float64(int64(num)) {
			return strconv.FormatInt(int64(num), 10), true
		}
		return strconv.FormatFloat(num, 'g', -1, 64), true
	}

	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return strconv.FormatBool(b), true
	}
	return "", false
}
