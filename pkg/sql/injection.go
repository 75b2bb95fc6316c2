package sql

import (
	"sort"

	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionCheckResult describes a parameter value that looks like SQL injection.
type InjectionCheckResult struct {
	ParamName   string
	ParamValue  string
	Fingerprint string // libinjection fingerprint of the matched pattern
}

// CheckParameterForInjection runs libinjection over a parameter value. Only
// strings are checked; numbers, booleans and nil return nil.
func CheckParameterForInjection(paramName string, value any) *InjectionCheckResult {
	str, ok := value.(string)
	if !ok {
		return nil
	}
	isSQLi, fingerprint := libinjection.IsSQLi(str)
	if !isSQLi {
		return nil
	}
	return &InjectionCheckResult{
		ParamName:   paramName,
		ParamValue:  str,
		Fingerprint: string(fingerprint),
	}
}

// CheckAllParameters returns one result per suspicious value, ordered by
// parameter name.
func CheckAllParameters(params map[string]any) []*InjectionCheckResult {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	var results []*InjectionCheckResult
	for _, name := range names {
		if r := CheckParameterForInjection(name, params[name]); r != nil {
			results = append(results, r)
		}
	}
	return results
}
