// Package validation checks inbound run payloads before any persistence
// attempt. Validation runs against the decoded JSON document rather than a
// typed struct so that type mismatches (e.g. a numeric field submitted as a
// string) are reported as validation errors alongside every other violation,
// instead of failing the whole request at decode time with a single opaque
// error. All violations are collected; nothing short-circuits.
package validation

import (
	"fmt"
	"math"
	"time"
)

const (
	// RunIDPrefix is the required namespace prefix for client-chosen run
	// identifiers. The prefix distinguishes run identifiers from arbitrary
	// test data carried inside the payload.
	RunIDPrefix = "tr_"

	// RunIDMinSuffixLength is the minimum number of characters required after
	// the prefix.
	RunIDMinSuffixLength = 4
)

// validStatuses enumerates the accepted test case statuses.
var validStatuses = map[string]bool{
	"passed":  true,
	"failed":  true,
	"flaky":   true,
	"skipped": true,
}

// summaryCountFields are the required count fields of the summary object.
// Counts must be whole numbers: the stored record holds them as integers, so a
// fractional count is rejected here rather than surfacing as a decode failure
// after validation has passed.
var summaryCountFields = []string{"total_test_cases", "passed", "failed", "flaky", "skipped"}

// suiteCountFields are the required count fields of each suite.
var suiteCountFields = []string{"total_cases", "passed", "failed"}

// ValidateRun validates a decoded run payload and returns every violation
// found. An empty slice means the payload is valid. The function is pure: no
// I/O, no side effects, sibling fields are always traversed even when earlier
// fields are invalid.
func ValidateRun(payload map[string]interface{}) []string {
	var errs []string

	errs = append(errs, validateRunID(payload)...)
	errs = append(errs, validateEnvironment(payload)...)
	errs = append(errs, validateTimestamp(payload)...)
	errs = append(errs, validateSummary(payload)...)
	errs = append(errs, validateSuites(payload)...)

	return errs
}

func validateRunID(payload map[string]interface{}) []string {
	raw, ok := payload["run_id"]
	if !ok {
		return []string{"run_id is required"}
	}
	runID, ok := raw.(string)
	if !ok {
		return []string{"run_id must be a string"}
	}
	if runID == "" {
		return []string{"run_id must not be empty"}
	}
	if len(runID) < len(RunIDPrefix) || runID[:len(RunIDPrefix)] != RunIDPrefix {
		return []string{fmt.Sprintf("run_id must start with the %q prefix", RunIDPrefix)}
	}
	if len(runID) < len(RunIDPrefix)+RunIDMinSuffixLength {
		return []string{fmt.Sprintf("run_id must have at least %d characters after the %q prefix", RunIDMinSuffixLength, RunIDPrefix)}
	}
	return nil
}

func validateEnvironment(payload map[string]interface{}) []string {
	raw, ok := payload["environment"]
	if !ok {
		return []string{"environment is required"}
	}
	env, ok := raw.(string)
	if !ok {
		return []string{"environment must be a string"}
	}
	if env == "" {
		return []string{"environment must not be empty"}
	}
	return nil
}

func validateTimestamp(payload map[string]interface{}) []string {
	raw, ok := payload["timestamp"]
	if !ok {
		return []string{"timestamp is required"}
	}
	ts, ok := raw.(string)
	if !ok {
		return []string{"timestamp must be an RFC3339 date-time string"}
	}
	if _, err := time.Parse(time.RFC3339, ts); err != nil {
		return []string{fmt.Sprintf("timestamp %q is not a valid RFC3339 date-time", ts)}
	}
	return nil
}

func validateSummary(payload map[string]interface{}) []string {
	raw, ok := payload["summary"]
	if !ok {
		return []string{"summary is required"}
	}
	summary, ok := raw.(map[string]interface{})
	if !ok {
		return []string{"summary must be an object"}
	}

	var errs []string
	for _, field := range summaryCountFields {
		errs = append(errs, checkNonNegativeInteger(summary, field, "summary")...)
	}
	// Durations may be fractional: CI timers commonly report sub-millisecond
	// precision. The stored value is truncated to whole milliseconds.
	errs = append(errs, checkNonNegativeNumber(summary, "duration_ms", "summary")...)
	return errs
}

func validateSuites(payload map[string]interface{}) []string {
	raw, ok := payload["test_suites"]
	if !ok || raw == nil {
		return nil // Optional
	}
	suites, ok := raw.([]interface{})
	if !ok {
		return []string{"test_suites must be a list"}
	}

	var errs []string
	for i, rawSuite := range suites {
		suite, ok := rawSuite.(map[string]interface{})
		if !ok {
			errs = append(errs, fmt.Sprintf("test_suites[%d] must be an object", i))
			continue
		}
		prefix := fmt.Sprintf("test_suites[%d]", i)

		errs = append(errs, checkNonEmptyString(suite, "suite_name", prefix)...)
		for _, field := range suiteCountFields {
			errs = append(errs, checkNonNegativeInteger(suite, field, prefix)...)
		}
		errs = append(errs, checkNonNegativeNumber(suite, "duration_ms", prefix)...)
		errs = append(errs, validateCases(suite, prefix)...)
	}
	return errs
}

func validateCases(suite map[string]interface{}, suitePrefix string) []string {
	raw, ok := suite["test_cases"]
	if !ok || raw == nil {
		return nil // Optional
	}
	cases, ok := raw.([]interface{})
	if !ok {
		return []string{suitePrefix + ".test_cases must be a list"}
	}

	var errs []string
	for i, rawCase := range cases {
		testCase, ok := rawCase.(map[string]interface{})
		if !ok {
			errs = append(errs, fmt.Sprintf("%s.test_cases[%d] must be an object", suitePrefix, i))
			continue
		}
		prefix := fmt.Sprintf("%s.test_cases[%d]", suitePrefix, i)

		errs = append(errs, checkNonEmptyString(testCase, "name", prefix)...)
		errs = append(errs, checkNonNegativeNumber(testCase, "duration_ms", prefix)...)

		status, ok := testCase["status"].(string)
		if !ok || !validStatuses[status] {
			errs = append(errs, prefix+".status must be one of: passed, failed, flaky, skipped")
		}
	}
	return errs
}

func checkNonEmptyString(obj map[string]interface{}, field, prefix string) []string {
	raw, ok := obj[field]
	if !ok {
		return []string{fmt.Sprintf("%s.%s is required", prefix, field)}
	}
	s, ok := raw.(string)
	if !ok || s == "" {
		return []string{fmt.Sprintf("%s.%s must be a non-empty string", prefix, field)}
	}
	return nil
}

func checkNonNegativeNumber(obj map[string]interface{}, field, prefix string) []string {
	raw, ok := obj[field]
	if !ok {
		return []string{fmt.Sprintf("%s.%s is required", prefix, field)}
	}
	// encoding/json decodes every JSON number as float64.
	n, ok := raw.(float64)
	if !ok {
		return []string{fmt.Sprintf("%s.%s must be a number", prefix, field)}
	}
	if n < 0 {
		return []string{fmt.Sprintf("%s.%s must not be negative", prefix, field)}
	}
	return nil
}

func checkNonNegativeInteger(obj map[string]interface{}, field, prefix string) []string {
	raw, ok := obj[field]
	if !ok {
		return []string{fmt.Sprintf("%s.%s is required", prefix, field)}
	}
	n, ok := raw.(float64)
	if !ok {
		return []string{fmt.Sprintf("%s.%s must be a number", prefix, field)}
	}
	if n < 0 {
		return []string{fmt.Sprintf("%s.%s must not be negative", prefix, field)}
	}
	if n != math.Trunc(n) {
		return []string{fmt.Sprintf("%s.%s must be an integer", prefix, field)}
	}
	return nil
}
