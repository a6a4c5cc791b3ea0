package fhir

import (
	"fmt"
	"strings"
	"time"
)

// SearchPrefix represents a FHIR search prefix for ordered values.
type SearchPrefix string

const (
	PrefixEq SearchPrefix = "eq"
	PrefixNe SearchPrefix = "ne"
	PrefixGt SearchPrefix = "gt"
	PrefixLt SearchPrefix = "lt"
	PrefixGe SearchPrefix = "ge"
	PrefixLe SearchPrefix = "le"
	PrefixSa SearchPrefix = "sa" // starts after
	PrefixEb SearchPrefix = "eb" // ends before
)

// SearchModifier represents a FHIR search modifier.
type SearchModifier string

const (
	ModifierExact    SearchModifier = "exact"
	ModifierContains SearchModifier = "contains"
)

type ParsedSearch struct {
	Prefix SearchPrefix
	Value  string
}

// ParseSearchValue extracts the prefix from a FHIR search value.
// Examples: "gt2023-01-01" -> (gt, "2023-01-01"), "2023" -> (eq, "2023")
func ParseSearchValue(raw string) ParsedSearch {
	if len(raw) >= 2 {
		prefix := SearchPrefix(strings.ToLower(raw[:2]))
		switch prefix {
		case PrefixEq, PrefixNe, PrefixGt, PrefixLt, PrefixGe, PrefixLe, PrefixSa, PrefixEb:
			return ParsedSearch{Prefix: prefix, Value: raw[2:]}
		}
	}
	return ParsedSearch{Prefix: PrefixEq, Value: raw}
}

// ParseParamModifier splits a parameter name from its modifier.
// Examples: "code:exact" -> ("code", "exact"), "code" -> ("code", "")
func ParseParamModifier(paramName string) (string, SearchModifier) {
	parts := strings.SplitN(paramName, ":", 2)
	if len(parts) == 2 {
		return parts[0], SearchModifier(parts[1])
	}
	return parts[0], ""
}

// DateSearchClause generates SQL for a date search parameter with prefix
// support and returns the clause, its arguments and the next argument index.
// An eq search covers the whole precision of the value: "2024-03" matches the
// entire month.
func DateSearchClause(column string, value string, argIdx int) (string, []interface{}, int) {
	parsed := ParseSearchValue(value)

	start, end, err := parseFlexDate(parsed.Value)
	if err != nil {
		return fmt.Sprintf("%s::text = $%d", column, argIdx), []interface{}{parsed.Value}, argIdx + 1
	}

	switch parsed.Prefix {
	case PrefixGt, PrefixSa:
		return fmt.Sprintf("%s >= $%d", column, argIdx), []interface{}{end}, argIdx + 1
	case PrefixLt, PrefixEb:
		return fmt.Sprintf("%s < $%d", column, argIdx), []interface{}{start}, argIdx + 1
	case PrefixGe:
		return fmt.Sprintf("%s >= $%d", column, argIdx), []interface{}{start}, argIdx + 1
	case PrefixLe:
		return fmt.Sprintf("%s < $%d", column, argIdx), []interface{}{end}, argIdx + 1
	case PrefixNe:
		clause := fmt.Sprintf("(%s < $%d OR %s >= $%d)", column, argIdx, column, argIdx+1)
		return clause, []interface{}{start, end}, argIdx + 2
	default:
		clause := fmt.Sprintf("(%s >= $%d AND %s < $%d)", column, argIdx, column, argIdx+1)
		return clause, []interface{}{start, end}, argIdx + 2
	}
}

// TokenSearchClause handles token search parameters in the format
// "system|code", "|code", "system|", or just "code".
func TokenSearchClause(systemCol, codeCol string, value string, argIdx int) (string, []interface{}, int) {
	if strings.Contains(value, "|") {
		parts := strings.SplitN(value, "|", 2)
		system, code := parts[0], parts[1]

		switch {
		case system != "" && code != "":
			clause := fmt.Sprintf("(%s = $%d AND %s = $%d)", systemCol, argIdx, codeCol, argIdx+1)
			return clause, []interface{}{system, code}, argIdx + 2
		case system != "":
			return fmt.Sprintf("%s = $%d", systemCol, argIdx), []interface{}{system}, argIdx + 1
		case code != "":
			return fmt.Sprintf("%s = $%d", codeCol, argIdx), []interface{}{code}, argIdx + 1
		}
	}
	return fmt.Sprintf("%s = $%d", codeCol, argIdx), []interface{}{value}, argIdx + 1
}

// StringSearchClause handles string search parameters with modifier support.
func StringSearchClause(column string, value string, modifier SearchModifier, argIdx int) (string, []interface{}, int) {
	switch modifier {
	case ModifierExact:
		return fmt.Sprintf("%s = $%d", column, argIdx), []interface{}{value}, argIdx + 1
	case ModifierContains:
		return fmt.Sprintf("%s ILIKE $%d", column, argIdx), []interface{}{"%" + value + "%"}, argIdx + 1
	default:
		return fmt.Sprintf("%s ILIKE $%d", column, argIdx), []interface{}{value + "%"}, argIdx + 1
	}
}

// ReferenceSearchClause matches a reference column holding host uuids against
// "Type/uuid", an absolute URL ending in "Type/uuid", or a bare uuid.
func ReferenceSearchClause(column string, value string, argIdx int) (string, []interface{}, int) {
	if idx := strings.LastIndex(value, "/"); idx >= 0 {
		value = value[idx+1:]
	}
	return fmt.Sprintf("%s = $%d", column, argIdx), []interface{}{value}, argIdx + 1
}

// parseFlexDate parses a FHIR date of any precision and returns the half-open
// interval [start, end) it covers.
func parseFlexDate(s string) (time.Time, time.Time, error) {
	formats := []struct {
		layout string
		next   func(time.Time) time.Time
	}{
		{time.RFC3339, func(t time.Time) time.Time { return t.Add(time.Second) }},
		{"2006-01-02T15:04:05", func(t time.Time) time.Time { return t.Add(time.Second) }},
		{"2006-01-02", func(t time.Time) time.Time { return t.AddDate(0, 0, 1) }},
		{"2006-01", func(t time.Time) time.Time { return t.AddDate(0, 1, 0) }},
		{"2006", func(t time.Time) time.Time { return t.AddDate(1, 0, 0) }},
	}
	for _, f := range formats {
		if t, err := time.Parse(f.layout, s); err == nil {
			return t, f.next(t), nil
		}
	}
	return time.Time{}, time.Time{}, fmt.Errorf("unable to parse date: %s", s)
}
