package fhir

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/labstack/echo/v4"
)

// SearchParamType defines the FHIR search parameter type.
type SearchParamType int

const (
	SearchParamToken     SearchParamType = iota // exact match or system|code
	SearchParamDate                             // prefixes gt, lt, ge, le, eq, ne
	SearchParamString                           // case-insensitive prefix match, :exact, :contains
	SearchParamReference                        // "ResourceType/uuid" or "uuid"
)

func (t SearchParamType) String() string {
	switch t {
	case SearchParamToken:
		return "token"
	case SearchParamDate:
		return "date"
	case SearchParamString:
		return "string"
	case SearchParamReference:
		return "reference"
	default:
		return "unknown"
	}
}

// SearchParamConfig maps a FHIR search parameter to its database representation.
type SearchParamConfig struct {
	Type      SearchParamType
	Column    string // code column for tokens
	SysColumn string // system column for tokens, optional
}

// SearchQuery builds SQL WHERE clauses from FHIR search parameters.
type SearchQuery struct {
	table   string
	cols    string
	where   string
	args    []interface{}
	idx     int
	orderBy string
}

func NewSearchQuery(table, cols string) *SearchQuery {
	return &SearchQuery{
		table: table,
		cols:  cols,
		idx:   1,
	}
}

// Idx returns the next available parameter index.
func (q *SearchQuery) Idx() int { return q.idx }

// Add appends a raw WHERE clause fragment (without leading "AND"). Placeholders
// in clause must start at Idx().
func (q *SearchQuery) Add(clause string, args ...interface{}) {
	q.where += " AND " + clause
	q.args = append(q.args, args...)
	q.idx += len(args)
}

func (q *SearchQuery) add(clause string, args []interface{}, next int) {
	q.where += " AND " + clause
	q.args = append(q.args, args...)
	q.idx = next
}

// ApplyParam applies a single FHIR search parameter using the config.
func (q *SearchQuery) ApplyParam(config SearchParamConfig, value string, modifier SearchModifier) {
	switch config.Type {
	case SearchParamDate:
		q.add(DateSearchClause(config.Column, value, q.idx))
	case SearchParamToken:
		if config.SysColumn != "" {
			q.add(TokenSearchClause(config.SysColumn, config.Column, value, q.idx))
		} else {
			q.Add(fmt.Sprintf("%s = $%d", config.Column, q.idx), value)
		}
	case SearchParamString:
		q.add(StringSearchClause(config.Column, value, modifier, q.idx))
	case SearchParamReference:
		q.add(ReferenceSearchClause(config.Column, value, q.idx))
	}
}

// ApplyParams applies every parameter that has a config. Keys may carry a
// modifier ("code:exact"). Parameters are applied in sorted key order so the
// generated SQL is stable.
func (q *SearchQuery) ApplyParams(params map[string]string, configs map[string]SearchParamConfig) {
	for _, key := range sortedKeys(params) {
		name, modifier := ParseParamModifier(key)
		if config, ok := configs[name]; ok {
			q.ApplyParam(config, params[key], modifier)
		}
	}
}

// OrderBy sets the ORDER BY clause (without the "ORDER BY" keyword).
func (q *SearchQuery) OrderBy(orderBy string) {
	q.orderBy = orderBy
}

func (q *SearchQuery) CountSQL() string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE 1=1%s", q.table, q.where)
}

func (q *SearchQuery) CountArgs() []interface{} {
	return q.args
}

// DataSQL returns the data query SQL with ORDER BY and LIMIT/OFFSET.
func (q *SearchQuery) DataSQL() string {
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE 1=1%s", q.cols, q.table, q.where)
	if q.orderBy != "" {
		sql += " ORDER BY " + q.orderBy
	}
	sql += fmt.Sprintf(" LIMIT $%d OFFSET $%d", q.idx, q.idx+1)
	return sql
}

// DataArgs returns the arguments for the data query (search args + limit + offset).
func (q *SearchQuery) DataArgs(limit, offset int) []interface{} {
	result := make([]interface{}, len(q.args)+2)
	copy(result, q.args)
	result[len(q.args)] = limit
	result[len(q.args)+1] = offset
	return result
}

// ApplySort processes the _sort parameter, a comma-separated list of param
// names optionally prefixed with - for DESC. Unknown names are ignored;
// defaultOrder is used when nothing remains.
func (q *SearchQuery) ApplySort(sortParam, defaultOrder string, configs map[string]SearchParamConfig) {
	var parts []string
	for _, field := range strings.Split(sortParam, ",") {
		field = strings.TrimSpace(field)
		dir := " ASC"
		if strings.HasPrefix(field, "-") {
			dir = " DESC"
			field = field[1:]
		}
		if config, ok := configs[field]; ok {
			parts = append(parts, config.Column+dir)
		}
	}
	if len(parts) > 0 {
		q.orderBy = strings.Join(parts, ", ")
	} else {
		q.orderBy = defaultOrder
	}
}

// ExtractSearchParams extracts FHIR search parameters from the query string
// (or the form body of a POST _search),
// excluding control parameters (_count, _offset, _sort, ...) other than
// _lastUpdated and _id.
func ExtractSearchParams(c echo.Context) map[string]string {
	values := c.QueryParams()
	if c.Request().Method == http.MethodPost {
		if form, err := c.FormParams(); err == nil {
			values = form
		}
	}
	params := map[string]string{}
	for k, v := range values {
		if len(v) == 0 {
			continue
		}
		if strings.HasPrefix(k, "_") && k != "_lastUpdated" && k != "_id" {
			continue
		}
		params[k] = v[0]
	}
	return params
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
