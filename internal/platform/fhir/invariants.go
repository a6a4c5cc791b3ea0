package fhir

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gofhir/fhirpath"
)

// Invariant is a FHIRPath constraint a resource must satisfy.
type Invariant struct {
	Key        string
	Expression string
	Human      string
}

// InvariantChecker evaluates invariants and caches compiled expressions.
type InvariantChecker struct {
	mu    sync.RWMutex
	cache map[string]*fhirpath.Expression
}

func NewInvariantChecker() *InvariantChecker {
	return &InvariantChecker{cache: make(map[string]*fhirpath.Expression)}
}

var defaultChecker = NewInvariantChecker()

// CheckInvariants evaluates invariants against resource with a shared checker.
func CheckInvariants(resource any, invariants []Invariant) []OperationOutcomeIssue {
	return defaultChecker.Check(resource, invariants)
}

// Check returns one issue per failed invariant. An empty result passes, as
// does a non-boolean non-empty one. Expressions that cannot be compiled or
// evaluated yield an exception issue.
func (c *InvariantChecker) Check(resource any, invariants []Invariant) []OperationOutcomeIssue {
	data, err := json.Marshal(resource)
	if err != nil {
		return []OperationOutcomeIssue{{
			Severity:    IssueSeverityError,
			Code:        IssueTypeException,
			Diagnostics: fmt.Sprintf("unable to serialize resource: %v", err),
		}}
	}

	var issues []OperationOutcomeIssue
	for _, inv := range invariants {
		expr, err := c.compile(inv.Expression)
		if err != nil {
			issues = append(issues, exceptionIssue(inv, err))
			continue
		}
		result, err := expr.Evaluate(data)
		if err != nil {
			issues = append(issues, exceptionIssue(inv, err))
			continue
		}
		if passed(result) {
			continue
		}
		issues = append(issues, OperationOutcomeIssue{
			Severity:    IssueSeverityError,
			Code:        IssueTypeInvariant,
			Diagnostics: fmt.Sprintf("Constraint failed: %s: '%s'", inv.Key, inv.Human),
			Expression:  []string{inv.Expression},
		})
	}
	return issues
}

func (c *InvariantChecker) compile(expression string) (*fhirpath.Expression, error) {
	c.mu.RLock()
	compiled, ok := c.cache[expression]
	c.mu.RUnlock()
	if ok {
		return compiled, nil
	}

	compiled, err := fhirpath.Compile(expression)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache[expression] = compiled
	c.mu.Unlock()
	return compiled, nil
}

func passed(result fhirpath.Collection) bool {
	if result.Empty() {
		return true
	}
	b, err := result.ToBoolean()
	if err != nil {
		return true
	}
	return b
}

func exceptionIssue(inv Invariant, err error) OperationOutcomeIssue {
	return OperationOutcomeIssue{
		Severity:    IssueSeverityError,
		Code:        IssueTypeException,
		Diagnostics: fmt.Sprintf("invariant %s could not be evaluated: %v", inv.Key, err),
		Expression:  []string{inv.Expression},
	}
}
