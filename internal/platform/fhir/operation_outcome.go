package fhir

// OperationOutcome severity levels.
const (
	IssueSeverityFatal       = "fatal"
	IssueSeverityError       = "error"
	IssueSeverityWarning     = "warning"
	IssueSeverityInformation = "information"
)

// OperationOutcome issue type codes.
const (
	IssueTypeInvalid       = "invalid"
	IssueTypeRequired      = "required"
	IssueTypeValue         = "value"
	IssueTypeInvariant     = "invariant"
	IssueTypeNotFound      = "not-found"
	IssueTypeConflict      = "conflict"
	IssueTypeProcessing    = "processing"
	IssueTypeNotSupported  = "not-supported"
	IssueTypeException     = "exception"
	IssueTypeCodeInvalid   = "code-invalid"
	IssueTypeInformational = "informational"
)

// OutcomeBuilder provides a fluent API for constructing OperationOutcome resources.
type OutcomeBuilder struct {
	outcome *OperationOutcome
}

func NewOutcomeBuilder() *OutcomeBuilder {
	return &OutcomeBuilder{
		outcome: &OperationOutcome{
			ResourceType: "OperationOutcome",
		},
	}
}

func (b *OutcomeBuilder) AddIssue(severity, code, diagnostics string) *OutcomeBuilder {
	b.outcome.Issue = append(b.outcome.Issue, OperationOutcomeIssue{
		Severity:    severity,
		Code:        code,
		Diagnostics: diagnostics,
	})
	return b
}

// AddIssues appends already built issues, e.g. invariant failures.
func (b *OutcomeBuilder) AddIssues(issues []OperationOutcomeIssue) *OutcomeBuilder {
	b.outcome.Issue = append(b.outcome.Issue, issues...)
	return b
}

func (b *OutcomeBuilder) Build() *OperationOutcome {
	return b.outcome
}

// InternalErrorOutcome creates an OperationOutcome for internal server errors.
func InternalErrorOutcome(diagnostics string) *OperationOutcome {
	return NewOperationOutcome(IssueSeverityFatal, IssueTypeException, diagnostics)
}
