package concept

// Concept is a host dictionary entry.
type Concept struct {
	ID       int64
	UUID     string
	Name     string
	Mappings []ConceptMapping
}

// ConceptMapping links a concept to a code in an external concept source.
type ConceptMapping struct {
	SourceName string
	Code       string
	Display    string
}
