package fhir

import (
	"embed"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/gofhir/fhir/r4"
)

// Code system URLs used by the translators.
const (
	SystemUnitsOfTime               = "http://unitsofmeasure.org"
	SystemDiagnosticServiceSection  = "http://terminology.hl7.org/CodeSystem/v2-0074"
	SystemDiagnosticReportStatus    = "http://hl7.org/fhir/diagnostic-report-status"
	SystemMedicationRequestStatus   = "http://hl7.org/fhir/CodeSystem/medicationrequest-status"
	SystemMedicationRequestCategory = "http://terminology.hl7.org/CodeSystem/medicationrequest-category"
)

//go:embed codesystems/*.json
var codeSystemFiles embed.FS

// Terminology is an in-memory index of CodeSystem concepts.
type Terminology struct {
	mu      sync.RWMutex
	systems map[string]map[string]string
}

func NewTerminology() *Terminology {
	return &Terminology{systems: map[string]map[string]string{}}
}

// LoadTerminology returns a Terminology holding the bundled code systems.
func LoadTerminology() (*Terminology, error) {
	t := NewTerminology()
	entries, err := codeSystemFiles.ReadDir("codesystems")
	if err != nil {
		return nil, fmt.Errorf("read embedded code systems: %w", err)
	}
	for _, entry := range entries {
		data, err := codeSystemFiles.ReadFile("codesystems/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", entry.Name(), err)
		}
		if err := t.Load(data); err != nil {
			return nil, fmt.Errorf("load %s: %w", entry.Name(), err)
		}
	}
	return t, nil
}

// Load parses a CodeSystem resource and indexes its concepts, nested ones
// included. Loading a system twice replaces it.
func (t *Terminology) Load(data []byte) error {
	var cs r4.CodeSystem
	if err := json.Unmarshal(data, &cs); err != nil {
		return fmt.Errorf("failed to parse CodeSystem: %w", err)
	}
	if cs.Url == nil || *cs.Url == "" {
		return fmt.Errorf("codesystem has no URL")
	}

	codes := map[string]string{}
	indexConcepts(cs.Concept, codes)

	t.mu.Lock()
	t.systems[*cs.Url] = codes
	t.mu.Unlock()
	return nil
}

func indexConcepts(concepts []r4.CodeSystemConcept, codes map[string]string) {
	for i := range concepts {
		c := &concepts[i]
		if c.Code == nil {
			continue
		}
		display := ""
		if c.Display != nil {
			display = *c.Display
		}
		codes[*c.Code] = display
		if len(c.Concept) > 0 {
			indexConcepts(c.Concept, codes)
		}
	}
}

// Validate reports whether code is defined in system.
func (t *Terminology) Validate(system, code string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.systems[system][code]
	return ok
}

// Display returns the display of code in system, or "" when unknown.
func (t *Terminology) Display(system, code string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.systems[system][code]
}

// Coding builds a Coding with the display filled from the code system.
func (t *Terminology) Coding(system, code string) Coding {
	return Coding{System: system, Code: code, Display: t.Display(system, code)}
}

// Systems lists the loaded code system URLs.
func (t *Terminology) Systems() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.systems))
	for url := range t.systems {
		out = append(out, url)
	}
	sort.Strings(out)
	return out
}
