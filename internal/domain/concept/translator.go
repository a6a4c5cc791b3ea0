package concept

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ehr/fhir2/internal/platform/fhir"
)

// SourceLookup resolves concept source names to FHIR system URLs and back.
type SourceLookup interface {
	GetSystemURL(ctx context.Context, sourceName string) (string, bool)
	GetSourceName(ctx context.Context, url string) (string, bool)
}

// Translator converts host concepts to CodeableConcepts and back.
type Translator struct {
	repo    Repository
	sources SourceLookup
	logger  zerolog.Logger
}

func NewTranslator(repo Repository, sources SourceLookup, logger zerolog.Logger) *Translator {
	return &Translator{
		repo:    repo,
		sources: sources,
		logger:  logger.With().Str("component", "conceptTranslator").Logger(),
	}
}

// ToFHIR returns the concept as a CodeableConcept. The first coding carries
// the concept uuid without a system; one coding follows per mapping whose
// source has a registered system URL.
func (t *Translator) ToFHIR(ctx context.Context, c *Concept) *fhir.CodeableConcept {
	if c == nil {
		return nil
	}

	cc := &fhir.CodeableConcept{Text: c.Name}
	if c.UUID != "" {
		cc.Coding = append(cc.Coding, fhir.Coding{Code: c.UUID, Display: c.Name})
	}
	for _, m := range c.Mappings {
		url, ok := t.sources.GetSystemURL(ctx, m.SourceName)
		if !ok {
			continue
		}
		cc.Coding = append(cc.Coding, fhir.Coding{System: url, Code: m.Code, Display: m.Display})
	}
	return cc
}

// ToHost finds the concept a CodeableConcept denotes. Codings with a known
// system are tried first, then system-less codings as concept uuids.
func (t *Translator) ToHost(ctx context.Context, cc *fhir.CodeableConcept) *Concept {
	if cc == nil {
		return nil
	}

	for _, coding := range cc.Coding {
		if coding.System == "" || coding.Code == "" {
			continue
		}
		source, ok := t.sources.GetSourceName(ctx, coding.System)
		if !ok {
			continue
		}
		c, err := t.repo.GetByMapping(ctx, source, coding.Code)
		if err != nil {
			t.logger.Error().Err(err).Str("system", coding.System).Str("code", coding.Code).Msg("failed to load concept by mapping")
			continue
		}
		if c != nil {
			return c
		}
	}

	for _, coding := range cc.Coding {
		if coding.System != "" || coding.Code == "" {
			continue
		}
		if c := t.Get(ctx, coding.Code); c != nil {
			return c
		}
	}
	return nil
}

// Get loads a concept by uuid, logging storage errors as a miss.
func (t *Translator) Get(ctx context.Context, uuid string) *Concept {
	if uuid == "" {
		return nil
	}
	c, err := t.repo.GetByUUID(ctx, uuid)
	if err != nil {
		t.logger.Error().Err(err).Str("uuid", uuid).Msg("failed to load concept")
		return nil
	}
	return c
}

// HostResolver finds the host concept a CodeableConcept denotes.
type HostResolver interface {
	ToHost(ctx context.Context, cc *fhir.CodeableConcept) *Concept
}

// ResolveToken returns the concept uuid a token search value denotes. A bare
// value is a concept uuid and passes through; "|uuid" and "system|code" are
// looked up. ok is false when the token names no concept.
func ResolveToken(ctx context.Context, r HostResolver, token string) (uuid string, ok bool) {
	system, code, qualified := strings.Cut(token, "|")
	if !qualified {
		return token, token != ""
	}
	if code == "" {
		return "", false
	}
	c := r.ToHost(ctx, &fhir.CodeableConcept{Coding: []fhir.Coding{{System: system, Code: code}}})
	if c == nil || c.UUID == "" {
		return "", false
	}
	return c.UUID, true
}
