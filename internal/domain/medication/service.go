package medication

import (
	"context"
	"fmt"
	"maps"

	"github.com/ehr/fhir2/internal/domain/concept"
	"github.com/ehr/fhir2/internal/platform/fhir"
)

// MedicationRequestService answers MedicationRequest reads and searches
// from host drug orders.
type MedicationRequestService struct {
	orders      DrugOrderRepository
	translator  *MedicationRequestTranslator
	terminology *fhir.Terminology
}

func NewMedicationRequestService(orders DrugOrderRepository, translator *MedicationRequestTranslator, terminology *fhir.Terminology) *MedicationRequestService {
	return &MedicationRequestService{orders: orders, translator: translator, terminology: terminology}
}

// Get returns the MedicationRequest for the drug order with uuid id.
func (s *MedicationRequestService) Get(ctx context.Context, id string) (*fhir.MedicationRequest, error) {
	order, err := s.orders.GetByUUID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load drug order: %w", err)
	}
	if order == nil {
		return nil, fhir.NewResourceNotFoundError("MedicationRequest", id)
	}
	return s.translator.ToFHIR(ctx, order), nil
}

func (s *MedicationRequestService) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*fhir.MedicationRequest, int, error) {
	if status, ok := params["status"]; ok && s.terminology != nil &&
		!s.terminology.Validate(fhir.SystemMedicationRequestStatus, status) {
		return nil, 0, fhir.NewInvalidRequestError(fmt.Sprintf("unknown MedicationRequest status %q", status))
	}

	params, ok := s.resolveCode(ctx, params)
	if !ok {
		return []*fhir.MedicationRequest{}, 0, nil
	}

	orders, total, err := s.orders.Search(ctx, params, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("search drug orders: %w", err)
	}
	out := make([]*fhir.MedicationRequest, 0, len(orders))
	for _, o := range orders {
		out = append(out, s.translator.ToFHIR(ctx, o))
	}
	return out, total, nil
}

// resolveCode rewrites the code parameter to the uuid of the concept it
// denotes. ok is false when no concept matches.
func (s *MedicationRequestService) resolveCode(ctx context.Context, params map[string]string) (map[string]string, bool) {
	token, found := params["code"]
	if !found {
		return params, true
	}
	uuid, ok := concept.ResolveToken(ctx, s.translator.concepts, token)
	if !ok {
		return nil, false
	}
	out := maps.Clone(params)
	out["code"] = uuid
	return out, true
}
