package medication

import (
	"context"
	"errors"
	"testing"

	"github.com/ehr/fhir2/internal/platform/fhir"
)

type mockOrderRepo struct {
	orders     map[string]*DrugOrder
	err        error
	lastParams map[string]string
}

func newMockOrderRepo(orders ...*DrugOrder) *mockOrderRepo {
	m := &mockOrderRepo{orders: map[string]*DrugOrder{}}
	for _, o := range orders {
		m.orders[o.UUID] = o
	}
	return m
}

func (m *mockOrderRepo) GetByUUID(ctx context.Context, uuid string) (*DrugOrder, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.orders[uuid], nil
}

func (m *mockOrderRepo) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*DrugOrder, int, error) {
	m.lastParams = params
	if m.err != nil {
		return nil, 0, m.err
	}
	var out []*DrugOrder
	for _, o := range m.orders {
		if p, ok := params["patient"]; ok && "Patient/"+o.PatientUUID != p && o.PatientUUID != p {
			continue
		}
		out = append(out, o)
	}
	total := len(out)
	if offset >= len(out) {
		return nil, total, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, total, nil
}

func newTestService(t *testing.T, repo *mockOrderRepo) *MedicationRequestService {
	t.Helper()
	tr := newTestTranslator(t)
	return NewMedicationRequestService(repo, tr, tr.terminology)
}

func TestService_Get(t *testing.T) {
	svc := newTestService(t, newMockOrderRepo(sampleOrder()))

	mr, err := svc.Get(context.Background(), sampleOrder().UUID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mr.ID != sampleOrder().UUID {
		t.Errorf("unexpected id %s", mr.ID)
	}
}

func TestService_Get_NotFound(t *testing.T) {
	svc := newTestService(t, newMockOrderRepo())

	_, err := svc.Get(context.Background(), "missing")
	if !fhir.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	var fe *fhir.Error
	if !errors.As(err, &fe) || fe.Diagnostics != "Resource MedicationRequest/missing is not known" {
		t.Errorf("unexpected error %v", err)
	}
}

func TestService_Get_StorageError(t *testing.T) {
	repo := newMockOrderRepo()
	repo.err = errors.New("connection reset")
	svc := newTestService(t, repo)

	_, err := svc.Get(context.Background(), "x")
	if err == nil || fhir.IsNotFound(err) {
		t.Fatalf("expected storage error, got %v", err)
	}
}

func TestService_Search(t *testing.T) {
	other := sampleOrder()
	other.UUID = "other"
	other.PatientUUID = "someone-else"
	svc := newTestService(t, newMockOrderRepo(sampleOrder(), other))

	items, total, err := svc.Search(context.Background(), map[string]string{"patient": "Patient/" + patientUUID}, 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || len(items) != 1 || items[0].Subject.Reference != "Patient/"+patientUUID {
		t.Errorf("unexpected result total=%d items=%d", total, len(items))
	}
}

func TestService_Search_InvalidStatus(t *testing.T) {
	repo := newMockOrderRepo()
	svc := newTestService(t, repo)

	_, _, err := svc.Search(context.Background(), map[string]string{"status": "bogus"}, 10, 0)
	if fhir.StatusOf(err) != 400 {
		t.Fatalf("expected 400, got %v", err)
	}
	if repo.lastParams != nil {
		t.Error("repository should not be queried for an invalid status")
	}

	if _, _, err := svc.Search(context.Background(), map[string]string{"status": "stopped"}, 10, 0); err != nil {
		t.Errorf("unexpected error for valid status: %v", err)
	}
}

func TestService_Search_CodeToken(t *testing.T) {
	tests := map[string]string{
		aspirinUUID:                        aspirinUUID,
		"|" + aspirinUUID:                  aspirinUUID,
		rxnormSystem + "|" + aspirinRxNorm: aspirinUUID,
	}
	for token, want := range tests {
		repo := newMockOrderRepo(sampleOrder())
		svc := newTestService(t, repo)
		params := map[string]string{"code": token}

		if _, _, err := svc.Search(context.Background(), params, 10, 0); err != nil {
			t.Fatalf("%s: unexpected error: %v", token, err)
		}
		if repo.lastParams["code"] != want {
			t.Errorf("%s: repository searched code %q, want %q", token, repo.lastParams["code"], want)
		}
		if params["code"] != token {
			t.Errorf("%s: caller parameters were modified", token)
		}
	}
}

func TestService_Search_UnknownCodeMatchesNothing(t *testing.T) {
	for _, token := range []string{rxnormSystem + "|0000", "http://loinc.org|" + aspirinRxNorm, "|missing"} {
		repo := newMockOrderRepo(sampleOrder())
		svc := newTestService(t, repo)

		items, total, err := svc.Search(context.Background(), map[string]string{"code": token}, 10, 0)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", token, err)
		}
		if total != 0 || len(items) != 0 {
			t.Errorf("%s: expected no results, got total=%d items=%d", token, total, len(items))
		}
		if repo.lastParams != nil {
			t.Errorf("%s: repository should not be queried", token)
		}
	}
}
