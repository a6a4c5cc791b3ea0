package medication

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/fhir2/internal/domain/concept"
	"github.com/ehr/fhir2/internal/platform/db"
	"github.com/ehr/fhir2/internal/platform/fhir"
)

type drugOrderRepoPG struct{ pool *pgxpool.Pool }

func NewDrugOrderRepoPG(pool *pgxpool.Pool) DrugOrderRepository {
	return &drugOrderRepoPG{pool: pool}
}

const drugOrderTables = `orders o
	JOIN drug_order d ON d.order_id = o.order_id
	JOIN concept dc ON dc.concept_id = o.concept_id
	LEFT JOIN concept du ON du.concept_id = d.dose_units
	LEFT JOIN concept ru ON ru.concept_id = d.route
	LEFT JOIN concept tu ON tu.concept_id = d.duration_units
	LEFT JOIN concept qu ON qu.concept_id = d.quantity_units`

const drugOrderCols = `o.order_id, o.uuid, o.patient_uuid, COALESCE(o.encounter_uuid, ''), COALESCE(o.orderer_uuid, ''),
	dc.uuid, d.dose, du.uuid, ru.uuid, COALESCE(d.frequency, ''), d.as_needed,
	d.duration, tu.uuid, d.quantity, qu.uuid, d.num_refills,
	COALESCE(d.dosing_instructions, ''), COALESCE(o.instructions, ''),
	o.order_action, o.urgency, o.care_setting,
	o.date_activated, o.auto_expire_date, o.date_stopped, o.voided,
	o.date_created, o.date_changed`

// drugOrderSearchParams maps FHIR search parameters to columns.
var drugOrderSearchParams = map[string]fhir.SearchParamConfig{
	"_id":          {Type: fhir.SearchParamToken, Column: "o.uuid"},
	"patient":      {Type: fhir.SearchParamReference, Column: "o.patient_uuid"},
	"subject":      {Type: fhir.SearchParamReference, Column: "o.patient_uuid"},
	"encounter":    {Type: fhir.SearchParamReference, Column: "o.encounter_uuid"},
	"requester":    {Type: fhir.SearchParamReference, Column: "o.orderer_uuid"},
	"code":         {Type: fhir.SearchParamToken, Column: "dc.uuid"},
	"medication":   {Type: fhir.SearchParamReference, Column: "dc.uuid"},
	"authoredon":   {Type: fhir.SearchParamDate, Column: "o.date_activated"},
	"_lastUpdated": {Type: fhir.SearchParamDate, Column: "COALESCE(o.date_changed, o.date_created)"},
}

// statusClauses renders MedicationRequest.status as order predicates.
var statusClauses = map[string]string{
	"active":           "NOT o.voided AND o.date_stopped IS NULL AND (o.auto_expire_date IS NULL OR o.auto_expire_date > NOW())",
	"stopped":          "NOT o.voided AND o.date_stopped IS NOT NULL",
	"completed":        "NOT o.voided AND o.date_stopped IS NULL AND o.auto_expire_date <= NOW()",
	"entered-in-error": "o.voided",
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDrugOrder(row scanner) (*DrugOrder, error) {
	var o DrugOrder
	var drug string
	var doseUnits, route, durationUnits, quantityUnits *string
	var numRefills, duration *int32
	if err := row.Scan(&o.ID, &o.UUID, &o.PatientUUID, &o.EncounterUUID, &o.OrdererUUID,
		&drug, &o.Dose, &doseUnits, &route, &o.Frequency, &o.AsNeeded,
		&duration, &durationUnits, &o.Quantity, &quantityUnits, &numRefills,
		&o.DosingInstructions, &o.Instructions,
		&o.Action, &o.Urgency, &o.CareSetting,
		&o.DateActivated, &o.AutoExpireDate, &o.DateStopped, &o.Voided,
		&o.DateCreated, &o.DateChanged); err != nil {
		return nil, err
	}

	o.Drug = &concept.Concept{UUID: drug}
	o.DoseUnits = conceptRef(doseUnits)
	o.Route = conceptRef(route)
	o.DurationUnits = conceptRef(durationUnits)
	o.QuantityUnits = conceptRef(quantityUnits)
	o.Duration = intPtr(duration)
	o.NumRefills = intPtr(numRefills)
	return &o, nil
}

func conceptRef(uuid *string) *concept.Concept {
	if uuid == nil {
		return nil
	}
	return &concept.Concept{UUID: *uuid}
}

func intPtr(v *int32) *int {
	if v == nil {
		return nil
	}
	i := int(*v)
	return &i
}

func (r *drugOrderRepoPG) GetByUUID(ctx context.Context, uuid string) (*DrugOrder, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+drugOrderCols+` FROM `+drugOrderTables+` WHERE o.uuid = $1`, uuid)
	o, err := scanDrugOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get drug order %s: %w", uuid, err)
	}
	return o, nil
}

func (r *drugOrderRepoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*DrugOrder, int, error) {
	q := buildSearch(params)
	conn := db.Conn(ctx, r.pool)

	var total int
	if err := conn.QueryRow(ctx, q.CountSQL(), q.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count drug orders: %w", err)
	}

	rows, err := conn.Query(ctx, q.DataSQL(), q.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("search drug orders: %w", err)
	}
	defer rows.Close()

	var items []*DrugOrder
	for rows.Next() {
		o, err := scanDrugOrder(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan drug order: %w", err)
		}
		items = append(items, o)
	}
	return items, total, rows.Err()
}

func buildSearch(params map[string]string) *fhir.SearchQuery {
	q := fhir.NewSearchQuery(drugOrderTables, drugOrderCols)
	status, filtered := params["status"]
	switch clause, ok := statusClauses[status]; {
	case ok:
		q.Add(clause)
	case filtered && status != "":
		// no drug order state translates to this status
		q.Add("FALSE")
	default:
		q.Add("NOT o.voided")
	}
	q.ApplyParams(params, drugOrderSearchParams)
	q.ApplySort(params["_sort"], "o.date_activated DESC, o.order_id DESC", drugOrderSearchParams)
	return q
}
