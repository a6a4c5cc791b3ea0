package diagnostics

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/fhir2/internal/domain/concept"
	"github.com/ehr/fhir2/internal/platform/db"
	"github.com/ehr/fhir2/internal/platform/fhir"
)

type diagnosticReportRepoPG struct{ pool *pgxpool.Pool }

func NewDiagnosticReportRepoPG(pool *pgxpool.Pool) DiagnosticReportRepository {
	return &diagnosticReportRepoPG{pool: pool}
}

const drTable = `fhir_diagnostic_report`

const drCols = `diagnostic_report_id, uuid, status, code_uuid,
	COALESCE(patient_uuid, ''), COALESCE(encounter_uuid, ''), issued,
	performers, results, COALESCE(conclusion, ''),
	creator, date_created, COALESCE(changed_by, ''), date_changed, voided`

var drSearchParams = map[string]fhir.SearchParamConfig{
	"_id":          {Type: fhir.SearchParamToken, Column: "uuid"},
	"patient":      {Type: fhir.SearchParamReference, Column: "patient_uuid"},
	"subject":      {Type: fhir.SearchParamReference, Column: "patient_uuid"},
	"encounter":    {Type: fhir.SearchParamReference, Column: "encounter_uuid"},
	"code":         {Type: fhir.SearchParamToken, Column: "code_uuid"},
	"status":       {Type: fhir.SearchParamToken, Column: "status"},
	"issued":       {Type: fhir.SearchParamDate, Column: "issued"},
	"_lastUpdated": {Type: fhir.SearchParamDate, Column: "COALESCE(date_changed, date_created)"},
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDR(row scanner) (*DiagnosticReport, error) {
	var r DiagnosticReport
	var code *string
	if err := row.Scan(&r.ID, &r.UUID, &r.Status, &code,
		&r.PatientUUID, &r.EncounterUUID, &r.Issued,
		&r.Performers, &r.Results, &r.Conclusion,
		&r.Creator, &r.DateCreated, &r.ChangedBy, &r.DateChanged, &r.Voided); err != nil {
		return nil, err
	}
	if code != nil {
		r.Code = &concept.Concept{UUID: *code}
	}
	return &r, nil
}

func (r *diagnosticReportRepoPG) GetByUUID(ctx context.Context, id string) (*DiagnosticReport, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+drCols+` FROM `+drTable+` WHERE uuid = $1 AND NOT voided`, id)
	dr, err := scanDR(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get diagnostic report %s: %w", id, err)
	}
	return dr, nil
}

func buildSearch(params map[string]string) *fhir.SearchQuery {
	q := fhir.NewSearchQuery(drTable, drCols)
	q.Add("NOT voided")
	q.ApplyParams(params, drSearchParams)
	q.ApplySort(params["_sort"], "issued DESC NULLS LAST, diagnostic_report_id DESC", drSearchParams)
	return q
}

func (r *diagnosticReportRepoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*DiagnosticReport, int, error) {
	q := buildSearch(params)
	conn := db.Conn(ctx, r.pool)

	var total int
	if err := conn.QueryRow(ctx, q.CountSQL(), q.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count diagnostic reports: %w", err)
	}

	rows, err := conn.Query(ctx, q.DataSQL(), q.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("search diagnostic reports: %w", err)
	}
	defer rows.Close()

	var items []*DiagnosticReport
	for rows.Next() {
		dr, err := scanDR(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan diagnostic report: %w", err)
		}
		items = append(items, dr)
	}
	return items, total, rows.Err()
}

// Create inserts dr, assigning a uuid when it has none.
func (r *diagnosticReportRepoPG) Create(ctx context.Context, dr *DiagnosticReport) error {
	if dr.UUID == "" {
		dr.UUID = uuid.NewString()
	}
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO `+drTable+` (uuid, status, code_uuid, patient_uuid, encounter_uuid, issued,
			performers, results, conclusion, creator)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7, $8, NULLIF($9, ''), $10)
		RETURNING diagnostic_report_id, date_created`,
		dr.UUID, dr.Status, dr.codeUUID(), dr.PatientUUID, dr.EncounterUUID, dr.Issued,
		nonNil(dr.Performers), nonNil(dr.Results), dr.Conclusion, dr.Creator,
	).Scan(&dr.ID, &dr.DateCreated)
	if err != nil {
		return fmt.Errorf("create diagnostic report: %w", err)
	}
	return nil
}

func (r *diagnosticReportRepoPG) Update(ctx context.Context, dr *DiagnosticReport) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE `+drTable+` SET status = $2, code_uuid = $3, patient_uuid = NULLIF($4, ''),
			encounter_uuid = NULLIF($5, ''), issued = $6, performers = $7, results = $8,
			conclusion = NULLIF($9, ''), changed_by = NULLIF($10, ''), date_changed = NOW()
		WHERE uuid = $1 AND NOT voided
		RETURNING date_changed`,
		dr.UUID, dr.Status, dr.codeUUID(), dr.PatientUUID, dr.EncounterUUID, dr.Issued,
		nonNil(dr.Performers), nonNil(dr.Results), dr.Conclusion, dr.ChangedBy,
	).Scan(&dr.DateChanged)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("update diagnostic report %s: %w", dr.UUID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("update diagnostic report %s: %w", dr.UUID, err)
	}
	return nil
}

// Delete voids the report.
func (r *diagnosticReportRepoPG) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE `+drTable+` SET voided = TRUE, date_voided = NOW() WHERE uuid = $1 AND NOT voided`, id)
	if err != nil {
		return false, fmt.Errorf("delete diagnostic report %s: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
