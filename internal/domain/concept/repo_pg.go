package concept

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/fhir2/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const conceptSelect = `SELECT c.concept_id, c.uuid, COALESCE(n.name, '')
	FROM concept c
	LEFT JOIN concept_name n
		ON n.concept_id = c.concept_id AND n.locale_preferred AND NOT n.voided`

const mappingSelect = `SELECT s.name, t.code, COALESCE(t.name, '')
	FROM concept_reference_map m
	JOIN concept_reference_term t ON t.concept_reference_term_id = m.concept_reference_term_id
	JOIN concept_reference_source s ON s.concept_source_id = t.concept_source_id
	WHERE m.concept_id = $1 AND NOT t.retired
	ORDER BY m.concept_map_id`

func (r *repoPG) GetByUUID(ctx context.Context, uuid string) (*Concept, error) {
	return r.get(ctx, conceptSelect+` WHERE c.uuid = $1 LIMIT 1`, uuid)
}

func (r *repoPG) GetByMapping(ctx context.Context, sourceName, code string) (*Concept, error) {
	return r.get(ctx, conceptSelect+`
	JOIN concept_reference_map m ON m.concept_id = c.concept_id
	JOIN concept_reference_term t ON t.concept_reference_term_id = m.concept_reference_term_id
	JOIN concept_reference_source s ON s.concept_source_id = t.concept_source_id
	WHERE s.name = $1 AND t.code = $2 AND NOT c.retired
	ORDER BY c.concept_id LIMIT 1`, sourceName, code)
}

func (r *repoPG) get(ctx context.Context, query string, args ...interface{}) (*Concept, error) {
	conn := db.Conn(ctx, r.pool)

	var c Concept
	err := conn.QueryRow(ctx, query, args...).Scan(&c.ID, &c.UUID, &c.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query concept: %w", err)
	}

	rows, err := conn.Query(ctx, mappingSelect, c.ID)
	if err != nil {
		return nil, fmt.Errorf("query concept mappings: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var m ConceptMapping
		if err := rows.Scan(&m.SourceName, &m.Code, &m.Display); err != nil {
			return nil, fmt.Errorf("scan concept mapping: %w", err)
		}
		c.Mappings = append(c.Mappings, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate concept mappings: %w", err)
	}
	return &c, nil
}
