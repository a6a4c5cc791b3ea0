package medication

import (
	"strings"
	"testing"
)

func TestBuildSearch_Defaults(t *testing.T) {
	q := buildSearch(map[string]string{})
	sql := q.DataSQL()

	if !strings.Contains(sql, "AND NOT o.voided") {
		t.Errorf("expected voided orders to be excluded: %s", sql)
	}
	if !strings.Contains(sql, "ORDER BY o.date_activated DESC, o.order_id DESC") {
		t.Errorf("expected default order: %s", sql)
	}
	if !strings.HasSuffix(sql, "LIMIT $1 OFFSET $2") {
		t.Errorf("unexpected paging placeholders: %s", sql)
	}
}

func TestBuildSearch_Params(t *testing.T) {
	q := buildSearch(map[string]string{
		"patient": "Patient/p-1",
		"code":    "c-1",
		"ignored": "x",
	})
	sql := q.CountSQL()

	if !strings.Contains(sql, "dc.uuid = $1") || !strings.Contains(sql, "o.patient_uuid = $2") {
		t.Errorf("unexpected where clause: %s", sql)
	}
	args := q.CountArgs()
	if len(args) != 2 || args[0] != "c-1" || args[1] != "p-1" {
		t.Errorf("unexpected args %v", args)
	}
}

func TestBuildSearch_Status(t *testing.T) {
	for status, clause := range statusClauses {
		sql := buildSearch(map[string]string{"status": status}).CountSQL()
		if !strings.Contains(sql, clause) {
			t.Errorf("status %s: expected %q in %s", status, clause, sql)
		}
	}
	sql := buildSearch(map[string]string{"status": "entered-in-error"}).CountSQL()
	if strings.Contains(sql, "NOT o.voided") {
		t.Errorf("entered-in-error must include voided orders: %s", sql)
	}
}

func TestBuildSearch_UnmappedStatusMatchesNothing(t *testing.T) {
	for _, status := range []string{"draft", "on-hold", "cancelled", "unknown"} {
		sql := buildSearch(map[string]string{"status": status}).CountSQL()
		if !strings.Contains(sql, "AND FALSE") {
			t.Errorf("status %s: expected an empty match in %s", status, sql)
		}
	}
	sql := buildSearch(map[string]string{"status": ""}).CountSQL()
	if strings.Contains(sql, "FALSE") || !strings.Contains(sql, "NOT o.voided") {
		t.Errorf("empty status must fall back to the default filter: %s", sql)
	}
}

func TestBuildSearch_Sort(t *testing.T) {
	sql := buildSearch(map[string]string{"_sort": "-authoredon,_id"}).DataSQL()
	if !strings.Contains(sql, "ORDER BY o.date_activated DESC, o.uuid ASC") {
		t.Errorf("unexpected order: %s", sql)
	}
}
