package airtable_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rekey/internal/airtable"
	"github.com/roach88/rekey/internal/executor"
	"github.com/roach88/rekey/internal/model"
	"github.com/roach88/rekey/internal/reconcile"
)

// hostedBase is an in-memory hosted base. Like the real service, a
// formula sees a linked-record field as the linked records' primary-field
// text, so a formula searching a link field for a record id matches nothing.
// Any other formula returns every record; callers re-check what they get.
type hostedBase struct {
	mu       sync.Mutex
	tables   map[string][]model.Record
	formulas []string
}

func (b *hostedBase) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	table := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	switch r.Method {
	case http.MethodGet:
		formula := r.URL.Query().Get("filterByFormula")
		if formula != "" {
			b.formulas = append(b.formulas, formula)
		}
		recs := []map[string]any{}
		if !strings.Contains(formula, "ARRAYJOIN") {
			for _, rec := range b.tables[table] {
				recs = append(recs, map[string]any{"id": rec.ID, "fields": rec.Fields})
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"records": recs})

	case http.MethodPatch:
		var req struct {
			Records []struct {
				ID     string       `json:"id"`
				Fields model.Fields `json:"fields"`
			} `json:"records"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		}
		for _, u := range req.Records {
			for i, rec := range b.tables[table] {
				if rec.ID == u.ID {
					for k, v := range u.Fields {
						b.tables[table][i].Fields[k] = v
					}
				}
			}
		}
		_, _ = io.WriteString(w, `{"records":[]}`)

	case http.MethodDelete:
		gone := map[string]bool{}
		for _, id := range r.URL.Query()["records[]"] {
			gone[id] = true
		}
		kept := b.tables[table][:0]
		for _, rec := range b.tables[table] {
			if !gone[rec.ID] {
				kept = append(kept, rec)
			}
		}
		b.tables[table] = kept
		_, _ = io.WriteString(w, `{"records":[]}`)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (b *hostedBase) get(table, id string) (model.Record, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, rec := range b.tables[table] {
		if rec.ID == id {
			return rec, true
		}
	}
	return model.Record{}, false
}

func rec(id string, fields model.Fields) model.Record {
	return model.Record{ID: id, Fields: fields}
}

func TestFixDuplicates_RelinksLinkFieldsOnHostedStore(t *testing.T) {
	const (
		concertID     = "evt_lindenschule_concert_20260310_aa11bb"
		minimusikerID = "evt_lindenschule_minimusiker_20260310_cc22dd"
	)
	base := &hostedBase{tables: map[string][]model.Record{
		"Events": {
			rec("recE1", model.Fields{"event_id": concertID, "school_name": "Lindenschule", "event_date": "2026-03-10", "event_type": "concert"}),
			rec("recE2", model.Fields{"event_id": minimusikerID, "school_name": "Lindenschule", "event_date": "2026-03-10", "event_type": "Minimusiker"}),
		},
		"Classes": {
			rec("recC1", model.Fields{"class_id": "cls_lindenschule_3a_20260310_d4163f", "class_name": "3a", "event": model.LinkIDs("recE2")}),
		},
		"Registrations": {
			rec("recR1", model.Fields{"event_id": minimusikerID, "event": model.LinkIDs("recE2"), "class": model.LinkIDs("recC1")}),
		},
	}}
	srv := httptest.NewServer(base)
	t.Cleanup(srv.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client, err := airtable.New(airtable.Config{
		BaseURL:   srv.URL,
		BaseID:    "appTEST",
		APIKey:    "key123",
		RateLimit: 1000,
		RetryMin:  time.Millisecond,
		RetryMax:  2 * time.Millisecond,
	}, logger)
	require.NoError(t, err)

	eng := reconcile.New(client, reconcile.DefaultOptions(), nil, logger)
	res, err := eng.FixDuplicates(context.Background(), executor.NewLive(client))
	require.NoError(t, err)
	require.Equal(t, 1, res.Resolved)
	assert.Equal(t, 1, res.Relinked["classes"])
	assert.Equal(t, 1, res.Relinked["registrations"])

	for _, f := range base.formulas {
		assert.NotContains(t, f, "ARRAYJOIN", "link fields must not be searched for record ids")
	}

	_, ok := base.get("Events", "recE2")
	assert.False(t, ok, "superseded Event deleted")

	class, ok := base.get("Classes", "recC1")
	require.True(t, ok)
	assert.Equal(t, []string{"recE1"}, class.Links("event"))

	reg, ok := base.get("Registrations", "recR1")
	require.True(t, ok)
	assert.Equal(t, []string{"recE1"}, reg.Links("event"))
	assert.Equal(t, []string{"recC1"}, reg.Links("class"))
}
