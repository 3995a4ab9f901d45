package sheets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"
)

type fakeSheetsAPI struct {
	updates map[string]*gsheets.ValueRange
}

func newFakeSheetsAPI(t *testing.T) (*fakeSheetsAPI, *httptest.Server) {
	f := &fakeSheetsAPI{updates: map[string]*gsheets.ValueRange{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.Contains(r.URL.Path, "/spreadsheets/locked"):
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"error":{"code":403,"message":"The caller does not have permission"}}`))
		case r.Method == http.MethodGet:
			w.Write([]byte(`{"sheets":[{"properties":{"sheetId":0,"title":"Sheet1"}},{"properties":{"sheetId":42,"title":"Lead's"}}]}`))
		case r.Method == http.MethodPut:
			assert.Equal(t, "RAW", r.URL.Query().Get("valueInputOption"))
			var vr gsheets.ValueRange
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&vr))
			target := r.URL.Path[strings.LastIndex(r.URL.Path, "/values/")+len("/values/"):]
			f.updates[target] = &vr
			w.Write([]byte(`{}`))
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	t.Cleanup(srv.Close)
	return f, srv
}

func newTestWriter(t *testing.T, srv *httptest.Server) *Writer {
	w, err := NewWriter(context.Background(), "", zap.NewNop(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return w
}

func TestWriter_Write(t *testing.T) {
	api, srv := newFakeSheetsAPI(t)
	w := newTestWriter(t, srv)

	columns := []string{"company", "employees", "email"}
	rows := []map[string]any{
		{"company": "Acme", "employees": float64(12), "email": "hi@acme.io"},
		{"company": "Beta", "employees": nil},
	}
	err := w.Write(context.Background(), "https://docs.google.com/spreadsheets/d/abc/edit", columns, rows)
	require.NoError(t, err)

	vr := api.updates["A1"]
	require.NotNil(t, vr)
	require.Len(t, vr.Values, 3)
	assert.Equal(t, []interface{}{"company", "employees", "email"}, vr.Values[0])
	assert.Equal(t, []interface{}{"Acme", float64(12), "hi@acme.io"}, vr.Values[1])
	assert.Equal(t, []interface{}{"Beta", "", ""}, vr.Values[2])
}

func TestWriter_WriteResolvesWorksheetByGid(t *testing.T) {
	api, srv := newFakeSheetsAPI(t)
	w := newTestWriter(t, srv)

	err := w.Write(context.Background(), "https://docs.google.com/spreadsheets/d/abc/edit#gid=42",
		[]string{"company"}, []map[string]any{{"company": "Acme"}})
	require.NoError(t, err)
	assert.Contains(t, api.updates, "'Lead''s'!A1")

	err = w.Write(context.Background(), "https://docs.google.com/spreadsheets/d/abc/edit#gid=7",
		[]string{"company"}, nil)
	assert.ErrorIs(t, err, ErrInvalidURL)
}

func TestWriter_WriteErrors(t *testing.T) {
	_, srv := newFakeSheetsAPI(t)
	w := newTestWriter(t, srv)

	err := w.Write(context.Background(), "https://docs.google.com/spreadsheets/d/locked/edit", []string{"a"}, nil)
	assert.ErrorIs(t, err, ErrNoWriteAccess)

	err = w.Write(context.Background(), "https://example.com/file.csv", []string{"a"}, nil)
	assert.ErrorIs(t, err, ErrInvalidURL)
}
