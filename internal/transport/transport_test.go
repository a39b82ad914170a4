package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bartek5186/xls2jobs/internal/db"
	"github.com/bartek5186/xls2jobs/internal/jobs"
)

var testRows = []jobs.Row{
	{JobNumber: "J-1", SiteName: "Oak", ExcelFileName: "jobs.xlsx", ExcelSheetName: "Jobs", ExcelRowRef: "2"},
	{JobNumber: "J-2", SiteName: "Elm", Client: "Acme", ExcelRowRef: "3"},
}

func newRemote(t *testing.T, url string, retries int) *Remote {
	t.Helper()
	r, err := NewRemote(zerolog.Nop(), RemoteConfig{URL: url, Token: "s3cret", Timeout: 5 * time.Second, Retries: retries})
	require.NoError(t, err)
	r.backoff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	return r
}

func TestRemote_SendsPayloadWithToken(t *testing.T) {
	var got Payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, SyncPath, r.URL.Path)
		assert.Equal(t, "s3cret", r.Header.Get(HeaderToken))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(Response{Success: true, Count: len(got.Jobs), Saved: len(got.Jobs)})
	}))
	defer srv.Close()

	res, err := newRemote(t, srv.URL, 0).Send(context.Background(), testRows)
	require.NoError(t, err)
	assert.Equal(t, Result{Count: 2, Saved: 2}, res)
	assert.Equal(t, testRows, got.Jobs)
}

func TestRemote_UnauthorizedIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(Response{Error: "unauthorized"})
	}))
	defer srv.Close()

	_, err := newRemote(t, srv.URL, 3).Send(context.Background(), testRows)
	require.ErrorIs(t, err, ErrUnauthorized)
	assert.EqualValues(t, 1, calls.Load())
}

func TestRemote_ServerErrorWithoutRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(Response{Error: "db down", Saved: 1})
	}))
	defer srv.Close()

	res, err := newRemote(t, srv.URL, 0).Send(context.Background(), testRows)
	require.ErrorContains(t, err, "db down")
	assert.Equal(t, 1, res.Saved)
	assert.EqualValues(t, 1, calls.Load())
}

func TestRemote_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(Response{Success: true, Count: 2, Saved: 2})
	}))
	defer srv.Close()

	res, err := newRemote(t, srv.URL, 2).Send(context.Background(), testRows)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Saved)
	assert.EqualValues(t, 3, calls.Load())
}

func TestRemote_BadRequestIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "invalid body", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newRemote(t, srv.URL, 5).Send(context.Background(), testRows)
	require.ErrorContains(t, err, "http 400")
	assert.EqualValues(t, 1, calls.Load())
}

func TestNewRemote_Validation(t *testing.T) {
	_, err := NewRemote(zerolog.Nop(), RemoteConfig{URL: "", Token: "x"})
	require.Error(t, err)
	_, err = NewRemote(zerolog.Nop(), RemoteConfig{URL: "ftp://host", Token: "x"})
	require.Error(t, err)
	_, err = NewRemote(zerolog.Nop(), RemoteConfig{URL: "https://admin.example.com", Token: " "})
	require.Error(t, err)

	r, err := NewRemote(zerolog.Nop(), RemoteConfig{URL: "https://admin.example.com", Token: "x"})
	require.NoError(t, err)
	assert.Equal(t, "https://admin.example.com/api/sync/jobs", r.url)

	r, err = NewRemote(zerolog.Nop(), RemoteConfig{URL: "https://admin.example.com/custom/sync", Token: "x"})
	require.NoError(t, err)
	assert.Equal(t, "https://admin.example.com/custom/sync", r.url)
}

func TestDirect_WritesInOneTransaction(t *testing.T) {
	h, err := db.OpenAt(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, h.Migrate())
	t.Cleanup(func() { _ = h.Close() })

	store := jobs.NewStore(h.DB)
	d := NewDirect(store)
	res, err := d.Send(context.Background(), testRows)
	require.NoError(t, err)
	assert.Equal(t, Result{Count: 2, Saved: 2}, res)
	assert.Equal(t, "direct", d.Name())

	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}
