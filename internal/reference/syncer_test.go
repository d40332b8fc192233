package reference

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/cdv-tracker/internal/common"
	"github.com/joseph-ayodele/cdv-tracker/internal/entity"
)

type memSyncStore struct {
	records  []entity.ReferenceRecord
	closures []entity.ClosureRecord
	cleared  int
}

func (m *memSyncStore) ClearRecords(context.Context) error {
	m.cleared++
	m.records = nil
	return nil
}

func (m *memSyncStore) InsertRecords(_ context.Context, recs []entity.ReferenceRecord) error {
	m.records = append(m.records, recs...)
	return nil
}

func (m *memSyncStore) ClearClosures(context.Context) error {
	m.cleared++
	m.closures = nil
	return nil
}

func (m *memSyncStore) InsertClosures(_ context.Context, recs []entity.ClosureRecord) error {
	m.closures = append(m.closures, recs...)
	return nil
}

type countingCloser struct{ n int64 }

func (c *countingCloser) AutoClose(context.Context) (int64, error) { return c.n, nil }

type fakeDataset struct {
	tokens    atomic.Int32
	queries   []string
	failFirst atomic.Int32
	gqlErrors bool
}

func (f *fakeDataset) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(t, "cid", r.PostForm.Get("client_id"))
		assert.Equal(t, "secret", r.PostForm.Get("client_secret"))
		f.tokens.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/graphql", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		if f.failFirst.Load() > 0 {
			f.failFirst.Add(-1)
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		var body struct {
			Query string `json:"query"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.queries = append(f.queries, body.Query)
		w.Header().Set("Content-Type", "application/json")

		if f.gqlErrors {
			_, _ = w.Write([]byte(`{"errors":[{"message":"field not found"}]}`))
			return
		}
		switch {
		case strings.Contains(body.Query, "cv_encours") && !strings.Contains(body.Query, "after:"):
			_, _ = fmt.Fprint(w, `{"data":{"cv_encours":{"items":[
				{"FRAISUEP":158,"FRAISINTP":null,"PDSN_30":8000,"VALEUR_COMPTE_VENTE_30":1.35,"DATEHEUREBAE":"2025-03-13T09:15:00","REFINTERNE":"R1","EXPIMPNOM":"DUPONT","CLIFOUNOM":"FRUITS SA","ORDRE":"25FR0001","TPFRTIDENT":"AB-123-CD"},
				{"FRAISUEP":null,"FRAISINTP":null,"PDSN_30":null,"VALEUR_COMPTE_VENTE_30":null,"DATEHEUREBAE":null,"REFINTERNE":"R2","EXPIMPNOM":null,"CLIFOUNOM":null,"ORDRE":null,"TPFRTIDENT":null}
			],"hasNextPage":true,"endCursor":"c1"}}}`)
		case strings.Contains(body.Query, "cv_encours"):
			_, _ = fmt.Fprint(w, `{"data":{"cv_encours":{"items":[
				{"FRAISUEP":1,"FRAISINTP":2,"PDSN_30":3,"VALEUR_COMPTE_VENTE_30":4,"DATEHEUREBAE":"2025-03-14","REFINTERNE":"R3","EXPIMPNOM":"MARTIN","CLIFOUNOM":"X","ORDRE":"O","TPFRTIDENT":"T"}
			],"hasNextPage":false,"endCursor":null}}}`)
		case strings.Contains(body.Query, "cv_cloture"):
			_, _ = fmt.Fprint(w, `{"data":{"cv_cloture":{"items":[{"DOSSIER":"D1","REFINTERNE":"R1"}],"hasNextPage":false,"endCursor":null}}}`)
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	})
	return mux
}

func newTestSyncer(t *testing.T, srv *httptest.Server, store SyncStore, closer AutoCloser) *Syncer {
	t.Helper()
	s, err := NewSyncer(SyncConfig{
		Endpoint:     srv.URL + "/graphql",
		TokenURL:     srv.URL + "/token",
		ClientID:     "cid",
		ClientSecret: "secret",
		PageSize:     2,
		Timeout:      5 * time.Second,
		Retries:      1,
		RetryDelay:   10 * time.Millisecond,
	}, store, closer, nil)
	require.NoError(t, err)
	return s
}

func TestNewSyncer_RequiresConfig(t *testing.T) {
	_, err := NewSyncer(SyncConfig{}, &memSyncStore{}, nil, nil)
	assert.ErrorIs(t, err, common.ErrConfig)

	_, err = NewSyncer(SyncConfig{Endpoint: "http://x", ClientID: "a"}, &memSyncStore{}, nil, nil)
	assert.ErrorIs(t, err, common.ErrConfig)
}

func TestSyncer_SyncAll(t *testing.T) {
	ds := &fakeDataset{}
	srv := httptest.NewServer(ds.handler(t))
	defer srv.Close()

	store := &memSyncStore{}
	var pages []string
	s := newTestSyncer(t, srv, store, &countingCloser{n: 1})

	report, err := s.SyncAll(context.Background(), func(table string, page, rows int) {
		pages = append(pages, fmt.Sprintf("%s:%d:%d", table, page, rows))
	})
	require.NoError(t, err)

	assert.Equal(t, SyncReport{EncoursRows: 3, ClotureRows: 1, AutoClosed: 1}, report)
	assert.Equal(t, []string{"cv_encours:1:2", "cv_encours:2:3", "cv_cloture:1:1"}, pages)
	assert.Equal(t, 2, store.cleared)
	assert.EqualValues(t, 1, ds.tokens.Load())

	require.Len(t, store.records, 3)
	assert.Equal(t, 158.0, *store.records[0].FeeEU)
	assert.Nil(t, store.records[0].FeeIntl)
	assert.Equal(t, "AB-123-CD", *store.records[0].TruckID)
	assert.Nil(t, store.records[1].TruckID)
	require.Len(t, store.closures, 1)
	assert.Equal(t, "D1", *store.closures[0].FileNumber)

	require.Len(t, ds.queries, 3)
	assert.Contains(t, ds.queries[0], "cv_encours(first: 2)")
	assert.Contains(t, ds.queries[1], `after: "c1"`)
}

func TestSyncer_RetriesServerErrors(t *testing.T) {
	ds := &fakeDataset{}
	ds.failFirst.Store(1)
	srv := httptest.NewServer(ds.handler(t))
	defer srv.Close()

	s := newTestSyncer(t, srv, &memSyncStore{}, nil)
	require.NoError(t, s.TestConnection(context.Background()))
}

func TestSyncer_GraphQLErrors(t *testing.T) {
	ds := &fakeDataset{gqlErrors: true}
	srv := httptest.NewServer(ds.handler(t))
	defer srv.Close()

	s := newTestSyncer(t, srv, &memSyncStore{}, nil)
	_, err := s.SyncRecords(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "field not found")
}

func TestSyncer_InvalidPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/token" {
			_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"Bearer","expires_in":3600}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":{"cv_cloture":{"items":[{"DOSSIER":12,"REFINTERNE":"R1"}]}}}`))
	}))
	defer srv.Close()

	s := newTestSyncer(t, srv, &memSyncStore{}, nil)
	_, err := s.SyncClosures(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cv_cloture")
}

func TestSyncer_StalledCursorStops(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/token" {
			_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"Bearer","expires_in":3600}`))
			return
		}
		calls.Add(1)
		_, _ = w.Write([]byte(`{"data":{"cv_cloture":{"items":[{"DOSSIER":"D1","REFINTERNE":"R1"}],"hasNextPage":true,"endCursor":"same"}}}`))
	}))
	defer srv.Close()

	store := &memSyncStore{}
	s := newTestSyncer(t, srv, store, nil)
	stats, err := s.SyncClosures(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, common.UserMessage(err, ""), "did not advance")
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 2, stats.Pages)
	assert.Len(t, store.closures, 2)
}
