package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/envoylog/envoylog/pkg/collector"
	"github.com/envoylog/envoylog/pkg/storage"
	"github.com/envoylog/envoylog/pkg/storage/storagemock"
	"github.com/envoylog/envoylog/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	calls int
	res   collector.Result
	err   error
	loc   *time.Location
}

func (f *fakeRunner) Run(ctx context.Context) (collector.Result, error) {
	f.calls++
	return f.res, f.err
}

func (f *fakeRunner) Location() *time.Location {
	if f.loc == nil {
		return time.UTC
	}
	return f.loc
}

func newTestServer(db storage.Database, r Runner) *Server {
	return &Server{
		storage:      db,
		collector:    r,
		pathPrefix:   "/invdata/",
		manifestName: "sm_manifest.json",
		pastMaxAge:   24 * time.Hour,
		serverName:   "envoylog",
		now:          time.Now,
	}
}

func TestHandleFile(t *testing.T) {
	t.Run("Manifest", func(t *testing.T) {
		db := &storagemock.MockDatabase{}
		m := types.Manifest{"2024": {"March": {"1": "https://example.com/invdata/2024-03-01.json"}}}
		db.On("GetManifest", mock.Anything).Return(m, nil).Once()

		srv := newTestServer(db, &fakeRunner{})
		w := httptest.NewRecorder()
		srv.setupHandler().ServeHTTP(w, httptest.NewRequest("GET", "/invdata/sm_manifest.json", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
		assert.Equal(t, "public, max-age=60", w.Header().Get("Cache-Control"))
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "envoylog", w.Header().Get("Server"))
		want, err := storage.Encode(m)
		require.NoError(t, err)
		assert.Equal(t, string(want), w.Body.String())
		db.AssertExpectations(t)
	})

	t.Run("Past Day", func(t *testing.T) {
		db := &storagemock.MockDatabase{}
		h := types.NewDailyHistory()
		ih, _ := h.Entry("A1", 121935039567)
		ih.Data = append(ih.Data, types.Reading{Epoch: 1709301000, Watts: 187})
		day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
		db.On("GetDailyHistory", mock.Anything, day).Return(h, nil).Once()

		srv := newTestServer(db, &fakeRunner{})
		w := httptest.NewRecorder()
		srv.setupHandler().ServeHTTP(w, httptest.NewRequest("GET", "/invdata/2024-03-01.json", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "public, max-age=86400", w.Header().Get("Cache-Control"))
		assert.JSONEq(t, `{"A1":{"sn":121935039567,"data":[{"epoch":1709301000,"watts":187}]}}`, w.Body.String())
		db.AssertExpectations(t)
	})

	t.Run("Today", func(t *testing.T) {
		db := &storagemock.MockDatabase{}
		now := time.Now()
		day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		db.On("GetDailyHistory", mock.Anything, day).Return(types.NewDailyHistory(), nil).Once()

		srv := newTestServer(db, &fakeRunner{})
		srv.now = func() time.Time { return now }
		w := httptest.NewRecorder()
		srv.setupHandler().ServeHTTP(w, httptest.NewRequest("GET", "/invdata/"+storage.DayKey(day)+".json", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "public, max-age=60", w.Header().Get("Cache-Control"))
		assert.JSONEq(t, `{}`, w.Body.String())
	})

	t.Run("Today Behind UTC", func(t *testing.T) {
		// 00:30 UTC on the 19th is still the 18th an hour west of UTC
		loc := time.FixedZone("UTC-1", -60*60)
		now := time.Date(2026, 10, 19, 0, 30, 0, 0, time.UTC)

		cases := map[string]string{
			"2026-10-17": "public, max-age=86400",
			"2026-10-18": "public, max-age=60",
			"2026-10-19": "public, max-age=60",
		}
		for key, want := range cases {
			db := &storagemock.MockDatabase{}
			db.On("GetDailyHistory", mock.Anything, mock.Anything).Return(types.NewDailyHistory(), nil).Once()

			srv := newTestServer(db, &fakeRunner{loc: loc})
			srv.now = func() time.Time { return now }
			w := httptest.NewRecorder()
			srv.setupHandler().ServeHTTP(w, httptest.NewRequest("GET", "/invdata/"+key+".json", nil))

			assert.Equal(t, http.StatusOK, w.Code, key)
			assert.Equal(t, want, w.Header().Get("Cache-Control"), key)
		}
	})

	t.Run("Today Ahead Of UTC", func(t *testing.T) {
		// 23:30 UTC on the 18th is already the 19th in UTC+10
		loc := time.FixedZone("UTC+10", 10*60*60)
		now := time.Date(2026, 10, 18, 23, 30, 0, 0, time.UTC)

		db := &storagemock.MockDatabase{}
		db.On("GetDailyHistory", mock.Anything, mock.Anything).Return(types.NewDailyHistory(), nil).Once()

		srv := newTestServer(db, &fakeRunner{loc: loc})
		srv.now = func() time.Time { return now }
		w := httptest.NewRecorder()
		srv.setupHandler().ServeHTTP(w, httptest.NewRequest("GET", "/invdata/2026-10-18.json", nil))

		assert.Equal(t, "public, max-age=86400", w.Header().Get("Cache-Control"))
	})

	t.Run("Missing Day", func(t *testing.T) {
		db := &storagemock.MockDatabase{}
		db.On("GetDailyHistory", mock.Anything, mock.Anything).Return(nil, storage.ErrNotFound).Once()

		srv := newTestServer(db, &fakeRunner{})
		w := httptest.NewRecorder()
		srv.setupHandler().ServeHTTP(w, httptest.NewRequest("GET", "/invdata/2024-03-02.json", nil))

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("Storage Error", func(t *testing.T) {
		db := &storagemock.MockDatabase{}
		db.On("GetManifest", mock.Anything).Return(nil, errors.New("boom")).Once()

		srv := newTestServer(db, &fakeRunner{})
		w := httptest.NewRecorder()
		srv.setupHandler().ServeHTTP(w, httptest.NewRequest("GET", "/invdata/sm_manifest.json", nil))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.JSONEq(t, `{"error":"failed to read file"}`, w.Body.String())
	})

	t.Run("Unknown Names", func(t *testing.T) {
		db := &storagemock.MockDatabase{}
		srv := newTestServer(db, &fakeRunner{})

		for _, name := range []string{"token.json", "2024-13-01.json", "notes.txt"} {
			w := httptest.NewRecorder()
			srv.setupHandler().ServeHTTP(w, httptest.NewRequest("GET", "/invdata/"+name, nil))
			assert.Equal(t, http.StatusNotFound, w.Code, name)
		}
		db.AssertNotCalled(t, "GetDailyHistory", mock.Anything, mock.Anything)
	})
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(&storagemock.MockDatabase{}, &fakeRunner{})
	w := httptest.NewRecorder()
	srv.setupHandler().ServeHTTP(w, httptest.NewRequest("GET", "/healthz", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}
