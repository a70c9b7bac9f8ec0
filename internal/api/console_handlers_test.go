package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/technosupport/ts-console/internal/api"
	"github.com/technosupport/ts-console/internal/console"
	"github.com/technosupport/ts-console/internal/middleware"
	"github.com/technosupport/ts-console/internal/ratelimit"
	"github.com/technosupport/ts-console/internal/search"
	"github.com/technosupport/ts-console/internal/upload"
)

type fakeAnalyzer struct{}

func (fakeAnalyzer) Analyze(ctx context.Context, up upload.Upload) (upload.Result, error) {
	data, _ := io.ReadAll(up.Body)
	if up.OnSent != nil {
		up.OnSent()
	}
	if string(data) == "intruder" {
		return upload.AnomalyDetected{Message: "Person detected", SceneDescription: "Lobby, night"}, nil
	}
	return upload.NoAnomaly{SceneDescription: "Empty hallway"}, nil
}

type fakeSearcher struct{}

func (fakeSearcher) Search(ctx context.Context, query string) (search.Results, error) {
	return search.Results{Records: []search.Record{{
		Video: "cam1.mp4", Document: query, ClipPath: "/clips/cam1_0001.mp4",
	}}}, nil
}

type fixture struct {
	registry *console.Registry
	handler  http.Handler
}

func newFixture(t *testing.T, limits *middleware.RateLimitMiddleware) *fixture {
	t.Helper()
	reg, err := console.NewRegistry(8, console.Deps{
		Analyzer:     fakeAnalyzer{},
		Searcher:     fakeSearcher{},
		MediaBaseURL: "http://media.local",
	})
	require.NoError(t, err)
	t.Cleanup(reg.Close)

	return &fixture{
		registry: reg,
		handler: api.NewRouter(api.RouterConfig{
			Registry:       reg,
			RateLimit:      limits,
			SpoolDir:       t.TempDir(),
			MaxUploadBytes: 1024,
		}),
	}
}

func (f *fixture) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func (f *fixture) create(t *testing.T) string {
	t.Helper()
	w := f.do(t, httptest.NewRequest(http.MethodPost, "/api/v1/consoles", nil))
	require.Equal(t, http.StatusCreated, w.Code)

	var st console.State
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	require.NotEmpty(t, st.ConsoleID)
	return st.ConsoleID
}

func (f *fixture) state(t *testing.T, id string) console.State {
	t.Helper()
	c, err := f.registry.Get(id)
	require.NoError(t, err)
	c.Wait()

	w := f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/consoles/"+id, nil))
	require.Equal(t, http.StatusOK, w.Code)
	var st console.State
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	return st
}

func uploadRequest(t *testing.T, id, field, name, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(field, name)
	require.NoError(t, err)
	part.Write([]byte(content))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/consoles/"+id+"/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestConsoleLifecycle(t *testing.T) {
	f := newFixture(t, nil)
	id := f.create(t)

	st := f.state(t, id)
	assert.Equal(t, upload.PhaseIdle, st.Upload.Phase)
	assert.Len(t, st.Alerts.Cards, 3)

	w := f.do(t, httptest.NewRequest(http.MethodDelete, "/api/v1/consoles/"+id, nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/consoles/"+id, nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"Console not found"}`, w.Body.String())

	w = f.do(t, httptest.NewRequest(http.MethodDelete, "/api/v1/consoles/"+id, nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpload(t *testing.T) {
	f := newFixture(t, nil)
	id := f.create(t)

	w := f.do(t, uploadRequest(t, id, "video", "gate.mp4", "intruder"))
	require.Equal(t, http.StatusAccepted, w.Code)

	var sess upload.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sess))
	assert.Equal(t, "gate.mp4", sess.FileName)
	assert.Equal(t, uint64(1), sess.Generation)

	st := f.state(t, id)
	assert.Equal(t, upload.PhaseSucceeded, st.Upload.Phase)
	require.NotNil(t, st.Upload.Result)
	assert.True(t, st.Upload.Result.Anomaly)
	assert.Equal(t, "Person detected\n\nScene: Lobby, night", st.Upload.Result.Text)

	w = f.do(t, uploadRequest(t, id, "video", "hall.mp4", "quiet"))
	require.Equal(t, http.StatusAccepted, w.Code)
	st = f.state(t, id)
	assert.Equal(t, "No anomaly detected!\n\nScene: Empty hallway", st.Upload.Result.Text)
	assert.Equal(t, uint64(2), st.Upload.Generation)

	w = f.do(t, httptest.NewRequest(http.MethodDelete, "/api/v1/consoles/"+id+"/upload", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, upload.PhaseIdle, f.state(t, id).Upload.Phase)
}

func TestUpload_Rejections(t *testing.T) {
	f := newFixture(t, nil)
	id := f.create(t)

	tests := []struct {
		name string
		req  *http.Request
		want int
	}{
		{"Wrong Field", uploadRequest(t, id, "clip", "gate.mp4", "x"), http.StatusBadRequest},
		{"Too Large", uploadRequest(t, id, "video", "big.mp4", strings.Repeat("x", 4096)), http.StatusRequestEntityTooLarge},
		{"Not Multipart", httptest.NewRequest(http.MethodPost, "/api/v1/consoles/"+id+"/upload", strings.NewReader("raw")), http.StatusBadRequest},
		{"Unknown Console", uploadRequest(t, "missing", "video", "gate.mp4", "x"), http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, tt.req)
			assert.Equal(t, tt.want, w.Code)
		})
	}

	assert.Equal(t, upload.PhaseIdle, f.state(t, id).Upload.Phase)
}

func TestSearch(t *testing.T) {
	f := newFixture(t, nil)
	id := f.create(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/consoles/"+id+"/search/characteristic",
		strings.NewReader(`{"value":"red car"}`))
	req.Header.Set("Content-Type", "application/json")
	w := f.do(t, req)
	require.Equal(t, http.StatusAccepted, w.Code)

	var sess search.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sess))
	assert.Equal(t, "red car", sess.Query)
	assert.Equal(t, search.FacetCharacteristic, sess.Facet)

	st := f.state(t, id)
	assert.Equal(t, search.PhaseSucceeded, st.Search.Phase)
	require.Len(t, st.Search.Results, 1)
	assert.Equal(t, "http://media.local/cam1_0001.mp4", st.Search.Results[0].PlaybackURL)

	// Form submissions from another facet share the session.
	req = httptest.NewRequest(http.MethodPost, "/api/v1/consoles/"+id+"/search/camera",
		strings.NewReader("value=CameraID%3A+001"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w = f.do(t, req)
	require.Equal(t, http.StatusAccepted, w.Code)
	st = f.state(t, id)
	assert.Equal(t, search.FacetCamera, st.Search.Facet)
	assert.Equal(t, "CameraID: 001", st.Search.Query)
	assert.Equal(t, uint64(2), st.Search.Generation)
}

func TestSearch_BlankAndUnknownFacet(t *testing.T) {
	f := newFixture(t, nil)
	id := f.create(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/consoles/"+id+"/search/time",
		strings.NewReader(`{"value":"   "}`))
	req.Header.Set("Content-Type", "application/json")
	w := f.do(t, req)
	require.Equal(t, http.StatusAccepted, w.Code)

	var sess search.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sess))
	assert.Equal(t, search.PhaseIdle, sess.Phase)
	assert.Equal(t, uint64(0), sess.Generation)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/consoles/"+id+"/search/plate",
		strings.NewReader(`{"value":"ABC"}`))
	req.Header.Set("Content-Type", "application/json")
	w = f.do(t, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/consoles/"+id+"/search/anomaly",
		strings.NewReader(`{"value":`))
	req.Header.Set("Content-Type", "application/json")
	w = f.do(t, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAlerts(t *testing.T) {
	f := newFixture(t, nil)
	id := f.create(t)
	base := "/api/v1/consoles/" + id + "/alerts"

	var page struct {
		Range        string `json:"range"`
		CriticalOnly bool   `json:"critical_only"`
		Cards        []struct {
			ID    int    `json:"id"`
			Title string `json:"title"`
		} `json:"cards"`
	}

	w := f.do(t, httptest.NewRequest(http.MethodGet, base+"?range=today&critical=true", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Equal(t, "today", page.Range)
	assert.True(t, page.CriticalOnly)
	require.Len(t, page.Cards, 1)
	assert.Equal(t, "Unauthorized Access", page.Cards[0].Title)

	w = f.do(t, httptest.NewRequest(http.MethodGet, base, nil))
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Len(t, page.Cards, 3)

	w = f.do(t, httptest.NewRequest(http.MethodGet, base+"?range=decade", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = f.do(t, httptest.NewRequest(http.MethodGet, base+"?critical=maybe", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, httptest.NewRequest(http.MethodPost, base+"/2/expand", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Camera Offline")
	assert.Contains(t, w.Body.String(), `"heading":"Camera Offline – Server Room"`)
	st := f.state(t, id)
	require.NotNil(t, st.Alerts.Expanded)
	assert.Equal(t, 2, st.Alerts.Expanded.ID)

	w = f.do(t, httptest.NewRequest(http.MethodPost, base+"/42/expand", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = f.do(t, httptest.NewRequest(http.MethodPost, base+"/two/expand", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, httptest.NewRequest(http.MethodDelete, base+"/expanded", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Nil(t, f.state(t, id).Alerts.Expanded)
}

func TestRateLimitedSearch(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	limits := middleware.NewRateLimitMiddleware(ratelimit.NewLimiter(rdb, "salt"), middleware.Config{
		Search: ratelimit.LimitConfig{Rate: 1, Window: time.Minute},
	}, nil)

	f := newFixture(t, limits)
	id := f.create(t)

	submit := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/consoles/"+id+"/search/anomaly",
			strings.NewReader(`{"value":"loitering"}`))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "198.51.100.7:4000"
		return f.do(t, req)
	}

	assert.Equal(t, http.StatusAccepted, submit().Code)
	w := submit()
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, nil)
	w := f.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())

	w = f.do(t, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "console_http_requests_total")
}

func TestStateStream(t *testing.T) {
	f := newFixture(t, nil)
	id := f.create(t)

	srv := httptest.NewServer(f.handler)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/consoles/" + id + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	var msg struct {
		Type  string        `json:"type"`
		State console.State `json:"state"`
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "state", msg.Type)
	assert.Equal(t, id, msg.State.ConsoleID)
	assert.Nil(t, msg.State.Alerts.Expanded)

	w := f.do(t, httptest.NewRequest(http.MethodPost, "/api/v1/consoles/"+id+"/alerts/3/expand", nil))
	require.Equal(t, http.StatusOK, w.Code)

	require.NoError(t, conn.ReadJSON(&msg))
	require.NotNil(t, msg.State.Alerts.Expanded)
	assert.Equal(t, 3, msg.State.Alerts.Expanded.ID)

	// Removing the console ends the stream.
	f.do(t, httptest.NewRequest(http.MethodDelete, "/api/v1/consoles/"+id, nil))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
			break
		}
	}
}

func TestStateStream_UnknownConsole(t *testing.T) {
	f := newFixture(t, nil)
	srv := httptest.NewServer(f.handler)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/consoles/missing/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
