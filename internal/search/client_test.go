package search_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/technosupport/ts-console/internal/search"
	"github.com/technosupport/ts-console/internal/transport"
)

func searchServer(t *testing.T, status int, body string, gotQuery *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/search", r.URL.Path)
		if gotQuery != nil {
			*gotQuery = r.URL.Query().Get("query")
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Search(t *testing.T) {
	const full = `{"video":"v.mp4","absolute_start_time":"s","absolute_end_time":"e","document":"d","clip_path":"/clips/v_1.mp4"}`

	tests := []struct {
		name        string
		status      int
		body        string
		wantVideos  []string
		wantDropped int
		wantKind    transport.Kind
	}{
		{
			name:       "Two Records",
			status:     http.StatusOK,
			body:       `{"results":[` + full + `,{"video":"w.mp4","absolute_start_time":"s","absolute_end_time":"e","document":"d","clip_path":"w_2.mp4"}]}`,
			wantVideos: []string{"v.mp4", "w.mp4"},
		},
		{
			name:       "Absent Results",
			status:     http.StatusOK,
			body:       `{}`,
			wantVideos: []string{},
		},
		{
			name:       "Null Results",
			status:     http.StatusOK,
			body:       `{"results":null}`,
			wantVideos: []string{},
		},
		{
			name:        "Malformed Records Dropped",
			status:      http.StatusOK,
			body:        `{"results":[{"video":"x.mp4"},` + full + `,{"video":"y.mp4","absolute_start_time":"s","absolute_end_time":"e","document":"d","clip_path":""}]}`,
			wantVideos:  []string{"v.mp4"},
			wantDropped: 2,
		},
		{
			name:        "Wrong Typed Field",
			status:      http.StatusOK,
			body:        `{"results":[` + full + `,{"video":"z.mp4","absolute_start_time":"s","absolute_end_time":"e","document":"d","clip_path":42}]}`,
			wantVideos:  []string{"v.mp4"},
			wantDropped: 1,
		},
		{
			name:        "Non Object Entries",
			status:      http.StatusOK,
			body:        `{"results":[42,"clip",null,` + full + `]}`,
			wantVideos:  []string{"v.mp4"},
			wantDropped: 3,
		},
		{
			name:     "Results Not A List",
			status:   http.StatusOK,
			body:     `{"results":"none"}`,
			wantKind: transport.KindDecode,
		},
		{
			name:     "Server Error",
			status:   http.StatusServiceUnavailable,
			body:     `{}`,
			wantKind: transport.KindStatus,
		},
		{
			name:     "Not JSON",
			status:   http.StatusOK,
			body:     `results: none`,
			wantKind: transport.KindDecode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := searchServer(t, tt.status, tt.body, nil)
			client := search.NewClient(srv.URL, srv.Client())

			res, err := client.Search(context.Background(), "red car")
			if tt.wantKind != "" {
				require.Error(t, err)
				assert.True(t, transport.IsKind(err, tt.wantKind), "got %v", err)
				return
			}
			require.NoError(t, err)

			videos := make([]string, 0, len(res.Records))
			for _, r := range res.Records {
				videos = append(videos, r.Video)
			}
			assert.Equal(t, tt.wantVideos, videos)
			assert.Equal(t, tt.wantDropped, res.Dropped)
		})
	}
}

func TestClient_SearchStatusMessage(t *testing.T) {
	srv := searchServer(t, http.StatusBadGateway, `{"detail":"index down"}`, nil)
	client := search.NewClient(srv.URL, srv.Client())

	_, err := client.Search(context.Background(), "red car")
	require.Error(t, err)
	assert.True(t, transport.IsKind(err, transport.KindStatus))
	assert.Equal(t, search.StatusFailureMessage, transport.Describe(err, search.FallbackMessage))
}

func TestClient_SearchEncodesQuery(t *testing.T) {
	var got string
	srv := searchServer(t, http.StatusOK, `{}`, &got)
	client := search.NewClient(srv.URL+"/", srv.Client())

	_, err := client.Search(context.Background(), "red car & bike/2")
	require.NoError(t, err)
	assert.Equal(t, "red car & bike/2", got)
}

func TestPlaybackURL(t *testing.T) {
	tests := []struct {
		base, clip, want string
	}{
		{"http://media.local", "/data/clips/cam1.mp4", "http://media.local/cam1.mp4"},
		{"http://media.local/", "cam1.mp4", "http://media.local/cam1.mp4"},
		{"http://media.local//", "clips/cam1.mp4/", "http://media.local/cam1.mp4"},
		{"http://media.local/videos", `C:\clips\cam 2.mp4`, "http://media.local/videos/cam%202.mp4"},
	}

	for _, tt := range tests {
		t.Run(tt.clip, func(t *testing.T) {
			got := search.PlaybackURL(tt.base, tt.clip)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, search.PlaybackURL(tt.base, tt.clip))
		})
	}
}
