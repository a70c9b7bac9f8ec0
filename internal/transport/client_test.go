package transport_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/technosupport/ts-console/internal/transport"
)

type payload struct {
	Value string `json:"value"`
}

func TestDoJSON(t *testing.T) {
	tests := []struct {
		name     string
		handler  http.HandlerFunc
		wantKind transport.Kind
		wantVal  string
	}{
		{
			name: "OK",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"value":"hello"}`))
			},
			wantVal: "hello",
		},
		{
			name: "Non-2xx Status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusBadGateway)
			},
			wantKind: transport.KindStatus,
		},
		{
			name: "Trailing Newline",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("{\"value\":\"hello\"}\n"))
			},
			wantVal: "hello",
		},
		{
			name: "Trailing Garbage",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"value":"hello"}junk`))
			},
			wantKind: transport.KindDecode,
		},
		{
			name: "Second JSON Value",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"value":"hello"}{"value":"again"}`))
			},
			wantKind: transport.KindDecode,
		},
		{
			name: "Malformed Body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"value":`))
			},
			wantKind: transport.KindDecode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			req, err := http.NewRequest(http.MethodGet, srv.URL+"/x", nil)
			require.NoError(t, err)

			var out payload
			err = transport.DoJSON(srv.Client(), "test", req, &out)
			if tt.wantKind == "" {
				require.NoError(t, err)
				assert.Equal(t, tt.wantVal, out.Value)
				return
			}
			require.Error(t, err)
			assert.True(t, transport.IsKind(err, tt.wantKind), "got %v", err)
		})
	}
}

func TestDoJSON_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	req, _ := http.NewRequest(http.MethodGet, addr+"/search", nil)
	err := transport.DoJSON(http.DefaultClient, "test", req, &payload{})

	var te *transport.Error
	require.True(t, errors.As(err, &te))
	assert.Equal(t, transport.KindNetwork, te.Kind)
	assert.Equal(t, "GET /search", te.Op)
	assert.NotNil(t, te.Unwrap())
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "fallback", transport.Describe(errors.New("raw"), "fallback"))
	assert.Equal(t, "fallback", transport.Describe(nil, "fallback"))

	statusErr := &transport.Error{Kind: transport.KindStatus, Op: "GET /search", StatusCode: 503}
	assert.Equal(t, "Service responded with status 503", transport.Describe(statusErr, "fallback"))

	custom := &transport.Error{Kind: transport.KindNetwork, Message: "offline"}
	assert.Equal(t, "offline", transport.Describe(custom, "fallback"))
}

func TestEndpointAndValidate(t *testing.T) {
	assert.Equal(t, "http://h:8000/search", transport.Endpoint("http://h:8000/", "/search"))
	assert.Equal(t, "http://h:8000/search", transport.Endpoint("http://h:8000", "search"))

	assert.NoError(t, transport.ValidateBaseURL("http://127.0.0.1:8000"))
	assert.Error(t, transport.ValidateBaseURL("127.0.0.1:8000"))
	assert.Error(t, transport.ValidateBaseURL("ftp://host"))
	assert.Error(t, transport.ValidateBaseURL("http://"))
}
