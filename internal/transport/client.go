package transport

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/technosupport/ts-console/internal/metrics"
)

const maxDrainBytes = 4 << 10

// NewHTTPClient builds the client shared by the collaborators.
// A zero timeout leaves requests unbounded; the services own their deadlines.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// Endpoint joins a base address and a path without doubling slashes.
func Endpoint(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

// ValidateBaseURL ensures a configured collaborator address is absolute.
func ValidateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return &url.Error{Op: "parse", URL: raw, Err: errInvalidBase}
	}
	return nil
}

var (
	errInvalidBase  = errors.New("base url must be absolute http(s)")
	errTrailingData = errors.New("unexpected data after JSON body")
)

// DoJSON sends req and decodes a 2xx JSON body into out. Every failure is
// returned as *Error. collaborator labels the request in metrics.
func DoJSON(client *http.Client, collaborator string, req *http.Request, out any) error {
	op := req.Method + " " + req.URL.Path
	start := time.Now()

	resp, err := client.Do(req)
	if err != nil {
		metrics.RecordUpstream(collaborator, string(KindNetwork), time.Since(start))
		return &Error{Kind: KindNetwork, Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))
		metrics.RecordUpstream(collaborator, string(KindStatus), time.Since(start))
		return &Error{Kind: KindStatus, Op: op, StatusCode: resp.StatusCode}
	}

	dec := json.NewDecoder(resp.Body)
	err = dec.Decode(out)
	if err == nil {
		if _, tokErr := dec.Token(); tokErr != io.EOF {
			err = errTrailingData
		}
	}
	if err != nil {
		metrics.RecordUpstream(collaborator, string(KindDecode), time.Since(start))
		return &Error{Kind: KindDecode, Op: op, Err: err}
	}

	metrics.RecordUpstream(collaborator, "ok", time.Since(start))
	return nil
}
