package upload

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/technosupport/ts-console/internal/transport"
)

const (
	// FieldName is the multipart field the analysis service reads the clip from.
	FieldName = "video"

	analyzePath  = "/process-video"
	collaborator = "analysis"
)

// Upload is one transmission of a selected file.
type Upload struct {
	FileName string
	Body     io.Reader
	// OnSent is called once the whole body has been handed to the transport.
	OnSent func()
}

type Analyzer interface {
	Analyze(ctx context.Context, up Upload) (Result, error)
}

// analysisResponse mirrors the service payload; scene_description is
// required, message is optional.
type analysisResponse struct {
	Message          *string `json:"message"`
	SceneDescription *string `json:"scene_description"`
}

var (
	errMissingScene  = errors.New("response has no scene_description")
	errBodyAbandoned = errors.New("request body abandoned")
)

func (r analysisResponse) result() (Result, error) {
	if r.SceneDescription == nil {
		return nil, errMissingScene
	}
	if r.Message != nil && *r.Message != "" {
		return AnomalyDetected{Message: *r.Message, SceneDescription: *r.SceneDescription}, nil
	}
	return NoAnomaly{SceneDescription: *r.SceneDescription}, nil
}

// Client talks to the external analysis service.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: baseURL, http: httpClient}
}

// Analyze streams the file as multipart content and interprets the reply.
func (c *Client) Analyze(ctx context.Context, up Upload) (Result, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, transport.Endpoint(c.baseURL, analyzePath), pr)
	if err != nil {
		pr.CloseWithError(err)
		return nil, &transport.Error{Kind: transport.KindNetwork, Op: "POST " + analyzePath, Err: err}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	done := make(chan struct{})
	go func() {
		defer close(done)
		part, err := mw.CreateFormFile(FieldName, up.FileName)
		if err == nil {
			_, err = io.Copy(part, up.Body)
		}
		if err == nil {
			err = mw.Close()
		}
		if err == nil && up.OnSent != nil {
			up.OnSent()
		}
		pw.CloseWithError(err)
	}()

	var payload analysisResponse
	err = transport.DoJSON(c.http, collaborator, req, &payload)
	// Unblock the writer if the service answered before consuming the body.
	pr.CloseWithError(errBodyAbandoned)
	<-done
	if err != nil {
		return nil, err
	}

	res, err := payload.result()
	if err != nil {
		return nil, &transport.Error{Kind: transport.KindDecode, Op: "POST " + analyzePath, Err: err}
	}
	return res, nil
}
