package generation

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
)

// singleAttemptTransport makes every provider request final. Responses carry
// X-Should-Retry: false, which the Anthropic SDK honors over its status-code retry rules;
// transport failures come back as a 502 response for the same reason, since the SDK
// retries any attempt that produced no response.
type singleAttemptTransport struct {
	base http.RoundTripper
}

func newHTTPClient() *http.Client {
	return &http.Client{Transport: singleAttemptTransport{base: http.DefaultTransport}}
}

func (t singleAttemptTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		if req.Context().Err() != nil {
			return nil, err
		}
		return transportFailure(req, err), nil
	}
	resp.Header.Set("X-Should-Retry", "false")
	return resp, nil
}

func transportFailure(req *http.Request, cause error) *http.Response {
	body, _ := json.Marshal(map[string]any{
		"type": "error",
		"error": map[string]string{
			"type":    "api_error",
			"message": "transport: " + cause.Error(),
		},
	})
	header := make(http.Header)
	header.Set("Content-Type", "application/json")
	header.Set("X-Should-Retry", "false")
	return &http.Response{
		Status:        "502 Bad Gateway",
		StatusCode:    http.StatusBadGateway,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}
