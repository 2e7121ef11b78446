package summary

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/goccy/go-json"
)

// HttpProvider posts the minutes to an external summarization
// endpoint and expects {"summary": "..."} back.
type HttpProvider struct {
	url    string
	client *http.Client
}

func NewHttpProvider(url string, timeout time.Duration) (*HttpProvider, error) {
	if url == "" {
		return nil, errors.New("summary endpoint was not specified")
	}
	return &HttpProvider{
		url: url,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

func (p *HttpProvider) Summarize(ctx context.Context, m Minutes) (string, error) {
	body, err := json.Marshal(&m)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewBuffer(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != 200 {
		return "", errors.New(resp.Status)
	}

	var out struct {
		Summary string `json:"summary"`
	}
	if err = json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.Summary == "" {
		return "", errors.New("the endpoint returned an empty summary")
	}
	return out.Summary, nil
}
