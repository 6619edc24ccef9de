package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxFeedBody caps the feed size. A larger feed is rejected rather than cut.
var maxFeedBody int64 = 32 << 20

var ErrBadStatus = fmt.Errorf("%w: bad status", ErrTransport)

// HTTPSource fetches a published CSV document with a plain GET.
type HTTPSource struct {
	URL    string
	Client *http.Client
}

func NewHTTPSource(url string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{
		URL:    url,
		Client: &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSource) Fetch(ctx context.Context) (Document, error) {
	body, err := s.get(ctx)
	if err != nil {
		return Document{}, err
	}
	return ParseDocument(string(body))
}

func (s *HTTPSource) get(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	req.Header.Set("Accept", "text/csv, text/plain;q=0.9, */*;q=0.1")

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: status=%d", ErrBadStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBody+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrTransport, err)
	}
	if int64(len(body)) > maxFeedBody {
		return nil, fmt.Errorf("%w: feed exceeds %d bytes", ErrMalformed, maxFeedBody)
	}
	return body, nil
}
