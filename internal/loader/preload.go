package loader

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"

	_ "golang.org/x/image/webp"
)

// HTTPPreloader fetches full-resolution panoramas over HTTP and checks that
// the body decodes as an image before the renderer is asked to use it.
type HTTPPreloader struct {
	client *http.Client
	base   *url.URL
}

// NewHTTPPreloader resolves relative image URLs (as stored in tour documents,
// e.g. "tour_images/atrium.webp") against baseURL.
func NewHTTPPreloader(client *http.Client, baseURL string) (*HTTPPreloader, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base url: %w", err)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPPreloader{client: client, base: base}, nil
}

func (p *HTTPPreloader) Preload(ctx context.Context, rawURL string) error {
	ref, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parsing image url: %w", err)
	}
	u := p.base.ResolveReference(ref)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetching %s: status %d", u, resp.StatusCode)
	}
	if _, _, err := image.DecodeConfig(resp.Body); err != nil {
		return fmt.Errorf("decoding %s: %w", u, err)
	}
	// Pull the rest so the image is fully transferred, as a browser would.
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return fmt.Errorf("reading %s: %w", u, err)
	}
	return nil
}
