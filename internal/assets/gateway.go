// Package assets talks to the IPFS pinning gateway that stores product images.
package assets

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/imrishuroy/go-storefront/internal/apperr"
)

// Gateway releases content held by the object-storage gateway.
type Gateway interface {
	Unpin(ctx context.Context, cid string) error
}

// PinningGateway is the HTTP client for the pinning service.
type PinningGateway struct {
	baseURL string
	jwt     string
	client  *http.Client
}

func NewPinningGateway(baseURL, jwt string, timeout time.Duration) *PinningGateway {
	return &PinningGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		jwt:     jwt,
		client:  &http.Client{Timeout: timeout},
	}
}

// Unpin issues DELETE {base}/pinning/unpin/{cid}. An empty cid is a no-op.
func (g *PinningGateway) Unpin(ctx context.Context, cid string) error {
	cid = strings.TrimSpace(cid)
	if cid == "" {
		return nil
	}
	endpoint := g.baseURL + "/pinning/unpin/" + url.PathEscape(cid)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build unpin request: %w", err)
	}
	if g.jwt != "" {
		req.Header.Set("Authorization", "Bearer "+g.jwt)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.ErrUpstream, err, "unpin %s", cid)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return apperr.New(apperr.ErrUpstream, "unpin %s: gateway returned %d: %s",
			cid, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
