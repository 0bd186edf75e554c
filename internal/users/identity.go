package users

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/imrishuroy/go-storefront/internal/apperr"
)

// HTTPIdentityProvider calls the identity provider's user management API.
type HTTPIdentityProvider struct {
	baseURL string
	secret  string
	client  *http.Client
}

func NewHTTPIdentityProvider(baseURL, secret string, timeout time.Duration) *HTTPIdentityProvider {
	return &HTTPIdentityProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  secret,
		client:  &http.Client{Timeout: timeout},
	}
}

// UpdateUser sends PATCH {base}/users/{externalID}.
func (p *HTTPIdentityProvider) UpdateUser(ctx context.Context, externalID string, profile Profile) error {
	body, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	return p.do(ctx, http.MethodPatch, externalID, body)
}

// DeleteUser sends DELETE {base}/users/{externalID}.
func (p *HTTPIdentityProvider) DeleteUser(ctx context.Context, externalID string) error {
	return p.do(ctx, http.MethodDelete, externalID, nil)
}

func (p *HTTPIdentityProvider) do(ctx context.Context, method, externalID string, body []byte) error {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+"/users/"+url.PathEscape(externalID), rdr)
	if err != nil {
		return fmt.Errorf("build identity request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.secret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.ErrUpstream, err, "identity provider %s %s", method, externalID)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return apperr.New(apperr.ErrUpstream, "identity provider %s %s: status %d: %s",
			method, externalID, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
