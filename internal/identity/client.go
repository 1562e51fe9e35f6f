// Package identity talks to the identity-resolution service that owns
// app records and token-to-user mapping.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bryceweiner/chat-server/internal/domain"
)

// ErrUpstream covers transport failures and unparsable responses.
// An absent record is not an error; lookups report it as (nil, nil).
var ErrUpstream = errors.New("identity gateway unavailable")

// App is the record resolved from an app id. The room a connection
// lands in is derived from App.ID.
type App struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Gateway is the surface the coordinator consumes.
type Gateway interface {
	FindAppByID(ctx context.Context, appID int64) (*App, error)
	FindUserByTokenHash(ctx context.Context, hash string) (*domain.Identity, error)
}

type Client struct {
	endpoint  string
	appSecret string
	http      *http.Client
}

func NewClient(endpoint, appSecret string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		endpoint:  endpoint,
		appSecret: appSecret,
		http:      &http.Client{Timeout: timeout},
	}
}

func (c *Client) FindAppByID(ctx context.Context, appID int64) (*App, error) {
	var app App
	found, err := c.get(ctx, fmt.Sprintf("/apps/%d", appID), &app)
	if err != nil || !found {
		return nil, err
	}
	return &app, nil
}

func (c *Client) FindUserByTokenHash(ctx context.Context, hash string) (*domain.Identity, error) {
	var user domain.Identity
	found, err := c.get(ctx, "/hashed-token-users/"+url.PathEscape(hash), &user)
	if err != nil || !found {
		return nil, err
	}
	return &user, nil
}

// get performs one authenticated lookup. A 404 or JSON null body means
// the record is absent; anything else unparsable is ErrUpstream.
func (c *Client) get(ctx context.Context, path string, out any) (bool, error) {
	uri := c.endpoint + path + "?app_secret=" + url.QueryEscape(c.appSecret)
	log.Debug().Str("module", "identity").Str("path", path).Msg("gateway request")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("%w: unexpected status %d", ErrUpstream, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if len(body) == 0 || string(body) == "null" {
		return false, nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return false, fmt.Errorf("%w: decode: %v", ErrUpstream, err)
	}
	return true, nil
}
