// MyAnimeList API implementation of the catalog, list, and token boundaries.
//
// MAL API response types based on https://myanimelist.net/apiconfig/references/api/v2
package mal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rmtj/malup/internal/auth"
	"github.com/rmtj/malup/internal/shared"
	"golang.org/x/oauth2"
)

const (
	malAuthURL  = "https://myanimelist.net/v1/oauth2/authorize"
	malTokenURL = "https://myanimelist.net/v1/oauth2/token"
	malBaseURL  = "https://api.myanimelist.net/v2"

	searchFields = "id,title,num_episodes"
	listFields   = "id,title,num_episodes,my_list_status{status,num_episodes_watched,score,updated_at}"
)

// AnimeNode is a catalog entry as returned by the search endpoint.
type AnimeNode struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	NumEpisodes int    `json:"num_episodes"`
}

type searchPage struct {
	Data []struct {
		Node AnimeNode `json:"node"`
	} `json:"data"`
}

// MyListStatus is the per-user list state attached to a list entry.
// Pointer fields distinguish absent values from zero.
type MyListStatus struct {
	Status             string `json:"status"`
	NumEpisodesWatched *int   `json:"num_episodes_watched"`
	Score              *int   `json:"score"`
	UpdatedAt          string `json:"updated_at"`
}

// ListNode is one entry of the user's anime list.
type ListNode struct {
	ID           int           `json:"id"`
	Title        string        `json:"title"`
	NumEpisodes  *int          `json:"num_episodes"`
	MyListStatus *MyListStatus `json:"my_list_status"`
}

// ListDatum wraps a list entry the way the API nests it.
type ListDatum struct {
	Node ListNode `json:"node"`
}

// ListPage is one page of the user's anime list, with an opaque next-page URL.
type ListPage struct {
	Data   []ListDatum `json:"data"`
	Paging struct {
		Next string `json:"next"`
	} `json:"paging"`
}

// ListStatusUpdate carries the fields of a list-status PATCH.
type ListStatusUpdate struct {
	Status             string
	NumWatchedEpisodes int
	Score              *int
}

// User is the authenticated user's profile.
type User struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

// DisplayName returns the best available label for the user.
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	if u.Username != "" {
		return u.Username
	}
	return "User"
}

// Client talks to the MyAnimeList v2 API and its OAuth2 token endpoint.
//
// Tokens are not held here; every call takes the bearer token so ownership
// stays with the caller's session.
type Client struct {
	clientID     string
	clientSecret string
	redirectURI  string
	pkcePlain    bool
	httpClient   *http.Client
	baseURL      string
	authURL      string
	tokenURL     string
}

// NewClient creates a MAL API client from the configured credentials.
func NewClient(cfg shared.MALConfig, httpClient *http.Client) (*Client, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("%w: mal client_id", shared.ErrMissingCredentials)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		redirectURI:  cfg.RedirectURI,
		pkcePlain:    strings.EqualFold(cfg.PKCEMethod, "plain"),
		httpClient:   httpClient,
		baseURL:      malBaseURL,
		authURL:      malAuthURL,
		tokenURL:     malTokenURL,
	}, nil
}

// oauthConfig builds the oauth2 configuration for the authorization-code flow.
func (c *Client) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.clientID,
		ClientSecret: c.clientSecret,
		RedirectURL:  c.redirectURI,
		Endpoint: oauth2.Endpoint{
			AuthURL:  c.authURL,
			TokenURL: c.tokenURL,
		},
	}
}

// clientContext routes oauth2's internal HTTP calls through our client.
func (c *Client) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

// AuthCodeURL returns the MAL authorization URL for the given CSRF state and
// PKCE verifier. MAL accepts both S256 and plain challenges; S256 is used
// unless the client was configured for plain.
func (c *Client) AuthCodeURL(state, verifier string) string {
	cfg := c.oauthConfig()
	if c.pkcePlain {
		return cfg.AuthCodeURL(state,
			oauth2.SetAuthURLParam("code_challenge", verifier),
			oauth2.SetAuthURLParam("code_challenge_method", "plain"),
		)
	}
	return cfg.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
}

// Exchange redeems an authorization code (plus its PKCE verifier) for a token pair.
func (c *Client) Exchange(ctx context.Context, code, verifier string) (auth.TokenSet, error) {
	token, err := c.oauthConfig().Exchange(c.clientContext(ctx), code, oauth2.VerifierOption(verifier))
	if err != nil {
		return auth.TokenSet{}, fmt.Errorf("token exchange failed: %w", err)
	}
	return auth.TokenSet{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	}, nil
}

// RefreshTokens exchanges a refresh token for a new token pair.
// Implements [auth.Refresher].
func (c *Client) RefreshTokens(ctx context.Context, refreshToken string) (auth.TokenSet, error) {
	src := c.oauthConfig().TokenSource(c.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	token, err := src.Token()
	if err != nil {
		return auth.TokenSet{}, fmt.Errorf("refresh grant failed: %w", err)
	}
	ts := auth.TokenSet{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	}
	if ts.RefreshToken == "" {
		// MAL rotates refresh tokens; keep the old one if the response omits it.
		ts.RefreshToken = refreshToken
	}
	return ts, nil
}

// SearchAnime queries the catalog for title and returns the first hit.
// Fails with [shared.ErrNoMatch] when the search comes back empty.
func (c *Client) SearchAnime(ctx context.Context, title, token string) (*AnimeNode, error) {
	query := url.Values{
		"q":      {title},
		"limit":  {"1"},
		"fields": {searchFields},
	}

	var page searchPage
	if err := c.get(ctx, "/anime", query, token, &page); err != nil {
		return nil, err
	}
	if len(page.Data) == 0 {
		return nil, fmt.Errorf("%w for %q", shared.ErrNoMatch, title)
	}
	node := page.Data[0].Node
	return &node, nil
}

// UpdateListStatus applies a list-status update for the given anime id.
func (c *Client) UpdateListStatus(ctx context.Context, animeID int, upd ListStatusUpdate, token string) error {
	form := url.Values{
		"status":               {upd.Status},
		"num_watched_episodes": {strconv.Itoa(upd.NumWatchedEpisodes)},
	}
	if upd.Score != nil {
		form.Set("score", strconv.Itoa(*upd.Score))
	}

	endpoint := fmt.Sprintf("%s/anime/%d/my_list_status", c.baseURL, animeID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.statusError(resp)
	}
	return nil
}

// ListPage fetches one page of the user's anime list. The first page (empty
// next) sends the page size and field projection; later pages follow the
// opaque next URL returned by the previous page, with no parameters re-sent.
func (c *Client) ListPage(ctx context.Context, next string, pageSize int, token string) (*ListPage, error) {
	endpoint := next
	if endpoint == "" {
		query := url.Values{
			"limit":  {strconv.Itoa(pageSize)},
			"fields": {listFields},
		}
		endpoint = c.baseURL + "/users/@me/animelist?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.statusError(resp)
	}

	var page ListPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &page, nil
}

// Me retrieves the authenticated user's profile.
func (c *Client) Me(ctx context.Context, token string) (*User, error) {
	var user User
	if err := c.get(ctx, "/users/@me", url.Values{"fields": {"name,username"}}, token, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// get performs an authenticated GET against the API and decodes the JSON response.
func (c *Client) get(ctx context.Context, endpoint string, query url.Values, token string, result any) error {
	apiURL := c.baseURL + endpoint
	if len(query) > 0 {
		apiURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.statusError(resp)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// statusError maps a non-2xx response to a typed error, carrying the remote
// message through when one is present. 401 maps to [shared.ErrTokenRejected]
// so the session retry wrapper can discriminate it.
func (c *Client) statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	message := ""
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			message = payload.Message
		} else if payload.Error != "" {
			message = payload.Error
		}
	}
	if message == "" {
		message = fmt.Sprintf("status %d", resp.StatusCode)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: %s", shared.ErrTokenRejected, message)
	}
	return fmt.Errorf("%w: %s", shared.ErrAPIRequest, message)
}
