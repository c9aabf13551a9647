package eios

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gigisung0503/eios/internal/config"
	"github.com/gigisung0503/eios/internal/domain"
)

const (
	defaultBoardPageSize = 100
	defaultItemPageSize  = 300
	defaultMaxItems      = 5000
)

// Client talks to the EIOS v2 content API: client-credentials auth, board
// listing by tag, and paginated pinned/matching item retrieval.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	tokenURL     string
	clientID     string
	clientSecret string
	scope        string
	logger       *slog.Logger

	// Bearer credential, cached for the process lifetime and refreshed
	// only after a call rejects it.
	token         string
	termsAccepted bool

	boardPageSize int
	itemPageSize  int
	maxItems      int
}

// NewClient wires an HTTP client; page sizes and the item cap default to
// the upstream service limits.
func NewClient(cfg config.EIOSConfig, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient:    httpClient,
		baseURL:       strings.TrimSuffix(cfg.BaseURL, "/"),
		tokenURL:      cfg.ResolveTokenURL(),
		clientID:      cfg.ClientID,
		clientSecret:  cfg.ClientSecret,
		scope:         cfg.Scope,
		logger:        logger,
		boardPageSize: defaultBoardPageSize,
		itemPageSize:  defaultItemPageSize,
		maxItems:      defaultMaxItems,
	}
}

// Token returns the cached bearer credential, acquiring one on first use.
func (c *Client) Token(ctx context.Context) (string, error) {
	if c.token != "" {
		return c.token, nil
	}
	if err := c.acquireToken(ctx); err != nil {
		return "", err
	}
	c.acceptTerms(ctx)
	return c.token, nil
}

func (c *Client) acquireToken(ctx context.Context) error {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	form.Set("scope", c.scope)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return &AuthError{Reason: "build token request", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &AuthError{Reason: "request token", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return &AuthError{Reason: fmt.Sprintf("token endpoint returned %s", resp.Status)}
	}

	var tokenData struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenData); err != nil {
		return &AuthError{Reason: "decode token response", Err: err}
	}
	if tokenData.AccessToken == "" {
		return &AuthError{Reason: "no access_token in token response"}
	}

	c.token = tokenData.AccessToken
	return nil
}

// acceptTerms PUTs the Terms of Use acceptance required by the v2 API.
// Failure is non-fatal; the terms may already be accepted.
func (c *Client) acceptTerms(ctx context.Context) {
	if c.termsAccepted {
		return
	}

	body := strings.NewReader(`{"TermsOfUseAccepted": true}`)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/UserProfiles/me", body)
	if err != nil {
		c.logger.Warn("terms acceptance failed", "error", err)
		return
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("terms acceptance failed (may already be accepted)", "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		c.logger.Warn("terms acceptance failed (may already be accepted)", "status", resp.Status)
		return
	}
	c.termsAccepted = true
}

// authorizedGet performs a bearer-authorized GET with the
// retry-once-after-reauth contract: a 401 discards the cached credential,
// re-acquires once, and replays the request. Any other non-success status
// is an UpstreamError with no retry.
func (c *Client) authorizedGet(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	if _, err := c.Token(ctx); err != nil {
		return nil, err
	}

	body, status, err := c.get(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		c.logger.Info("credential rejected, re-authenticating", "endpoint", endpoint)
		c.token = ""
		if _, err := c.Token(ctx); err != nil {
			return nil, err
		}
		body, status, err = c.get(ctx, endpoint, params)
		if err != nil {
			return nil, err
		}
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return nil, &UpstreamError{Endpoint: endpoint, Status: strconv.Itoa(status)}
	}
	return body, nil
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values) ([]byte, int, error) {
	u := c.baseURL + endpoint
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build request %s: %w", endpoint, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, &UpstreamError{Endpoint: endpoint, Status: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read response %s: %w", endpoint, err)
	}
	return body, resp.StatusCode, nil
}

// fetchPaged walks fixed-size pages at increasing offsets. An empty first
// page means zero results; a full page always triggers exactly one more
// request; a short page is always the last. A positive cap halts
// accumulation once reached, as deliberate truncation rather than an error.
func (c *Client) fetchPaged(ctx context.Context, endpoint string, base url.Values, pageSize, maxTotal int) ([]json.RawMessage, error) {
	var all []json.RawMessage
	start := 0

	for {
		params := url.Values{}
		for k, v := range base {
			params[k] = v
		}
		params.Set("start", strconv.Itoa(start))
		params.Set("limit", strconv.Itoa(pageSize))

		body, err := c.authorizedGet(ctx, endpoint, params)
		if err != nil {
			return nil, err
		}

		page, err := decodePage(body)
		if err != nil {
			return nil, fmt.Errorf("decode page %s: %w", endpoint, err)
		}
		if len(page) == 0 {
			break
		}

		all = append(all, page...)

		if maxTotal > 0 && len(all) >= maxTotal {
			c.logger.Warn("reached item cap", "endpoint", endpoint, "cap", maxTotal)
			break
		}
		if len(page) < pageSize {
			break
		}
		start += pageSize
	}

	return all, nil
}

// decodePage accepts either a bare array or the {"result": [...]}
// envelope; an envelope without a result reads as an empty page.
func decodePage(body []byte) ([]json.RawMessage, error) {
	var bare []json.RawMessage
	if err := json.Unmarshal(body, &bare); err == nil {
		return bare, nil
	}

	var envelope struct {
		Result []json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("unrecognized page payload: %w", err)
	}
	return envelope.Result, nil
}

// Boards lists the boards carrying the given tag.
func (c *Client) Boards(ctx context.Context, tag string) ([]domain.Board, error) {
	params := url.Values{}
	if tag != "" {
		params.Set("tags", tag)
	}

	raw, err := c.fetchPaged(ctx, "/Boards/by-tags", params, c.boardPageSize, 0)
	if err != nil {
		return nil, err
	}

	boards := make([]domain.Board, 0, len(raw))
	for _, msg := range raw {
		var dto struct {
			ID   json.Number `json:"id"`
			Tags []string    `json:"tags"`
		}
		if err := json.Unmarshal(msg, &dto); err != nil || dto.ID.String() == "" {
			continue
		}
		boards = append(boards, domain.Board{ID: dto.ID.String(), Tags: dto.Tags})
	}

	c.logger.Info("fetched boards", "tag", tag, "count", len(boards))
	return boards, nil
}

// PinnedItems lists items pinned to any of the boards since the given time.
func (c *Client) PinnedItems(ctx context.Context, boardIDs []string, since time.Time) ([]domain.Candidate, error) {
	params := url.Values{}
	params.Set("boardIds", strings.Join(boardIDs, ","))
	params.Set("pinnedSince", isoZ(since))

	raw, err := c.fetchPaged(ctx, "/Items/pinned-to-boards", params, c.itemPageSize, c.maxItems)
	if err != nil {
		return nil, err
	}
	return decodeItems(raw), nil
}

// BoardItems lists all items matching a board's filter since the given
// time, pinned or not.
func (c *Client) BoardItems(ctx context.Context, boardID string, since time.Time) ([]domain.Candidate, error) {
	params := url.Values{}
	params.Set("timeSince", isoZ(since))

	raw, err := c.fetchPaged(ctx, "/Items/matching-board/"+boardID, params, c.itemPageSize, c.maxItems)
	if err != nil {
		return nil, err
	}
	return decodeItems(raw), nil
}

type itemDTO struct {
	ID                           json.Number `json:"id"`
	Title                        string      `json:"title"`
	OriginalTitle                string      `json:"originalTitle"`
	TranslatedDescription        string      `json:"translatedDescription"`
	Description                  string      `json:"description"`
	AbstractiveSummary           string      `json:"abstractiveSummary"`
	TranslatedAbstractiveSummary string      `json:"translatedAbstractiveSummary"`
	Link                         string      `json:"link"`
	LanguageISO                  string      `json:"languageIso"`
	PubDate                      string      `json:"pubDate"`
	PublicationDate              string      `json:"publicationDate"`
	PublishedAt                  string      `json:"publishedAt"`
}

func decodeItems(raw []json.RawMessage) []domain.Candidate {
	items := make([]domain.Candidate, 0, len(raw))
	for _, msg := range raw {
		var dto itemDTO
		if err := json.Unmarshal(msg, &dto); err != nil || dto.ID.String() == "" {
			continue
		}
		items = append(items, dto.toDomain())
	}
	return items
}

func (d itemDTO) toDomain() domain.Candidate {
	published := d.PubDate
	if published == "" {
		published = d.PublicationDate
	}
	if published == "" {
		published = d.PublishedAt
	}

	// The v2 payload rarely fills translatedAbstractiveSummary; the
	// translated description stands in for it.
	translatedSummary := d.TranslatedAbstractiveSummary
	if translatedSummary == "" {
		translatedSummary = d.TranslatedDescription
	}

	return domain.Candidate{
		ExternalID:                   d.ID.String(),
		Title:                        d.Title,
		OriginalTitle:                d.OriginalTitle,
		TranslatedDescription:        d.TranslatedDescription,
		TranslatedAbstractiveSummary: translatedSummary,
		AbstractiveSummary:           d.AbstractiveSummary,
		Link:                         d.Link,
		LanguageISO:                  d.LanguageISO,
		PublishedAt:                  published,
	}
}

// isoZ renders a timestamp as Z-suffixed ISO-8601, e.g.
// 2025-10-12T10:30:00Z.
func isoZ(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}
