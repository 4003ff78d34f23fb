package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/Guizzs26/single_ballot_poll_system/internal/auth"
	"github.com/Guizzs26/single_ballot_poll_system/internal/poll"
)

// TokenSource mints a bearer token for an identity. *auth.Tokens satisfies it.
type TokenSource interface {
	Mint(identity string) (string, error)
}

// Client calls a pollsvc over HTTP. Mutating calls are signed as the acting
// identity when Tokens is set; poll errors come back as poll.Error values.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Tokens  TokenSource
}

// ResponseError is returned for non-2xx responses that do not carry a poll
// error code.
type ResponseError struct {
	Status  int
	Message string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("pollsvc: %d %s", e.Status, e.Message)
}

func NewClient(baseURL string, tokens TokenSource) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    http.DefaultClient,
		Tokens:  tokens,
	}
}

func (c *Client) Initialize(ctx context.Context, pollID, admin string, options []string) error {
	return c.do(ctx, http.MethodPost, pollPath(pollID, "initialize"), admin,
		InitializeRequest{Admin: admin, Options: options}, nil)
}

func (c *Client) Vote(ctx context.Context, pollID, voter, option string) (uint32, error) {
	var resp CountResponse
	err := c.do(ctx, http.MethodPost, pollPath(pollID, "votes"), voter,
		VoteRequest{Voter: voter, Option: option}, &resp)
	return resp.Count, err
}

func (c *Client) VoteCount(ctx context.Context, pollID, option string) (uint32, error) {
	var resp CountResponse
	err := c.do(ctx, http.MethodGet, pollPath(pollID, "options", option, "count"), "", nil, &resp)
	return resp.Count, err
}

func (c *Client) Options(ctx context.Context, pollID string) ([]string, error) {
	var resp OptionsResponse
	if err := c.do(ctx, http.MethodGet, pollPath(pollID, "options"), "", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Options == nil {
		resp.Options = []string{}
	}
	return resp.Options, nil
}

func (c *Client) HasVoted(ctx context.Context, pollID, voter string) (bool, error) {
	var resp HasVotedResponse
	err := c.do(ctx, http.MethodGet, pollPath(pollID, "voters", voter), "", nil, &resp)
	return resp.HasVoted, err
}

func (c *Client) Audit(ctx context.Context, pollID string) (poll.Report, error) {
	var report poll.Report
	err := c.do(ctx, http.MethodGet, pollPath(pollID, "audit"), "", nil, &report)
	return report, err
}

func pollPath(pollID string, rest ...string) string {
	parts := []string{"polls", url.PathEscape(pollID)}
	for _, p := range rest {
		parts = append(parts, url.PathEscape(p))
	}
	return "/" + strings.Join(parts, "/")
}

func (c *Client) do(ctx context.Context, method, path, actor string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if actor != "" && c.Tokens != nil {
		token, err := c.Tokens.Mint(actor)
		if err != nil {
			return fmt.Errorf("mint token for %q: %w", actor, err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var body ErrorBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return &ResponseError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	if perr, ok := poll.ErrorFromCode(body.Code); ok {
		return perr
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: %s", auth.ErrNotAuthorized, body.Error)
	}
	return &ResponseError{Status: resp.StatusCode, Message: body.Error}
}
