package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/webbben/code-duel-client/model"
)

const defaultTimeout = 10 * time.Second

var (
	ErrRequest = errors.New("request failed")
	ErrStatus  = errors.New("server returned an error status")
	ErrDecode  = errors.New("unable to decode server response")
)

type (
	// Client talks to the code-duel HTTP API: room and problem CRUD,
	// game launch, and code testing. The websocket room connection is a
	// separate concern; see the connection package.
	Client struct {
		logger  zerolog.Logger
		http    *http.Client
		baseURL string
		token   string
	}

	Config struct {
		Logger *zerolog.Logger
		// BaseURL is the server address, e.g. http://localhost:8080.
		BaseURL string
		// Token is the auth credential sent as a bearer token on
		// protected endpoints.
		Token   string
		Timeout time.Duration
	}

	// CodeRequest carries a code test or submission.
	CodeRequest struct {
		ProblemID string `json:"problemID"`
		Lang      string `json:"lang"`
		Code      string `json:"code"`
		RoomID    string `json:"roomID,omitempty"`
	}
)

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &Client{
		logger:  cfg.Logger.With().Str("component", "api").Logger(),
		http:    &http.Client{Timeout: timeout},
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
	}
}

// SetToken replaces the auth credential used on protected endpoints.
func (c *Client) SetToken(token string) {
	c.token = token
}

func (c *Client) GetRoomList(ctx context.Context) ([]model.Room, error) {
	var out struct {
		Rooms []model.Room `json:"rooms"`
	}
	if err := c.do(ctx, http.MethodGet, "/rooms", nil, &out); err != nil {
		return nil, err
	}
	return out.Rooms, nil
}

func (c *Client) GetRoom(ctx context.Context, roomID string) (*model.Room, error) {
	var out struct {
		Room *model.Room `json:"room"`
	}
	if err := c.do(ctx, http.MethodGet, "/rooms/"+roomID, nil, &out); err != nil {
		return nil, err
	}
	if out.Room != nil {
		out.Room.ID = roomID
	}
	return out.Room, nil
}

// CreateRoom creates a room owned by the authenticated user and returns
// its ID.
func (c *Client) CreateRoom(ctx context.Context, req model.CreateRoomRequest) (string, error) {
	var out struct {
		RoomID string `json:"roomID"`
	}
	if err := c.do(ctx, http.MethodPost, "/protected/rooms", req, &out); err != nil {
		return "", err
	}
	return out.RoomID, nil
}

func (c *Client) JoinRoom(ctx context.Context, roomID string) error {
	return c.do(ctx, http.MethodPost, "/protected/rooms/"+roomID+"/join", nil, nil)
}

func (c *Client) LeaveRoom(ctx context.Context, roomID string) error {
	return c.do(ctx, http.MethodPost, "/protected/rooms/"+roomID+"/leave", nil, nil)
}

// LaunchGame starts the room's game for the given problem. The server
// notifies all members over the room connection once the game is live.
func (c *Client) LaunchGame(ctx context.Context, roomID, problemID string) error {
	body := map[string]string{"problemID": problemID}
	return c.do(ctx, http.MethodPost, "/protected/rooms/"+roomID+"/launchGame", body, nil)
}

// LoadGameRoom fetches the full problem for the room's running game.
func (c *Client) LoadGameRoom(ctx context.Context, roomID string) (*model.Problem, error) {
	var out struct {
		Problem *model.Problem `json:"problem"`
	}
	if err := c.do(ctx, http.MethodGet, "/protected/rooms/"+roomID+"/game", nil, &out); err != nil {
		return nil, err
	}
	return out.Problem, nil
}

func (c *Client) GetProblemList(ctx context.Context) ([]model.ProblemOverview, error) {
	var out struct {
		Problems []model.ProblemOverview `json:"problems"`
	}
	if err := c.do(ctx, http.MethodGet, "/problems", nil, &out); err != nil {
		return nil, err
	}
	return out.Problems, nil
}

func (c *Client) GetProblem(ctx context.Context, problemID string) (*model.Problem, error) {
	var out struct {
		Problem *model.Problem `json:"problem"`
	}
	if err := c.do(ctx, http.MethodGet, "/problems/"+problemID, nil, &out); err != nil {
		return nil, err
	}
	return out.Problem, nil
}

// GetProblemTemplate fetches the starter code for a problem in the given
// language.
func (c *Client) GetProblemTemplate(ctx context.Context, problemID, lang string) (string, error) {
	var out struct {
		Template string `json:"template"`
	}
	path := fmt.Sprintf("/problems/%s/template/%s", problemID, lang)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return "", err
	}
	return out.Template, nil
}

// TestCode runs the code against the problem's visible test cases.
func (c *Client) TestCode(ctx context.Context, req CodeRequest) (*model.TestResult, error) {
	var out model.TestResult
	if err := c.do(ctx, http.MethodPost, "/protected/testCode", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitCode runs the code against the full test suite, counting toward
// game progress.
func (c *Client) SubmitCode(ctx context.Context, req CodeRequest) (*model.TestResult, error) {
	var out model.TestResult
	if err := c.do(ctx, http.MethodPost, "/protected/submitCode", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyToken checks the configured credential against the server.
func (c *Client) VerifyToken(ctx context.Context) (bool, error) {
	err := c.do(ctx, http.MethodPost, "/verifyToken", nil, nil)
	if errors.Is(err, ErrStatus) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// do runs one request against the API: marshals the body when present,
// attaches the bearer token, checks the response status, and decodes the
// body into out when requested.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return errors.Join(ErrRequest, err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return errors.Join(ErrRequest, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Join(ErrRequest, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		c.logger.Warn().
			Int("status", resp.StatusCode).
			Str("path", path).
			Str("body", string(b)).
			Msg("request rejected by server")
		return fmt.Errorf("%w: %s %s: %s", ErrStatus, method, path, resp.Status)
	}

	if out != nil {
		if err = json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.Join(ErrDecode, err)
		}
	}
	c.logger.Debug().Str("path", path).Str("method", method).Msg("request ok")
	return nil
}
