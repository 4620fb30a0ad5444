// Package client talks to the whiteboard backend: the HTTP API as a
// boardsync.Store and the realtime websocket as a boardsync.Transport.
package client

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

	"github.com/golang/glog"

	"whiteboard/internal/boardsync"
	"whiteboard/internal/scene"
)

// API is the HTTP client of the backend.
type API struct {
	baseURL string
	token   string
	http    *http.Client
}

var _ boardsync.Store = (*API)(nil)

func NewAPI(baseURL, token string) *API {
	return &API{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// Session is the result of a verified login link.
type Session struct {
	Token       string
	UserID      string
	DisplayName string
}

type boardDTO struct {
	ID        string          `json:"id"`
	Slug      string          `json:"slug"`
	Name      string          `json:"name"`
	OwnerID   string          `json:"owner_id"`
	IsPublic  bool            `json:"is_public"`
	Version   int64           `json:"version"`
	Elements  []scene.Element `json:"elements"`
	ViewState json.RawMessage `json:"view_state"`
}

type sceneDTO struct {
	Elements  []scene.Element `json:"elements"`
	ViewState json.RawMessage `json:"view_state,omitempty"`
}

func (a *API) ReadBoard(ctx context.Context, slug string) (*scene.Board, error) {
	var out boardDTO
	if err := a.do(ctx, http.MethodGet, "/boards/"+url.PathEscape(slug), nil, &out); err != nil {
		return nil, err
	}
	elements := out.Elements
	if elements == nil {
		elements = []scene.Element{}
	}
	return &scene.Board{
		ID:       out.ID,
		Slug:     out.Slug,
		Name:     out.Name,
		OwnerID:  out.OwnerID,
		IsPublic: out.IsPublic,
		Version:  out.Version,
		Scene:    scene.Scene{Elements: elements, ViewState: out.ViewState},
	}, nil
}

func (a *API) WriteBoard(ctx context.Context, slug string, s scene.Scene) error {
	elements := s.Elements
	if elements == nil {
		elements = []scene.Element{}
	}
	body := sceneDTO{Elements: elements, ViewState: s.ViewState}
	return a.do(ctx, http.MethodPut, "/boards/"+url.PathEscape(slug)+"/scene", body, nil)
}

func (a *API) RequestLoginLink(ctx context.Context, email string) error {
	return a.do(ctx, http.MethodPost, "/auth/login-link", map[string]string{"email": email}, nil)
}

func (a *API) Verify(ctx context.Context, token string) (*Session, error) {
	var out struct {
		Token string `json:"token"`
		User  struct {
			ID          string `json:"id"`
			DisplayName string `json:"display_name"`
		} `json:"user"`
	}
	if err := a.do(ctx, http.MethodPost, "/auth/verify", map[string]string{"token": token}, &out); err != nil {
		return nil, err
	}
	return &Session{Token: out.Token, UserID: out.User.ID, DisplayName: out.User.DisplayName}, nil
}

// Me returns the identity behind the API token.
func (a *API) Me(ctx context.Context) (boardsync.Identity, error) {
	var out struct {
		ID          string `json:"id"`
		DisplayName string `json:"display_name"`
	}
	if err := a.do(ctx, http.MethodGet, "/me", nil, &out); err != nil {
		return boardsync.Identity{}, err
	}
	return boardsync.Identity{UserID: out.ID, Label: out.DisplayName}, nil
}

func (a *API) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	glog.V(2).Infof("[api]%s %s = %d\n", method, path, resp.StatusCode)

	if resp.StatusCode >= 300 {
		return statusError(method, path, resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode: %w", method, path, err)
	}
	return nil
}

func statusError(method, path string, resp *http.Response) error {
	var e struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&e)

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%s %s: %w: %s", method, path, boardsync.ErrUnauthorized, e.Error)
	case http.StatusNotFound:
		return fmt.Errorf("%s %s: %w", method, path, boardsync.ErrBoardNotFound)
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusUnprocessableEntity:
		return fmt.Errorf("%s %s: %w: %s", method, path, boardsync.ErrRejected, e.Error)
	}
	return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, e.Error)
}
