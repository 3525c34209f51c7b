// Package remote implements the HTTP clone/push/pull client: a thin
// wrapper over a repository's archive-list/archive/uid endpoints, with
// connection pooling and one client-wide timeout (defaultTimeout) that
// applies to every request.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ragit-kb/ragit/internal/errors"
)

const (
	defaultTimeout   = 120 * time.Second
	defaultIdleConns = 8
	idleConnTimeout  = 10 * time.Second
)

// Client talks to a single ragit repository server over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a Client against baseURL (e.g. "https://kb.example.com/myrepo").
func New(baseURL string) *Client {
	transport := &http.Transport{
		MaxIdleConns:        defaultIdleConns,
		MaxIdleConnsPerHost: defaultIdleConns,
		IdleConnTimeout:     idleConnTimeout,
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Transport: transport, Timeout: defaultTimeout},
	}
}

func (c *Client) url(path string) string {
	return c.baseURL + "/" + strings.TrimLeft(path, "/")
}

// ArchiveList returns the server's archive file names, oldest first,
// via GET archive-list. The request is retried with backoff on transient
// network failures since it is idempotent and safe to repeat.
func (c *Client) ArchiveList(ctx context.Context) ([]string, error) {
	target := c.url("archive-list")
	var names []string
	err := errors.Retry(ctx, errors.DefaultRetryConfig(), func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return fmt.Errorf("remote: build archive-list request: %w", err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return errors.RequestFailure(target, 0, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return errors.RequestFailure(target, resp.StatusCode, nil)
		}
		names = nil
		if err := json.NewDecoder(resp.Body).Decode(&names); err != nil {
			return fmt.Errorf("remote: decode archive-list: %w", err)
		}
		return nil
	})
	return names, err
}

// FetchArchive downloads one archive's raw bytes via GET archive/{id},
// retried with backoff on transient network failures.
func (c *Client) FetchArchive(ctx context.Context, id string) ([]byte, error) {
	target := c.url("archive/" + url.PathEscape(id))
	var data []byte
	err := errors.Retry(ctx, errors.DefaultRetryConfig(), func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return fmt.Errorf("remote: build archive request: %w", err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return errors.RequestFailure(target, 0, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return errors.RequestFailure(target, resp.StatusCode, nil)
		}
		data, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("remote: read archive %s: %w", id, err)
		}
		return nil
	})
	return data, err
}

// RemoteUID fetches the server's 64-hex KB uid via GET uid, used to
// decide whether a local clone is already up to date. Retried with
// backoff on transient network failures.
func (c *Client) RemoteUID(ctx context.Context) (string, error) {
	target := c.url("uid")
	var uid string
	err := errors.Retry(ctx, errors.DefaultRetryConfig(), func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return fmt.Errorf("remote: build uid request: %w", err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return errors.RequestFailure(target, 0, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return errors.RequestFailure(target, resp.StatusCode, nil)
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("remote: read uid: %w", err)
		}
		uid = strings.TrimSpace(string(data))
		return nil
	})
	return uid, err
}

// PushSession is an in-progress push, opened with BeginPush and closed
// with Finalize.
type PushSession struct {
	client    *Client
	sessionID string
}

// BeginPush opens a push session via POST begin-push, returning the
// server-assigned session id.
func (c *Client) BeginPush(ctx context.Context) (*PushSession, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("begin-push"), nil)
	if err != nil {
		return nil, fmt.Errorf("remote: build begin-push request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.RequestFailure(req.URL.String(), 0, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.RequestFailure(req.URL.String(), resp.StatusCode, nil)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("remote: read begin-push response: %w", err)
	}
	return &PushSession{client: c, sessionID: strings.TrimSpace(string(data))}, nil
}

// PushArchive uploads one archive file's bytes as part of this session
// via POST archive (multipart session-id/archive-id/archive). archiveID
// is generated client-side (a v4 uuid) since the wire protocol leaves
// naming a rolled-over archive file to the pusher.
func (s *PushSession) PushArchive(ctx context.Context, data []byte) error {
	archiveID := uuid.NewString()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := w.WriteField("session-id", s.sessionID); err != nil {
		return fmt.Errorf("remote: write session-id field: %w", err)
	}
	if err := w.WriteField("archive-id", archiveID); err != nil {
		return fmt.Errorf("remote: write archive-id field: %w", err)
	}
	part, err := w.CreateFormFile("archive", archiveID)
	if err != nil {
		return fmt.Errorf("remote: create archive part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("remote: write archive bytes: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("remote: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.client.url("archive"), &body)
	if err != nil {
		return fmt.Errorf("remote: build archive upload request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := s.client.http.Do(req)
	if err != nil {
		return errors.RequestFailure(req.URL.String(), 0, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.RequestFailure(req.URL.String(), resp.StatusCode, nil)
	}
	return nil
}

// Finalize completes the push via POST finalize-push (body: session id).
func (s *PushSession) Finalize(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.client.url("finalize-push"), strings.NewReader(s.sessionID))
	if err != nil {
		return fmt.Errorf("remote: build finalize-push request: %w", err)
	}
	resp, err := s.client.http.Do(req)
	if err != nil {
		return errors.RequestFailure(req.URL.String(), 0, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.RequestFailure(req.URL.String(), resp.StatusCode, nil)
	}
	return nil
}
