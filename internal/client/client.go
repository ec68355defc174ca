// Package client talks to the inventory HTTP API on behalf of the terminal
// client and the admin CLI.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/easy-inventory/internal/core/domain"
)

// ErrUnauthorized is returned for 401 responses; the session must be renewed.
var ErrUnauthorized = errors.New("please sign in again")

// APIError carries the server's user-facing message.
type APIError struct {
	Status  int
	Message string
	State   domain.AuthState
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return http.StatusText(e.Status)
	}
	return e.Message
}

func (e *APIError) Unwrap() error {
	if e.Status == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

type Account struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Account   Account   `json:"account"`
}

type Record struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Quantity  int       `json:"quantity"`
	Price     string    `json:"price"`
	Photo     string    `json:"photo,omitempty"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ToDomain converts the wire form; an unparsable price becomes zero.
func (r Record) ToDomain() domain.InventoryRecord {
	price, err := decimal.NewFromString(r.Price)
	if err != nil {
		price = decimal.Zero
	}
	return domain.InventoryRecord{
		ID:        r.ID,
		Name:      r.Name,
		Quantity:  r.Quantity,
		Price:     price,
		Photo:     r.Photo,
		Version:   r.Version,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

type envelope struct {
	Success bool             `json:"success"`
	Message string           `json:"message"`
	State   domain.AuthState `json:"state"`
	Data    json.RawMessage  `json:"data"`
}

type Client struct {
	baseURL string
	http    *http.Client
	// stream shares http's transport but has no overall timeout.
	stream *http.Client

	mu    sync.RWMutex
	token string
}

func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	stream := *httpClient
	stream.Timeout = 0
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient, stream: &stream}
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) Register(ctx context.Context, username, email, password string) (Account, error) {
	var account Account
	err := c.call(ctx, http.MethodPost, "/api/auth/register", map[string]string{
		"username": username,
		"email":    email,
		"password": password,
	}, &account)
	return account, err
}

// SignIn authenticates and keeps the session token for later calls.
func (c *Client) SignIn(ctx context.Context, username, password string) (Session, error) {
	var session Session
	err := c.call(ctx, http.MethodPost, "/api/auth/sign-in", map[string]string{
		"username": username,
		"password": password,
	}, &session)
	if err != nil {
		return Session{}, err
	}
	c.SetToken(session.Token)
	return session, nil
}

func (c *Client) SignOut(ctx context.Context) error {
	if err := c.call(ctx, http.MethodPost, "/api/auth/sign-out", nil, nil); err != nil {
		return err
	}
	c.SetToken("")
	return nil
}

func (c *Client) RequestPasswordReset(ctx context.Context, email string) error {
	return c.call(ctx, http.MethodPost, "/api/auth/password-reset", map[string]string{"email": email}, nil)
}

// ConfirmPasswordReset sets a new password using the token from the reset email.
func (c *Client) ConfirmPasswordReset(ctx context.Context, token, password string) error {
	return c.call(ctx, http.MethodPost, "/api/auth/password-reset/confirm", map[string]string{
		"token":    token,
		"password": password,
	}, nil)
}

func (c *Client) ListRecords(ctx context.Context, q domain.ListQuery) ([]Record, error) {
	v := url.Values{}
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	if q.SortBy != "" {
		v.Set("sort", string(q.SortBy))
	}
	if q.Order != "" {
		v.Set("order", string(q.Order))
	}
	path := "/api/inventory"
	if len(v) > 0 {
		path += "?" + v.Encode()
	}

	var records []Record
	if err := c.call(ctx, http.MethodGet, path, nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (c *Client) GetRecord(ctx context.Context, id string) (Record, error) {
	var record Record
	err := c.call(ctx, http.MethodGet, "/api/inventory/"+url.PathEscape(id), nil, &record)
	return record, err
}

// CreateRecord uploads a new item. photo may be nil. A non-empty
// idempotencyKey makes retries of the same submission safe.
func (c *Client) CreateRecord(ctx context.Context, form domain.RecordForm, photo *domain.PhotoUpload, idempotencyKey string) (Record, error) {
	var record Record
	err := c.sendForm(ctx, http.MethodPost, "/api/inventory", form, photo, 0, idempotencyKey, &record)
	return record, err
}

// UpdateRecord edits an item. version is the one the edit started from; the
// server answers 409 if someone saved in between. Zero skips the check.
func (c *Client) UpdateRecord(ctx context.Context, id string, form domain.RecordForm, photo *domain.PhotoUpload, version int) (Record, error) {
	var record Record
	err := c.sendForm(ctx, http.MethodPut, "/api/inventory/"+url.PathEscape(id), form, photo, version, "", &record)
	return record, err
}

func (c *Client) DeleteRecord(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodDelete, "/api/inventory/"+url.PathEscape(id), nil, nil)
}

// DownloadReport asks the server for a PDF report and saves it in dir under
// the name the server chose. It returns the written path.
func (c *Client) DownloadReport(ctx context.Context, dir string) (string, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/api/report/pdf", "", nil)
	if err != nil {
		return "", err
	}
	resp, err := c.send(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", decodeError(resp)
	}

	name := fmt.Sprintf("EasyInventory_%d.pdf", time.Now().UnixMilli())
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		name = filepath.Base(params["filename"])
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create report file: %w", err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return "", fmt.Errorf("write report file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("write report file: %w", err)
	}
	return path, nil
}

// Subscribe opens the change stream for the signed-in account. Events arrive
// on the returned channel until ctx is cancelled or the server ends the
// stream, and the channel is then closed.
func (c *Client) Subscribe(ctx context.Context) (<-chan domain.InventoryEvent, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/inventory/stream", "", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.stream.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}

	events := make(chan domain.InventoryEvent)
	go func() {
		defer close(events)
		defer resp.Body.Close()
		readEvents(ctx, resp.Body, events)
	}()
	return events, nil
}

// readEvents parses a text/event-stream body. Comment lines are keep-alives.
func readEvents(ctx context.Context, r io.Reader, out chan<- domain.InventoryEvent) {
	scanner := bufio.NewScanner(r)
	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if data.Len() == 0 {
				continue
			}
			var event domain.InventoryEvent
			err := json.Unmarshal([]byte(data.String()), &event)
			data.Reset()
			if err != nil {
				continue
			}
			select {
			case out <- event:
			case <-ctx.Done():
				return
			}
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
}

// LoadPhoto reads an image from disk for CreateRecord or UpdateRecord.
func LoadPhoto(path string) (*domain.PhotoUpload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read photo: %w", err)
	}
	return &domain.PhotoUpload{
		Filename:    filepath.Base(path),
		ContentType: http.DetectContentType(data),
		Data:        data,
	}, nil
}

// sendForm posts the record fields as multipart/form-data, the encoding the
// server needs for the optional photo part.
func (c *Client) sendForm(ctx context.Context, method, path string, form domain.RecordForm, photo *domain.PhotoUpload, version int, idempotencyKey string, out any) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fields := [][2]string{{"name", form.Name}, {"quantity", form.Quantity}, {"price", form.Price}}
	if version > 0 {
		fields = append(fields, [2]string{"version", strconv.Itoa(version)})
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return fmt.Errorf("encode form: %w", err)
		}
	}
	if photo != nil {
		part, err := mw.CreateFormFile("photo", photo.Filename)
		if err != nil {
			return fmt.Errorf("encode photo: %w", err)
		}
		if _, err := part.Write(photo.Data); err != nil {
			return fmt.Errorf("encode photo: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("encode form: %w", err)
	}

	req, err := c.newRequest(ctx, method, path, mw.FormDataContentType(), &buf)
	if err != nil {
		return err
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	resp, err := c.send(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeEnvelope(resp, out)
}

// call sends payload as JSON and decodes the envelope's data into out.
func (c *Client) call(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	contentType := ""
	if body != nil {
		contentType = "application/json"
	}
	req, err := c.newRequest(ctx, method, path, contentType, body)
	if err != nil {
		return err
	}
	resp, err := c.send(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeEnvelope(resp, out)
}

// decodeEnvelope turns error statuses into *APIError and unpacks data into out.
func decodeEnvelope(resp *http.Response, out any) error {
	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path, contentType string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) send(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	return resp, nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var env envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&env); err == nil {
		apiErr.Message = env.Message
		apiErr.State = env.State
	}
	return apiErr
}
