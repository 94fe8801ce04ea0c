// Package instagram is a minimal client for Instagram's private mobile API:
// enough to log in, persist the session and download a post's media.
package instagram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/iconidentify/reelrelay/internal/domain"
)

const (
	DefaultBaseURL   = "https://i.instagram.com/api/v1"
	DefaultUserAgent = "Instagram 269.0.0.18.75 Android (26/8.0.0; 480dpi; 1080x1920; OnePlus; 6T Dev; devitron; qcom; en_US; 314665256)"
	appID            = "567067343352427"
)

// Media types reported by the media info endpoint.
const (
	MediaTypePhoto = 1
	MediaTypeVideo = 2
	MediaTypeAlbum = 8
)

// Config holds client configuration.
type Config struct {
	BaseURL   string
	UserAgent string
	// MinDelay is the minimum spacing between API calls.
	MinDelay time.Duration
	Timeout  time.Duration
}

// Settings is the persisted session: device identity plus auth material.
type Settings struct {
	DeviceID      string            `json:"device_id"`
	UUID          string            `json:"uuid"`
	PhoneID       string            `json:"phone_id"`
	UserID        string            `json:"user_id,omitempty"`
	Username      string            `json:"username,omitempty"`
	Authorization string            `json:"authorization,omitempty"`
	MID           string            `json:"mid,omitempty"`
	Cookies       map[string]string `json:"cookies,omitempty"`
	UserAgent     string            `json:"user_agent,omitempty"`
	LastLogin     time.Time         `json:"last_login,omitempty"`
}

// APIError is a non-success answer from the private API.
type APIError struct {
	StatusCode int
	Message    string
	ErrorType  string
}

func (e *APIError) Error() string {
	msg := e.Message
	if e.ErrorType != "" {
		msg = e.ErrorType + ": " + msg
	}
	return fmt.Sprintf("instagram API error (status %d): %s", e.StatusCode, msg)
}

// Client talks to the private API. It is safe for concurrent use but callers
// are expected to serialise logins.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger

	mu       sync.Mutex
	settings Settings
}

// NewClient creates a client with a fresh device identity.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	limit := rate.Inf
	if cfg.MinDelay > 0 {
		limit = rate.Every(cfg.MinDelay)
	}

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logger,
		settings: Settings{
			DeviceID:  "android-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16],
			UUID:      uuid.NewString(),
			PhoneID:   uuid.NewString(),
			Cookies:   map[string]string{},
			UserAgent: cfg.UserAgent,
		},
	}
}

// LoadSettings replaces the session with a previously dumped one.
func (c *Client) LoadSettings(data []byte) error {
	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("decode settings: %w", err)
	}
	if s.UUID == "" || s.DeviceID == "" {
		return errors.New("settings missing device identity")
	}
	if s.Cookies == nil {
		s.Cookies = map[string]string{}
	}
	if s.UserAgent == "" {
		s.UserAgent = c.cfg.UserAgent
	}

	c.mu.Lock()
	c.settings = s
	c.mu.Unlock()
	return nil
}

// DumpSettings serialises the session for a store.
func (c *Client) DumpSettings() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return json.MarshalIndent(c.settings, "", "  ")
}

// Authenticated reports whether the client holds auth material.
func (c *Client) Authenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings.Authorization != "" || c.settings.Cookies["sessionid"] != ""
}

type loginResponse struct {
	Status       string `json:"status"`
	Message      string `json:"message"`
	ErrorType    string `json:"error_type"`
	LoggedInUser struct {
		PK       json.Number `json:"pk"`
		Username string      `json:"username"`
	} `json:"logged_in_user"`
}

// Login performs a password login and stores the resulting auth material.
func (c *Client) Login(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return domain.ErrMissingCredentials
	}

	c.mu.Lock()
	payload := map[string]string{
		"username":            username,
		"enc_password":        fmt.Sprintf("#PWD_INSTAGRAM:0:%d:%s", time.Now().Unix(), password),
		"device_id":           c.settings.DeviceID,
		"guid":                c.settings.UUID,
		"phone_id":            c.settings.PhoneID,
		"login_attempt_count": "0",
	}
	c.mu.Unlock()

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode login: %w", err)
	}
	form := url.Values{}
	form.Set("signed_body", "SIGNATURE."+string(body))

	var resp loginResponse
	if err := c.call(ctx, http.MethodPost, "/accounts/login/", form, &resp); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if resp.Status != "ok" || resp.LoggedInUser.PK == "" {
		return &APIError{StatusCode: http.StatusOK, Message: resp.Message, ErrorType: resp.ErrorType}
	}

	c.mu.Lock()
	c.settings.UserID = resp.LoggedInUser.PK.String()
	c.settings.Username = resp.LoggedInUser.Username
	c.settings.LastLogin = time.Now().UTC()
	c.mu.Unlock()

	c.logger.Info("instagram login succeeded", "username", resp.LoggedInUser.Username)
	return nil
}

// Validate checks that the stored session is still accepted.
func (c *Client) Validate(ctx context.Context) error {
	if !c.Authenticated() {
		return domain.ErrAuthRequired
	}
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.call(ctx, http.MethodGet, "/accounts/current_user/?edit=true", nil, &resp); err != nil {
		return err
	}
	return nil
}

// ImageCandidate is one rendition of a photo.
type ImageCandidate struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// VideoVersion is one rendition of a video.
type VideoVersion struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Type   int    `json:"type"`
}

// Media is a post as returned by the media info endpoint.
type Media struct {
	PK             json.Number `json:"pk"`
	Code           string      `json:"code"`
	MediaType      int         `json:"media_type"`
	ProductType    string      `json:"product_type"`
	ImageVersions2 struct {
		Candidates []ImageCandidate `json:"candidates"`
	} `json:"image_versions2"`
	VideoVersions []VideoVersion `json:"video_versions"`
	CarouselMedia []Media        `json:"carousel_media"`
}

// BestImage returns the widest image rendition.
func (m *Media) BestImage() (ImageCandidate, bool) {
	var best ImageCandidate
	for _, c := range m.ImageVersions2.Candidates {
		if c.Width*c.Height > best.Width*best.Height || best.URL == "" {
			best = c
		}
	}
	return best, best.URL != ""
}

// BestVideo returns the largest video rendition.
func (m *Media) BestVideo() (VideoVersion, bool) {
	var best VideoVersion
	for _, v := range m.VideoVersions {
		if v.Width*v.Height > best.Width*best.Height || best.URL == "" {
			best = v
		}
	}
	return best, best.URL != ""
}

// HasVideo reports whether the post, or any album item, carries a video.
func (m *Media) HasVideo() bool {
	if m.MediaType == MediaTypeVideo && len(m.VideoVersions) > 0 {
		return true
	}
	for i := range m.CarouselMedia {
		if m.CarouselMedia[i].HasVideo() {
			return true
		}
	}
	return false
}

// MediaInfo fetches a post by primary key.
func (c *Client) MediaInfo(ctx context.Context, pk string) (*Media, error) {
	var resp struct {
		Items []Media `json:"items"`
	}
	if err := c.call(ctx, http.MethodGet, "/media/"+url.PathEscape(pk)+"/info/", nil, &resp); err != nil {
		return nil, fmt.Errorf("media info %s: %w", pk, err)
	}
	if len(resp.Items) == 0 {
		return nil, fmt.Errorf("media info %s: %w", pk, domain.ErrNoMediaFound)
	}
	return &resp.Items[0], nil
}

// MediaHeaders returns the headers CDN requests should carry.
func (c *Client) MediaHeaders() http.Header {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := http.Header{}
	h.Set("User-Agent", c.settings.UserAgent)
	return h
}

func (c *Client) call(ctx context.Context, method, path string, form url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	c.absorb(resp)

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return classify(resp.StatusCode, data)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) applyHeaders(req *http.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()

	req.Header.Set("User-Agent", c.settings.UserAgent)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "en-US")
	req.Header.Set("X-IG-App-ID", appID)
	req.Header.Set("X-IG-Device-ID", c.settings.UUID)
	req.Header.Set("X-IG-Android-ID", c.settings.DeviceID)
	if c.settings.Authorization != "" {
		req.Header.Set("Authorization", c.settings.Authorization)
	}
	if c.settings.MID != "" {
		req.Header.Set("X-MID", c.settings.MID)
	}
	if c.settings.UserID != "" {
		req.Header.Set("IG-U-DS-User-ID", c.settings.UserID)
	}
	for name, value := range c.settings.Cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}
}

// absorb records auth material the server hands back.
func (c *Client) absorb(resp *http.Response) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if auth := resp.Header.Get("ig-set-authorization"); auth != "" && !strings.HasSuffix(auth, ":") {
		c.settings.Authorization = auth
	}
	if mid := resp.Header.Get("ig-set-x-mid"); mid != "" {
		c.settings.MID = mid
	}
	for _, ck := range resp.Cookies() {
		if ck.Value == "" || ck.MaxAge < 0 {
			delete(c.settings.Cookies, ck.Name)
			continue
		}
		c.settings.Cookies[ck.Name] = ck.Value
	}
}

func classify(status int, data []byte) error {
	var body struct {
		Message   string `json:"message"`
		ErrorType string `json:"error_type"`
	}
	_ = json.Unmarshal(data, &body)

	apiErr := &APIError{StatusCode: status, Message: body.Message, ErrorType: body.ErrorType}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}

	switch {
	case status == http.StatusUnauthorized,
		body.Message == "login_required",
		body.ErrorType == "login_required":
		return fmt.Errorf("%w: %v", domain.ErrAuthRequired, apiErr)
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %v", domain.ErrRateLimited, apiErr)
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %v", domain.ErrNoMediaFound, apiErr)
	}
	return apiErr
}

const shortcodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

// MediaPKFromURL extracts the shortcode from a post URL and decodes it to the
// numeric media primary key.
func MediaPKFromURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i < len(parts)-1; i++ {
		switch parts[i] {
		case "p", "reel", "reels", "tv":
			return MediaPKFromCode(parts[i+1])
		}
	}
	return "", fmt.Errorf("no shortcode in %q", rawURL)
}

// MediaPKFromCode decodes a shortcode. Private-post shortcodes carry a suffix
// after the first 11 characters which is not part of the key.
func MediaPKFromCode(code string) (string, error) {
	if len(code) > 11 {
		code = code[:11]
	}
	if code == "" {
		return "", errors.New("empty shortcode")
	}

	var pk uint64
	for _, r := range code {
		idx := strings.IndexRune(shortcodeAlphabet, r)
		if idx < 0 {
			return "", fmt.Errorf("invalid shortcode character %q", r)
		}
		if pk > (^uint64(0))>>6 {
			return "", fmt.Errorf("shortcode %q overflows", code)
		}
		pk = pk<<6 | uint64(idx)
	}
	return strconv.FormatUint(pk, 10), nil
}
