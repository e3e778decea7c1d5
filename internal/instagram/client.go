// Package instagram is a one-shot Instagram Graph API publisher. It shares
// no state with the sync core.
package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

type Logger interface {
	Printf(format string, args ...any)
}

// GraphError is the error object embedded in Graph API responses.
type GraphError struct {
	StatusCode int
	Type       string
	Code       int
	Message    string
}

func (e *GraphError) Error() string {
	return fmt.Sprintf("instagram api %d %s (code %d): %s", e.StatusCode, e.Type, e.Code, e.Message)
}

type Options struct {
	AccessToken string
	AccountID   string
	APIVersion  string
	BaseURL     string
	HTTPClient  *http.Client

	// PublishDelay is the pause between container creation and publish for
	// plain images, which have no status to poll.
	PublishDelay       time.Duration
	StatusPollInterval time.Duration
	StatusTimeout      time.Duration

	Logger Logger
}

type Client struct {
	accessToken        string
	accountID          string
	baseURL            string
	httpClient         *http.Client
	publishDelay       time.Duration
	statusPollInterval time.Duration
	statusTimeout      time.Duration
	logger             Logger
}

func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.AccessToken) == "" {
		return nil, fmt.Errorf("access token is required")
	}
	if strings.TrimSpace(opts.AccountID) == "" {
		return nil, fmt.Errorf("account id is required")
	}
	apiVersion := strings.TrimSpace(opts.APIVersion)
	if apiVersion == "" {
		apiVersion = "v24.0"
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://graph.facebook.com"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	publishDelay := opts.PublishDelay
	if publishDelay <= 0 {
		publishDelay = 5 * time.Second
	}
	pollInterval := opts.StatusPollInterval
	if pollInterval <= 0 {
		pollInterval = 10 * time.Second
	}
	statusTimeout := opts.StatusTimeout
	if statusTimeout <= 0 {
		statusTimeout = 5 * time.Minute
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Client{
		accessToken:        strings.TrimSpace(opts.AccessToken),
		accountID:          strings.TrimSpace(opts.AccountID),
		baseURL:            baseURL + "/" + apiVersion,
		httpClient:         httpClient,
		publishDelay:       publishDelay,
		statusPollInterval: pollInterval,
		statusTimeout:      statusTimeout,
		logger:             logger,
	}, nil
}

type AccountInfo struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	Name           string `json:"name"`
	FollowersCount int    `json:"followers_count"`
	MediaCount     int    `json:"media_count"`
}

func (c *Client) AccountInfo(ctx context.Context) (AccountInfo, error) {
	var out AccountInfo
	err := c.request(ctx, http.MethodGet, c.accountID, url.Values{
		"fields": {"id,username,name,profile_picture_url,followers_count,media_count"},
	}, &out)
	return out, err
}

// ContainerRequest describes one media container. Exactly one of ImageURL
// and VideoURL must be set.
type ContainerRequest struct {
	ImageURL       string
	VideoURL       string
	Caption        string
	MediaType      string
	IsCarouselItem bool
	ShareToFeed    bool
	Children       []string
}

func (c *Client) CreateMediaContainer(ctx context.Context, req ContainerRequest) (string, error) {
	params := url.Values{}
	switch {
	case len(req.Children) > 0:
		params.Set("media_type", "CAROUSEL")
		params.Set("children", strings.Join(req.Children, ","))
		params.Set("caption", req.Caption)
	case req.VideoURL != "":
		params.Set("video_url", req.VideoURL)
		mediaType := req.MediaType
		if mediaType == "" {
			mediaType = "REELS"
		}
		params.Set("media_type", mediaType)
		params.Set("caption", req.Caption)
	case req.ImageURL != "":
		params.Set("image_url", req.ImageURL)
		if req.MediaType != "" {
			params.Set("media_type", req.MediaType)
		}
		params.Set("caption", req.Caption)
	default:
		return "", fmt.Errorf("image_url or video_url is required")
	}
	if req.IsCarouselItem {
		params.Set("is_carousel_item", "true")
		// Carousel items cannot carry their own caption.
		params.Del("caption")
	}
	if req.ShareToFeed {
		params.Set("share_to_feed", "true")
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := c.request(ctx, http.MethodPost, c.accountID+"/media", params, &out); err != nil {
		return "", err
	}
	c.logger.Printf("instagram: created media container %s", out.ID)
	return out.ID, nil
}

type MediaStatus struct {
	StatusCode string `json:"status_code"`
	Status     string `json:"status"`
}

func (c *Client) MediaStatus(ctx context.Context, containerID string) (MediaStatus, error) {
	var out MediaStatus
	err := c.request(ctx, http.MethodGet, containerID, url.Values{
		"fields": {"status_code,status"},
	}, &out)
	return out, err
}

// WaitForMediaReady polls a container until processing finishes. Images may
// report no status code at all; that counts as ready.
func (c *Client) WaitForMediaReady(ctx context.Context, containerID string) error {
	deadline := time.Now().Add(c.statusTimeout)
	for {
		status, err := c.MediaStatus(ctx, containerID)
		if err != nil {
			return err
		}
		switch status.StatusCode {
		case "FINISHED", "":
			return nil
		case "ERROR":
			return fmt.Errorf("media processing failed: %s", status.Status)
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timed out waiting for media %s to process", containerID)
		}
		if err := sleepContext(ctx, c.statusPollInterval); err != nil {
			return err
		}
	}
}

func (c *Client) PublishMedia(ctx context.Context, containerID string) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	err := c.request(ctx, http.MethodPost, c.accountID+"/media_publish", url.Values{
		"creation_id": {containerID},
	}, &out)
	if err != nil {
		return "", err
	}
	c.logger.Printf("instagram: published post %s", out.ID)
	return out.ID, nil
}

// PostImage creates and publishes a single image post. The image URL must
// be publicly reachable.
func (c *Client) PostImage(ctx context.Context, imageURL, caption string) (string, error) {
	containerID, err := c.CreateMediaContainer(ctx, ContainerRequest{ImageURL: imageURL, Caption: caption})
	if err != nil {
		return "", err
	}
	if err := sleepContext(ctx, c.publishDelay); err != nil {
		return "", err
	}
	return c.PublishMedia(ctx, containerID)
}

// PostReel creates a reel container, waits for video processing, then
// publishes.
func (c *Client) PostReel(ctx context.Context, videoURL, caption string, shareToFeed bool) (string, error) {
	containerID, err := c.CreateMediaContainer(ctx, ContainerRequest{
		VideoURL:    videoURL,
		Caption:     caption,
		MediaType:   "REELS",
		ShareToFeed: shareToFeed,
	})
	if err != nil {
		return "", err
	}
	if err := c.WaitForMediaReady(ctx, containerID); err != nil {
		return "", err
	}
	return c.PublishMedia(ctx, containerID)
}

// PostCarousel publishes 2-10 images as one carousel post.
func (c *Client) PostCarousel(ctx context.Context, imageURLs []string, caption string) (string, error) {
	if len(imageURLs) < 2 || len(imageURLs) > 10 {
		return "", fmt.Errorf("carousel needs 2-10 images, got %d", len(imageURLs))
	}
	children := make([]string, 0, len(imageURLs))
	for _, u := range imageURLs {
		containerID, err := c.CreateMediaContainer(ctx, ContainerRequest{ImageURL: u, IsCarouselItem: true})
		if err != nil {
			return "", err
		}
		children = append(children, containerID)
	}
	carouselID, err := c.CreateMediaContainer(ctx, ContainerRequest{Children: children, Caption: caption})
	if err != nil {
		return "", err
	}
	if err := sleepContext(ctx, c.publishDelay); err != nil {
		return "", err
	}
	return c.PublishMedia(ctx, carouselID)
}

type Media struct {
	ID        string `json:"id"`
	Caption   string `json:"caption"`
	MediaType string `json:"media_type"`
	Timestamp string `json:"timestamp"`
	Permalink string `json:"permalink"`
}

func (c *Client) RecentMedia(ctx context.Context, limit int) ([]Media, error) {
	if limit <= 0 {
		limit = 10
	}
	var out struct {
		Data []Media `json:"data"`
	}
	err := c.request(ctx, http.MethodGet, c.accountID+"/media", url.Values{
		"fields": {"id,caption,media_type,timestamp,permalink"},
		"limit":  {strconv.Itoa(limit)},
	}, &out)
	return out.Data, err
}

func (c *Client) request(ctx context.Context, method, endpoint string, params url.Values, out any) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("access_token", c.accessToken)
	requestURL := c.baseURL + "/" + endpoint + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, method, requestURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	payload, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return readErr
	}

	var envelope struct {
		Error *struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    int    `json:"code"`
		} `json:"error"`
	}
	if json.Unmarshal(payload, &envelope) == nil && envelope.Error != nil {
		return &GraphError{
			StatusCode: resp.StatusCode,
			Type:       envelope.Error.Type,
			Code:       envelope.Error.Code,
			Message:    envelope.Error.Message,
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &GraphError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(payload))}
	}
	if out == nil || len(payload) == 0 {
		return nil
	}
	return json.Unmarshal(payload, out)
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
