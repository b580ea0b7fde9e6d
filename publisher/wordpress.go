package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"automagick_post_producer/failure"
	"automagick_post_producer/logger"
	"automagick_post_producer/pipeline"
)

const restPrefix = "/wp-json/wp/v2/"

// WordPressConfig points at a site and an application password.
type WordPressConfig struct {
	URL         string `mapstructure:"url"`
	Username    string `mapstructure:"username"`
	AppPassword string `mapstructure:"app_password"`
}

// WordPress publishes items through the REST API and sets their featured
// image from a downloaded file.
type WordPress struct {
	*Downloader
	cfg    WordPressConfig
	client *http.Client
	log    logger.Logger

	mu     sync.Mutex
	routes map[string]string // item id -> collection it was created in
}

type restError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type restObject struct {
	ID json.Number `json:"id"`
}

type itemPayload struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Status  string `json:"status"`
}

type featuredPayload struct {
	FeaturedMedia int64 `json:"featured_media"`
}

func NewWordPress(cfg WordPressConfig, client *http.Client, scratchDir string, log logger.Logger) (*WordPress, error) {
	if cfg.URL == "" {
		return nil, errors.New("wordpress url is required")
	}
	if cfg.Username == "" || cfg.AppPassword == "" {
		return nil, errors.New("wordpress username and app_password are required")
	}
	if client == nil {
		client = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	if log == nil {
		log = logger.NewNop()
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	return &WordPress{
		Downloader: NewDownloader(client, scratchDir),
		cfg:        cfg,
		client:     client,
		log:        log,
		routes:     make(map[string]string),
	}, nil
}

// collection maps a content type to its REST collection.
func collection(contentType string) string {
	switch contentType {
	case "", "post":
		return "posts"
	case "page":
		return "pages"
	default:
		return contentType
	}
}

// CreateItem creates the item and returns its id.
func (w *WordPress) CreateItem(ctx context.Context, item pipeline.Item) (string, error) {
	route := collection(item.Type)
	body, err := json.Marshal(itemPayload{Title: item.Title, Content: item.Body, Status: item.Status})
	if err != nil {
		return "", &failure.PublishError{Reason: err.Error(), Err: err}
	}

	var obj restObject
	if err := w.do(ctx, http.MethodPost, restPrefix+route, "application/json", bytes.NewReader(body), &obj); err != nil {
		return "", &failure.PublishError{Reason: err.Error(), Err: err}
	}
	id := obj.ID.String()
	if id == "" || id == "0" {
		return "", &failure.PublishError{Reason: "response carried no item id"}
	}

	w.mu.Lock()
	w.routes[id] = route
	w.mu.Unlock()
	w.log.Info("wordpress item created", logger.String("item_id", id), logger.String("collection", route))
	return id, nil
}

// UploadAndAttach uploads the file behind handle to the media library and
// makes it the featured image of itemID. The scratch copy is removed.
func (w *WordPress) UploadAndAttach(ctx context.Context, itemID, handle string) error {
	defer w.Release(handle)

	mediaID, err := w.uploadMedia(ctx, handle)
	if err != nil {
		return failure.Media(failure.StepUpload, "", err)
	}

	w.mu.Lock()
	route, ok := w.routes[itemID]
	w.mu.Unlock()
	if !ok {
		route = "posts"
	}
	body, err := json.Marshal(featuredPayload{FeaturedMedia: mediaID})
	if err != nil {
		return failure.Media(failure.StepAttach, "", err)
	}
	if err := w.do(ctx, http.MethodPost, restPrefix+route+"/"+itemID, "application/json", bytes.NewReader(body), nil); err != nil {
		return failure.Media(failure.StepAttach, "", err)
	}
	w.log.Info("featured image set", logger.String("item_id", itemID), logger.Int64("media_id", mediaID))
	return nil
}

func (w *WordPress) uploadMedia(ctx context.Context, handle string) (int64, error) {
	file, err := os.Open(handle)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filepath.Base(handle))
	if err != nil {
		return 0, err
	}
	if _, err := io.Copy(part, file); err != nil {
		return 0, err
	}
	if err := writer.Close(); err != nil {
		return 0, err
	}

	var obj restObject
	if err := w.do(ctx, http.MethodPost, restPrefix+"media", writer.FormDataContentType(), &body, &obj); err != nil {
		return 0, err
	}
	id, err := obj.ID.Int64()
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("media upload returned no id")
	}
	return id, nil
}

// do sends an authenticated request and decodes a JSON reply into out.
// Non-2xx replies become errors carrying the site's message.
func (w *WordPress) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, w.cfg.URL+path, body)
	if err != nil {
		return err
	}
	req.SetBasicAuth(w.cfg.Username, w.cfg.AppPassword)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var re restError
		if json.Unmarshal(data, &re) == nil && re.Message != "" {
			return errors.New(re.Message)
		}
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", strconv.Quote(path), err)
	}
	return nil
}
