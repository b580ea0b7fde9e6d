package publisher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"automagick_post_producer/failure"
	"automagick_post_producer/logger"
	"automagick_post_producer/pipeline"
)

const (
	frontMatterDelim = "---"
	mediaDir         = "media"
)

// FrontMatter is the YAML header of a stored item.
type FrontMatter struct {
	ID            string    `yaml:"id"`
	Title         string    `yaml:"title"`
	Status        string    `yaml:"status"`
	Type          string    `yaml:"type"`
	Created       time.Time `yaml:"created"`
	FeaturedImage string    `yaml:"featured_image,omitempty"`
}

// Files stores items as markdown files with front matter under a directory,
// one file per item, and keeps featured images in its media/ subdirectory.
type Files struct {
	*Downloader
	dir       string
	converter *md.Converter
	log       logger.Logger
	now       func() time.Time
	newID     func() string
}

func NewFiles(dir string, log logger.Logger) (*Files, error) {
	if dir == "" {
		return nil, errors.New("repository dir is required")
	}
	if err := os.MkdirAll(filepath.Join(dir, mediaDir), 0o755); err != nil {
		return nil, fmt.Errorf("creating repository directory: %w", err)
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Files{
		Downloader: NewDownloader(nil, filepath.Join(dir, ".scratch")),
		dir:        dir,
		converter:  md.NewConverter("", true, nil),
		log:        log,
		now:        time.Now,
		newID:      uuid.NewString,
	}, nil
}

func (f *Files) itemPath(id string) string {
	return filepath.Join(f.dir, id+".md")
}

// CreateItem converts the HTML body to markdown and writes a new file.
func (f *Files) CreateItem(_ context.Context, item pipeline.Item) (string, error) {
	body, err := f.converter.ConvertString(item.Body)
	if err != nil {
		return "", &failure.PublishError{Reason: "converting body to markdown: " + err.Error(), Err: err}
	}
	fm := FrontMatter{
		ID:      f.newID(),
		Title:   item.Title,
		Status:  item.Status,
		Type:    item.Type,
		Created: f.now().UTC().Truncate(time.Second),
	}
	if err := writeItem(f.itemPath(fm.ID), fm, body); err != nil {
		return "", &failure.PublishError{Reason: err.Error(), Err: err}
	}
	f.log.Info("item written", logger.String("item_id", fm.ID), logger.String("path", f.itemPath(fm.ID)))
	return fm.ID, nil
}

// UploadAndAttach moves the image into media/ and records it in the item's front matter.
func (f *Files) UploadAndAttach(_ context.Context, itemID, handle string) error {
	defer f.Release(handle)

	name := itemID + "-" + filepath.Base(handle)
	if err := copyFile(handle, filepath.Join(f.dir, mediaDir, name)); err != nil {
		return failure.Media(failure.StepUpload, "", err)
	}

	path := f.itemPath(itemID)
	fm, body, err := readItem(path)
	if err != nil {
		return failure.Media(failure.StepAttach, "", err)
	}
	fm.FeaturedImage = filepath.ToSlash(filepath.Join(mediaDir, name))
	if err := writeItem(path, fm, body); err != nil {
		return failure.Media(failure.StepAttach, "", err)
	}
	return nil
}

// ReadItem loads a stored item.
func (f *Files) ReadItem(id string) (FrontMatter, string, error) {
	return readItem(f.itemPath(id))
}

func writeItem(path string, fm FrontMatter, body string) error {
	header, err := yaml.Marshal(fm)
	if err != nil {
		return fmt.Errorf("encoding front matter: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString(frontMatterDelim + "\n")
	buf.Write(header)
	buf.WriteString(frontMatterDelim + "\n\n")
	buf.WriteString(strings.TrimSpace(body))
	buf.WriteString("\n")

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func readItem(path string) (FrontMatter, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return FrontMatter{}, "", err
	}
	text := string(data)
	if !strings.HasPrefix(text, frontMatterDelim+"\n") {
		return FrontMatter{}, "", fmt.Errorf("%s: missing front matter", filepath.Base(path))
	}
	header, body, ok := strings.Cut(text[len(frontMatterDelim)+1:], "\n"+frontMatterDelim+"\n")
	if !ok {
		return FrontMatter{}, "", fmt.Errorf("%s: unterminated front matter", filepath.Base(path))
	}
	var fm FrontMatter
	if err := yaml.Unmarshal([]byte(header), &fm); err != nil {
		return FrontMatter{}, "", fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return fm, strings.TrimSpace(body), nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
