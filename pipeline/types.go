// Package pipeline runs one generation: topic, article, title, image and
// publish, in that order, separating failures that abort the run from
// failures that only degrade the published item.
package pipeline

import (
	"context"
	"fmt"
	"strings"
)

// Stage names a step of a run.
type Stage string

const (
	StageTopic       Stage = "TOPIC"
	StageContent     Stage = "CONTENT"
	StageTitle       Stage = "TITLE"
	StageImagePrompt Stage = "IMAGE_PROMPT"
	StageImage       Stage = "IMAGE"
	StagePublish     Stage = "PUBLISH"
	StageAttach      Stage = "ATTACH"
	StageDone        Stage = "DONE"
	StageFailed      Stage = "FAILED"
)

// Config is read once at the start of a run and never written during it.
// Frequency and TimeOfDay only describe the schedule that started the run.
type Config struct {
	Credential  string
	TopicPrompt string
	ImageStyle  string
	ContentType string
	Frequency   string
	TimeOfDay   string
}

// ErrorLog collects human-readable failures of a single run.
type ErrorLog []string

// Append returns a log with msg added; the receiver is left untouched.
func (l ErrorLog) Append(msg string) ErrorLog {
	out := make(ErrorLog, len(l), len(l)+1)
	copy(out, l)
	return append(out, msg)
}

// Appendf is Append with formatting.
func (l ErrorLog) Appendf(format string, args ...any) ErrorLog {
	return l.Append(fmt.Sprintf(format, args...))
}

func (l ErrorLog) String() string { return strings.Join(l, "\n") }

// Result is the outcome of one run. ItemID is set only when publishing succeeded.
type Result struct {
	Topic         string   `json:"topic,omitempty"`
	Content       string   `json:"content,omitempty"`
	Title         string   `json:"title,omitempty"`
	ImagePrompt   string   `json:"image_prompt,omitempty"`
	ImageURL      string   `json:"image_url,omitempty"`
	ItemID        string   `json:"item_id,omitempty"`
	ImageAttached bool     `json:"image_attached"`
	Stage         Stage    `json:"stage"`
	FailedStage   Stage    `json:"failed_stage,omitempty"`
	Errors        ErrorLog `json:"errors"`
}

// Published reports whether the run produced a content item.
func (r Result) Published() bool { return r.ItemID != "" }

// Degraded reports a published run that logged soft failures.
func (r Result) Degraded() bool { return r.Published() && len(r.Errors) > 0 }

// Outcome is a short label for the run: published, degraded or failed.
func (r Result) Outcome() string {
	switch {
	case !r.Published():
		return "failed"
	case r.Degraded():
		return "degraded"
	default:
		return "published"
	}
}

// Report renders the result the way a manual test run shows it.
func (r Result) Report() string {
	if !r.Published() {
		return "Generation failed:\n" + r.Errors.String()
	}
	var sb strings.Builder
	sb.WriteString("Test generation results:\n")
	sb.WriteString("Text generated: Yes\n")
	sb.WriteString("Image generated: " + yesNo(r.ImageURL != "") + "\n")
	if r.ImageURL != "" {
		sb.WriteString("Image URL: " + r.ImageURL + "\n")
	}
	sb.WriteString("Image posted as featured image: " + yesNo(r.ImageAttached) + "\n")
	sb.WriteString("Post created: Yes\n")
	sb.WriteString("Post ID: " + r.ItemID + "\n")
	sb.WriteString("Image Prompt: " + r.ImagePrompt + "\n")
	if len(r.Errors) > 0 {
		sb.WriteString("\nError Log:\n" + r.Errors.String())
	}
	return sb.String()
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

// Item is what PUBLISH hands to the content repository.
type Item struct {
	Title  string
	Body   string
	Status string
	Type   string
}

// Repository creates content items. Errors should carry the repository's reason.
type Repository interface {
	CreateItem(ctx context.Context, item Item) (string, error)
}

// Media fetches a generated image and sets it as an item's featured image.
// UploadAndAttach reports which sub-step failed through failure.MediaError.
type Media interface {
	Download(ctx context.Context, url string) (string, error)
	UploadAndAttach(ctx context.Context, itemID, handle string) error
}
