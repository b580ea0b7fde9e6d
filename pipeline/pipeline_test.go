package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"automagick_post_producer/failure"
	"automagick_post_producer/generator"
	"automagick_post_producer/logger"
)

// fakeText answers by prompt kind so each stage can be failed on its own.
type fakeText struct {
	fail    map[string]error
	replies map[string]string
	calls   []string
}

func promptKind(prompt string) string {
	switch {
	case strings.HasPrefix(prompt, "Write a detailed"):
		return "content"
	case strings.HasPrefix(prompt, "Based on the following content"):
		return "title"
	case strings.HasPrefix(prompt, "Create an image prompt"):
		return "image_prompt"
	default:
		return "topic"
	}
}

func (f *fakeText) Complete(_ context.Context, prompt string) (string, error) {
	kind := promptKind(prompt)
	f.calls = append(f.calls, kind)
	if err := f.fail[kind]; err != nil {
		return "", err
	}
	if r, ok := f.replies[kind]; ok {
		return r, nil
	}
	switch kind {
	case "content":
		return "```html\n<h2>Tide pools</h2><p>Small worlds at low tide.</p>\n```", nil
	case "title":
		return `"Life in **Tide Pools**"`, nil
	case "image_prompt":
		return "A rocky tide pool with starfish under a pale morning sky", nil
	default:
		return "Tide pools", nil
	}
}

type fakeImage struct {
	url    string
	err    error
	prompt string
}

func (f *fakeImage) Generate(_ context.Context, prompt string) (string, error) {
	f.prompt = prompt
	return f.url, f.err
}

type fakeRepo struct {
	id    string
	err   error
	items []Item
}

func (f *fakeRepo) CreateItem(_ context.Context, item Item) (string, error) {
	f.items = append(f.items, item)
	return f.id, f.err
}

type fakeMedia struct {
	downloadErr error
	uploadErr   error
	downloaded  []string
	attached    map[string]string
}

func (f *fakeMedia) Download(_ context.Context, url string) (string, error) {
	f.downloaded = append(f.downloaded, url)
	if f.downloadErr != nil {
		return "", f.downloadErr
	}
	return "/tmp/image.png", nil
}

func (f *fakeMedia) UploadAndAttach(_ context.Context, itemID, handle string) error {
	if f.uploadErr != nil {
		return f.uploadErr
	}
	if f.attached == nil {
		f.attached = map[string]string{}
	}
	f.attached[itemID] = handle
	return nil
}

type fixture struct {
	text  *fakeText
	image *fakeImage
	repo  *fakeRepo
	media *fakeMedia
	p     *Pipeline
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		text:  &fakeText{fail: map[string]error{}, replies: map[string]string{}},
		image: &fakeImage{url: "https://img.example/pool.png"},
		repo:  &fakeRepo{id: "42"},
		media: &fakeMedia{},
	}
	clients := func(string) (generator.TextGenerator, generator.ImageGenerator, error) {
		return f.text, f.image, nil
	}
	p, err := New(clients, f.repo, f.media, logger.NewNop())
	require.NoError(t, err)
	f.p = p
	return f
}

var cfg = Config{
	Credential:  "sk-test",
	TopicPrompt: "Suggest a topic about the seaside",
	ImageStyle:  "watercolor",
	ContentType: "post",
}

func TestRun_AllStagesSucceed(t *testing.T) {
	f := newFixture(t)
	res := f.p.Run(context.Background(), cfg)

	assert.Equal(t, StageDone, res.Stage)
	assert.Empty(t, res.Errors)
	assert.Equal(t, "42", res.ItemID)
	assert.True(t, res.ImageAttached)
	assert.Equal(t, "Tide pools", res.Topic)
	assert.Equal(t, "<h2>Tide pools</h2><p>Small worlds at low tide.</p>", res.Content)
	assert.Equal(t, "Life in Tide Pools", res.Title)
	assert.Equal(t, "A rocky tide pool with starfish under a pale morning sky, watercolor", res.ImagePrompt)
	assert.Equal(t, res.ImagePrompt, f.image.prompt)
	assert.Equal(t, "published", res.Outcome())

	require.Len(t, f.repo.items, 1)
	assert.Equal(t, Item{Title: "Life in Tide Pools", Body: res.Content, Status: "publish", Type: "post"}, f.repo.items[0])
	assert.Equal(t, "/tmp/image.png", f.media.attached["42"])
	assert.Equal(t, []string{"topic", "content", "title", "image_prompt"}, f.text.calls)
}

func TestRun_MissingCredentialIsHardFailure(t *testing.T) {
	f := newFixture(t)
	c := cfg
	c.Credential = ""
	res := f.p.Run(context.Background(), c)

	assert.Equal(t, StageFailed, res.Stage)
	assert.Equal(t, ErrorLog{"OpenAI API key is not set."}, res.Errors)
	assert.Empty(t, f.text.calls)
}

func TestRun_ClientFactoryErrorIsHardFailure(t *testing.T) {
	repo := &fakeRepo{id: "1"}
	p, err := New(func(string) (generator.TextGenerator, generator.ImageGenerator, error) {
		return nil, nil, errors.New("llm provider foo not supported")
	}, repo, &fakeMedia{}, nil)
	require.NoError(t, err)

	res := p.Run(context.Background(), cfg)
	assert.False(t, res.Published())
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "Invalid OpenAI credential")
	assert.Empty(t, repo.items)
}

func TestRun_NilClientIsHardFailure(t *testing.T) {
	repo := &fakeRepo{id: "1"}
	p, err := New(func(string) (generator.TextGenerator, generator.ImageGenerator, error) {
		return &fakeText{}, nil, nil
	}, repo, &fakeMedia{}, nil)
	require.NoError(t, err)

	res := p.Run(context.Background(), cfg)
	assert.False(t, res.Published())
	assert.Equal(t, StageFailed, res.Stage)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "Invalid OpenAI credential")
	assert.Empty(t, repo.items)
}

func TestRun_HardFailures(t *testing.T) {
	tests := []struct {
		kind    string
		message string
		stage   string
		failed  Stage
	}{
		{"topic", "Failed to generate topic", "topic", StageTopic},
		{"content", "Failed to generate post content", "content", StageContent},
		{"title", "Failed to generate title", "title", StageTitle},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			f := newFixture(t)
			f.text.fail[tt.kind] = &failure.TransportError{Op: "text generation", Err: errors.New("connection reset")}

			res := f.p.Run(context.Background(), cfg)
			assert.Equal(t, StageFailed, res.Stage)
			assert.Equal(t, tt.failed, res.FailedStage)
			assert.Empty(t, res.ItemID)
			require.Len(t, res.Errors, 1)
			assert.True(t, strings.HasPrefix(res.Errors[0], tt.message), res.Errors[0])
			assert.Contains(t, res.Errors[0], "connection reset")
			assert.Empty(t, f.repo.items)
			assert.Equal(t, tt.stage, f.text.calls[len(f.text.calls)-1])
			assert.Equal(t, "failed", res.Outcome())
		})
	}
}

func TestRun_TopicFailureStopsEverything(t *testing.T) {
	f := newFixture(t)
	f.text.fail["topic"] = errors.New("boom")
	res := f.p.Run(context.Background(), cfg)

	assert.Empty(t, res.ItemID)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "topic")
	assert.Equal(t, []string{"topic"}, f.text.calls)
	assert.Empty(t, res.Topic)
	assert.Empty(t, f.image.prompt)
}

func TestRun_EmptyRepliesAreHardFailures(t *testing.T) {
	for _, kind := range []string{"topic", "content", "title"} {
		t.Run(kind, func(t *testing.T) {
			f := newFixture(t)
			f.text.replies[kind] = "   "
			if kind == "title" {
				f.text.replies[kind] = `"**"`
			}
			res := f.p.Run(context.Background(), cfg)
			assert.False(t, res.Published())
			require.Len(t, res.Errors, 1)
			assert.Contains(t, res.Errors[0], "empty response")
		})
	}
}

func TestRun_ImageFailureIsSoft(t *testing.T) {
	f := newFixture(t)
	f.image.err = &failure.ResponseFormatError{Op: "image generation", Detail: "no image url in response"}

	res := f.p.Run(context.Background(), cfg)
	assert.Equal(t, StageDone, res.Stage)
	assert.Equal(t, "42", res.ItemID)
	assert.Empty(t, res.ImageURL)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "Failed to generate image")
	assert.Empty(t, f.media.downloaded)
	assert.Equal(t, "degraded", res.Outcome())
}

func TestRun_ImagePromptFailureSkipsImage(t *testing.T) {
	f := newFixture(t)
	f.text.fail["image_prompt"] = errors.New("rate limited")

	res := f.p.Run(context.Background(), cfg)
	assert.True(t, res.Published())
	assert.Empty(t, res.ImagePrompt)
	assert.Empty(t, f.image.prompt, "image endpoint must not be called")
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "Failed to generate image")
	assert.Contains(t, res.Errors[0], "rate limited")
}

func TestRun_PublishFailureIsHard(t *testing.T) {
	f := newFixture(t)
	f.repo.err = &failure.PublishError{Reason: "Sorry, you are not allowed to create posts as this user."}

	res := f.p.Run(context.Background(), cfg)
	assert.Equal(t, StageFailed, res.Stage)
	assert.Empty(t, res.ItemID)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "Failed to create post: Sorry, you are not allowed to create posts as this user.", res.Errors[0])
	assert.Equal(t, StagePublish, res.FailedStage)
	assert.Empty(t, f.media.downloaded)
}

func TestRun_PublishWithoutIDIsHard(t *testing.T) {
	f := newFixture(t)
	f.repo.id = ""
	res := f.p.Run(context.Background(), cfg)
	assert.False(t, res.Published())
	assert.Contains(t, res.Errors[0], "no item id")
}

func TestRun_AttachFailuresAreSoft(t *testing.T) {
	tests := []struct {
		name        string
		downloadErr error
		uploadErr   error
		want        string
	}{
		{"download", failure.Media(failure.StepDownload, "404 Not Found", nil), nil, "Error downloading image: 404 Not Found"},
		{"upload", nil, failure.Media(failure.StepUpload, "rest_upload_unknown_error", nil), "Error uploading image: rest_upload_unknown_error"},
		{"attach", nil, failure.Media(failure.StepAttach, "invalid featured media", nil), "Error setting featured image for item 42: invalid featured media"},
		{"untyped upload error", nil, errors.New("disk full"), "Error uploading image: disk full"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.media.downloadErr = tt.downloadErr
			f.media.uploadErr = tt.uploadErr

			res := f.p.Run(context.Background(), cfg)
			assert.Equal(t, StageDone, res.Stage)
			assert.Equal(t, "42", res.ItemID)
			assert.NotEmpty(t, res.ImageURL)
			assert.False(t, res.ImageAttached)
			assert.Equal(t, ErrorLog{tt.want}, res.Errors)
		})
	}
}

func TestRun_MarkdownContentIsRendered(t *testing.T) {
	f := newFixture(t)
	f.text.replies["content"] = "## Tide pools\n\nSmall *worlds*."

	res := f.p.Run(context.Background(), cfg)
	require.True(t, res.Published())
	assert.Contains(t, res.Content, "<h2>Tide pools</h2>")
	assert.Contains(t, f.repo.items[0].Body, "<em>worlds</em>")
}

type panickyRepo struct{}

func (panickyRepo) CreateItem(context.Context, Item) (string, error) { panic("nil map") }

func TestRun_PanicBecomesHardFailure(t *testing.T) {
	f := newFixture(t)
	p, err := New(func(string) (generator.TextGenerator, generator.ImageGenerator, error) {
		return f.text, f.image, nil
	}, panickyRepo{}, f.media, nil)
	require.NoError(t, err)

	res := p.Run(context.Background(), cfg)
	assert.Equal(t, StageFailed, res.Stage)
	assert.False(t, res.Published())
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "publish")
}

func TestErrorLog_AppendDoesNotAlias(t *testing.T) {
	base := ErrorLog{"a"}
	x := base.Append("b")
	y := base.Append("c")
	assert.Equal(t, ErrorLog{"a", "b"}, x)
	assert.Equal(t, ErrorLog{"a", "c"}, y)
	assert.Equal(t, ErrorLog{"a"}, base)
}

func TestResult_Report(t *testing.T) {
	ok := Result{ItemID: "7", ImageURL: "https://img/x.png", ImageAttached: true, ImagePrompt: "p, s"}
	report := ok.Report()
	assert.Contains(t, report, "Image generated: Yes")
	assert.Contains(t, report, "Post ID: 7")
	assert.NotContains(t, report, "Error Log")

	degraded := Result{ItemID: "7", Errors: ErrorLog{"Failed to generate image: x"}}
	report = degraded.Report()
	assert.Contains(t, report, "Image generated: No")
	assert.Contains(t, report, "Error Log:\nFailed to generate image: x")

	failed := Result{Errors: ErrorLog{"Failed to generate topic: x"}}
	assert.Equal(t, "Generation failed:\nFailed to generate topic: x", failed.Report())
}

func TestNew_RequiresCollaborators(t *testing.T) {
	clients := func(string) (generator.TextGenerator, generator.ImageGenerator, error) { return nil, nil, nil }
	_, err := New(nil, &fakeRepo{}, &fakeMedia{}, nil)
	assert.Error(t, err)
	_, err = New(clients, nil, &fakeMedia{}, nil)
	assert.Error(t, err)
	_, err = New(clients, &fakeRepo{}, nil, nil)
	assert.Error(t, err)
}
