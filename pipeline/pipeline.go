package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"automagick_post_producer/failure"
	"automagick_post_producer/generator"
	"automagick_post_producer/logger"
)

// PublishStatus is the status every created item gets.
const PublishStatus = "publish"

var errEmptyReply = errors.New("empty response")

// ClientFactory builds the generation clients for a credential.
type ClientFactory func(credential string) (generator.TextGenerator, generator.ImageGenerator, error)

// Pipeline holds the long-lived collaborators. It keeps no per-run state.
type Pipeline struct {
	clients ClientFactory
	repo    Repository
	media   Media
	log     logger.Logger
}

func New(clients ClientFactory, repo Repository, media Media, log logger.Logger) (*Pipeline, error) {
	if clients == nil {
		return nil, errors.New("client factory is required")
	}
	if repo == nil {
		return nil, errors.New("content repository is required")
	}
	if media == nil {
		return nil, errors.New("media collaborator is required")
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Pipeline{clients: clients, repo: repo, media: media, log: log}, nil
}

// stageFunc takes the result so far and returns it extended. A non-nil
// error aborts the run; soft failures go into the returned ErrorLog instead.
type stageFunc func(ctx context.Context, res Result) (Result, error)

type step struct {
	stage Stage
	fail  string
	run   stageFunc
}

// Run executes one generation. It always returns a Result: either a
// published one (ItemID set) or a hard failure with a non-empty ErrorLog.
func (p *Pipeline) Run(ctx context.Context, cfg Config) (res Result) {
	log := logger.FromContext(ctx, p.log)
	res = Result{Stage: StageTopic}

	defer func() {
		if rec := recover(); rec != nil {
			log.Error("pipeline panic", logger.String("stage", string(res.Stage)), logger.Any("panic", rec))
			res.Errors = res.Errors.Appendf("Unexpected failure during %s: %v", strings.ToLower(string(res.Stage)), rec)
			if res.Published() {
				res.Stage = StageDone
			} else {
				res.FailedStage, res.Stage = res.Stage, StageFailed
			}
		}
	}()

	if strings.TrimSpace(cfg.Credential) == "" {
		return hardFail(res, (&failure.ConfigError{Msg: "OpenAI API key is not set."}).Error())
	}
	text, image, err := p.clients(cfg.Credential)
	if err == nil && (text == nil || image == nil) {
		err = errors.New("client factory returned no client")
	}
	if err != nil {
		return hardFail(res, (&failure.ConfigError{Msg: "Invalid OpenAI credential", Err: err}).Error())
	}
	composer, err := generator.NewComposer(text)
	if err != nil {
		return hardFail(res, (&failure.ConfigError{Msg: "Invalid OpenAI credential", Err: err}).Error())
	}

	r := &runner{cfg: cfg, text: text, image: image, composer: composer, repo: p.repo, media: p.media}
	steps := []step{
		{StageTopic, "Failed to generate topic", r.topic},
		{StageContent, "Failed to generate post content", r.content},
		{StageTitle, "Failed to generate title", r.title},
		{StageImagePrompt, "", r.imagePrompt},
		{StageImage, "", r.generateImage},
		{StagePublish, "Failed to create post", r.publish},
		{StageAttach, "", r.attach},
	}

	for _, s := range steps {
		res.Stage = s.stage
		start := time.Now()
		next, err := s.run(ctx, res)
		if err != nil {
			log.Warn("stage failed",
				logger.String("stage", string(s.stage)),
				logger.Duration("elapsed", time.Since(start)),
				logger.Err(err))
			return hardFail(res, fmt.Sprintf("%s: %v", s.fail, err))
		}
		if added := len(next.Errors) - len(res.Errors); added > 0 {
			log.Warn("stage degraded",
				logger.String("stage", string(s.stage)),
				logger.Strings("errors", next.Errors[len(res.Errors):]))
		}
		res = next
		log.Debug("stage done", logger.String("stage", string(s.stage)), logger.Duration("elapsed", time.Since(start)))
	}

	res.Stage = StageDone
	log.Info("run finished",
		logger.String("item_id", res.ItemID),
		logger.Bool("image_attached", res.ImageAttached),
		logger.Int("soft_failures", len(res.Errors)))
	return res
}

func hardFail(res Result, msg string) Result {
	res.Errors = res.Errors.Append(msg)
	res.FailedStage, res.Stage = res.Stage, StageFailed
	res.ItemID = ""
	return res
}

// runner binds the per-run clients; it lives for exactly one Run.
type runner struct {
	cfg      Config
	text     generator.TextGenerator
	image    generator.ImageGenerator
	composer *generator.Composer
	repo     Repository
	media    Media
}

func (r *runner) complete(ctx context.Context, prompt string) (string, error) {
	out, err := r.text.Complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", errEmptyReply
	}
	return out, nil
}

func (r *runner) topic(ctx context.Context, res Result) (Result, error) {
	topic, err := r.complete(ctx, r.cfg.TopicPrompt)
	if err != nil {
		return res, err
	}
	res.Topic = topic
	return res, nil
}

func (r *runner) content(ctx context.Context, res Result) (Result, error) {
	raw, err := r.complete(ctx, generator.ContentPrompt(res.Topic))
	if err != nil {
		return res, err
	}
	content, err := generator.EnsureHTML(generator.CleanContent(raw))
	if err != nil {
		return res, err
	}
	if content == "" {
		return res, errEmptyReply
	}
	res.Content = content
	return res, nil
}

func (r *runner) title(ctx context.Context, res Result) (Result, error) {
	raw, err := r.complete(ctx, generator.TitlePrompt(generator.PlainText(res.Content)))
	if err != nil {
		return res, err
	}
	title := generator.CleanTitle(raw)
	if title == "" {
		return res, errEmptyReply
	}
	res.Title = title
	return res, nil
}

// imagePrompt failures count as image failures; IMAGE then has nothing to do.
func (r *runner) imagePrompt(ctx context.Context, res Result) (Result, error) {
	prompt, err := r.composer.Compose(ctx, res.Title, res.Content, r.cfg.ImageStyle)
	if err != nil {
		res.Errors = res.Errors.Appendf("Failed to generate image: image prompt: %v", err)
		return res, nil
	}
	res.ImagePrompt = prompt
	return res, nil
}

func (r *runner) generateImage(ctx context.Context, res Result) (Result, error) {
	if res.ImagePrompt == "" {
		return res, nil
	}
	url, err := r.image.Generate(ctx, res.ImagePrompt)
	if err != nil {
		res.Errors = res.Errors.Appendf("Failed to generate image: %v", err)
		return res, nil
	}
	res.ImageURL = url
	return res, nil
}

func (r *runner) publish(ctx context.Context, res Result) (Result, error) {
	id, err := r.repo.CreateItem(ctx, Item{
		Title:  res.Title,
		Body:   res.Content,
		Status: PublishStatus,
		Type:   r.cfg.ContentType,
	})
	if err != nil {
		return res, err
	}
	if id == "" {
		return res, &failure.PublishError{Reason: "repository returned no item id"}
	}
	res.ItemID = id
	return res, nil
}

func (r *runner) attach(ctx context.Context, res Result) (Result, error) {
	if res.ImageURL == "" {
		return res, nil
	}
	handle, err := r.media.Download(ctx, res.ImageURL)
	if err != nil {
		res.Errors = res.Errors.Appendf("Error downloading image: %v", err)
		return res, nil
	}
	if err := r.media.UploadAndAttach(ctx, res.ItemID, handle); err != nil {
		if step, _ := failure.MediaStepOf(err); step == failure.StepAttach {
			res.Errors = res.Errors.Appendf("Error setting featured image for item %s: %v", res.ItemID, err)
		} else {
			res.Errors = res.Errors.Appendf("Error uploading image: %v", err)
		}
		return res, nil
	}
	res.ImageAttached = true
	return res, nil
}
