// Package producer ties settings, schedule and pipeline together: it keeps
// one recurring firing installed, runs at most one generation at a time and
// records every run.
package producer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"automagick_post_producer/logger"
	"automagick_post_producer/pipeline"
	"automagick_post_producer/schedule"
	"automagick_post_producer/secret"
	"automagick_post_producer/store"
)

var (
	// ErrRunInProgress is returned when a run is requested while another executes.
	ErrRunInProgress = errors.New("a generation run is already in progress")
	// ErrNotConfigured is returned before settings were saved for the first time.
	ErrNotConfigured = errors.New("producer settings have not been saved")
)

// InvalidSettingsError rejects a settings submission.
type InvalidSettingsError struct {
	Field  string
	Reason string
}

func (e *InvalidSettingsError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Defaults applied to blank settings fields on save.
const (
	DefaultFrequency   = string(schedule.Daily)
	DefaultTimeOfDay   = "00:00"
	DefaultContentType = "post"
)

// Trigger tells manual runs from scheduled ones.
type Trigger string

const (
	TriggerManual    Trigger = "manual"
	TriggerScheduled Trigger = "scheduled"
)

// Store persists settings, schedule state and run history.
type Store interface {
	LoadSettings(ctx context.Context) (store.Settings, error)
	SaveSettings(ctx context.Context, s store.Settings) (store.Settings, error)
	LoadScheduleState(ctx context.Context) (schedule.State, error)
	SaveScheduleState(ctx context.Context, st schedule.State) error
	ClearScheduleState(ctx context.Context) error
	RecordRun(ctx context.Context, run store.Run) error
	ListRuns(ctx context.Context, limit int) ([]store.Run, error)
}

// Scheduler keeps the single pending firing.
type Scheduler interface {
	Reschedule(first time.Time, every time.Duration, job func()) time.Time
	Clear()
	Next() (time.Time, bool)
}

// Runner executes one generation.
type Runner interface {
	Run(ctx context.Context, cfg pipeline.Config) pipeline.Result
}

// KeyValidator checks a credential against the models endpoint.
type KeyValidator func(ctx context.Context, apiKey string) (bool, error)

// Options wires a Service.
type Options struct {
	Store     Store
	Cipher    *secret.Cipher
	Runner    Runner
	Scheduler Scheduler
	Validate  KeyValidator
	Intervals schedule.Intervals
	Location  *time.Location
	Metrics   *Metrics
	Logger    logger.Logger
	Now       func() time.Time
}

// Service coordinates the producer.
type Service struct {
	store     Store
	cipher    *secret.Cipher
	runner    Runner
	scheduler Scheduler
	validate  KeyValidator
	intervals schedule.Intervals
	loc       *time.Location
	metrics   *Metrics
	log       logger.Logger
	now       func() time.Time

	runMu sync.Mutex
}

func New(opts Options) (*Service, error) {
	switch {
	case opts.Store == nil:
		return nil, errors.New("store is required")
	case opts.Cipher == nil:
		return nil, errors.New("cipher is required")
	case opts.Runner == nil:
		return nil, errors.New("runner is required")
	case opts.Scheduler == nil:
		return nil, errors.New("scheduler is required")
	}
	s := &Service{
		store:     opts.Store,
		cipher:    opts.Cipher,
		runner:    opts.Runner,
		scheduler: opts.Scheduler,
		validate:  opts.Validate,
		intervals: opts.Intervals,
		loc:       opts.Location,
		metrics:   opts.Metrics,
		log:       opts.Logger,
		now:       opts.Now,
	}
	if s.intervals == nil {
		s.intervals = schedule.DefaultIntervals()
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.log == nil {
		s.log = logger.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Start installs the recurring firing from the saved settings. Without
// saved settings nothing is scheduled.
func (s *Service) Start(ctx context.Context) error {
	settings, err := s.store.LoadSettings(ctx)
	if errors.Is(err, store.ErrNotFound) {
		s.log.Info("no settings saved yet, nothing scheduled")
		return nil
	}
	if err != nil {
		return err
	}
	next, err := s.reschedule(ctx, settings)
	if err != nil {
		return err
	}
	s.log.Info("producer scheduled",
		logger.String("frequency", settings.Frequency),
		logger.String("time_of_day", settings.TimeOfDay),
		logger.Time("next_run", next))
	return nil
}

// SettingsInput is a settings submission. An empty APIKey keeps the stored one.
type SettingsInput struct {
	APIKey      string `json:"api_key"`
	TopicPrompt string `json:"topic_prompt"`
	ImageStyle  string `json:"image_style_prompt"`
	Frequency   string `json:"frequency"`
	TimeOfDay   string `json:"time_of_day"`
	ContentType string `json:"post_type"`
}

// SettingsView is what callers get back; the credential itself is never shown.
type SettingsView struct {
	store.Settings
	HasAPIKey bool       `json:"has_api_key"`
	NextRun   *time.Time `json:"next_run,omitempty"`
}

// Settings returns the saved settings, or defaults before the first save.
func (s *Service) Settings(ctx context.Context) (SettingsView, error) {
	settings, err := s.store.LoadSettings(ctx)
	if errors.Is(err, store.ErrNotFound) {
		settings = store.Settings{Frequency: DefaultFrequency, TimeOfDay: DefaultTimeOfDay, ContentType: DefaultContentType}
	} else if err != nil {
		return SettingsView{}, err
	}
	return s.view(settings), nil
}

func (s *Service) view(settings store.Settings) SettingsView {
	v := SettingsView{Settings: settings, HasAPIKey: settings.APIKey != ""}
	if next, ok := s.scheduler.Next(); ok {
		v.NextRun = &next
	}
	return v
}

// SaveSettings sanitizes and stores a submission, then reschedules.
func (s *Service) SaveSettings(ctx context.Context, in SettingsInput) (SettingsView, error) {
	settings, err := s.sanitize(in)
	if err != nil {
		return SettingsView{}, err
	}

	if key := strings.TrimSpace(in.APIKey); key != "" {
		settings.APIKey = s.cipher.Encrypt(key)
	} else {
		prev, err := s.store.LoadSettings(ctx)
		switch {
		case err == nil:
			settings.APIKey = prev.APIKey
		case !errors.Is(err, store.ErrNotFound):
			return SettingsView{}, err
		}
	}

	saved, err := s.store.SaveSettings(ctx, settings)
	if err != nil {
		return SettingsView{}, err
	}
	next, err := s.reschedule(ctx, saved)
	if err != nil {
		return SettingsView{}, err
	}
	s.log.Info("settings saved",
		logger.String("frequency", saved.Frequency),
		logger.String("time_of_day", saved.TimeOfDay),
		logger.String("post_type", saved.ContentType),
		logger.Time("next_run", next))
	return s.view(saved), nil
}

func (s *Service) sanitize(in SettingsInput) (store.Settings, error) {
	out := store.Settings{
		TopicPrompt: strings.TrimSpace(in.TopicPrompt),
		ImageStyle:  strings.TrimSpace(in.ImageStyle),
		Frequency:   strings.TrimSpace(in.Frequency),
		TimeOfDay:   strings.TrimSpace(in.TimeOfDay),
		ContentType: strings.TrimSpace(in.ContentType),
	}
	if out.Frequency == "" {
		out.Frequency = DefaultFrequency
	}
	if out.TimeOfDay == "" {
		out.TimeOfDay = DefaultTimeOfDay
	}
	if out.ContentType == "" {
		out.ContentType = DefaultContentType
	}

	tod, err := schedule.ParseTimeOfDay(out.TimeOfDay)
	if err != nil {
		return store.Settings{}, &InvalidSettingsError{Field: "time_of_day", Reason: err.Error()}
	}
	out.TimeOfDay = tod.String()
	if strings.ContainsAny(out.ContentType, "/ ") {
		return store.Settings{}, &InvalidSettingsError{Field: "post_type", Reason: "must be a single identifier"}
	}
	if !s.intervals.Known(schedule.Frequency(out.Frequency)) {
		s.log.Warn("unregistered frequency, using default interval",
			logger.String("frequency", out.Frequency),
			logger.Duration("interval", schedule.DefaultInterval))
	}
	return out, nil
}

// reschedule replaces the pending firing and persists the schedule state.
func (s *Service) reschedule(ctx context.Context, settings store.Settings) (time.Time, error) {
	tod, err := schedule.ParseTimeOfDay(settings.TimeOfDay)
	if err != nil {
		return time.Time{}, &InvalidSettingsError{Field: "time_of_day", Reason: err.Error()}
	}
	freq := schedule.Frequency(settings.Frequency)
	now := s.now().In(s.loc)

	first := schedule.NextRun(freq, tod, now, s.intervals)
	next := s.scheduler.Reschedule(first, s.intervals.Interval(freq), s.fire)
	s.metrics.setNextRun(next)

	st := schedule.State{Frequency: freq, TimeOfDay: tod.String(), NextRun: next}
	if err := s.store.SaveScheduleState(ctx, st); err != nil {
		return next, err
	}
	return next, nil
}

// fire is the scheduled job.
func (s *Service) fire() {
	ctx := context.Background()
	_, err := s.RunNow(ctx, TriggerScheduled)
	switch {
	case errors.Is(err, ErrRunInProgress):
		if s.metrics != nil {
			s.metrics.RunsSkippedTotal.Inc()
		}
		s.log.Warn("scheduled run skipped, another run is in progress")
	case err != nil:
		s.log.Error("scheduled run failed to start", logger.Err(err))
	}

	next, ok := s.scheduler.Next()
	if !ok {
		return
	}
	s.metrics.setNextRun(next)
	st, err := s.store.LoadScheduleState(ctx)
	if err != nil {
		s.log.Warn("schedule state unavailable after firing", logger.Err(err))
		return
	}
	st.NextRun = next
	if err := s.store.SaveScheduleState(ctx, st); err != nil {
		s.log.Warn("failed to persist next run", logger.Err(err))
	}
}

// RunOutcome is one finished run with its report.
type RunOutcome struct {
	ID         string          `json:"id"`
	Trigger    Trigger         `json:"trigger"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Result     pipeline.Result `json:"result"`
	Report     string          `json:"report"`
}

// RunNow executes one generation with the saved settings. It returns
// ErrRunInProgress instead of waiting when another run executes.
func (s *Service) RunNow(ctx context.Context, trigger Trigger) (RunOutcome, error) {
	if !s.runMu.TryLock() {
		return RunOutcome{}, ErrRunInProgress
	}
	defer s.runMu.Unlock()

	cfg, err := s.pipelineConfig(ctx)
	if err != nil {
		return RunOutcome{}, err
	}

	out := RunOutcome{ID: uuid.NewString(), Trigger: trigger, StartedAt: s.now()}
	log := s.log.With(logger.String("run_id", out.ID), logger.String("trigger", string(trigger)))
	ctx = logger.WithContext(ctx, log)

	if s.metrics != nil {
		s.metrics.RunInProgress.Set(1)
		defer s.metrics.RunInProgress.Set(0)
	}
	log.Info("run started", logger.String("post_type", cfg.ContentType))

	out.Result = s.runner.Run(ctx, cfg)
	out.FinishedAt = s.now()
	out.Report = out.Result.Report()
	elapsed := out.FinishedAt.Sub(out.StartedAt)
	s.metrics.observeRun(trigger, out.Result, elapsed)

	if out.Result.Published() {
		log.Info("run published",
			logger.String("item_id", out.Result.ItemID),
			logger.String("outcome", out.Result.Outcome()),
			logger.Duration("elapsed", elapsed))
	} else {
		log.Error("run failed",
			logger.String("stage", string(out.Result.FailedStage)),
			logger.Strings("errors", out.Result.Errors))
	}

	if err := s.store.RecordRun(ctx, recordOf(out)); err != nil {
		log.Error("failed to record run", logger.Err(err))
	}
	return out, nil
}

func recordOf(out RunOutcome) store.Run {
	res := out.Result
	return store.Run{
		ID:          out.ID,
		Trigger:     string(out.Trigger),
		StartedAt:   out.StartedAt,
		FinishedAt:  out.FinishedAt,
		Outcome:     res.Outcome(),
		Stage:       string(res.Stage),
		Topic:       res.Topic,
		Title:       res.Title,
		ImagePrompt: res.ImagePrompt,
		ImageURL:    res.ImageURL,
		ItemID:      res.ItemID,
		Errors:      store.Messages(res.Errors),
	}
}

// pipelineConfig snapshots the settings for one run. An unreadable stored
// credential is passed on as empty so the run fails with the usual message.
func (s *Service) pipelineConfig(ctx context.Context) (pipeline.Config, error) {
	settings, err := s.store.LoadSettings(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return pipeline.Config{}, ErrNotConfigured
	}
	if err != nil {
		return pipeline.Config{}, err
	}
	key, err := s.cipher.Decrypt(settings.APIKey)
	if err != nil {
		s.log.Error("stored credential cannot be decrypted; was the site secret changed?", logger.Err(err))
		key = ""
	}
	return pipeline.Config{
		Credential:  key,
		TopicPrompt: settings.TopicPrompt,
		ImageStyle:  settings.ImageStyle,
		ContentType: settings.ContentType,
		Frequency:   settings.Frequency,
		TimeOfDay:   settings.TimeOfDay,
	}, nil
}

// Runs lists recent runs, newest first.
func (s *Service) Runs(ctx context.Context, limit int) ([]store.Run, error) {
	return s.store.ListRuns(ctx, limit)
}

// ScheduleView describes the pending firing.
type ScheduleView struct {
	Scheduled bool       `json:"scheduled"`
	Frequency string     `json:"frequency,omitempty"`
	TimeOfDay string     `json:"time_of_day,omitempty"`
	Interval  string     `json:"interval,omitempty"`
	NextRun   *time.Time `json:"next_run,omitempty"`
}

// Schedule reports the installed firing together with the persisted state.
func (s *Service) Schedule(ctx context.Context) (ScheduleView, error) {
	st, err := s.store.LoadScheduleState(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return ScheduleView{}, nil
	}
	if err != nil {
		return ScheduleView{}, err
	}
	v := ScheduleView{
		Frequency: string(st.Frequency),
		TimeOfDay: st.TimeOfDay,
		Interval:  s.intervals.Interval(st.Frequency).String(),
	}
	if next, ok := s.scheduler.Next(); ok {
		v.Scheduled = true
		v.NextRun = &next
	}
	return v, nil
}

// NextRun reports the upcoming firing.
func (s *Service) NextRun() (time.Time, bool) {
	return s.scheduler.Next()
}

// ClearSchedule removes the pending firing and its persisted state. Saving
// settings or restarting installs it again.
func (s *Service) ClearSchedule(ctx context.Context) error {
	s.scheduler.Clear()
	s.metrics.setNextRun(time.Time{})
	if err := s.store.ClearScheduleState(ctx); err != nil {
		return err
	}
	s.log.Info("schedule cleared")
	return nil
}

// ValidateCredential checks apiKey, or the stored credential when apiKey is empty.
func (s *Service) ValidateCredential(ctx context.Context, apiKey string) (bool, error) {
	if s.validate == nil {
		return false, errors.New("credential validation is not available")
	}
	key := strings.TrimSpace(apiKey)
	if key == "" {
		cfg, err := s.pipelineConfig(ctx)
		if errors.Is(err, ErrNotConfigured) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		key = cfg.Credential
	}
	if key == "" {
		return false, nil
	}
	return s.validate(ctx, key)
}
