package schedule

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"automagick_post_producer/logger"
)

// Recurring fires at First and then every Every after it. When First is
// already past, the next firing is the first grid point after the reference time.
type Recurring struct {
	First time.Time
	Every time.Duration
}

// Next implements cron.Schedule.
func (r Recurring) Next(t time.Time) time.Time {
	if r.First.After(t) {
		return r.First
	}
	if r.Every <= 0 {
		return time.Time{}
	}
	steps := t.Sub(r.First)/r.Every + 1
	return r.First.Add(steps * r.Every)
}

// Trigger owns the single pending firing of the producer.
type Trigger struct {
	mu    sync.Mutex
	cron  *cron.Cron
	entry cron.EntryID
	sched *Recurring
	now   func() time.Time
}

// NewTrigger builds a stopped trigger running jobs in loc.
func NewTrigger(loc *time.Location, log logger.Logger) *Trigger {
	if loc == nil {
		loc = time.Local
	}
	cl := cronLogger{log: log}
	return &Trigger{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		now: func() time.Time { return time.Now().In(loc) },
	}
}

// Start begins dispatching firings in the background.
func (t *Trigger) Start() { t.cron.Start() }

// Stop halts dispatching and waits for a running job to return.
func (t *Trigger) Stop() {
	<-t.cron.Stop().Done()
}

// Reschedule removes any pending firing and installs one for job. It
// returns the time of the next firing.
func (t *Trigger) Reschedule(first time.Time, every time.Duration, job func()) time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.clearLocked()
	sched := Recurring{First: first, Every: every}
	t.entry = t.cron.Schedule(sched, cron.FuncJob(job))
	t.sched = &sched
	return sched.Next(t.now())
}

// Clear removes the pending firing, if any.
func (t *Trigger) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clearLocked()
}

func (t *Trigger) clearLocked() {
	if t.sched == nil {
		return
	}
	t.cron.Remove(t.entry)
	t.sched = nil
	t.entry = 0
}

// Next reports the upcoming firing; ok is false when nothing is scheduled.
func (t *Trigger) Next() (next time.Time, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sched == nil {
		return time.Time{}, false
	}
	return t.sched.Next(t.now()), true
}

// Pending returns how many firings are installed on the runner.
func (t *Trigger) Pending() int {
	return len(t.cron.Entries())
}

// cronLogger routes cron's key/value logging into the structured logger.
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(kvFields(keysAndValues), logger.Err(err))...)
}

func kvFields(kv []interface{}) []logger.Field {
	fields := make([]logger.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields = append(fields, logger.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return fields
}
