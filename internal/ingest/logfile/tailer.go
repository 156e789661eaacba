// Package logfile follows a (possibly date-stamped) log file and feeds each
// new line through the classifier into the ban engine.
package logfile

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"failguard/internal/classifier"
	"failguard/internal/config"
	"failguard/internal/domain"
)

const (
	datePlaceholder     = "{date}"
	defaultPollInterval = 10 * time.Second
	maxLoggedLine       = 100
)

type Classifier interface {
	Classify(text string) (classifier.Match, bool)
}

type Recorder interface {
	RecordFailure(ctx context.Context, address, rule string) domain.BanDecision
}

// Tailer tracks a byte offset into the current file. Only newline-terminated
// lines are consumed; a trailing partial line is picked up once completed.
type Tailer struct {
	classifier    Classifier
	recorder      Recorder
	template      string
	layout        string
	interval      time.Duration
	readFromStart bool
	now           func() time.Time

	path    string
	offset  int64
	primed  bool
	started bool
}

func NewTailer(cfg config.LogFileConfig, c Classifier, r Recorder) *Tailer {
	layout := cfg.DateLayout
	if layout == "" {
		layout = config.DefaultDateLayout
	}
	interval := defaultPollInterval
	if !cfg.PollTimer.IsZero() {
		interval = config.CalculateBetweenTime(cfg.PollTimer)
	}
	return &Tailer{
		classifier:    c,
		recorder:      r,
		template:      cfg.Path,
		layout:        layout,
		interval:      interval,
		readFromStart: cfg.ReadFromStart,
		now:           time.Now,
	}
}

// ResolvePath substitutes the {date} placeholder in template.
func ResolvePath(template, layout string, now time.Time) string {
	return strings.ReplaceAll(template, datePlaceholder, now.Format(layout))
}

func (t *Tailer) CurrentPath() string {
	return ResolvePath(t.template, t.layout, t.now())
}

// Run polls until ctx is done. Write and create events in the file's
// directory trigger an early poll; without fsnotify the ticker alone drives it.
func (t *Tailer) Run(ctx context.Context) error {
	log.Info("Log file source started", "path", t.template, "interval", t.interval)

	var events <-chan fsnotify.Event
	var watchErrors <-chan error
	if watcher, err := fsnotify.NewWatcher(); err != nil {
		log.Warn("File watcher unavailable, polling only", "error", err)
	} else {
		defer watcher.Close()
		dir := filepath.Dir(t.CurrentPath())
		if err := watcher.Add(dir); err != nil {
			log.Warn("Could not watch log directory, polling only", "dir", dir, "error", err)
		} else {
			events = watcher.Events
			watchErrors = watcher.Errors
		}
	}

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	t.pollAndLog(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info("Log file source stopped", "path", t.path)
			return nil
		case <-ticker.C:
			t.pollAndLog(ctx)
		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if filepath.Clean(event.Name) == filepath.Clean(t.CurrentPath()) {
					t.pollAndLog(ctx)
				}
			}
		case err, ok := <-watchErrors:
			if !ok {
				watchErrors = nil
				continue
			}
			log.Warn("File watcher error", "error", err)
		}
	}
}

func (t *Tailer) pollAndLog(ctx context.Context) {
	if _, err := t.Poll(ctx); err != nil {
		log.Warn("Log file read failed", "path", t.path, "error", err)
	}
}

// Poll reads the lines appended since the last call and returns how many
// were processed. A missing file is not an error.
func (t *Tailer) Poll(ctx context.Context) (int, error) {
	path := t.CurrentPath()
	if path != t.path {
		if t.path != "" {
			log.Info("Following new log file", "previous", t.path, "path", path)
		}
		t.path = path
		t.offset = 0
		t.primed = false
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Debug("Log file not found", "path", path)
			return 0, nil
		}
		return 0, fmt.Errorf("logfile: stat %s: %w", path, err)
	}

	if !t.primed {
		t.primed = true
		// Only the file present at startup is skipped to its end; files that
		// appear later are read whole.
		if !t.started && !t.readFromStart {
			t.offset = info.Size()
		}
		t.started = true
	}

	if info.Size() < t.offset {
		log.Info("Log file truncated, reading from start", "path", path, "size", info.Size(), "offset", t.offset)
		t.offset = 0
	}
	if info.Size() == t.offset {
		return 0, nil
	}

	return t.readFrom(ctx, path)
}

func (t *Tailer) readFrom(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("logfile: open %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		return 0, fmt.Errorf("logfile: seek %s: %w", path, err)
	}

	reader := bufio.NewReader(f)
	processed := 0
	for {
		if ctx.Err() != nil {
			return processed, nil
		}
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return processed, nil
			}
			return processed, fmt.Errorf("logfile: read %s: %w", path, err)
		}
		t.offset += int64(len(line))
		t.handleLine(ctx, strings.TrimRight(line, "\r\n"))
		processed++
	}
}

func (t *Tailer) handleLine(ctx context.Context, line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	match, ok := t.classifier.Classify(line)
	if !ok {
		return
	}

	decision := t.recorder.RecordFailure(ctx, match.Address, match.Rule)
	if decision.Banned {
		log.Warn("Address banned", "address", match.Address, "rule", match.Rule, "line", shorten(line))
	}
}

func shorten(line string) string {
	if len(line) <= maxLoggedLine {
		return line
	}
	return line[:maxLoggedLine] + "..."
}
