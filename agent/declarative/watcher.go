// 定义目录变更监听器。
//
// 通过轮询 agents/ 与 workflows/ 下的定义文件修改时间触发回调，
// 同一批变更在防抖窗口内合并为一次通知。
package declarative

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// FileOp represents file operation types
type FileOp int

const (
	// FileOpCreate 表示文件已创建
	FileOpCreate FileOp = iota
	// FileOpWrite 指示文件已被修改
	FileOpWrite
	// FileOpRemove 表示文件已被删除
	FileOpRemove
)

// String returns the string representation of FileOp
func (op FileOp) String() string {
	switch op {
	case FileOpCreate:
		return "CREATE"
	case FileOpWrite:
		return "WRITE"
	case FileOpRemove:
		return "REMOVE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent represents a definition file change.
type FileEvent struct {
	Path      string    `json:"path"`
	Op        FileOp    `json:"op"`
	Timestamp time.Time `json:"timestamp"`
}

// --- 监听器选项 ---

// WatcherOption configures the Watcher
type WatcherOption func(*Watcher)

// WithPollInterval sets how often the directories are scanned.
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.interval = d
	}
}

// WithDebounceDelay sets the debounce delay for file events
func WithDebounceDelay(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// WithWatcherLogger sets the logger for the watcher
func WithWatcherLogger(logger *zap.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// Watcher polls definition directories and reports changed files in batches.
type Watcher struct {
	dirs     []string
	interval time.Duration
	debounce time.Duration
	logger   *zap.Logger

	mu        sync.Mutex
	callbacks []func([]FileEvent)
	modTimes  map[string]time.Time
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewWatcher watches the agents and workflows directories under root.
func NewWatcher(root string, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		dirs:     []string{filepath.Join(root, AgentsDir), filepath.Join(root, WorkflowsDir)},
		interval: time.Second,
		debounce: 100 * time.Millisecond,
		logger:   zap.NewNop(),
		modTimes: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(zap.String("component", "definition_watcher"))
	return w
}

// OnChange registers a callback for batches of file events
func (w *Watcher) OnChange(callback func([]FileEvent)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Start records the current file state and begins polling until ctx is
// cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		return errors.New("watcher already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.mu.Unlock()

	w.scan()
	go w.loop(ctx)

	w.logger.Info("definition watcher started",
		zap.Strings("dirs", w.dirs),
		zap.Duration("interval", w.interval),
		zap.Duration("debounce", w.debounce))
	return nil
}

// Stop stops polling and waits for the loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel = nil
	w.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	w.logger.Info("definition watcher stopped")
}

// IsRunning returns whether the watcher is running
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cancel != nil
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	var (
		pending = make(map[string]FileEvent)
		timer   *time.Timer
		fire    <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-ticker.C:
			events := w.scan()
			if len(events) == 0 {
				continue
			}
			// 覆盖相同路径的先前事件
			for _, ev := range events {
				pending[ev.Path] = ev
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			w.dispatch(pending)
			pending = make(map[string]FileEvent)
		}
	}
}

func (w *Watcher) dispatch(pending map[string]FileEvent) {
	batch := make([]FileEvent, 0, len(pending))
	for _, ev := range pending {
		batch = append(batch, ev)
	}
	sort.Slice(batch, func(i, j int) bool { return batch[i].Path < batch[j].Path })

	w.mu.Lock()
	callbacks := append(([]func([]FileEvent))(nil), w.callbacks...)
	w.mu.Unlock()

	for _, ev := range batch {
		w.logger.Debug("definition changed", zap.String("path", ev.Path), zap.String("op", ev.Op.String()))
	}
	for _, cb := range callbacks {
		cb(batch)
	}
}

// scan compares the definition files on disk with the last scan.
func (w *Watcher) scan() []FileEvent {
	now := time.Now()
	seen := make(map[string]time.Time)
	for _, dir := range w.dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() || detectFormat(e.Name()) == "" {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			seen[filepath.Join(dir, e.Name())] = info.ModTime()
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	var events []FileEvent
	for path, mod := range seen {
		last, existed := w.modTimes[path]
		switch {
		case !existed:
			events = append(events, FileEvent{Path: path, Op: FileOpCreate, Timestamp: now})
		case mod.After(last):
			events = append(events, FileEvent{Path: path, Op: FileOpWrite, Timestamp: now})
		}
	}
	for path := range w.modTimes {
		if _, ok := seen[path]; !ok {
			events = append(events, FileEvent{Path: path, Op: FileOpRemove, Timestamp: now})
		}
	}
	w.modTimes = seen
	return events
}
