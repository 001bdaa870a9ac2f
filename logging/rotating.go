package logging

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Log files are named <prefix>-<YYYY-Www>.log, with _NN suffixes once a week's
// file reaches the size limit.
const filePrefix = "search"

var numberedFile = regexp.MustCompile(`^` + filePrefix + `-\d{4}-W\d{2}_(\d{2})\.log$`)

// RotatingLogger is an io.Writer over weekly log files with a size cap and
// age-based retention
type RotatingLogger struct {
	logDir      string
	currentFile *os.File
	currentWeek string
	retention   time.Duration
	maxFileSize int64
	currentSize atomic.Int64
	mu          sync.Mutex

	ctx         context.Context
	cancel      context.CancelFunc
	cleanupDone chan struct{}
	cleanupOnce sync.Once
}

// NewRotatingLogger creates a rotating logger with the default 100MB size limit
func NewRotatingLogger(logDir string, retentionWeeks int) *RotatingLogger {
	return NewRotatingLoggerWithSizeLimit(logDir, retentionWeeks, 100*1024*1024)
}

// NewRotatingLoggerWithSizeLimit creates a rotating logger. A zero maxFileSize
// disables size rotation.
func NewRotatingLoggerWithSizeLimit(logDir string, retentionWeeks int, maxFileSize int64) *RotatingLogger {
	ctx, cancel := context.WithCancel(context.Background())
	return &RotatingLogger{
		logDir:      logDir,
		retention:   time.Duration(retentionWeeks) * 7 * 24 * time.Hour,
		maxFileSize: maxFileSize,
		ctx:         ctx,
		cancel:      cancel,
		cleanupDone: make(chan struct{}),
	}
}

// getWeekKey returns the ISO week of t as YYYY-Www
func getWeekKey(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// Open creates the log directory and opens the file for the current week
func (rl *RotatingLogger) Open() error {
	if err := os.MkdirAll(rl.logDir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.doRotate(getWeekKey(time.Now()))
}

// StartCleanup removes expired files every interval until Close
func (rl *RotatingLogger) StartCleanup(interval time.Duration) {
	rl.cleanupOnce.Do(func() {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			defer close(rl.cleanupDone)

			for {
				select {
				case <-rl.ctx.Done():
					return
				case <-ticker.C:
					if err := rl.cleanupOldLogs(); err != nil {
						fmt.Fprintf(os.Stderr, "log cleanup failed: %v\n", err)
					}
				}
			}
		}()
	})
}

// doRotate switches to the right file for targetWeek (caller holds mu)
func (rl *RotatingLogger) doRotate(targetWeek string) error {
	if rl.currentFile != nil {
		if err := rl.currentFile.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to close log file during rotation: %v\n", err)
		}
		rl.currentFile = nil
	}

	sizeRotation := rl.maxFileSize > 0 && rl.currentSize.Load() >= rl.maxFileSize
	fileName, fresh := rl.pickFile(targetWeek, sizeRotation)

	logPath := filepath.Join(rl.logDir, fileName)
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", logPath, err)
	}

	rl.currentFile = file
	rl.currentWeek = targetWeek

	rl.currentSize.Store(0)
	if !fresh {
		if info, err := os.Stat(logPath); err == nil {
			rl.currentSize.Store(info.Size())
		}
	}
	return nil
}

// pickFile returns the file to append to for week and whether it is new
func (rl *RotatingLogger) pickFile(week string, sizeRotation bool) (string, bool) {
	base := fmt.Sprintf("%s-%s.log", filePrefix, week)

	if !sizeRotation {
		info, err := os.Stat(filepath.Join(rl.logDir, base))
		if err != nil {
			return base, true
		}
		if rl.maxFileSize == 0 || info.Size() < rl.maxFileSize {
			return base, false
		}
	}

	// After a size rotation the newest numbered file is the one that filled up
	highest, lastPath, lastSize := rl.highestNumberedFile(week)
	if !sizeRotation && lastPath != "" && lastSize < rl.maxFileSize {
		return filepath.Base(lastPath), false
	}
	return fmt.Sprintf("%s-%s_%02d.log", filePrefix, week, highest+1), true
}

func (rl *RotatingLogger) highestNumberedFile(week string) (int, string, int64) {
	pattern := fmt.Sprintf("%s-%s_??.log", filePrefix, week)
	matches, _ := filepath.Glob(filepath.Join(rl.logDir, pattern))

	highest := 0
	var lastPath string
	var lastSize int64

	for _, match := range matches {
		m := numberedFile.FindStringSubmatch(filepath.Base(match))
		if len(m) < 2 {
			continue
		}
		num, _ := strconv.Atoi(m[1])
		if num <= highest {
			continue
		}
		highest = num
		lastPath = match
		lastSize = 0
		if info, err := os.Stat(match); err == nil {
			lastSize = info.Size()
		}
	}

	return highest, lastPath, lastSize
}

// Write appends p to the current file, rotating first on a week change or when
// p would push the file over the size limit
func (rl *RotatingLogger) Write(p []byte) (int, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	week := getWeekKey(time.Now())
	needsRotation := rl.currentFile == nil || rl.currentWeek != week

	if rl.maxFileSize > 0 && !needsRotation {
		size := rl.currentSize.Load()
		if size > 0 && size+int64(len(p)) > rl.maxFileSize {
			needsRotation = true
			rl.currentSize.Store(rl.maxFileSize)
		}
	}

	if needsRotation {
		if err := rl.doRotate(week); err != nil {
			return 0, err
		}
	}

	n, err := rl.currentFile.Write(p)
	rl.currentSize.Add(int64(n))
	return n, err
}

// cleanupOldLogs removes log files last modified before the retention window
func (rl *RotatingLogger) cleanupOldLogs() error {
	entries, err := os.ReadDir(rl.logDir)
	if err != nil {
		return fmt.Errorf("failed to read log directory: %w", err)
	}

	cutoff := time.Now().Add(-rl.retention)
	deleted := 0

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, filePrefix+"-") || !strings.HasSuffix(name, ".log") {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(rl.logDir, name)); err == nil {
				deleted++
			}
		}
	}

	if deleted > 0 {
		// Not through slog, the file handler writes here
		fmt.Printf("Cleaned up %d old log files\n", deleted)
	}
	return nil
}

// Close stops the cleanup goroutine and closes the current file
func (rl *RotatingLogger) Close() error {
	rl.cancel()

	// Never started: nothing will close cleanupDone otherwise
	rl.cleanupOnce.Do(func() { close(rl.cleanupDone) })
	select {
	case <-rl.cleanupDone:
	case <-time.After(time.Second):
		fmt.Fprintln(os.Stderr, "log cleanup goroutine did not stop in time")
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.currentFile == nil {
		return nil
	}
	err := rl.currentFile.Close()
	rl.currentFile = nil
	return err
}
