package eventlog

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Filter selects which categories reach the file sink.
type Filter struct {
	Protocol bool
	Debug    bool
	System   bool
}

func (f Filter) Match(e Event) bool {
	switch e.Category {
	case CategoryProtocol:
		return f.Protocol
	case CategoryDebug:
		return f.Debug
	default:
		return f.System
	}
}

// FileConfig configures the rotating file sink.
type FileConfig struct {
	Path     string
	MaxBytes int64
	MaxFiles int
	// FlushInterval bounds the persisted-event loss window on crash:
	// at most one interval's worth of events is unflushed at any time.
	FlushInterval   time.Duration
	ChannelCapacity int
	Filter          Filter
}

// FileSink appends filtered events to an active log file, rotating it into
// name.1..name.N once it crosses MaxBytes. Writes are buffered and flushed
// on FlushInterval so the relay path never waits on disk.
type FileSink struct {
	cfg  FileConfig
	ch   chan Event
	done chan struct{}
}

// NewFileSink opens the active file (appending) and starts the writer
// goroutine. An unopenable path is a startup-fatal condition for the caller.
func NewFileSink(cfg FileConfig) (*FileSink, error) {
	if cfg.MaxBytes < 1024 {
		cfg.MaxBytes = 1024
	}
	if cfg.MaxFiles < 1 {
		cfg.MaxFiles = 1
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 250 * time.Millisecond
	}
	if cfg.ChannelCapacity < 1 {
		cfg.ChannelCapacity = 256
	}

	if dir := filepath.Dir(cfg.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("eventlog: create log dir: %w", err)
		}
	}
	file, size, err := openAppend(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("eventlog: open log file: %w", err)
	}

	s := &FileSink{
		cfg:  cfg,
		ch:   make(chan Event, cfg.ChannelCapacity),
		done: make(chan struct{}),
	}
	go s.run(file, size)
	return s, nil
}

// Append enqueues the event without blocking; the entry is dropped if the
// writer is behind, keeping the data plane responsive.
func (s *FileSink) Append(e Event) {
	if !s.cfg.Filter.Match(e) {
		return
	}
	select {
	case s.ch <- e:
	default:
	}
}

// Close stops the writer after draining queued events.
func (s *FileSink) Close() {
	close(s.ch)
	<-s.done
}

func (s *FileSink) run(file *os.File, size int64) {
	defer close(s.done)

	writer := bufio.NewWriter(file)
	dirty := false
	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		if dirty {
			_ = writer.Flush()
			dirty = false
		}
	}

	for {
		select {
		case e, ok := <-s.ch:
			if !ok {
				flush()
				_ = file.Close()
				return
			}
			line := e.Line()
			if _, err := writer.WriteString(line + "\n"); err == nil {
				size += int64(len(line)) + 1
				dirty = true
			}
			if size >= s.cfg.MaxBytes {
				_ = writer.Flush()
				_ = file.Close()
				rotateFiles(s.cfg.Path, s.cfg.MaxFiles)
				fresh, err := os.OpenFile(s.cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
				if err != nil {
					// Cannot reopen: stop persisting, drain silently.
					for range s.ch {
					}
					return
				}
				file = fresh
				writer = bufio.NewWriter(file)
				size = 0
				dirty = false
			}
		case <-ticker.C:
			flush()
		}
	}
}

func openAppend(path string) (*os.File, int64, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, 0, err
	}
	size := int64(0)
	if info, err := file.Stat(); err == nil {
		size = info.Size()
	}
	return file, size, nil
}

// rotateFiles shifts name.N-1 -> name.N (oldest removed) and the active
// file into name.1.
func rotateFiles(path string, maxFiles int) {
	oldest := fmt.Sprintf("%s.%d", path, maxFiles)
	_ = os.Remove(oldest)

	for i := maxFiles - 1; i >= 1; i-- {
		src := fmt.Sprintf("%s.%d", path, i)
		dst := fmt.Sprintf("%s.%d", path, i+1)
		if _, err := os.Stat(src); err == nil {
			_ = os.Rename(src, dst)
		}
	}

	if _, err := os.Stat(path); err == nil {
		_ = os.Rename(path, path+".1")
	}
}
