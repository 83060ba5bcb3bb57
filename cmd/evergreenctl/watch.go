package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/fsnotify/fsnotify"
	"github.com/urfave/cli/v2"

	"github.com/kailas-cloud/evergreen/pkg/evergreen"
)

func watchCommand(c *cli.Context) error {
	dir, err := requireArg(c, "dir")
	if err != nil {
		return err
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, tenant, err := openTenant(c)
	if err != nil {
		return err
	}
	defer client.Close()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	t := newTailer()
	if c.Bool("existing") {
		files, err := collectFiles(dir)
		if err != nil {
			return err
		}
		for _, f := range files {
			ingestAppended(ctx, tenant, t, f)
		}
	}

	color.Cyan("Watching %s for tenant %s (Ctrl+C to stop)", dir, tenant.ID())
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if path, changed := ingestTarget(ev); changed {
				ingestAppended(ctx, tenant, t, path)
			} else if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				t.forget(ev.Name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watcher error", "error", err)
		}
	}
}

func ingestAppended(ctx context.Context, tenant *evergreen.TenantClient, t *tailer, path string) {
	docs, err := t.next(path)
	if err != nil {
		color.Red("✗ %s: %v", path, err)
		return
	}
	if len(docs) == 0 {
		return
	}
	report := tenant.IngestBatch(ctx, docs, 0)
	color.Green("✓ %s: %d indexed, %d failed", filepath.Base(path), report.Succeeded, report.Failed)
	for _, rec := range report.Results {
		if rec.Status != evergreen.StatusIndexed {
			color.Red("  ✗ %s: %s", rec.ID, rec.ErrorMessage)
		}
	}
}

// ingestTarget reports whether an event may have added lines to a visible
// .jsonl file. Directories and attribute changes are ignored.
func ingestTarget(ev fsnotify.Event) (string, bool) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return "", false
	}
	if isHidden(ev.Name) || !isJSONL(ev.Name) {
		return "", false
	}
	info, err := os.Stat(ev.Name)
	if err != nil || info.IsDir() {
		return "", false
	}
	return ev.Name, true
}

// tailer remembers how far each file has been consumed. Only complete
// lines are consumed; a partial last line waits for its newline.
type tailer struct {
	offsets map[string]int64
}

func newTailer() *tailer {
	return &tailer{offsets: make(map[string]int64)}
}

func (t *tailer) next(path string) ([]evergreen.Document, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat: %w", err)
	}
	offset := t.offsets[path]
	if info.Size() < offset {
		offset = 0 // truncated or replaced
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek: %w", err)
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	end := bytes.LastIndexByte(data, '\n')
	if end < 0 {
		t.offsets[path] = offset
		return nil, nil
	}
	complete := data[:end+1]

	docs, err := readDocuments(bytes.NewReader(complete))
	t.offsets[path] = offset + int64(len(complete))
	if err != nil {
		return nil, err
	}
	return docs, nil
}

func (t *tailer) forget(path string) {
	delete(t.offsets, path)
}
