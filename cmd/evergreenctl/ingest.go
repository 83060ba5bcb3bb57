package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v2"

	"github.com/kailas-cloud/evergreen/pkg/evergreen"
)

const (
	defaultBatchSize = 50
	maxLineBytes     = 16 << 20
)

func ingestCommand(c *cli.Context) error {
	path, err := requireArg(c, "file.jsonl|dir")
	if err != nil {
		return err
	}
	batchSize := c.Int("batch-size")
	if batchSize <= 0 {
		return fmt.Errorf("batch-size must be positive, got %d", batchSize)
	}

	files, err := collectFiles(path)
	if err != nil {
		return err
	}
	var docs []evergreen.Document
	for _, f := range files {
		fileDocs, err := readDocumentsFile(f)
		if err != nil {
			return err
		}
		docs = append(docs, fileDocs...)
	}
	if len(docs) == 0 {
		color.Yellow("No documents found in %s", path)
		return nil
	}

	client, tenant, err := openTenant(c)
	if err != nil {
		return err
	}
	defer client.Close()

	bar := newProgressBar(len(docs), fmt.Sprintf("Ingesting into %s", tenant.ID()))
	var failed []evergreen.IndexedDocument
	for start := 0; start < len(docs); start += batchSize {
		end := min(start+batchSize, len(docs))
		report := tenant.IngestBatch(c.Context, docs[start:end], c.Int("concurrency"))
		for _, rec := range report.Results {
			if rec.Status != evergreen.StatusIndexed {
				failed = append(failed, rec)
			}
		}
		_ = bar.Add(end - start)
	}
	_ = bar.Finish()
	fmt.Println()

	printIngestSummary(len(docs), failed)
	return nil
}

func printIngestSummary(total int, failed []evergreen.IndexedDocument) {
	color.Green("✓ Indexed %d of %d documents", total-len(failed), total)
	for _, rec := range failed {
		color.Red("  ✗ %s (%s): %s", rec.ID, rec.SourceID, rec.ErrorMessage)
	}
}

func newProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("docs"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// collectFiles returns path itself for a file, or every visible .jsonl file
// below it for a directory, in lexical order.
func collectFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p != path && isHidden(p) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() && isJSONL(p) {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", path, err)
	}
	return files, nil
}

func isJSONL(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".jsonl")
}

func isHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}

func readDocumentsFile(path string) ([]evergreen.Document, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	docs, err := readDocuments(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return docs, nil
}

// readDocuments decodes one document per line. Blank lines are skipped.
func readDocuments(r io.Reader) ([]evergreen.Document, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var docs []evergreen.Document
	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var doc evergreen.Document
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		docs = append(docs, doc)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("line %d: %w", line+1, err)
	}
	return docs, nil
}
