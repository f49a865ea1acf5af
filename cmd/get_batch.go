package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/danielbankhead/jetta/cmd/common"
	"github.com/danielbankhead/jetta/pkg/jettalib"
	"github.com/danielbankhead/jetta/pkg/urlutil"
)

// BatchError is a failed request of an input file.
type BatchError struct {
	URL    string
	Reason string
}

// SkippedURL is an input line that was not requested.
type SkippedURL struct {
	LineNumber int
	Content    string
	Reason     string
}

// BatchResult tracks the outcome of an --input-file run.
type BatchResult struct {
	Succeeded   int
	Failed      int
	Total       int
	Errors      []BatchError
	SkippedURLs []SkippedURL

	mu sync.Mutex
}

func (r *BatchResult) AddSuccess() {
	r.mu.Lock()
	r.Succeeded++
	r.mu.Unlock()
}

func (r *BatchResult) AddError(url string, err error) {
	r.mu.Lock()
	r.Failed++
	r.Errors = append(r.Errors, BatchError{URL: url, Reason: err.Error()})
	r.mu.Unlock()
}

func (r *BatchResult) HasErrors() bool {
	return r.Failed > 0
}

// String returns a summary with the skipped lines and failed URLs.
func (r *BatchResult) String() string {
	var sb strings.Builder

	sb.WriteString("=== Batch Summary ===\n")
	fmt.Fprintf(&sb, "Total URLs: %d\n", r.Total)
	fmt.Fprintf(&sb, "Succeeded:  %d\n", r.Succeeded)
	fmt.Fprintf(&sb, "Failed:     %d\n", r.Failed)

	if len(r.SkippedURLs) > 0 {
		fmt.Fprintf(&sb, "Skipped:    %d\n", len(r.SkippedURLs))
		sb.WriteString("\nSkipped lines:\n")
		for _, s := range r.SkippedURLs {
			fmt.Fprintf(&sb, "  Line %d: %s (%s)\n", s.LineNumber, s.Content, s.Reason)
		}
	}
	if len(r.Errors) > 0 {
		sb.WriteString("\nFailed requests:\n")
		for _, e := range r.Errors {
			fmt.Fprintf(&sb, "  - %s: %s\n", e.URL, e.Reason)
		}
	}
	return sb.String()
}

// getBatch saves every URL of an input file into dir with at most
// parallel requests in flight. Failures do not stop the batch.
func getBatch(ctx context.Context, s *session, e *jettalib.Engine, g *getRequest, inputFile, dir string, parallel int) error {
	entries, err := ParseInputFile(s.fs, inputFile)
	if err != nil {
		return err
	}
	if dir == "" {
		dir = "."
	}
	if err := s.fs.MkdirAll(dir, 0755); err != nil {
		return err
	}
	if parallel < 1 {
		parallel = 1
	}

	allowed := make(map[string]bool)
	for _, scheme := range e.SupportedSchemes() {
		allowed[scheme] = true
	}

	result := &BatchResult{}
	var (
		wg  sync.WaitGroup
		sem = make(chan struct{}, parallel)
	)
	for _, entry := range entries {
		if n := urlutil.Normalize(entry.URL, urlutil.Options{ProtocolsAllowed: allowed}); !n.IsValid {
			result.SkippedURLs = append(result.SkippedURLs, SkippedURL{
				LineNumber: entry.Line,
				Content:    entry.URL,
				Reason:     "invalid or unsupported URL",
			})
			continue
		}
		result.Total++
		name := entry.Output
		if name == "" {
			name = outputName(entry.URL)
		}
		out := filepath.Join(dir, name)
		opts := append(append([]jettalib.RequestOption(nil), g.opts...),
			jettalib.WithOutputFile(out),
			jettalib.WithStoreData(false),
		)

		sem <- struct{}{}
		wg.Add(1)
		f := e.Go(ctx, entry.URL, opts...)
		go func(rawURL string) {
			defer wg.Done()
			defer func() { <-sem }()
			if _, err := f.Wait(); err != nil {
				result.AddError(rawURL, err)
				return
			}
			result.AddSuccess()
			s.log.Info("get: saved %s to %s", rawURL, out)
		}(entry.URL)
	}
	wg.Wait()

	fmt.Fprint(stderr, result.String())
	if result.HasErrors() {
		return fmt.Errorf("%d of %d requests failed", result.Failed, result.Total)
	}
	common.PrintOK(stderr, "saved %d files to %s", result.Succeeded, dir)
	return nil
}
