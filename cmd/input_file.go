package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/afero"
)

// Sentinel errors for input file parsing.
var (
	ErrInputFileNotFound   = errors.New("input file not found")
	ErrInputFilePermission = errors.New("permission denied reading input file")
	ErrInputFileEmpty      = errors.New("input file contains no URLs")
)

// InputFileError wraps input file errors with the file path.
type InputFileError struct {
	Path string
	Err  error
}

func (e *InputFileError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Path)
}

func (e *InputFileError) Unwrap() error {
	return e.Err
}

// InputEntry is one request of an input file.
type InputEntry struct {
	// Line is 1-indexed.
	Line int
	URL  string
	// Output is the optional second field of the line.
	Output string
}

// ParseInputFile reads one request per line: a URL optionally followed by
// whitespace and an output file name. Empty lines and lines starting with
// # are skipped.
func ParseInputFile(fs afero.Fs, path string) ([]InputEntry, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, wrapInputFileError(path, err)
	}

	var entries []InputEntry
	for i, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		fields := strings.Fields(trimmed)
		e := InputEntry{Line: i + 1, URL: fields[0]}
		if len(fields) > 1 {
			e.Output = fields[1]
		}
		entries = append(entries, e)
	}
	if len(entries) == 0 {
		return nil, &InputFileError{Path: path, Err: ErrInputFileEmpty}
	}
	return entries, nil
}

func wrapInputFileError(path string, err error) error {
	switch {
	case errors.Is(err, os.ErrNotExist):
		err = ErrInputFileNotFound
	case errors.Is(err, os.ErrPermission):
		err = ErrInputFilePermission
	}
	return &InputFileError{Path: path, Err: err}
}
