// ABOUTME: Server-sent events reader yielding one data payload per event
// ABOUTME: Joins multi-line data fields and skips comments and non-data fields

package opencode

import (
	"bufio"
	"io"
	"strings"
	"sync"
)

const (
	scannerInitialBuffer = 64 * 1024
	scannerMaxBuffer     = 10 * 1024 * 1024
)

// Stream yields raw event payloads.
type Stream interface {
	// Recv blocks for the next payload. It returns io.EOF when the stream
	// ended normally.
	Recv() ([]byte, error)
	Close() error
}

type sseStream struct {
	body      io.ReadCloser
	scanner   *bufio.Scanner
	closeOnce sync.Once
}

func newSSEStream(body io.ReadCloser) *sseStream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, scannerInitialBuffer), scannerMaxBuffer)
	return &sseStream{body: body, scanner: scanner}
}

func (s *sseStream) Recv() ([]byte, error) {
	var dataLines []string

	for s.scanner.Scan() {
		line := s.scanner.Text()

		// Empty line dispatches the event
		if line == "" {
			if len(dataLines) > 0 {
				return []byte(strings.Join(dataLines, "\n")), nil
			}
			continue
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		if data, ok := strings.CutPrefix(line, "data:"); ok {
			dataLines = append(dataLines, strings.TrimPrefix(data, " "))
		}
	}

	if err := s.scanner.Err(); err != nil {
		return nil, err
	}
	// Flush a final event that was not followed by a blank line
	if len(dataLines) > 0 {
		return []byte(strings.Join(dataLines, "\n")), nil
	}
	return nil, io.EOF
}

func (s *sseStream) Close() error {
	var err error
	s.closeOnce.Do(func() { err = s.body.Close() })
	return err
}
