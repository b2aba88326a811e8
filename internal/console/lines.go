package console

import (
	"bufio"
	"bytes"
	"io"
)

// MaxLineSize caps a single line. Longer lines are cut at the cap and the
// rest of the line is discarded; reading carries on with the next line.
const MaxLineSize = 1024 * 1024

// LineReader splits a process output stream into lines. An unterminated
// chunk is returned early once it contains one of the prompts.
type LineReader struct {
	br      *bufio.Reader
	prompts [][]byte
	line    []byte
}

func NewLineReader(r io.Reader, prompts []string) *LineReader {
	lr := &LineReader{br: bufio.NewReaderSize(r, 64*1024)}
	for _, p := range prompts {
		if p != "" {
			lr.prompts = append(lr.prompts, []byte(p))
		}
	}
	return lr
}

// Next returns the next line without its line ending. A final unterminated
// line is returned before the read error. The error is io.EOF at a clean end.
func (lr *LineReader) Next() (string, error) {
	for {
		if _, err := lr.br.Peek(1); err != nil {
			if len(lr.line) > 0 {
				return lr.take(), nil
			}
			return "", err
		}
		data, _ := lr.br.Peek(lr.br.Buffered())
		if i := bytes.IndexByte(data, '\n'); i >= 0 {
			lr.append(data[:i])
			_, _ = lr.br.Discard(i + 1)
			return lr.take(), nil
		}
		lr.append(data)
		_, _ = lr.br.Discard(len(data))
		if hasPrompt(lr.line, lr.prompts) {
			return lr.take(), nil
		}
	}
}

func (lr *LineReader) append(b []byte) {
	if room := MaxLineSize - len(lr.line); len(b) > room {
		b = b[:room]
	}
	lr.line = append(lr.line, b...)
}

func (lr *LineReader) take() string {
	s := string(bytes.TrimRight(lr.line, "\r"))
	lr.line = lr.line[:0]
	return s
}

func hasPrompt(b []byte, prompts [][]byte) bool {
	for _, p := range prompts {
		if bytes.Contains(b, p) {
			return true
		}
	}
	return false
}
