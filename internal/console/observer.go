// Package console follows a server's output stream line by line, answers
// interactive "press a key" prompts and forwards every line to sinks.
package console

import (
	"errors"
	"io"
	"time"
)

// Line is one line of server output.
type Line struct {
	ServerID string    `json:"server_id,omitempty"`
	Server   string    `json:"server"`
	RunID    string    `json:"run_id,omitempty"`
	Text     string    `json:"text"`
	Time     time.Time `json:"time"`
}

// Sink receives console lines. Emit must not block for long.
type Sink interface {
	Emit(l Line)
}

// Options configures Observe.
type Options struct {
	ServerID string
	Server   string
	RunID    string
	// Prompts are substrings that mark a line waiting for a key press.
	Prompts []string
	// Answer is written to stdin when a prompt is seen. Defaults to a single space.
	Answer []byte
	Sinks  []Sink
}

// Observe reads r until EOF. Prompts are recognised even when the process
// has not terminated the line yet, as pause-style prompts usually do not.
func Observe(r io.Reader, stdin io.Writer, opts Options) error {
	answer := opts.Answer
	if len(answer) == 0 {
		answer = []byte{' '}
	}
	lr := NewLineReader(r, opts.Prompts)
	for {
		text, err := lr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if stdin != nil && hasPrompt([]byte(text), lr.prompts) {
			_, _ = stdin.Write(answer)
		}
		l := Line{ServerID: opts.ServerID, Server: opts.Server, RunID: opts.RunID, Text: text, Time: time.Now()}
		for _, s := range opts.Sinks {
			s.Emit(l)
		}
	}
}
