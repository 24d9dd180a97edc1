// Package transcript accumulates finalized speech-to-text output between
// processing triggers and decides whether the accumulated text looks like an
// interview question worth answering.
package transcript

import (
	"strings"
	"sync"
)

// Buffer is a rolling buffer of finalized transcription segments plus the
// current partial (in-progress) utterance. Safe for concurrent use: segments
// arrive from the recognizer feed while the trigger path pops and the
// presentation layer renders.
type Buffer struct {
	mu       sync.Mutex
	segments []string
	partial  string

	// onUpdate, when set, is called with the current preview text (finalized
	// segments plus partial) after every change. Invoked synchronously from
	// whichever goroutine performed the change.
	onUpdate func(text string)
}

// NewBuffer creates an empty Buffer. onUpdate may be nil.
func NewBuffer(onUpdate func(text string)) *Buffer {
	return &Buffer{onUpdate: onUpdate}
}

// Append adds a finalized transcription segment and clears the partial,
// which the segment supersedes.
func (b *Buffer) Append(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	b.mu.Lock()
	b.segments = append(b.segments, text)
	b.partial = ""
	preview := b.previewLocked()
	b.mu.Unlock()

	b.notify(preview)
}

// SetPartial replaces the in-progress utterance used for live preview.
func (b *Buffer) SetPartial(text string) {
	b.mu.Lock()
	b.partial = strings.TrimSpace(text)
	preview := b.previewLocked()
	b.mu.Unlock()

	b.notify(preview)
}

// Text returns the finalized buffer content, excluding the partial.
func (b *Buffer) Text() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Join(b.segments, " ")
}

// Preview returns the finalized content followed by the partial utterance.
func (b *Buffer) Preview() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.previewLocked()
}

// WordCount reports the number of whitespace-separated words in s.
func WordCount(s string) int {
	return len(strings.Fields(s))
}

// WordCount reports the number of words in the finalized buffer content.
func (b *Buffer) WordCount() int {
	return WordCount(b.Text())
}

// Pop atomically returns the finalized buffer content and clears the buffer,
// partial included.
func (b *Buffer) Pop() string {
	b.mu.Lock()
	text := strings.Join(b.segments, " ")
	b.segments = nil
	b.partial = ""
	b.mu.Unlock()

	b.notify("")
	return text
}

// Clear discards all buffered content.
func (b *Buffer) Clear() {
	b.mu.Lock()
	b.segments = nil
	b.partial = ""
	b.mu.Unlock()

	b.notify("")
}

func (b *Buffer) previewLocked() string {
	joined := strings.Join(b.segments, " ")
	if b.partial == "" {
		return joined
	}
	if joined == "" {
		return b.partial
	}
	return joined + " " + b.partial
}

func (b *Buffer) notify(preview string) {
	if b.onUpdate != nil {
		b.onUpdate(preview)
	}
}
