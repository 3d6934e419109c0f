package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// prompter queues yes/no questions; the input loop answers the oldest one first.
type prompter struct {
	out io.Writer

	mu      sync.Mutex
	pending []question
}

type question struct {
	text   string
	answer func(yes bool)
}

func newPrompter(out io.Writer) *prompter {
	return &prompter{out: out}
}

// Ask prints text unless another question is already waiting.
func (p *prompter) Ask(text string, answer func(yes bool)) {
	p.mu.Lock()
	p.pending = append(p.pending, question{text: text, answer: answer})
	first := len(p.pending) == 1
	p.mu.Unlock()

	if first {
		fmt.Fprintf(p.out, "? %s\n", text)
	}
}

// Answer consumes line if a question is waiting and reports whether it did.
func (p *prompter) Answer(line string) bool {
	p.mu.Lock()
	if len(p.pending) == 0 {
		p.mu.Unlock()
		return false
	}
	q := p.pending[0]
	p.pending = p.pending[1:]
	var next *question
	if len(p.pending) > 0 {
		next = &p.pending[0]
	}
	p.mu.Unlock()

	answer := strings.ToLower(strings.TrimSpace(line))
	q.answer(answer == "y" || answer == "yes")

	if next != nil {
		fmt.Fprintf(p.out, "? %s\n", next.text)
	}
	return true
}
