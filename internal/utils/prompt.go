package utils

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Prompter reads answers line by line for the interactive menus.
type Prompter struct {
	scanner *bufio.Scanner
	out     io.Writer
}

func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{scanner: bufio.NewScanner(in), out: out}
}

// Ask prints label and returns the trimmed answer. ok is false once input
// is exhausted.
func (p *Prompter) Ask(label string) (answer string, ok bool) {
	_, _ = fmt.Fprint(p.out, label)
	if !p.scanner.Scan() {
		return "", false
	}
	return strings.TrimSpace(p.scanner.Text()), true
}

// Choose lists options numbered from 1 and returns the chosen one.
func (p *Prompter) Choose(label string, options []string) (string, bool) {
	for i, option := range options {
		_, _ = fmt.Fprintf(p.out, "  %d) %s\n", i+1, option)
	}
	for {
		answer, ok := p.Ask(label)
		if !ok {
			return "", false
		}
		index, err := strconv.Atoi(answer)
		if err == nil && index >= 1 && index <= len(options) {
			return options[index-1], true
		}
		_, _ = fmt.Fprintf(p.out, "Please enter a number between 1 and %d\n", len(options))
	}
}
