// Package vocab loads the predefined intent and slot-key vocabularies.
// Vocabularies only drive suggestions; values outside them are accepted.
package vocab

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
)

// List is an ordered, de-duplicated vocabulary.
type List struct {
	entries []string
	lower   map[string]struct{}
}

// NewList builds a list from entries, dropping blanks and duplicates while
// keeping first-seen order.
func NewList(entries ...string) *List {
	l := &List{lower: make(map[string]struct{})}
	for _, e := range entries {
		l.add(e)
	}
	return l
}

func (l *List) add(entry string) {
	entry = strings.TrimSpace(entry)
	if entry == "" {
		return
	}
	key := strings.ToLower(entry)
	if _, dup := l.lower[key]; dup {
		return
	}
	l.lower[key] = struct{}{}
	l.entries = append(l.entries, entry)
}

// Read parses one entry per line. Blank lines and lines starting with # are
// skipped.
func Read(r io.Reader) (*List, error) {
	l := NewList()
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		l.add(line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return l, nil
}

// LoadFile reads a vocabulary file. An empty path yields an empty list.
func LoadFile(path string) (*List, error) {
	if path == "" {
		return NewList(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vocabulary: %w", err)
	}
	defer f.Close()

	l, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("read vocabulary %s: %w", path, err)
	}
	return l, nil
}

// Entries returns a copy of all entries in file order.
func (l *List) Entries() []string {
	return slices.Clone(l.entries)
}

// Len returns the number of entries.
func (l *List) Len() int {
	return len(l.entries)
}

// Suggest returns the entries starting with prefix, case-insensitively, in
// file order. An empty prefix returns everything.
func (l *List) Suggest(prefix string) []string {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	out := []string{}
	for _, e := range l.entries {
		if strings.HasPrefix(strings.ToLower(e), prefix) {
			out = append(out, e)
		}
	}
	return out
}

// Known reports whether value is in the vocabulary, case-insensitively.
func (l *List) Known(value string) bool {
	_, ok := l.lower[strings.ToLower(strings.TrimSpace(value))]
	return ok
}

// Vocabulary bundles the two predefined lists.
type Vocabulary struct {
	Intents  *List
	SlotKeys *List
}

// Load reads both vocabulary files once.
func Load(intentsFile, slotKeysFile string) (*Vocabulary, error) {
	intents, err := LoadFile(intentsFile)
	if err != nil {
		return nil, fmt.Errorf("intents: %w", err)
	}
	slotKeys, err := LoadFile(slotKeysFile)
	if err != nil {
		return nil, fmt.Errorf("slot keys: %w", err)
	}
	return &Vocabulary{Intents: intents, SlotKeys: slotKeys}, nil
}
