package core

import "strings"

// Entry is a parsed free-text spending line before a category is chosen.
type Entry struct {
	Content string
	Amount  Yen
}

// ParseEntry reads "content\namount" or "content amount". The newline form
// is tried first; when its second line is not an amount the whole text falls
// back to the whitespace form, where the last field is the amount.
func ParseEntry(text string) (Entry, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Entry{}, ErrUnparseableEntry
	}

	if lines := nonEmptyLines(text); len(lines) >= 2 {
		e, err := buildEntry(lines[0], lines[1])
		if err != ErrUnparseableEntry {
			return e, err
		}
	}

	fields := strings.Fields(text)
	if len(fields) < 2 {
		return Entry{}, ErrUnparseableEntry
	}
	return buildEntry(strings.Join(fields[:len(fields)-1], " "), fields[len(fields)-1])
}

func buildEntry(content, amount string) (Entry, error) {
	content = strings.TrimSpace(content)
	if err := ValidateContent(content); err != nil {
		if err == ErrEmptyContent {
			return Entry{}, ErrUnparseableEntry
		}
		return Entry{}, err
	}
	yen, err := ParseAmount(amount)
	if err != nil {
		return Entry{}, err
	}
	return Entry{Content: content, Amount: yen}, nil
}

func nonEmptyLines(text string) []string {
	var lines []string
	for _, l := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}
