package ingest

import (
	"path/filepath"
	"strings"
)

// DefaultChunkSize is the maximum chunk length in runes. Sized so a
// chunk stays well inside the embedding model's input window while
// keeping enough surrounding context to answer a question from.
const DefaultChunkSize = 1500

// ChapterTitle extracts the document title: the first level-1 markdown
// heading, or a title derived from the filename when there is none.
func ChapterTitle(content, relPath string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if rest, ok := strings.CutPrefix(line, "# "); ok {
			if t := strings.TrimSpace(rest); t != "" {
				return t
			}
		}
	}
	return titleFromPath(relPath)
}

// SplitChunks splits markdown content into chunks of at most maxRunes
// runes. Splits land on section boundaries first, then paragraph
// boundaries, so a chunk reads as a coherent piece of the chapter.
// Oversized paragraphs are split on rune boundaries as a last resort.
func SplitChunks(content string, maxRunes int) []string {
	if maxRunes <= 0 {
		maxRunes = DefaultChunkSize
	}

	var chunks []string
	for _, section := range splitSections(content) {
		section = strings.TrimSpace(section)
		if section == "" {
			continue
		}
		if len([]rune(section)) <= maxRunes {
			chunks = append(chunks, section)
			continue
		}
		chunks = append(chunks, packParagraphs(section, maxRunes)...)
	}
	return chunks
}

// splitSections cuts content at level-2 headings. The heading stays
// with the section it opens.
func splitSections(content string) []string {
	lines := strings.Split(content, "\n")

	var sections []string
	var current []string
	for _, line := range lines {
		if strings.HasPrefix(line, "## ") && len(current) > 0 {
			sections = append(sections, strings.Join(current, "\n"))
			current = current[:0]
		}
		current = append(current, line)
	}
	if len(current) > 0 {
		sections = append(sections, strings.Join(current, "\n"))
	}
	return sections
}

// packParagraphs greedily packs consecutive paragraphs into chunks of
// at most maxRunes runes.
func packParagraphs(section string, maxRunes int) []string {
	var chunks []string
	var current strings.Builder
	currentLen := 0

	flush := func() {
		if currentLen > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
			currentLen = 0
		}
	}

	for _, para := range strings.Split(section, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		runes := []rune(para)
		if len(runes) > maxRunes {
			flush()
			for len(runes) > maxRunes {
				chunks = append(chunks, string(runes[:maxRunes]))
				runes = runes[maxRunes:]
			}
			if len(runes) > 0 {
				chunks = append(chunks, string(runes))
			}
			continue
		}
		// +2 accounts for the paragraph separator.
		if currentLen > 0 && currentLen+2+len(runes) > maxRunes {
			flush()
		}
		if currentLen > 0 {
			current.WriteString("\n\n")
			currentLen += 2
		}
		current.WriteString(para)
		currentLen += len(runes)
	}
	flush()
	return chunks
}

// titleFromPath turns "control/pid-tuning.md" into "Pid Tuning".
func titleFromPath(relPath string) string {
	base := filepath.Base(relPath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.NewReplacer("-", " ", "_", " ").Replace(base)

	words := strings.Fields(base)
	for i, w := range words {
		r := []rune(w)
		words[i] = strings.ToUpper(string(r[0])) + string(r[1:])
	}
	if len(words) == 0 {
		return "Untitled"
	}
	return strings.Join(words, " ")
}
