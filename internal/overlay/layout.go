package overlay

import (
	"strings"
	"unicode/utf8"
)

// Style holds the layout tunables for burned-in overlay text. The values
// are deployment configuration, not code constants, because historical
// renditions of the wrapping math disagreed; see config.OverlayStyle.
type Style struct {
	// FontDivisor scales the font from the frame's shorter axis.
	FontDivisor int
	// FontMin and FontMax clamp the computed font size, in points.
	FontMin int
	FontMax int
	// CharWidthRatio estimates average glyph width as a fraction of the
	// font size.
	CharWidthRatio float64
	// LineHeightRatio sets the vertical advance between stacked lines as a
	// fraction of the font size.
	LineHeightRatio float64
	// SafeWidthRatio and SafeHeightRatio size the text safe zone as
	// fractions of the frame width and height.
	SafeWidthRatio  float64
	SafeHeightRatio float64
	// MarginRatio offsets the safe zone from the top-left corner.
	MarginRatio float64
}

// DefaultStyle returns the production defaults for overlay layout.
func DefaultStyle() Style {
	return Style{
		FontDivisor:     15,
		FontMin:         20,
		FontMax:         72,
		CharWidthRatio:  0.6,
		LineHeightRatio: 1.2,
		SafeWidthRatio:  0.9,
		SafeHeightRatio: 0.4,
		MarginRatio:     0.05,
	}
}

// Layout is a fully computed overlay: wrapped lines plus the geometry the
// renderer needs to stack them in the top-left safe zone.
type Layout struct {
	Lines      []string
	FontSize   int
	LineHeight int
	MarginX    int
	MarginY    int
}

// FontSize picks the overlay font size from the frame geometry: the shorter
// axis divided by FontDivisor, clamped to [FontMin, FontMax]. Vertical
// frames scale from their width, horizontal frames from their height.
func (s Style) FontSize(width, height int) int {
	axis := width
	if height < width {
		axis = height
	}

	size := axis / s.FontDivisor
	if size < s.FontMin {
		size = s.FontMin
	}
	if size > s.FontMax {
		size = s.FontMax
	}
	return size
}

// Compute wraps text into the safe zone of a width x height frame and
// returns the drawable layout. Unknown frame dimensions fall back to a
// portrait 1080x1920 assumption.
func (s Style) Compute(width, height int, text string) Layout {
	if width <= 0 || height <= 0 {
		width, height = 1080, 1920
	}

	font := s.FontSize(width, height)
	lineHeight := int(float64(font) * s.LineHeightRatio)

	charsPerLine := int(float64(width) * s.SafeWidthRatio / (float64(font) * s.CharWidthRatio))
	if charsPerLine < 1 {
		charsPerLine = 1
	}
	maxLines := int(float64(height) * s.SafeHeightRatio / float64(lineHeight))
	if maxLines < 1 {
		maxLines = 1
	}

	return Layout{
		Lines:      WrapText(text, charsPerLine, maxLines),
		FontSize:   font,
		LineHeight: lineHeight,
		MarginX:    int(float64(width) * s.MarginRatio),
		MarginY:    int(float64(height) * s.MarginRatio),
	}
}

// WrapText splits text into at most maxLines lines of at most charsPerLine
// characters. Explicit newlines are honored first, then words wrap greedily;
// words longer than a line are hard-split. Overflowing lines are dropped and
// the last kept line is ellipsized.
func WrapText(text string, charsPerLine, maxLines int) []string {
	if charsPerLine < 1 {
		charsPerLine = 1
	}

	var lines []string
	for _, para := range strings.Split(text, "\n") {
		lines = append(lines, wrapParagraph(para, charsPerLine)...)
	}

	if maxLines >= 1 && len(lines) > maxLines {
		lines = lines[:maxLines]
		lines[maxLines-1] = ellipsize(lines[maxLines-1], charsPerLine)
	}
	return lines
}

// wrapParagraph greedily packs words into lines of at most width runes.
func wrapParagraph(para string, width int) []string {
	var lines []string
	current := ""
	for _, word := range strings.Fields(para) {
		for utf8.RuneCountInString(word) > width {
			if current != "" {
				lines = append(lines, current)
				current = ""
			}
			runes := []rune(word)
			lines = append(lines, string(runes[:width]))
			word = string(runes[width:])
		}
		if word == "" {
			continue
		}

		switch {
		case current == "":
			current = word
		case utf8.RuneCountInString(current)+1+utf8.RuneCountInString(word) <= width:
			current += " " + word
		default:
			lines = append(lines, current)
			current = word
		}
	}
	if current != "" {
		lines = append(lines, current)
	}
	return lines
}

// ellipsize trims s so that it plus a trailing "..." fits in width runes.
func ellipsize(s string, width int) string {
	const marker = "..."
	keep := width - len(marker)
	if keep < 1 {
		keep = 1
	}

	runes := []rune(s)
	if len(runes) > keep {
		runes = runes[:keep]
	}
	return strings.TrimRight(string(runes), " ") + marker
}
