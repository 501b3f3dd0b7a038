package tgtext

import "unicode"

// Split breaks text into chunks of at most limit runes, cutting at
// whitespace boundaries where possible. Each token keeps its trailing
// whitespace run, so concatenating the chunks reproduces the input
// exactly. A token wider than the limit is hard-cut at exact limit
// boundaries and never shares a chunk with its neighbours. Empty input
// yields no chunks.
func Split(text string, limit int) []string {
	if text == "" || limit <= 0 {
		return nil
	}

	var chunks []string
	var cur []rune
	for _, unit := range units(text) {
		if len(unit) > limit {
			if len(cur) > 0 {
				chunks = append(chunks, string(cur))
				cur = cur[:0]
			}
			for len(unit) > limit {
				chunks = append(chunks, string(unit[:limit]))
				unit = unit[limit:]
			}
			if len(unit) > 0 {
				chunks = append(chunks, string(unit))
			}
			continue
		}
		if len(cur)+len(unit) > limit {
			chunks = append(chunks, string(cur))
			cur = cur[:0]
		}
		cur = append(cur, unit...)
	}
	if len(cur) > 0 {
		chunks = append(chunks, string(cur))
	}
	return chunks
}

// units splits text into runs of "token plus trailing whitespace".
// Leading whitespace forms a unit of its own.
func units(text string) [][]rune {
	runes := []rune(text)
	var out [][]rune
	for i := 0; i < len(runes); {
		j := i
		for j < len(runes) && !unicode.IsSpace(runes[j]) {
			j++
		}
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		out = append(out, runes[i:j])
		i = j
	}
	return out
}
