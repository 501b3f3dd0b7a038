package tgtext

// PackRows groups buttons into rows whose combined label width stays
// within budget runes. Packing is greedy left to right: a button joins
// the current row unless it would push the row over budget, in which
// case it starts a new one. A single button wider than the whole
// budget still gets a row of its own.
func PackRows[T any](buttons []T, width func(T) int, budget int) [][]T {
	var rows [][]T
	var row []T
	used := 0
	for _, b := range buttons {
		w := width(b)
		if len(row) > 0 && used+w > budget {
			rows = append(rows, row)
			row = nil
			used = 0
		}
		row = append(row, b)
		used += w
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	return rows
}

// AutoLayout repacks a keyboard only when the caller clearly did not
// lay it out themselves: exactly one row holding more than one button.
// Anything else is an explicit layout and passes through untouched.
func AutoLayout[T any](rows [][]T, width func(T) int, budget int) [][]T {
	if len(rows) != 1 || len(rows[0]) < 2 {
		return rows
	}
	return PackRows(rows[0], width, budget)
}
