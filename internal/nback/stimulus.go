package nback

// NoStimulus is the value before the first tick of a session.
const NoStimulus = -1

// GridColumns is the side of the square visual grid.
const GridColumns = 3

// LetterFor maps 1..9 to "A".."I". Anything else is spoken as "?".
func LetterFor(value int) string {
	if value < 1 || value > 9 {
		return "?"
	}
	return string(rune('A' + value - 1))
}

// GridPosition is a cell of the visual grid, zero based.
type GridPosition struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// CellFor maps a stimulus to the grid cell it lights, row-major.
func CellFor(value int) (GridPosition, bool) {
	if value < 1 || value > GridColumns*GridColumns {
		return GridPosition{}, false
	}
	return GridPosition{
		Row: (value - 1) / GridColumns,
		Col: (value - 1) % GridColumns,
	}, true
}
