package chunker

import "strings"

var cellNewline = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// FlattenTable renders a grid as newline-joined cells in row-major order,
// header row first. Column structure is not preserved.
func FlattenTable(rows [][]string) string {
	var cells []string
	for _, row := range rows {
		for _, cell := range row {
			cells = append(cells, strings.TrimSpace(cellNewline.Replace(cell)))
		}
	}
	return strings.Join(cells, "\n")
}
