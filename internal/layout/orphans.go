package layout

import "github.com/PrasadTelasula/kaptivan-sub000/internal/models"

// placeOrphans lays nodes the ranking did not place on a fixed-column grid below
// the layered drawing, in the given order. Cells are sized by the largest orphan
// footprint so cards never overlap. It returns the width of the grid and the total
// height of the drawing including the grid.
func placeOrphans(orphans []int, sizes []Size, opts Options, mainHeight float64, hasMain bool, pos []models.Position) (float64, float64) {
	startY := 0.0
	if hasMain {
		startY = mainHeight + opts.OrphanSpacing
	}

	var cellW, cellH float64
	for _, v := range orphans {
		if sizes[v].Width > cellW {
			cellW = sizes[v].Width
		}
		if sizes[v].Height > cellH {
			cellH = sizes[v].Height
		}
	}
	cellW += opts.OrphanSpacing
	cellH += opts.OrphanSpacing

	cols := opts.OrphanColumns
	if len(orphans) < cols {
		cols = len(orphans)
	}
	for idx, v := range orphans {
		col, row := idx%opts.OrphanColumns, idx/opts.OrphanColumns
		pos[v] = models.Position{
			X: float64(col) * cellW,
			Y: startY + float64(row)*cellH,
		}
	}

	rows := (len(orphans) + opts.OrphanColumns - 1) / opts.OrphanColumns
	width := float64(cols)*cellW - opts.OrphanSpacing
	height := startY + float64(rows)*cellH - opts.OrphanSpacing
	return width, height
}
