package oracle

import "github.com/chewxy/math32"

// CellRatios turns a canvas readback into one overdraw ratio per view: the
// number of fragments drawn in the cell divided by the number of pixels that
// received at least one. A pixel holding p received round(p/level)
// fragments. Cells nothing was drawn into report 0.
func CellRatios(pixels []byte, g Grid, level, views int) []float32 {
	width, _ := g.Size()
	inv := 1 / float32(level)

	ratios := make([]float32, views)
	for v := range ratios {
		col, row := g.Cell(v)
		x0, y0 := col*g.CellWidth, row*g.CellHeight

		var drawn, shown int
		for y := y0; y < y0+g.CellHeight; y++ {
			line := pixels[y*width+x0 : y*width+x0+g.CellWidth]
			for _, p := range line {
				if p == 0 {
					continue
				}
				drawn += int(math32.Round(float32(p) * inv))
				shown++
			}
		}
		if shown > 0 {
			ratios[v] = float32(drawn) / float32(shown)
		}
	}
	return ratios
}
