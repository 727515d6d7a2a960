// Package main is an interactive desktop viewer for scattergl datasets.
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"log"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"github.com/atlasmap-sc/scattergl/internal/scatter"
)

// wheelStep converts one wheel notch into the controller's delta scale.
const wheelStep = 53.0

type game struct {
	plot          *scatter.Plot
	width, height int

	frame      *image.RGBA
	lockedDesc string
}

func (g *game) Update() error {
	c := g.plot.Controller()
	x, y := ebiten.CursorPosition()
	fx, fy := float64(x), float64(y)

	if inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonLeft) {
		c.PointerDown(fx, fy)
	}
	if ebiten.IsMouseButtonPressed(ebiten.MouseButtonLeft) {
		c.PointerMove(fx, fy)
	}
	if inpututil.IsMouseButtonJustReleased(ebiten.MouseButtonLeft) {
		c.PointerUp(fx, fy)
	}

	if _, wy := ebiten.Wheel(); wy != 0 {
		// Ebiten reports scroll-up as positive; the controller follows
		// wheel-event convention where positive zooms out.
		c.Wheel(fx, fy, -wy*wheelStep)
	}

	if inpututil.IsKeyJustPressed(ebiten.KeyF) {
		g.plot.FitToExtent()
	}

	g.plot.Update(context.Background())
	g.reportLocked()
	return nil
}

// reportLocked logs the locked point when it changes, so a click on a
// point surfaces its row data in the terminal.
func (g *game) reportLocked() {
	desc := ""
	if hit, ok := g.plot.Locked(); ok {
		desc = fmt.Sprintf("tile %s row %d: %v", hit.Key, hit.Index, hit.Row)
	}
	if desc != g.lockedDesc {
		g.lockedDesc = desc
		if desc != "" {
			log.Printf("selected %s", desc)
		} else {
			log.Printf("selection cleared")
		}
	}
}

func (g *game) Draw(screen *ebiten.Image) {
	if g.frame == nil || g.plot.Dirty() {
		g.frame = g.plot.Frame()
	}
	screen.WritePixels(g.frame.Pix)
}

func (g *game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return g.width, g.height
}

func main() {
	baseURL := flag.String("url", "", "Tile endpoint base URL")
	column := flag.String("column", "", "Column to color by on open")
	width := flag.Int("width", 1024, "Window width")
	height := flag.Int("height", 768, "Window height")
	pointSize := flag.Float64("point-size", 1.5, "Point radius in pixels")
	colormapName := flag.String("colormap", "viridis", "Numeric colormap name")
	cacheMB := flag.Int("cache-mb", 256, "Tile byte cache size in MB")
	flag.Parse()

	if *baseURL == "" {
		log.Fatal("missing required flag: -url")
	}

	plot, err := scatter.Open(context.Background(), scatter.Config{
		BaseURL:       *baseURL,
		DefaultColumn: *column,
		Width:         *width,
		Height:        *height,
		PointSize:     *pointSize,
		Colormap:      *colormapName,
		TileCacheMB:   *cacheMB,
	})
	if err != nil {
		log.Fatalf("Failed to open dataset: %v", err)
	}
	defer plot.Close()

	ebiten.SetWindowSize(*width, *height)
	ebiten.SetWindowTitle("scattergl")

	g := &game{plot: plot, width: *width, height: *height}
	if err := ebiten.RunGame(g); err != nil {
		log.Fatalf("Viewer exited: %v", err)
	}
}
