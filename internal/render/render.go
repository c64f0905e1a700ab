// Package render draws a game board as a PNG image.
package render

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"image"
	"image/color"
	imagedraw "image/draw"
	"image/png"
	"strings"
	"sync"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/park285/xo-kenar-bot/internal/domain"
)

//go:embed assets/*.svg
var markFiles embed.FS

const (
	cellSize   = 120
	gridLine   = 6
	margin     = 24
	headerSize = 36
	markInset  = 14
)

var (
	backgroundColor = color.RGBA{R: 250, G: 248, B: 242, A: 255}
	lineColor       = color.RGBA{R: 52, G: 58, B: 76, A: 255}
	headerColor     = color.RGBA{R: 52, G: 58, B: 76, A: 255}
)

// Renderer draws boards. The zero value is ready to use.
type Renderer struct{}

func New() *Renderer { return &Renderer{} }

// PNG renders g with a one-line header such as "Game 12 · IN_PROGRESS".
func (r *Renderer) PNG(ctx context.Context, g *domain.Game, header string) ([]byte, error) {
	if g == nil {
		return nil, fmt.Errorf("game is nil")
	}
	boardPx := cellSize*3 + gridLine*2
	width := boardPx + margin*2
	height := boardPx + margin*2 + headerSize
	origin := image.Pt(margin, margin+headerSize)

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	imagedraw.Draw(img, img.Bounds(), image.NewUniform(backgroundColor), image.Point{}, imagedraw.Src)
	drawHeader(img, image.Rect(0, 0, width, margin+headerSize), header)
	drawGrid(img, origin)

	for pos, mark := range g.Board {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if mark == domain.Empty {
			continue
		}
		markImg, err := markImage(mark, cellSize-markInset*2)
		if err != nil {
			return nil, err
		}
		cell := cellRect(pos, origin).Inset(markInset)
		imagedraw.Draw(img, cell, markImg, image.Point{}, imagedraw.Over)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func cellRect(pos int, origin image.Point) image.Rectangle {
	row, col := pos/3, pos%3
	x := origin.X + col*(cellSize+gridLine)
	y := origin.Y + row*(cellSize+gridLine)
	return image.Rect(x, y, x+cellSize, y+cellSize)
}

func drawGrid(img *image.RGBA, origin image.Point) {
	boardPx := cellSize*3 + gridLine*2
	fill := image.NewUniform(lineColor)
	for i := 1; i < 3; i++ {
		off := i*cellSize + (i-1)*gridLine
		v := image.Rect(origin.X+off, origin.Y, origin.X+off+gridLine, origin.Y+boardPx)
		h := image.Rect(origin.X, origin.Y+off, origin.X+boardPx, origin.Y+off+gridLine)
		imagedraw.Draw(img, v, fill, image.Point{}, imagedraw.Src)
		imagedraw.Draw(img, h, fill, image.Point{}, imagedraw.Src)
	}
}

func drawHeader(img *image.RGBA, rect image.Rectangle, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	face := basicfont.Face7x13
	d := &font.Drawer{Dst: img, Src: image.NewUniform(headerColor), Face: face}
	width := d.MeasureString(text).Round()
	x := rect.Min.X + (rect.Dx()-width)/2
	if x < rect.Min.X {
		x = rect.Min.X
	}
	m := face.Metrics()
	baseline := rect.Min.Y + (rect.Dy()+m.Ascent.Ceil()-m.Descent.Ceil())/2
	d.Dot = fixed.P(x, baseline)
	d.DrawString(text)
}

type markKey struct {
	mark domain.Mark
	size int
}

var (
	markCache   = map[markKey]image.Image{}
	markCacheMu sync.RWMutex
)

func markImage(mark domain.Mark, size int) (image.Image, error) {
	key := markKey{mark: mark, size: size}
	markCacheMu.RLock()
	if img, ok := markCache[key]; ok {
		markCacheMu.RUnlock()
		return img, nil
	}
	markCacheMu.RUnlock()

	name := "assets/x.svg"
	if mark == domain.Bot {
		name = "assets/o.svg"
	}
	data, err := markFiles.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read mark asset %s: %w", name, err)
	}
	icon, err := oksvg.ReadIconStream(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse mark svg: %w", err)
	}
	icon.SetTarget(0, 0, float64(size), float64(size))

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	scanner := rasterx.NewScannerGV(size, size, img, img.Bounds())
	raster := rasterx.NewDasher(size, size, scanner)
	icon.Draw(raster, 1.0)

	markCacheMu.Lock()
	markCache[key] = img
	markCacheMu.Unlock()
	return img, nil
}
