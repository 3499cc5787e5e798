package report

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

const (
	fontSize   = 14
	cellPadX   = 12
	rowHeight  = 26
	titleSpace = 34
	margin     = 16
)

var (
	faceRegular font.Face
	faceBold    font.Face
	fontOnce    sync.Once
	fontErr     error
)

func loadFonts() {
	fontOnce.Do(func() {
		faceRegular, fontErr = newFace(goregular.TTF, "Go Regular")
		if fontErr != nil {
			return
		}
		faceBold, fontErr = newFace(gobold.TTF, "Go Bold")
	})
}

func newFace(ttf []byte, name string) (font.Face, error) {
	f, err := opentype.Parse(ttf)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    fontSize,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s face: %w", name, err)
	}
	return face, nil
}

var (
	background = color.RGBA{255, 255, 255, 255}
	headerFill = color.RGBA{40, 60, 90, 255}
	stripeFill = color.RGBA{238, 242, 247, 255}
	textDark   = color.RGBA{30, 30, 30, 255}
	textLight  = color.RGBA{255, 255, 255, 255}
)

// Render draws the table as a striped grid with a bold header row and bold
// row names.
func Render(t Table) (*image.RGBA, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	loadFonts()
	if fontErr != nil {
		return nil, fmt.Errorf("load fonts: %w", fontErr)
	}

	widths := make([]int, len(t.Header))
	for j := range t.Header {
		for i, cell := range t.Column(j) {
			face := faceRegular
			if i == 0 || j == 0 {
				face = faceBold
			}
			if w := font.MeasureString(face, cell).Ceil() + 2*cellPadX; w > widths[j] {
				widths[j] = w
			}
		}
	}
	tableW := 0
	for _, w := range widths {
		tableW += w
	}

	top := margin
	if t.Title != "" {
		top += titleSpace
	}
	width := tableW + 2*margin
	if tw := font.MeasureString(faceBold, t.Title).Ceil() + 2*margin; tw > width {
		width = tw
	}
	height := top + rowHeight*(len(t.Rows)+1) + margin

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)

	if t.Title != "" {
		drawText(img, t.Title, margin, margin+fontSize+4, textDark, faceBold)
	}

	fillRow(img, margin, top, tableW, headerFill)
	drawRow(img, t.Header, widths, top, textLight, faceBold, faceBold)
	for i, row := range t.Rows {
		y := top + rowHeight*(i+1)
		if i%2 == 1 {
			fillRow(img, margin, y, tableW, stripeFill)
		}
		drawRow(img, row, widths, y, textDark, faceBold, faceRegular)
	}
	return img, nil
}

// WritePNG renders the table and encodes it as PNG.
func WritePNG(w io.Writer, t Table) error {
	img, err := Render(t)
	if err != nil {
		return err
	}
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("encode table image: %w", err)
	}
	return nil
}

func fillRow(img *image.RGBA, x, y, w int, c color.Color) {
	r := image.Rect(x, y, x+w, y+rowHeight)
	draw.Draw(img, r, image.NewUniform(c), image.Point{}, draw.Src)
}

func drawRow(img *image.RGBA, cells []string, widths []int, y int, col color.Color, first, rest font.Face) {
	x := margin
	baseline := y + rowHeight/2 + fontSize/2 - 2
	for j, cell := range cells {
		face := rest
		if j == 0 {
			face = first
		}
		drawText(img, cell, x+cellPadX, baseline, col, face)
		x += widths[j]
	}
}

// drawText draws text with its baseline at y.
func drawText(img *image.RGBA, text string, x, y int, col color.Color, face font.Face) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}
