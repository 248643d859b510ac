package ai

import (
	"fmt"
	"image"
	"image/color"
	"roadwatch/internal/model"

	"gocv.io/x/gocv"
)

var palette = []color.RGBA{
	{0xFF, 0x38, 0x38, 0}, {0xFF, 0x9D, 0x97, 0}, {0xFF, 0x70, 0x1F, 0}, {0xFF, 0xB2, 0x1D, 0},
	{0xCF, 0xD2, 0x31, 0}, {0x48, 0xF9, 0x0A, 0}, {0x92, 0xCC, 0x17, 0}, {0x3D, 0xDB, 0x86, 0},
	{0x1A, 0x93, 0x34, 0}, {0x00, 0xD4, 0xBB, 0}, {0x2C, 0x99, 0xA8, 0}, {0x00, 0xC2, 0xFF, 0},
	{0x34, 0x45, 0x93, 0}, {0x64, 0x73, 0xFF, 0}, {0x00, 0x18, 0xEC, 0}, {0x84, 0x38, 0xFF, 0},
	{0x52, 0x00, 0x85, 0}, {0xCB, 0x38, 0xFF, 0}, {0xFF, 0x95, 0xC8, 0}, {0xFF, 0x37, 0xC7, 0},
}

var white = color.RGBA{R: 255, G: 255, B: 255, A: 0}

const (
	boxThickness = 2
	fontScale    = 0.5
)

// ColorFor returns the palette color of a class.
func ColorFor(classID int) color.RGBA {
	if classID < 0 {
		classID = -classID
	}
	return palette[classID%len(palette)]
}

// Caption is the text drawn above a detection box.
func Caption(d model.Detection) string {
	if d.TrackID > 0 {
		return fmt.Sprintf("#%d %s %.2f", d.TrackID, d.Label, d.Confidence)
	}
	return fmt.Sprintf("%s %.2f", d.Label, d.Confidence)
}

// Plot draws boxes and captions for each detection onto the frame.
func Plot(frame *gocv.Mat, detections []model.Detection) error {
	for _, det := range detections {
		c := ColorFor(det.ClassID)
		rect := det.Rect()
		if err := gocv.Rectangle(frame, rect, c, boxThickness); err != nil {
			return fmt.Errorf("failed to draw rectangle: %v", err)
		}

		label := Caption(det)
		size := gocv.GetTextSize(label, gocv.FontHersheySimplex, fontScale, 1)
		top := rect.Min.Y - size.Y - 6
		if top < 0 {
			top = rect.Min.Y
		}
		background := image.Rect(rect.Min.X, top, rect.Min.X+size.X+4, top+size.Y+6)
		if err := gocv.Rectangle(frame, background, c, -1); err != nil {
			return fmt.Errorf("failed to draw label background: %v", err)
		}
		if err := gocv.PutText(frame, label, image.Pt(background.Min.X+2, background.Max.Y-4), gocv.FontHersheySimplex, fontScale, white, 1); err != nil {
			return fmt.Errorf("failed to draw text: %v", err)
		}
	}
	return nil
}
