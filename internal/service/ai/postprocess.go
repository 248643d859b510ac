package ai

import "image"

// classOffset separates boxes of different classes so a single NMS pass
// only suppresses overlaps within the same class.
const classOffset = 7680

type candidate struct {
	box     image.Rectangle
	score   float32
	classID int
}

// decodeOutput turns a YOLOv8 head of shape [1, 4+classes, anchors] into candidates.
// Heads exported as [1, anchors, 4+classes] are detected by their proportions.
func decodeOutput(data []float32, dim1, dim2 int, scale, threshold float32) []candidate {
	channels, anchors := dim1, dim2
	transposed := false
	if dim1 > dim2 {
		channels, anchors = dim2, dim1
		transposed = true
	}
	if channels <= 4 || len(data) < channels*anchors {
		return nil
	}

	at := func(ch, a int) float32 {
		if transposed {
			return data[a*channels+ch]
		}
		return data[ch*anchors+a]
	}

	var out []candidate
	for a := 0; a < anchors; a++ {
		bestClass, bestScore := -1, float32(0)
		for ch := 4; ch < channels; ch++ {
			if s := at(ch, a); s > bestScore {
				bestClass, bestScore = ch-4, s
			}
		}
		if bestClass < 0 || bestScore < threshold {
			continue
		}

		cx, cy, w, h := at(0, a), at(1, a), at(2, a), at(3, a)
		out = append(out, candidate{
			box: image.Rect(
				int((cx-w/2)*scale),
				int((cy-h/2)*scale),
				int((cx+w/2)*scale),
				int((cy+h/2)*scale),
			),
			score:   bestScore,
			classID: bestClass,
		})
	}
	return out
}

func offsetByClass(r image.Rectangle, classID int) image.Rectangle {
	return r.Add(image.Pt(classID*classOffset, classID*classOffset))
}
