package ai

import (
	"image"
	"roadwatch/internal/model"
	"sort"
)

const (
	// DefaultMaxMissed is how many frames a track survives without a match.
	DefaultMaxMissed = 3
	// DefaultMinHits is how many matches a track needs before its id is shown.
	DefaultMinHits = 2
	// DefaultTrackIoU is the minimum overlap to continue a track.
	DefaultTrackIoU = 0.4
)

type track struct {
	id      int
	classID int
	box     image.Rectangle
	hits    int
	missed  int
}

// Tracker assigns persistent ids to detections across consecutive frames
// by greedy IoU matching within the same class.
type Tracker struct {
	maxMissed    int
	minHits      int
	iouThreshold float64
	nextID       int
	tracks       []*track
}

func NewTracker() *Tracker {
	return &Tracker{
		maxMissed:    DefaultMaxMissed,
		minHits:      DefaultMinHits,
		iouThreshold: DefaultTrackIoU,
		nextID:       1,
	}
}

// Update matches the frame's detections to live tracks and returns them with TrackID set.
// Detections of tracks that are not yet confirmed keep TrackID 0.
func (t *Tracker) Update(detections []model.Detection) []model.Detection {
	type pair struct {
		track, det int
		iou        float64
	}

	var pairs []pair
	for ti, tr := range t.tracks {
		for di, det := range detections {
			if det.ClassID != tr.classID {
				continue
			}
			if v := IoU(tr.box, det.Rect()); v >= t.iouThreshold {
				pairs = append(pairs, pair{track: ti, det: di, iou: v})
			}
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].iou > pairs[j].iou })

	out := make([]model.Detection, len(detections))
	copy(out, detections)

	trackUsed := make([]bool, len(t.tracks))
	detUsed := make([]bool, len(detections))
	for _, p := range pairs {
		if trackUsed[p.track] || detUsed[p.det] {
			continue
		}
		trackUsed[p.track], detUsed[p.det] = true, true

		tr := t.tracks[p.track]
		tr.box = detections[p.det].Rect()
		tr.hits++
		tr.missed = 0
		if tr.hits >= t.minHits {
			out[p.det].TrackID = tr.id
		}
	}

	alive := t.tracks[:0]
	for i, tr := range t.tracks {
		if !trackUsed[i] {
			tr.missed++
		}
		if tr.missed <= t.maxMissed {
			alive = append(alive, tr)
		}
	}
	t.tracks = alive

	for di, det := range detections {
		if detUsed[di] {
			continue
		}
		tr := &track{id: t.nextID, classID: det.ClassID, box: det.Rect(), hits: 1}
		t.nextID++
		t.tracks = append(t.tracks, tr)
		if tr.hits >= t.minHits {
			out[di].TrackID = tr.id
		}
	}

	return out
}

// Reset drops all tracks.
func (t *Tracker) Reset() {
	t.tracks = nil
	t.nextID = 1
}

// IoU is the intersection over union of two rectangles.
func IoU(a, b image.Rectangle) float64 {
	inter := a.Intersect(b)
	if inter.Empty() {
		return 0
	}
	ia := float64(inter.Dx() * inter.Dy())
	union := float64(a.Dx()*a.Dy()+b.Dx()*b.Dy()) - ia
	if union <= 0 {
		return 0
	}
	return ia / union
}
