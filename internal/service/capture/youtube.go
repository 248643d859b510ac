package capture

import (
	"context"
	"errors"
	"fmt"

	"github.com/kkdai/youtube/v2"
)

// ErrNoStream is returned when a video offers no mp4 stream.
var ErrNoStream = errors.New("no mp4 stream available")

// YouTubeResolver finds a direct mp4 stream URL for a YouTube video.
type YouTubeResolver struct {
	client  youtube.Client
	quality string
}

func NewYouTubeResolver(quality string) *YouTubeResolver {
	return &YouTubeResolver{quality: quality}
}

// Resolve prefers the configured quality and falls back to the first mp4 format.
func (r *YouTubeResolver) Resolve(ctx context.Context, rawURL string) (string, error) {
	video, err := r.client.GetVideoContext(ctx, rawURL)
	if err != nil {
		return "", fmt.Errorf("failed to fetch video metadata: %w", err)
	}

	formats := video.Formats.Type("video/mp4")
	if len(formats) == 0 {
		return "", ErrNoStream
	}
	format := formats.FindByQuality(r.quality)
	if format == nil {
		format = &formats[0]
	}

	streamURL, err := r.client.GetStreamURLContext(ctx, video, format)
	if err != nil {
		return "", fmt.Errorf("failed to resolve stream url: %w", err)
	}
	return streamURL, nil
}
