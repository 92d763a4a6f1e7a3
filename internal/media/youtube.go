// Package media downloads YouTube videos and audio tracks into memory,
// refusing anything larger than the configured limit.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/kkdai/youtube/v2"
)

var (
	// ErrInvalidURL is returned for input that names no video.
	ErrInvalidURL = errors.New("not a YouTube URL")
	// ErrNoFormat is returned when the video offers no usable stream.
	ErrNoFormat = errors.New("no suitable stream format")
	// ErrTooLarge matches every *TooLargeError.
	ErrTooLarge = errors.New("media exceeds size limit")
)

// TooLargeError reports a stream over the limit. Size is 0 when the stream
// length was unknown up front and the limit was hit while reading.
type TooLargeError struct {
	Size  int64
	Limit int64
}

func (e *TooLargeError) Error() string {
	if e.Size == 0 {
		return fmt.Sprintf("media exceeds %d bytes", e.Limit)
	}
	return fmt.Sprintf("media is %d bytes, limit is %d", e.Size, e.Limit)
}

func (e *TooLargeError) Is(target error) bool { return target == ErrTooLarge }

// SizeMB returns Size in megabytes.
func (e *TooLargeError) SizeMB() float64 {
	return float64(e.Size) / 1024 / 1024
}

// Download is a fetched stream.
type Download struct {
	Title    string
	Data     []byte
	MimeType string
}

// Downloader fetches streams with a size ceiling.
type Downloader struct {
	client   *youtube.Client
	maxBytes int64
	logger   *slog.Logger
}

// NewDownloader returns a downloader limited to maxBytes per stream.
func NewDownloader(maxBytes int64, logger *slog.Logger) *Downloader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Downloader{
		client:   &youtube.Client{},
		maxBytes: maxBytes,
		logger:   logger.With("component", "media"),
	}
}

// MaxBytes returns the per-stream limit.
func (d *Downloader) MaxBytes() int64 { return d.maxBytes }

// Video downloads the best progressive MP4 stream (video with audio) that
// fits the limit.
func (d *Downloader) Video(ctx context.Context, url string) (*Download, error) {
	return d.fetch(ctx, url, func(formats youtube.FormatList) youtube.FormatList {
		return formats.WithAudioChannels().Type("video/mp4")
	}, "video/mp4")
}

// Audio downloads the best audio-only stream that fits the limit, preferring
// MP4 audio for playback compatibility.
func (d *Downloader) Audio(ctx context.Context, url string) (*Download, error) {
	return d.fetch(ctx, url, func(formats youtube.FormatList) youtube.FormatList {
		if mp4 := formats.Type("audio/mp4"); len(mp4) > 0 {
			return mp4
		}
		return formats.Type("audio")
	}, "audio/mp4")
}

func (d *Downloader) fetch(ctx context.Context, url string, filter func(youtube.FormatList) youtube.FormatList, fallbackMime string) (*Download, error) {
	url = strings.TrimSpace(url)
	if !strings.Contains(url, "youtu") {
		return nil, ErrInvalidURL
	}
	if _, err := youtube.ExtractVideoID(url); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}

	video, err := d.client.GetVideoContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch video info: %w", err)
	}

	format, err := selectFormat(filter(video.Formats), d.maxBytes)
	if err != nil {
		return nil, err
	}

	stream, size, err := d.client.GetStreamContext(ctx, video, format)
	if err != nil {
		return nil, fmt.Errorf("failed to open stream: %w", err)
	}
	defer stream.Close()

	if size > d.maxBytes {
		return nil, &TooLargeError{Size: size, Limit: d.maxBytes}
	}

	data, err := readLimited(stream, d.maxBytes)
	if err != nil {
		return nil, err
	}

	mime := format.MimeType
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	if mime == "" {
		mime = fallbackMime
	}

	d.logger.DebugContext(ctx, "Downloaded stream", "video_id", video.ID, "itag", format.ItagNo, "bytes", len(data))
	return &Download{Title: video.Title, Data: data, MimeType: mime}, nil
}

// selectFormat picks the best format whose advertised length fits maxBytes.
// Formats with unknown length are accepted and limited while reading.
func selectFormat(formats youtube.FormatList, maxBytes int64) (*youtube.Format, error) {
	if len(formats) == 0 {
		return nil, ErrNoFormat
	}
	sorted := append(youtube.FormatList(nil), formats...)
	sorted.Sort()

	smallest := int64(-1)
	for i := range sorted {
		size := sorted[i].ContentLength
		if size <= maxBytes {
			return &sorted[i], nil
		}
		if smallest < 0 || size < smallest {
			smallest = size
		}
	}
	return nil, &TooLargeError{Size: smallest, Limit: maxBytes}
}

func readLimited(r io.Reader, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read stream: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, &TooLargeError{Limit: maxBytes}
	}
	return data, nil
}
