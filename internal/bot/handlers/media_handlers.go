package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/edgard/wabot/internal/command"
	"github.com/edgard/wabot/internal/media"
	"github.com/edgard/wabot/internal/transport"
)

func newVideoHandler(deps HandlerDeps) command.HandlerFunc {
	return func(ctx context.Context, inv *command.Invocation) error {
		log := handlerLog(deps, "yt", inv)
		if len(inv.Args) == 0 {
			reply(ctx, deps, log, inv, "❌ Please provide a YouTube URL.")
			return nil
		}

		react(ctx, deps, log, inv, "⏳")
		dl, err := deps.Media.Video(ctx, inv.Args[0])
		if err != nil {
			var tooLarge *media.TooLargeError
			if errors.As(err, &tooLarge) {
				text := fmt.Sprintf("❌ Video is too large. Max: %dMB.", limitMB(deps))
				if tooLarge.Size > 0 {
					text = fmt.Sprintf("❌ Video is too large (%.2fMB). Max: %dMB.", tooLarge.SizeMB(), limitMB(deps))
				}
				reply(ctx, deps, log, inv, text)
				return nil
			}
			log.ErrorContext(ctx, "Video download failed", "url", inv.Args[0], "error", err)
			reply(ctx, deps, log, inv, "❌ Failed to download video. Please check the URL and try again.")
			react(ctx, deps, log, inv, "❌")
			return nil
		}

		send(ctx, deps, log, inv, transport.Content{Video: &transport.Media{
			Data:     dl.Data,
			MimeType: dl.MimeType,
			Caption:  "Here is your video! 🎥",
		}})
		react(ctx, deps, log, inv, "✅")
		return nil
	}
}

func newAudioHandler(deps HandlerDeps) command.HandlerFunc {
	return func(ctx context.Context, inv *command.Invocation) error {
		log := handlerLog(deps, "song", inv)
		if len(inv.Args) == 0 {
			reply(ctx, deps, log, inv, "❌ Please provide a YouTube URL.")
			return nil
		}

		react(ctx, deps, log, inv, "⏳")
		dl, err := deps.Media.Audio(ctx, inv.Args[0])
		if err != nil {
			if errors.Is(err, media.ErrTooLarge) {
				reply(ctx, deps, log, inv, fmt.Sprintf("❌ Audio is too large. Max: %dMB.", limitMB(deps)))
				return nil
			}
			log.ErrorContext(ctx, "Audio download failed", "url", inv.Args[0], "error", err)
			reply(ctx, deps, log, inv, "❌ Failed to download audio. Please check the URL and try again.")
			react(ctx, deps, log, inv, "❌")
			return nil
		}

		send(ctx, deps, log, inv, transport.Content{Audio: &transport.Media{
			Data:     dl.Data,
			MimeType: dl.MimeType,
			FileName: dl.Title,
		}})
		react(ctx, deps, log, inv, "✅")
		return nil
	}
}

func limitMB(deps HandlerDeps) int64 {
	return deps.Media.MaxBytes() / 1024 / 1024
}
