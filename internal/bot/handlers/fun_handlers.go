package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/edgard/wabot/internal/command"
	"github.com/edgard/wabot/internal/content"
	"github.com/edgard/wabot/internal/transport"
)

const maxLyricsChars = 4000

func newJokeHandler(deps HandlerDeps) command.HandlerFunc {
	return func(ctx context.Context, inv *command.Invocation) error {
		log := handlerLog(deps, "joke", inv)
		joke, err := deps.Content.Joke(ctx)
		if err != nil {
			log.ErrorContext(ctx, "Failed to fetch joke", "error", err)
			reply(ctx, deps, log, inv, "❌ Failed to fetch joke.")
			return nil
		}
		reply(ctx, deps, log, inv, joke)
		return nil
	}
}

func newMemeHandler(deps HandlerDeps) command.HandlerFunc {
	return func(ctx context.Context, inv *command.Invocation) error {
		log := handlerLog(deps, "meme", inv)
		meme, err := deps.Content.Meme(ctx)
		if err != nil {
			log.ErrorContext(ctx, "Failed to fetch meme", "error", err)
			reply(ctx, deps, log, inv, "❌ Failed to fetch meme.")
			return nil
		}
		send(ctx, deps, log, inv, transport.Content{Image: &transport.Media{
			Data:     meme.Data,
			MimeType: meme.MimeType,
			Caption:  meme.Title,
		}})
		return nil
	}
}

func newQuoteHandler(deps HandlerDeps) command.HandlerFunc {
	return func(ctx context.Context, inv *command.Invocation) error {
		log := handlerLog(deps, "anime", inv)
		q, err := deps.Content.Quote(ctx)
		if err != nil {
			log.ErrorContext(ctx, "Failed to fetch quote", "error", err)
			reply(ctx, deps, log, inv, "❌ Failed to fetch quote.")
			return nil
		}
		reply(ctx, deps, log, inv, q.Format())
		return nil
	}
}

func newLyricsHandler(deps HandlerDeps) command.HandlerFunc {
	return func(ctx context.Context, inv *command.Invocation) error {
		log := handlerLog(deps, "lyrics", inv)

		input := inv.ArgString()
		if input == "" {
			reply(ctx, deps, log, inv, "❌ Provide a song name.")
			return nil
		}
		artist, song, ok := content.SplitArtistSong(input)
		if !ok {
			reply(ctx, deps, log, inv, fmt.Sprintf("❌ Please use format: %sl Artist - Song Name", inv.Prefix))
			return nil
		}

		lyrics, err := deps.Content.Lyrics(ctx, artist, song)
		switch {
		case errors.Is(err, content.ErrNotFound):
			reply(ctx, deps, log, inv, "❌ Lyrics not found.")
			return nil
		case err != nil:
			log.ErrorContext(ctx, "Failed to fetch lyrics", "artist", artist, "song", song, "error", err)
			reply(ctx, deps, log, inv, "❌ Failed to fetch lyrics.")
			return nil
		}

		if r := []rune(lyrics); len(r) > maxLyricsChars {
			lyrics = string(r[:maxLyricsChars])
		}
		reply(ctx, deps, log, inv, fmt.Sprintf("📜 *%s - %s*\n\n%s", artist, song, lyrics))
		return nil
	}
}

func newSpeechHandler(deps HandlerDeps) command.HandlerFunc {
	return func(ctx context.Context, inv *command.Invocation) error {
		log := handlerLog(deps, "tts", inv)

		text := inv.ArgString()
		if text == "" {
			reply(ctx, deps, log, inv, "❌ Provide text to speak.")
			return nil
		}

		audio, err := deps.Content.Speech(ctx, text)
		switch {
		case errors.Is(err, content.ErrBadInput):
			reply(ctx, deps, log, inv, "❌ Text is too long (max 200 characters).")
			return nil
		case err != nil:
			log.ErrorContext(ctx, "Failed to generate speech", "error", err)
			reply(ctx, deps, log, inv, "❌ Failed to generate audio.")
			return nil
		}

		send(ctx, deps, log, inv, transport.Content{Audio: &transport.Media{
			Data:     audio,
			MimeType: "audio/mpeg",
		}})
		return nil
	}
}
