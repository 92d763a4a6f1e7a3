package handlers

import (
	"fmt"
	"time"

	"github.com/edgard/wabot/internal/command"
	"github.com/edgard/wabot/internal/database"
)

// Descriptors returns the static command table. catalog backs the help and
// diag commands and is read only at invocation time.
func Descriptors(deps HandlerDeps, catalog Catalog) []command.Descriptor {
	const (
		general    = "general"
		aiCategory = "ai"
		fun        = "fun"
		mediaCat   = "media"
		moderation = "moderation"
		settings   = "settings"
		owner      = "owner"
	)
	sec := func(n int) time.Duration { return time.Duration(n) * time.Second }

	return []command.Descriptor{
		// Public
		{
			Name: "menu", Aliases: []string{"help"}, Tier: command.TierPublic, Cooldown: sec(5),
			Category: general, Description: "Show command list",
			Handler: newHelpHandler(deps, catalog),
		},
		{
			Name: "ping", Tier: command.TierPublic, Cooldown: sec(5),
			Category: general, Description: "Check that the bot is alive",
			Handler: newPingHandler(deps),
		},
		{
			Name: "ai", Aliases: []string{"gemini", "gpt"}, Tier: command.TierPublic, Cooldown: sec(5),
			Category: aiCategory, Description: "Chat with AI", Usage: "-ai <text>",
			Handler: newAIHandler(deps),
		},
		{
			Name: "joke", Tier: command.TierPublic, Cooldown: sec(5),
			Category: fun, Description: "Get a random joke",
			Handler: newJokeHandler(deps),
		},
		{
			Name: "meme", Tier: command.TierPublic, Cooldown: sec(5),
			Category: fun, Description: "Get a random meme",
			Handler: newMemeHandler(deps),
		},
		{
			Name: "anime", Aliases: []string{"quote"}, Tier: command.TierPublic, Cooldown: sec(5),
			Category: fun, Description: "Get a random anime quote",
			Handler: newQuoteHandler(deps),
		},
		{
			Name: "lyrics", Aliases: []string{"l"}, Tier: command.TierPublic, Cooldown: sec(10),
			Category: fun, Description: "Get song lyrics", Usage: "-lyrics <artist> - <song>",
			Handler: newLyricsHandler(deps),
		},
		{
			Name: "tts", Aliases: []string{"speak"}, Tier: command.TierPublic, Cooldown: sec(5),
			Category: fun, Description: "Text to Speech", Usage: "-tts <text>",
			Handler: newSpeechHandler(deps),
		},
		{
			Name: "yt", Aliases: []string{"video", "youtube"}, Tier: command.TierPublic, Cooldown: sec(10),
			Category: mediaCat, Description: "Download YouTube video", Usage: "-yt <url>",
			Handler: newVideoHandler(deps),
		},
		{
			Name: "song", Aliases: []string{"mp3", "music"}, Tier: command.TierPublic, Cooldown: sec(10),
			Category: mediaCat, Description: "Download YouTube audio", Usage: "-song <url>",
			Handler: newAudioHandler(deps),
		},

		// Group admin
		{
			Name: "ban", Aliases: []string{"kick", "remove"}, Tier: command.TierGroupAdmin, Cooldown: sec(3),
			Category: moderation, Description: "Remove a user from the group", Usage: "-ban @user",
			Handler: newBanHandler(deps),
		},
		{
			Name: "warn", Tier: command.TierGroupAdmin, Cooldown: sec(3),
			Category: moderation, Description: "Warn a user", Usage: "-warn @user [reason]",
			Handler: newWarnHandler(deps),
		},
		{
			Name: "tagall", Aliases: []string{"everyone"}, Tier: command.TierGroupAdmin, Cooldown: sec(30),
			Category: moderation, Description: "Tag all members",
			Handler: newTagAllHandler(deps),
		},
		{
			Name: "welcome", Aliases: []string{"setwelcome"}, Tier: command.TierGroupAdmin, Cooldown: sec(5),
			Category: settings, Description: "Set welcome message", Usage: "-welcome <message> (@user)",
			Handler: newTemplateHandler(deps, "welcome", func(p *database.GroupPolicy, s string) { p.WelcomeMessage = s }),
		},
		{
			Name: "goodbye", Aliases: []string{"setgoodbye"}, Tier: command.TierGroupAdmin, Cooldown: sec(5),
			Category: settings, Description: "Set goodbye message", Usage: "-goodbye <message> (@user)",
			Handler: newTemplateHandler(deps, "goodbye", func(p *database.GroupPolicy, s string) { p.GoodbyeMessage = s }),
		},
		{
			Name: "rename", Aliases: []string{"setname", "subject"}, Tier: command.TierGroupAdmin, Cooldown: sec(10),
			Category: settings, Description: "Rename group", Usage: "-rename <new name>",
			Handler: newRenameHandler(deps),
		},
		{
			Name: "chat", Aliases: []string{"chatmode", "ai-chat"}, Tier: command.TierGroupAdmin, Cooldown: sec(5),
			Category: settings, Description: "Toggle AI chat mode", Usage: "-chat on/off",
			Handler: newToggleHandler(deps, "chat", "AI Chat Mode", func(p *database.GroupPolicy, on bool) { p.ChatEnabled = on }),
		},
		{
			Name: "antilink", Tier: command.TierGroupAdmin, Cooldown: sec(5),
			Category: settings, Description: "Toggle link deletion", Usage: "-antilink on/off",
			Handler: newToggleHandler(deps, "antilink", "Anti-link", func(p *database.GroupPolicy, on bool) { p.AntiLink = on }),
		},

		// Owner
		{
			Name: "broadcast", Aliases: []string{"bc", "bcgc"}, Tier: command.TierOwner,
			Category: owner, Description: "Broadcast message to all groups", Usage: "-broadcast <message>",
			Handler: newBroadcastHandler(deps),
		},
		{
			Name: "restart", Aliases: []string{"reboot"}, Tier: command.TierOwner,
			Category: owner, Description: "Restart the bot",
			Handler: newExitHandler(deps, "restart", "🔄 Restarting...", ExitRestart),
		},
		{
			Name: "shutdown", Aliases: []string{"stop"}, Tier: command.TierOwner,
			Category: owner, Description: "Stop the bot",
			Handler: newExitHandler(deps, "shutdown", "🔌 Shutting down...", ExitShutdown),
		},
		{
			Name: "join", Tier: command.TierOwner,
			Category: owner, Description: "Join a group via link", Usage: "-join <link>",
			Handler: newJoinHandler(deps),
		},
		{
			Name: "diag", Tier: command.TierOwner,
			Category: owner, Description: "Show runtime diagnostics",
			Handler: newDiagHandler(deps, catalog),
		},
	}
}

// NewRegistry builds the command registry from Descriptors.
func NewRegistry(deps HandlerDeps) (*command.Registry, error) {
	reg := command.NewRegistry()
	for _, d := range Descriptors(deps, reg) {
		if err := reg.Register(d); err != nil {
			return nil, fmt.Errorf("failed to register command %q: %w", d.Name, err)
		}
	}
	deps.Logger.Info("Registered commands", "count", reg.Len())
	return reg, nil
}
