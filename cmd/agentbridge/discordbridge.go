package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/agentbridge/core/internal/callback"
	"github.com/agentbridge/core/internal/chatglue"
	"github.com/agentbridge/core/internal/facade"
	"github.com/agentbridge/core/internal/progress"
	"github.com/agentbridge/core/internal/supervisor"
	"github.com/agentbridge/core/internal/telemetry"
	"github.com/agentbridge/core/pkg/agentproto"
)

// discordBridge mirrors telegramBridge's per-message run, adapted to
// discordgo's gateway-event handler registration instead of telego's
// long-polling channel.
type discordBridge struct {
	session      *discordgo.Session
	transport    *chatglue.DiscordTransport
	fac          *facade.Facade
	tel          *telemetry.Bridge
	broadcaster  *telemetry.Broadcaster
	approvedRoot string
	log          *slog.Logger
	botUserID    string
}

func newDiscordBridge(session *discordgo.Session, fac *facade.Facade, tel *telemetry.Bridge, broadcaster *telemetry.Broadcaster, approvedRoot string, log *slog.Logger) *discordBridge {
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	return &discordBridge{
		session:      session,
		transport:    chatglue.NewDiscordTransport(session),
		fac:          fac,
		tel:          tel,
		broadcaster:  broadcaster,
		approvedRoot: approvedRoot,
		log:          log,
	}
}

func (d *discordBridge) start() (func(), error) {
	d.session.AddHandler(d.handleMessageCreate)

	if err := d.session.Open(); err != nil {
		return nil, fmt.Errorf("open discord session: %w", err)
	}

	user, err := d.session.User("@me")
	if err != nil {
		d.session.Close()
		return nil, fmt.Errorf("fetch discord bot identity: %w", err)
	}
	d.botUserID = user.ID

	return func() { d.session.Close() }, nil
}

func (d *discordBridge) handleMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == d.botUserID || m.Author.Bot {
		return
	}
	if strings.TrimSpace(m.Content) == "" {
		return
	}

	ctx := context.Background()
	userID, err := strconv.ParseInt(m.Author.ID, 10, 64)
	if err != nil {
		// Discord snowflakes don't fit int64 arithmetic meaningfully, but
		// they do fit the type; a parse failure means a malformed ID.
		d.log.Warn("discord: unparseable author id", "id", m.Author.ID)
		return
	}

	workingDir := d.approvedRoot
	prompt := d.resolvePrompt(workingDir, m.Content)

	handle, err := d.transport.SendMessage(ctx, m.ChannelID, "⏳ Working…", chatglue.ParseModeNone, nil)
	if err != nil {
		d.log.Error("discord: failed to send placeholder", "error", err)
		return
	}

	renderer := progress.New(fmt.Sprintf("channel %s", m.ChannelID), progress.ModeFreeText, true, d.log)

	sink := supervisor.StreamSink(func(update *agentproto.StreamUpdate) error {
		d.tel.Observe(ctx, update)
		d.broadcaster.Broadcast(telemetry.Event{Name: "stream_update", Payload: update})

		if body, shouldEdit := renderer.Apply(update); shouldEdit {
			if err := d.transport.EditMessage(ctx, handle, body, chatglue.ParseModeNone); err != nil {
				d.log.Warn("discord: progress edit failed", "error", err)
			}
		}
		return nil
	})

	response, err := d.fac.Run(ctx, facade.Request{
		Prompt:           prompt,
		WorkingDirectory: workingDir,
		UserID:           userID,
		Sink:             sink,
	})
	d.tel.CloseOrphans()

	if err != nil {
		d.log.Error("discord: facade run failed", "error", err)
		d.transport.EditMessage(ctx, handle, "⚠️ internal error", chatglue.ParseModeNone)
		return
	}

	finalText, deleteMessage := renderer.Finish(response)
	if deleteMessage {
		d.transport.DeleteMessage(ctx, handle)
		return
	}
	if err := d.transport.EditMessage(ctx, handle, finalText, chatglue.ParseModeNone); err != nil {
		d.log.Warn("discord: final edit failed", "error", err)
	}
}

func (d *discordBridge) resolvePrompt(workingDir, text string) string {
	if !strings.HasPrefix(text, "/") {
		return text
	}
	name := strings.Fields(strings.TrimPrefix(text, "/"))[0]

	commands, err := callback.ListProjectCommands(workingDir, d.approvedRoot)
	if err != nil {
		return text
	}
	cmd, ok := callback.FindCommandByName(commands, name)
	if !ok {
		return text
	}
	body, err := callback.ReadCommandContent(cmd)
	if err != nil {
		return text
	}
	return body
}
