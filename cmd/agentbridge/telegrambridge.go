package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/mymmrac/telego"

	"github.com/agentbridge/core/internal/callback"
	"github.com/agentbridge/core/internal/chatglue"
	"github.com/agentbridge/core/internal/facade"
	"github.com/agentbridge/core/internal/progress"
	"github.com/agentbridge/core/internal/supervisor"
	"github.com/agentbridge/core/internal/telemetry"
	"github.com/agentbridge/core/pkg/agentproto"
)

// telegramBridge drives one agentRun per inbound Telegram message: it
// resolves the prompt (a project command body, or the message text
// verbatim), streams progress through a single edited placeholder
// message, and hands every update to the telemetry bridge and debug
// broadcaster.
type telegramBridge struct {
	bot          *telego.Bot
	transport    *chatglue.TelegramTransport
	fac          *facade.Facade
	tel          *telemetry.Bridge
	broadcaster  *telemetry.Broadcaster
	approvedRoot string
	log          *slog.Logger
}

func newTelegramBridge(bot *telego.Bot, fac *facade.Facade, tel *telemetry.Bridge, broadcaster *telemetry.Broadcaster, approvedRoot string, log *slog.Logger) *telegramBridge {
	return &telegramBridge{
		bot:          bot,
		transport:    chatglue.NewTelegramTransport(bot),
		fac:          fac,
		tel:          tel,
		broadcaster:  broadcaster,
		approvedRoot: approvedRoot,
		log:          log,
	}
}

func (t *telegramBridge) start(ctx context.Context) (func(), error) {
	updates, err := t.bot.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		Timeout:        30,
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		return nil, fmt.Errorf("start long polling: %w", err)
	}

	go func() {
		for update := range updates {
			if update.Message == nil || update.Message.Text == "" {
				continue
			}
			go t.handleMessage(ctx, update.Message)
		}
	}()

	return func() {}, nil
}

func (t *telegramBridge) handleMessage(ctx context.Context, msg *telego.Message) {
	if msg.From == nil {
		return
	}
	chatID := strconv.FormatInt(msg.Chat.ID, 10)
	userID := int64(msg.From.ID)
	workingDir := t.approvedRoot

	prompt := t.resolvePrompt(workingDir, msg.Text)

	handle, err := t.transport.SendMessage(ctx, chatID, "⏳ Working…", chatglue.ParseModeNone, nil)
	if err != nil {
		t.log.Error("telegram: failed to send placeholder", "error", err)
		return
	}

	renderer := progress.New(fmt.Sprintf("chat %s", chatID), progress.ModeFreeText, true, t.log)

	sink := supervisor.StreamSink(func(update *agentproto.StreamUpdate) error {
		t.tel.Observe(ctx, update)
		t.broadcaster.Broadcast(telemetry.Event{Name: "stream_update", Payload: update})

		if body, shouldEdit := renderer.Apply(update); shouldEdit {
			if err := t.transport.EditMessage(ctx, handle, body, chatglue.ParseModeNone); err != nil {
				t.log.Warn("telegram: progress edit failed", "error", err)
			}
		}
		return nil
	})

	response, err := t.fac.Run(ctx, facade.Request{
		Prompt:           prompt,
		WorkingDirectory: workingDir,
		UserID:           userID,
		Sink:             sink,
	})
	t.tel.CloseOrphans()

	if err != nil {
		t.log.Error("telegram: facade run failed", "error", err)
		t.transport.EditMessage(ctx, handle, "⚠️ internal error", chatglue.ParseModeNone)
		return
	}

	finalText, deleteMessage := renderer.Finish(response)
	if deleteMessage {
		t.transport.DeleteMessage(ctx, handle)
		return
	}
	if err := t.transport.EditMessage(ctx, handle, finalText, chatglue.ParseModeNone); err != nil {
		t.log.Warn("telegram: final edit failed", "error", err)
	}
}

// resolvePrompt routes a leading-slash message through the project
// command resolver (§6 callback-data `pcmd` action, §5 supplemented
// features), falling back to the raw text for anything else.
func (t *telegramBridge) resolvePrompt(workingDir, text string) string {
	if !strings.HasPrefix(text, "/") {
		return text
	}
	name := strings.Fields(strings.TrimPrefix(text, "/"))[0]

	commands, err := callback.ListProjectCommands(workingDir, t.approvedRoot)
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
