package telegram

import (
	"context"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/escalopa/mushaf-overlay/internal/domain"
	"github.com/escalopa/mushaf-overlay/internal/highlight"
)

type CommandHandler func(ctx context.Context, msg *tgbotapi.Message, lang domain.Language)

// registerCommands registers all bot commands
func (b *Bot) registerCommands() {
	b.commands = map[string]CommandHandler{
		"start":    b.commandStart,
		"help":     b.commandHelp,
		"language": b.commandLanguage,
		"page":     b.commandPage,
		"surah":    b.commandSurah,
		"category": b.commandCategory,
		"complete": b.commandComplete,
		"script":   b.commandScript,
		"student":  b.commandStudent,
		"summary":  b.commandSummary,
	}

	commands := []tgbotapi.BotCommand{
		{Command: "page", Description: "Open a mushaf page"},
		{Command: "surah", Description: "Jump to a surah or ayah"},
		{Command: "category", Description: "Choose the highlight category"},
		{Command: "complete", Description: "Mark a category as completed"},
		{Command: "summary", Description: "Count highlights"},
		{Command: "script", Description: "Switch script"},
		{Command: "student", Description: "Annotate for a student"},
		{Command: "language", Description: "Change language"},
		{Command: "help", Description: "Show help"},
	}

	if _, err := b.api.Request(tgbotapi.NewSetMyCommands(commands...)); err != nil {
		b.log.Error("set bot commands", zap.Error(err))
	}
}

func (b *Bot) commandStart(ctx context.Context, msg *tgbotapi.Message, lang domain.Language) {
	userID := strconv.FormatInt(msg.From.ID, 10)

	if err := b.service.Start(ctx, userID, lang); err != nil {
		b.fail(msg.Chat.ID, lang, "start", err)
		return
	}

	b.sendMessage(msg.Chat.ID, b.i18n.Get(lang, "welcome"))
	b.sendPage(ctx, msg.Chat.ID, userID, lang)
}

func (b *Bot) commandHelp(_ context.Context, msg *tgbotapi.Message, lang domain.Language) {
	b.sendMessage(msg.Chat.ID, b.i18n.Get(lang, "help"))
}

func (b *Bot) commandLanguage(_ context.Context, msg *tgbotapi.Message, lang domain.Language) {
	b.sendWithKeyboard(msg.Chat.ID, b.i18n.Get(lang, "language.select"), b.languageKeyboard())
}

func (b *Bot) commandPage(ctx context.Context, msg *tgbotapi.Message, lang domain.Language) {
	userID := strconv.FormatInt(msg.From.ID, 10)

	args, err := parseIntArgs(msg.CommandArguments())
	if err != nil || len(args) > 1 {
		b.sendMessage(msg.Chat.ID, b.i18n.Get(lang, "page.usage"))
		return
	}
	if len(args) == 1 {
		if err := b.service.SetPage(ctx, userID, args[0]); err != nil {
			b.sendMessage(msg.Chat.ID, b.i18n.Get(lang, "page.usage"))
			return
		}
	}
	b.sendPage(ctx, msg.Chat.ID, userID, lang)
}

func (b *Bot) commandSurah(ctx context.Context, msg *tgbotapi.Message, lang domain.Language) {
	userID := strconv.FormatInt(msg.From.ID, 10)

	args, err := parseIntArgs(msg.CommandArguments())
	switch {
	case err != nil || len(args) > 2:
		b.sendMessage(msg.Chat.ID, b.i18n.Get(lang, "jump.usage"))
	case len(args) == 0:
		if err := b.service.SetState(ctx, userID, domain.StateSelectSurah); err != nil {
			b.log.Warn("save state", zap.String("user", userID), zap.Error(err))
		}
		b.sendWithKeyboard(msg.Chat.ID, b.i18n.Get(lang, "jump.select_surah"), b.surahKeyboard(lang, 0))
	case len(args) == 1:
		b.jump(ctx, msg.Chat.ID, userID, lang, args[0], 0)
	default:
		b.jump(ctx, msg.Chat.ID, userID, lang, args[0], args[1])
	}
}

func (b *Bot) commandCategory(ctx context.Context, msg *tgbotapi.Message, lang domain.Language) {
	userID := strconv.FormatInt(msg.From.ID, 10)

	arg := strings.TrimSpace(msg.CommandArguments())
	if arg == "" {
		b.sendWithKeyboard(msg.Chat.ID, b.i18n.Get(lang, "category.select"), b.categoryKeyboard(lang))
		return
	}
	b.setCategory(ctx, msg.Chat.ID, userID, lang, arg)
}

// commandComplete marks the chosen category as completed on the current page, or everywhere with "all"
func (b *Bot) commandComplete(ctx context.Context, msg *tgbotapi.Message, lang domain.Language) {
	userID := strconv.FormatInt(msg.From.ID, 10)

	sess, prefs, err := b.service.UserSession(ctx, userID)
	if err != nil {
		b.fail(msg.Chat.ID, lang, "open session", err)
		return
	}
	if prefs.Category == "" {
		b.sendMessage(msg.Chat.ID, b.i18n.Get(lang, "toggle.no_category"))
		return
	}

	page := prefs.Page
	if strings.EqualFold(strings.TrimSpace(msg.CommandArguments()), "all") {
		page = highlight.AllPages
	}

	n, err := sess.CompleteCategory(ctx, prefs.Category, page)
	if err != nil {
		b.fail(msg.Chat.ID, lang, "complete category", err)
		return
	}

	name := b.i18n.Get(lang, "category."+string(prefs.Category))
	if n == 0 {
		b.sendMessage(msg.Chat.ID, b.i18n.Get(lang, "complete.none", name))
		return
	}
	b.sendMessage(msg.Chat.ID, b.i18n.Get(lang, "complete.done", n, name))
	b.sendPage(ctx, msg.Chat.ID, userID, lang)
}

func (b *Bot) commandScript(ctx context.Context, msg *tgbotapi.Message, lang domain.Language) {
	userID := strconv.FormatInt(msg.From.ID, 10)

	script := domain.ScriptID(strings.TrimSpace(msg.CommandArguments()))
	if err := b.service.SetScript(ctx, userID, script); err != nil {
		b.sendMessage(msg.Chat.ID, b.i18n.Get(lang, "script.usage"))
		return
	}
	b.sendMessage(msg.Chat.ID, b.i18n.Get(lang, "script.set", script))
	b.sendPage(ctx, msg.Chat.ID, userID, lang)
}

func (b *Bot) commandStudent(ctx context.Context, msg *tgbotapi.Message, lang domain.Language) {
	userID := strconv.FormatInt(msg.From.ID, 10)

	studentID := strings.TrimSpace(msg.CommandArguments())
	if err := b.service.SetStudent(ctx, userID, studentID); err != nil {
		b.sendMessage(msg.Chat.ID, b.i18n.Get(lang, "student.usage"))
		return
	}
	b.sendMessage(msg.Chat.ID, b.i18n.Get(lang, "student.set", studentID))
}

func (b *Bot) commandSummary(ctx context.Context, msg *tgbotapi.Message, lang domain.Language) {
	userID := strconv.FormatInt(msg.From.ID, 10)

	sess, prefs, err := b.service.UserSession(ctx, userID)
	if err != nil {
		b.fail(msg.Chat.ID, lang, "open session", err)
		return
	}

	page, title := prefs.Page, b.i18n.Get(lang, "summary.title", prefs.Page)
	if strings.EqualFold(strings.TrimSpace(msg.CommandArguments()), "all") {
		page, title = highlight.AllPages, b.i18n.Get(lang, "summary.title_all")
	}
	b.sendMessage(msg.Chat.ID, RenderSummary(sess.Summary(page), b.i18n, lang, title))
}
