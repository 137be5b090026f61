package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/escalopa/mushaf-overlay/internal/application"
	"github.com/escalopa/mushaf-overlay/internal/domain"
	"github.com/escalopa/mushaf-overlay/internal/highlight"
	"github.com/escalopa/mushaf-overlay/internal/pageindex"
	"github.com/escalopa/mushaf-overlay/internal/telemetry"
)

const surahsPerKeyboard = 10

type Bot struct {
	api      *tgbotapi.BotAPI
	service  *application.MushafService
	i18n     domain.I18nPort
	log      *zap.Logger
	commands map[string]CommandHandler
	cancel   context.CancelFunc
}

func NewBot(token string, service *application.MushafService, i18n domain.I18nPort, log *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}

	bot := &Bot{
		api:     api,
		service: service,
		i18n:    i18n,
		log:     telemetry.OrNop(log),
	}
	bot.registerCommands()

	return bot, nil
}

func (b *Bot) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel

	b.log.Info("authorized", zap.String("account", b.api.Self.UserName))

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			return nil
		case update := <-updates:
			go b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) Stop() error {
	if b.cancel != nil {
		b.cancel()
	}
	b.api.StopReceivingUpdates()
	return nil
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	userID := b.getUserID(update)
	if userID == "" {
		return
	}

	lang := b.service.Language(ctx, userID)

	switch {
	case update.Message != nil && update.Message.IsCommand():
		b.handleCommand(ctx, update.Message, lang)
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery, lang)
	case update.Message != nil && update.Message.Text != "":
		b.handleText(ctx, update.Message, lang)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message, lang domain.Language) {
	handler, exists := b.commands[msg.Command()]
	if !exists {
		b.sendMessage(msg.Chat.ID, b.i18n.Get(lang, "help"))
		return
	}

	handler(ctx, msg, lang)
}

func (b *Bot) handleCallback(ctx context.Context, callback *tgbotapi.CallbackQuery, lang domain.Language) {
	userID := strconv.FormatInt(callback.From.ID, 10)
	chatID := callback.Message.Chat.ID

	if _, err := b.api.Request(tgbotapi.NewCallback(callback.ID, "")); err != nil {
		b.log.Debug("answer callback", zap.Error(err))
	}

	kind, arg, _ := strings.Cut(callback.Data, ":")
	switch kind {
	case "lang":
		newLang := domain.Language(arg)
		if err := b.service.SetLanguage(ctx, userID, newLang); err != nil {
			b.answerCallbackAlert(callback.ID, b.i18n.Get(lang, "error.generic"))
			return
		}
		b.editMessageText(callback.Message, b.i18n.Get(newLang, "language.set"))

	case "spage":
		page, _ := strconv.Atoi(arg)
		b.editMessageWithKeyboard(callback.Message, b.i18n.Get(lang, "jump.select_surah"), b.surahKeyboard(lang, page))

	case "surah":
		surah, err := strconv.Atoi(arg)
		if err != nil {
			b.answerCallbackAlert(callback.ID, b.i18n.Get(lang, "error.invalid_input"))
			return
		}
		b.deleteMessage(callback.Message)
		b.jump(ctx, chatID, userID, lang, surah, 0)

	case "pg":
		page, err := strconv.Atoi(arg)
		if err != nil {
			return
		}
		if err := b.service.SetPage(ctx, userID, page); err != nil {
			b.answerCallbackAlert(callback.ID, b.i18n.Get(lang, errorKey(err)))
			return
		}
		b.deleteMessage(callback.Message)
		b.sendPage(ctx, chatID, userID, lang)

	case "cat":
		b.deleteMessage(callback.Message)
		b.setCategory(ctx, chatID, userID, lang, arg)
	}
}

// handleText toggles a highlight addressed as "A W" or "A" on the current page
func (b *Bot) handleText(ctx context.Context, msg *tgbotapi.Message, lang domain.Language) {
	userID := strconv.FormatInt(msg.From.ID, 10)
	chatID := msg.Chat.ID

	if state, _ := b.service.State(ctx, userID); state == domain.StateSelectSurah {
		args, err := parseIntArgs(msg.Text)
		if err != nil || len(args) == 0 || len(args) > 2 {
			b.sendMessage(chatID, b.i18n.Get(lang, "jump.usage"))
			return
		}
		args = append(args, 0)
		b.jump(ctx, chatID, userID, lang, args[0], args[1])
		return
	}

	t, ok := ParseToggle(msg.Text)
	if !ok {
		b.sendMessage(chatID, b.i18n.Get(lang, "help"))
		return
	}

	sess, prefs, err := b.service.UserSession(ctx, userID)
	if err != nil {
		b.fail(chatID, lang, "open session", err)
		return
	}
	if prefs.Category == "" {
		b.sendMessage(chatID, b.i18n.Get(lang, "toggle.no_category"))
		return
	}
	if _, err := sess.LoadPage(ctx, prefs.Page); err != nil {
		b.fail(chatID, lang, "load page", err)
		return
	}

	var out highlight.Outcome
	if t.WholeAyah {
		out, err = sess.ToggleWholeAyah(ctx, prefs.Page, t.AyahIndex, prefs.Category)
	} else {
		out, err = sess.ToggleWord(ctx, prefs.Page, t.AyahIndex, t.WordIndex, prefs.Category)
	}
	if err != nil {
		b.fail(chatID, lang, "toggle highlight", err)
		return
	}

	name := b.i18n.Get(lang, "category."+string(prefs.Category))
	b.sendMessage(chatID, b.i18n.Get(lang, "toggle."+out.String(), name))
	b.sendPage(ctx, chatID, userID, lang)
}

// sendPage renders the user's current page, with page navigation under the last chunk
func (b *Bot) sendPage(ctx context.Context, chatID int64, userID string, lang domain.Language) {
	sess, prefs, err := b.service.UserSession(ctx, userID)
	if err != nil {
		b.fail(chatID, lang, "open session", err)
		return
	}
	view, err := sess.LoadPage(ctx, prefs.Page)
	if err != nil {
		b.fail(chatID, lang, "load page", err)
		return
	}

	chunks := RenderPage(view, b.i18n, lang)
	for i, text := range chunks {
		msg := tgbotapi.NewMessage(chatID, text)
		msg.ParseMode = tgbotapi.ModeHTML
		if i == len(chunks)-1 {
			msg.ReplyMarkup = b.pageKeyboard(lang, prefs.Page)
		}
		if _, err := b.api.Send(msg); err != nil {
			b.log.Error("send page", zap.Int("page", prefs.Page), zap.Error(err))
			return
		}
	}
}

func (b *Bot) jump(ctx context.Context, chatID int64, userID string, lang domain.Language, surah, ayah int) {
	sess, _, err := b.service.UserSession(ctx, userID)
	if err != nil {
		b.fail(chatID, lang, "open session", err)
		return
	}
	page, err := sess.JumpTo(surah, ayah)
	if page == 0 {
		b.fail(chatID, lang, "jump", err)
		return
	}
	if err != nil {
		b.log.Warn("page table fallback", zap.Int("surah", surah), zap.Int("ayah", ayah), zap.Error(err))
	}
	if err := b.service.SetPage(ctx, userID, page); err != nil {
		b.fail(chatID, lang, "save page", err)
		return
	}
	if err := b.service.SetState(ctx, userID, domain.StateReading); err != nil {
		b.log.Warn("save state", zap.String("user", userID), zap.Error(err))
	}
	b.sendPage(ctx, chatID, userID, lang)
}

func (b *Bot) setCategory(ctx context.Context, chatID int64, userID string, lang domain.Language, value string) {
	c, err := domain.ParseCategory(strings.ToLower(strings.TrimSpace(value)))
	if err != nil {
		b.fail(chatID, lang, "parse category", err)
		return
	}
	if err := b.service.SetCategory(ctx, userID, c); err != nil {
		b.fail(chatID, lang, "save category", err)
		return
	}
	b.sendMessage(chatID, b.i18n.Get(lang, "category.set", Marker(c)+" "+b.i18n.Get(lang, "category."+string(c))))
}

// fail logs unexpected errors and tells the user what went wrong
func (b *Bot) fail(chatID int64, lang domain.Language, op string, err error) {
	key := errorKey(err)
	if key == "error.generic" || key == "error.persistence" {
		b.log.Error(op, zap.Error(err))
	} else {
		b.log.Debug(op, zap.Error(err))
	}
	b.sendMessage(chatID, b.i18n.Get(lang, key))
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", zap.Error(err))
	}
}

func (b *Bot) sendWithKeyboard(chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = keyboard
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", zap.Error(err))
	}
}

func (b *Bot) languageKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🇬🇧 English", "lang:en"),
			tgbotapi.NewInlineKeyboardButtonData("🇸🇦 العربية", "lang:ar"),
			tgbotapi.NewInlineKeyboardButtonData("🇷🇺 Русский", "lang:ru"),
		),
	)
}

func (b *Bot) categoryKeyboard(lang domain.Language) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, c := range domain.Categories {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(Marker(c)+" "+b.i18n.Get(lang, "category."+string(c)), "cat:"+string(c)),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func (b *Bot) pageKeyboard(lang domain.Language, page int) tgbotapi.InlineKeyboardMarkup {
	var row []tgbotapi.InlineKeyboardButton
	// pages run right to left, so the previous page sits on the right
	if page < pageindex.PageCount {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(b.i18n.Get(lang, "button.next"), fmt.Sprintf("pg:%d", page+1)))
	}
	if page > 1 {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(b.i18n.Get(lang, "button.prev"), fmt.Sprintf("pg:%d", page-1)))
	}
	return tgbotapi.NewInlineKeyboardMarkup(row)
}

func (b *Bot) surahKeyboard(lang domain.Language, page int) tgbotapi.InlineKeyboardMarkup {
	surahs := domain.GetAllSurahs()
	totalPages := (len(surahs) + surahsPerKeyboard - 1) / surahsPerKeyboard

	if page < 0 {
		page = 0
	}
	if page >= totalPages {
		page = totalPages - 1
	}

	start := page * surahsPerKeyboard
	end := min(start+surahsPerKeyboard, len(surahs))

	button := func(s domain.Surah) tgbotapi.InlineKeyboardButton {
		return tgbotapi.NewInlineKeyboardButtonData(
			fmt.Sprintf("%d. %s", s.Number, b.i18n.GetSurahName(lang, s.Number)),
			fmt.Sprintf("surah:%d", s.Number),
		)
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	for i := start; i < end; i += 2 {
		if i+1 < end {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(button(surahs[i]), button(surahs[i+1])))
		} else {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(button(surahs[i])))
		}
	}

	var navRow []tgbotapi.InlineKeyboardButton
	if page > 0 {
		navRow = append(navRow, tgbotapi.NewInlineKeyboardButtonData(b.i18n.Get(lang, "button.prev_page"), fmt.Sprintf("spage:%d", page-1)))
	}
	navRow = append(navRow, tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("%d/%d", page+1, totalPages), "noop"))
	if page < totalPages-1 {
		navRow = append(navRow, tgbotapi.NewInlineKeyboardButtonData(b.i18n.Get(lang, "button.next_page"), fmt.Sprintf("spage:%d", page+1)))
	}
	rows = append(rows, navRow)

	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func (b *Bot) editMessageText(msg *tgbotapi.Message, text string) {
	edit := tgbotapi.NewEditMessageText(msg.Chat.ID, msg.MessageID, text)
	if _, err := b.api.Send(edit); err != nil {
		b.log.Error("edit message", zap.Error(err))
	}
}

func (b *Bot) editMessageWithKeyboard(msg *tgbotapi.Message, text string, keyboard tgbotapi.InlineKeyboardMarkup) {
	edit := tgbotapi.NewEditMessageText(msg.Chat.ID, msg.MessageID, text)
	edit.ReplyMarkup = &keyboard
	if _, err := b.api.Send(edit); err != nil {
		b.log.Error("edit message", zap.Error(err))
	}
}

func (b *Bot) deleteMessage(msg *tgbotapi.Message) {
	if _, err := b.api.Request(tgbotapi.NewDeleteMessage(msg.Chat.ID, msg.MessageID)); err != nil {
		b.log.Debug("delete message", zap.Error(err))
	}
}

func (b *Bot) answerCallbackAlert(callbackID, text string) {
	callback := tgbotapi.NewCallbackWithAlert(callbackID, text)
	if _, err := b.api.Request(callback); err != nil {
		b.log.Error("answer callback", zap.Error(err))
	}
}

func (b *Bot) getUserID(update tgbotapi.Update) string {
	if update.Message != nil && update.Message.From != nil {
		return strconv.FormatInt(update.Message.From.ID, 10)
	}
	if update.CallbackQuery != nil && update.CallbackQuery.From != nil {
		return strconv.FormatInt(update.CallbackQuery.From.ID, 10)
	}
	return ""
}
