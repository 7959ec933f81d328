package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"tasktimeline/internal/images"
	"tasktimeline/internal/logger"
	"tasktimeline/internal/model"
	"tasktimeline/internal/service"
)

const (
	menuLabelTimeline = "🗓 Лента"
	menuLabelCalendar = "📆 Календарь"
	menuLabelPending  = "⬜️ Активные"
	menuLabelHelp     = "ℹ️ Помощь"
)

const retryText = "😔 Не получилось сохранить задачу. Попробуй ещё раз."

// Bot is the Telegram front-end of the task store. It serves a single owner chat.
type Bot struct {
	api        *tgbotapi.BotAPI
	store      *service.TaskStore
	onboarding *service.OnboardingService
	images     *images.Service
	httpClient *http.Client
	ownerID    int64
	now        func() time.Time

	mu           sync.Mutex
	awaitingName map[int64]bool
}

func New(token string, ownerID int64, store *service.TaskStore, onboarding *service.OnboardingService, imgs *images.Service) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	logger.Info("Bot: authorized", zap.String("account", api.Self.UserName))

	return &Bot{
		api:          api,
		store:        store,
		onboarding:   onboarding,
		images:       imgs,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		ownerID:      ownerID,
		now:          time.Now,
		awaitingName: make(map[int64]bool),
	}, nil
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	logger.Info("Bot: start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		msg := update.Message
		if msg == nil || msg.Chat == nil || !msg.Chat.IsPrivate() {
			continue
		}
		if !b.allowed(msg.Chat.ID) {
			logger.Warn("Bot: message from foreign chat ignored", zap.Int64("chat_id", msg.Chat.ID))
			continue
		}
		if err := b.handleMessage(ctx, msg); err != nil {
			logger.Error("Bot: handle message", err, zap.Int64("chat_id", msg.Chat.ID))
		}
	}

	return ctx.Err()
}

func (b *Bot) allowed(chatID int64) bool {
	return b.ownerID == 0 || b.ownerID == chatID
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.IsCommand() {
		logger.Info("Bot: command",
			zap.Int64("chat_id", msg.Chat.ID),
			zap.String("command", msg.Command()),
			zap.String("args", msg.CommandArguments()))
		b.setAwaitingName(msg.Chat.ID, false)
		return b.handleCommand(ctx, msg)
	}

	if len(msg.Photo) > 0 {
		return b.handlePhoto(ctx, msg)
	}

	if b.isAwaitingName(msg.Chat.ID) {
		return b.finishOnboarding(ctx, msg)
	}

	switch strings.TrimSpace(msg.Text) {
	case menuLabelTimeline:
		return b.sendTimeline(msg.Chat.ID)
	case menuLabelCalendar:
		return b.handleCalendar(msg)
	case menuLabelPending:
		b.store.SetFilters(pendingOnly(b.store.Query().Filters))
		return b.sendTimeline(msg.Chat.ID)
	case menuLabelHelp:
		return b.handleHelp(msg)
	}

	if strings.TrimSpace(msg.Text) == "" {
		return nil
	}
	return b.addTask(ctx, msg.Chat.ID, msg.Text, nil)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	args := msg.CommandArguments()
	switch msg.Command() {
	case "start":
		return b.handleStart(ctx, msg)
	case "help":
		return b.handleHelp(msg)
	case "name":
		return b.handleName(ctx, msg)
	case "add":
		return b.addTask(ctx, msg.Chat.ID, args, nil)
	case "timeline":
		return b.sendTimeline(msg.Chat.ID)
	case "today":
		return b.sendText(msg.Chat.ID, renderSummary(b.store.Summary()))
	case "search":
		b.store.SetSearchText(strings.TrimSpace(args))
		return b.sendTimeline(msg.Chat.ID)
	case "date":
		return b.handleDate(msg)
	case "filter":
		return b.handleFilter(msg)
	case "calendar":
		return b.handleCalendar(msg)
	case "done":
		return b.handleToggle(ctx, msg)
	case "edit":
		return b.handleEdit(ctx, msg)
	case "move":
		return b.handleMove(ctx, msg)
	case "clearimages":
		return b.handleClearImages(ctx, msg)
	case "photos":
		return b.handlePhotos(msg)
	case "delete":
		return b.handleDelete(ctx, msg)
	case "reload":
		b.store.LoadTasks(ctx)
		return b.sendTimeline(msg.Chat.ID)
	default:
		return b.sendText(msg.Chat.ID, "Команда не поддерживается. Загляни в /help.")
	}
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) error {
	state := b.onboarding.State()
	if state.HasOnboarded {
		name := state.Username
		if name == "" {
			name = "друг"
		}
		text := fmt.Sprintf("👋 С возвращением, %s!\n\n%s", escape(name), renderSummary(b.store.Summary()))
		return b.sendText(msg.Chat.ID, text)
	}

	b.onboarding.SetStep(0)
	if err := b.sendText(msg.Chat.ID,
		"👋 Привет! <b>Я веду ленту твоих задач по дням.</b>\n"+
			"Пиши заметку обычным сообщением, и она попадёт в сегодняшний день. "+
			"Фото с подписью тоже станет задачей."); err != nil {
		return err
	}
	b.onboarding.NextStep()
	b.setAwaitingName(msg.Chat.ID, true)
	return b.sendWithReplyMarkup(msg.Chat.ID, "Как к тебе обращаться?", tgbotapi.NewRemoveKeyboard(true))
}

func (b *Bot) finishOnboarding(ctx context.Context, msg *tgbotapi.Message) error {
	name := strings.TrimSpace(msg.Text)
	if name == "" {
		return b.sendText(msg.Chat.ID, "Напиши имя текстом.")
	}
	b.onboarding.SetUsername(name)
	b.onboarding.NextStep()
	if err := b.onboarding.CompleteOnboarding(ctx); err != nil {
		logger.Error("Bot: complete onboarding", err)
		return b.sendText(msg.Chat.ID, "Не удалось сохранить имя. Попробуй ещё раз.")
	}
	b.setAwaitingName(msg.Chat.ID, false)
	text := fmt.Sprintf("Приятно познакомиться, %s! ✨\n\n%s", escape(b.onboarding.State().Username), helpText)
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleName(ctx context.Context, msg *tgbotapi.Message) error {
	err := b.onboarding.UpdateUsername(ctx, msg.CommandArguments())
	switch {
	case errors.Is(err, model.ErrInvalidArgument):
		return b.sendText(msg.Chat.ID, "Укажи имя: /name Алекс")
	case err != nil:
		logger.Error("Bot: update username", err)
		return b.sendText(msg.Chat.ID, "Не удалось сохранить имя. Попробуй ещё раз.")
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("Готово, теперь ты %s.", escape(b.onboarding.State().Username)))
}

const helpText = "ℹ️ <b>Подсказки</b>\n" +
	"• просто текст или /add [ГГГГ-ММ-ДД] &lt;заметка&gt; — новая задача\n" +
	"• фото с подписью — задача с картинкой\n" +
	"• /timeline — лента по дням\n" +
	"• /today — сводка на сегодня\n" +
	"• /search &lt;текст&gt; — поиск (пусто — сбросить)\n" +
	"• /date &lt;ГГГГ-ММ-ДД|today|off&gt; — показать один день\n" +
	"• /filter completed|pending|days|reset — фильтры ленты\n" +
	"• /calendar [ГГГГ-ММ] — календарь с отметками\n" +
	"• /done &lt;id&gt; — отметить или снять отметку\n" +
	"• /edit &lt;id&gt; &lt;текст&gt; — изменить заметку\n" +
	"• /move &lt;id&gt; &lt;ГГГГ-ММ-ДД&gt; — перенести на другой день\n" +
	"• /photos &lt;id&gt; — прислать вложения\n" +
	"• /clearimages &lt;id&gt; — убрать вложения\n" +
	"• /delete &lt;id&gt; — удалить задачу\n" +
	"• /name &lt;имя&gt; — сменить имя"

func (b *Bot) handleHelp(msg *tgbotapi.Message) error {
	return b.sendText(msg.Chat.ID, helpText)
}

func (b *Bot) addTask(ctx context.Context, chatID int64, args string, imageURIs []string) error {
	date, note, err := parseAddArgs(args, b.now())
	if err != nil {
		return b.sendText(chatID, "Напиши текст задачи: /add 2024-12-03 Купить молоко")
	}
	task, err := b.store.AddTask(ctx, note, date, imageURIs)
	if err != nil {
		b.discardImages(ctx, imageURIs)
		if errors.Is(err, model.ErrInvalidArgument) {
			return b.sendText(chatID, "Проверь текст и дату (ГГГГ-ММ-ДД).")
		}
		logger.Error("Bot: add task", err)
		return b.sendText(chatID, retryText)
	}
	return b.sendText(chatID, "➕ Добавлено на "+escape(task.Date)+"\n"+formatTask(*task))
}

func (b *Bot) handlePhoto(ctx context.Context, msg *tgbotapi.Message) error {
	if strings.TrimSpace(msg.Caption) == "" {
		return b.sendText(msg.Chat.ID, "Добавь к фото подпись, она станет текстом задачи.")
	}
	uri, err := b.downloadPhoto(ctx, msg.Photo)
	if err != nil {
		logger.Error("Bot: download photo", err)
		return b.sendText(msg.Chat.ID, "Не удалось сохранить фото. Попробуй ещё раз.")
	}
	return b.addTask(ctx, msg.Chat.ID, msg.Caption, []string{uri})
}

// downloadPhoto stores the largest size of a Telegram photo in the images directory.
func (b *Bot) downloadPhoto(ctx context.Context, sizes []tgbotapi.PhotoSize) (string, error) {
	largest := sizes[len(sizes)-1]
	url, err := b.api.GetFileDirectURL(largest.FileID)
	if err != nil {
		return "", fmt.Errorf("file url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download photo: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download photo: status %d", resp.StatusCode)
	}
	return b.images.SaveFromReader(ctx, resp.Body)
}

// discardImages removes files saved for a task that was never created.
func (b *Bot) discardImages(ctx context.Context, uris []string) {
	for _, uri := range uris {
		if err := b.images.Delete(ctx, uri); err != nil {
			logger.Warn("Bot: discard image", zap.String("uri", uri), zap.Error(err))
		}
	}
}

func (b *Bot) handleDate(msg *tgbotapi.Message) error {
	selected, err := parseDateArg(msg.CommandArguments(), b.now())
	if err != nil {
		return b.sendText(msg.Chat.ID, "Дата должна быть в формате ГГГГ-ММ-ДД, например /date 2024-12-03.")
	}
	b.store.SetSelectedDate(selected)
	return b.sendTimeline(msg.Chat.ID)
}

func (b *Bot) handleFilter(msg *tgbotapi.Message) error {
	filters := b.store.Query().Filters
	switch strings.ToLower(strings.TrimSpace(msg.CommandArguments())) {
	case "completed", "done":
		filters.ShowCompletedOnly = !filters.ShowCompletedOnly
		filters.ShowPendingOnly = false
	case "pending", "active":
		filters.ShowPendingOnly = !filters.ShowPendingOnly
		filters.ShowCompletedOnly = false
	case "days":
		filters.ShowDaysWithTasksOnly = !filters.ShowDaysWithTasksOnly
	case "reset", "off":
		b.store.ResetFilters()
		b.store.SetSearchText("")
		b.store.SetSelectedDate(nil)
		return b.sendTimeline(msg.Chat.ID)
	default:
		return b.sendText(msg.Chat.ID, "Фильтры: /filter completed, /filter pending, /filter days, /filter reset")
	}
	b.store.SetFilters(filters)
	return b.sendTimeline(msg.Chat.ID)
}

func (b *Bot) handleCalendar(msg *tgbotapi.Message) error {
	now := b.now()
	month := now
	if arg := strings.TrimSpace(msg.CommandArguments()); arg != "" {
		parsed, err := time.Parse("2006-01", arg)
		if err != nil {
			return b.sendText(msg.Chat.ID, "Месяц в формате ГГГГ-ММ, например /calendar 2024-12.")
		}
		month = parsed
	}
	return b.sendText(msg.Chat.ID, renderCalendar(month, b.store.DatesWithTasks(), now))
}

func (b *Bot) handleToggle(ctx context.Context, msg *tgbotapi.Message) error {
	id, err := parseTaskID(msg.CommandArguments())
	if err != nil {
		return b.sendText(msg.Chat.ID, "Укажи ID задачи: /done 12")
	}
	task, err := b.store.ToggleCompletion(ctx, id)
	if err != nil {
		return b.sendMutationError(msg.Chat.ID, err)
	}
	return b.sendText(msg.Chat.ID, formatTask(*task))
}

func (b *Bot) handleEdit(ctx context.Context, msg *tgbotapi.Message) error {
	id, note, err := parseIDAndRest(msg.CommandArguments())
	if err != nil || note == "" {
		return b.sendText(msg.Chat.ID, "Формат: /edit 12 новый текст")
	}
	task, err := b.store.UpdateTask(ctx, id, model.TaskUpdate{Note: model.Some(note)})
	if err != nil {
		return b.sendMutationError(msg.Chat.ID, err)
	}
	return b.sendText(msg.Chat.ID, "✏️ Обновлено\n"+formatTask(*task))
}

func (b *Bot) handleMove(ctx context.Context, msg *tgbotapi.Message) error {
	id, date, err := parseIDAndRest(msg.CommandArguments())
	if err != nil || date == "" {
		return b.sendText(msg.Chat.ID, "Формат: /move 12 2024-12-03")
	}
	task, err := b.store.UpdateTask(ctx, id, model.TaskUpdate{Date: model.Some(date)})
	if err != nil {
		return b.sendMutationError(msg.Chat.ID, err)
	}
	return b.sendText(msg.Chat.ID, "📦 Перенесено на "+escape(task.Date)+"\n"+formatTask(*task))
}

func (b *Bot) handleClearImages(ctx context.Context, msg *tgbotapi.Message) error {
	id, err := parseTaskID(msg.CommandArguments())
	if err != nil {
		return b.sendText(msg.Chat.ID, "Укажи ID задачи: /clearimages 12")
	}
	task, err := b.store.UpdateTask(ctx, id, model.TaskUpdate{ImageURIs: model.Field[[]string]{Set: true}})
	if err != nil {
		return b.sendMutationError(msg.Chat.ID, err)
	}
	return b.sendText(msg.Chat.ID, "🧹 Вложения удалены\n"+formatTask(*task))
}

func (b *Bot) handlePhotos(msg *tgbotapi.Message) error {
	id, err := parseTaskID(msg.CommandArguments())
	if err != nil {
		return b.sendText(msg.Chat.ID, "Укажи ID задачи: /photos 12")
	}
	task, ok := b.store.Task(id)
	if !ok {
		return b.sendText(msg.Chat.ID, "Задача не найдена.")
	}
	if len(task.ImageURIs) == 0 {
		return b.sendText(msg.Chat.ID, "У задачи нет вложений.")
	}
	for _, uri := range task.ImageURIs {
		f, err := b.images.Open(uri)
		if err != nil {
			logger.Warn("Bot: open image", zap.String("uri", uri), zap.Error(err))
			continue
		}
		photo := tgbotapi.NewPhoto(msg.Chat.ID, tgbotapi.FileReader{Name: filepath.Base(uri), Reader: f})
		photo.Caption = shortNote(task.Note, 200)
		_, err = b.api.Send(photo)
		f.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func (b *Bot) handleDelete(ctx context.Context, msg *tgbotapi.Message) error {
	id, err := parseTaskID(msg.CommandArguments())
	if err != nil {
		return b.sendText(msg.Chat.ID, "Укажи ID задачи: /delete 12")
	}
	task, known := b.store.Task(id)
	if err := b.store.DeleteTask(ctx, id); err != nil {
		logger.Error("Bot: delete task", err, zap.Uint("task_id", id))
		return b.sendText(msg.Chat.ID, "Не удалось удалить задачу. Попробуй ещё раз.")
	}
	if !known {
		return b.sendText(msg.Chat.ID, "🗑 Готово.")
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("🗑 Задача «%s» удалена.", escape(shortNote(task.Note, 60))))
}

func (b *Bot) sendMutationError(chatID int64, err error) error {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return b.sendText(chatID, "Задача не найдена.")
	case errors.Is(err, model.ErrInvalidArgument):
		return b.sendText(chatID, "Проверь текст и дату (ГГГГ-ММ-ДД).")
	default:
		logger.Error("Bot: update task", err)
		return b.sendText(chatID, retryText)
	}
}

func (b *Bot) sendTimeline(chatID int64) error {
	return b.sendText(chatID, renderTimeline(b.store.Timeline(), b.store.Query()))
}

func (b *Bot) sendText(chatID int64, text string) error {
	return b.sendWithReplyMarkup(chatID, text, mainMenuKeyboard())
}

func (b *Bot) sendWithReplyMarkup(chatID int64, text string, markup interface{}) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = markup
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) setAwaitingName(chatID int64, waiting bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if waiting {
		b.awaitingName[chatID] = true
		return
	}
	delete(b.awaitingName, chatID)
}

func (b *Bot) isAwaitingName(chatID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.awaitingName[chatID]
}

func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelTimeline),
			tgbotapi.NewKeyboardButton(menuLabelPending),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelCalendar),
			tgbotapi.NewKeyboardButton(menuLabelHelp),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = false
	return kb
}
