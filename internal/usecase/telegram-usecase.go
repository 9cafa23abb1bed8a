package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/charmbracelet/log"
	"github.com/iamvkosarev/lingro/config"
	"github.com/iamvkosarev/lingro/internal/model"
	"github.com/iamvkosarev/lingro/pkg/local"
)

const (
	CommandStart  = "start"
	CommandHelp   = "help"
	CommandNew    = "new"
	CommandCustom = "custom"
	CommandSay    = "say"
	CommandVoice  = "voice"
	CommandRole   = "role"
	CommandLang   = "lang"

	telegramEventBuffer = 64
	callbackSeparator   = ":"
)

var (
	TextCommandStart = local.NewSet(
		"Добро пожаловать в Lingro! Пишите сообщения, присылайте документы, фото и голосовые. /help покажет все команды.",
		local.NewTrans(local.Eng, "Welcome to Lingro! Send text, documents, photos and voice notes. /help lists all commands."),
	)
	TextCommandHelp = local.NewSet(
		"/new начать заново\n/custom <задание> обработать последний файл\n/say <текст> озвучить текст\n/voice <голос> выбрать голос\n/role student|teacher\n/lang ru|en",
		local.NewTrans(local.Eng, "/new start over\n/custom <prompt> process the last file\n/say <text> read text aloud\n/voice <name> pick a voice\n/role student|teacher\n/lang ru|en"),
	)
	TextCommandUnknown = local.NewSet(
		"Неизвестная команда",
		local.NewTrans(local.Eng, "I don't know that command"),
	)
	TextUserNoAccess = local.NewSet(
		"У вас нет доступа к этому боту",
		local.NewTrans(local.Eng, "You are not allowed to use this bot"),
	)
	TextServerError = local.NewSet(
		"Что-то пошло не так. Попробуйте позже.",
		local.NewTrans(local.Eng, "Something went wrong. Try later."),
	)
	TextNoFileYet = local.NewSet(
		"Сначала отправьте файл",
		local.NewTrans(local.Eng, "Send a file first"),
	)
	TextCustomUsage = local.NewSet(
		"Напишите задание после команды: /custom <задание>",
		local.NewTrans(local.Eng, "Add a prompt after the command: /custom <prompt>"),
	)
	TextSayUsage = local.NewSet(
		"Напишите текст после команды: /say <текст>",
		local.NewTrans(local.Eng, "Add text after the command: /say <text>"),
	)
	TextVoicesFormat = local.NewSet(
		"Доступные голоса: %s",
		local.NewTrans(local.Eng, "Available voices: %s"),
	)
	TextSettingsSaved = local.NewSet(
		"Сохранено. Команда /new применит настройки к новому диалогу.",
		local.NewTrans(local.Eng, "Saved. Use /new to start a conversation with these settings."),
	)
	TextActionFix = local.NewSet(
		"Исправить",
		local.NewTrans(local.Eng, "Fix"),
	)
	TextActionTranslate = local.NewSet(
		"Перевести",
		local.NewTrans(local.Eng, "Translate"),
	)
	TextActionAnalyze = local.NewSet(
		"Анализ",
		local.NewTrans(local.Eng, "Analyze"),
	)
)

// TelegramBot is the part of *api.BotAPI the front-end uses.
type TelegramBot interface {
	Send(c api.Chattable) (api.Message, error)
	Request(c api.Chattable) (*api.APIResponse, error)
	GetUpdatesChan(config api.UpdateConfig) api.UpdatesChannel
	StopReceivingUpdates()
	GetFileDirectURL(fileID string) (string, error)
}

type TelegramUsecaseDeps struct {
	Bot        TelegramBot
	Sessions   *SessionUsecase
	User       *UserUsecase
	HTTPClient *http.Client
	Logger     *log.Logger
}

// TelegramUsecase serves chat sessions over a Telegram bot: one session per
// chat, with assistant output forwarded back as bot messages.
type TelegramUsecase struct {
	TelegramUsecaseDeps
	cfg          config.Telegram
	allowedUsers map[int64]struct{}

	mu    sync.Mutex
	chats map[int64]*telegramChat
}

func NewTelegramUsecase(cfg config.Telegram, deps TelegramUsecaseDeps) (*TelegramUsecase, error) {
	if deps.Logger == nil {
		deps.Logger = log.New(io.Discard)
	}
	if deps.HTTPClient == nil {
		deps.HTTPClient = &http.Client{Timeout: time.Minute}
	}
	allowedUsers := make(map[int64]struct{}, len(cfg.AllowedTelegramID))
	for _, id := range cfg.AllowedTelegramID {
		allowedUsers[id] = struct{}{}
	}

	_, err := deps.Bot.Request(
		api.NewSetMyCommands(
			[]api.BotCommand{
				{Command: CommandHelp, Description: "Get help"},
				{Command: CommandNew, Description: "Start a new conversation"},
				{Command: CommandCustom, Description: "Process the last file with your prompt"},
				{Command: CommandSay, Description: "Read text aloud"},
				{Command: CommandVoice, Description: "Pick a voice"},
				{Command: CommandRole, Description: "Set your role"},
				{Command: CommandLang, Description: "Set interface language"},
			}...,
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to set bot commands: %w", err)
	}

	t := &TelegramUsecase{
		TelegramUsecaseDeps: deps,
		cfg:                 cfg,
		allowedUsers:        allowedUsers,
		chats:               make(map[int64]*telegramChat),
	}
	deps.Sessions.OnExpire(t.handleExpiredSession)
	return t, nil
}

func (t *TelegramUsecase) Run(ctx context.Context) error {
	u := api.NewUpdate(0)
	u.Timeout = 60

	updates := t.Bot.GetUpdatesChan(u)
	defer t.closeChats()

	for {
		select {
		case <-ctx.Done():
			t.Bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message != nil {
				if err := t.handleMessage(ctx, update); err != nil {
					t.Logger.Error("failed to handle message", "error", err)
				}
			}
			if update.CallbackQuery != nil {
				if err := t.handleCallbackQuery(ctx, update); err != nil {
					t.Logger.Error("failed to handle callback query", "error", err)
				}
			}
		}
	}
}

func (t *TelegramUsecase) handleMessage(ctx context.Context, update api.Update) error {
	msg := update.Message
	chatID := msg.Chat.ID

	if !t.isAllowed(chatID) {
		t.sendMessageAndHandleErr(chatID, TextUserNoAccess.Text(local.Rus))
		return nil
	}

	profile, err := t.User.GetProfileForTelegramUser(ctx, chatID)
	if err != nil {
		t.sendMessageAndHandleErr(chatID, TextServerError.Text(local.Rus))
		return fmt.Errorf("failed to get profile for telegram user: %w", err)
	}
	lang := local.ParseLanguage(profile.Language)

	if msg.IsCommand() {
		return t.handleCommand(ctx, chatID, profile, msg.Command(), strings.TrimSpace(msg.CommandArguments()))
	}

	session := t.chatFor(chatID, profile).session
	switch {
	case msg.Document != nil:
		return t.handleDocument(chatID, session, msg.Document)
	case len(msg.Photo) > 0:
		return t.handlePhoto(chatID, session, msg.Photo, msg.Caption)
	case msg.Voice != nil:
		uri, err := t.Bot.GetFileDirectURL(msg.Voice.FileID)
		if err != nil {
			t.sendMessageAndHandleErr(chatID, TextServerError.Text(lang))
			return fmt.Errorf("failed to get voice url: %w", err)
		}
		session.AppendVoiceNote(uri, time.Duration(msg.Voice.Duration)*time.Second)
		return nil
	case msg.Text != "":
		t.sendText(session, msg.Text)
		return nil
	}
	return nil
}

func (t *TelegramUsecase) handleCommand(ctx context.Context, chatID int64, profile model.Profile, command, args string) error {
	lang := local.ParseLanguage(profile.Language)
	switch command {
	case CommandStart:
		t.chatFor(chatID, profile)
		t.sendMessageAndHandleErr(chatID, TextCommandStart.Text(lang))
	case CommandHelp:
		t.sendMessageAndHandleErr(chatID, TextCommandHelp.Text(lang))
	case CommandNew:
		t.dropChat(chatID)
		t.chatFor(chatID, profile)
	case CommandCustom:
		if args == "" {
			t.sendMessageAndHandleErr(chatID, TextCustomUsage.Text(lang))
			return nil
		}
		session := t.chatFor(chatID, profile).session
		last, ok := session.LastFile()
		if !ok {
			t.sendMessageAndHandleErr(chatID, TextNoFileYet.Text(lang))
			return nil
		}
		fileID, err := session.FileIDOf(last.ID)
		if err != nil {
			return fmt.Errorf("failed to get file id: %w", err)
		}
		session.Go(
			"custom file action", func(ctx context.Context) error {
				return session.RunFileAction(ctx, fileID, model.FileActionCustom, args)
			},
		)
	case CommandSay:
		if args == "" {
			t.sendMessageAndHandleErr(chatID, TextSayUsage.Text(lang))
			return nil
		}
		session := t.chatFor(chatID, profile).session
		session.Go(
			"speech", func(ctx context.Context) error {
				url, err := session.Speak(ctx, args, profile.Voice)
				if err != nil {
					t.sendMessageAndHandleErr(chatID, TextServerError.Text(lang))
					return err
				}
				_, err = t.sendToBot(api.NewAudio(chatID, api.FileURL(url)))
				return err
			},
		)
	case CommandVoice:
		if args == "" {
			t.sendMessageAndHandleErr(chatID, TextVoicesFormat.Format(lang, strings.Join(Voices, ", ")))
			return nil
		}
		return t.saveSetting(chatID, lang, func() error {
			_, err := t.User.UpdateVoice(ctx, chatID, args)
			return err
		})
	case CommandRole:
		return t.saveSetting(chatID, lang, func() error {
			_, err := t.User.UpdateRole(ctx, chatID, model.ParseUserRole(args))
			return err
		})
	case CommandLang:
		return t.saveSetting(chatID, lang, func() error {
			_, err := t.User.UpdateLanguage(ctx, chatID, args)
			return err
		})
	default:
		t.sendMessageAndHandleErr(chatID, TextCommandUnknown.Text(lang))
	}
	return nil
}

func (t *TelegramUsecase) saveSetting(chatID int64, lang local.Language, save func() error) error {
	if err := save(); err != nil {
		if errors.Is(err, ErrUnknownVoice) || errors.Is(err, ErrUnknownLanguage) {
			t.sendMessageAndHandleErr(chatID, TextCommandHelp.Text(lang))
			return nil
		}
		t.sendMessageAndHandleErr(chatID, TextServerError.Text(lang))
		return fmt.Errorf("failed to save profile setting: %w", err)
	}
	t.sendMessageAndHandleErr(chatID, TextSettingsSaved.Text(lang))
	return nil
}

func (t *TelegramUsecase) handleCallbackQuery(ctx context.Context, update api.Update) error {
	query := update.CallbackQuery
	chatID := query.Message.Chat.ID
	if _, err := t.Bot.Request(api.NewCallback(query.ID, "")); err != nil {
		return fmt.Errorf("failed to request callback: %w", err)
	}
	if !t.isAllowed(chatID) {
		return nil
	}

	action, msgID, err := parseCallbackData(query.Data)
	if err != nil {
		return fmt.Errorf("failed to parse callback data %q: %w", query.Data, err)
	}
	profile, err := t.User.GetProfileForTelegramUser(ctx, chatID)
	if err != nil {
		return fmt.Errorf("failed to get profile for telegram user: %w", err)
	}
	session := t.chatFor(chatID, profile).session
	fileID, err := session.FileIDOf(msgID)
	if err != nil {
		t.sendMessageAndHandleErr(chatID, TextNoFileYet.Text(local.ParseLanguage(profile.Language)))
		return nil
	}
	session.Go(
		"file action", func(ctx context.Context) error {
			return session.RunFileAction(ctx, fileID, action, "")
		},
	)
	return nil
}

func (t *TelegramUsecase) sendText(session *Session, text string) {
	session.Go(
		"send text", func(ctx context.Context) error {
			return session.SendText(ctx, text)
		},
	)
}

func (t *TelegramUsecase) handleDocument(chatID int64, session *Session, doc *api.Document) error {
	url, err := t.Bot.GetFileDirectURL(doc.FileID)
	if err != nil {
		t.sendMessageAndHandleErr(chatID, TextUploadFailed.Text(session.Language()))
		return fmt.Errorf("failed to get document url: %w", err)
	}
	session.Go(
		"upload document", func(ctx context.Context) error {
			body, err := t.download(ctx, url)
			if err != nil {
				t.sendMessageAndHandleErr(chatID, TextUploadFailed.Text(session.Language()))
				return err
			}
			defer body.Close()
			return session.UploadFile(
				ctx, model.FileUpload{
					Name:     doc.FileName,
					MimeType: doc.MimeType,
					LocalURI: doc.FileName,
					Body:     body,
				},
			)
		},
	)
	return nil
}

func (t *TelegramUsecase) handlePhoto(chatID int64, session *Session, photos []api.PhotoSize, caption string) error {
	largest := photos[len(photos)-1]
	url, err := t.Bot.GetFileDirectURL(largest.FileID)
	if err != nil {
		t.sendMessageAndHandleErr(chatID, TextServerError.Text(session.Language()))
		return fmt.Errorf("failed to get photo url: %w", err)
	}
	session.PickImage(url)
	if strings.TrimSpace(caption) != "" {
		t.sendText(session, caption)
	}
	return nil
}

func (t *TelegramUsecase) download(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := t.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download file: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("failed to download file: status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

func (t *TelegramUsecase) isAllowed(chatID int64) bool {
	if len(t.allowedUsers) == 0 {
		return true
	}
	_, ok := t.allowedUsers[chatID]
	return ok
}

// telegramChat binds a session to a Telegram chat. Session events are
// queued on a buffered channel and sent from a dedicated goroutine so that
// bot calls never run inside a session listener.
type telegramChat struct {
	chatID      int64
	session     *Session
	events      chan model.Event
	unsubscribe func()
	done        chan struct{}

	keyboards map[int64]struct{}
}

func sessionKeyForChat(chatID int64) string {
	return "tg:" + strconv.FormatInt(chatID, 10)
}

func (t *TelegramUsecase) chatFor(chatID int64, profile model.Profile) *telegramChat {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.chats[chatID]; ok {
		return c
	}
	session := t.Sessions.GetOrCreate(
		sessionKeyForChat(chatID), SessionOptions{
			Owner:    sessionKeyForChat(chatID),
			Language: local.ParseLanguage(profile.Language),
			Role:     profile.Role,
		},
	)
	c := &telegramChat{
		chatID:    chatID,
		session:   session,
		events:    make(chan model.Event, telegramEventBuffer),
		done:      make(chan struct{}),
		keyboards: make(map[int64]struct{}),
	}
	c.unsubscribe = session.SubscribeWithSnapshot(
		func(messages []model.Message) {
			for i := range messages {
				select {
				case c.events <- model.Event{Kind: model.EventAppended, Message: &messages[i]}:
				default:
				}
			}
		},
		func(ev model.Event) {
			select {
			case c.events <- ev:
			default:
				t.Logger.Warn("telegram event dropped", "chat", chatID, "kind", ev.Kind)
			}
		},
	)
	go t.forward(c)
	t.chats[chatID] = c
	return c
}

func (t *TelegramUsecase) forward(c *telegramChat) {
	defer close(c.done)
	for ev := range c.events {
		if ev.Kind == model.EventTyping {
			if ev.Typing {
				if _, err := t.Bot.Request(api.NewChatAction(c.chatID, api.ChatTyping)); err != nil {
					t.Logger.Warn("failed to send chat action", "chat", c.chatID, "error", err)
				}
			}
			continue
		}
		for _, out := range c.render(ev) {
			if _, err := t.sendToBot(out); err != nil {
				t.Logger.Warn("failed to send message to bot", "chat", c.chatID, "error", err)
			}
		}
	}
}

// render turns a session event into bot messages. User input already shows
// in the chat; only assistant output, notices and the action keyboard of a
// freshly uploaded file are sent.
func (c *telegramChat) render(ev model.Event) []api.Chattable {
	lang := c.session.Language()
	switch ev.Kind {
	case model.EventNotice:
		return []api.Chattable{api.NewMessage(c.chatID, ev.Notice)}
	case model.EventAppended, model.EventUpdated:
	default:
		return nil
	}
	if ev.Message == nil {
		return nil
	}
	m := *ev.Message

	if m.Sender == model.SenderUser {
		f, ok := m.File()
		if !ok || f.UploadState != model.UploadStateDone {
			return nil
		}
		if _, sent := c.keyboards[m.ID]; sent {
			return nil
		}
		c.keyboards[m.ID] = struct{}{}
		msg := api.NewMessage(c.chatID, joinNonEmpty(f.Name, m.Text))
		msg.ReplyMarkup = fileActionsKeyboard(m.ID, lang)
		return []api.Chattable{msg}
	}
	if ev.Kind != model.EventAppended {
		return nil
	}

	switch media := m.Media.(type) {
	case model.ImageMedia:
		photo := api.NewPhoto(c.chatID, api.FileURL(media.URL))
		photo.Caption = m.Text
		return []api.Chattable{photo}
	case model.FileMedia:
		return []api.Chattable{api.NewMessage(c.chatID, joinNonEmpty(m.Text, media.Name+": "+media.URL))}
	case model.AudioMedia:
		return []api.Chattable{api.NewAudio(c.chatID, api.FileURL(media.URI))}
	}
	if m.Text == "" {
		return nil
	}
	return []api.Chattable{api.NewMessage(c.chatID, m.Text)}
}

func (c *telegramChat) close() {
	c.unsubscribe()
	close(c.events)
	<-c.done
}

func (t *TelegramUsecase) dropChat(chatID int64) {
	t.mu.Lock()
	c, ok := t.chats[chatID]
	delete(t.chats, chatID)
	t.mu.Unlock()
	if !ok {
		return
	}
	c.close()
	if err := t.Sessions.Delete(sessionKeyForChat(chatID)); err != nil && !errors.Is(err, ErrSessionNotFound) {
		t.Logger.Warn("failed to delete session", "chat", chatID, "error", err)
	}
}

func (t *TelegramUsecase) handleExpiredSession(s *Session) {
	t.mu.Lock()
	var expired *telegramChat
	for chatID, c := range t.chats {
		if c.session == s {
			expired = c
			delete(t.chats, chatID)
			break
		}
	}
	t.mu.Unlock()
	if expired == nil {
		return
	}
	expired.close()
	t.sendMessageAndHandleErr(expired.chatID, TextContextCleared.Text(s.Language()))
}

func (t *TelegramUsecase) closeChats() {
	t.mu.Lock()
	chats := make([]*telegramChat, 0, len(t.chats))
	for chatID, c := range t.chats {
		chats = append(chats, c)
		delete(t.chats, chatID)
	}
	t.mu.Unlock()
	for _, c := range chats {
		c.close()
	}
}

func fileActionsKeyboard(msgID int64, lang local.Language) api.InlineKeyboardMarkup {
	id := strconv.FormatInt(msgID, 10)
	return api.NewInlineKeyboardMarkup(
		api.NewInlineKeyboardRow(
			api.NewInlineKeyboardButtonData(TextActionFix.Text(lang), string(model.FileActionFix)+callbackSeparator+id),
			api.NewInlineKeyboardButtonData(TextActionTranslate.Text(lang), string(model.FileActionTranslate)+callbackSeparator+id),
			api.NewInlineKeyboardButtonData(TextActionAnalyze.Text(lang), string(model.FileActionAnalyze)+callbackSeparator+id),
		),
	)
}

func parseCallbackData(data string) (model.FileAction, int64, error) {
	rawAction, rawID, ok := strings.Cut(data, callbackSeparator)
	if !ok {
		return "", 0, fmt.Errorf("missing separator")
	}
	action, err := model.ParseFileAction(rawAction)
	if err != nil {
		return "", 0, err
	}
	if action == model.FileActionCustom {
		return "", 0, fmt.Errorf("custom action needs a prompt")
	}
	msgID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("failed to parse message id: %w", err)
	}
	return action, msgID, nil
}

func joinNonEmpty(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n")
}

func (t *TelegramUsecase) sendMessageAndHandleErr(chatID int64, message string) api.Message {
	msg, err := t.sendMessage(chatID, message)
	if err != nil {
		t.Logger.Warn("failed to send new message to bot", "chat", chatID, "error", err)
	}
	return msg
}

func (t *TelegramUsecase) sendMessage(chatID int64, message string) (api.Message, error) {
	return t.sendToBot(api.NewMessage(chatID, message))
}

func (t *TelegramUsecase) sendToBot(c api.Chattable) (api.Message, error) {
	return t.Bot.Send(c)
}
