package serve

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/samsaffron/sizesync/internal/config"
	"github.com/samsaffron/sizesync/internal/conversation"
	"golang.org/x/term"
)

const (
	msgDownloadFailed = "Sorry, I had trouble downloading the image. Please try again."
	msgFileTooLarge   = "That file is too large for me to download. Please send a smaller one."
	msgSendFailed     = "Sorry, there was an error sending the final image."
)

const telegramHelp = "Hello! I am your **Image Resizer Bot**.\n\n" +
	"To get started, simply send me any image you want to resize. " +
	"I can resize by pixels, by centimeters (at 96 DPI) or to fit a file size.\n\n" +
	"- /cancel - abandon the current resize\n" +
	"- /status - show where we are\n" +
	"- /help - show this message\n"

const defaultSweepInterval = time.Minute

var errDownloadTooLarge = errors.New("file exceeds download limit")

// botSender is the subset of tgbotapi.BotAPI used by the update handlers,
// allowing tests to supply a fake without a live connection.
type botSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// TelegramPlatform implements Platform for the Telegram messaging platform.
type TelegramPlatform struct {
	cfg config.TelegramConfig
	in  io.Reader
	out io.Writer
}

// NewTelegramPlatform creates a new TelegramPlatform with the given config.
func NewTelegramPlatform(cfg config.TelegramConfig) *TelegramPlatform {
	return &TelegramPlatform{cfg: cfg, in: os.Stdin, out: os.Stdout}
}

func (p *TelegramPlatform) Name() string { return "telegram" }

// NeedsSetup returns true when the bot token is missing.
func (p *TelegramPlatform) NeedsSetup() bool {
	return strings.TrimSpace(p.cfg.Token) == ""
}

// RunSetup runs an interactive wizard that collects and persists bot credentials.
func (p *TelegramPlatform) RunSetup() error {
	scanner := bufio.NewScanner(p.in)
	out := p.out

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Telegram Bot Setup")
	fmt.Fprintln(out, "==================")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "1. Open @BotFather on Telegram → /newbot → copy the token")
	fmt.Fprint(out, "   Token: ")

	token, err := p.readSecret(scanner)
	if err != nil {
		return err
	}
	if token == "" {
		return fmt.Errorf("token is required")
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "2. Optionally restrict the bot to Telegram user ID(s) and/or @username(s).")
	fmt.Fprintln(out, "   Leave empty to let anyone use it.")
	fmt.Fprint(out, "   Allowed users (comma-separated): ")

	var raw string
	if scanner.Scan() {
		raw = scanner.Text()
	}
	userIDs, usernames, err := parseAllowedUsers(raw)
	if err != nil {
		return err
	}

	newCfg := p.cfg
	newCfg.Token = token
	newCfg.AllowedUserIDs = userIDs
	newCfg.AllowedUsernames = usernames

	if err := config.SetTelegramConfig(newCfg); err != nil {
		return fmt.Errorf("save telegram config: %w", err)
	}

	// Update in-memory config so Run() can proceed immediately after setup.
	p.cfg = newCfg
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Telegram configuration saved.")
	return nil
}

// readSecret reads the token without echo when stdin is a terminal.
func (p *TelegramPlatform) readSecret(scanner *bufio.Scanner) (string, error) {
	if f, ok := p.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(p.out)
		if err != nil {
			return "", fmt.Errorf("read token: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	if !scanner.Scan() {
		return "", fmt.Errorf("no input received")
	}
	return strings.TrimSpace(scanner.Text()), nil
}

// parseAllowedUsers splits "123, @alice" into numeric IDs and lower-cased
// usernames.
func parseAllowedUsers(raw string) ([]int64, []string, error) {
	var userIDs []int64
	var usernames []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.HasPrefix(part, "@") {
			if name := strings.TrimPrefix(part, "@"); name != "" {
				usernames = append(usernames, strings.ToLower(name))
			}
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid entry %q: must be a numeric ID or @username", part)
		}
		userIDs = append(userIDs, id)
	}
	return userIDs, usernames, nil
}

// Run starts the Telegram bot loop, blocking until ctx is cancelled.
func (p *TelegramPlatform) Run(ctx context.Context, settings Settings) error {
	token := strings.TrimSpace(p.cfg.Token)
	if token == "" {
		return fmt.Errorf("telegram bot token is not configured; run with --setup to configure")
	}
	if settings.Orchestrator == nil {
		return fmt.Errorf("telegram: no orchestrator configured")
	}

	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return fmt.Errorf("telegram connect: %w", err)
	}
	bot.Debug = settings.Debug
	log.Printf("[telegram] authorised as @%s", bot.Self.UserName)

	mgr := newTelegramMgr(p.cfg, settings)
	if len(mgr.allowedUserIDs) == 0 && len(mgr.allowedUsernames) == 0 {
		log.Println("[telegram] no allowed_user_ids or allowed_usernames configured; accepting everyone")
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = p.cfg.PollTimeout
	if u.Timeout <= 0 {
		u.Timeout = config.DefaultPollTimeout
	}
	updates := bot.GetUpdatesChan(u)

	interval := settings.SweepInterval
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	sweep := time.NewTicker(interval)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			bot.StopReceivingUpdates()
			mgr.wait()
			mgr.orch.Close()
			return nil
		case <-sweep.C:
			if n := mgr.orch.Sweep(); n > 0 {
				log.Printf("[telegram] discarded %d idle session(s)", n)
			}
		case update, ok := <-updates:
			if !ok {
				mgr.wait()
				mgr.orch.Close()
				return nil
			}
			mgr.dispatch(ctx, bot, update)
		}
	}
}

// telegramMgr routes Telegram updates into the orchestrator. Each chat is
// one conversation; its updates are handled one at a time in arrival order,
// downloads included, while different chats proceed in parallel.
type telegramMgr struct {
	orch             *conversation.Orchestrator
	client           *http.Client
	maxDownload      int64
	allowedUserIDs   map[int64]struct{}
	allowedUsernames map[string]struct{}

	queueMu sync.Mutex
	queues  map[int64]*chatQueue
	workers sync.WaitGroup
}

// chatQueue holds updates for one chat that its worker has not reached yet.
// A queue is in the manager's map exactly while its worker is running.
type chatQueue struct {
	pending []tgbotapi.Update
}

func newTelegramMgr(cfg config.TelegramConfig, settings Settings) *telegramMgr {
	m := &telegramMgr{
		orch:             settings.Orchestrator,
		client:           settings.HTTPClient,
		maxDownload:      cfg.MaxDownloadBytes,
		allowedUserIDs:   buildAllowedSet(cfg.AllowedUserIDs),
		allowedUsernames: buildAllowedUsernameSet(cfg.AllowedUsernames),
		queues:           make(map[int64]*chatQueue),
	}
	if m.client == nil {
		m.client = http.DefaultClient
	}
	if m.maxDownload <= 0 {
		m.maxDownload = config.DefaultMaxDownloadBytes
	}
	return m
}

func buildAllowedSet(ids []int64) map[int64]struct{} {
	m := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return m
}

func buildAllowedUsernameSet(names []string) map[string]struct{} {
	m := make(map[string]struct{}, len(names))
	for _, name := range names {
		m[strings.ToLower(strings.TrimPrefix(name, "@"))] = struct{}{}
	}
	return m
}

func (m *telegramMgr) isAllowed(user *tgbotapi.User) bool {
	if user == nil {
		return false
	}
	if len(m.allowedUserIDs) == 0 && len(m.allowedUsernames) == 0 {
		return true
	}
	if _, ok := m.allowedUserIDs[user.ID]; ok {
		return true
	}
	if user.UserName != "" {
		_, ok := m.allowedUsernames[strings.ToLower(user.UserName)]
		return ok
	}
	return false
}

// dispatch queues update behind earlier updates for the same chat, starting
// a worker for the chat if none is running. Updates without a chat (a
// callback on a message too old to carry one) are handled on their own.
func (m *telegramMgr) dispatch(ctx context.Context, bot botSender, update tgbotapi.Update) {
	chatID, ok := updateChatID(update)
	if !ok {
		m.workers.Add(1)
		go func() {
			defer m.workers.Done()
			m.handleUpdate(ctx, bot, update)
		}()
		return
	}

	m.queueMu.Lock()
	q, running := m.queues[chatID]
	if !running {
		q = &chatQueue{}
		m.queues[chatID] = q
	}
	q.pending = append(q.pending, update)
	m.queueMu.Unlock()

	if !running {
		m.workers.Add(1)
		go m.drain(ctx, bot, chatID, q)
	}
}

// drain handles q's updates in order until it is empty, then retires q.
// Once ctx is done the remaining updates are dropped.
func (m *telegramMgr) drain(ctx context.Context, bot botSender, chatID int64, q *chatQueue) {
	defer m.workers.Done()
	for {
		m.queueMu.Lock()
		if len(q.pending) == 0 || ctx.Err() != nil {
			if n := len(q.pending); n > 0 {
				log.Printf("[telegram] dropping %d queued update(s) for chat %d on shutdown", n, chatID)
			}
			delete(m.queues, chatID)
			m.queueMu.Unlock()
			return
		}
		update := q.pending[0]
		q.pending = q.pending[1:]
		m.queueMu.Unlock()

		m.handleUpdate(ctx, bot, update)
	}
}

// wait blocks until every chat worker has finished.
func (m *telegramMgr) wait() {
	m.workers.Wait()
}

func updateChatID(update tgbotapi.Update) (int64, bool) {
	switch {
	case update.Message != nil && update.Message.Chat != nil:
		return update.Message.Chat.ID, true
	case update.CallbackQuery != nil && update.CallbackQuery.Message != nil && update.CallbackQuery.Message.Chat != nil:
		return update.CallbackQuery.Message.Chat.ID, true
	}
	return 0, false
}

func (m *telegramMgr) handleUpdate(ctx context.Context, bot botSender, update tgbotapi.Update) {
	switch {
	case update.Message != nil:
		m.handleMessage(ctx, bot, update.Message)
	case update.CallbackQuery != nil:
		m.handleCallback(ctx, bot, update.CallbackQuery)
	}
}

func (m *telegramMgr) handleMessage(ctx context.Context, bot botSender, msg *tgbotapi.Message) {
	if msg.Chat == nil {
		return
	}
	if !m.isAllowed(msg.From) {
		if msg.From != nil {
			log.Printf("[telegram] ignoring message from unauthorised user %d (@%s)", msg.From.ID, msg.From.UserName)
		}
		return
	}

	chatID := msg.Chat.ID

	if msg.IsCommand() {
		switch msg.Command() {
		case "start", "help":
			m.sendHTML(bot, chatID, telegramHelp)
		case "cancel":
			m.render(bot, chatID, m.orch.OnCancel(ctx, chatID))
		case "status":
			m.sendHTML(bot, chatID, fmt.Sprintf("**Status:** %s", m.orch.State(chatID)))
		default:
			m.sendHTML(bot, chatID, telegramHelp)
		}
		return
	}

	if fileID, size, ok := incomingFile(msg); ok {
		m.chatAction(bot, chatID, tgbotapi.ChatTyping)
		data, err := m.download(ctx, bot, fileID, size)
		if err != nil {
			log.Printf("[telegram] download failed for chat %d: %v", chatID, err)
			text := msgDownloadFailed
			if errors.Is(err, errDownloadTooLarge) {
				text = msgFileTooLarge
			}
			_, _ = bot.Send(tgbotapi.NewMessage(chatID, text))
			return
		}
		m.render(bot, chatID, m.orch.OnImageReceived(ctx, chatID, data))
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}
	m.chatAction(bot, chatID, tgbotapi.ChatTyping)
	m.render(bot, chatID, m.orch.OnTextReceived(ctx, chatID, text))
}

// incomingFile picks the file to download from a message: the largest photo
// size, or an attached document.
func incomingFile(msg *tgbotapi.Message) (fileID string, size int64, ok bool) {
	if n := len(msg.Photo); n > 0 {
		largest := msg.Photo[0]
		for _, p := range msg.Photo[1:] {
			if p.Width*p.Height > largest.Width*largest.Height {
				largest = p
			}
		}
		return largest.FileID, int64(largest.FileSize), true
	}
	if msg.Document != nil {
		return msg.Document.FileID, int64(msg.Document.FileSize), true
	}
	return "", 0, false
}

func (m *telegramMgr) download(ctx context.Context, bot botSender, fileID string, size int64) ([]byte, error) {
	if size > m.maxDownload {
		return nil, fmt.Errorf("%w: %d bytes", errDownloadTooLarge, size)
	}
	url, err := bot.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("resolve file: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch file: HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, m.maxDownload+1))
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if int64(len(data)) > m.maxDownload {
		return nil, fmt.Errorf("%w: more than %d bytes", errDownloadTooLarge, m.maxDownload)
	}
	return data, nil
}

func (m *telegramMgr) handleCallback(ctx context.Context, bot botSender, cq *tgbotapi.CallbackQuery) {
	if _, err := bot.Request(tgbotapi.NewCallback(cq.ID, "")); err != nil {
		log.Printf("[telegram] answer callback failed: %v", err)
	}
	if cq.Message == nil || cq.Message.Chat == nil {
		return
	}
	if !m.isAllowed(cq.From) {
		return
	}

	chatID := cq.Message.Chat.ID
	reply := m.orch.OnChoiceReceived(ctx, chatID, cq.Data)
	if reply.Err != nil {
		log.Printf("[telegram] chat %d: choice %q: %v", chatID, cq.Data, reply.Err)
	}

	// Turn the menu into the reply so its buttons cannot be pressed again.
	edit := tgbotapi.NewEditMessageText(chatID, cq.Message.MessageID, reply.Text)
	if _, err := bot.Send(edit); err != nil {
		log.Printf("[telegram] edit menu failed for chat %d: %v", chatID, err)
		reply.Err = nil
		m.render(bot, chatID, reply)
	}
}

// render delivers a conversation reply: the document first, then the text
// with its menu, if any.
func (m *telegramMgr) render(bot botSender, chatID int64, reply conversation.Reply) {
	if reply.Err != nil {
		log.Printf("[telegram] chat %d: %v", chatID, reply.Err)
	}

	if doc := reply.Document; doc != nil {
		m.chatAction(bot, chatID, tgbotapi.ChatUploadDocument)
		upload := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: doc.Filename, Bytes: doc.Data})
		upload.Caption = doc.Caption
		if _, err := bot.Send(upload); err != nil {
			log.Printf("[telegram] send document failed for chat %d: %v", chatID, err)
			_, _ = bot.Send(tgbotapi.NewMessage(chatID, msgSendFailed))
			return
		}
	}

	if reply.Text == "" {
		return
	}
	out := tgbotapi.NewMessage(chatID, reply.Text)
	if len(reply.Choices) > 0 {
		out.ReplyMarkup = choiceKeyboard(reply.Choices)
	}
	if _, err := bot.Send(out); err != nil {
		log.Printf("[telegram] send failed for chat %d: %v", chatID, err)
	}
}

func choiceKeyboard(choices []conversation.Choice) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(choices))
	for _, c := range choices {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(c.Label, c.Key)))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func (m *telegramMgr) sendHTML(bot botSender, chatID int64, md string) {
	out := tgbotapi.NewMessage(chatID, markdownToHTML(md))
	out.ParseMode = tgbotapi.ModeHTML
	if _, err := bot.Send(out); err != nil {
		log.Printf("[telegram] send failed for chat %d: %v", chatID, err)
	}
}

// chatAction uses Request because sendChatAction returns a bool, not a Message.
func (m *telegramMgr) chatAction(bot botSender, chatID int64, action string) {
	_, _ = bot.Request(tgbotapi.NewChatAction(chatID, action))
}
