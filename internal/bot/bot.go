package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/BTCPredictor/internal/cycle"
	"github.com/Alias1177/BTCPredictor/internal/report"
	"github.com/Alias1177/BTCPredictor/models"
)

const (
	ButtonRun     = "Run Prediction"
	ButtonStats   = "Stats"
	ButtonHistory = "History"

	welcomeText = "Welcome to the Bitcoin Predictor Bot! Each day the model predicts whether " +
		"Bitcoin will rise or fall, and we track how it does against a random guess."
)

// Sender is the part of tgbotapi.BotAPI the handler needs
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Predictor runs cycles and reports accuracy
type Predictor interface {
	Run(ctx context.Context) (*models.CycleResult, error)
	Status(ctx context.Context) (models.Status, error)
}

// History lists ledger records, most recent first
type History interface {
	List(ctx context.Context) ([]models.PredictionRecord, error)
}

// Handler answers Telegram messages
type Handler struct {
	sender       Sender
	predictor    Predictor
	history      History
	historyLimit int
	logger       zerolog.Logger

	mu          sync.Mutex
	subscribers map[int64]struct{}
}

// NewHandler creates a Handler. historyLimit caps the /history listing.
func NewHandler(sender Sender, predictor Predictor, history History, historyLimit int) *Handler {
	if historyLimit <= 0 {
		historyLimit = 10
	}
	return &Handler{
		sender:       sender,
		predictor:    predictor,
		history:      history,
		historyLimit: historyLimit,
		logger:       log.With().Str("component", "telegram_bot").Logger(),
		subscribers:  make(map[int64]struct{}),
	}
}

// Serve handles updates until the channel closes or ctx is done
func (h *Handler) Serve(ctx context.Context, updates <-chan tgbotapi.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message != nil {
				h.HandleMessage(ctx, update.Message)
			}
		}
	}
}

// HandleMessage replies to a single message
func (h *Handler) HandleMessage(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID
	text := strings.TrimSpace(message.Text)
	if i := strings.IndexByte(text, '@'); strings.HasPrefix(text, "/") && i > 0 {
		text = text[:i]
	}

	var reply string
	switch text {
	case "/start", "Main Menu":
		h.subscribe(chatID)
		reply = welcomeText
	case "/run", ButtonRun:
		reply = h.runReply(ctx)
	case "/stats", ButtonStats:
		reply = h.statsReply(ctx)
	case "/history", ButtonHistory:
		reply = h.historyReply(ctx)
	case "/stop":
		h.unsubscribe(chatID)
		reply = "You will no longer receive daily predictions."
	default:
		reply = "Please use the menu buttons below."
	}

	h.send(chatID, reply)
}

// RunScheduled attempts a cycle every interval and pushes new predictions to subscribers
func (h *Handler) RunScheduled(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := h.predictor.Run(ctx)
			if err != nil {
				if errors.Is(err, cycle.ErrAlreadyRanToday) {
					h.logger.Debug().Msg("Scheduled run skipped, already ran today")
				} else {
					h.logger.Warn().Err(err).Msg("Scheduled run failed")
				}
				continue
			}
			h.Broadcast(report.Today(res))
		}
	}
}

// Broadcast sends text to every subscribed chat
func (h *Handler) Broadcast(text string) {
	h.mu.Lock()
	chats := make([]int64, 0, len(h.subscribers))
	for id := range h.subscribers {
		chats = append(chats, id)
	}
	h.mu.Unlock()

	for _, id := range chats {
		h.send(id, text)
	}
}

func (h *Handler) runReply(ctx context.Context) string {
	res, err := h.predictor.Run(ctx)
	switch {
	case err == nil:
		return report.Today(res)
	case errors.Is(err, cycle.ErrAlreadyRanToday):
		return report.AlreadyRunNotice
	case errors.Is(err, cycle.ErrNoData):
		return report.NoDataNotice
	case errors.Is(err, cycle.ErrScoring):
		return "The prediction model is unavailable right now, try again later."
	default:
		h.logger.Error().Err(err).Msg("Prediction cycle failed")
		return "Something went wrong while running the prediction."
	}
}

func (h *Handler) statsReply(ctx context.Context) string {
	s, err := h.predictor.Status(ctx)
	if err != nil {
		h.logger.Error().Err(err).Msg("Error reading accuracy")
		return "Could not load statistics."
	}
	return report.Status(s)
}

func (h *Handler) historyReply(ctx context.Context) string {
	records, err := h.history.List(ctx)
	if err != nil {
		h.logger.Error().Err(err).Msg("Error reading history")
		return "Could not load history."
	}
	return report.History(records, h.historyLimit)
}

func (h *Handler) send(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = mainMenuKeyboard()
	if _, err := h.sender.Send(msg); err != nil {
		h.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send message")
	}
}

func (h *Handler) subscribe(chatID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribers[chatID] = struct{}{}
}

func (h *Handler) unsubscribe(chatID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subscribers, chatID)
}

func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(ButtonRun),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(ButtonStats),
			tgbotapi.NewKeyboardButton(ButtonHistory),
		),
	)
}
