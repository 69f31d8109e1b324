package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"docqa/internal/contextutil"
	"docqa/internal/indexer"
	"docqa/internal/llm"
	"docqa/internal/observability"
	"docqa/internal/rag"
	"docqa/internal/storage"
)

// GlobalRetriever finds context units for a question across the whole
// indexed corpus.
type GlobalRetriever interface {
	RetrieveGlobal(ctx context.Context, question string, topK int, minScore float32) ([]indexer.ContentUnit, error)
	RetrieveSelection(selectedText string) []indexer.ContentUnit
}

// AnswerComposer turns retrieved units and a question into an answer.
type AnswerComposer interface {
	ComposeGlobal(ctx context.Context, question string, history []llm.Message, units []indexer.ContentUnit) (rag.QueryResult, error)
	ComposeSelection(ctx context.Context, question string, units []indexer.ContentUnit) (rag.QueryResult, error)
}

// QueryRequest is a single question from a caller. SelectedText is set
// only in selection mode. UserID is optional; anonymous requests leave
// no session trace.
type QueryRequest struct {
	Question     string `json:"question"`
	SelectedText string `json:"selected_text,omitempty"`
	SessionID    string `json:"session_id,omitempty"`
	UserID       string `json:"user_id,omitempty"`

	// ConversationHistory lets stateless callers replay their own prior
	// turns. When set it takes precedence over stored session history.
	ConversationHistory []llm.Message `json:"conversation_history,omitempty"`
}

// QueryResponse is the answer plus its supporting citations.
type QueryResponse struct {
	AnswerText string         `json:"answer"`
	Citations  []rag.Citation `json:"citations"`
	UnitsUsed  int            `json:"units_used"`
	ElapsedMs  int64          `json:"elapsed_ms"`
	SessionID  string         `json:"session_id,omitempty"`
}

// QueryService validates requests, enforces the query deadline, and
// runs the retrieve-then-compose flow for both answer modes.
type QueryService struct {
	retriever GlobalRetriever
	composer  AnswerComposer
	sessions  storage.SessionStore

	maxQuestionTokens  int
	maxSelectionTokens int
	historyWindow      int
	timeout            time.Duration
}

type QueryServiceOptions struct {
	MaxQuestionTokens  int
	MaxSelectionTokens int
	HistoryWindow      int
	Timeout            time.Duration
}

func NewQueryService(retriever GlobalRetriever, composer AnswerComposer, sessions storage.SessionStore, opts QueryServiceOptions) *QueryService {
	if opts.MaxQuestionTokens <= 0 {
		opts.MaxQuestionTokens = 256
	}
	if opts.MaxSelectionTokens <= 0 {
		opts.MaxSelectionTokens = 2000
	}
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = 6
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &QueryService{
		retriever:          retriever,
		composer:           composer,
		sessions:           sessions,
		maxQuestionTokens:  opts.MaxQuestionTokens,
		maxSelectionTokens: opts.MaxSelectionTokens,
		historyWindow:      opts.HistoryWindow,
		timeout:            opts.Timeout,
	}
}

// AnswerGlobal answers a question against the whole indexed corpus.
func (s *QueryService) AnswerGlobal(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	if err := s.validateQuestion(req.Question); err != nil {
		observability.QueriesTotal.WithLabelValues("global", "rejected").Inc()
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	logger := contextutil.LoggerFromContext(ctx)

	sessionID, history, err := s.loadHistory(ctx, req, "global")
	if err != nil {
		return nil, err
	}
	if len(req.ConversationHistory) > 0 {
		history = trimHistory(req.ConversationHistory, s.historyWindow)
	}

	units, err := s.retriever.RetrieveGlobal(ctx, req.Question, 0, 0)
	if err != nil {
		observability.QueriesTotal.WithLabelValues("global", "error").Inc()
		return nil, err
	}
	observability.RetrievedUnits.Observe(float64(len(units)))

	result, err := s.composer.ComposeGlobal(ctx, req.Question, history, units)
	if err != nil {
		observability.QueriesTotal.WithLabelValues("global", "error").Inc()
		return nil, err
	}

	s.recordTurn(ctx, sessionID, req.Question, result.AnswerText)

	observability.QueriesTotal.WithLabelValues("global", "ok").Inc()
	logger.Info("answered global query",
		slog.Int("units_used", result.UnitsUsed),
		slog.Int("citations", len(result.Citations)),
		slog.Duration("elapsed", time.Since(start)))

	return &QueryResponse{
		AnswerText: result.AnswerText,
		Citations:  result.Citations,
		UnitsUsed:  result.UnitsUsed,
		ElapsedMs:  time.Since(start).Milliseconds(),
		SessionID:  sessionID,
	}, nil
}

// AnswerSelection answers a question about caller-supplied text only.
// The indexed corpus is never consulted.
func (s *QueryService) AnswerSelection(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	if err := s.validateQuestion(req.Question); err != nil {
		observability.QueriesTotal.WithLabelValues("selection", "rejected").Inc()
		return nil, err
	}
	if err := s.validateSelection(req.SelectedText); err != nil {
		observability.QueriesTotal.WithLabelValues("selection", "rejected").Inc()
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	logger := contextutil.LoggerFromContext(ctx)

	sessionID, _, err := s.loadHistory(ctx, req, "selection")
	if err != nil {
		return nil, err
	}

	units := s.retriever.RetrieveSelection(req.SelectedText)

	// Selection answers are self-contained; prior turns are stored for the
	// session view but not replayed into the prompt.
	result, err := s.composer.ComposeSelection(ctx, req.Question, units)
	if err != nil {
		observability.QueriesTotal.WithLabelValues("selection", "error").Inc()
		return nil, err
	}

	s.recordTurn(ctx, sessionID, req.Question, result.AnswerText)

	observability.QueriesTotal.WithLabelValues("selection", "ok").Inc()
	logger.Info("answered selection query",
		slog.Duration("elapsed", time.Since(start)))

	return &QueryResponse{
		AnswerText: result.AnswerText,
		Citations:  result.Citations,
		UnitsUsed:  result.UnitsUsed,
		ElapsedMs:  time.Since(start).Milliseconds(),
		SessionID:  sessionID,
	}, nil
}

func (s *QueryService) validateQuestion(question string) error {
	if strings.TrimSpace(question) == "" {
		return &ValidationError{Field: "question", Message: "must not be empty"}
	}
	if n := indexer.CountTokens(question); n > s.maxQuestionTokens {
		return &ValidationError{
			Field:   "question",
			Message: "exceeds the maximum question length",
		}
	}
	return nil
}

func (s *QueryService) validateSelection(selected string) error {
	if strings.TrimSpace(selected) == "" {
		return &ValidationError{Field: "selected_text", Message: "must not be empty"}
	}
	if n := indexer.CountTokens(selected); n > s.maxSelectionTokens {
		return &ValidationError{
			Field:   "selected_text",
			Message: "exceeds the maximum selection length",
		}
	}
	return nil
}

// loadHistory resolves the session for the request and returns its
// recent turns as chat messages. Requests without a user id are
// answered statelessly.
func (s *QueryService) loadHistory(ctx context.Context, req QueryRequest, mode string) (string, []llm.Message, error) {
	if s.sessions == nil || req.UserID == "" {
		return "", nil, nil
	}

	logger := contextutil.LoggerFromContext(ctx)

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
		sess := &storage.Session{ID: sessionID, UserID: req.UserID, Mode: mode}
		if err := s.sessions.CreateSession(ctx, sess); err != nil {
			logger.Warn("failed to create session", slog.String("error", err.Error()))
			return "", nil, nil
		}
		return sessionID, nil, nil
	}

	records, err := s.sessions.RecentMessages(ctx, sessionID, s.historyWindow)
	if err != nil {
		logger.Warn("failed to load session history", slog.String("error", err.Error()))
		return sessionID, nil, nil
	}

	history := make([]llm.Message, 0, len(records))
	for _, r := range records {
		history = append(history, llm.Message{Role: r.Role, Content: r.Content})
	}
	return sessionID, history, nil
}

// trimHistory keeps only the most recent turns.
func trimHistory(history []llm.Message, window int) []llm.Message {
	if len(history) <= window {
		return history
	}
	return history[len(history)-window:]
}

// recordTurn stores the question and answer. Storage failures are
// logged but never fail the query.
func (s *QueryService) recordTurn(ctx context.Context, sessionID, question, answer string) {
	if s.sessions == nil || sessionID == "" {
		return
	}

	logger := contextutil.LoggerFromContext(ctx)

	for _, m := range []storage.MessageRecord{
		{SessionID: sessionID, Role: "user", Content: question},
		{SessionID: sessionID, Role: "assistant", Content: answer},
	} {
		rec := m
		if err := s.sessions.AppendMessage(ctx, &rec); err != nil {
			logger.Warn("failed to store message", slog.String("error", err.Error()))
			return
		}
	}
	if err := s.sessions.TouchSession(ctx, sessionID); err != nil {
		logger.Warn("failed to touch session", slog.String("error", err.Error()))
	}
}
