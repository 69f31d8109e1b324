package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"docqa/internal/indexer"
	"docqa/internal/llm"
	"docqa/internal/rag"
	"docqa/internal/storage"
	storagemocks "docqa/internal/storage/mocks"
)

type fakeRetriever struct {
	units         []indexer.ContentUnit
	err           error
	globalCalls   int
	lastSelection string
}

func (f *fakeRetriever) RetrieveGlobal(ctx context.Context, question string, topK int, minScore float32) ([]indexer.ContentUnit, error) {
	f.globalCalls++
	return f.units, f.err
}

func (f *fakeRetriever) RetrieveSelection(selectedText string) []indexer.ContentUnit {
	f.lastSelection = selectedText
	return []indexer.ContentUnit{{Text: selectedText, UnitKind: indexer.KindSelection}}
}

type fakeComposer struct {
	result      rag.QueryResult
	err         error
	lastHistory []llm.Message
	lastUnits   []indexer.ContentUnit
}

func (f *fakeComposer) ComposeGlobal(ctx context.Context, question string, history []llm.Message, units []indexer.ContentUnit) (rag.QueryResult, error) {
	f.lastHistory = history
	return f.result, f.err
}

func (f *fakeComposer) ComposeSelection(ctx context.Context, question string, units []indexer.ContentUnit) (rag.QueryResult, error) {
	f.lastUnits = units
	return f.result, f.err
}

func newTestService(r GlobalRetriever, c AnswerComposer, sessions storage.SessionStore) *QueryService {
	return NewQueryService(r, c, sessions, QueryServiceOptions{
		MaxQuestionTokens:  64,
		MaxSelectionTokens: 128,
		HistoryWindow:      4,
		Timeout:            5 * time.Second,
	})
}

func TestQueryService_AnswerGlobal(t *testing.T) {
	retriever := &fakeRetriever{
		units: []indexer.ContentUnit{{Text: "context", SourcePath: "a.md"}},
	}
	composer := &fakeComposer{
		result: rag.QueryResult{
			AnswerText: "The answer.",
			Citations:  []rag.Citation{{SectionTitle: "A", SourcePath: "a.md", AnchorURL: "/a#a"}},
			UnitsUsed:  1,
		},
	}
	svc := newTestService(retriever, composer, nil)

	resp, err := svc.AnswerGlobal(context.Background(), QueryRequest{Question: "What is it?"})
	if err != nil {
		t.Fatalf("AnswerGlobal() unexpected error: %v", err)
	}
	if resp.AnswerText != "The answer." {
		t.Errorf("AnswerText = %q, want The answer.", resp.AnswerText)
	}
	if len(resp.Citations) != 1 {
		t.Errorf("got %d citations, want 1", len(resp.Citations))
	}
	if resp.UnitsUsed != 1 {
		t.Errorf("UnitsUsed = %d, want 1", resp.UnitsUsed)
	}
	if resp.ElapsedMs < 0 {
		t.Errorf("ElapsedMs = %d, want >= 0", resp.ElapsedMs)
	}
	if retriever.globalCalls != 1 {
		t.Errorf("retriever called %d times, want 1", retriever.globalCalls)
	}
}

func TestQueryService_AnswerGlobal_Validation(t *testing.T) {
	tests := []struct {
		name     string
		question string
	}{
		{name: "empty question", question: ""},
		{name: "whitespace question", question: "   \n"},
		{name: "oversized question", question: strings.Repeat("word ", 200)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			retriever := &fakeRetriever{}
			svc := newTestService(retriever, &fakeComposer{}, nil)

			_, err := svc.AnswerGlobal(context.Background(), QueryRequest{Question: tt.question})

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("AnswerGlobal() error = %v, want *ValidationError", err)
			}
			if retriever.globalCalls != 0 {
				t.Errorf("retriever called %d times on invalid input, want 0", retriever.globalCalls)
			}
		})
	}
}

func TestQueryService_AnswerSelection_NeverRetrievesGlobally(t *testing.T) {
	retriever := &fakeRetriever{}
	composer := &fakeComposer{
		result: rag.QueryResult{AnswerText: "From the selection.", Citations: []rag.Citation{}, UnitsUsed: 1},
	}
	svc := newTestService(retriever, composer, nil)

	resp, err := svc.AnswerSelection(context.Background(), QueryRequest{
		Question:     "Summarize this.",
		SelectedText: "The passage under discussion.",
	})
	if err != nil {
		t.Fatalf("AnswerSelection() unexpected error: %v", err)
	}
	if resp.AnswerText != "From the selection." {
		t.Errorf("AnswerText = %q, want From the selection.", resp.AnswerText)
	}
	if len(resp.Citations) != 0 {
		t.Errorf("got %d citations, want 0", len(resp.Citations))
	}
	if retriever.globalCalls != 0 {
		t.Errorf("global retrieval ran %d times during selection answer, want 0", retriever.globalCalls)
	}
	if retriever.lastSelection != "The passage under discussion." {
		t.Errorf("retriever saw selection %q, want the request text", retriever.lastSelection)
	}
	if len(composer.lastUnits) != 1 || composer.lastUnits[0].UnitKind != indexer.KindSelection {
		t.Errorf("composer units = %+v, want one selection unit", composer.lastUnits)
	}
}

func TestQueryService_AnswerSelection_Validation(t *testing.T) {
	tests := []struct {
		name     string
		selected string
	}{
		{name: "empty selection", selected: ""},
		{name: "oversized selection", selected: strings.Repeat("word ", 400)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(&fakeRetriever{}, &fakeComposer{}, nil)

			_, err := svc.AnswerSelection(context.Background(), QueryRequest{
				Question:     "ok question",
				SelectedText: tt.selected,
			})

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("AnswerSelection() error = %v, want *ValidationError", err)
			}
		})
	}
}

func TestQueryService_SessionLifecycle(t *testing.T) {
	ctrl := gomock.NewController(t)

	sessions := storagemocks.NewMockSessionStore(ctrl)
	sessions.EXPECT().CreateSession(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, s *storage.Session) error {
			if s.UserID != "user-1" {
				t.Errorf("session UserID = %q, want user-1", s.UserID)
			}
			if s.Mode != "global" {
				t.Errorf("session Mode = %q, want global", s.Mode)
			}
			return nil
		})
	sessions.EXPECT().AppendMessage(gomock.Any(), gomock.Any()).Return(nil).Times(2)
	sessions.EXPECT().TouchSession(gomock.Any(), gomock.Any()).Return(nil)

	composer := &fakeComposer{result: rag.QueryResult{AnswerText: "a", Citations: []rag.Citation{}}}
	svc := newTestService(&fakeRetriever{}, composer, sessions)

	resp, err := svc.AnswerGlobal(context.Background(), QueryRequest{
		Question: "hello?",
		UserID:   "user-1",
	})
	if err != nil {
		t.Fatalf("AnswerGlobal() unexpected error: %v", err)
	}
	if resp.SessionID == "" {
		t.Error("SessionID empty, want a new session id")
	}
}

func TestQueryService_SessionHistoryReplayed(t *testing.T) {
	ctrl := gomock.NewController(t)

	records := []storage.MessageRecord{
		{Role: "user", Content: "first question"},
		{Role: "assistant", Content: "first answer"},
	}
	sessions := storagemocks.NewMockSessionStore(ctrl)
	sessions.EXPECT().RecentMessages(gomock.Any(), "sess-1", 4).Return(records, nil)
	sessions.EXPECT().AppendMessage(gomock.Any(), gomock.Any()).Return(nil).Times(2)
	sessions.EXPECT().TouchSession(gomock.Any(), "sess-1").Return(nil)

	composer := &fakeComposer{result: rag.QueryResult{AnswerText: "a", Citations: []rag.Citation{}}}
	svc := newTestService(&fakeRetriever{}, composer, sessions)

	resp, err := svc.AnswerGlobal(context.Background(), QueryRequest{
		Question:  "follow-up?",
		UserID:    "user-1",
		SessionID: "sess-1",
	})
	if err != nil {
		t.Fatalf("AnswerGlobal() unexpected error: %v", err)
	}
	if resp.SessionID != "sess-1" {
		t.Errorf("SessionID = %q, want sess-1", resp.SessionID)
	}
	if len(composer.lastHistory) != 2 {
		t.Fatalf("composer saw %d history messages, want 2", len(composer.lastHistory))
	}
	if composer.lastHistory[0].Content != "first question" {
		t.Errorf("history[0] = %+v, want the first question", composer.lastHistory[0])
	}
}

func TestQueryService_ClientHistoryOverridesStored(t *testing.T) {
	composer := &fakeComposer{result: rag.QueryResult{AnswerText: "a", Citations: []rag.Citation{}}}
	svc := newTestService(&fakeRetriever{}, composer, nil)

	supplied := []llm.Message{
		{Role: "user", Content: "turn 1"},
		{Role: "assistant", Content: "answer 1"},
		{Role: "user", Content: "turn 2"},
		{Role: "assistant", Content: "answer 2"},
		{Role: "user", Content: "turn 3"},
		{Role: "assistant", Content: "answer 3"},
	}
	_, err := svc.AnswerGlobal(context.Background(), QueryRequest{
		Question:            "follow-up?",
		ConversationHistory: supplied,
	})
	if err != nil {
		t.Fatalf("AnswerGlobal() unexpected error: %v", err)
	}
	if len(composer.lastHistory) != 4 {
		t.Fatalf("composer saw %d history messages, want window of 4", len(composer.lastHistory))
	}
	if composer.lastHistory[0].Content != "turn 2" {
		t.Errorf("history[0] = %+v, want the oldest retained turn", composer.lastHistory[0])
	}
}

func TestQueryService_AnonymousLeavesNoTrace(t *testing.T) {
	ctrl := gomock.NewController(t)

	// No expectations: any store call fails the test.
	sessions := storagemocks.NewMockSessionStore(ctrl)

	composer := &fakeComposer{result: rag.QueryResult{AnswerText: "a", Citations: []rag.Citation{}}}
	svc := newTestService(&fakeRetriever{}, composer, sessions)

	resp, err := svc.AnswerGlobal(context.Background(), QueryRequest{Question: "hello?"})
	if err != nil {
		t.Fatalf("AnswerGlobal() unexpected error: %v", err)
	}
	if resp.SessionID != "" {
		t.Errorf("SessionID = %q, want empty for anonymous caller", resp.SessionID)
	}
}
