// Package chat runs one user message through parsing, dialogue merge and
// routing, with the session's dialogue state held for the whole pass.
package chat

import (
	"context"
	"time"

	"github.com/tuitionchat/tuition-chat-go/internal/ctxutil"
	"github.com/tuitionchat/tuition-chat-go/internal/dialogue"
	"github.com/tuitionchat/tuition-chat-go/internal/intent"
	"github.com/tuitionchat/tuition-chat-go/internal/logger"
	"github.com/tuitionchat/tuition-chat-go/internal/metrics"
	"github.com/tuitionchat/tuition-chat-go/internal/router"
)

// stageFailed labels messages whose routing hit a transport or auth error.
const stageFailed = "failed"

// Parser classifies raw text.
type Parser interface {
	Parse(ctx context.Context, text string) intent.ParsedIntent
}

// Router dispatches a merged intent.
type Router interface {
	Route(ctx context.Context, p intent.ParsedIntent) (router.Response, error)
}

// Reply is the answer to one chat message. It marshals flat:
// {userMessage, stage, intent, success, message, api, ui}.
type Reply struct {
	UserMessage string `json:"userMessage"`
	router.Response
}

// Service processes chat messages.
type Service struct {
	parser  Parser
	router  Router
	states  dialogue.Store
	logger  *logger.Logger
	metrics *metrics.Metrics
}

// NewService creates a Service.
func NewService(parser Parser, rt Router, states dialogue.Store, log *logger.Logger, m *metrics.Metrics) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		parser:  parser,
		router:  rt,
		states:  states,
		logger:  log.WithModule("chat"),
		metrics: m,
	}
}

// Process handles text for sessionID. Parsing, which may call the LLM,
// happens before the session state is locked.
//
// When routing fails, the state produced by the merge is still saved
// (a consumed LastStudentNo stays consumed) and the error is returned.
func (s *Service) Process(ctx context.Context, sessionID, text string) (Reply, error) {
	ctx = ctxutil.WithSessionID(ctx, sessionID)
	start := time.Now()

	var (
		reply    Reply
		merged   intent.ParsedIntent
		routeErr error
	)
	parsed := s.parser.Parse(ctx, text)
	err := s.states.Update(ctx, sessionID, func(st *dialogue.State) error {
		merged = dialogue.Merge(parsed, st, text)

		resp, err := s.router.Route(ctx, merged)
		if err != nil {
			routeErr = err
			return nil
		}

		dialogue.Apply(merged, resp, st)
		reply = Reply{UserMessage: text, Response: resp}
		return nil
	})
	if err != nil {
		s.logger.WithError(err).ErrorContext(ctx, "failed to update dialogue state")
		return Reply{}, err
	}

	if routeErr != nil {
		s.metrics.RecordChat(stageFailed, string(merged.Intent))
		s.logger.WithError(routeErr).ErrorContext(ctx, "routing failed",
			"intent", merged.Intent,
			"duration", time.Since(start))
		return Reply{}, routeErr
	}

	s.metrics.RecordChat(string(reply.Stage), string(reply.Intent))
	s.logger.InfoContext(ctx, "message processed",
		"intent", reply.Intent,
		"stage", reply.Stage,
		"success", reply.Success,
		"duration", time.Since(start))
	return reply, nil
}

// Forget drops the session's dialogue state.
func (s *Service) Forget(ctx context.Context, sessionID string) error {
	return s.states.Delete(ctx, sessionID)
}
