package webhook

import (
	"context"
	"errors"
	"net/http"

	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
	"golang.org/x/sync/errgroup"

	"kakei/internal/flow"
	applog "kakei/internal/log"
)

// inbound is a supported event together with what is needed to answer it.
type inbound struct {
	event      flow.Event
	replyToken string
	eventID    string
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	logger := applog.FromContext(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	cb, err := webhook.ParseRequest(s.secret, r)
	if err != nil {
		if errors.Is(err, webhook.ErrInvalidSignature) {
			logger.WarnContext(r.Context(), "Rejected webhook with invalid signature")
		} else {
			logger.WarnContext(r.Context(), "Malformed webhook body", applog.FieldError, err)
		}
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	events := make([]inbound, 0, len(cb.Events))
	for _, e := range cb.Events {
		in, ok := convert(e)
		if !ok {
			logger.DebugContext(r.Context(), "Ignoring unsupported event", "type", e.GetType())
			continue
		}
		if in.event.UserID == "" {
			logger.WarnContext(r.Context(), "Rejected event without user id", applog.FieldWebhookEventID, in.eventID)
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		if _, ok := s.allowed[in.event.UserID]; !ok {
			logger.WarnContext(r.Context(), "Rejected event from unauthorized user", applog.FieldUserID, in.event.UserID)
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		events = append(events, in)
	}

	// Replies must go out even if LINE drops the connection first.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), eventTimeout)
	defer cancel()
	s.process(ctx, logger, events)

	w.WriteHeader(http.StatusOK)
}

// process handles events concurrently up to the configured limit. Events of
// one user keep their delivery order. A failing event never affects others.
func (s *Server) process(ctx context.Context, logger *applog.Logger, events []inbound) {
	byUser := make(map[string][]inbound)
	var order []string
	for _, in := range events {
		if _, ok := byUser[in.event.UserID]; !ok {
			order = append(order, in.event.UserID)
		}
		byUser[in.event.UserID] = append(byUser[in.event.UserID], in)
	}

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, userID := range order {
		userEvents := byUser[userID]
		g.Go(func() error {
			for _, in := range userEvents {
				s.handleEvent(ctx, logger, in)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Server) handleEvent(ctx context.Context, logger *applog.Logger, in inbound) {
	ctx, logger = applog.ForEvent(applog.NewContext(ctx, logger), in.event.UserID, in.eventID)

	// The id stays claimed even if the reply later fails: the event may
	// already have committed a payment, so a redelivery must not run it again.
	if in.eventID != "" && !s.seen.SetIfAbsent(in.eventID, struct{}{}) {
		logger.InfoContext(ctx, "Skipping redelivered event")
		return
	}

	if err := s.replier.ShowLoading(ctx, in.event.UserID); err != nil {
		logger.DebugContext(ctx, "Loading animation failed", applog.FieldError, err)
	}

	reply, err := s.handler.Handle(ctx, in.event)
	switch {
	case errors.Is(err, flow.ErrProtocol):
		logger.ErrorContext(ctx, "Protocol error in event", applog.FieldError, err)
	case errors.Is(err, flow.ErrInvalidToken):
		logger.WarnContext(ctx, "Rejected action token", applog.FieldError, err)
	case err != nil:
		logger.ErrorContext(ctx, "Event handling failed", applog.FieldError, err)
	}

	if in.replyToken == "" {
		return
	}
	if err := s.replier.Reply(ctx, in.replyToken, reply); err != nil {
		logger.ErrorContext(ctx, "Reply failed", applog.FieldError, err, applog.FieldOperation, applog.OpReply)
	}
}

// convert maps text messages and postbacks onto flow events. Other event
// types are not supported.
func convert(e webhook.EventInterface) (inbound, bool) {
	switch ev := e.(type) {
	case *webhook.MessageEvent:
		return convert(*ev)
	case *webhook.PostbackEvent:
		return convert(*ev)
	case webhook.MessageEvent:
		text, ok := ev.Message.(webhook.TextMessageContent)
		if !ok {
			return inbound{}, false
		}
		return inbound{
			event: flow.Event{
				UserID: userIDOf(ev.Source),
				Kind:   flow.KindText,
				Text:   text.Text,
			},
			replyToken: ev.ReplyToken,
			eventID:    ev.WebhookEventId,
		}, true
	case webhook.PostbackEvent:
		var data, datetime string
		if ev.Postback != nil {
			data = ev.Postback.Data
			datetime = ev.Postback.Params["datetime"]
		}
		return inbound{
			event: flow.Event{
				UserID:         userIDOf(ev.Source),
				Kind:           flow.KindPostback,
				ActionToken:    data,
				ClientDatetime: datetime,
			},
			replyToken: ev.ReplyToken,
			eventID:    ev.WebhookEventId,
		}, true
	default:
		return inbound{}, false
	}
}

// userIDOf returns the user who triggered the event, whatever the chat.
func userIDOf(src webhook.SourceInterface) string {
	switch s := src.(type) {
	case webhook.UserSource:
		return s.UserId
	case *webhook.UserSource:
		return s.UserId
	case webhook.GroupSource:
		return s.UserId
	case *webhook.GroupSource:
		return s.UserId
	case webhook.RoomSource:
		return s.UserId
	case *webhook.RoomSource:
		return s.UserId
	default:
		return ""
	}
}
