package line

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"kakei/internal/core"
	"kakei/internal/flow"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
)

func TestRenderText(t *testing.T) {
	msgs := Render(flow.TextReply{Message: "こんにちは"})
	if len(msgs) != 1 {
		t.Fatalf("expected one message, got %d", len(msgs))
	}
	text, ok := msgs[0].(*messaging_api.TextMessage)
	if !ok || text.Text != "こんにちは" {
		t.Fatalf("unexpected message %#v", msgs[0])
	}
}

func TestRenderCategoryChoice(t *testing.T) {
	reply := flow.CategoryChoice{
		Prompt: "ランチ 1,200円\nカテゴリを選んでね",
		Options: []flow.Option{
			{Label: "食費", Token: `{"action":"SELECT_CATEGORY","category":"FOOD"}`},
			{Label: "日用品", Token: `{"action":"SELECT_CATEGORY","category":"DAILY_GOODS"}`},
			{Label: "その他", Token: `{"action":"SELECT_CATEGORY","category":"OTHER"}`},
		},
	}
	msgs := Render(reply)
	text, ok := msgs[0].(*messaging_api.TextMessage)
	if !ok {
		t.Fatalf("expected a text message, got %T", msgs[0])
	}
	if text.QuickReply == nil || len(text.QuickReply.Items) != 3 {
		t.Fatalf("expected three quick replies, got %#v", text.QuickReply)
	}
	action, ok := text.QuickReply.Items[1].Action.(*messaging_api.PostbackAction)
	if !ok || action.Label != "日用品" || action.Data != reply.Options[1].Token {
		t.Fatalf("unexpected action %#v", text.QuickReply.Items[1].Action)
	}
}

func TestRenderDateChoice(t *testing.T) {
	reply := flow.DateChoice{
		Prompt: "いつの支払い？",
		Notice: "日付は今日から30日前までの範囲で選んでね",
		Today:  flow.Option{Label: "今日", Token: "today"},
		Pick:   flow.DatePick{Label: "日付を選ぶ", Token: "pick", Initial: "2024-01-17T12:00", Min: "2023-12-18T00:00", Max: "2024-01-17T23:59"},
	}
	msgs := Render(reply)
	tmpl, ok := msgs[0].(*messaging_api.TemplateMessage)
	if !ok {
		t.Fatalf("expected template message, got %T", msgs[0])
	}
	buttons, ok := tmpl.Template.(*messaging_api.ButtonsTemplate)
	if !ok || len(buttons.Actions) != 2 {
		t.Fatalf("unexpected template %#v", tmpl.Template)
	}
	if !strings.HasPrefix(buttons.Text, reply.Notice) {
		t.Errorf("expected the notice first, got %q", buttons.Text)
	}
	picker, ok := buttons.Actions[1].(*messaging_api.DatetimePickerAction)
	if !ok {
		t.Fatalf("expected datetime picker, got %T", buttons.Actions[1])
	}
	if picker.Mode != messaging_api.DatetimePickerActionMODE_DATETIME || picker.Min != reply.Pick.Min || picker.Max != reply.Pick.Max || picker.Data != "pick" {
		t.Errorf("unexpected picker %#v", picker)
	}
}

func TestRenderPaymentListChunksBubbles(t *testing.T) {
	items := make([]flow.Option, 25)
	for i := range items {
		items[i] = flow.Option{Label: "1/15｜ランチ｜¥1,200", Token: "t"}
	}
	msgs := Render(flow.PaymentList{Title: "今週の支払い", Items: items})
	flex, ok := msgs[0].(*messaging_api.FlexMessage)
	if !ok {
		t.Fatalf("expected flex message, got %T", msgs[0])
	}
	carousel, ok := flex.Contents.(*messaging_api.FlexCarousel)
	if !ok {
		t.Fatalf("expected carousel, got %T", flex.Contents)
	}
	if len(carousel.Contents) != 3 {
		t.Fatalf("expected 3 bubbles for 25 items, got %d", len(carousel.Contents))
	}
	// title plus buttons
	if got := len(carousel.Contents[2].Body.Contents); got != 6 {
		t.Errorf("expected last bubble to hold 5 items, got %d components", got)
	}
	if len([]rune(flex.AltText)) > maxAltTextRunes {
		t.Errorf("alt text too long")
	}
}

func TestRenderPaymentDetailAndConfirmation(t *testing.T) {
	p := core.Payment{ID: "p", Category: core.CategoryFood, Content: "ランチ", Amount: 1200, Date: time.Date(2024, 1, 15, 12, 0, 0, 0, core.Tokyo)}
	msgs := Render(flow.PaymentDetailReply{Payment: p, Delete: flow.Option{Label: "削除", Token: "del"}})
	flex, ok := msgs[0].(*messaging_api.FlexMessage)
	if !ok {
		t.Fatalf("expected flex message, got %T", msgs[0])
	}
	bubble, ok := flex.Contents.(*messaging_api.FlexBubble)
	if !ok || bubble.Footer == nil || len(bubble.Footer.Contents) != 1 {
		t.Fatalf("unexpected bubble %#v", flex.Contents)
	}

	msgs = Render(flow.DeleteConfirmation{
		Prompt:  "この支出を削除しても大丈夫？",
		Confirm: flow.Option{Label: "はい", Token: "yes"},
		Cancel:  flow.Option{Label: "いいえ", Token: "no"},
	})
	tmpl, ok := msgs[0].(*messaging_api.TemplateMessage)
	if !ok {
		t.Fatalf("expected template message, got %T", msgs[0])
	}
	confirm, ok := tmpl.Template.(*messaging_api.ConfirmTemplate)
	if !ok || len(confirm.Actions) != 2 {
		t.Fatalf("unexpected template %#v", tmpl.Template)
	}
}

func TestRenderedMessagesMarshal(t *testing.T) {
	replies := []flow.Reply{
		flow.TextReply{Message: "a"},
		flow.DeleteConfirmation{Prompt: "?", Confirm: flow.Option{Label: "はい", Token: "y"}, Cancel: flow.Option{Label: "いいえ", Token: "n"}},
		flow.PaymentList{Title: "t", Items: []flow.Option{{Label: "x", Token: "y"}}},
	}
	for _, r := range replies {
		body, err := json.Marshal(&messaging_api.ReplyMessageRequest{ReplyToken: "r", Messages: Render(r)})
		if err != nil {
			t.Fatalf("marshal %T: %v", r, err)
		}
		if !strings.Contains(string(body), `"type"`) {
			t.Errorf("%T: expected typed messages, got %s", r, body)
		}
	}
}

func TestClip(t *testing.T) {
	if got := clip("あいうえお", 3); got != "あいう" {
		t.Fatalf("expected あいう, got %s", got)
	}
	if got := clip("abc", 5); got != "abc" {
		t.Fatalf("expected abc, got %s", got)
	}
}
