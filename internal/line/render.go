// Package line adapts the conversation to the LINE Messaging API.
package line

import (
	"unicode/utf8"

	"kakei/internal/core"
	"kakei/internal/flow"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
)

const (
	// platform limits
	maxAltTextRunes     = 400
	maxButtonsTextRunes = 160
	maxActionLabelRunes = 20
	maxItemsPerBubble   = 10
	deleteButtonColor   = "#E5534B"
	secondaryTextColor  = "#888888"
)

// Render converts a reply into the messages sent back to the user.
func Render(reply flow.Reply) []messaging_api.MessageInterface {
	switch r := reply.(type) {
	case flow.CategoryChoice:
		return one(renderCategoryChoice(r))
	case flow.DateChoice:
		return one(renderDateChoice(r))
	case flow.PaymentList:
		return one(renderPaymentList(r))
	case flow.PaymentDetailReply:
		return one(renderPaymentDetail(r))
	case flow.DeleteConfirmation:
		return one(renderDeleteConfirmation(r))
	default:
		return one(&messaging_api.TextMessage{Text: reply.Text()})
	}
}

func one(m messaging_api.MessageInterface) []messaging_api.MessageInterface {
	return []messaging_api.MessageInterface{m}
}

func postback(o flow.Option) *messaging_api.PostbackAction {
	return &messaging_api.PostbackAction{
		Label:       clip(o.Label, maxActionLabelRunes),
		Data:        o.Token,
		DisplayText: o.Label,
	}
}

func renderCategoryChoice(r flow.CategoryChoice) messaging_api.MessageInterface {
	items := make([]messaging_api.QuickReplyItem, 0, len(r.Options))
	for _, o := range r.Options {
		items = append(items, messaging_api.QuickReplyItem{
			Type:   "action",
			Action: postback(o),
		})
	}
	return &messaging_api.TextMessage{
		Text:       r.Text(),
		QuickReply: &messaging_api.QuickReply{Items: items},
	}
}

func renderDateChoice(r flow.DateChoice) messaging_api.MessageInterface {
	return &messaging_api.TemplateMessage{
		AltText: clip(r.Text(), maxAltTextRunes),
		Template: &messaging_api.ButtonsTemplate{
			Text: clip(r.Text(), maxButtonsTextRunes),
			Actions: []messaging_api.ActionInterface{
				postback(r.Today),
				&messaging_api.DatetimePickerAction{
					Label:   clip(r.Pick.Label, maxActionLabelRunes),
					Data:    r.Pick.Token,
					Mode:    messaging_api.DatetimePickerActionMODE_DATETIME,
					Initial: r.Pick.Initial,
					Min:     r.Pick.Min,
					Max:     r.Pick.Max,
				},
			},
		},
	}
}

func renderPaymentList(r flow.PaymentList) messaging_api.MessageInterface {
	var bubbles []messaging_api.FlexBubble
	for start := 0; start < len(r.Items); start += maxItemsPerBubble {
		end := min(start+maxItemsPerBubble, len(r.Items))

		contents := []messaging_api.FlexComponentInterface{
			&messaging_api.FlexText{Text: r.Title, Weight: messaging_api.FlexTextWEIGHT_BOLD, Size: "md"},
		}
		for _, item := range r.Items[start:end] {
			contents = append(contents, &messaging_api.FlexButton{
				Action: &messaging_api.PostbackAction{Label: item.Label, Data: item.Token},
				Style:  messaging_api.FlexButtonSTYLE_LINK,
				Height: messaging_api.FlexButtonHEIGHT_SM,
			})
		}

		bubbles = append(bubbles, messaging_api.FlexBubble{
			Body: &messaging_api.FlexBox{
				Layout:   messaging_api.FlexBoxLAYOUT_VERTICAL,
				Spacing:  "sm",
				Contents: contents,
			},
		})
	}

	return &messaging_api.FlexMessage{
		AltText:  clip(r.Text(), maxAltTextRunes),
		Contents: &messaging_api.FlexCarousel{Contents: bubbles},
	}
}

func renderPaymentDetail(r flow.PaymentDetailReply) messaging_api.MessageInterface {
	p := r.Payment
	return &messaging_api.FlexMessage{
		AltText: clip(r.Text(), maxAltTextRunes),
		Contents: &messaging_api.FlexBubble{
			Body: &messaging_api.FlexBox{
				Layout:  messaging_api.FlexBoxLAYOUT_VERTICAL,
				Spacing: "sm",
				Contents: []messaging_api.FlexComponentInterface{
					&messaging_api.FlexText{Text: p.Content, Weight: messaging_api.FlexTextWEIGHT_BOLD, Size: "lg", Wrap: true},
					&messaging_api.FlexText{Text: "¥" + p.Amount.String(), Size: "xl"},
					&messaging_api.FlexText{Text: p.Category.Label(), Color: secondaryTextColor, Size: "sm"},
					&messaging_api.FlexText{Text: p.Date.In(core.Tokyo).Format("2006/01/02 15:04"), Color: secondaryTextColor, Size: "sm"},
				},
			},
			Footer: &messaging_api.FlexBox{
				Layout: messaging_api.FlexBoxLAYOUT_VERTICAL,
				Contents: []messaging_api.FlexComponentInterface{
					&messaging_api.FlexButton{
						Action: postback(r.Delete),
						Style:  messaging_api.FlexButtonSTYLE_PRIMARY,
						Color:  deleteButtonColor,
					},
				},
			},
		},
	}
}

func renderDeleteConfirmation(r flow.DeleteConfirmation) messaging_api.MessageInterface {
	return &messaging_api.TemplateMessage{
		AltText: clip(r.Prompt, maxAltTextRunes),
		Template: &messaging_api.ConfirmTemplate{
			Text: clip(r.Prompt, maxButtonsTextRunes),
			Actions: []messaging_api.ActionInterface{
				postback(r.Confirm),
				postback(r.Cancel),
			},
		},
	}
}

func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
