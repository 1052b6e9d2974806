package flow

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"kakei/internal/core"
)

// Reply is what the bot answers with. A renderer turns each concrete type
// into platform messages; Text() is the plain fallback.
type Reply interface {
	Text() string
}

// Option is one tappable button and the token it sends back.
type Option struct {
	Label string
	Token string
}

// DatePick is a datetime picker bounded to the payment window.
type DatePick struct {
	Label   string
	Token   string
	Initial string
	Min     string
	Max     string
}

type (
	TextReply struct {
		Message string
	}

	CategoryChoice struct {
		Prompt  string
		Entry   core.Entry
		Options []Option
	}

	// DateChoice asks when the payment happened. Notice is set when a
	// previously picked date was rejected.
	DateChoice struct {
		Prompt string
		Notice string
		Today  Option
		Pick   DatePick
	}

	PaymentList struct {
		Title string
		Items []Option
	}

	PaymentDetailReply struct {
		Payment core.Payment
		Delete  Option
	}

	DeleteConfirmation struct {
		Prompt  string
		Confirm Option
		Cancel  Option
	}

	SummaryReply struct {
		Summary core.MonthlySummary
	}

	// Recorded and Deleted report a committed change together with the
	// month's total after it.
	Recorded struct {
		Payment    core.Payment
		MonthTotal core.Yen
	}

	Deleted struct {
		Payment    core.Payment
		MonthTotal core.Yen
	}
)

func (r TextReply) Text() string { return r.Message }

func (r CategoryChoice) Text() string { return r.Prompt }

func (r DateChoice) Text() string {
	if r.Notice != "" {
		return r.Notice + "\n" + r.Prompt
	}
	return r.Prompt
}

func (r PaymentList) Text() string {
	lines := []string{r.Title}
	for _, item := range r.Items {
		lines = append(lines, item.Label)
	}
	return strings.Join(lines, "\n")
}

func (r PaymentDetailReply) Text() string {
	p := r.Payment
	return fmt.Sprintf("%s\n%s： %s %s円", p.Date.In(core.Tokyo).Format("2006/01/02 15:04"), p.Category.Label(), p.Content, p.Amount)
}

func (r DeleteConfirmation) Text() string { return r.Prompt }

func (r SummaryReply) Text() string {
	s := r.Summary
	var b strings.Builder
	fmt.Fprintf(&b, "%sの支払い合計: %s円\n\nカテゴリ別:\n", core.MonthLabel(s.YearMonth), s.TotalAmount)
	for _, c := range core.Categories {
		fmt.Fprintf(&b, "%s: %s円\n", c.Label(), s.CategoryTotals[c])
	}
	fmt.Fprintf(&b, "\n記録件数: %d件", s.RecordCount)
	return b.String()
}

func (r Recorded) Text() string {
	p := r.Payment
	return fmt.Sprintf("記録したよ！\n%s： %s %s円\n%sは%s円支払ったよ",
		p.Category.Label(), p.Content, p.Amount, core.ShortMonthLabel(p.YearMonth), r.MonthTotal)
}

func (r Deleted) Text() string {
	p := r.Payment
	return fmt.Sprintf("削除したよ！\n%s： %s %s円\n%sは%s円支払ったよ",
		p.Category.Label(), p.Content, p.Amount, core.ShortMonthLabel(p.YearMonth), r.MonthTotal)
}

const (
	msgEntryGuide      = "支払い内容と金額を入力してね！\n\n例：\nランチ\n1200\n\nまたは：\nランチ 1200"
	msgAmountRange     = "金額は1円〜1,000,000円の範囲で入力してね"
	msgContentTooLong  = "支払い内容は50文字以内で入力してね"
	msgSelectCategory  = "カテゴリを選んでね"
	msgSelectDate      = "いつの支払い？"
	msgToday           = "今日"
	msgPickDate        = "日付を選ぶ"
	msgDateRange       = "日付は今日から30日前までの範囲で選んでね"
	msgAlreadyDeleted  = "その支払いはすでに削除されているよ"
	msgConfirmDelete   = "この支出を削除しても大丈夫？"
	msgYes             = "はい"
	msgNo              = "いいえ"
	msgDeleteCanceled  = "削除をキャンセルしたよ"
	msgDeleteButton    = "削除"
	msgWeekTitle       = "今週の支払い"
	msgNoWeekPayments  = "今週の支払いはまだないよ"
	msgGenericFailure  = "エラーが発生しました"
	msgRecordFailed    = "記録に失敗しました。もう一度試してね"
	msgDeleteFailed    = "削除に失敗しました。もう一度試してね"
	msgSummaryFailed   = "集計の取得に失敗しました。もう一度試してね"
	msgHowToUse        = "使い方\n\n1. 支払い内容と金額を送ってね\n例：ランチ 1200\n\n2. カテゴリを選ぶ\n食費・日用品・その他\n\n3. 日付を選ぶ\n今日、または30日前までの日付\n\nメニューから今月・先月の合計や今週の支払いを確認できるよ。支払いをタップすると削除もできるよ。"
	maxLabelContentRun = 12
)

// itemLabel renders "1/15｜ランチ｜¥1,200" for list buttons.
func itemLabel(p core.Payment) string {
	d := p.Date.In(core.Tokyo)
	return fmt.Sprintf("%d/%d｜%s｜¥%s", int(d.Month()), d.Day(), truncate(p.Content, maxLabelContentRun), p.Amount)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}
