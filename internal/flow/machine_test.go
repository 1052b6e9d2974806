package flow

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"kakei/internal/core"
	"kakei/internal/services"
	"kakei/internal/storage"

	"github.com/google/uuid"
)

// fakePayments is an in-memory coordinator with injectable failures.
type fakePayments struct {
	mu        sync.Mutex
	payments  map[string]core.Payment
	recordErr error
	readErr   error
}

func newFakePayments() *fakePayments {
	return &fakePayments{payments: make(map[string]core.Payment)}
}

func (f *fakePayments) Record(_ context.Context, np core.NewPayment) (core.Payment, error) {
	if f.recordErr != nil {
		return core.Payment{}, f.recordErr
	}
	if err := np.Validate(); err != nil {
		return core.Payment{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p := core.Payment{
		ID:        uuid.NewString(),
		UserID:    np.UserID,
		Category:  np.Category,
		Content:   np.Content,
		Amount:    np.Amount,
		Date:      np.Date,
		YearMonth: core.YearMonthOf(np.Date),
	}
	f.payments[p.ID] = p
	return p, nil
}

func (f *fakePayments) Delete(_ context.Context, userID, id string) (core.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[id]
	if !ok || p.UserID != userID {
		return core.Payment{}, core.ErrPaymentNotFound
	}
	delete(f.payments, id)
	return p, nil
}

func (f *fakePayments) Payment(_ context.Context, userID, id string) (core.Payment, error) {
	if f.readErr != nil {
		return core.Payment{}, f.readErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[id]
	if !ok || p.UserID != userID {
		return core.Payment{}, core.ErrPaymentNotFound
	}
	return p, nil
}

func (f *fakePayments) MonthlySummary(_ context.Context, userID, ym string) (core.MonthlySummary, error) {
	if f.readErr != nil {
		return core.MonthlySummary{}, f.readErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s := core.EmptySummary(userID, ym)
	for _, p := range f.payments {
		if p.UserID == userID && p.YearMonth == ym {
			s.TotalAmount += p.Amount
			s.CategoryTotals[p.Category] += p.Amount
			s.RecordCount++
		}
	}
	return s, nil
}

func (f *fakePayments) WeekPayments(_ context.Context, userID string, now time.Time) ([]core.Payment, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	from, to := core.WeekRange(now)
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []core.Payment
	for _, p := range f.payments {
		if p.UserID == userID && !p.Date.Before(from) && p.Date.Before(to) {
			out = append(out, p)
		}
	}
	return out, nil
}

var fixedNow = time.Date(2024, 1, 17, 12, 0, 0, 0, core.Tokyo) // Wednesday

func newTestMachine(f Payments) *Machine {
	return NewMachine(f, func() time.Time { return fixedNow })
}

func text(userID, s string) Event {
	return Event{UserID: userID, Kind: KindText, Text: s}
}

func postback(userID, token string) Event {
	return Event{UserID: userID, Kind: KindPostback, ActionToken: token}
}

func TestTextEntryOffersCategories(t *testing.T) {
	m := newTestMachine(newFakePayments())

	for _, input := range []string{"ランチ\n1200", "ランチ 1200"} {
		reply, err := m.Handle(context.Background(), text("U1", input))
		if err != nil {
			t.Fatalf("%q: unexpected error %v", input, err)
		}
		choice, ok := reply.(CategoryChoice)
		if !ok {
			t.Fatalf("%q: expected CategoryChoice, got %T", input, reply)
		}
		if choice.Entry.Content != "ランチ" || choice.Entry.Amount != 1200 {
			t.Fatalf("%q: unexpected entry %+v", input, choice.Entry)
		}
		if len(choice.Options) != 3 {
			t.Fatalf("expected 3 options, got %d", len(choice.Options))
		}
		for i, opt := range choice.Options {
			intent, err := Decode(opt.Token)
			if err != nil {
				t.Fatalf("option token did not decode: %v", err)
			}
			sc, ok := intent.(SelectCategory)
			if !ok || sc.Category != core.Categories[i] || sc.Entry != choice.Entry {
				t.Fatalf("option %d carries %+v", i, intent)
			}
		}
	}
}

func TestTextEntryGuidance(t *testing.T) {
	m := newTestMachine(newFakePayments())
	tests := []struct {
		name string
		text string
		want string
	}{
		{"no amount", "ランチ", msgEntryGuide},
		{"zero", "ランチ 0", msgAmountRange},
		{"too large", "ランチ 1000001", msgAmountRange},
		{"too long", strings.Repeat("あ", 51) + " 100", msgContentTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply, err := m.Handle(context.Background(), text("U1", tt.text))
			if err != nil {
				t.Fatalf("input rejection must not be an error: %v", err)
			}
			if reply.Text() != tt.want {
				t.Errorf("expected %q, got %q", tt.want, reply.Text())
			}
		})
	}
}

func TestSelectCategoryOffersDates(t *testing.T) {
	m := newTestMachine(newFakePayments())
	token, _ := entryToken(ActionSelectCategory, core.Entry{Content: "洗剤", Amount: 398}, core.CategoryDailyGoods).Encode()

	reply, err := m.Handle(context.Background(), postback("U1", token))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	choice, ok := reply.(DateChoice)
	if !ok {
		t.Fatalf("expected DateChoice, got %T", reply)
	}
	if choice.Notice != "" {
		t.Errorf("unexpected notice %q", choice.Notice)
	}
	if choice.Pick.Min != "2023-12-18T00:00" || choice.Pick.Max != "2024-01-17T23:59" || choice.Pick.Initial != "2024-01-17T12:00" {
		t.Errorf("unexpected picker bounds: %+v", choice.Pick)
	}
	today, err := Decode(choice.Today.Token)
	if err != nil || today.Action() != ActionRecordToday {
		t.Fatalf("today token: %v %v", today, err)
	}
	pick, err := Decode(choice.Pick.Token)
	if err != nil || pick.Action() != ActionSelectDate {
		t.Fatalf("pick token: %v %v", pick, err)
	}
}

func TestRecordTodayCompletes(t *testing.T) {
	f := newFakePayments()
	m := newTestMachine(f)
	ctx := context.Background()

	first, _ := entryToken(ActionRecordToday, core.Entry{Content: "朝食", Amount: 500}, core.CategoryFood).Encode()
	if _, err := m.Handle(ctx, postback("U1", first)); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	token, _ := entryToken(ActionRecordToday, core.Entry{Content: "ランチ", Amount: 1200}, core.CategoryFood).Encode()
	reply, err := m.Handle(ctx, postback("U1", token))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	rec, ok := reply.(Recorded)
	if !ok {
		t.Fatalf("expected Recorded, got %T", reply)
	}
	if rec.MonthTotal != 1700 || !rec.Payment.Date.Equal(fixedNow) {
		t.Fatalf("unexpected completion: %+v", rec)
	}
	want := "記録したよ！\n食費： ランチ 1,200円\n1月は1,700円支払ったよ"
	if rec.Text() != want {
		t.Errorf("expected %q, got %q", want, rec.Text())
	}
}

func TestSelectDateWindow(t *testing.T) {
	token, _ := entryToken(ActionSelectDate, core.Entry{Content: "本", Amount: 1500}, core.CategoryOther).Encode()

	tests := []struct {
		name     string
		datetime string
		recorded bool
	}{
		{"thirty days ago", "2023-12-18T08:00", true},
		{"yesterday", "2024-01-16T20:15", true},
		{"tomorrow", "2024-01-18T00:00", false},
		{"thirty one days ago", "2023-12-17T23:59", false},
		{"missing", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakePayments()
			m := newTestMachine(f)
			ev := postback("U1", token)
			ev.ClientDatetime = tt.datetime

			reply, err := m.Handle(context.Background(), ev)
			if err != nil {
				t.Fatalf("Handle: %v", err)
			}
			if tt.recorded {
				rec, ok := reply.(Recorded)
				if !ok {
					t.Fatalf("expected Recorded, got %T", reply)
				}
				if got := rec.Payment.Date.Format(core.PickerLayout); got != tt.datetime {
					t.Errorf("expected date %s, got %s", tt.datetime, got)
				}
				return
			}
			choice, ok := reply.(DateChoice)
			if !ok {
				t.Fatalf("expected the date choice again, got %T", reply)
			}
			if choice.Notice != msgDateRange {
				t.Errorf("expected range notice, got %q", choice.Notice)
			}
			if len(f.payments) != 0 {
				t.Errorf("rejected date must not record")
			}
		})
	}
}

func TestSummaries(t *testing.T) {
	f := newFakePayments()
	m := newTestMachine(f)
	ctx := context.Background()

	f.Record(ctx, core.NewPayment{UserID: "U1", Category: core.CategoryFood, Content: "a", Amount: 1000, Date: fixedNow})
	f.Record(ctx, core.NewPayment{UserID: "U1", Category: core.CategoryOther, Content: "b", Amount: 200, Date: time.Date(2023, 12, 30, 0, 0, 0, 0, core.Tokyo)})

	current, _ := Token{Action: ActionCurrentMonthSummary}.Encode()
	reply, err := m.Handle(ctx, postback("U1", current))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	s, ok := reply.(SummaryReply)
	if !ok || s.Summary.YearMonth != "2024-01" || s.Summary.TotalAmount != 1000 {
		t.Fatalf("unexpected current summary: %#v", reply)
	}
	if !strings.Contains(s.Text(), "2024年1月の支払い合計: 1,000円") || !strings.Contains(s.Text(), "記録件数: 1件") {
		t.Errorf("unexpected text %q", s.Text())
	}

	last, _ := Token{Action: ActionLastMonthSummary}.Encode()
	reply, err = m.Handle(ctx, postback("U1", last))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	s, ok = reply.(SummaryReply)
	if !ok || s.Summary.YearMonth != "2023-12" || s.Summary.CategoryTotals[core.CategoryOther] != 200 {
		t.Fatalf("unexpected last summary: %#v", reply)
	}
}

func TestWeekPaymentsList(t *testing.T) {
	f := newFakePayments()
	m := newTestMachine(f)
	ctx := context.Background()
	week, _ := Token{Action: ActionViewWeekPayments}.Encode()

	reply, err := m.Handle(ctx, postback("U1", week))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if reply.Text() != msgNoWeekPayments {
		t.Fatalf("expected empty week text, got %q", reply.Text())
	}

	p, _ := f.Record(ctx, core.NewPayment{UserID: "U1", Category: core.CategoryFood, Content: "ランチ", Amount: 1200, Date: time.Date(2024, 1, 15, 12, 0, 0, 0, core.Tokyo)})
	reply, err = m.Handle(ctx, postback("U1", week))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	list, ok := reply.(PaymentList)
	if !ok || len(list.Items) != 1 {
		t.Fatalf("expected one item, got %#v", reply)
	}
	if list.Items[0].Label != "1/15｜ランチ｜¥1,200" {
		t.Errorf("unexpected label %q", list.Items[0].Label)
	}
	intent, err := Decode(list.Items[0].Token)
	if err != nil {
		t.Fatalf("item token: %v", err)
	}
	if d, ok := intent.(PaymentDetail); !ok || d.PaymentID != p.ID {
		t.Fatalf("unexpected item intent %#v", intent)
	}
}

func TestDeleteFlow(t *testing.T) {
	f := newFakePayments()
	m := newTestMachine(f)
	ctx := context.Background()

	p, _ := f.Record(ctx, core.NewPayment{UserID: "U1", Category: core.CategoryDailyGoods, Content: "洗剤", Amount: 398, Date: fixedNow})

	detailToken, _ := paymentToken(ActionPaymentDetail, p.ID).Encode()
	reply, err := m.Handle(ctx, postback("U1", detailToken))
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	detail, ok := reply.(PaymentDetailReply)
	if !ok || detail.Payment.ID != p.ID {
		t.Fatalf("expected detail, got %#v", reply)
	}

	reply, err = m.Handle(ctx, postback("U1", detail.Delete.Token))
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	confirm, ok := reply.(DeleteConfirmation)
	if !ok || confirm.Prompt != msgConfirmDelete {
		t.Fatalf("expected confirmation, got %#v", reply)
	}

	reply, err = m.Handle(ctx, postback("U1", confirm.Cancel.Token))
	if err != nil || reply.Text() != msgDeleteCanceled {
		t.Fatalf("cancel: %q %v", reply.Text(), err)
	}
	if _, ok := f.payments[p.ID]; !ok {
		t.Fatalf("cancel must not delete")
	}

	reply, err = m.Handle(ctx, postback("U1", confirm.Confirm.Token))
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	deleted, ok := reply.(Deleted)
	if !ok || deleted.MonthTotal != 0 || deleted.Payment.ID != p.ID {
		t.Fatalf("expected Deleted, got %#v", reply)
	}

	// Every stale reference answers "already deleted".
	for _, token := range []string{detailToken, detail.Delete.Token, confirm.Confirm.Token} {
		reply, err := m.Handle(ctx, postback("U1", token))
		if err != nil {
			t.Fatalf("stale token returned error: %v", err)
		}
		if reply.Text() != msgAlreadyDeleted {
			t.Errorf("expected already deleted, got %q", reply.Text())
		}
	}
}

func TestOtherUsersPaymentLooksDeleted(t *testing.T) {
	f := newFakePayments()
	m := newTestMachine(f)
	p, _ := f.Record(context.Background(), core.NewPayment{UserID: "U1", Category: core.CategoryFood, Content: "a", Amount: 1, Date: fixedNow})

	token, _ := paymentToken(ActionConfirmDelete, p.ID).Encode()
	reply, err := m.Handle(context.Background(), postback("U2", token))
	if err != nil || reply.Text() != msgAlreadyDeleted {
		t.Fatalf("expected already deleted, got %q %v", reply.Text(), err)
	}
	if _, ok := f.payments[p.ID]; !ok {
		t.Fatalf("another user's confirmation must not delete")
	}
}

func TestProtocolAndPersistenceErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown action", func(t *testing.T) {
		m := newTestMachine(newFakePayments())
		reply, err := m.Handle(ctx, postback("U1", `{"action":"NOPE"}`))
		if !errors.Is(err, ErrProtocol) || reply.Text() != msgGenericFailure {
			t.Fatalf("expected protocol failure, got %q %v", reply.Text(), err)
		}
	})

	t.Run("missing fields", func(t *testing.T) {
		m := newTestMachine(newFakePayments())
		reply, err := m.Handle(ctx, postback("U1", `{"action":"RECORD_TODAY","content":"ランチ"}`))
		if !errors.Is(err, ErrInvalidToken) || reply.Text() != msgGenericFailure {
			t.Fatalf("expected invalid token failure, got %q %v", reply.Text(), err)
		}
	})

	t.Run("record fails", func(t *testing.T) {
		f := newFakePayments()
		f.recordErr = errors.New("database is locked")
		m := newTestMachine(f)
		token, _ := entryToken(ActionRecordToday, core.Entry{Content: "ランチ", Amount: 100}, core.CategoryFood).Encode()
		reply, err := m.Handle(ctx, postback("U1", token))
		if err == nil || reply.Text() != msgRecordFailed {
			t.Fatalf("expected retry message, got %q %v", reply.Text(), err)
		}
	})

	t.Run("lookup fails", func(t *testing.T) {
		f := newFakePayments()
		f.readErr = errors.New("disk I/O error")
		m := newTestMachine(f)
		token, _ := paymentToken(ActionPaymentDetail, testPaymentID).Encode()
		reply, err := m.Handle(ctx, postback("U1", token))
		if err == nil || reply.Text() != msgGenericFailure {
			t.Fatalf("expected failure, got %q %v", reply.Text(), err)
		}
	})

	t.Run("no user", func(t *testing.T) {
		m := newTestMachine(newFakePayments())
		_, err := m.Handle(ctx, text("", "ランチ 100"))
		if !errors.Is(err, ErrProtocol) {
			t.Fatalf("expected protocol error, got %v", err)
		}
	})
}

func TestHowToUse(t *testing.T) {
	m := newTestMachine(newFakePayments())
	token, _ := Token{Action: ActionHowToUse}.Encode()
	reply, err := m.Handle(context.Background(), postback("U1", token))
	if err != nil || reply.Text() != msgHowToUse {
		t.Fatalf("unexpected reply %q %v", reply.Text(), err)
	}
}

func TestConcurrentConfirmDeleteAgainstLedger(t *testing.T) {
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "kakei.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	svc := services.NewPaymentService(repo, nil)
	defer svc.Close()
	m := NewMachine(svc, func() time.Time { return fixedNow })
	ctx := context.Background()

	if _, err := svc.Record(ctx, core.NewPayment{UserID: "U1", Category: core.CategoryFood, Content: "朝食", Amount: 450, Date: fixedNow}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	p, err := svc.Record(ctx, core.NewPayment{UserID: "U1", Category: core.CategoryFood, Content: "ランチ", Amount: 1200, Date: fixedNow})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	token, _ := paymentToken(ActionConfirmDelete, p.ID).Encode()
	var wg sync.WaitGroup
	replies := make(chan Reply, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reply, err := m.Handle(ctx, postback("U1", token))
			if err != nil {
				t.Errorf("Handle: %v", err)
			}
			replies <- reply
		}()
	}
	wg.Wait()
	close(replies)

	var deleted, already int
	for r := range replies {
		switch {
		case r.Text() == msgAlreadyDeleted:
			already++
		default:
			if d, ok := r.(Deleted); ok && d.MonthTotal == 450 {
				deleted++
			}
		}
	}
	if deleted != 1 || already != 1 {
		t.Fatalf("expected one deletion and one already-deleted, got %d/%d", deleted, already)
	}

	s, err := svc.MonthlySummary(ctx, "U1", "2024-01")
	if err != nil {
		t.Fatalf("MonthlySummary: %v", err)
	}
	if s.TotalAmount != 450 || s.RecordCount != 1 {
		t.Fatalf("expected exactly one decrement, got %+v", s)
	}
}
