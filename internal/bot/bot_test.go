package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/psds-microservice/citizen-desk/internal/callback"
	"github.com/psds-microservice/citizen-desk/internal/database/databasetest"
	"github.com/psds-microservice/citizen-desk/internal/dialog"
	"github.com/psds-microservice/citizen-desk/internal/model"
	"github.com/psds-microservice/citizen-desk/internal/notify"
	"github.com/psds-microservice/citizen-desk/internal/repository"
	"github.com/psds-microservice/citizen-desk/internal/service"
	"github.com/psds-microservice/citizen-desk/internal/session"
	"github.com/psds-microservice/citizen-desk/internal/ticketid"
	"github.com/psds-microservice/citizen-desk/internal/transport"
	"github.com/psds-microservice/citizen-desk/internal/transport/transporttest"
)

const (
	citizenID   = int64(101)
	operatorA   = int64(900)
	operatorB   = int64(901)
	adminSecret = "letmein"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

type fixture struct {
	bot      *Bot
	svc      *service.TicketService
	rec      *transporttest.Recorder
	notifier *notify.Notifier
	clock    *clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := databasetest.Open(t)
	rec := transporttest.NewRecorder()
	clk := &clock{t: time.Date(2025, 10, 15, 12, 0, 0, 0, time.UTC)}
	notifier := notify.New(rec, time.Second, nil)
	svc := service.NewTicketService(service.Deps{
		Tickets:     repository.NewTicketRepository(db),
		Directory:   repository.NewDirectoryRepository(db),
		IDs:         ticketid.NewGenerator(clk.Now),
		Notifier:    notifier,
		AdminSecret: adminSecret,
	})
	index := dialog.NewIndex()
	bridge := dialog.NewBridge(index, svc, notifier, nil)
	svc.OnTerminal(bridge.ForceStop)
	b := New(Deps{
		Service:  svc,
		Dialogs:  bridge,
		Sessions: session.NewManager(session.NewMemoryStore(), index),
		Sender:   rec,
	})
	return &fixture{bot: b, svc: svc, rec: rec, notifier: notifier, clock: clk}
}

// say sends a private text message (or command) from participant.
func (f *fixture) say(participant int64, text string) {
	in := transport.Inbound{
		ParticipantID: participant,
		ChatID:        participant,
		ChatKind:      transport.ChatPrivate,
		Text:          text,
	}
	in.Command, in.Args = transport.ParseCommand(text)
	f.bot.Handle(context.Background(), in)
	f.notifier.Wait()
}

func (f *fixture) press(participant int64, data string) {
	f.bot.Handle(context.Background(), transport.Inbound{
		ParticipantID: participant,
		ChatID:        participant,
		ChatKind:      transport.ChatPrivate,
		Callback:      &transport.Callback{ID: "cb", Data: data, MessageID: 1},
	})
	f.notifier.Wait()
}

func (f *fixture) promote(t *testing.T, ids ...int64) {
	t.Helper()
	for _, id := range ids {
		f.say(id, "/admin "+adminSecret)
		if !f.rec.Contains(id, textAdminGranted) {
			t.Fatalf("participant %d not promoted", id)
		}
	}
	f.rec.Reset()
}

func (f *fixture) mine(t *testing.T) []model.Ticket {
	t.Helper()
	tickets, err := f.svc.ListMine(context.Background(), citizenID, 50)
	if err != nil {
		t.Fatal(err)
	}
	return tickets
}

func TestStartShowsMainKeyboard(t *testing.T) {
	f := newFixture(t)
	f.say(citizenID, "/start")
	last := f.rec.Last(citizenID)
	if last.Text != textWelcome || last.Keyboard == nil || last.Keyboard.Reply[0][0] != labelCreate {
		t.Fatalf("reply = %+v", last)
	}
	if len(last.Keyboard.Reply) != 2 {
		t.Fatalf("citizen got staff keyboard: %v", last.Keyboard.Reply)
	}
}

func TestWizardWithCategory(t *testing.T) {
	f := newFixture(t)
	f.say(citizenID, labelCreate)
	if kb := f.rec.Last(citizenID).Keyboard; kb == nil || len(kb.Inline) == 0 {
		t.Fatal("category menu not shown")
	}
	f.press(citizenID, callback.Encode(callback.Category, string(model.CategoryRoads)))
	if last := f.rec.Last(citizenID); last.Op != "edit" || !strings.Contains(last.Text, textEnterText) {
		t.Fatalf("after category: %+v", last)
	}
	f.say(citizenID, "Огромная яма на Ленина 3")

	tickets := f.mine(t)
	if len(tickets) != 1 {
		t.Fatalf("tickets = %d", len(tickets))
	}
	if tickets[0].Category != model.CategoryRoads || tickets[0].Department != "roads" {
		t.Fatalf("ticket = %+v", tickets[0])
	}
	if !f.rec.Contains(citizenID, "Заявка принята, номер "+tickets[0].TicketID) {
		t.Fatal("no confirmation")
	}
	if _, ok := f.bot.sessions.Current(citizenID).Mode.(session.Idle); !ok {
		t.Fatal("wizard not finished")
	}
}

func TestWizardFreeTextDetectsCategory(t *testing.T) {
	f := newFixture(t)
	f.say(citizenID, labelCreate)
	f.say(citizenID, "Пожар в доме 5")

	tickets := f.mine(t)
	if len(tickets) != 1 || tickets[0].Category != model.CategoryEmergFire || !tickets[0].Urgent {
		t.Fatalf("tickets = %+v", tickets)
	}
	if !f.rec.Contains(citizenID, textUrgentHint) {
		t.Fatal("urgent hint missing")
	}
}

func TestAttachmentsBeforeText(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.bot.Handle(ctx, transport.Inbound{
		ParticipantID: citizenID, ChatID: citizenID, ChatKind: transport.ChatPrivate,
		MediaRef: "photo:abc",
	})
	f.bot.Handle(ctx, transport.Inbound{
		ParticipantID: citizenID, ChatID: citizenID, ChatKind: transport.ChatPrivate,
		Location: &transport.Location{Latitude: 55.75, Longitude: 37.61},
	})
	if last := f.rec.Last(citizenID); last.Text != textAttachment {
		t.Fatalf("reply = %+v", last)
	}
	f.say(citizenID, "Не вывозят мусор")

	tickets := f.mine(t)
	if len(tickets) != 1 {
		t.Fatalf("tickets = %d", len(tickets))
	}
	tk := tickets[0]
	if tk.MediaRef != "photo:abc" || !tk.HasLocation() || *tk.Latitude != 55.75 {
		t.Fatalf("ticket = %+v", tk)
	}
	if tk.Category != model.CategorySanitation {
		t.Fatalf("category = %s", tk.Category)
	}
}

func TestMenuButtonAbandonsWizard(t *testing.T) {
	f := newFixture(t)
	f.say(citizenID, labelCreate)
	f.say(citizenID, labelMine)
	if len(f.mine(t)) != 0 {
		t.Fatal("menu label became a ticket")
	}
	if !f.rec.Contains(citizenID, textNoTickets) {
		t.Fatal("my tickets not listed")
	}
}

func TestCancelDropsDraft(t *testing.T) {
	f := newFixture(t)
	f.say(citizenID, labelCreate)
	f.press(citizenID, callback.Encode(callback.Category, string(model.CategoryLighting)))
	f.say(citizenID, "/cancel")
	st := f.bot.sessions.Current(citizenID)
	if _, ok := st.Mode.(session.Idle); !ok || !st.Draft.Empty() {
		t.Fatalf("state = %+v", st)
	}
	f.say(citizenID, "просто текст")
	if len(f.mine(t)) != 0 {
		t.Fatal("ticket created after cancel")
	}
	if f.rec.Last(citizenID).Text != textFallback {
		t.Fatalf("fallback = %q", f.rec.Last(citizenID).Text)
	}
}

func TestMyTicketsListing(t *testing.T) {
	f := newFixture(t)
	long := strings.Repeat("а", 100)
	f.say(citizenID, labelCreate)
	f.say(citizenID, long)
	f.say(citizenID, "мои обращения")
	last := f.rec.Last(citizenID).Text
	if !strings.Contains(last, " — Новый — ") || !strings.Contains(last, strings.Repeat("а", 80)+"...") {
		t.Fatalf("listing = %q", last)
	}
}

func TestAdminCode(t *testing.T) {
	f := newFixture(t)
	f.say(citizenID, "/admin")
	if f.rec.Last(citizenID).Text != textAdminUsage {
		t.Fatal("usage not shown")
	}
	f.say(citizenID, "/admin wrong")
	if f.rec.Last(citizenID).Text != textAdminDenied {
		t.Fatal("wrong code accepted")
	}
	f.say(citizenID, "/stats")
	if f.rec.Last(citizenID).Text != textForbidden {
		t.Fatal("citizen reached stats")
	}
	f.say(citizenID, "/admin "+adminSecret)
	f.say(citizenID, "/stats")
	if !strings.HasPrefix(f.rec.Last(citizenID).Text, "Всего заявок: 0") {
		t.Fatalf("stats = %q", f.rec.Last(citizenID).Text)
	}
}

func TestCleanupBefore(t *testing.T) {
	f := newFixture(t)
	f.promote(t, operatorA)
	days := []time.Time{
		time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC),
		time.Date(2025, 9, 15, 10, 0, 0, 0, time.UTC),
		time.Date(2025, 9, 30, 23, 59, 0, 0, time.UTC),
		time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 10, 2, 8, 0, 0, 0, time.UTC),
	}
	for _, d := range days {
		f.clock.Set(d)
		f.say(citizenID, labelCreate)
		f.say(citizenID, "Не работает фонарь")
	}
	old := f.mine(t)[4]
	f.say(operatorA, "/reply "+old.TicketID+" Проверим")

	f.say(operatorA, "/cleanup before 2025-10-01")
	if got := f.rec.Last(operatorA).Text; got != "Удалено заявок: 3" {
		t.Fatalf("reply = %q", got)
	}
	left := f.mine(t)
	if len(left) != 2 {
		t.Fatalf("left = %d", len(left))
	}
	for _, tk := range left {
		if tk.CreatedAt.Before(days[3]) {
			t.Fatalf("old ticket kept: %s", tk.TicketID)
		}
	}
}

func TestCleanupDatePrompt(t *testing.T) {
	f := newFixture(t)
	f.promote(t, operatorA)
	f.say(citizenID, labelCreate)
	f.say(citizenID, "Сломана скамейка")

	f.say(operatorA, "/cleanup before")
	f.say(operatorA, "01.10.2025")
	if f.rec.Last(operatorA).Text != textBadDate {
		t.Fatal("bad date accepted")
	}
	f.say(operatorA, "2030-01-01")
	if got := f.rec.Last(operatorA).Text; got != "Удалено заявок: 1" {
		t.Fatalf("reply = %q", got)
	}
	if _, ok := f.bot.sessions.Current(operatorA).Mode.(session.Idle); !ok {
		t.Fatal("prompt still armed")
	}
}

func TestStatusButton(t *testing.T) {
	f := newFixture(t)
	f.promote(t, operatorA)
	f.say(citizenID, labelCreate)
	f.say(citizenID, "Нет воды")
	id := f.mine(t)[0].TicketID

	f.say(operatorA, "/open "+id)
	if kb := f.rec.Last(operatorA).Keyboard; kb == nil || len(kb.Inline) != 3 {
		t.Fatalf("card keyboard = %+v", kb)
	}
	f.press(operatorA, callback.Encode(callback.SetStatus, id, string(model.TicketStatusDone)))
	if !f.rec.Contains(operatorA, "Статус изменён на: Завершено") {
		t.Fatal("card not updated")
	}
	if !f.rec.Contains(citizenID, "Новый → Завершено") {
		t.Fatal("author not notified")
	}
	f.press(operatorA, callback.Encode(callback.SetStatus, id, string(model.TicketStatusInProgress)))
	if last := f.rec.Last(0); last.Op != "callback" || last.Text != textTerminal {
		t.Fatalf("answer = %+v", last)
	}
}

func TestAssignMenu(t *testing.T) {
	f := newFixture(t)
	f.promote(t, operatorA)
	f.say(citizenID, labelCreate)
	f.say(citizenID, "Шумят соседи")
	id := f.mine(t)[0].TicketID

	f.press(operatorA, callback.Encode(callback.AssignMenu, id))
	if kb := f.rec.Last(operatorA).Keyboard; kb == nil || len(kb.Inline) != 10 {
		t.Fatalf("department menu = %+v", kb)
	}
	f.press(operatorA, callback.Encode(callback.Assign, id, "police"))
	if f.mine(t)[0].Department != "police" {
		t.Fatal("not assigned")
	}
}

func TestOneShotReply(t *testing.T) {
	f := newFixture(t)
	f.promote(t, operatorA)
	f.say(citizenID, labelCreate)
	f.say(citizenID, "Когда починят лифт?")
	id := f.mine(t)[0].TicketID

	f.press(operatorA, callback.Encode(callback.Reply, id))
	f.say(operatorA, "Завтра до обеда")
	if f.rec.Last(operatorA).Text != textReplySent {
		t.Fatalf("reply = %q", f.rec.Last(operatorA).Text)
	}
	if !f.rec.Contains(citizenID, "Завтра до обеда") {
		t.Fatal("citizen did not get the reply")
	}
}

func TestDialogFlow(t *testing.T) {
	f := newFixture(t)
	f.promote(t, operatorA, operatorB)
	f.say(citizenID, labelCreate)
	f.say(citizenID, "Течёт крыша")
	id := f.mine(t)[0].TicketID

	f.say(operatorA, "/dialog "+id)
	if !f.rec.Contains(citizenID, "Оператор подключился") {
		t.Fatal("citizen not told")
	}
	if f.mine(t)[0].Status != model.TicketStatusInProgress {
		t.Fatal("dialog did not take the ticket")
	}

	f.say(operatorB, "/dialog "+id)
	if f.rec.Last(operatorB).Text != textDialogBusy {
		t.Fatalf("operator B = %q", f.rec.Last(operatorB).Text)
	}

	f.say(operatorA, "Пришлите фото")
	if f.rec.Last(citizenID).Text != "Пришлите фото" {
		t.Fatal("operator text not forwarded")
	}
	f.say(citizenID, "Сейчас")
	if f.rec.Last(operatorA).Text != "Сейчас" {
		t.Fatal("citizen text not forwarded")
	}
	if len(f.mine(t)) != 1 {
		t.Fatal("dialog text created a ticket")
	}

	f.say(citizenID, "/stop")
	if f.rec.Last(citizenID).Text != textNotDialogOwner {
		t.Fatal("citizen stopped the dialog")
	}
	f.say(operatorA, "/stop")
	if !f.rec.Contains(citizenID, "завершён оператором") {
		t.Fatal("stop not announced")
	}
	if _, ok := f.bot.sessions.Current(citizenID).Mode.(session.InDialog); ok {
		t.Fatal("citizen still in dialog")
	}
}

func TestExportCommand(t *testing.T) {
	f := newFixture(t)
	f.promote(t, operatorA)
	f.say(citizenID, labelCreate)
	f.say(citizenID, "Не ходит автобус 12")

	f.say(operatorA, "/export csv 2025-10-01 2025-10-31")
	last := f.rec.Last(operatorA)
	if last.Op != "document" || last.Document.Name != "tickets_2025-10-01_2025-10-31.csv" || last.Text != "Заявок: 1" {
		t.Fatalf("export = %+v", last)
	}
	f.say(operatorA, "/export pdf 2025-10-01 2025-10-31")
	if f.rec.Last(operatorA).Text != textExportUsage {
		t.Fatal("bad format accepted")
	}
}

func TestBroadcastAndBulkClose(t *testing.T) {
	f := newFixture(t)
	f.promote(t, operatorA)
	f.say(citizenID, labelCreate)
	f.say(citizenID, "Не работает светофор")

	f.say(operatorA, "/broadcast Плановое отключение воды")
	if !f.rec.Contains(citizenID, "Плановое отключение воды") {
		t.Fatal("broadcast not delivered")
	}
	if !strings.Contains(f.rec.Last(operatorA).Text, "Доставлено: 2") {
		t.Fatalf("summary = %q", f.rec.Last(operatorA).Text)
	}
	f.say(operatorA, "/bulkclose")
	if f.rec.Last(operatorA).Text != "Закрыто заявок: 1" {
		t.Fatalf("bulk close = %q", f.rec.Last(operatorA).Text)
	}
}

func TestDepartmentCommands(t *testing.T) {
	f := newFixture(t)
	f.promote(t, operatorA)
	f.say(operatorA, "/dept set fire -1001 Пожарная часть 3")
	f.say(operatorA, "/dept list")
	if !f.rec.Contains(operatorA, "fire — Пожарная часть 3 — чат: -1001") {
		t.Fatalf("list = %q", f.rec.Last(operatorA).Text)
	}
	f.say(operatorA, "/dept set fire -")
	f.say(operatorA, "/dept list")
	if !strings.Contains(f.rec.Last(operatorA).Text, "fire — Пожарная часть 3 — чат: нет") {
		t.Fatalf("list = %q", f.rec.Last(operatorA).Text)
	}
	f.say(operatorA, "/dept del nowhere")
	if f.rec.Last(operatorA).Text != textDeptNotFound {
		t.Fatal("missing department deleted")
	}
}

func TestGroupMessagesIgnored(t *testing.T) {
	f := newFixture(t)
	f.bot.Handle(context.Background(), transport.Inbound{
		ParticipantID: citizenID, ChatID: -500, ChatKind: transport.ChatGroup, Text: "Создать обращение",
	})
	if len(f.rec.All()) != 0 {
		t.Fatalf("group message answered: %+v", f.rec.All())
	}
}

func TestKeyedLockSerializes(t *testing.T) {
	k := newKeyedLock()
	var (
		inside int32
		wg     sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock(7)
			if atomic.AddInt32(&inside, 1) != 1 {
				t.Error("two holders at once")
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()
	if k.size() != 0 {
		t.Fatalf("entries leaked: %d", k.size())
	}
}

func TestQueuedDialogKeepsMessageOrder(t *testing.T) {
	f := newFixture(t)
	f.promote(t, operatorA)
	f.say(citizenID, labelCreate)
	f.say(citizenID, "Течёт крыша")
	f.say(operatorA, "/dialog "+f.mine(t)[0].TicketID)
	f.rec.Reset()

	q := transport.NewQueue(f.bot)
	const n = 100
	for i := 0; i < n; i++ {
		q.Dispatch(context.Background(), transport.Inbound{
			ParticipantID: citizenID,
			ChatID:        citizenID,
			ChatKind:      transport.ChatPrivate,
			Text:          fmt.Sprintf("m%03d", i),
		})
	}
	q.Wait()

	got := f.rec.To(operatorA)
	if len(got) != n {
		t.Fatalf("operator got %d messages, want %d", len(got), n)
	}
	for i, s := range got {
		if want := fmt.Sprintf("m%03d", i); s.Text != want {
			t.Fatalf("position %d = %s, want %s", i, s.Text, want)
		}
	}
}

func TestQueuedPhotoThenTextKeepsPhoto(t *testing.T) {
	f := newFixture(t)
	q := transport.NewQueue(f.bot)
	ctx := context.Background()
	q.Dispatch(ctx, transport.Inbound{
		ParticipantID: citizenID, ChatID: citizenID, ChatKind: transport.ChatPrivate,
		MediaRef: "photo:abc",
	})
	q.Dispatch(ctx, transport.Inbound{
		ParticipantID: citizenID, ChatID: citizenID, ChatKind: transport.ChatPrivate,
		Text: "Не вывозят мусор",
	})
	q.Wait()
	f.notifier.Wait()

	tickets := f.mine(t)
	if len(tickets) != 1 || tickets[0].MediaRef != "photo:abc" {
		t.Fatalf("tickets = %+v", tickets)
	}
	if st := f.bot.sessions.Current(citizenID); !st.Draft.Empty() {
		t.Fatalf("draft left behind: %+v", st.Draft)
	}
}

func TestCancelWordAbandonsWizard(t *testing.T) {
	for _, word := range []string{"отмена", "Отмена!", "cancel"} {
		f := newFixture(t)
		f.say(citizenID, labelCreate)
		f.press(citizenID, callback.Encode(callback.Category, string(model.CategoryLighting)))
		f.say(citizenID, word)

		if len(f.mine(t)) != 0 {
			t.Fatalf("%q became a ticket", word)
		}
		if f.rec.Last(citizenID).Text != textWizardCanceled {
			t.Fatalf("%q: reply = %q", word, f.rec.Last(citizenID).Text)
		}
		if st := f.bot.sessions.Current(citizenID); !st.Draft.Empty() {
			t.Fatalf("%q: draft = %+v", word, st.Draft)
		}
	}
}

func TestCancelWordDisarmsPrompt(t *testing.T) {
	f := newFixture(t)
	f.promote(t, operatorA)
	f.say(citizenID, labelCreate)
	f.say(citizenID, "Сломана скамейка")

	f.say(operatorA, labelBroadcast)
	f.say(operatorA, "отмена")
	if f.rec.Last(operatorA).Text != textCanceled {
		t.Fatalf("reply = %q", f.rec.Last(operatorA).Text)
	}
	if f.rec.Contains(citizenID, "отмена") {
		t.Fatal("cancel word was broadcast")
	}
	if _, ok := f.bot.sessions.Current(operatorA).Mode.(session.Idle); !ok {
		t.Fatal("prompt still armed")
	}
}

func TestEmergencyCategoryFromMenuIsUrgent(t *testing.T) {
	f := newFixture(t)
	f.say(citizenID, labelCreate)
	f.press(citizenID, callback.Encode(callback.Category, string(model.CategoryEmergGas)))
	if st := f.bot.sessions.Current(citizenID); st.Draft.Category != model.CategoryEmergGas {
		t.Fatalf("draft = %+v", st.Draft)
	}
	f.say(citizenID, "Во дворе")

	tickets := f.mine(t)
	if len(tickets) != 1 || tickets[0].Category != model.CategoryEmergGas || !tickets[0].Urgent {
		t.Fatalf("tickets = %+v", tickets)
	}
	if tickets[0].Department != "gas_service" {
		t.Fatalf("department = %q", tickets[0].Department)
	}
}
