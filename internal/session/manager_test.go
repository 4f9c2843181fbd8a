package session

import (
	"sync"
	"testing"

	"github.com/psds-microservice/citizen-desk/internal/model"
)

type stubDialogs map[int64]string

func (s stubDialogs) TicketFor(id int64) (string, bool) {
	t, ok := s[id]
	return t, ok
}

func TestLazyIdle(t *testing.T) {
	m := NewManager(NewMemoryStore(), nil)
	st := m.Current(1)
	if _, ok := st.Mode.(Idle); !ok {
		t.Fatalf("fresh session mode = %T", st.Mode)
	}
	if !st.Draft.Empty() {
		t.Fatalf("fresh draft = %+v", st.Draft)
	}
}

func TestWizardFlow(t *testing.T) {
	m := NewManager(NewMemoryStore(), nil)
	m.StartWizard(1)
	if _, ok := m.Current(1).Mode.(AwaitingCategory); !ok {
		t.Fatal("wizard did not ask for category")
	}
	m.ChooseCategory(1, model.CategoryRoads)
	st := m.Current(1)
	if _, ok := st.Mode.(AwaitingTicketText); !ok {
		t.Fatalf("mode after category = %T", st.Mode)
	}
	m.AttachLocation(1, Location{Latitude: 1, Longitude: 2})
	d := m.TakeDraft(1)
	if d.Category != model.CategoryRoads || d.Location == nil || d.Location.Longitude != 2 {
		t.Fatalf("draft = %+v", d)
	}
	st = m.Current(1)
	if _, ok := st.Mode.(Idle); !ok || !st.Draft.Empty() {
		t.Fatalf("after take: %+v", st)
	}
}

func TestMediaDuringCategoryAdvances(t *testing.T) {
	m := NewManager(NewMemoryStore(), nil)
	m.StartWizard(1)
	m.AttachMedia(1, "photo:abc")
	st := m.Current(1)
	if _, ok := st.Mode.(AwaitingTicketText); !ok {
		t.Fatalf("mode = %T", st.Mode)
	}
	if st.Draft.MediaRef != "photo:abc" {
		t.Fatalf("media = %q", st.Draft.MediaRef)
	}
}

func TestPromptsAreExclusive(t *testing.T) {
	m := NewManager(NewMemoryStore(), nil)
	m.SetMode(1, AwaitingExportParams{})
	m.SetMode(1, AwaitingCleanupDate{})
	if _, ok := m.Current(1).Mode.(AwaitingCleanupDate); !ok {
		t.Fatalf("mode = %T", m.Current(1).Mode)
	}
	m.CompletePrompt(1)
	if _, ok := m.Current(1).Mode.(Idle); !ok {
		t.Fatalf("prompt not cleared: %T", m.Current(1).Mode)
	}
}

func TestCompletePromptKeepsDraft(t *testing.T) {
	m := NewManager(NewMemoryStore(), nil)
	m.StartWizard(1)
	m.AttachMedia(1, "photo:x")
	m.SetMode(1, AwaitingOneShotReply{TicketID: "T1"})
	m.CompletePrompt(1)
	if m.Current(1).Draft.MediaRef != "photo:x" {
		t.Fatal("completing a prompt dropped the draft")
	}
	m.Cancel(1)
	if !m.Current(1).Draft.Empty() {
		t.Fatal("cancel must clear the draft")
	}
}

func TestDialogOverlay(t *testing.T) {
	dialogs := stubDialogs{7: "T20250101000000001"}
	m := NewManager(NewMemoryStore(), dialogs)
	m.SetMode(7, AwaitingBroadcastText{})
	mode, ok := m.Current(7).Mode.(InDialog)
	if !ok || mode.TicketID != "T20250101000000001" {
		t.Fatalf("mode = %#v", m.Current(7).Mode)
	}
	delete(dialogs, 7)
	if _, ok := m.Current(7).Mode.(AwaitingBroadcastText); !ok {
		t.Fatalf("stored mode lost: %T", m.Current(7).Mode)
	}
	m.SetMode(7, InDialog{TicketID: "x"})
	if _, ok := m.Current(7).Mode.(InDialog); ok {
		t.Fatal("InDialog must not be storable")
	}
}

func TestConcurrentUpdates(t *testing.T) {
	store := NewMemoryStore()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := int64(i % 5)
			store.Update(id, func(st *State) { st.Draft.MediaRef += "x" })
		}(i)
	}
	wg.Wait()
	for id := int64(0); id < 5; id++ {
		if got := len(store.Get(id).Draft.MediaRef); got != 20 {
			t.Fatalf("participant %d saw %d updates", id, got)
		}
	}
}

func TestModeClassification(t *testing.T) {
	if !IsWizard(AwaitingTicketText{}) || IsWizard(AwaitingCleanupDate{}) {
		t.Fatal("wizard classification")
	}
	if !IsPrompt(AwaitingOneShotReply{}) || IsPrompt(Idle{}) || IsPrompt(InDialog{}) {
		t.Fatal("prompt classification")
	}
}
