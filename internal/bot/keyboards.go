package bot

import (
	"strings"

	"github.com/psds-microservice/citizen-desk/internal/callback"
	"github.com/psds-microservice/citizen-desk/internal/model"
	"github.com/psds-microservice/citizen-desk/internal/transport"
)

const (
	labelCreate    = "Создать обращение"
	labelMine      = "Мои обращения"
	labelHelp      = "Справка"
	labelActive    = "Активные заявки"
	labelStats     = "Статистика"
	labelOpen      = "Открыть заявку"
	labelExport    = "Экспорт"
	labelBroadcast = "Рассылка"
)

type button int

const (
	buttonNone button = iota
	buttonCreate
	buttonMine
	buttonHelp
	buttonActive
	buttonStats
	buttonOpen
	buttonExport
	buttonBroadcast
)

var exactButtons = map[string]button{
	strings.ToLower(labelCreate):    buttonCreate,
	strings.ToLower(labelMine):      buttonMine,
	strings.ToLower(labelHelp):      buttonHelp,
	strings.ToLower(labelActive):    buttonActive,
	strings.ToLower(labelStats):     buttonStats,
	strings.ToLower(labelOpen):      buttonOpen,
	strings.ToLower(labelExport):    buttonExport,
	strings.ToLower(labelBroadcast): buttonBroadcast,
}

// exactButton matches keyboard labels only. Used while a wizard or prompt is
// pending, where free text is expected.
func exactButton(text string) button {
	return exactButtons[strings.ToLower(strings.TrimSpace(text))]
}

var cancelWords = map[string]bool{
	"отмена":   true,
	"отменить": true,
	"cancel":   true,
}

// isCancelWord reports whether text is a bare cancel keyword, as typed
// instead of the /cancel command.
func isCancelWord(text string) bool {
	return cancelWords[strings.ToLower(strings.Trim(strings.TrimSpace(text), ".!"))]
}

// detectButton also accepts loosely typed citizen menu phrases.
func detectButton(text string) button {
	if b := exactButton(text); b != buttonNone {
		return b
	}
	t := strings.ToLower(text)
	switch {
	case strings.Contains(t, "создать"):
		return buttonCreate
	case strings.Contains(t, "мои") && strings.Contains(t, "обращ"):
		return buttonMine
	case strings.Contains(t, "справка"):
		return buttonHelp
	}
	return buttonNone
}

func mainKeyboard(staff bool) *transport.Keyboard {
	rows := [][]string{
		{labelCreate},
		{labelMine, labelHelp},
	}
	if staff {
		rows = append(rows,
			[]string{labelActive, labelStats},
			[]string{labelOpen, labelExport},
			[]string{labelBroadcast},
		)
	}
	return &transport.Keyboard{Reply: rows}
}

func categoryKeyboard() *transport.Keyboard {
	var rows [][]transport.Button
	for i := 0; i < len(model.Categories); i += 2 {
		row := []transport.Button{categoryButton(model.Categories[i])}
		if i+1 < len(model.Categories) {
			row = append(row, categoryButton(model.Categories[i+1]))
		}
		rows = append(rows, row)
	}
	rows = append(rows, []transport.Button{
		{Text: model.CategoryNone.Label(), Data: callback.Encode(callback.Category, categoryNone)},
		{Text: "Отмена", Data: callback.Encode(callback.Cancel)},
	})
	return &transport.Keyboard{Inline: rows}
}

// categoryNone is the callback argument for "no category".
const categoryNone = "none"

func categoryButton(c model.Category) transport.Button {
	return transport.Button{Text: c.Label(), Data: callback.Encode(callback.Category, string(c))}
}

var statusButtons = []struct {
	status model.TicketStatus
	label  string
}{
	{model.TicketStatusInProgress, "В обработку"},
	{model.TicketStatusDone, "Завершить"},
	{model.TicketStatusDeclined, "Отклонить"},
}

// cardKeyboard offers the actions still valid for the ticket.
func cardKeyboard(t *model.Ticket) *transport.Keyboard {
	reply := transport.Button{Text: "Ответить", Data: callback.Encode(callback.Reply, t.TicketID)}
	if t.Status.Terminal() {
		return &transport.Keyboard{Inline: [][]transport.Button{{reply}}}
	}
	var statuses []transport.Button
	for _, sb := range statusButtons {
		if t.Status.CanTransitionTo(sb.status) {
			statuses = append(statuses, transport.Button{
				Text: sb.label,
				Data: callback.Encode(callback.SetStatus, t.TicketID, string(sb.status)),
			})
		}
	}
	return &transport.Keyboard{Inline: [][]transport.Button{
		statuses,
		{
			{Text: "Направить", Data: callback.Encode(callback.AssignMenu, t.TicketID)},
			reply,
		},
		{{Text: "Диалог", Data: callback.Encode(callback.Dialog, t.TicketID)}},
	}}
}

func departmentKeyboard(ticketID string, depts []model.Department) *transport.Keyboard {
	rows := make([][]transport.Button, 0, len(depts))
	for _, d := range depts {
		rows = append(rows, []transport.Button{{
			Text: d.DisplayName,
			Data: callback.Encode(callback.Assign, ticketID, d.Key),
		}})
	}
	return &transport.Keyboard{Inline: rows}
}

func openButtons(tickets []model.Ticket) *transport.Keyboard {
	rows := make([][]transport.Button, 0, len(tickets))
	for i := range tickets {
		rows = append(rows, []transport.Button{{
			Text: "Открыть " + tickets[i].TicketID,
			Data: callback.Encode(callback.Open, tickets[i].TicketID),
		}})
	}
	return &transport.Keyboard{Inline: rows}
}
