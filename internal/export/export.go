// Package export renders ticket lists as CSV or plain text files.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/psds-microservice/citizen-desk/internal/errs"
	"github.com/psds-microservice/citizen-desk/internal/model"
)

type Format string

const (
	CSV Format = "csv"
	TXT Format = "txt"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "2006-01-02 15:04:05"
)

// utf8BOM lets spreadsheet tools detect the encoding of Cyrillic text.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

var header = []string{
	"ticket_id", "created_at", "updated_at", "author_id", "status", "category",
	"urgent", "department", "latitude", "longitude", "media_ref", "admin_comment", "text",
}

// ParseFormat accepts "csv" or "txt" in any case.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case CSV:
		return CSV, nil
	case TXT:
		return TXT, nil
	}
	return "", fmt.Errorf("%w: unknown export format %q", errs.ErrInvalidArgument, s)
}

// ParseDate parses a YYYY-MM-DD calendar date in UTC.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q must be YYYY-MM-DD", errs.ErrInvalidArgument, s)
	}
	return t, nil
}

// Params is a parsed "<csv|txt> <start> <end>" request.
type Params struct {
	Format Format
	Start  time.Time
	End    time.Time
}

// ParseParams parses the export arguments typed by staff.
func ParseParams(args []string) (Params, error) {
	if len(args) != 3 {
		return Params{}, fmt.Errorf("%w: expected <csv|txt> <start> <end>", errs.ErrInvalidArgument)
	}
	f, err := ParseFormat(args[0])
	if err != nil {
		return Params{}, err
	}
	start, err := ParseDate(args[1])
	if err != nil {
		return Params{}, err
	}
	end, err := ParseDate(args[2])
	if err != nil {
		return Params{}, err
	}
	if end.Before(start) {
		return Params{}, fmt.Errorf("%w: end date precedes start date", errs.ErrInvalidArgument)
	}
	return Params{Format: f, Start: start, End: end}, nil
}

// FileName names an export file after its date range.
func FileName(f Format, start, end time.Time) string {
	return fmt.Sprintf("tickets_%s_%s.%s", start.Format(dateLayout), end.Format(dateLayout), f)
}

// Render returns the encoded file contents.
func Render(f Format, tickets []model.Ticket) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, f, tickets); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func Write(w io.Writer, f Format, tickets []model.Ticket) error {
	switch f {
	case CSV:
		return writeCSV(w, tickets)
	case TXT:
		return writeTXT(w, tickets)
	}
	return fmt.Errorf("%w: unknown export format %q", errs.ErrInvalidArgument, f)
}

func writeCSV(w io.Writer, tickets []model.Ticket) error {
	if _, err := w.Write(utf8BOM); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for i := range tickets {
		t := &tickets[i]
		row := []string{
			t.TicketID,
			t.CreatedAt.UTC().Format(timeLayout),
			t.UpdatedAt.UTC().Format(timeLayout),
			strconv.FormatInt(t.AuthorID, 10),
			string(t.Status),
			string(t.Category),
			strconv.FormatBool(t.Urgent),
			t.Department,
			coord(t.Latitude),
			coord(t.Longitude),
			t.MediaRef,
			t.AdminComment,
			t.Text,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeTXT(w io.Writer, tickets []model.Ticket) error {
	if len(tickets) == 0 {
		_, err := io.WriteString(w, "Нет заявок за выбранный период.\n")
		return err
	}
	for i := range tickets {
		t := &tickets[i]
		var b strings.Builder
		if i > 0 {
			b.WriteString("\n----------------------------------------\n\n")
		}
		fmt.Fprintf(&b, "Заявка %s\n", t.TicketID)
		fmt.Fprintf(&b, "Дата: %s UTC\n", t.CreatedAt.UTC().Format(timeLayout))
		fmt.Fprintf(&b, "Статус: %s\n", t.Status.Label())
		fmt.Fprintf(&b, "Категория: %s\n", t.Category.Label())
		if t.Urgent {
			b.WriteString("Срочно: да\n")
		}
		if t.Department != "" {
			fmt.Fprintf(&b, "Подразделение: %s\n", t.Department)
		}
		fmt.Fprintf(&b, "От: %d\n", t.AuthorID)
		if t.HasLocation() {
			fmt.Fprintf(&b, "Координаты: %s, %s\n", coord(t.Latitude), coord(t.Longitude))
		}
		if t.AdminComment != "" {
			fmt.Fprintf(&b, "Комментарий: %s\n", t.AdminComment)
		}
		text := t.Text
		if text == "" {
			text = "<пусто>"
		}
		fmt.Fprintf(&b, "\n%s\n", text)
		if _, err := io.WriteString(w, b.String()); err != nil {
			return err
		}
	}
	return nil
}

func coord(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 6, 64)
}
