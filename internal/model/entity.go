package model

import "time"

type TicketStatus string

const (
	TicketStatusNew        TicketStatus = "new"
	TicketStatusInProgress TicketStatus = "in_progress"
	TicketStatusDone       TicketStatus = "done"
	TicketStatusDeclined   TicketStatus = "declined"
)

// ActiveStatuses are the non-terminal statuses.
var ActiveStatuses = []TicketStatus{TicketStatusNew, TicketStatusInProgress}

// Valid reports whether s is one of the known statuses.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusNew, TicketStatusInProgress, TicketStatusDone, TicketStatusDeclined:
		return true
	}
	return false
}

// Terminal reports whether no further status or department change is allowed.
func (s TicketStatus) Terminal() bool {
	return s == TicketStatusDone || s == TicketStatusDeclined
}

// CanTransitionTo encodes New -> InProgress -> {Done, Declined}, with
// New -> {Done, Declined} allowed directly.
func (s TicketStatus) CanTransitionTo(next TicketStatus) bool {
	switch s {
	case TicketStatusNew:
		return next == TicketStatusInProgress || next == TicketStatusDone || next == TicketStatusDeclined
	case TicketStatusInProgress:
		return next == TicketStatusDone || next == TicketStatusDeclined
	}
	return false
}

// Category is drawn from a closed enumeration; the empty value means uncategorized.
type Category string

const (
	CategoryNone          Category = ""
	CategoryEmergFire     Category = "emerg_fire"
	CategoryEmergGas      Category = "emerg_gas"
	CategoryEmergMedical  Category = "emerg_medical"
	CategoryEmergCrime    Category = "emerg_crime"
	CategoryEmergAccident Category = "emerg_accident"
	CategoryUtilities     Category = "utilities"
	CategoryRoads         Category = "roads"
	CategoryLighting      Category = "lighting"
	CategorySanitation    Category = "sanitation"
	CategoryTransport     Category = "transport"
	CategoryOther         Category = "other"
)

// Categories lists every selectable category in menu order.
var Categories = []Category{
	CategoryEmergFire,
	CategoryEmergGas,
	CategoryEmergMedical,
	CategoryEmergCrime,
	CategoryEmergAccident,
	CategoryUtilities,
	CategoryRoads,
	CategoryLighting,
	CategorySanitation,
	CategoryTransport,
	CategoryOther,
}

// Valid reports whether c is part of the enumeration (uncategorized included).
func (c Category) Valid() bool {
	if c == CategoryNone {
		return true
	}
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

type Ticket struct {
	ID           uint64       `gorm:"primaryKey" json:"-"`
	TicketID     string       `gorm:"type:varchar(32);uniqueIndex;not null" json:"ticket_id"`
	AuthorID     int64        `gorm:"index;not null" json:"author_id"`
	Text         string       `gorm:"type:text" json:"text"`
	MediaRef     string       `gorm:"type:text" json:"media_ref,omitempty"`
	Latitude     *float64     `json:"latitude,omitempty"`
	Longitude    *float64     `json:"longitude,omitempty"`
	Status       TicketStatus `gorm:"type:varchar(32);index;not null" json:"status"`
	AdminComment string       `gorm:"type:text" json:"admin_comment,omitempty"`
	Category     Category     `gorm:"type:varchar(32);index" json:"category,omitempty"`
	Urgent       bool         `gorm:"column:urgency;not null" json:"urgent"`
	Department   string       `gorm:"type:varchar(64);index" json:"department,omitempty"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasLocation reports whether the ticket carries a geo tag.
func (t *Ticket) HasLocation() bool {
	return t.Latitude != nil && t.Longitude != nil
}

type ReplyRole string

const (
	ReplyRoleStaff   ReplyRole = "staff"
	ReplyRoleCitizen ReplyRole = "citizen"
)

type Reply struct {
	ID         uint64    `gorm:"primaryKey" json:"id"`
	TicketID   string    `gorm:"type:varchar(32);index;not null" json:"ticket_id"`
	AuthorID   int64     `gorm:"not null" json:"author_id"`
	AuthorRole ReplyRole `gorm:"type:varchar(16);not null" json:"author_role"`
	Text       string    `gorm:"type:text" json:"text"`
	CreatedAt  time.Time `json:"created_at"`
}

type AuditAction string

const (
	AuditStatusChange     AuditAction = "status_change"
	AuditAssignDepartment AuditAction = "assign_department"
	AuditReply            AuditAction = "reply"
	AuditDialogStart      AuditAction = "dialog_start"
	AuditDialogStop       AuditAction = "dialog_stop"
	AuditBulkClose        AuditAction = "bulk_close"
)

type AuditEntry struct {
	ID        uint64      `gorm:"primaryKey" json:"id"`
	TicketID  string      `gorm:"type:varchar(32);index;not null" json:"ticket_id"`
	Action    AuditAction `gorm:"type:varchar(32);not null" json:"action"`
	Details   string      `gorm:"type:text" json:"details"`
	ActorID   *int64      `json:"actor_id,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

func (AuditEntry) TableName() string { return "audit_log" }

type Department struct {
	Key                string `gorm:"primaryKey;type:varchar(64)" json:"key"`
	DisplayName        string `gorm:"type:varchar(255);not null" json:"display_name"`
	NotificationTarget *int64 `json:"notification_target,omitempty"`
}

// Notifiable reports whether live notifications can be delivered.
func (d *Department) Notifiable() bool {
	return d.NotificationTarget != nil && *d.NotificationTarget != 0
}

// Participant is anyone who has talked to the bot; staff are flagged.
type Participant struct {
	ID          int64     `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Username    string    `gorm:"type:varchar(255)" json:"username,omitempty"`
	DisplayName string    `gorm:"type:varchar(255)" json:"display_name,omitempty"`
	IsStaff     bool      `gorm:"not null" json:"is_staff"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// StatusCounts is the result of CountByStatus.
type StatusCounts struct {
	Total    int64                  `json:"total"`
	ByStatus map[TicketStatus]int64 `json:"by_status"`
}

// Active returns the number of non-terminal tickets.
func (c StatusCounts) Active() int64 {
	return c.ByStatus[TicketStatusNew] + c.ByStatus[TicketStatusInProgress]
}

var statusLabels = map[TicketStatus]string{
	TicketStatusNew:        "Новый",
	TicketStatusInProgress: "В обработке",
	TicketStatusDone:       "Завершено",
	TicketStatusDeclined:   "Отклонено",
}

// Label is the status as shown to participants.
func (s TicketStatus) Label() string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}

var categoryLabels = map[Category]string{
	CategoryNone:          "Без категории",
	CategoryEmergFire:     "🔥 Пожар",
	CategoryEmergGas:      "💨 Утечка газа",
	CategoryEmergMedical:  "🚑 Нужна медицинская помощь",
	CategoryEmergCrime:    "🚨 Правонарушение",
	CategoryEmergAccident: "💥 ДТП",
	CategoryUtilities:     "🚰 ЖКХ",
	CategoryRoads:         "🛣 Дороги",
	CategoryLighting:      "💡 Освещение",
	CategorySanitation:    "🗑 Мусор и санитария",
	CategoryTransport:     "🚌 Транспорт",
	CategoryOther:         "📝 Другое",
}

// Label is the category as shown in menus and ticket cards.
func (c Category) Label() string {
	if l, ok := categoryLabels[c]; ok {
		return l
	}
	return string(c)
}
