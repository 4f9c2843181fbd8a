package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/psds-microservice/citizen-desk/internal/export"
	"github.com/psds-microservice/citizen-desk/internal/model"
	"github.com/psds-microservice/citizen-desk/internal/service"
)

const defaultListLimit = 50

// TicketHandler is the operator REST API over the ticket lifecycle. Every
// call acts as service.System.
type TicketHandler struct {
	svc *service.TicketService
}

func NewTicketHandler(svc *service.TicketService) *TicketHandler {
	return &TicketHandler{svc: svc}
}

type createTicketRequest struct {
	AuthorID  int64    `json:"author_id" binding:"required"`
	Text      string   `json:"text"`
	MediaRef  string   `json:"media_ref"`
	Category  string   `json:"category"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

type createTicketResponse struct {
	Ticket      *model.Ticket `json:"ticket"`
	Departments []string      `json:"departments"`
}

// Create files a ticket on behalf of a citizen, e.g. from a call centre.
func (h *TicketHandler) Create(c *gin.Context) {
	var req createTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	t, route, err := h.svc.Create(c.Request.Context(), service.NewTicket{
		AuthorID:  req.AuthorID,
		Text:      req.Text,
		MediaRef:  req.MediaRef,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Category:  model.Category(req.Category),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, createTicketResponse{Ticket: t, Departments: route.Departments})
}

func (h *TicketHandler) Get(c *gin.Context) {
	t, err := h.svc.Get(c.Request.Context(), service.System, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// History returns the replies and audit trail of a ticket.
func (h *TicketHandler) History(c *gin.Context) {
	replies, audit, err := h.svc.History(c.Request.Context(), service.System, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"replies": replies, "audit": audit})
}

// List returns active tickets (oldest first) or, with ?scope=recent, the most
// recent tickets of any status.
func (h *TicketHandler) List(c *gin.Context) {
	limit := defaultListLimit
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	var (
		items []model.Ticket
		err   error
	)
	switch c.DefaultQuery("scope", "active") {
	case "active":
		items, err = h.svc.ListActive(c.Request.Context(), service.System, limit)
	case "recent":
		items, err = h.svc.ListRecent(c.Request.Context(), service.System, limit)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "scope must be active or recent"})
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tickets": items, "total": len(items)})
}

type statusRequest struct {
	Status  string `json:"status" binding:"required"`
	Comment string `json:"comment"`
}

func (h *TicketHandler) ChangeStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	t, err := h.svc.ChangeStatus(c.Request.Context(), service.System, c.Param("id"), model.TicketStatus(req.Status), req.Comment)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

type assignRequest struct {
	Department string `json:"department" binding:"required"`
}

func (h *TicketHandler) Assign(c *gin.Context) {
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	t, err := h.svc.AssignDepartment(c.Request.Context(), service.System, c.Param("id"), req.Department)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

type replyRequest struct {
	Text string `json:"text" binding:"required"`
}

func (h *TicketHandler) Reply(c *gin.Context) {
	var req replyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	if _, err := h.svc.Reply(c.Request.Context(), service.System, c.Param("id"), req.Text); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *TicketHandler) BulkClose(c *gin.Context) {
	n, err := h.svc.BulkClose(c.Request.Context(), service.System)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"closed": n})
}

// Purge deletes tickets: ?scope=active, ?scope=all or ?scope=before&before=YYYY-MM-DD.
func (h *TicketHandler) Purge(c *gin.Context) {
	kind := service.PurgeKind(c.Query("scope"))
	var before time.Time
	if kind == service.PurgeBefore {
		d, err := export.ParseDate(c.Query("before"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "before must be YYYY-MM-DD"})
			return
		}
		before = d
	}
	n, err := h.svc.Purge(c.Request.Context(), service.System, kind, before)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": n})
}

// Export streams tickets created between from and to (inclusive) as a file.
func (h *TicketHandler) Export(c *gin.Context) {
	p, err := export.ParseParams([]string{c.DefaultQuery("format", "csv"), c.Query("from"), c.Query("to")})
	if err != nil {
		writeError(c, err)
		return
	}
	tickets, err := h.svc.Export(c.Request.Context(), service.System, p.Start, p.End)
	if err != nil {
		writeError(c, err)
		return
	}
	data, err := export.Render(p.Format, tickets)
	if err != nil {
		writeError(c, err)
		return
	}
	contentType := "text/csv; charset=utf-8"
	if p.Format == export.TXT {
		contentType = "text/plain; charset=utf-8"
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(p.Format, p.Start, p.End)))
	c.Data(http.StatusOK, contentType, data)
}

func (h *TicketHandler) Stats(c *gin.Context) {
	counts, err := h.svc.Stats(c.Request.Context(), service.System)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"total":     counts.Total,
		"by_status": counts.ByStatus,
		"active":    counts.Active(),
	})
}
