package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/psds-microservice/citizen-desk/internal/model"
	"github.com/psds-microservice/citizen-desk/internal/service"
)

type DepartmentHandler struct {
	svc *service.TicketService
}

func NewDepartmentHandler(svc *service.TicketService) *DepartmentHandler {
	return &DepartmentHandler{svc: svc}
}

func (h *DepartmentHandler) List(c *gin.Context) {
	items, err := h.svc.ListDepartments(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"departments": items})
}

type departmentRequest struct {
	DisplayName        string `json:"display_name" binding:"required"`
	NotificationTarget *int64 `json:"notification_target"`
}

// Put creates or replaces the department named in the path.
func (h *DepartmentHandler) Put(c *gin.Context) {
	var req departmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	d, err := h.svc.UpsertDepartment(c.Request.Context(), service.System, model.Department{
		Key:                c.Param("key"),
		DisplayName:        req.DisplayName,
		NotificationTarget: req.NotificationTarget,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *DepartmentHandler) Delete(c *gin.Context) {
	if err := h.svc.DeleteDepartment(c.Request.Context(), service.System, c.Param("key")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
