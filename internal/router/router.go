package router

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/psds-microservice/helpy/paths"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/psds-microservice/citizen-desk/api"
	"github.com/psds-microservice/citizen-desk/internal/handler"
)

type Handlers struct {
	Health      *handler.HealthHandler
	Tickets     *handler.TicketHandler
	Departments *handler.DepartmentHandler
}

func New(h Handlers, adminToken string) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), handler.Metrics())
	r.GET(paths.PathHealth, h.Health.Health)
	r.GET(paths.PathReady, h.Health.Ready)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET(paths.PathSwagger, func(c *gin.Context) { c.Redirect(http.StatusFound, paths.PathSwagger+"/") })
	r.GET(paths.PathSwagger+"/*any", func(c *gin.Context) {
		if strings.TrimPrefix(c.Param("any"), "/") == "openapi.json" {
			c.Data(http.StatusOK, "application/json", api.OpenAPISpec)
			return
		}
		if strings.TrimPrefix(c.Param("any"), "/") == "" {
			c.Request.URL.Path = paths.PathSwagger + "/index.html"
			c.Request.RequestURI = paths.PathSwagger + "/index.html"
		}
		ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL(paths.PathSwagger+"/openapi.json"))(c)
	})

	v1 := r.Group("/api/v1", handler.RequireAdminToken(adminToken))
	{
		v1.POST("/tickets", h.Tickets.Create)
		v1.GET("/tickets", h.Tickets.List)
		v1.DELETE("/tickets", h.Tickets.Purge)
		v1.GET("/tickets/export", h.Tickets.Export)
		v1.POST("/tickets/bulk-close", h.Tickets.BulkClose)
		v1.GET("/tickets/:id", h.Tickets.Get)
		v1.GET("/tickets/:id/history", h.Tickets.History)
		v1.PUT("/tickets/:id/status", h.Tickets.ChangeStatus)
		v1.PUT("/tickets/:id/department", h.Tickets.Assign)
		v1.POST("/tickets/:id/replies", h.Tickets.Reply)
		v1.GET("/stats", h.Tickets.Stats)

		v1.GET("/departments", h.Departments.List)
		v1.PUT("/departments/:key", h.Departments.Put)
		v1.DELETE("/departments/:key", h.Departments.Delete)
	}

	return r
}
