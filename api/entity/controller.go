// Package entity exposes entity services over HTTP.
//
//	GET    /entities/:entity?page=1&size=20&sort=-created_at&status=open
//	POST   /entities/:entity
//	GET    /entities/:entity/:id
//	PUT    /entities/:entity/:id
//	DELETE /entities/:entity/:id
//
// Query parameters other than page, size and sort filter by equality.
package entity

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
	"go.uber.org/zap"

	"entityservice/api/response"
	"entityservice/application/entityservice"
	"entityservice/application/paginator"
	"entityservice/domain/criteria"
	"entityservice/domain/shared"
	"entityservice/pkg/logger"
)

// NewFunc returns an empty entity to bind a request body into.
type NewFunc func() shared.Entity

type Controller struct {
	manager *entityservice.Manager
	paging  paginator.Config

	mu    sync.RWMutex
	types map[string]NewFunc
}

func NewController(manager *entityservice.Manager, paging paginator.Config) *Controller {
	return &Controller{
		manager: manager,
		paging:  paging,
		types:   make(map[string]NewFunc),
	}
}

// Expose serves entity name; only exposed entities are reachable.
func (c *Controller) Expose(name string, newEntity NewFunc) *Controller {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.types[name] = newEntity
	return c
}

func (c *Controller) RegisterRoutes(router *gin.RouterGroup) {
	g := router.Group("/entities/:entity")
	g.GET("", c.List)
	g.POST("", c.Create)
	g.GET("/:id", c.Get)
	g.PUT("/:id", c.Update)
	g.DELETE("/:id", c.Delete)
}

func (c *Controller) service(ctx *gin.Context) (*entityservice.Service, NewFunc, bool) {
	name := ctx.Param("entity")
	c.mu.RLock()
	newEntity, ok := c.types[name]
	c.mu.RUnlock()
	if !ok {
		response.HandleAppError(ctx, shared.NewRepositoryNotFoundError(name))
		return nil, nil, false
	}
	svc, err := c.manager.Get(name)
	if err != nil {
		response.HandleAppError(ctx, err)
		return nil, nil, false
	}
	return svc, newEntity, true
}

// List returns one page of entities matching the query string.
func (c *Controller) List(ctx *gin.Context) {
	svc, _, ok := c.service(ctx)
	if !ok {
		return
	}

	params := paginator.Params{
		Page: cast.ToInt(ctx.Query("page")),
		Size: cast.ToInt(ctx.Query("size")),
	}
	crit := QueryCriteria(ctx.Request.URL.Query())

	page, err := paginator.NewAdapter(svc, crit, c.paging).Page(ctx.Request.Context(), params)
	if err != nil {
		response.HandleAppError(ctx, err)
		return
	}

	response.HandlePaginated(ctx, page.Items, response.Pagination{
		Page:       page.Page,
		PageSize:   page.Size,
		TotalItems: page.Total,
		TotalPages: page.Pages,
	}, "ok")
}

func (c *Controller) Get(ctx *gin.Context) {
	svc, _, ok := c.service(ctx)
	if !ok {
		return
	}
	e, ok := c.find(ctx, svc)
	if !ok {
		return
	}
	response.HandleSuccess(ctx, e, "ok")
}

func (c *Controller) Create(ctx *gin.Context) {
	svc, newEntity, ok := c.service(ctx)
	if !ok {
		return
	}

	e := newEntity()
	if err := ctx.ShouldBindJSON(e); err != nil {
		response.HandleError(ctx, err, "invalid request body", 400)
		return
	}
	if err := svc.Persist(ctx.Request.Context(), e); err != nil {
		response.HandleAppError(ctx, err)
		return
	}

	logger.FromContext(ctx.Request.Context()).Info("entity created",
		zap.String("entity", svc.EntityName()), zap.String("id", e.ID()))
	response.HandleCreated(ctx, e, "created")
}

// Update replaces the stored entity with the body; the id in the path wins.
// The body is bound into a new entity, the stored one is never modified in place.
func (c *Controller) Update(ctx *gin.Context) {
	svc, newEntity, ok := c.service(ctx)
	if !ok {
		return
	}
	if _, ok := c.find(ctx, svc); !ok {
		return
	}

	id := ctx.Param("id")
	e := newEntity()
	if err := ctx.ShouldBindJSON(e); err != nil {
		response.HandleError(ctx, err, "invalid request body", 400)
		return
	}
	if assigner, ok := e.(shared.IdentityAssigner); ok {
		assigner.AssignID(id)
	} else if e.ID() != id {
		response.HandleError(ctx, fmt.Errorf("body id %q, path id %q", e.ID(), id), "id does not match the path", 400)
		return
	}
	if err := svc.Persist(ctx.Request.Context(), e); err != nil {
		response.HandleAppError(ctx, err)
		return
	}
	response.HandleSuccess(ctx, e, "updated")
}

func (c *Controller) Delete(ctx *gin.Context) {
	svc, _, ok := c.service(ctx)
	if !ok {
		return
	}
	e, ok := c.find(ctx, svc)
	if !ok {
		return
	}
	if err := svc.Delete(ctx.Request.Context(), e); err != nil {
		response.HandleAppError(ctx, err)
		return
	}
	response.HandleNoContent(ctx)
}

func (c *Controller) find(ctx *gin.Context, svc *entityservice.Service) (shared.Entity, bool) {
	e, err := svc.Find(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		response.HandleAppError(ctx, err)
		return nil, false
	}
	if e == nil {
		response.HandleAppError(ctx, shared.NewNotFoundError(svc.EntityName()))
		return nil, false
	}
	return e, true
}

// QueryCriteria builds the criteria of a list request: every query key but
// page, size and sort is an equality filter; sort takes comma separated
// fields, "-" prefixed for descending order.
func QueryCriteria(query map[string][]string) *criteria.Criteria {
	filters := make(map[string]any)
	for key, values := range query {
		switch key {
		case "page", "size", "sort":
			continue
		}
		if len(values) > 0 {
			filters[key] = values[len(values)-1]
		}
	}

	c := criteria.FromMapping(filters)
	if sorts, ok := query["sort"]; ok && len(sorts) > 0 {
		for _, field := range strings.Split(sorts[len(sorts)-1], ",") {
			field = strings.TrimSpace(field)
			switch {
			case field == "" || field == "-":
			case strings.HasPrefix(field, "-"):
				c = c.OrderBy(field[1:], criteria.Desc)
			default:
				c = c.OrderBy(field, criteria.Asc)
			}
		}
	}
	return c
}
