package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/workflowd/pkg/events"
	"github.com/cuemby/workflowd/pkg/log"
	"github.com/cuemby/workflowd/pkg/manager"
	"github.com/cuemby/workflowd/pkg/storage"
	"github.com/cuemby/workflowd/pkg/types"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Commander runs manager commands
type Commander interface {
	Do(ctx context.Context, cmd manager.Command) (manager.Reply, error)
}

// Router exposes the manager command surface, executor reports, seeding of
// workflow entities and the executor event stream over HTTP.
//
//	GET  {base}/processes                     ps
//	POST {base}/processes                     create a process
//	POST {base}/processes/:id/queue           queue
//	POST {base}/processes/:id/running         is_running, query answer=YES|NO
//	POST {base}/processes/:id/completed       completed
//	POST {base}/processes/:id/failed          failed
//	POST {base}/processes/:id/parked          parked
//	POST {base}/processes/:id/messages        attach a message
//	PUT  {base}/processes/:id/properties/:name
//	POST {base}/routes                        create a route
//	POST {base}/contacts                      create a contact
//	POST {base}/queue/check                   checkqueue
//	POST {base}/engine/disable                disable
//	POST {base}/engine/enable                 enable
//	GET  {base}/engine/status                 stored engine status
//	GET  {base}/events                        server-sent events, query type=...
type Router struct {
	commander Commander
	store     storage.Store
	broker    *events.Broker
	basePath  string
	timeout   time.Duration
}

// NewRouter creates a router. basePath may be empty or start with '/'.
func NewRouter(commander Commander, store storage.Store, broker *events.Broker, basePath string) *Router {
	return &Router{
		commander: commander,
		store:     store,
		broker:    broker,
		basePath:  sanitizeBase(basePath),
		timeout:   30 * time.Second,
	}
}

// Handler returns the gin engine serving the routes
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery(), requestLogger(log.WithComponent("api")))
	group := g.Group(r.basePath)

	group.GET("/processes", r.command(manager.CommandPS))
	group.POST("/processes", r.handleCreateProcess)
	group.POST("/processes/:id/queue", r.command(manager.CommandQueue))
	group.POST("/processes/:id/running", r.handleRunning)
	group.POST("/processes/:id/completed", r.command(manager.CommandCompleted))
	group.POST("/processes/:id/failed", r.command(manager.CommandFailed))
	group.POST("/processes/:id/parked", r.command(manager.CommandParked))
	group.POST("/processes/:id/messages", r.handleCreateMessage)
	group.PUT("/processes/:id/properties/:name", r.handleSetProperty)
	group.POST("/routes", r.handleCreateRoute)
	group.POST("/contacts", r.handleCreateContact)
	group.POST("/queue/check", r.command(manager.CommandCheckQueue))
	group.POST("/engine/disable", r.command(manager.CommandDisable))
	group.POST("/engine/enable", r.command(manager.CommandEnable))
	group.GET("/engine/status", r.handleEngineStatus)
	if r.broker != nil {
		group.GET("/events", r.handleEvents)
	}
	return g
}

func sanitizeBase(bp string) string {
	bp = strings.TrimSpace(bp)
	if bp == "" || bp == "/" {
		return ""
	}
	if !strings.HasPrefix(bp, "/") {
		bp = "/" + bp
	}
	return strings.TrimRight(bp, "/")
}

func processID(c *gin.Context) (int64, bool) {
	raw := c.Param("id")
	if raw == "" {
		return 0, true
	}
	pid, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || pid <= 0 {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid process id: " + raw})
		return 0, false
	}
	return pid, true
}

func (r *Router) command(kind manager.CommandKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		pid, ok := processID(c)
		if !ok {
			return
		}
		r.do(c, manager.Command{Kind: kind, ProcessID: pid, Source: c.ClientIP()})
	}
}

func (r *Router) handleRunning(c *gin.Context) {
	pid, ok := processID(c)
	if !ok {
		return
	}
	r.do(c, manager.Command{
		Kind:      manager.CommandIsRunning,
		ProcessID: pid,
		Running:   manager.ParseRunning(c.Query("answer")),
		Source:    c.ClientIP(),
	})
}

func (r *Router) do(c *gin.Context, cmd manager.Command) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), r.timeout)
	defer cancel()

	reply, err := r.commander.Do(ctx, cmd)
	if err != nil {
		status := http.StatusServiceUnavailable
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		c.JSON(status, errorResponse{Error: err.Error()})
		return
	}
	c.JSON(reply.Status, ReplyResponse{Status: reply.Status, Text: reply.Text, ProcessList: reply.Processes})
}

// seed runs fn in its own store transaction
func (r *Router) seed(c *gin.Context, fn func(tx storage.Tx) (int64, error)) {
	tx, err := r.store.Begin()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}
	id, err := fn(tx)
	if err != nil {
		_ = tx.Rollback()
		status := http.StatusInternalServerError
		if errors.Is(err, storage.ErrNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, errorResponse{Error: err.Error()})
		return
	}
	if err := tx.Commit(); err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusCreated, CreatedResponse{ID: id})
}

func (r *Router) handleCreateRoute(c *gin.Context) {
	var req RouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid JSON: " + err.Error()})
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "name required"})
		return
	}
	r.seed(c, func(tx storage.Tx) (int64, error) {
		route := &types.Route{Name: req.Name, IsSingleton: req.Singleton}
		if req.Group != "" {
			group := &types.RouteGroup{Name: req.Group}
			if err := tx.CreateRouteGroup(group); err != nil {
				return 0, err
			}
			route.RouteGroupID = group.ID
		}
		if err := tx.CreateRoute(route); err != nil {
			return 0, err
		}
		return route.ID, nil
	})
}

func (r *Router) handleCreateProcess(c *gin.Context) {
	var req ProcessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid JSON: " + err.Error()})
		return
	}
	r.seed(c, func(tx storage.Tx) (int64, error) {
		if req.RouteID != 0 {
			if _, err := tx.GetRoute(req.RouteID); err != nil {
				return 0, err
			}
		}
		process := &types.Process{
			OwnerID:  req.OwnerID,
			RouteID:  req.RouteID,
			ParentID: req.ParentID,
			Priority: req.Priority,
			State:    req.State,
		}
		if err := tx.CreateProcess(process); err != nil {
			return 0, err
		}
		return process.ID, nil
	})
}

func (r *Router) handleCreateContact(c *gin.Context) {
	var req ContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid JSON: " + err.Error()})
		return
	}
	r.seed(c, func(tx storage.Tx) (int64, error) {
		contact := &types.Contact{ID: req.ID, Login: req.Login}
		if err := tx.CreateContact(contact); err != nil {
			return 0, err
		}
		return contact.ID, nil
	})
}

func (r *Router) handleCreateMessage(c *gin.Context) {
	pid, ok := processID(c)
	if !ok {
		return
	}
	var req MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid JSON: " + err.Error()})
		return
	}
	if req.UUID == "" {
		req.UUID = uuid.NewString()
	}
	r.seed(c, func(tx storage.Tx) (int64, error) {
		if _, err := tx.GetProcess(pid); err != nil {
			return 0, err
		}
		message := &types.Message{UUID: req.UUID, ProcessID: pid, Label: req.Label, Size: req.Size}
		if err := tx.CreateMessage(message); err != nil {
			return 0, err
		}
		return pid, nil
	})
}

func (r *Router) handleSetProperty(c *gin.Context) {
	pid, ok := processID(c)
	if !ok {
		return
	}
	var req PropertyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid JSON: " + err.Error()})
		return
	}
	name := c.Param("name")
	r.seed(c, func(tx storage.Tx) (int64, error) {
		if _, err := tx.GetProcess(pid); err != nil {
			return 0, err
		}
		if req.Value == "" {
			return pid, tx.DeleteProperty(pid, manager.PropertyNamespace, name)
		}
		return pid, tx.SetProperty(pid, manager.PropertyNamespace, name, req.Value)
	})
}

func (r *Router) handleEngineStatus(c *gin.Context) {
	var status types.EngineStatus
	var found bool
	err := r.store.View(func(rd storage.Reader) error {
		var err error
		status, found, err = manager.ReadEngineStatus(rd)
		return err
	})
	switch {
	case err != nil:
		c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	case !found:
		c.JSON(http.StatusNotFound, errorResponse{Error: "engine status not yet published"})
	default:
		c.JSON(http.StatusOK, status)
	}
}

// handleEvents streams broker events to an executor until the client goes away
func (r *Router) handleEvents(c *gin.Context) {
	var wanted []events.EventType
	for _, t := range c.QueryArray("type") {
		wanted = append(wanted, events.EventType(t))
	}

	sub := r.broker.Subscribe(wanted...)
	defer r.broker.Unsubscribe(sub)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-sub:
			if !ok {
				return false
			}
			c.SSEvent(string(event.Type), event)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
