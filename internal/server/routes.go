package server

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/researchdesk/internal/models"
	"github.com/zulandar/researchdesk/internal/notify"
	"github.com/zulandar/researchdesk/internal/research"
	"github.com/zulandar/researchdesk/internal/todo"
	"gorm.io/gorm"
)

// registerRoutes sets up all API routes on the Gin router.
func registerRoutes(router *gin.Engine, db *gorm.DB, notifier notify.Notifier) {
	api := router.Group("/api")

	api.GET("/todos", handleListTodos(db))
	api.POST("/todos", handleCreateTodo(db))
	api.GET("/todos/counts", handleStatusCounts(db))
	api.GET("/todos/:id", handleGetTodo(db))
	api.PATCH("/todos/:id", handleUpdateTodo(db))
	api.DELETE("/todos/:id", handleDeleteTodo(db))

	api.POST("/todos/:id/research", handleStartResearch(db))
	api.GET("/todos/:id/research/progress", handleGetProgress(db))
	api.PUT("/todos/:id/research/progress", handleUpdateProgress(db))
	api.POST("/todos/:id/research/complete", handleCompleteResearch(db, notifier))
	api.POST("/todos/:id/research/cancel", handleCancelResearch(db))
	api.GET("/todos/:id/research/results", handleListResults(db))
	api.GET("/todos/:id/research/events", handleResearchEvents(db))
}

// writeError maps repository errors onto HTTP statuses. Validation
// failures are the caller's fault; everything else is ours.
func writeError(c *gin.Context, err error) {
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

type createTodoRequest struct {
	Title            string `json:"title"`
	Description      string `json:"description"`
	URL              string `json:"url"`
	Priority         *int   `json:"priority"`
	PreferredService string `json:"preferred_service"`
}

func handleCreateTodo(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createTodoRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		opts := todo.CreateOpts{
			Title:            req.Title,
			Description:      req.Description,
			URL:              req.URL,
			PreferredService: req.PreferredService,
		}
		if req.Priority != nil {
			p, err := models.ParsePriorityStrict(*req.Priority)
			if err != nil {
				writeError(c, err)
				return
			}
			opts.Priority = &p
		}

		td, err := todo.Create(db, opts)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, td)
	}
}

func handleListTodos(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var filter todo.Filter
		if s := c.Query("status"); s != "" {
			status, err := models.ParseTodoStatusStrict(s)
			if err != nil {
				writeError(c, err)
				return
			}
			filter.Status = &status
		}
		if p := c.Query("priority"); p != "" {
			priority, err := models.ParsePriorityNameStrict(p)
			if err != nil {
				writeError(c, err)
				return
			}
			filter.Priority = &priority
		}
		filter.Search = c.Query("search")
		var paging struct {
			Limit  int `form:"limit"`
			Offset int `form:"offset"`
		}
		if err := c.ShouldBindQuery(&paging); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit/offset"})
			return
		}
		filter.Limit = paging.Limit
		filter.Offset = paging.Offset

		todos, err := todo.List(db, filter)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"todos": todos, "count": len(todos)})
	}
}

func handleStatusCounts(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		counts, err := todo.CountByStatus(db)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, counts)
	}
}

func handleGetTodo(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		detail, err := todo.WithResearch(db, c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		if detail == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "todo not found"})
			return
		}
		c.JSON(http.StatusOK, detail)
	}
}

type updateTodoRequest struct {
	Title            *string    `json:"title"`
	Description      *string    `json:"description"`
	URL              *string    `json:"url"`
	Status           *string    `json:"status"`
	Priority         *int       `json:"priority"`
	PreferredService *string    `json:"preferred_service"`
	CompletedAt      *time.Time `json:"completed_at"`
}

func handleUpdateTodo(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req updateTodoRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		opts := todo.UpdateOpts{
			Title:            req.Title,
			Description:      req.Description,
			URL:              req.URL,
			PreferredService: req.PreferredService,
			CompletedAt:      req.CompletedAt,
		}
		if req.Status != nil {
			status, err := models.ParseTodoStatusStrict(*req.Status)
			if err != nil {
				writeError(c, err)
				return
			}
			opts.Status = &status
		}
		if req.Priority != nil {
			p, err := models.ParsePriorityStrict(*req.Priority)
			if err != nil {
				writeError(c, err)
				return
			}
			opts.Priority = &p
		}

		td, err := todo.Update(db, c.Param("id"), opts)
		if err != nil {
			writeError(c, err)
			return
		}
		if td == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "todo not found"})
			return
		}
		c.JSON(http.StatusOK, td)
	}
}

func handleDeleteTodo(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		deleted, err := todo.Delete(db, c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		if !deleted {
			c.JSON(http.StatusNotFound, gin.H{"error": "todo not found"})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

type startResearchRequest struct {
	Service string `json:"service"`
	Prompt  string `json:"prompt"`
}

func handleStartResearch(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req startResearchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		progress, err := research.Start(db, research.OpenOpts{
			TodoID:  c.Param("id"),
			Service: req.Service,
			Prompt:  req.Prompt,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		if progress == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "todo not found"})
			return
		}
		c.JSON(http.StatusCreated, progress)
	}
}

func handleGetProgress(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		service := c.Query("service")
		if service == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "service query parameter is required"})
			return
		}
		progress, err := research.Progress(db, c.Param("id"), service)
		if err != nil {
			writeError(c, err)
			return
		}
		if progress == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no active research for todo/service"})
			return
		}
		c.JSON(http.StatusOK, progress)
	}
}

type updateProgressRequest struct {
	Service            string `json:"service"`
	Stage              string `json:"stage"`
	ProgressPercentage int    `json:"progress_percentage"`
	CurrentStep        string `json:"current_step"`
	EstimatedRemaining *int   `json:"estimated_remaining"`
}

func handleUpdateProgress(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req updateProgressRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		stage := models.StageSearching
		if req.Stage != "" {
			var err error
			stage, err = models.ParseStageStrict(req.Stage)
			if err != nil {
				writeError(c, err)
				return
			}
		}
		progress := &models.ResearchProgress{
			TodoID:             c.Param("id"),
			Service:            req.Service,
			Stage:              stage,
			ProgressPercentage: req.ProgressPercentage,
			CurrentStep:        req.CurrentStep,
			EstimatedRemaining: req.EstimatedRemaining,
		}
		err := research.UpdateProgress(db, progress)
		if errors.Is(err, research.ErrNoActiveRequest) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no active research for todo/service"})
			return
		}
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, progress)
	}
}

type completeResearchRequest struct {
	Service     string                   `json:"service"`
	Prompt      string                   `json:"prompt"`
	Content     string                   `json:"content"`
	RawHTML     string                   `json:"raw_html"`
	Metadata    *models.ResearchMetadata `json:"metadata"`
	StartedAt   time.Time                `json:"started_at"`
	CompletedAt time.Time                `json:"completed_at"`
	Status      string                   `json:"status"`
}

func handleCompleteResearch(db *gorm.DB, notifier notify.Notifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req completeResearchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		opts := research.CompleteOpts{
			Service:     req.Service,
			Prompt:      req.Prompt,
			Content:     req.Content,
			RawHTML:     req.RawHTML,
			Metadata:    req.Metadata,
			StartedAt:   req.StartedAt,
			CompletedAt: req.CompletedAt,
		}
		if req.Status != "" {
			status, err := models.ParseResultStatusStrict(req.Status)
			if err != nil {
				writeError(c, err)
				return
			}
			opts.Status = status
		}

		todoID := c.Param("id")
		result, err := research.Complete(db, todoID, opts)
		if err != nil {
			writeError(c, err)
			return
		}

		if notifier != nil {
			if td, err := todo.Get(db, todoID); err == nil && td != nil {
				if err := notifier.Notify(notify.Event{Todo: *td, Result: *result}); err != nil {
					log.Printf("server: notify: %v", err)
				}
			}
		}

		c.JSON(http.StatusCreated, result)
	}
}

func handleCancelResearch(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		td, err := research.Cancel(db, c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		if td == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "todo not found"})
			return
		}
		c.JSON(http.StatusOK, td)
	}
}

func handleListResults(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		results, err := research.Results(db, c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"results": results, "count": len(results)})
	}
}
