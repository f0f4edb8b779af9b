package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ksred/plansmart/internal/services"
	"github.com/ksred/plansmart/internal/utils"
)

// CreateTaskRequest accepts the description under either key
type CreateTaskRequest struct {
	Description string   `json:"description" example:"Finish the quarterly report"`
	Title       string   `json:"title,omitempty"`
	Schedule    string   `json:"schedule,omitempty" example:"Sprint Planning"`
	DueDate     string   `json:"due_date,omitempty" example:"2025-03-10T17:00:00"`
	Tags        []string `json:"tags,omitempty"`
}

// ListResponse wraps a list with its length
type ListResponse struct {
	Items interface{} `json:"items"`
	Count int         `json:"count"`
}

// parseTime reads a timestamp; zone-less values are in the assistant's zone
func (s *Server) parseTime(field, value string) (time.Time, error) {
	t, err := services.ParseTimestamp(value, s.svc.Assistant.Location())
	if err != nil {
		return time.Time{}, utils.InvalidFieldError(field, fmt.Sprintf("cannot parse %q as a time", value))
	}
	return t, nil
}

func (s *Server) optionalTime(field, value string) (*time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	t, err := s.parseTime(field, value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// listTasksHandler godoc
// @Summary List tasks
// @Description List the user's tasks, optionally filtered by completion
// @Tags tasks
// @Produce json
// @Security BearerAuth
// @Param completed query bool false "Filter by completion"
// @Success 200 {object} ListResponse
// @Failure 400 {object} ErrorResponse
// @Router /tasks [get]
func (s *Server) listTasksHandler(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var completed *bool
	if raw := c.Query("completed"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(c, "completed must be true or false")
			return
		}
		completed = &v
	}

	tasks, err := s.svc.Tasks.List(c.Request.Context(), user.ID, completed)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ListResponse{Items: tasks, Count: len(tasks)})
}

// createTaskHandler godoc
// @Summary Create task
// @Tags tasks
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateTaskRequest true "Task"
// @Success 201 {object} models.Task
// @Failure 400 {object} ErrorResponse
// @Router /tasks [post]
func (s *Server) createTaskHandler(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.Description == "" {
		req.Description = req.Title
	}

	due, err := s.optionalTime("due_date", req.DueDate)
	if err != nil {
		s.respondError(c, err)
		return
	}

	task, err := s.svc.Tasks.Create(c.Request.Context(), user.ID, services.CreateTaskInput{
		Description: req.Description,
		Schedule:    req.Schedule,
		DueDate:     due,
		Tags:        req.Tags,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

// markTaskDoneHandler godoc
// @Summary Complete task
// @Description Mark a task done and cancel its pending reminder
// @Tags tasks
// @Produce json
// @Security BearerAuth
// @Param id path int true "Task ID"
// @Success 200 {object} models.Task
// @Failure 404 {object} ErrorResponse
// @Router /tasks/{id}/done [put]
func (s *Server) markTaskDoneHandler(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	task, err := s.svc.Tasks.MarkDone(c.Request.Context(), user.ID, id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}
