package mcp

import (
	"encoding/json"
)

// ToolResponse is the JSON body every tool returns
type ToolResponse struct {
	Success bool          `json:"success"`
	Message string        `json:"message,omitempty"`
	Data    interface{}   `json:"data,omitempty"`
	Error   string        `json:"error,omitempty"`
	Meta    *ResponseMeta `json:"meta,omitempty"`
}

// ResponseMeta carries list metadata
type ResponseMeta struct {
	Count int    `json:"count"`
	Mode  string `json:"mode,omitempty"`
}

// NewSuccessResponse creates a successful tool response
func NewSuccessResponse(message string, data interface{}) *ToolResponse {
	return &ToolResponse{
		Success: true,
		Message: message,
		Data:    data,
	}
}

// NewErrorResponse creates a failed tool response
func NewErrorResponse(error string) *ToolResponse {
	return &ToolResponse{
		Success: false,
		Error:   error,
	}
}

// WithCount attaches a result count
func (r *ToolResponse) WithCount(n int) *ToolResponse {
	if r.Meta == nil {
		r.Meta = &ResponseMeta{}
	}
	r.Meta.Count = n
	return r
}

// ToJSON converts the response to JSON
func (r *ToolResponse) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

type ProcessInputRequest struct {
	Text string `json:"text"`
}

type CreateTaskRequest struct {
	Description string   `json:"description"`
	Schedule    string   `json:"schedule,omitempty"`
	DueDate     string   `json:"due_date,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

type ListTasksRequest struct {
	Completed *bool `json:"completed,omitempty"`
}

type CompleteTaskRequest struct {
	ID uint `json:"id"`
}

type CreateScheduleRequest struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time,omitempty"`
}

// ListSchedulesRequest lists every schedule, or one day's when Date is set
type ListSchedulesRequest struct {
	Date string `json:"date,omitempty"`
}

// ScheduleReminderRequest needs a description for a new task, or the id of
// an existing one
type ScheduleReminderRequest struct {
	Description string `json:"description,omitempty"`
	TaskID      uint   `json:"task_id,omitempty"`
	Time        string `json:"time"`
}

type CancelReminderRequest struct {
	ID uint `json:"id"`
}
