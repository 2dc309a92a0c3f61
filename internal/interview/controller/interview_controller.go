package controller

import (
	"context"
	"strconv"

	commonmw "hirejudge/internal/common/http/middleware"
	"hirejudge/internal/interview/model"
	"hirejudge/internal/interview/service"
	"hirejudge/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// Assigner schedules candidate batches.
type Assigner interface {
	AssignBulk(ctx context.Context, input service.BulkAssignInput) (*service.BulkAssignResult, error)
}

// Lifecycle moves single interviews through their states.
type Lifecycle interface {
	Start(ctx context.Context, interviewID, candidateID int64) (*service.StatusView, error)
	Complete(ctx context.Context, interviewID, candidateID int64) (*service.StatusView, error)
	Cancel(ctx context.Context, interviewID, recruiterID int64) (*service.StatusView, error)
	ReassignQuestions(ctx context.Context, interviewID, recruiterID int64) (*service.ReassignView, error)
}

// InterviewController handles scheduling and lifecycle endpoints.
type InterviewController struct {
	assignments Assigner
	lifecycle   Lifecycle
}

func NewInterviewController(assignments Assigner, lifecycle Lifecycle) *InterviewController {
	return &InterviewController{assignments: assignments, lifecycle: lifecycle}
}

// BulkAssign schedules a batch of candidates for one job.
func (h *InterviewController) BulkAssign(c *gin.Context) {
	recruiterID, ok := commonmw.CurrentUserID(c)
	if !ok {
		response.BadRequest(c, "Missing caller identity")
		return
	}
	var req BulkAssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	candidates := make([]service.CandidateInput, 0, len(req.Candidates))
	for _, cand := range req.Candidates {
		candidates = append(candidates, service.CandidateInput{
			Email:             cand.Email,
			Name:              cand.Name,
			Phone:             cand.Phone,
			ResumeURL:         cand.ResumeURL,
			YearsOfExperience: cand.YearsOfExperience,
		})
	}
	result, err := h.assignments.AssignBulk(c.Request.Context(), service.BulkAssignInput{
		RecruiterID:     recruiterID,
		JobID:           req.JobID,
		Candidates:      candidates,
		NumberOfDays:    req.NumberOfDays,
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
		InterviewType:   model.Type(req.InterviewType),
		DurationMinutes: req.DurationMinutes,
		Mode:            model.Mode(req.Mode),
		Notes:           req.Notes,
		StartDate:       req.StartDate,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// Start opens the caller's interview.
func (h *InterviewController) Start(c *gin.Context) {
	interviewID, userID, ok := pathAndCaller(c)
	if !ok {
		return
	}
	view, err := h.lifecycle.Start(c.Request.Context(), interviewID, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, view)
}

// Complete closes the caller's interview.
func (h *InterviewController) Complete(c *gin.Context) {
	interviewID, userID, ok := pathAndCaller(c)
	if !ok {
		return
	}
	view, err := h.lifecycle.Complete(c.Request.Context(), interviewID, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, view)
}

// Cancel withdraws an interview of the recruiter's organization.
func (h *InterviewController) Cancel(c *gin.Context) {
	interviewID, userID, ok := pathAndCaller(c)
	if !ok {
		return
	}
	view, err := h.lifecycle.Cancel(c.Request.Context(), interviewID, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, view)
}

// AssignQuestions retries question selection for a coding interview.
func (h *InterviewController) AssignQuestions(c *gin.Context) {
	interviewID, userID, ok := pathAndCaller(c)
	if !ok {
		return
	}
	view, err := h.lifecycle.ReassignQuestions(c.Request.Context(), interviewID, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, view)
}

func pathAndCaller(c *gin.Context) (int64, int64, bool) {
	interviewID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || interviewID <= 0 {
		response.BadRequest(c, "Invalid interview id")
		return 0, 0, false
	}
	userID, ok := commonmw.CurrentUserID(c)
	if !ok {
		response.BadRequest(c, "Missing caller identity")
		return 0, 0, false
	}
	return interviewID, userID, true
}

// CandidateRequest is one candidate of a bulk assignment.
type CandidateRequest struct {
	Email             string `json:"email"`
	Name              string `json:"name"`
	Phone             string `json:"phone"`
	ResumeURL         string `json:"resumeUrl"`
	YearsOfExperience int    `json:"yearsOfExperience"`
}

// BulkAssignRequest defines the bulk assignment payload.
type BulkAssignRequest struct {
	JobID           int64              `json:"jobId" binding:"required"`
	Candidates      []CandidateRequest `json:"candidates"`
	NumberOfDays    int                `json:"numberOfDays" binding:"required"`
	StartTime       string             `json:"startTime" binding:"required"`
	EndTime         string             `json:"endTime" binding:"required"`
	InterviewType   string             `json:"interviewType" binding:"required"`
	DurationMinutes int                `json:"durationMinutes" binding:"required"`
	Mode            string             `json:"mode"`
	Notes           string             `json:"notes"`
	StartDate       string             `json:"startDate"`
}
