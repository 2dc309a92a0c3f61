package controller

import (
	"context"
	"strconv"

	commonmw "hirejudge/internal/common/http/middleware"
	"hirejudge/internal/submission/service"
	"hirejudge/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// Submitter grades and lists candidate submissions.
type Submitter interface {
	Submit(ctx context.Context, input service.SubmitInput) (*service.SubmitResult, error)
	ListSubmissions(ctx context.Context, interviewID, candidateID int64) ([]service.SubmissionView, error)
}

// SubmissionController handles code submission endpoints.
type SubmissionController struct {
	submitService Submitter
}

func NewSubmissionController(submitService Submitter) *SubmissionController {
	return &SubmissionController{submitService: submitService}
}

// Submit grades code for one question of the caller's interview.
func (h *SubmissionController) Submit(c *gin.Context) {
	interviewID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || interviewID <= 0 {
		response.BadRequest(c, "Invalid interview id")
		return
	}
	questionID, err := strconv.ParseInt(c.Param("questionId"), 10, 64)
	if err != nil || questionID <= 0 {
		response.BadRequest(c, "Invalid question id")
		return
	}
	candidateID, ok := commonmw.CurrentUserID(c)
	if !ok {
		response.BadRequest(c, "Missing caller identity")
		return
	}
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}

	result, err := h.submitService.Submit(c.Request.Context(), service.SubmitInput{
		InterviewID: interviewID,
		QuestionID:  questionID,
		CandidateID: candidateID,
		Code:        req.Code,
		Language:    req.Language,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// List returns the caller's latest attempt per question.
func (h *SubmissionController) List(c *gin.Context) {
	interviewID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || interviewID <= 0 {
		response.BadRequest(c, "Invalid interview id")
		return
	}
	candidateID, ok := commonmw.CurrentUserID(c)
	if !ok {
		response.BadRequest(c, "Missing caller identity")
		return
	}
	items, err := h.submitService.ListSubmissions(c.Request.Context(), interviewID, candidateID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, SubmissionListResponse{Items: items})
}

// SubmitRequest defines the submit payload.
type SubmitRequest struct {
	Code     string `json:"code" binding:"required"`
	Language string `json:"language" binding:"required"`
}

// SubmissionListResponse wraps the caller's submissions.
type SubmissionListResponse struct {
	Items []service.SubmissionView `json:"items"`
}
