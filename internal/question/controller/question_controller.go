package controller

import (
	"context"
	"strconv"

	commonmw "hirejudge/internal/common/http/middleware"
	"hirejudge/internal/question/service"
	"hirejudge/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// QuestionReader resolves the questions a candidate may see.
type QuestionReader interface {
	GetAccessibleQuestions(ctx context.Context, interviewID, candidateID int64) (*service.AccessibleQuestions, error)
}

// QuestionController serves the candidate's progressive question view.
type QuestionController struct {
	access QuestionReader
}

func NewQuestionController(access QuestionReader) *QuestionController {
	return &QuestionController{access: access}
}

// List returns the questions unlocked so far for the caller's interview.
func (h *QuestionController) List(c *gin.Context) {
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
	view, err := h.access.GetAccessibleQuestions(c.Request.Context(), interviewID, candidateID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, view)
}
