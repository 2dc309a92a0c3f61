package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"hirejudge/internal/question/service"
	pkgerrors "hirejudge/pkg/errors"
	"hirejudge/pkg/testutil"
	"hirejudge/pkg/utils/contextkey"
	"hirejudge/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

type stubReader struct {
	view *service.AccessibleQuestions
	err  error
}

func (s stubReader) GetAccessibleQuestions(_ context.Context, interviewID, candidateID int64) (*service.AccessibleQuestions, error) {
	return s.view, s.err
}

func get(t *testing.T, reader QuestionReader, path string) (*httptest.ResponseRecorder, response.Response) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(string(contextkey.UserID), int64(42))
		c.Next()
	})
	r.GET("/interviews/:id/questions", NewQuestionController(reader).List)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	var resp response.Response
	testutil.MustUnmarshalJSON(t, w.Body.Bytes(), &resp)
	return w, resp
}

func TestListQuestions(t *testing.T) {
	view := &service.AccessibleQuestions{
		InterviewID:          5,
		Questions:            []service.QuestionView{{ID: 1, Title: "Two Sum"}},
		CurrentQuestionIndex: 0,
		TotalQuestions:       2,
	}
	w, resp := get(t, stubReader{view: view}, "/interviews/5/questions")
	testutil.AssertEqual(t, w.Code, http.StatusOK)
	raw, _ := json.Marshal(resp.Data)
	var got service.AccessibleQuestions
	testutil.MustUnmarshalJSON(t, raw, &got)
	testutil.AssertEqual(t, got.TotalQuestions, 2)
	testutil.AssertEqual(t, len(got.Questions), 1)
	testutil.AssertEqual(t, got.Questions[0].Title, "Two Sum")
}

func TestListQuestionsErrors(t *testing.T) {
	w, _ := get(t, stubReader{}, "/interviews/zero/questions")
	testutil.AssertEqual(t, w.Code, http.StatusBadRequest)

	w, resp := get(t, stubReader{err: pkgerrors.New(pkgerrors.InterviewAccessDenied)}, "/interviews/5/questions")
	testutil.AssertEqual(t, w.Code, http.StatusForbidden)
	testutil.AssertEqual(t, resp.Code, pkgerrors.InterviewAccessDenied)
}
