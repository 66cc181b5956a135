package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jinford/doc-rag/internal/core/ask"
	"github.com/jinford/doc-rag/internal/core/job"
	"github.com/jinford/doc-rag/internal/core/search"
)

// queryRequest は /submit_query のリクエストボディ
type queryRequest struct {
	QueryText string `json:"query_text"`
	K         int    `json:"k" binding:"gte=0,lte=50"`
	Strategy  string `json:"strategy" binding:"omitempty,oneof=similarity mmr"`
}

// jobRequest は /jobs のリクエストボディ
type jobRequest struct {
	QueryText string `json:"query_text"`
}

type jobAccepted struct {
	QueryID string     `json:"query_id"`
	Status  job.Status `json:"status"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) submitQuery(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Detail: "Invalid request body"})
		return
	}

	result, err := s.asker.Ask(c.Request.Context(), ask.AskParams{
		Query:    req.QueryText,
		K:        req.K,
		Strategy: search.Strategy(req.Strategy),
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) submitJob(c *gin.Context) {
	var req jobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Detail: "Invalid request body"})
		return
	}

	submitted, err := s.jobs.Submit(c.Request.Context(), req.QueryText)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, jobAccepted{QueryID: submitted.QueryID, Status: submitted.Status})
}

func (s *Server) getJob(c *gin.Context) {
	found, err := s.jobs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	stored, ok := found.Get()
	if !ok {
		c.JSON(http.StatusNotFound, errorResponse{Detail: "job not found"})
		return
	}
	c.JSON(http.StatusOK, stored)
}

// writeError は検証エラーを400、それ以外を汎用メッセージの500として返す
// エラーの詳細はログにのみ出力する
func (s *Server) writeError(c *gin.Context, err error) {
	if errors.Is(err, ask.ErrValidation) {
		c.JSON(http.StatusBadRequest, errorResponse{Detail: ask.PublicMessage(err)})
		return
	}
	s.logger.Error("request failed", "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, errorResponse{Detail: ask.GenericErrorMessage})
}
