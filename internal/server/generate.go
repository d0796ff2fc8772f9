package server

import (
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/studyquota/internal/ai"
	"github.com/smallbiznis/studyquota/internal/observability/logger"
	quotadomain "github.com/smallbiznis/studyquota/internal/quota/domain"
	"go.uber.org/zap"
)

const minSummaryInputChars = 50

type chatRequest struct {
	Message string `json:"message"`
	History []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"history"`
}

type summarizeRequest struct {
	Input string `json:"input"`
}

type roadmapRequest struct {
	Title    string `json:"title"`
	Duration string `json:"duration"`
	Goal     string `json:"goal"`
}

type generateResponse struct {
	Result string    `json:"result"`
	Usage  usageView `json:"usage"`
}

func (s *Server) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		AbortWithError(c, newValidationError("message", "required", "message is required"))
		return
	}

	history := make([]ai.Turn, 0, len(req.History))
	for _, turn := range req.History {
		history = append(history, ai.Turn{Role: turn.Role, Content: turn.Content})
	}
	s.generate(c, quotadomain.FeatureDoubts, ai.DoubtRequest(req.Message, history))
}

func (s *Server) Summarize(c *gin.Context) {
	var req summarizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	input := strings.TrimSpace(req.Input)
	if input == "" {
		AbortWithError(c, newValidationError("input", "required", "input is required"))
		return
	}
	if utf8.RuneCountInString(input) < minSummaryInputChars {
		AbortWithError(c, newValidationError("input", "too_short", "provide at least 50 characters for a meaningful summary"))
		return
	}

	s.generate(c, quotadomain.FeatureSummaries, ai.SummaryRequest(input))
}

func (s *Server) Roadmap(c *gin.Context) {
	var req roadmapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		AbortWithError(c, newValidationError("title", "required", "title is required"))
		return
	}

	s.generate(c, quotadomain.FeatureRoadmaps, ai.RoadmapRequest(req.Title, req.Duration, req.Goal))
}

// generate consumes quota first and only then calls the generator. A failed
// generation does not refund the consumed unit.
func (s *Server) generate(c *gin.Context, feature string, req ai.Request) {
	res, ok := s.consume(c, feature)
	if !ok {
		return
	}

	text, err := s.generator.Generate(c.Request.Context(), req)
	if err != nil {
		logger.WithContext(c.Request.Context(), s.log).Warn("generation failed after quota was consumed",
			zap.String("feature", feature),
			zap.Error(err),
		)
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, generateResponse{Result: text, Usage: newUsageView(res)})
}
