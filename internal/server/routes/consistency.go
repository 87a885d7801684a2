package routes

import (
	"net/http"

	"github.com/graphora-ai/graphora/internal/queue"
	"github.com/graphora-ai/graphora/internal/server/middleware"
	"github.com/graphora-ai/graphora/internal/util"
	"github.com/graphora-ai/graphora/pkg/ecc"
	"github.com/graphora-ai/graphora/pkg/logger"

	"github.com/labstack/echo/v4"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// GetConsistencyStatusHandler reports the checker state for one graph.
func GetConsistencyStatusHandler(c echo.Context) error {
	type statusParams struct {
		GraphName string `param:"graphname" validate:"required"`
		Method    string `param:"method" validate:"required"`
	}

	type statusResponse struct {
		GraphName string `json:"graph_name"`
		Method    string `json:"method"`
		State     string `json:"state"`
		Status    string `json:"status,omitempty"`
		Message   string `json:"message,omitempty"`
	}

	params := new(statusParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, statusResponse{Message: "Invalid request"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, statusResponse{Message: "Invalid request"})
	}
	if params.Method != queue.MethodGraphRAG {
		return c.JSON(http.StatusNotFound, statusResponse{Message: "Method not found"})
	}

	checker, ok := ecc.Lookup(params.GraphName)
	if !ok {
		return c.JSON(http.StatusOK, statusResponse{
			GraphName: params.GraphName,
			Method:    params.Method,
			State:     "uninitialized",
			Message:   "Eventual consistency checker not initialized",
		})
	}

	return c.JSON(http.StatusOK, statusResponse{
		GraphName: checker.GraphName(),
		Method:    params.Method,
		State:     checker.State().String(),
		Status:    checker.Status(),
	})
}

// PostRunHandler publishes a run request for one graph and returns
// immediately; the worker picks it up from the run queue.
func PostRunHandler(c echo.Context) error {
	type runParams struct {
		GraphName string `param:"graphname" validate:"required"`
		Method    string `param:"method" validate:"required"`
	}

	type runResponse struct {
		Message       string `json:"message"`
		GraphName     string `json:"graph_name,omitempty"`
		CorrelationID string `json:"correlation_id,omitempty"`
	}

	params := new(runParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, runResponse{Message: "Invalid request"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, runResponse{Message: "Invalid request"})
	}
	if params.Method != queue.MethodGraphRAG {
		return c.JSON(http.StatusNotFound, runResponse{Message: "Method not found"})
	}

	correlationID, err := gonanoid.New()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, runResponse{Message: "Internal server error"})
	}

	request := queue.RunRequest{
		GraphName:     params.GraphName,
		Method:        params.Method,
		CorrelationID: correlationID,
	}

	ch := c.(*middleware.AppContext).App.Queue
	if err := queue.PublishFIFO(ch, queue.RunQueue, []byte(util.ConvertStructToJson(request))); err != nil {
		logger.Error("Failed to publish run request", "graph", params.GraphName, "err", err)
		return c.JSON(http.StatusInternalServerError, runResponse{Message: "Internal server error"})
	}

	return c.JSON(http.StatusAccepted, runResponse{
		Message:       "Run request accepted",
		GraphName:     params.GraphName,
		CorrelationID: correlationID,
	})
}
