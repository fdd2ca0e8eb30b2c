package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/hrygo/mindmesh/ai/processor"
	"github.com/hrygo/mindmesh/store"
)

const defaultLogLimit = 50

// ProcessorRun triggers one processing pass. A run already in flight answers
// 202 instead of spawning a parallel run.
func (s *Service) ProcessorRun(c echo.Context) error {
	result, err := s.Processor.Run(c.Request().Context())
	if err != nil {
		if errors.Is(err, processor.ErrRunInFlight) {
			return c.JSON(http.StatusAccepted, map[string]any{
				"status": "run already in progress",
			})
		}
		return respondError(c, err)
	}
	noStore(c)
	return c.JSON(http.StatusOK, result)
}

// ProcessorPending lists the conversations the next run would pick up.
func (s *Service) ProcessorPending(c echo.Context) error {
	pending, err := s.Processor.ListPending(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"count":         len(pending),
		"conversations": pending,
	})
}

// ProcessorLogs returns recent processing-log rows, newest first.
func (s *Service) ProcessorLogs(c echo.Context) error {
	limit := queryLimit(c, defaultLogLimit)
	logs, err := s.Store.ListProcessingLogs(c.Request().Context(), &store.FindProcessingLogs{Limit: limit})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"logs": logs})
}

// ProcessorStats aggregates processor history.
func (s *Service) ProcessorStats(c echo.Context) error {
	stats, err := s.Store.ProcessorStats(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}
