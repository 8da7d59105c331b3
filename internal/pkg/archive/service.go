package archive

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/vreid/wager/internal/pkg/common"
)

func (s *ArchiveService) Routes(e *echo.Echo) {
	apiGroup := e.Group("/api")

	archiveGroup := apiGroup.Group("/archive")

	archiveGroup.GET("/events", s.GetEvents)
	archiveGroup.GET("/matches/:handle", s.GetMatch)
}

func (s *ArchiveService) GetEvents(c echo.Context) error {
	var (
		after uint64
		limit = DefaultLimit
		err   error
	)

	if raw := c.QueryParam("after"); raw != "" {
		after, err = strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid after")
		}
	}

	if raw := c.QueryParam("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
	}

	records, err := ListEvents(s.DatabaseService.DB, after, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read events")
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, records)
}

func (s *ArchiveService) GetMatch(c echo.Context) error {
	handle, err := common.ParseAddress(c.Param("handle"))
	if err != nil {
		return common.HTTPError(err)
	}

	var created uint64

	if raw := c.QueryParam("created"); raw != "" {
		created, err = strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid created")
		}
	}

	history, err := Match(s.DatabaseService.DB, handle, created)
	if err != nil {
		return common.HTTPError(err)
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, history)
}
