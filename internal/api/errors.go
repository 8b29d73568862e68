package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Rahwulkumar/trading-journal/internal/quote"
	"github.com/Rahwulkumar/trading-journal/internal/store/sqlite"
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusOf maps a ledger or quote error onto an HTTP status and error code.
func statusOf(err error) (int, string) {
	switch quote.Kind(err) {
	case "not_configured":
		return http.StatusServiceUnavailable, "quote_not_configured"
	case "unavailable":
		return http.StatusBadRequest, "price_unavailable"
	case "upstream", "transport", "decode":
		return http.StatusBadGateway, "quote_" + quote.Kind(err)
	}
	switch {
	case errors.Is(err, sqlite.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, sqlite.ErrConflict):
		return http.StatusBadRequest, "conflict"
	case errors.Is(err, sqlite.ErrInvalid):
		return http.StatusBadRequest, "validation_error"
	}
	return http.StatusInternalServerError, "internal_server_error"
}

// fail renders err. Internal errors are logged and their detail withheld.
func (s *Server) fail(c *gin.Context, where string, err error) {
	status, code := statusOf(err)
	if status == http.StatusInternalServerError {
		s.log.Error("internal_error", "where", where, "err", err)
		c.JSON(status, apiError{Code: code, Message: "internal server error"})
		return
	}
	c.JSON(status, apiError{Code: code, Message: err.Error()})
}

func (s *Server) badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, apiError{Code: "bad_request", Message: msg})
}

func (s *Server) invalid(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, apiError{Code: "validation_error", Message: err.Error()})
}
