package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Rahwulkumar/trading-journal/internal/model"
	"github.com/Rahwulkumar/trading-journal/internal/portfolio"
)

func (s *Server) listAccounts(c *gin.Context) {
	accounts, err := s.Ledger.ListAccounts(c.Request.Context())
	if err != nil {
		s.fail(c, "list accounts", err)
		return
	}
	c.JSON(http.StatusOK, accounts)
}

func (s *Server) createAccount(c *gin.Context) {
	var a model.Account
	if err := c.ShouldBindJSON(&a); err != nil {
		s.invalid(c, err)
		return
	}
	a.AccountName = strings.TrimSpace(a.AccountName)
	a, err := s.Ledger.CreateAccount(c.Request.Context(), a)
	if err != nil {
		s.fail(c, "create account", err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (s *Server) deleteAccount(c *gin.Context) {
	if err := s.Ledger.DeleteAccount(c.Request.Context(), c.Param("name")); err != nil {
		s.fail(c, "delete account", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Account deleted"})
}

func (s *Server) createStrategy(c *gin.Context) {
	var st model.Strategy
	if err := c.ShouldBindJSON(&st); err != nil {
		s.invalid(c, err)
		return
	}
	st, err := s.Ledger.CreateStrategy(c.Request.Context(), st)
	if err != nil {
		s.fail(c, "create strategy", err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) listStrategies(c *gin.Context) {
	list, err := s.Ledger.ListStrategies(c.Request.Context())
	if err != nil {
		s.fail(c, "list strategies", err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) updateStrategy(c *gin.Context) {
	id, ok := s.idParam(c)
	if !ok {
		return
	}
	var st model.Strategy
	if err := c.ShouldBindJSON(&st); err != nil {
		s.invalid(c, err)
		return
	}
	st, err := s.Ledger.UpdateStrategy(c.Request.Context(), id, st)
	if err != nil {
		s.fail(c, "update strategy", err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) deleteStrategy(c *gin.Context) {
	id, ok := s.idParam(c)
	if !ok {
		return
	}
	if err := s.Ledger.DeleteStrategy(c.Request.Context(), id); err != nil {
		s.fail(c, "delete strategy", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Strategy deleted"})
}

func (s *Server) createNote(c *gin.Context) {
	var n model.Note
	if err := c.ShouldBindJSON(&n); err != nil {
		s.invalid(c, err)
		return
	}
	n, err := s.Ledger.CreateNote(c.Request.Context(), n)
	if err != nil {
		s.fail(c, "create note", err)
		return
	}
	c.JSON(http.StatusOK, n)
}

func (s *Server) listNotes(c *gin.Context) {
	notes, err := s.Ledger.ListNotes(c.Request.Context(), c.Query("date"))
	if err != nil {
		s.fail(c, "list notes", err)
		return
	}
	c.JSON(http.StatusOK, notes)
}

func (s *Server) deleteNote(c *gin.Context) {
	id, ok := s.idParam(c)
	if !ok {
		return
	}
	if err := s.Ledger.DeleteNote(c.Request.Context(), id); err != nil {
		s.fail(c, "delete note", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Note deleted"})
}

func (s *Server) createWeeklyBias(c *gin.Context) {
	var b model.WeeklyBias
	if err := c.ShouldBindJSON(&b); err != nil {
		s.invalid(c, err)
		return
	}
	b, err := s.Ledger.CreateWeeklyBias(c.Request.Context(), b)
	if err != nil {
		s.fail(c, "create weekly bias", err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (s *Server) listWeeklyBiases(c *gin.Context) {
	list, err := s.Ledger.ListWeeklyBiases(c.Request.Context())
	if err != nil {
		s.fail(c, "list weekly bias", err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) getWeeklyBias(c *gin.Context) {
	id, ok := s.idParam(c)
	if !ok {
		return
	}
	b, err := s.Ledger.GetWeeklyBias(c.Request.Context(), id)
	if err != nil {
		s.fail(c, "get weekly bias", err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (s *Server) deleteWeeklyBias(c *gin.Context) {
	id, ok := s.idParam(c)
	if !ok {
		return
	}
	if err := s.Ledger.DeleteWeeklyBias(c.Request.Context(), id); err != nil {
		s.fail(c, "delete weekly bias", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Weekly bias deleted"})
}

type summaryResponse struct {
	portfolio.Summary
	Drawdown *portfolio.DrawdownStatus `json:"drawdown,omitempty"`
}

func (s *Server) analyticsSummary(c *gin.Context) {
	ctx := c.Request.Context()
	account := c.Query("account")
	trades, err := s.Ledger.ListTrades(ctx, model.TradeFilter{Account: account})
	if err != nil {
		s.fail(c, "analytics summary", err)
		return
	}
	resp := summaryResponse{Summary: portfolio.Summarize(trades)}

	if account != "" {
		accounts, err := s.Ledger.ListAccounts(ctx)
		if err != nil {
			s.fail(c, "analytics summary", err)
			return
		}
		for _, a := range accounts {
			if a.AccountName != account {
				continue
			}
			days, err := s.Ledger.ListPerformance(ctx, account, "", "")
			if err != nil {
				s.fail(c, "analytics summary", err)
				return
			}
			dd := portfolio.Drawdown(a, days)
			resp.Drawdown = &dd
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) analyticsPerformance(c *gin.Context) {
	days, err := s.Ledger.ListPerformance(c.Request.Context(), c.Query("account"), c.Query("from"), c.Query("to"))
	if err != nil {
		s.fail(c, "analytics performance", err)
		return
	}
	c.JSON(http.StatusOK, days)
}
