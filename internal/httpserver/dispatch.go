package httpserver

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/slipmail/slipmail/internal/binding"
	"github.com/slipmail/slipmail/internal/model"
)

type dispatchRequest struct {
	Bindings []model.Binding   `json:"bindings"`
	Subject  string            `json:"subject"`
	Body     string            `json:"body"`
	Cc       model.AddressList `json:"cc"`
}

type candidatesRequest struct {
	ArtifactID string          `json:"artifactId"`
	Bindings   []model.Binding `json:"bindings"`
}

func (s *Server) handleDispatch(c *gin.Context) {
	var req dispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON body: "+err.Error())
		return
	}
	if len(req.Bindings) == 0 {
		s.writeError(c, model.ErrEmptyBindingSet)
		return
	}
	if s.cfg.StrictBindings {
		if err := binding.Validate(req.Bindings); err != nil {
			s.writeError(c, err)
			return
		}
	}

	summary, err := s.deps.Dispatcher.Dispatch(c.Request.Context(), req.Bindings, model.MessageTemplate{
		Subject:    req.Subject,
		Body:       req.Body,
		CarbonCopy: req.Cc,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	counts := summary.Counts()
	c.JSON(http.StatusOK, gin.H{
		"runId":      summary.RunID,
		"generation": summary.Generation,
		"summary":    summary.Results,
		"counts":     counts,
		"message":    dispatchMessage(counts, len(summary.Results)),
	})
}

func dispatchMessage(c model.DispatchCounts, total int) string {
	if c.Sent == total {
		return fmt.Sprintf("All %d payslips sent.", total)
	}
	return fmt.Sprintf("%d of %d payslips sent, %d skipped, %d failed.", c.Sent, total, c.Skipped, c.Failed)
}

func (s *Server) handleValidateBindings(c *gin.Context) {
	var req struct {
		Bindings []model.Binding `json:"bindings"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON body: "+err.Error())
		return
	}
	if err := binding.Validate(req.Bindings); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true, "count": len(req.Bindings)})
}

// handleCandidates lists the directory entries that can still be bound to
// artifactId without repeating a recipient.
func (s *Server) handleCandidates(c *gin.Context) {
	var req candidatesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON body: "+err.Error())
		return
	}
	recipients, err := s.deps.Directory.ListRecipients(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"recipients": recipientsJSON(binding.Candidates(recipients, req.Bindings, req.ArtifactID)),
	})
}

func (s *Server) handleListDispatches(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			badRequest(c, "limit must be a positive integer")
			return
		}
		limit = n
	}
	runs, err := s.deps.History.ListDispatches(c.Request.Context(), limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dispatches": runs})
}

func (s *Server) handleGetDispatch(c *gin.Context) {
	run, err := s.deps.History.GetDispatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) handleVerifyMail(c *gin.Context) {
	if s.deps.Verifier == nil {
		s.writeError(c, fmt.Errorf("%w: no mail transport configured", model.ErrTransportMisconfigured))
		return
	}
	if err := s.deps.Verifier.Verify(c.Request.Context()); err != nil {
		status, kind := classify(err)
		if kind == kindInternal {
			status, kind = http.StatusBadGateway, kindTransport
		}
		c.JSON(status, gin.H{"error": kind, "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
