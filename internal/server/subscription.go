package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/portal/internal/audit/domain"
	subscriptiondomain "github.com/smallbiznis/portal/internal/subscription/domain"
	"github.com/smallbiznis/portal/pkg/db/pagination"
)

func (s *Server) CreateSubscription(c *gin.Context) {
	var req subscriptiondomain.CreateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.ClientID = strings.TrimSpace(req.ClientID)
	req.Name = strings.TrimSpace(req.Name)
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))

	resp, err := s.subscriptionSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.recordAudit(c, auditdomain.Entry{
		Action:     auditdomain.ActionSubscriptionCreated,
		TargetType: "subscription",
		TargetID:   resp.ID,
		Metadata:   map[string]any{"clientId": resp.ClientID, "interval": string(resp.Interval)},
	})

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListSubscriptions(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Status   string `form:"status"`
		ClientID string `form:"client_id"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.subscriptionSvc.List(c.Request.Context(), subscriptiondomain.ListSubscriptionRequest{
		Status:    strings.TrimSpace(query.Status),
		ClientID:  strings.TrimSpace(query.ClientID),
		PageToken: query.PageToken,
		PageSize:  int32(query.PageSize),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Subscriptions, "page_info": resp.PageInfo})
}

func (s *Server) GetSubscriptionByID(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	item, err := s.subscriptionSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) PauseSubscription(c *gin.Context) {
	s.transitionSubscription(c, s.subscriptionSvc.Pause, auditdomain.ActionSubscriptionPaused)
}

func (s *Server) ResumeSubscription(c *gin.Context) {
	s.transitionSubscription(c, s.subscriptionSvc.Resume, auditdomain.ActionSubscriptionResumed)
}

func (s *Server) CancelSubscription(c *gin.Context) {
	s.transitionSubscription(c, s.subscriptionSvc.Cancel, auditdomain.ActionSubscriptionCancelled)
}

type subscriptionTransition func(ctx context.Context, id string) (*subscriptiondomain.Subscription, error)

func (s *Server) transitionSubscription(c *gin.Context, transition subscriptionTransition, action string) {
	id := strings.TrimSpace(c.Param("id"))
	item, err := transition(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, auditdomain.Entry{
		Action:     action,
		TargetType: "subscription",
		TargetID:   item.ID,
		Metadata:   map[string]any{"status": string(item.Status)},
	})
	c.JSON(http.StatusOK, gin.H{"data": item})
}
