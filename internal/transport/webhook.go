package transport

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/replyforge/server/internal/admission"
	"github.com/replyforge/server/internal/agent/graph"
	"github.com/replyforge/server/internal/agent/model"
	errx "github.com/replyforge/server/internal/core/error"
	logx "github.com/replyforge/server/pkg/logger"
)

// KnowledgeIndexer is the slice of the vector index the HTTP surface needs.
type KnowledgeIndexer interface {
	Index(ctx context.Context, ownerID, kbID string, docs []model.KnowledgeDocument) error
	DeleteKnowledgeBase(ownerID, kbID string) error
}

// Server exposes the inbound webhook and the admin endpoints over HTTP.
type Server struct {
	Runner graph.Runner
	Gate   *admission.Gate
	Trials model.TrialRepository
	Agents model.AgentRepository
	Logs   model.ConversationLogRepository
	Index  KnowledgeIndexer
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/webhook/whatsapp", s.handleInbound())
	router.POST("/webhook/connected", s.handleConnected())

	router.POST("/agents", s.handleCreateAgent())
	router.POST("/agents/:id/publish", s.handlePublishAgent())
	router.DELETE("/agents/:id", s.handleDeleteAgent())

	router.GET("/conversations/:sender", s.handleListConversations())

	router.POST("/users/:id/connection", s.handleSetConnection())

	router.PUT("/knowledge/:owner/:kb", s.handleIndexKnowledge())
	router.DELETE("/knowledge/:owner/:kb", s.handleDeleteKnowledge())

	return router
}

// Start runs the HTTP server until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	logx.Info().Str("addr", addr).Msg("http server listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// handleInbound runs one WhatsApp message through the response pipeline. The
// reply (or rejection reason) is returned in the body; delivering it back to
// WhatsApp is the caller's concern.
func (s *Server) handleInbound() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in model.InboundMessage
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if in.SenderNumber == "" || in.MessageText == "" || in.AgentID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "sender_number, message_text and agent_id are required"})
			return
		}

		out, err := s.Runner.Respond(c.Request.Context(), in)
		if err != nil {
			logx.Error().Err(err).Str("agent_id", in.AgentID).Msg("pipeline error")
			c.JSON(http.StatusInternalServerError, gin.H{"error": errx.SystemErrorMessage})
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

type connectedRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// handleConnected is the first-connection hook: it starts the trial clock,
// but only once. A reconnect must not reset an already running (or expired)
// trial, so the handler checks stored state before writing.
func (s *Server) handleConnected() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req connectedRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		st, err := s.Trials.Get(c.Request.Context(), req.UserID)
		if err != nil {
			c.JSON(errx.StatusOf(err), gin.H{"error": errx.RedisErrorMessage})
			return
		}
		if st.TrialStartedAt != nil {
			c.JSON(http.StatusOK, gin.H{"trial_started": false, "trial_started_at": st.TrialStartedAt})
			return
		}

		if err := s.Gate.StartTrial(c.Request.Context(), req.UserID); err != nil {
			c.JSON(errx.StatusOf(err), gin.H{"error": errx.RedisErrorMessage})
			return
		}
		c.JSON(http.StatusOK, gin.H{"trial_started": true})
	}
}

type connectionRequest struct {
	Mode     model.ConnectionMode `json:"mode" binding:"required"`
	APIKey   string               `json:"api_key"`
	APIModel string               `json:"api_model"`
}

// handleSetConnection switches a user between trial and own-API-key mode.
func (s *Server) handleSetConnection() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("id")
		var req connectionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.Mode == model.ModeAPI && req.APIKey == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "api_key is required for api mode"})
			return
		}

		if err := s.Trials.SetConnection(c.Request.Context(), userID, req.Mode, req.APIKey, req.APIModel); err != nil {
			c.JSON(errx.StatusOf(err), gin.H{"error": errx.RedisErrorMessage})
			return
		}
		c.JSON(http.StatusOK, gin.H{"mode": req.Mode})
	}
}

func (s *Server) handleCreateAgent() gin.HandlerFunc {
	return func(c *gin.Context) {
		var agent model.Agent
		if err := c.ShouldBindJSON(&agent); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if agent.UserID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
			return
		}

		if err := s.Agents.Create(c.Request.Context(), &agent); err != nil {
			c.JSON(errx.StatusOf(err), gin.H{"error": errx.StoreErrorMessage})
			return
		}
		c.JSON(http.StatusCreated, agent)
	}
}

func (s *Server) handlePublishAgent() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Query("user_id")
		if userID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
			return
		}

		if err := s.Agents.Publish(c.Request.Context(), userID, c.Param("id")); err != nil {
			c.JSON(errx.StatusOf(err), gin.H{"error": errx.StoreNotFoundMessage})
			return
		}
		c.JSON(http.StatusOK, gin.H{"published": true})
	}
}

func (s *Server) handleDeleteAgent() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Query("user_id")
		if userID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
			return
		}

		if err := s.Agents.Delete(c.Request.Context(), userID, c.Param("id")); err != nil {
			c.JSON(errx.StatusOf(err), gin.H{"error": errx.StoreNotFoundMessage})
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": true})
	}
}

func (s *Server) handleListConversations() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

		logs, err := s.Logs.ListBySender(c.Request.Context(), c.Param("sender"), limit)
		if err != nil {
			c.JSON(errx.StatusOf(err), gin.H{"error": errx.StoreErrorMessage})
			return
		}
		c.JSON(http.StatusOK, gin.H{"conversations": logs})
	}
}

type indexRequest struct {
	Documents []model.KnowledgeDocument `json:"documents" binding:"required"`
}

func (s *Server) handleIndexKnowledge() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req indexRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		owner, kb := c.Param("owner"), c.Param("kb")
		if err := s.Index.Index(c.Request.Context(), owner, kb, req.Documents); err != nil {
			logx.Error().Err(err).Str("owner_id", owner).Str("kb_id", kb).Msg("knowledge index failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": errx.SystemErrorMessage})
			return
		}
		c.JSON(http.StatusOK, gin.H{"indexed": len(req.Documents)})
	}
}

func (s *Server) handleDeleteKnowledge() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner, kb := c.Param("owner"), c.Param("kb")
		if err := s.Index.DeleteKnowledgeBase(owner, kb); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": errx.SystemErrorMessage})
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": true})
	}
}
