package handler

import (
	"net/http"

	"duochat/internal/domain/message"
	"duochat/internal/domain/user"
	"duochat/internal/services"
	"duochat/internal/transport/httpdto"
	"duochat/pkg/logger"

	"github.com/gin-gonic/gin"
)

type MessageHandler struct {
	service *services.ConversationService
	logger  *logger.Logger
}

func NewMessageHandler(service *services.ConversationService, l *logger.Logger) *MessageHandler {
	return &MessageHandler{service: service, logger: orNop(l)}
}

// Register mounts the message routes on an authenticated group. write wraps
// the mutating routes, typically with the message rate limiter.
func (h *MessageHandler) Register(rg *gin.RouterGroup, write ...gin.HandlerFunc) {
	rg.GET("/users", h.Sidebar)
	rg.GET("/:id", h.Thread)
	rg.PUT("/mark/:id", h.MarkSeen)
	rg.POST("/send/:id", with(write, h.Send)...)
	rg.PUT("/react/:id", with(write, h.React)...)
	rg.PUT("/edit/:id", with(write, h.Edit)...)
	rg.DELETE("/delete/:id", with(write, h.Delete)...)
}

func with(pre []gin.HandlerFunc, h gin.HandlerFunc) []gin.HandlerFunc {
	out := make([]gin.HandlerFunc, 0, len(pre)+1)
	return append(append(out, pre...), h)
}

func (h *MessageHandler) Sidebar(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	summaries, err := h.service.ListConversations(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	res := httpdto.SidebarResponse{
		Envelope:       httpdto.OK(),
		Users:          make([]user.Profile, 0, len(summaries)),
		UnseenMessages: make(map[string]int64),
		LastMessages:   make(map[string]string),
	}
	for _, s := range summaries {
		res.Users = append(res.Users, s.Peer)
		key := s.Peer.ID.String()
		if s.UnseenCount > 0 {
			res.UnseenMessages[key] = s.UnseenCount
		}
		if s.LastMessage != "" {
			res.LastMessages[key] = s.LastMessage
		}
	}
	c.JSON(http.StatusOK, res)
}

func (h *MessageHandler) Thread(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	peerID, ok := pathID(c, h.logger)
	if !ok {
		return
	}

	thread, err := h.service.FetchThread(c.Request.Context(), userID, peerID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if thread == nil {
		thread = []message.Message{}
	}
	c.JSON(http.StatusOK, httpdto.ThreadResponse{Envelope: httpdto.OK(), Messages: thread})
}

func (h *MessageHandler) MarkSeen(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	messageID, ok := pathID(c, h.logger)
	if !ok {
		return
	}

	if _, err := h.service.MarkSeen(c.Request.Context(), userID, messageID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.OK())
}

func (h *MessageHandler) Send(c *gin.Context) {
	var req httpdto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	receiverID, ok := pathID(c, h.logger)
	if !ok {
		return
	}

	m, err := h.service.Send(c.Request.Context(), userID, receiverID, services.SendInput{
		Text:        req.Text,
		Image:       req.Image,
		Audio:       req.Audio,
		MessageType: message.Type(req.MessageType),
		Duration:    req.Duration,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.SendMessageResponse{Envelope: httpdto.OK(), NewMessage: m})
}

func (h *MessageHandler) React(c *gin.Context) {
	var req httpdto.ReactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	messageID, ok := pathID(c, h.logger)
	if !ok {
		return
	}

	reactions, err := h.service.React(c.Request.Context(), userID, messageID, req.Emoji)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.ReactResponse{Envelope: httpdto.OK(), Reactions: reactions})
}

func (h *MessageHandler) Edit(c *gin.Context) {
	var req httpdto.EditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	messageID, ok := pathID(c, h.logger)
	if !ok {
		return
	}

	m, err := h.service.Edit(c.Request.Context(), userID, messageID, req.Text)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.EditResponse{Envelope: httpdto.OK(), Message: m})
}

// Delete accepts an optional {deleteFor} body; no body means "me".
func (h *MessageHandler) Delete(c *gin.Context) {
	var req httpdto.DeleteRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	messageID, ok := pathID(c, h.logger)
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), userID, messageID, message.DeleteScope(req.DeleteFor)); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.OK())
}
