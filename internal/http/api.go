package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"authdesk/internal/domain"
	"authdesk/internal/poll"
	"authdesk/internal/service"
	"authdesk/internal/tabs"
)

const (
	TabCookieName = "authdesk_tab"
	ctxManager    = "authdesk.manager"
	ctxToken      = "authdesk.token"
)

// Handler wires HTTP routes to domain services.
type Handler struct {
	tabs   *tabs.Registry
	users  service.UserService
	poll   poll.Poller
	logger logrus.FieldLogger
}

func NewHandler(registry *tabs.Registry, users service.UserService, poller poll.Poller, logger logrus.FieldLogger) *Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handler{
		tabs:   registry,
		users:  users,
		poll:   poller,
		logger: logger,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(corsMiddleware())

	api := router.Group("/api")
	{
		api.GET("/health", func(ctx *gin.Context) {
			ctx.JSON(http.StatusOK, gin.H{"ok": "ok"})
		})
		api.POST("/tabs", h.openTab)
		api.GET("/poll", h.pollResults)
		api.POST("/poll/:category", h.vote)

		tab := api.Group("", h.requireTab())
		{
			tab.DELETE("/tabs", h.closeTab)
			tab.GET("/state", h.state)
			tab.PUT("/mode", h.setMode)
			tab.PATCH("/form", h.updateForm)
			tab.POST("/submit", h.submit)
			tab.POST("/login", h.login)
			tab.POST("/signup", h.signup)
			tab.POST("/logout", h.logout)
			tab.GET("/me", h.requireUser(), h.me)

			admin := tab.Group("/admin", h.requireUser(), h.requireAdmin())
			{
				admin.GET("", h.adminPanel)
				admin.GET("/users", h.listUsers)
			}
		}
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func (h *Handler) requireTab() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := tabToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "tab token is required"})
			return
		}
		m, err := h.tabs.Resolve(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, tabs.ErrInvalidToken) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
				return
			}
			h.logger.WithError(err).Error("resolve tab")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Set(ctxToken, token)
		c.Set(ctxManager, m)
		c.Next()
	}
}

func (h *Handler) requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := manager(c).CurrentUser(); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not logged in"})
			return
		}
		c.Next()
	}
}

func (h *Handler) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !manager(c).IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

// tabToken prefers the Authorization header and falls back to the cookie.
func tabToken(c *gin.Context) string {
	authz := c.GetHeader("Authorization")
	if authz != "" {
		parts := strings.SplitN(authz, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if v, err := c.Cookie(TabCookieName); err == nil {
		return v
	}
	return ""
}

func manager(c *gin.Context) *service.Manager {
	return c.MustGet(ctxManager).(*service.Manager)
}

func (h *Handler) openTab(c *gin.Context) {
	token, m, err := h.tabs.Open(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(TabCookieName, token, 0, "/", "", false, true)
	c.JSON(http.StatusCreated, gin.H{
		"token": token,
		"state": stateToResponse(m.Snapshot()),
	})
}

func (h *Handler) closeTab(c *gin.Context) {
	if err := h.tabs.Close(c.Request.Context(), c.GetString(ctxToken)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.SetCookie(TabCookieName, "", -1, "/", "", false, true)
	c.Status(http.StatusNoContent)
}

func (h *Handler) state(c *gin.Context) {
	c.JSON(http.StatusOK, stateToResponse(manager(c).Snapshot()))
}

type modeRequest struct {
	Mode domain.Mode `json:"mode" binding:"required"`
}

func (h *Handler) setMode(c *gin.Context) {
	var req modeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	m := manager(c)
	if err := m.SetMode(req.Mode); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stateToResponse(m.Snapshot()))
}

func (h *Handler) updateForm(c *gin.Context) {
	var fields map[string]string
	if err := c.ShouldBindJSON(&fields); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	// Reject the whole patch on any unknown field so it applies all or nothing.
	check := domain.EmptyForm()
	for field, value := range fields {
		if !check.Set(field, value) {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Errorf("%w: %q", service.ErrUnknownField, field).Error()})
			return
		}
	}
	m := manager(c)
	for field, value := range fields {
		if err := m.SetField(field, value); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, stateToResponse(m.Snapshot()))
}

func (h *Handler) submit(c *gin.Context) {
	m := manager(c)
	_, err := m.Submit(c.Request.Context())
	h.respondSubmit(c, m, err)
}

type formRequest struct {
	Email           string          `json:"email"`
	Password        string          `json:"password"`
	ConfirmPassword string          `json:"confirmPassword"`
	FullName        string          `json:"fullName"`
	UserType        domain.UserType `json:"userType"`
}

func (r formRequest) form() domain.FormState {
	return domain.FormState{
		Email:           r.Email,
		Password:        r.Password,
		ConfirmPassword: r.ConfirmPassword,
		FullName:        r.FullName,
		UserType:        r.UserType,
	}
}

func (h *Handler) login(c *gin.Context) {
	var req formRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	m := manager(c)
	_, err := m.Login(c.Request.Context(), req.form())
	h.respondSubmit(c, m, err)
}

func (h *Handler) signup(c *gin.Context) {
	var req formRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	m := manager(c)
	_, err := m.SignUp(c.Request.Context(), req.form())
	h.respondSubmit(c, m, err)
}

func (h *Handler) respondSubmit(c *gin.Context, m *service.Manager, err error) {
	resp := stateToResponse(m.Snapshot())
	var verr *service.ValidationError
	switch {
	case err == nil:
		c.JSON(http.StatusOK, resp)
	case errors.As(err, &verr):
		c.JSON(http.StatusUnprocessableEntity, resp)
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, resp)
	case errors.Is(err, service.ErrDuplicateEmail),
		errors.Is(err, service.ErrBusy),
		errors.Is(err, service.ErrAlreadyAuthenticated):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "state": resp})
	default:
		h.logger.WithError(err).Error("submit")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "state": resp})
	}
}

func (h *Handler) logout(c *gin.Context) {
	m := manager(c)
	if err := m.Logout(c.Request.Context()); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, service.ErrBusy) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stateToResponse(m.Snapshot()))
}

func (h *Handler) me(c *gin.Context) {
	u, _ := manager(c).CurrentUser()
	c.JSON(http.StatusOK, u)
}

func (h *Handler) adminPanel(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"title":   "Admin Panel",
		"message": "You have admin privileges and can access additional features.",
		"actions": []string{"Manage Users"},
	})
}

func (h *Handler) listUsers(c *gin.Context) {
	users, err := h.users.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	resp := make([]domain.SessionRecord, len(users))
	for i := range users {
		resp[i] = users[i].Session()
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) pollResults(c *gin.Context) {
	c.JSON(http.StatusOK, pollToResponse(h.poll))
}

func (h *Handler) vote(c *gin.Context) {
	if err := h.poll.Vote(c.Param("category")); err != nil {
		if errors.Is(err, poll.ErrUnknownCategory) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, pollToResponse(h.poll))
}
