// Package api is the local HTTP control surface a UI drives the table client
// through.
package api

import (
	"context"
	"errors"
	"net/http"

	"SekaTable/internal/game/manager"
	"SekaTable/internal/game/table"
	"SekaTable/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Table is the part of the table manager the API exposes.
type Table interface {
	State() table.HandState
	Identity() table.Identity
	Countdown() (remaining int, visible bool)
	Act(ctx context.Context, action string, amount float64) error
	PlayBlind(ctx context.Context, action string, amount float64) error
	ViewCards(ctx context.Context) (manager.ViewResult, error)
	Chat(ctx context.Context, message string) error
	Leave(ctx context.Context) error
}

type Handler struct {
	table Table
}

func NewHandler(t Table) *Handler {
	return &Handler{table: t}
}

type ActionRequest struct {
	Action string  `json:"action" binding:"required"`
	Amount float64 `json:"amount"`
}

type ChatRequest struct {
	Message string `json:"message" binding:"required"`
}

type CountdownView struct {
	Remaining int  `json:"remaining"`
	Visible   bool `json:"visible"`
}

type StateResponse struct {
	Self      table.Identity  `json:"self"`
	State     table.HandState `json:"state"`
	Countdown CountdownView   `json:"countdown"`
}

// NewRouter builds the gin engine with CORS and every table route.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Authorization"},
	}))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	g := r.Group("/table")
	{
		g.GET("/state", h.State)
		g.POST("/action", h.Act)
		g.POST("/blind", h.Blind)
		g.POST("/view-cards", h.ViewCards)
		g.POST("/chat", h.Chat)
		g.POST("/leave", h.Leave)
	}
	return r
}

// GET /table/state
func (h *Handler) State(c *gin.Context) {
	remaining, visible := h.table.Countdown()
	c.JSON(http.StatusOK, StateResponse{
		Self:      h.table.Identity(),
		State:     h.table.State(),
		Countdown: CountdownView{Remaining: remaining, Visible: visible},
	})
}

// POST /table/action body: {action, amount}
func (h *Handler) Act(c *gin.Context) {
	var req ActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.table.Act(c.Request.Context(), req.Action, req.Amount); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// POST /table/blind body: {action, amount}
func (h *Handler) Blind(c *gin.Context) {
	var req ActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.table.PlayBlind(c.Request.Context(), req.Action, req.Amount); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// POST /table/view-cards
func (h *Handler) ViewCards(c *gin.Context) {
	res, err := h.table.ViewCards(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// POST /table/chat body: {message}
func (h *Handler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.table.Chat(c.Request.Context(), req.Message); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// POST /table/leave
func (h *Handler) Leave(c *gin.Context) {
	if err := h.table.Leave(c.Request.Context()); err != nil && !errors.Is(err, websocket.ErrNotConnected) {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func fail(c *gin.Context, err error) {
	var rejected *websocket.ActionRejectedError
	switch {
	case errors.As(err, &rejected):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": rejected.Message})
	case errors.Is(err, websocket.ErrNotConnected):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.Is(err, websocket.ErrTimeout):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
