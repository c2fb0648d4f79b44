package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"duel-service/internal/engine"
	"duel-service/internal/middleware"
	"duel-service/internal/present"
	"duel-service/internal/service"
	"duel-service/internal/service/economy"
	"duel-service/internal/service/game"
	"duel-service/internal/service/match"
	usersvc "duel-service/internal/service/user"
	"duel-service/internal/ws"
	appErr "duel-service/pkg/errors"
	"duel-service/pkg/response"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	services *service.Container
}

func RegisterRoutes(r *gin.Engine, services *service.Container) {
	handler := &Handler{services: services}
	wsHandler := ws.NewHandler(services.Game, services.Hub, services.User)

	r.GET("/ping", func(c *gin.Context) {
		response.Success(c, gin.H{"message": "pong"})
	})

	v1 := r.Group("/v1")
	{
		v1.POST("/auth/login", handler.Login)
		v1.GET("/games", handler.ListGames)

		authed := v1.Group("/")
		authed.Use(middleware.AuthRequired())
		{
			authed.GET("/user/profile", handler.GetProfile)
			authed.PUT("/user/profile", handler.UpdateProfile)

			authed.GET("/wallet", handler.GetWallet)
			authed.GET("/debts", handler.GetDebts)
			authed.GET("/records", handler.GetRecords)

			authed.POST("/sessions", handler.StartSession)
			authed.GET("/sessions/active", handler.ActiveSession)
			authed.GET("/sessions/:id", handler.GetSession)
			authed.POST("/sessions/:id/join", handler.JoinSession)
			authed.POST("/sessions/:id/actions", handler.SubmitAction)
			authed.POST("/actions", handler.SubmitComponent)

			authed.POST("/match/join", handler.MatchJoin)
			authed.POST("/match/cancel", handler.MatchCancel)
			authed.GET("/match/status", handler.MatchStatus)
		}
	}

	adminGroup := r.Group("/admin")
	{
		adminGroup.POST("/auth/login", handler.AdminLogin)

		protected := adminGroup.Group("/")
		protected.Use(middleware.AdminAuthRequired())
		{
			protected.PUT("/password", handler.AdminChangePassword)
			protected.GET("/sessions", handler.AdminListSessions)

			protected.GET("/users", handler.AdminListUsers)
			protected.GET("/users/:id", handler.AdminGetUser)
			protected.PUT("/users/:id/ban", handler.AdminBanUser)
			protected.PUT("/users/:id/wallet", handler.AdminSetUserWallet)
			protected.GET("/users/:id/debts", handler.AdminUserDebts)
			protected.PUT("/users/:id/items", handler.AdminSetUserItem)
			protected.PUT("/users/:id/roles", handler.AdminSetUserRole)
		}
	}

	r.GET("/ws/session/:id", wsHandler.HandleSessionWS)
}

type loginBody struct {
	Nickname string `json:"nickname"`
}

type updateProfileBody struct {
	Nickname string `json:"nickname" binding:"required"`
}

type startSessionBody struct {
	Game       string `json:"game" binding:"required"`
	OpponentID int64  `json:"opponentId"`
	Amount     string `json:"amount"`
}

type actionBody struct {
	Type  string `json:"type" binding:"required"`
	Index int    `json:"index"`
}

type componentBody struct {
	ID string `json:"id" binding:"required"`
}

type matchJoinBody struct {
	Game   string `json:"game" binding:"required"`
	Amount string `json:"amount"`
}

type adminLoginBody struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type adminPasswordBody struct {
	Current string `json:"current" binding:"required"`
	Next    string `json:"next" binding:"required"`
}

type adminUserBanBody struct {
	Status string `json:"status" binding:"required"`
	Reason string `json:"reason"`
}

type adminSetWalletBody struct {
	BalanceAvailable *int64 `json:"balanceAvailable"`
	Points           *int64 `json:"points"`
}

type adminItemBody struct {
	Item     string `json:"item" binding:"required"`
	Quantity int64  `json:"quantity" binding:"min=0"`
}

type adminRoleBody struct {
	Role    string `json:"role" binding:"required"`
	Granted bool   `json:"granted"`
}

func (h *Handler) Login(c *gin.Context) {
	var body loginBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	resp, err := h.services.User.Login(c.Request.Context(), body.Nickname)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, resp)
}

func (h *Handler) ListGames(c *gin.Context) {
	response.Success(c, gin.H{
		"games":    h.services.Game.Kinds(),
		"minWager": h.services.Economy.MinWager(),
	})
}

func (h *Handler) GetProfile(c *gin.Context) {
	profile, err := h.services.User.GetProfile(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, profile)
}

func (h *Handler) UpdateProfile(c *gin.Context) {
	var body updateProfileBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	updated, err := h.services.User.UpdateNickname(c.Request.Context(), middleware.UserID(c), body.Nickname)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, updated)
}

func (h *Handler) GetWallet(c *gin.Context) {
	ctx := c.Request.Context()
	userID := middleware.UserID(c)
	wallet, err := h.services.Economy.GetWallet(ctx, userID)
	if err != nil {
		fail(c, err)
		return
	}
	roles, err := h.services.Economy.GetRoles(ctx, userID)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"wallet": wallet, "roles": roles})
}

func (h *Handler) GetDebts(c *gin.Context) {
	debts, err := h.services.Economy.Debts(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"debts": debts})
}

func (h *Handler) GetRecords(c *gin.Context) {
	limit, err := parsePositiveIntQuery(c, "limit", 20)
	if err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	records, err := h.services.Game.Records(c.Request.Context(), middleware.UserID(c), limit)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"records": records})
}

func (h *Handler) StartSession(c *gin.Context) {
	var body startSessionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	ctx := c.Request.Context()
	challenger, err := h.services.User.Player(ctx, middleware.UserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	var opponent engine.Player
	if body.OpponentID != 0 {
		if opponent, err = h.services.User.Player(ctx, body.OpponentID); err != nil {
			fail(c, err)
			return
		}
	}

	coord, err := h.services.Game.Start(ctx, game.StartRequest{
		Kind:       strings.ToLower(strings.TrimSpace(body.Game)),
		Challenger: challenger,
		Opponent:   opponent,
		Amount:     body.Amount,
	})
	if err != nil {
		fail(c, err)
		return
	}
	response.Created(c, gin.H{
		"sessionId": coord.ID(),
		"game":      coord.Kind(),
		"wager":     coord.Wager(),
	})
}

func (h *Handler) ActiveSession(c *gin.Context) {
	id, ok := h.services.Game.ActiveSession(middleware.UserID(c))
	if !ok {
		fail(c, appErr.ErrSessionNotFound)
		return
	}
	response.Success(c, gin.H{"sessionId": id})
}

func (h *Handler) GetSession(c *gin.Context) {
	snap, err := h.services.Game.Snapshot(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, present.SessionState{Snapshot: snap, View: snap.ViewFor(middleware.UserID(c))})
}

func (h *Handler) JoinSession(c *gin.Context) {
	ctx := c.Request.Context()
	player, err := h.services.User.Player(ctx, middleware.UserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	if err := h.services.Game.Join(ctx, c.Param("id"), player); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"sessionId": c.Param("id")})
}

func (h *Handler) SubmitAction(c *gin.Context) {
	var body actionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	kind, err := engine.ParseVerb(body.Type)
	if err != nil {
		fail(c, err)
		return
	}
	ctx := c.Request.Context()
	player, err := h.services.User.Player(ctx, middleware.UserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	err = h.services.Game.Submit(ctx, engine.Action{
		SessionID: c.Param("id"),
		ActorID:   player.ID,
		ActorName: player.Name,
		Kind:      kind,
		Index:     body.Index,
	})
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"accepted": true})
}

// SubmitComponent takes a composite component id such as "{session}_drop_3".
func (h *Handler) SubmitComponent(c *gin.Context) {
	var body componentBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	ctx := c.Request.Context()
	player, err := h.services.User.Player(ctx, middleware.UserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	if err := h.services.Game.SubmitRaw(ctx, player, body.ID); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"accepted": true})
}

func (h *Handler) MatchJoin(c *gin.Context) {
	var body matchJoinBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	ctx := c.Request.Context()
	player, err := h.services.User.Player(ctx, middleware.UserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	status, err := h.services.Match.JoinQueue(ctx, match.JoinQueueRequest{
		Player: player,
		Kind:   strings.ToLower(strings.TrimSpace(body.Game)),
		Amount: body.Amount,
		IP:     c.ClientIP(),
	})
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, status)
}

func (h *Handler) MatchCancel(c *gin.Context) {
	if err := h.services.Match.CancelQueue(c.Request.Context(), match.CancelQueueRequest{
		UserID: middleware.UserID(c),
		Reason: "user_cancel",
	}); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"status": "cancelled"})
}

func (h *Handler) MatchStatus(c *gin.Context) {
	status, err := h.services.Match.GetStatus(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, status)
}

func (h *Handler) AdminLogin(c *gin.Context) {
	var body adminLoginBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	resp, err := h.services.Admin.Login(c.Request.Context(), body.Username, body.Password)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, resp)
}

func (h *Handler) AdminChangePassword(c *gin.Context) {
	var body adminPasswordBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.services.Admin.ChangePassword(c.Request.Context(), middleware.AdminID(c), body.Current, body.Next); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"changed": true})
}

func (h *Handler) AdminListSessions(c *gin.Context) {
	response.Success(c, gin.H{"sessions": h.services.Game.Active()})
}

func (h *Handler) AdminListUsers(c *gin.Context) {
	page, err := parsePositiveIntQuery(c, "page", 1)
	if err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	size, err := parsePositiveIntQuery(c, "size", 20)
	if err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	status := strings.ToLower(strings.TrimSpace(c.Query("status")))
	if status != "" && status != usersvc.StatusNormal && status != usersvc.StatusBanned {
		response.Error(c, http.StatusBadRequest, "invalid status filter")
		return
	}

	result, err := h.services.User.AdminListUsers(c.Request.Context(), usersvc.AdminListUsersFilter{
		Page:            page,
		Size:            size,
		Status:          status,
		NicknameKeyword: c.Query("nickname"),
	})
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, gin.H{
		"items": result.Items,
		"total": result.Total,
		"page":  page,
		"size":  size,
	})
}

func (h *Handler) AdminGetUser(c *gin.Context) {
	userID, ok := parseUserIDParam(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	user, err := h.services.User.GetProfile(ctx, userID)
	if err != nil {
		fail(c, err)
		return
	}
	wallet, err := h.services.Economy.GetWallet(ctx, userID)
	if err != nil {
		fail(c, err)
		return
	}
	roles, err := h.services.Economy.GetRoles(ctx, userID)
	if err != nil {
		fail(c, err)
		return
	}
	active, _ := h.services.Game.ActiveSession(userID)
	response.Success(c, gin.H{"user": user, "wallet": wallet, "roles": roles, "activeSession": active})
}

func (h *Handler) AdminBanUser(c *gin.Context) {
	userID, ok := parseUserIDParam(c)
	if !ok {
		return
	}
	var body adminUserBanBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	updated, err := h.services.User.AdminUpdateUserStatus(c.Request.Context(), userID, body.Status, body.Reason)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"user": updated})
}

func (h *Handler) AdminSetUserWallet(c *gin.Context) {
	userID, ok := parseUserIDParam(c)
	if !ok {
		return
	}
	var body adminSetWalletBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	wallet, err := h.services.Economy.AdminSetWallet(c.Request.Context(), userID, economy.AdminSetWalletRequest{
		BalanceAvailable: body.BalanceAvailable,
		Points:           body.Points,
	})
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"wallet": wallet})
}

func (h *Handler) AdminUserDebts(c *gin.Context) {
	userID, ok := parseUserIDParam(c)
	if !ok {
		return
	}
	debts, err := h.services.Economy.Debts(c.Request.Context(), userID)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"debts": debts})
}

func (h *Handler) AdminSetUserItem(c *gin.Context) {
	userID, ok := parseUserIDParam(c)
	if !ok {
		return
	}
	var body adminItemBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.services.Economy.SetItem(c.Request.Context(), userID, body.Item, body.Quantity); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"item": body.Item, "quantity": body.Quantity})
}

func (h *Handler) AdminSetUserRole(c *gin.Context) {
	userID, ok := parseUserIDParam(c)
	if !ok {
		return
	}
	var body adminRoleBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	ctx := c.Request.Context()
	if err := h.services.Economy.SetRole(ctx, userID, body.Role, body.Granted); err != nil {
		fail(c, err)
		return
	}
	roles, err := h.services.Economy.GetRoles(ctx, userID)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"roles": roles})
}

func parseUserIDParam(c *gin.Context) (int64, bool) {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || userID <= 0 {
		response.Error(c, http.StatusBadRequest, "invalid user id")
		return 0, false
	}
	return userID, true
}

func parsePositiveIntQuery(c *gin.Context, key string, defaultVal int) (int, error) {
	val := c.Query(key)
	if val == "" {
		return defaultVal, nil
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return parsed, nil
}
