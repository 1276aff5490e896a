package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/dkeye/Parley/internal/adapters/rtc"
	"github.com/dkeye/Parley/internal/adapters/signal"
	"github.com/dkeye/Parley/internal/app/orch"
	"github.com/dkeye/Parley/internal/auth"
	"github.com/dkeye/Parley/internal/config"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	sessionUsername = "username"
	sessionAvatar   = "avatar"
)

func genClientToken() string {
	idStr := uuid.NewString()
	return idStr
}

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

type loginRequest struct {
	Username   string `json:"username" binding:"required,max=36"`
	Password   string `json:"password" binding:"required,max=72"`
	AvatarSeed string `json:"avatar_seed"`
}

type loginResponse struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	AvatarSeed string `json:"avatar_seed,omitempty"`
}

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator, accounts *auth.Service) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("ParleySessions", store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	ctrl := signal.NewSignalWSController(o, signal.Limits{
		ReadLimit:    cfg.ReadLimit,
		PingPeriod:   cfg.PingPeriod,
		WriteWait:    cfg.WriteWait,
		SendBuffer:   cfg.SendBuffer,
		JoinLimit:    cfg.Rate.JoinLimit,
		JoinInterval: cfg.Rate.JoinInterval,
	})
	iceServers := rtc.ICEServers(cfg.ICEServers)

	api := r.Group("/api")

	api.POST("/login", loginHandler(accounts))

	api.GET("/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"rooms": o.Rooms.List()})
	})

	api.GET("/rooms/:room/users", func(c *gin.Context) {
		room, err := domain.ParseRoomName(c.Param("room"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"room":       room,
			"users":      o.MembersOf(room),
			"call_state": o.CallState(room),
		})
	})

	api.GET("/ice-servers", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"iceServers": iceServers})
	})

	api.GET("/ws/signal", func(c *gin.Context) {
		sess := sessions.Default(c)
		id := signal.Identity{ClientToken: c.GetString("client_token")}
		if v, ok := sess.Get(sessionUsername).(string); ok {
			id.Username = v
		}
		if v, ok := sess.Get(sessionAvatar).(string); ok {
			id.Avatar = v
		}
		log.Info().Str("module", "adapters.http").Str("client", id.ClientToken).Msg("ws signal endpoint hit")
		ctrl.HandleSignal(ctx, c, id)
	})

	return r
}

func loginHandler(accounts *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, loginResponse{Message: "username and password required"})
			return
		}

		res, err := accounts.Login(c.Request.Context(), auth.LoginRequest{
			Username:   req.Username,
			Password:   req.Password,
			AvatarSeed: req.AvatarSeed,
		})
		switch {
		case errors.Is(err, auth.ErrWrongPassword):
			c.JSON(http.StatusOK, loginResponse{Message: "Wrong password"})
			return
		case errors.Is(err, domain.ErrUsernameEmpty), errors.Is(err, domain.ErrUsernameTooLong), errors.Is(err, auth.ErrInvalidPassword):
			c.JSON(http.StatusBadRequest, loginResponse{Message: err.Error()})
			return
		case err != nil:
			log.Error().Err(err).Str("module", "adapters.http").Str("username", req.Username).Msg("login failed")
			c.JSON(http.StatusInternalServerError, loginResponse{Message: "Server error"})
			return
		}

		sess := sessions.Default(c)
		sess.Set(sessionUsername, req.Username)
		sess.Set(sessionAvatar, res.AvatarSeed)
		if err := sess.Save(); err != nil {
			log.Warn().Err(err).Str("module", "adapters.http").Msg("session save")
		}

		msg := "Login successful"
		if res.Created {
			msg = "Account created & Logged in"
		}
		c.JSON(http.StatusOK, loginResponse{Success: true, Message: msg, AvatarSeed: res.AvatarSeed})
	}
}
