package server

import (
	"time"

	"chatly-server/internal/auth"
	"chatly-server/internal/bot"
	"chatly-server/internal/crypto"
	"chatly-server/internal/handler"
	"chatly-server/internal/middleware"
	"chatly-server/internal/socketio"
	"chatly-server/internal/store"
	"chatly-server/internal/userstore"
	"github.com/gin-gonic/gin"

	"github.com/rs/zerolog"
)

type Deps struct {
	Store       *store.Store
	Users       *userstore.Store
	Codec       *crypto.Codec
	Generator   bot.Generator
	TokenConfig auth.TokenConfig
	Logger      zerolog.Logger
}

func NewRouter(deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"ok": true})
	})

	authLimiter := middleware.NewRateLimiter(10, time.Minute)
	authHandler := &handler.AuthHandler{Users: deps.Users, TokenConfig: deps.TokenConfig}

	authGroup := r.Group("/chat/auth")
	authGroup.POST("/signup", middleware.RateLimitMiddleware(authLimiter), authHandler.Signup)
	authGroup.POST("/login", middleware.RateLimitMiddleware(authLimiter), authHandler.Login)
	authGroup.POST("/validate", middleware.RequireAuth(deps.TokenConfig, deps.Users), authHandler.Validate)

	requireAuth := middleware.RequireAuth(deps.TokenConfig, deps.Users)

	privateChatHandler := &handler.PrivateChatHandler{Store: deps.Store, Codec: deps.Codec}
	usersHandler := &handler.UsersHandler{Users: deps.Users}

	// gin matches the literal private-chat segment ahead of the /chat/:userId
	// param routes below.
	private := r.Group("/chat/private-chat")
	private.Use(requireAuth)
	private.POST("/chat/:chatId", privateChatHandler.GetChatLog)
	private.GET("/userlist/:userId", usersHandler.ListUsers)
	private.GET("/:userId/following", usersHandler.ListFollowing)
	private.POST("/:userId/follow", usersHandler.Follow)
	private.POST("/:userId/unfollow", usersHandler.Unfollow)

	chatHandler := &handler.ChatHandler{Store: deps.Store, Codec: deps.Codec}
	chats := r.Group("/chat")
	chats.Use(requireAuth)
	chats.GET("/:userId", chatHandler.ListChats)
	chats.GET("/:userId/:chatId", chatHandler.GetChat)
	chats.DELETE("/:userId/:chatId", chatHandler.DeleteChat)
	chats.DELETE("/:userId", chatHandler.DeleteAllChats)

	gateway := socketio.NewServer(socketio.Deps{
		Store:       deps.Store,
		Users:       deps.Users,
		Codec:       deps.Codec,
		Generator:   deps.Generator,
		TokenConfig: deps.TokenConfig,
		Logger:      deps.Logger,
	})
	r.GET("/socket.io/*any", gin.WrapH(gateway))

	return r
}
