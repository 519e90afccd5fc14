package handler

import (
	"textlens-go/internal/middleware"
	"textlens-go/pkg/token"

	"github.com/gin-gonic/gin"
)

// Routes 汇总注册路由所需的处理器。Search 为 nil 表示未启用检索。
type Routes struct {
	JWTManager *token.JWTManager
	Revocation token.RevocationStore
	Auth       *AuthHandler
	User       *UserHandler
	Chat       *ChatHandler
	Stream     *StreamHandler
	Search     *SearchHandler
	Completion *CompletionHandler
}

// RegisterRoutes 在 /api 下注册全部接口。
func RegisterRoutes(r *gin.Engine, rt Routes) {
	requireAuth := middleware.AuthMiddleware(rt.JWTManager, rt.Revocation)

	api := r.Group("/api")
	{
		auth := api.Group("/auth")
		{
			// 无需认证的路由
			auth.POST("/signup", rt.Auth.SignUp)
			auth.POST("/signin", rt.Auth.SignIn)

			auth.POST("/signout", requireAuth, rt.Auth.SignOut)
			auth.PUT("/update", requireAuth, rt.Auth.Update)
		}

		api.GET("/users/me", requireAuth, rt.User.GetProfile)

		chats := api.Group("/chats")
		chats.Use(requireAuth)
		{
			chats.POST("", rt.Chat.CreateChat)
			chats.GET("", rt.Chat.ListChats)
			chats.GET("/:chatId", rt.Chat.GetChat)
			chats.POST("/:chatId/messages", rt.Chat.SendMessage)
			chats.PUT("/:chatId/title", rt.Chat.UpdateTitle)
			chats.DELETE("/:chatId", rt.Chat.DeleteChat)
			chats.POST("/:chatId/resume", rt.Chat.ResumeChat)
			chats.GET("/:chatId/download", rt.Chat.DownloadPDF)
			chats.GET("/:chatId/image", rt.Chat.RedirectImage)
			chats.GET("/:chatId/interactions", rt.Chat.ListInteractions)
			chats.DELETE("/:chatId/interactions/:id", rt.Chat.RemoveInteraction)
		}

		if rt.Search != nil {
			api.GET("/search/chats", requireAuth, rt.Search.SearchChats)
		} else {
			api.GET("/search/chats", requireAuth, SearchUnavailable)
		}

		api.POST("/hf/complete", requireAuth, rt.Completion.Complete)

		// WebSocket 在握手阶段自行校验查询参数中的 token
		api.GET("/ws/chats/:chatId", rt.Stream.Handle)
	}
}
