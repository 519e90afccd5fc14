package handler

import (
	"net/http"
	"textlens-go/internal/middleware"
	"textlens-go/internal/service"
	"textlens-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// AuthHandler 负责注册、登录、登出与账号修改。
type AuthHandler struct {
	userService service.UserService
}

// NewAuthHandler 创建一个新的 AuthHandler 实例。
func NewAuthHandler(userService service.UserService) *AuthHandler {
	return &AuthHandler{userService: userService}
}

// SignUpRequest 定义了注册 API 的请求体结构。
type SignUpRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	Name     string `json:"name" binding:"required"`
}

func (h *AuthHandler) SignUp(c *gin.Context) {
	var req SignUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	conf, err := h.userService.SignUp(c.Request.Context(), service.SignUpInput{Email: req.Email, Password: req.Password, Name: req.Name})
	if err != nil {
		log.Warnf("SignUp: 注册失败, email: %s, error: %v", req.Email, err)
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, conf)
}

// SignInRequest 定义了登录 API 的请求体结构。
type SignInRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) SignIn(c *gin.Context) {
	var req SignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	accessToken, err := h.userService.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		log.Warnf("SignIn: 登录失败, email: %s, error: %v", req.Email, err)
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": accessToken})
}

// SignOut 吊销当前请求所用的 token。
func (h *AuthHandler) SignOut(c *gin.Context) {
	conf, err := h.userService.SignOut(c.Request.Context(), c.GetString(middleware.TokenKey))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, conf)
}

// UpdateRequest 中省略的字段保持不变。
type UpdateRequest struct {
	Email    *string `json:"email" binding:"omitempty,email"`
	Password *string `json:"password" binding:"omitempty,min=6"`
	Name     *string `json:"name"`
}

func (h *AuthHandler) Update(c *gin.Context) {
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	conf, err := h.userService.Update(c.Request.Context(), currentUserID(c), service.UpdateUserInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, conf)
}
