package controllers

import (
	"PearlDental/handlers"

	"github.com/gin-gonic/gin"
)

type AuthController struct {
	handler *handlers.AuthHandler
}

func NewAuthController(handler *handlers.AuthHandler) *AuthController {
	return &AuthController{handler: handler}
}

func (c *AuthController) RegisterRoutes(router *gin.Engine) {
	router.POST("/auth/login", c.handler.Login)
}
