package api

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

const loginUserKey = "LOGIN_USER"

func SetLoginUser(c *gin.Context, username string, maxAge int) error {
	s := sessions.Default(c)
	s.Set(loginUserKey, username)
	s.Options(sessions.Options{
		Path:     "/",
		MaxAge:   maxAge * 60,
		HttpOnly: true,
	})
	return s.Save()
}

func GetLoginUser(c *gin.Context) string {
	s := sessions.Default(c)
	user, ok := s.Get(loginUserKey).(string)
	if !ok {
		return ""
	}
	return user
}

func IsLogin(c *gin.Context) bool {
	return GetLoginUser(c) != ""
}

func ClearSession(c *gin.Context) {
	s := sessions.Default(c)
	s.Clear()
	s.Options(sessions.Options{Path: "/", MaxAge: -1})
	s.Save()
}

func checkLogin(c *gin.Context) {
	if IsLogin(c) {
		c.Next()
		return
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, msgResponse{
		Success: false,
		Msg:     "login required",
	})
}
