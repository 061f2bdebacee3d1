package api

import (
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
)

type msgResponse struct {
	Success bool        `json:"success"`
	Msg     string      `json:"msg"`
	Obj     interface{} `json:"obj"`
}

func jsonMsg(c *gin.Context, msg string, err error) {
	if err == nil {
		c.JSON(http.StatusOK, msgResponse{Success: true, Msg: msg})
		return
	}
	c.JSON(http.StatusOK, msgResponse{Success: false, Msg: err.Error()})
}

func jsonObj(c *gin.Context, obj interface{}, err error) {
	if err != nil {
		c.JSON(http.StatusOK, msgResponse{Success: false, Msg: err.Error()})
		return
	}
	c.JSON(http.StatusOK, msgResponse{Success: true, Obj: obj})
}

func getRemoteIp(c *gin.Context) string {
	value := c.GetHeader("X-Forwarded-For")
	if value != "" {
		return value
	}
	addr := c.Request.RemoteAddr
	ip, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return ip
}
