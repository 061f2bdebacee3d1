package api

import (
	"strings"

	"github.com/wiresocks/wiresocks-ui/service"
	"github.com/wiresocks/wiresocks-ui/util/common"

	"github.com/gin-gonic/gin"
)

type APIHandler struct {
	ApiService
}

func NewAPIHandler(g *gin.RouterGroup, orchestrator *service.Orchestrator, presenter *service.Presenter) {
	a := &APIHandler{
		ApiService: ApiService{
			orchestrator: orchestrator,
			presenter:    presenter,
		},
	}
	a.initRouter(g)
}

func (a *APIHandler) initRouter(g *gin.RouterGroup) {
	g.Use(func(c *gin.Context) {
		path := c.Request.URL.Path
		if !strings.HasSuffix(path, "login") && !strings.HasSuffix(path, "logout") {
			checkLogin(c)
		}
	})
	g.POST("/:postAction", a.postHandler)
	g.GET("/:getAction", a.getHandler)
}

func (a *APIHandler) postHandler(c *gin.Context) {
	action := c.Param("postAction")

	switch action {
	case "login":
		a.ApiService.Login(c)
	case "changePass":
		a.ApiService.ChangePass(c)
	case "save":
		a.ApiService.Save(c)
	case "instance_add":
		a.ApiService.AddInstance(c)
	case "instance_delete":
		a.ApiService.DeleteInstance(c)
	case "instance_start":
		a.ApiService.StartInstance(c)
	case "instance_stop":
		a.ApiService.StopInstance(c)
	case "stopall":
		a.ApiService.StopAll(c)
	case "keys_update":
		a.ApiService.UpdateKeys(c)
	case "keys_generate":
		a.ApiService.GenerateKeys(c)
	case "reload":
		a.ApiService.ReloadServers(c)
	case "restartApp":
		a.ApiService.RestartApp(c)
	default:
		jsonMsg(c, "failed", common.NewError("unknown action: ", action))
	}
}

func (a *APIHandler) getHandler(c *gin.Context) {
	action := c.Param("getAction")

	switch action {
	case "logout":
		a.ApiService.Logout(c)
	case "instances":
		a.ApiService.GetInstances(c)
	case "status":
		a.ApiService.GetStatus(c)
	case "options":
		a.ApiService.GetOptions(c)
	case "logs":
		a.ApiService.GetLogs(c)
	case "settings":
		a.ApiService.GetSettings(c)
	case "config":
		a.ApiService.GetConfig(c)
	default:
		jsonMsg(c, "failed", common.NewError("unknown action: ", action))
	}
}
