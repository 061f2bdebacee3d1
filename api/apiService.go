package api

import (
	"strconv"
	"time"

	"github.com/wiresocks/wiresocks-ui/logger"
	"github.com/wiresocks/wiresocks-ui/service"
	"github.com/wiresocks/wiresocks-ui/util/common"

	"github.com/gin-gonic/gin"
)

type ApiService struct {
	service.SettingService
	service.UserService
	service.PanelService

	orchestrator *service.Orchestrator
	presenter    *service.Presenter
}

func (a *ApiService) GetInstances(c *gin.Context) {
	jsonObj(c, a.orchestrator.Instances(), nil)
}

func (a *ApiService) GetStatus(c *gin.Context) {
	snap := a.presenter.Snapshot()
	data := map[string]interface{}{
		"statusText":   snap.StatusText,
		"instancesRev": snap.InstancesRev,
		"directoryRev": snap.DirectoryRev,
		"hasServers":   a.orchestrator.HasServers(),
		"hasKeys":      a.orchestrator.Credentials().Valid(),
	}
	jsonObj(c, data, nil)
}

func (a *ApiService) GetOptions(c *gin.Context) {
	jsonObj(c, a.orchestrator.CountryOptions(), nil)
}

func (a *ApiService) GetLogs(c *gin.Context) {
	count, err := strconv.Atoi(c.Query("c"))
	if err != nil {
		count = 50
	}
	jsonObj(c, logger.GetLogs(count, c.Query("l")), nil)
}

func (a *ApiService) GetSettings(c *gin.Context) {
	data, err := a.SettingService.GetAllSetting()
	jsonObj(c, data, err)
}

func (a *ApiService) GetConfig(c *gin.Context) {
	id, err := strconv.Atoi(c.Query("id"))
	if err != nil {
		jsonMsg(c, "config", err)
		return
	}
	content, err := a.orchestrator.RenderedConfig(uint(id))
	if err != nil {
		jsonMsg(c, "config", err)
		return
	}
	c.Header("Content-Type", "text/plain")
	c.Header("Content-Disposition", "attachment; filename=wiresocks_"+strconv.Itoa(id)+".conf")
	c.Writer.Write([]byte(content))
}

func (a *ApiService) AddInstance(c *gin.Context) {
	selection := c.Request.FormValue("country")
	port, err := strconv.Atoi(c.Request.FormValue("port"))
	if err != nil {
		jsonMsg(c, "instance_add", err)
		return
	}
	inst, err := a.orchestrator.AddInstance(selection, port)
	if err != nil {
		jsonMsg(c, "instance_add", err)
		return
	}
	jsonObj(c, inst, nil)
}

func (a *ApiService) instanceId(c *gin.Context) (uint, error) {
	id, err := strconv.Atoi(c.Request.FormValue("id"))
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}

func (a *ApiService) DeleteInstance(c *gin.Context) {
	id, err := a.instanceId(c)
	if err != nil {
		jsonMsg(c, "instance_delete", err)
		return
	}
	jsonMsg(c, "instance_delete", a.orchestrator.RemoveInstance(id))
}

func (a *ApiService) StartInstance(c *gin.Context) {
	id, err := a.instanceId(c)
	if err != nil {
		jsonMsg(c, "instance_start", err)
		return
	}
	jsonMsg(c, "instance_start", a.orchestrator.StartInstance(id))
}

func (a *ApiService) StopInstance(c *gin.Context) {
	id, err := a.instanceId(c)
	if err != nil {
		jsonMsg(c, "instance_stop", err)
		return
	}
	jsonMsg(c, "instance_stop", a.orchestrator.StopInstance(id))
}

func (a *ApiService) StopAll(c *gin.Context) {
	go a.orchestrator.StopAll()
	jsonMsg(c, "stopall", nil)
}

func (a *ApiService) UpdateKeys(c *gin.Context) {
	privateKey := c.Request.FormValue("privateKey")
	publicKey := c.Request.FormValue("publicKey")
	jsonMsg(c, "keys_update", a.orchestrator.UpdateCredentials(privateKey, publicKey))
}

func (a *ApiService) GenerateKeys(c *gin.Context) {
	creds, err := a.orchestrator.GenerateCredentials()
	if err != nil {
		jsonMsg(c, "keys_generate", err)
		return
	}
	jsonObj(c, map[string]string{
		"privateKey": creds.PrivateKey,
		"publicKey":  creds.PublicKey,
	}, nil)
}

func (a *ApiService) ReloadServers(c *gin.Context) {
	a.orchestrator.RequestDirectoryReload()
	jsonMsg(c, "reload", nil)
}

func (a *ApiService) Login(c *gin.Context) {
	remoteIP := getRemoteIp(c)
	user, err := a.UserService.Login(c.Request.FormValue("user"), c.Request.FormValue("pass"))
	if err != nil {
		logger.Warningf("wrong credentials from %s", remoteIP)
		jsonMsg(c, "", err)
		return
	}

	sessionMaxAge, err := a.SettingService.GetSessionMaxAge()
	if err != nil {
		logger.Infof("Unable to get session's max age from DB")
	}

	err = SetLoginUser(c, user.Username, sessionMaxAge)
	if err == nil {
		logger.Info("user ", user.Username, " login success")
	} else {
		logger.Warning("login failed: ", err)
	}

	jsonMsg(c, "", nil)
}

func (a *ApiService) ChangePass(c *gin.Context) {
	oldPass := c.Request.FormValue("oldPass")
	newUsername := c.Request.FormValue("newUsername")
	newPass := c.Request.FormValue("newPass")

	user, err := a.UserService.GetFirstUser()
	if err != nil {
		jsonMsg(c, "", err)
		return
	}
	if user.Password != oldPass {
		jsonMsg(c, "", common.NewError("wrong password"))
		return
	}
	err = a.UserService.UpdateFirstUser(newUsername, newPass)
	if err == nil {
		logger.Info("change user credentials success")
		jsonMsg(c, "save", nil)
	} else {
		logger.Warning("change user credentials failed:", err)
		jsonMsg(c, "", err)
	}
}

func (a *ApiService) Save(c *gin.Context) {
	key := c.Request.FormValue("key")
	value := c.Request.FormValue("value")
	jsonMsg(c, "save", a.SettingService.Update(key, value))
}

func (a *ApiService) RestartApp(c *gin.Context) {
	err := a.PanelService.RestartPanel(3 * time.Second)
	jsonMsg(c, "restartApp", err)
}

func (a *ApiService) Logout(c *gin.Context) {
	loginUser := GetLoginUser(c)
	if loginUser != "" {
		logger.Infof("user %s logout", loginUser)
	}
	ClearSession(c)
	jsonMsg(c, "", nil)
}
