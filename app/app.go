package app

import (
	"context"
	"encoding/json"
	"log"
	"os"

	"github.com/wiresocks/wiresocks-ui/config"
	"github.com/wiresocks/wiresocks-ui/cronjob"
	"github.com/wiresocks/wiresocks-ui/database"
	"github.com/wiresocks/wiresocks-ui/database/model"
	"github.com/wiresocks/wiresocks-ui/logger"
	"github.com/wiresocks/wiresocks-ui/service"
	"github.com/wiresocks/wiresocks-ui/telegram"
	"github.com/wiresocks/wiresocks-ui/web"

	"github.com/op/go-logging"
)

type APP struct {
	service.SettingService

	registry     *service.Registry
	bridge       *service.EventBridge
	supervisor   *service.ProcessSupervisor
	orchestrator *service.Orchestrator
	presenter    *service.Presenter
	watchdog     *service.Watchdog
	webServer    *web.Server
	cronJob      *cronjob.CronJob

	telegramConfig *telegram.Config
	isBotStarted   bool
	botCancel      context.CancelFunc
}

func NewApp() *APP {
	return &APP{}
}

func (a *APP) Init() error {
	log.Printf("%v %v", config.GetName(), config.GetVersion())

	a.initLog()

	err := database.InitDB(config.GetDBPath())
	if err != nil {
		return err
	}

	a.initTelegramConfig()

	// Init Setting
	a.SettingService.GetAllSetting()

	a.registry = service.NewRegistry()
	a.bridge = service.NewEventBridge()
	a.supervisor = service.NewProcessSupervisor(a.registry)
	fetcher := service.NewDirectoryFetcher(config.GetCachePath())
	a.orchestrator = service.NewOrchestrator(a.registry, a.supervisor, fetcher, a.bridge, &a.SettingService)
	a.presenter = service.NewPresenter(a.bridge)
	a.watchdog = service.NewWatchdog(a.registry, a.supervisor, service.NewUsageSampler(), a.bridge)

	a.cronJob = cronjob.NewCronJob()
	a.webServer = web.NewServer(a.orchestrator, a.presenter, &a.SettingService)

	service.SweepTempDir()

	return nil
}

func (a *APP) Start() error {
	loc, err := a.SettingService.GetTimeLocation()
	if err != nil {
		return err
	}

	err = a.cronJob.Start(loc, a.orchestrator)
	if err != nil {
		return err
	}

	err = a.webServer.Start()
	if err != nil {
		return err
	}

	a.presenter.Start()
	a.watchdog.Start()

	restartIds, err := a.orchestrator.LoadState()
	if err != nil {
		return err
	}

	a.orchestrator.RequestDirectoryReload()

	autoStart, err := a.SettingService.GetAutoStart()
	if err != nil {
		logger.Warning("unable to read autoStart setting: ", err)
		autoStart = true
	}
	if autoStart {
		a.orchestrator.AutoRestart(restartIds)
	}

	if a.telegramConfig != nil && a.telegramConfig.Enabled && !a.isBotStarted {
		ctx, cancel := context.WithCancel(context.Background())
		a.botCancel = cancel
		go telegram.Start(ctx, a.telegramConfig, a)
		a.isBotStarted = true
	}

	return nil
}

func (a *APP) Stop() {
	a.cronJob.Stop()
	a.watchdog.Stop()
	if a.isBotStarted {
		if a.botCancel != nil {
			a.botCancel()
		}
		telegram.Stop()
		a.isBotStarted = false
	}
	err := a.webServer.Stop()
	if err != nil {
		logger.Warning("stop Web Server err:", err)
	}
	a.orchestrator.Shutdown()
	a.presenter.Stop()
	database.CloseDB()
}

func (a *APP) initLog() {
	switch config.GetLogLevel() {
	case config.Debug:
		logger.InitLogger(logging.DEBUG)
	case config.Info:
		logger.InitLogger(logging.INFO)
	case config.Warn:
		logger.InitLogger(logging.WARNING)
	case config.Error:
		logger.InitLogger(logging.ERROR)
	default:
		log.Fatal("unknown log level:", config.GetLogLevel())
	}
}

func (a *APP) initTelegramConfig() {
	file, err := os.ReadFile(config.GetTelegramConfigPath())
	if err != nil {
		if os.IsNotExist(err) {
			logger.Info("telegram config not found, Telegram bot is disabled.")
			return
		}
		logger.Warning("Error reading telegram config:", err)
		return
	}

	var cfg telegram.Config
	if err := json.Unmarshal(file, &cfg); err != nil {
		logger.Warning("Error unmarshalling telegram config:", err)
		return
	}
	a.telegramConfig = &cfg
}

func (a *APP) RestartApp() {
	a.Stop()
	err := a.Init()
	if err != nil {
		logger.Error("Error re-initializing app:", err)
		os.Exit(1)
	}
	err = a.Start()
	if err != nil {
		logger.Error("Error re-starting app:", err)
		os.Exit(1)
	}
}

// The methods below satisfy telegram.AppServices.

func (a *APP) ListInstances() []model.ProxyInstance {
	return a.orchestrator.Instances()
}

func (a *APP) AddProxy(selection string, port int) (model.ProxyInstance, error) {
	return a.orchestrator.AddInstance(selection, port)
}

func (a *APP) RemoveProxy(id uint) error {
	return a.orchestrator.RemoveInstance(id)
}

func (a *APP) StartProxy(id uint) error {
	return a.orchestrator.StartInstance(id)
}

func (a *APP) StopProxy(id uint) error {
	return a.orchestrator.StopInstance(id)
}

func (a *APP) StopAllProxies() {
	go a.orchestrator.StopAll()
}

func (a *APP) ReloadServers() {
	a.orchestrator.RequestDirectoryReload()
}

func (a *APP) RenderedConfig(id uint) (string, error) {
	return a.orchestrator.RenderedConfig(id)
}

func (a *APP) CountryOptions() []string {
	return a.orchestrator.CountryOptions()
}

func (a *APP) StatusText() string {
	a.presenter.Drain()
	return a.presenter.Snapshot().StatusText
}

func (a *APP) GetLogs(count int, level string) []string {
	return logger.GetLogs(count, level)
}
