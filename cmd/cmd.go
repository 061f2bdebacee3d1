package cmd

import (
	"flag"
	"fmt"
	"os"

	"github.com/wiresocks/wiresocks-ui/config"
	"github.com/wiresocks/wiresocks-ui/service"
)

func ParseCmd() {
	if len(os.Args) < 2 {
		showHelp()
		return
	}

	switch os.Args[1] {
	case "admin":
		adminCmd := flag.NewFlagSet("admin", flag.ExitOnError)
		reset := adminCmd.Bool("reset", false, "reset admin credentials to admin/admin")
		show := adminCmd.Bool("show", false, "show current admin credentials")
		username := adminCmd.String("username", "", "set admin username")
		password := adminCmd.String("password", "", "set admin password")
		adminCmd.Parse(os.Args[2:])

		switch {
		case *reset:
			resetAdmin()
		case *show:
			showAdmin()
		case *username != "" || *password != "":
			updateAdmin(*username, *password)
		default:
			adminCmd.Usage()
		}
	case "setting":
		settingCmd := flag.NewFlagSet("setting", flag.ExitOnError)
		port := settingCmd.Int("port", 0, "set web panel port")
		listen := settingCmd.String("listen", "", "set web panel listen address")
		settingCmd.Parse(os.Args[2:])
		updateSetting(*port, *listen)
	case "version":
		fmt.Println(config.GetVersion())
	default:
		showHelp()
	}
}

func updateSetting(port int, listen string) {
	if !openDB() {
		return
	}

	settingService := service.SettingService{}
	if port > 0 {
		err := settingService.Update("webPort", fmt.Sprint(port))
		if err != nil {
			fmt.Println("set port failed:", err)
		} else {
			fmt.Println("set port success")
		}
	}
	if listen != "" {
		err := settingService.Update("webListen", listen)
		if err != nil {
			fmt.Println("set listen address failed:", err)
		} else {
			fmt.Println("set listen address success")
		}
	}
}

func showHelp() {
	fmt.Printf("Usage: %s [command] [options]\n", os.Args[0])
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  admin    manage admin credentials (-reset | -show | -username -password)")
	fmt.Println("  setting  update panel settings (-port | -listen)")
	fmt.Println("  version  print version")
}
