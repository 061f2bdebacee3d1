package cmd

import (
	"fmt"

	"github.com/wiresocks/wiresocks-ui/config"
	"github.com/wiresocks/wiresocks-ui/database"
	"github.com/wiresocks/wiresocks-ui/service"
)

// openDB prepares the database for the one-shot maintenance commands.
func openDB() bool {
	if err := database.InitDB(config.GetDBPath()); err != nil {
		fmt.Println("open database failed:", err)
		return false
	}
	return true
}

func resetAdmin() {
	if !openDB() {
		return
	}
	userService := service.UserService{}
	if err := userService.UpdateFirstUser("admin", "admin"); err != nil {
		fmt.Println("reset admin credentials failed:", err)
		return
	}
	fmt.Println("admin credentials reset to admin/admin")
}

func updateAdmin(username string, password string) {
	if !openDB() {
		return
	}
	userService := service.UserService{}
	if err := userService.UpdateFirstUser(username, password); err != nil {
		fmt.Println("update admin credentials failed:", err)
		return
	}
	fmt.Println("admin credentials updated")
}

func showAdmin() {
	if !openDB() {
		return
	}
	userService := service.UserService{}
	user, err := userService.GetFirstUser()
	if err != nil {
		fmt.Println("read admin credentials failed:", err)
		return
	}
	fmt.Println("Admin credentials:")
	fmt.Println("\tUsername:\t", user.Username)
	fmt.Println("\tPassword:\t", user.Password)
}
