package service

import (
	"strconv"
	"time"

	"github.com/wiresocks/wiresocks-ui/database"
	"github.com/wiresocks/wiresocks-ui/database/model"
	"github.com/wiresocks/wiresocks-ui/util"
	"github.com/wiresocks/wiresocks-ui/util/common"
)

var defaultValueMap = map[string]string{
	"webListen":     "",
	"webPort":       "2096",
	"secret":        "",
	"apiEndpoint":   "https://api.surfshark.com/v4/server/clusters/generic",
	"logLevel":      "info",
	"theme":         "light",
	"autoStart":     "true",
	"wgPrivateKey":  "",
	"wgPublicKey":   "",
	"sessionMaxAge": "60",
	"timeLocation":  "Local",
}

// SettingService persists flat key/value settings, including the user's
// credentials.
type SettingService struct{}

func (s *SettingService) GetAllSetting() (*map[string]string, error) {
	db := database.GetDB()
	settings := make(map[string]string, len(defaultValueMap))
	for k, v := range defaultValueMap {
		settings[k] = v
	}
	var rows []model.Setting
	if err := db.Model(&model.Setting{}).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		if _, ok := defaultValueMap[row.Key]; ok {
			settings[row.Key] = row.Value
		}
	}
	return &settings, nil
}

func (s *SettingService) getSetting(key string) (string, error) {
	db := database.GetDB()
	var setting model.Setting
	err := db.Model(&model.Setting{}).Where("key = ?", key).First(&setting).Error
	if database.IsNotFound(err) {
		value, ok := defaultValueMap[key]
		if !ok {
			return "", common.NewErrorf("unknown setting key: %s", key)
		}
		return value, nil
	}
	if err != nil {
		return "", err
	}
	return setting.Value, nil
}

func (s *SettingService) saveSetting(key string, value string) error {
	db := database.GetDB()
	var setting model.Setting
	err := db.Model(&model.Setting{}).Where("key = ?", key).First(&setting).Error
	if database.IsNotFound(err) {
		return db.Create(&model.Setting{Key: key, Value: value}).Error
	}
	if err != nil {
		return err
	}
	setting.Value = value
	return db.Save(&setting).Error
}

func (s *SettingService) getInt(key string) (int, error) {
	value, err := s.getSetting(key)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(value)
}

func (s *SettingService) getBool(key string) (bool, error) {
	value, err := s.getSetting(key)
	if err != nil {
		return false, err
	}
	return strconv.ParseBool(value)
}

func (s *SettingService) GetApiEndpoint() (string, error) {
	return s.getSetting("apiEndpoint")
}

func (s *SettingService) GetLogLevel() (string, error) {
	return s.getSetting("logLevel")
}

func (s *SettingService) GetTheme() (string, error) {
	return s.getSetting("theme")
}

func (s *SettingService) GetAutoStart() (bool, error) {
	return s.getBool("autoStart")
}

func (s *SettingService) GetWebListen() (string, error) {
	return s.getSetting("webListen")
}

func (s *SettingService) GetWebPort() (int, error) {
	return s.getInt("webPort")
}

func (s *SettingService) GetSecret() ([]byte, error) {
	secret, err := s.getSetting("secret")
	if err != nil {
		return nil, err
	}
	if secret == "" {
		creds, err := util.GenerateCredentials()
		if err != nil {
			return nil, err
		}
		secret = creds.PrivateKey
		if err := s.saveSetting("secret", secret); err != nil {
			return nil, err
		}
	}
	return []byte(secret), nil
}

func (s *SettingService) GetCredentials() (util.Credentials, error) {
	priv, err := s.getSetting("wgPrivateKey")
	if err != nil {
		return util.Credentials{}, err
	}
	pub, err := s.getSetting("wgPublicKey")
	if err != nil {
		return util.Credentials{}, err
	}
	return util.Credentials{PrivateKey: priv, PublicKey: pub}, nil
}

func (s *SettingService) SaveCredentials(creds util.Credentials) error {
	if err := s.saveSetting("wgPrivateKey", creds.PrivateKey); err != nil {
		return err
	}
	return s.saveSetting("wgPublicKey", creds.PublicKey)
}

func (s *SettingService) GetSessionMaxAge() (int, error) {
	return s.getInt("sessionMaxAge")
}

func (s *SettingService) GetTimeLocation() (*time.Location, error) {
	name, err := s.getSetting("timeLocation")
	if err != nil {
		return nil, err
	}
	return time.LoadLocation(name)
}

func (s *SettingService) Update(key string, value string) error {
	if _, ok := defaultValueMap[key]; !ok {
		return common.NewErrorf("unknown setting key: %s", key)
	}
	return s.saveSetting(key, value)
}

// UserService backs the web login and the admin CLI.
type UserService struct{}

func (s *UserService) Login(username string, password string) (*model.User, error) {
	db := database.GetDB()
	var user model.User
	err := db.Model(&model.User{}).Where("username = ? and password = ?", username, password).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *UserService) GetFirstUser() (*model.User, error) {
	db := database.GetDB()
	var user model.User
	err := db.Model(&model.User{}).First(&user).Error
	return &user, err
}

func (s *UserService) UpdateFirstUser(username string, password string) error {
	if username == "" {
		return common.NewError("username can not be empty")
	}
	if password == "" {
		return common.NewError("password can not be empty")
	}
	db := database.GetDB()
	var user model.User
	err := db.Model(&model.User{}).First(&user).Error
	if database.IsNotFound(err) {
		user.Username = username
		user.Password = password
		return db.Model(&model.User{}).Create(&user).Error
	} else if err != nil {
		return err
	}
	user.Username = username
	user.Password = password
	return db.Save(&user).Error
}
