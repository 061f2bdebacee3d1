package model

import (
	"encoding/json"
	"time"
)

type Setting struct {
	Id    uint   `json:"id" gorm:"primaryKey;autoIncrement"`
	Key   string `json:"key" gorm:"uniqueIndex"`
	Value string `json:"value"`
}

type User struct {
	Id       uint   `json:"id" gorm:"primaryKey;autoIncrement"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type ProxyStatus string

const (
	Stopped  ProxyStatus = "Stopped"
	Starting ProxyStatus = "Starting"
	Running  ProxyStatus = "Running"
	Error    ProxyStatus = "Error"
)

// ProxyInstance is one configured SOCKS5 endpoint. The primary key is its
// identity everywhere: the process map, the API and the bot all refer to
// instances by Id, never by list position.
type ProxyInstance struct {
	Id                 uint            `json:"id" gorm:"primaryKey;autoIncrement"`
	Country            string          `json:"country"`
	Location           string          `json:"location"`
	Port               int             `json:"port" gorm:"uniqueIndex"`
	Server             json.RawMessage `json:"server"`
	Status             ProxyStatus     `json:"status"`
	AutoRestart        bool            `json:"autoRestart"`
	ConnectionAttempts int             `json:"connectionAttempts"`
	CreatedAt          time.Time       `json:"createdAt"`
	StartTime          *time.Time      `json:"startTime,omitempty" gorm:"-"`
}

// ServerRecord is one upstream server descriptor from the directory API.
// Unknown fields of the upstream payload are dropped on decode; these are
// the ones selection and config rendering need.
type ServerRecord struct {
	Country        string  `json:"country"`
	Location       string  `json:"location"`
	PubKey         string  `json:"pubKey"`
	ConnectionName string  `json:"connectionName"`
	Load           float64 `json:"load"`
}

func (s ServerRecord) Marshal() (json.RawMessage, error) {
	return json.Marshal(s)
}

func UnmarshalServer(raw json.RawMessage) (ServerRecord, error) {
	var s ServerRecord
	err := json.Unmarshal(raw, &s)
	return s, err
}
