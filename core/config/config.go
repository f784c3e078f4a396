package config

import (
	_ "embed"
	"path"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"sigs.k8s.io/yaml"
)

var (
	//go:embed default/config.yaml
	defaultConfigData []byte
)

const (
	ConfigurationName = "config.yaml"
)

// Color modes.
const (
	ColorAlways = "always"
	ColorAuto   = "auto"
	ColorNever  = "never"
)

type Configuration struct {
	Prompt       string `json:"prompt" validate:"required"`
	Color        string `json:"color" validate:"oneof=always auto never"`
	HistoryFile  string `json:"history_file"`
	HistoryLimit int    `json:"history_limit" validate:"gte=0"`
	DefaultPath  string `json:"default_path" validate:"required"`
	LoginScript  string `json:"login_script"`

	Env map[string]string `json:"env" validate:"dive,keys,required,endkeys"`

	RestrictedCommands []string `json:"restricted_commands" validate:"unique,dive,required"`
}

// Validate the configuration for basic semantic errors.
func (c *Configuration) Validate() error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		return name
	})

	return validate.Struct(c)
}

// HistoryPath returns the absolute path of the history file for a user with
// the given home directory, or the empty string if history is disabled.
func (c *Configuration) HistoryPath(home string) string {
	return resolveHome(home, c.HistoryFile)
}

// LoginScriptPath returns the absolute path of the login script for a user
// with the given home directory, or the empty string if there is none.
func (c *Configuration) LoginScriptPath(home string) string {
	return resolveHome(home, c.LoginScript)
}

func resolveHome(home, name string) string {
	switch {
	case name == "":
		return ""
	case path.IsAbs(name):
		return path.Clean(name)
	default:
		return path.Join(home, name)
	}
}

// IsRestricted reports whether name is refused by restricted shells on top
// of the built in rules.
func (c *Configuration) IsRestricted(name string) bool {
	for _, cmd := range c.RestrictedCommands {
		if cmd == name {
			return true
		}
	}
	return false
}

// Default returns the built in configuration.
func Default() *Configuration {
	return defaultConfig()
}

func defaultConfig() *Configuration {
	var out Configuration
	if err := yaml.UnmarshalStrict(defaultConfigData, &out); err != nil {
		panic(err)
	}
	return &out
}
