package util

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/spf13/viper"
)

// ConfigurationFileDirectory is set by the -config.dir flag.
var ConfigurationFileDirectory DirectoryValueType

// DirectoryValueType is a flag.Value holding a directory.
type DirectoryValueType string

func (s *DirectoryValueType) Set(value string) error {
	*s = DirectoryValueType(value)
	return nil
}

func (s *DirectoryValueType) String() string { return string(*s) }

type Configuration interface {
	GetString(key string) string
	GetBool(key string) bool
	GetInt(key string) int
	GetStringSlice(key string) []string
	SetDefault(key string, value interface{})
}

// ConfigSearchPath lists the directories searched for hbck.toml, in order.
func ConfigSearchPath() []string {
	var dirs []string
	if dir := ResolvePath(ConfigurationFileDirectory.String()); dir != "" {
		dirs = append(dirs, dir)
	}
	return append(dirs, ".", "$HOME/.hbck", "/etc/hbck")
}

// LoadConfiguration merges <name>.toml into the global viper instance. A
// missing file is not an error, every key has a default.
func LoadConfiguration(name string) (loaded bool, err error) {
	viper.SetConfigName(name)
	for _, dir := range ConfigSearchPath() {
		viper.AddConfigPath(dir)
	}
	if err := viper.MergeInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			glog.V(1).Infof("no %s.toml in %v, using defaults", name, ConfigSearchPath())
			return false, nil
		}
		return false, fmt.Errorf("read %s.toml: %w", name, err)
	}
	glog.V(1).Infof("loaded %s", viper.ConfigFileUsed())
	return true, nil
}

// ViperProxy serializes access to the global viper, which is not safe for
// concurrent use.
type ViperProxy struct {
	*viper.Viper
	sync.Mutex
}

var vp = &ViperProxy{}

func lockedGet[T any](vp *ViperProxy, get func(string) T, key string) T {
	vp.Lock()
	defer vp.Unlock()
	return get(key)
}

func (vp *ViperProxy) SetDefault(key string, value interface{}) {
	vp.Lock()
	defer vp.Unlock()
	vp.Viper.SetDefault(key, value)
}

func (vp *ViperProxy) GetString(key string) string { return lockedGet(vp, vp.Viper.GetString, key) }

func (vp *ViperProxy) GetBool(key string) bool { return lockedGet(vp, vp.Viper.GetBool, key) }

func (vp *ViperProxy) GetInt(key string) int { return lockedGet(vp, vp.Viper.GetInt, key) }

func (vp *ViperProxy) GetStringSlice(key string) []string {
	return lockedGet(vp, vp.Viper.GetStringSlice, key)
}

// GetViper returns the process configuration. Keys can be overridden from the
// environment, cluster.static.servers as HBCK_CLUSTER_STATIC_SERVERS.
func GetViper() *ViperProxy {
	vp.Lock()
	defer vp.Unlock()
	if vp.Viper == nil {
		vp.Viper = viper.GetViper()
		vp.Viper.SetEnvPrefix("hbck")
		vp.Viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		vp.Viper.AutomaticEnv()
	}
	return vp
}

// GetDuration reads a duration string such as "3s", falling back to def when
// the key is unset or does not parse.
func GetDuration(configuration Configuration, key string, def time.Duration) time.Duration {
	s := configuration.GetString(key)
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		glog.Warningf("parse %s=%q: %v, using %v", key, s, err, def)
		return def
	}
	return d
}

// ResolvePath expands a leading ~ to the home directory.
func ResolvePath(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
