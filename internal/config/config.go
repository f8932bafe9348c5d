package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel          string        `mapstructure:"log_level"`
	LogFormat         string        `mapstructure:"log_format"`
	LogFile           string        `mapstructure:"log_file"`
	LogMaxSizeMB      int           `mapstructure:"log_max_size_mb"`
	LogMaxBackups     int           `mapstructure:"log_max_backups"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	FrameRate         int           `mapstructure:"frame_rate"`
	HealthLogInterval time.Duration `mapstructure:"health_log_interval"`

	Discovery  Discovery  `mapstructure:"discovery"`
	Content    Content    `mapstructure:"content"`
	Surface    Surface    `mapstructure:"surface"`
	Keys       Keys       `mapstructure:"keys"`
	Forwarding Forwarding `mapstructure:"forwarding"`
}

type Discovery struct {
	ContentService      string        `mapstructure:"content_service"`
	ControlService      string        `mapstructure:"control_service"`
	Domain              string        `mapstructure:"domain"`
	RebrowseInterval    time.Duration `mapstructure:"rebrowse_interval"`
	StaticContentServer string        `mapstructure:"static_content_server"`
	StaticControlSink   string        `mapstructure:"static_control_sink"`
}

type Content struct {
	InterfaceFile  string        `mapstructure:"interface_file"`
	DataFolders    []string      `mapstructure:"data_folders"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	PreviewBytes   int64         `mapstructure:"preview_bytes"`
	MaxBytes       int64         `mapstructure:"max_bytes"`
	LoadWorkers    int           `mapstructure:"load_workers"`
}

type Surface struct {
	Width  int `mapstructure:"width"`
	Height int `mapstructure:"height"`
}

type Keys struct {
	Advance int `mapstructure:"advance"`
	Reset   int `mapstructure:"reset"`
}

// Forwarding lists static forwarding devices (osc://host:port, ws://..., wss://...).
type Forwarding struct {
	Devices []string `mapstructure:"devices"`
}

// LegacyDeviceEnv holds a space separated device list, appended to
// forwarding.devices.
const LegacyDeviceEnv = "P3D_DEVICE"

func Default() *Config {
	return &Config{
		LogLevel:          "info",
		LogFormat:         "text",
		LogMaxSizeMB:      10,
		LogMaxBackups:     3,
		IdleTimeout:       3 * time.Minute,
		FrameRate:         30,
		HealthLogInterval: time.Minute,
		Discovery: Discovery{
			ContentService: "_p3d_http._tcp",
			ControlService: "_p3d_osc._udp",
			Domain:         "local",
		},
		Content: Content{
			InterfaceFile:  "interface.p3d",
			DataFolders:    []string{dataDir(), "."},
			RequestTimeout: 30 * time.Second,
			PreviewBytes:   64 << 10,
			MaxBytes:       64 << 20,
			LoadWorkers:    2,
		},
		Surface: Surface{Width: 2048, Height: 1536},
		Keys:    Keys{Advance: 0x20, Reset: 0xFF50},
	}
}

// Loader reads the config file and environment into a Config and can watch
// the file for changes.
type Loader struct {
	v *viper.Viper
}

// Load reads cfgFile, or kiosk.yaml from the config directory or the working
// directory when cfgFile is empty. A missing file yields the defaults.
func Load(cfgFile string) (*Config, *Loader, error) {
	v := viper.New()
	setDefaults(v, Default())

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("kiosk")
		v.SetConfigType("yaml")
		v.AddConfigPath(configDir())
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("P3D")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, nil, err
		}
	}

	l := &Loader{v: v}
	cfg, err := l.decode()
	if err != nil {
		return nil, nil, err
	}
	return cfg, l, nil
}

// File returns the config file in use, or "" when running on defaults.
func (l *Loader) File() string {
	return l.v.ConfigFileUsed()
}

// Watch calls onChange with the re-read config whenever the file changes.
// Decode failures are reported through onError and the old config stays in
// effect. It does nothing when no file was read.
func (l *Loader) Watch(onChange func(*Config), onError func(error)) {
	if l.File() == "" {
		return
	}
	l.v.OnConfigChange(func(fsnotify.Event) {
		cfg, err := l.decode()
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		cfg.Validate()
		onChange(cfg)
	})
	l.v.WatchConfig()
}

func (l *Loader) decode() (*Config, error) {
	cfg := Default()
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if extra := strings.Fields(os.Getenv(LegacyDeviceEnv)); len(extra) > 0 {
		cfg.Forwarding.Devices = append(cfg.Forwarding.Devices, extra...)
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, d *Config) {
	for key, val := range flatten("", d.settings()) {
		v.SetDefault(key, val)
	}
}

func flatten(prefix string, m map[string]any) map[string]any {
	out := make(map[string]any)
	for k, val := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := val.(map[string]any); ok {
			for sk, sv := range flatten(key, sub) {
				out[sk] = sv
			}
			continue
		}
		out[key] = val
	}
	return out
}

// settings returns the config as nested maps keyed like the config file,
// with durations rendered as strings.
func (c *Config) settings() map[string]any {
	return map[string]any{
		"log_level":           c.LogLevel,
		"log_format":          c.LogFormat,
		"log_file":            c.LogFile,
		"log_max_size_mb":     c.LogMaxSizeMB,
		"log_max_backups":     c.LogMaxBackups,
		"idle_timeout":        c.IdleTimeout.String(),
		"frame_rate":          c.FrameRate,
		"health_log_interval": c.HealthLogInterval.String(),
		"discovery": map[string]any{
			"content_service":       c.Discovery.ContentService,
			"control_service":       c.Discovery.ControlService,
			"domain":                c.Discovery.Domain,
			"rebrowse_interval":     c.Discovery.RebrowseInterval.String(),
			"static_content_server": c.Discovery.StaticContentServer,
			"static_control_sink":   c.Discovery.StaticControlSink,
		},
		"content": map[string]any{
			"interface_file":  c.Content.InterfaceFile,
			"data_folders":    c.Content.DataFolders,
			"request_timeout": c.Content.RequestTimeout.String(),
			"preview_bytes":   c.Content.PreviewBytes,
			"max_bytes":       c.Content.MaxBytes,
			"load_workers":    c.Content.LoadWorkers,
		},
		"surface": map[string]any{
			"width":  c.Surface.Width,
			"height": c.Surface.Height,
		},
		"keys": map[string]any{
			"advance": c.Keys.Advance,
			"reset":   c.Keys.Reset,
		},
		"forwarding": map[string]any{
			"devices": c.Forwarding.Devices,
		},
	}
}

// YAML renders the effective config in config file form.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c.settings())
}

// ConfigDir is where the service looks for kiosk.yaml.
func ConfigDir() string {
	return configDir()
}

func configDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("ProgramData"), "P3DKiosk")
	case "darwin":
		return "/Library/Application Support/P3DKiosk"
	default:
		return "/etc/p3d-kiosk"
	}
}

func dataDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("ProgramData"), "P3DKiosk", "data")
	case "darwin":
		return "/Library/Application Support/P3DKiosk/data"
	default:
		return "/var/lib/p3d-kiosk"
	}
}
