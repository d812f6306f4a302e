package configure

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"reflect"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func checkErr(err error) {
	if err != nil {
		zap.S().Fatalw("config",
			"error", err,
		)
	}
}

func New() *Config {
	initLogging("info")

	config := viper.New()

	// Default config
	b, _ := json.Marshal(defaultConfig())
	tmp := viper.New()
	tmp.SetConfigType("json")
	checkErr(tmp.ReadConfig(bytes.NewReader(b)))
	checkErr(config.MergeConfigMap(tmp.AllSettings()))

	pflag.String("config", "config.yaml", "Config file location")
	pflag.Bool("noheader", false, "Disable the startup header")

	pflag.Parse()
	checkErr(config.BindPFlags(pflag.CommandLine))

	// File. A missing file falls back to the defaults above; a file that
	// exists but does not parse is fatal.
	config.SetConfigFile(config.GetString("config"))
	config.AddConfigPath(".")
	if err := config.MergeInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.Is(err, os.ErrNotExist) && !errors.As(err, &notFound) {
			checkErr(err)
		}
	}

	bindEnvs(config, Config{})

	// Environment
	config.AutomaticEnv()
	config.SetEnvPrefix("WI")
	config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config.AllowEmptyEnv(true)

	c := &Config{}
	checkErr(config.Unmarshal(&c))

	initLogging(c.Level)

	return c
}

func defaultConfig() Config {
	c := Config{
		Level:      "info",
		ConfigFile: "config.yaml",
	}

	c.Server.Host = "127.0.0.1"
	c.Server.Port = 3000

	c.Image.Formats = []string{"avif", "jpeg", "png"}
	c.Image.StorageFormat = "avif"
	c.Image.InputPath = "/tmp/wire-img/input"
	c.Image.OutputPath = "/tmp/wire-img/output"

	c.Ingest.QueueSize = 64

	c.Health.Bind = "0.0.0.0:9200"
	c.Monitoring.Bind = "0.0.0.0:9100"

	return c
}

func bindEnvs(config *viper.Viper, iface interface{}, parts ...string) {
	ifv := reflect.ValueOf(iface)
	ift := reflect.TypeOf(iface)
	for i := 0; i < ift.NumField(); i++ {
		v := ifv.Field(i)
		t := ift.Field(i)
		tv, ok := t.Tag.Lookup("mapstructure")
		if !ok {
			continue
		}
		switch v.Kind() {
		case reflect.Struct:
			bindEnvs(config, v.Interface(), append(parts, tv)...)
		default:
			_ = config.BindEnv(strings.Join(append(parts, tv), "."))
		}
	}
}

type Config struct {
	Level      string `mapstructure:"level" json:"level"`
	ConfigFile string `mapstructure:"config" json:"config"`
	NoHeader   bool   `mapstructure:"noheader" json:"noheader"`

	Server struct {
		Host string `mapstructure:"host" json:"host"`
		Port int    `mapstructure:"port" json:"port"`
	} `mapstructure:"server" json:"server"`

	Image struct {
		Formats       []string `mapstructure:"formats" json:"formats"`
		StorageFormat string   `mapstructure:"storage_format" json:"storage_format"`
		InputPath     string   `mapstructure:"input_path" json:"input_path"`
		OutputPath    string   `mapstructure:"output_path" json:"output_path"`
		ArchivePath   string   `mapstructure:"archive_path" json:"archive_path"`
	} `mapstructure:"image" json:"image"`

	Templates []TemplateConfig `mapstructure:"templates" json:"templates"`

	Ingest struct {
		DeleteOriginal bool `mapstructure:"delete_original" json:"delete_original"`
		ScanOnStart    bool `mapstructure:"scan_on_start" json:"scan_on_start"`
		QueueSize      int  `mapstructure:"queue_size" json:"queue_size"`
	} `mapstructure:"ingest" json:"ingest"`

	Health struct {
		Bind    string `mapstructure:"bind" json:"bind"`
		Enabled bool   `mapstructure:"enabled" json:"enabled"`
	} `mapstructure:"health" json:"health"`

	Monitoring struct {
		Bind    string `mapstructure:"bind" json:"bind"`
		Enabled bool   `mapstructure:"enabled" json:"enabled"`
		Labels  Labels `mapstructure:"labels" json:"labels"`
	} `mapstructure:"monitoring" json:"monitoring"`
}

type TemplateConfig struct {
	Location string `mapstructure:"location" json:"location"`
	Name     string `mapstructure:"name" json:"name"`
	Size     [2]int `mapstructure:"size" json:"size"`
	Format   string `mapstructure:"format" json:"format"`
}

type Labels []struct {
	Key   string `mapstructure:"key" json:"key"`
	Value string `mapstructure:"value" json:"value"`
}

func (l Labels) ToPrometheus() prometheus.Labels {
	mp := prometheus.Labels{}

	for _, v := range l {
		mp[v.Key] = v.Value
	}

	return mp
}
