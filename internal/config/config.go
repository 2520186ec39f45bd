package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/liao/chat-export/internal/chat"
	"github.com/liao/chat-export/internal/export"
	"github.com/liao/chat-export/internal/parser"
)

// FormatVectors 向量导出不是文件格式，单独处理
const FormatVectors = "vectors"

type Config struct {
	Parse    ParseConfig    `mapstructure:"parse"`
	Subjects SubjectsConfig `mapstructure:"subjects"`
	Export   ExportConfig   `mapstructure:"export"`
	Gemini   GeminiConfig   `mapstructure:"gemini"`
	Log      LogConfig      `mapstructure:"log"`
}

type ParseConfig struct {
	Input            string   `mapstructure:"input"`  // auto / text / html / enc
	Format           string   `mapstructure:"format"` // auto / android / ios / custom
	HeaderPattern    string   `mapstructure:"header_pattern"`
	DateLayouts      []string `mapstructure:"date_layouts"`
	TimeLayouts      []string `mapstructure:"time_layouts"`
	DayFirst         bool     `mapstructure:"day_first"`
	Timezone         string   `mapstructure:"timezone"`
	Turns            bool     `mapstructure:"turns"`
	JoinSeparator    string   `mapstructure:"join_separator"`
	DropPlaceholders bool     `mapstructure:"drop_placeholders"`
	Placeholders     []string `mapstructure:"placeholders"`
	DecryptKey       string   `mapstructure:"decrypt_key"`
}

type SubjectsConfig struct {
	Main      string   `mapstructure:"main"`
	InferMain bool     `mapstructure:"infer_main"`
	Rename    []string `mapstructure:"rename"` // "旧名=新名"；viper 会把 map 的键转成小写，所以用列表
}

// Rename 一条改名规则
type Rename struct {
	Old string
	New string
}

// ParseRename 解析 "旧名=新名"
func ParseRename(s string) (Rename, error) {
	old, new, ok := strings.Cut(s, "=")
	old, new = strings.TrimSpace(old), strings.TrimSpace(new)
	if !ok || old == "" || new == "" {
		return Rename{}, fmt.Errorf("invalid rename %q, want old=new", s)
	}
	return Rename{Old: old, New: new}, nil
}

// Renames 按配置顺序返回改名规则
func (s SubjectsConfig) Renames() ([]Rename, error) {
	out := make([]Rename, 0, len(s.Rename))
	for _, r := range s.Rename {
		rn, err := ParseRename(r)
		if err != nil {
			return nil, err
		}
		out = append(out, rn)
	}
	return out, nil
}

type ExportConfig struct {
	OutputDir          string   `mapstructure:"output_dir"`
	Formats            []string `mapstructure:"formats"`
	Compress           bool     `mapstructure:"compress"`
	ConversationGapMin int      `mapstructure:"conversation_gap_min"`
	VectorsDir         string   `mapstructure:"vectors_dir"`
}

type GeminiConfig struct {
	APIKey         string `mapstructure:"api_key"`
	EmbeddingModel string `mapstructure:"embedding_model"`
	RPMLimit       int    `mapstructure:"rpm_limit"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("parse.input", chat.InputAuto)
	v.SetDefault("parse.format", parser.FormatAuto)
	v.SetDefault("parse.timezone", "UTC")
	v.SetDefault("parse.turns", true)
	v.SetDefault("parse.join_separator", parser.DefaultSeparator)
	v.SetDefault("parse.drop_placeholders", false)
	v.SetDefault("subjects.infer_main", true)
	v.SetDefault("export.output_dir", "./out")
	v.SetDefault("export.formats", []string{export.FormatCSV, export.FormatJSONL})
	v.SetDefault("export.conversation_gap_min", 0)
	v.SetDefault("gemini.embedding_model", "gemini-embedding-001")
	v.SetDefault("gemini.rpm_limit", 60)
	v.SetDefault("log.level", "info")
}

// Load 读取配置文件；path 为空时只用默认值和环境变量
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	// 环境变量覆盖
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		v.Set("gemini.api_key", key)
	}
	if key := os.Getenv("DECRYPT_KEY"); key != "" {
		v.Set("parse.decrypt_key", key)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate 检查互相关联的字段
func (c *Config) Validate() error {
	var errs []error

	switch c.Parse.Format {
	case parser.FormatAuto, parser.FormatAndroid, parser.FormatIOS:
	case parser.FormatCustom:
		if c.Parse.HeaderPattern == "" {
			errs = append(errs, errors.New("parse.header_pattern is required when parse.format is custom"))
		} else if _, err := parser.CustomPattern(c.Parse.HeaderPattern); err != nil {
			errs = append(errs, err)
		}
	default:
		errs = append(errs, fmt.Errorf("parse.format: unknown value %q", c.Parse.Format))
	}

	switch c.Parse.Input {
	case chat.InputAuto, chat.InputText, chat.InputHTML, chat.InputEnc:
	default:
		errs = append(errs, fmt.Errorf("parse.input: unknown value %q", c.Parse.Input))
	}

	if _, err := time.LoadLocation(c.Parse.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("parse.timezone: %w", err))
	}

	if _, err := c.Subjects.Renames(); err != nil {
		errs = append(errs, fmt.Errorf("subjects.rename: %w", err))
	}

	if c.Export.ConversationGapMin < 0 {
		errs = append(errs, errors.New("export.conversation_gap_min must not be negative"))
	}

	for _, f := range c.Export.Formats {
		if f == FormatVectors {
			if c.Gemini.APIKey == "" {
				errs = append(errs, errors.New("gemini.api_key is required for vectors export (set in config or GEMINI_API_KEY env)"))
			}
			continue
		}
		if !export.IsFormat(f) {
			errs = append(errs, fmt.Errorf("export.formats: unknown format %q", f))
		}
	}

	return errors.Join(errs...)
}

// ChatOptions 转换成加载聊天记录的选项
func (c *Config) ChatOptions() (chat.Options, error) {
	loc, err := time.LoadLocation(c.Parse.Timezone)
	if err != nil {
		return chat.Options{}, fmt.Errorf("load timezone: %w", err)
	}

	opts := chat.DefaultOptions()
	opts.Input = c.Parse.Input
	opts.DecryptKey = c.Parse.DecryptKey
	opts.Turns = c.Parse.Turns
	opts.Separator = c.Parse.JoinSeparator
	opts.InferMain = c.Subjects.InferMain
	opts.Parse = parser.Options{
		Format:      c.Parse.Format,
		HeaderRegex: c.Parse.HeaderPattern,
		DateLayouts: c.Parse.DateLayouts,
		TimeLayouts: c.Parse.TimeLayouts,
		DayFirst:    c.Parse.DayFirst,
		Location:    loc,
	}
	if c.Parse.DropPlaceholders {
		opts.Placeholders = c.Parse.Placeholders
		if len(opts.Placeholders) == 0 {
			opts.Placeholders = parser.DefaultPlaceholders
		}
	}
	return opts, nil
}

// ExportOptions 导出选项
func (c *Config) ExportOptions() export.Options {
	return export.Options{Gap: time.Duration(c.Export.ConversationGapMin) * time.Minute}
}
