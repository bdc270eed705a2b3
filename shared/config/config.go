package config

import (
	"fmt"
	"os"
	"path"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Public  Public
	private Private
}

type Public struct {
	Domus    Domus    `yaml:"domus"`
	Cascade  Cascade  `yaml:"cascade"`
	Messages Messages `yaml:"messages"`
	Render   Render   `yaml:"render"`
	HTTP     HTTP     `yaml:"http"`
	Log      Log      `yaml:"log"`
}

// Domus is the backend proxy every post, stream and take request goes through.
type Domus struct {
	BaseURL       string        `yaml:"base_url" validate:"required,url"`
	Timeout       time.Duration `yaml:"timeout"`
	RatePerSecond float64       `yaml:"rate_per_second"`
	Burst         int           `yaml:"burst"`
}

type Cascade struct {
	PageSize      int `yaml:"page_size"`
	ViewportSlots int `yaml:"viewport_slots"` // rows visible before the client reports its own viewport
}

type Messages struct {
	BoxChars int `yaml:"box_chars"` // characters that fit in the banner before cropping
}

type Render struct {
	LongTextThreshold int      `yaml:"long_text_threshold"` // textbox length above which text renders as a block
	Features          Features `yaml:"features"`
}

// Features switch post affordances on or off for the whole site.
type Features struct {
	Edit       bool `yaml:"edit"`
	Delete     bool `yaml:"delete"`
	Reply      bool `yaml:"reply"`
	ChildCount bool `yaml:"child_count"`
	ThreadLink bool `yaml:"thread_link"`
}

type HTTP struct {
	Port           string        `yaml:"port"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	SecureCookies  bool          `yaml:"secure_cookies"`
	SessionTTL     time.Duration `yaml:"session_ttl"`
	RateLimit      float64       `yaml:"rate_limit"` // requests per second per client IP
	RateBurst      int           `yaml:"rate_burst"`
}

type Log struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	JSON  bool   `yaml:"json"`
}

type Private struct {
	JwtKey string `yaml:"jwt_key" validate:"required"`
}

func (s *Config) JwtKey() string {
	return s.private.JwtKey
}

func (p *Public) applyDefaults() {
	if p.Domus.Timeout == 0 {
		p.Domus.Timeout = 10 * time.Second
	}
	if p.Domus.RatePerSecond == 0 {
		p.Domus.RatePerSecond = 20
	}
	if p.Domus.Burst == 0 {
		p.Domus.Burst = 40
	}
	if p.Cascade.PageSize == 0 {
		p.Cascade.PageSize = 20
	}
	if p.Cascade.ViewportSlots == 0 {
		p.Cascade.ViewportSlots = 5
	}
	if p.Messages.BoxChars == 0 {
		p.Messages.BoxChars = 160
	}
	if p.Render.LongTextThreshold == 0 {
		p.Render.LongTextThreshold = 200
	}
	if p.HTTP.Port == "" {
		p.HTTP.Port = "8081"
	}
	if p.HTTP.SessionTTL == 0 {
		p.HTTP.SessionTTL = 2 * time.Hour
	}
	if p.HTTP.RateLimit == 0 {
		p.HTTP.RateLimit = 10
	}
	if p.HTTP.RateBurst == 0 {
		p.HTTP.RateBurst = 50
	}
	if p.Log.Level == "" {
		p.Log.Level = "info"
	}
}

func loadPath(configPath string, output interface{}) error {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return fmt.Errorf("config file does not exist: %s", configPath)
	}
	configFile, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("can't read config file %s: %w", configPath, err)
	}
	if err := yaml.Unmarshal(configFile, output); err != nil {
		return fmt.Errorf("can't unmarshal config file %s: %w", configPath, err)
	}
	return nil
}

// Load reads public.yaml and private.yaml from configFolder, fills defaults and
// validates required fields.
func Load(configFolder string) (*Config, error) {
	var public Public
	if err := loadPath(path.Join(configFolder, "public.yaml"), &public); err != nil {
		return nil, err
	}
	var private Private
	if err := loadPath(path.Join(configFolder, "private.yaml"), &private); err != nil {
		return nil, err
	}
	public.applyDefaults()

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(&public); err != nil {
		return nil, fmt.Errorf("invalid public config: %w", err)
	}
	if err := validate.Struct(&private); err != nil {
		return nil, fmt.Errorf("invalid private config: %w", err)
	}
	return &Config{public, private}, nil
}

func MustLoad(configFolder string) *Config {
	cfg, err := Load(configFolder)
	if err != nil {
		panic(err.Error())
	}
	return cfg
}

// NewForTest builds a config without touching the filesystem.
func NewForTest(public Public, jwtKey string) *Config {
	public.applyDefaults()
	return &Config{Public: public, private: Private{JwtKey: jwtKey}}
}
