// Package config handles dicepilot configuration
package config

import (
	"fmt"
	"image"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/GriffinCanCode/dicepilot/internal/betting"
	"github.com/GriffinCanCode/dicepilot/internal/detect"
	"github.com/GriffinCanCode/dicepilot/internal/dice"
	apperrors "github.com/GriffinCanCode/dicepilot/internal/errors"
	"github.com/GriffinCanCode/dicepilot/internal/game"
	"github.com/GriffinCanCode/dicepilot/internal/input"
	"github.com/GriffinCanCode/dicepilot/internal/perception"
)

type Config struct {
	HTTPAddr       string
	AllowedOrigins []string // cross-origin UI clients; same-origin is always allowed
	RecognizerAddr string
	RegionsFile    string
	JournalPath    string // empty disables the journal
	LogLevel       string

	BaseBet       int
	MaxBet        int
	Ladder        []int
	DefaultSide   string
	DefaultWindow string
	StopLoss      int
	TakeProfit    int

	PollInterval     time.Duration
	StableFor        time.Duration
	ChangeTimeout    time.Duration
	StabilityTimeout time.Duration
	DedupWindow      time.Duration
	TapDelay         time.Duration

	MinConfidence  float64
	LocalFloor     float64
	HighConfidence float64
	RemoteTimeout  time.Duration
	RetryDelay     time.Duration

	ScreenBounds image.Rectangle // empty captures the primary display

	AlarmEnabled bool
	AlarmDevice  string
}

func Load() *Config {
	return &Config{
		HTTPAddr:       getEnv("HTTP_ADDR", "127.0.0.1:8000"),
		AllowedOrigins: getEnvList("ALLOWED_ORIGINS", nil),
		RecognizerAddr: getEnv("RECOGNIZER_ADDR", "localhost:50051"),
		RegionsFile:    getEnv("REGIONS_FILE", "regions.yaml"),
		JournalPath:    getEnv("JOURNAL_PATH", "data/journal.db"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),

		BaseBet:       getEnvInt("BASE_BET", 10),
		MaxBet:        getEnvInt("MAX_BET", 2500),
		Ladder:        getEnvIntList("LADDER", nil),
		DefaultSide:   getEnv("DEFAULT_SIDE", "red"),
		DefaultWindow: getEnv("DEFAULT_WINDOW", "A"),
		StopLoss:      getEnvInt("STOP_LOSS", 0),
		TakeProfit:    getEnvInt("TAKE_PROFIT", 0),

		PollInterval:     getEnvDuration("POLL_INTERVAL", detect.DefaultPollInterval),
		StableFor:        getEnvDuration("STABLE_FOR", detect.DefaultStableFor),
		ChangeTimeout:    getEnvDuration("CHANGE_TIMEOUT", detect.DefaultChangeTimeout),
		StabilityTimeout: getEnvDuration("STABILITY_TIMEOUT", detect.DefaultStabilityTimeout),
		DedupWindow:      getEnvDuration("DEDUP_WINDOW", game.DefaultDedupWindow),
		TapDelay:         getEnvDuration("TAP_DELAY", input.DefaultTapDelay),

		MinConfidence:  getEnvFloat("MIN_CONFIDENCE", perception.DefaultMinConfidence),
		LocalFloor:     getEnvFloat("LOCAL_FLOOR", perception.DefaultLocalFloor),
		HighConfidence: getEnvFloat("HIGH_CONFIDENCE", perception.DefaultHighConfidence),
		RemoteTimeout:  getEnvDuration("REMOTE_TIMEOUT", perception.DefaultRemoteTimeout),
		RetryDelay:     getEnvDuration("REMOTE_RETRY_DELAY", perception.DefaultRetryDelay),

		ScreenBounds: getEnvRect("SCREEN_BOUNDS", image.Rectangle{}),

		AlarmEnabled: getEnvBool("ALARM_ENABLED", true),
		AlarmDevice:  getEnv("ALARM_DEVICE", ""),
	}
}

// Game builds the session configuration.
func (c *Config) Game() (game.Config, error) {
	side, err := dice.ParseSide(c.DefaultSide)
	if err != nil {
		return game.Config{}, apperrors.Wrap(err, apperrors.Precondition, "DEFAULT_SIDE")
	}
	win, err := dice.ParseWindow(c.DefaultWindow)
	if err != nil {
		return game.Config{}, apperrors.Wrap(err, apperrors.Precondition, "DEFAULT_WINDOW")
	}
	strat := betting.Config{
		BaseBet:       c.BaseBet,
		MaxBet:        c.MaxBet,
		Ladder:        c.Ladder,
		DefaultSide:   side,
		DefaultWindow: win,
	}
	if _, err := betting.NewStrategy(strat); err != nil {
		return game.Config{}, apperrors.Wrap(err, apperrors.Precondition, "betting config")
	}

	det := detect.DefaultConfig()
	det.PollInterval = c.PollInterval
	det.StableFor = c.StableFor
	det.ChangeTimeout = c.ChangeTimeout
	det.StabilityTimeout = c.StabilityTimeout

	per := perception.DefaultConfig()
	per.MinConfidence = c.MinConfidence
	per.LocalFloor = c.LocalFloor
	per.HighConfidence = c.HighConfidence
	per.RemoteTimeout = c.RemoteTimeout
	per.RetryDelay = c.RetryDelay

	return game.Config{
		Strategy:       strat,
		Detect:         det,
		Perception:     per,
		DedupWindow:    c.DedupWindow,
		MaxLocalPasses: game.DefaultMaxLocalPasses,
		StopLoss:       c.StopLoss,
		TakeProfit:     c.TakeProfit,
	}, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true" || v == "1"
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getEnvList(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if t := strings.TrimSpace(p); t != "" {
				result = append(result, t)
			}
		}
		return result
	}
	return def
}

func getEnvIntList(key string, def []int) []int {
	parts := getEnvList(key, nil)
	if parts == nil {
		return def
	}
	result := make([]int, 0, len(parts))
	for _, p := range parts {
		i, err := strconv.Atoi(p)
		if err != nil {
			return def
		}
		result = append(result, i)
	}
	return result
}

// getEnvRect parses "x,y,w,h".
func getEnvRect(key string, def image.Rectangle) image.Rectangle {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var x, y, w, h int
	if _, err := fmt.Sscanf(v, "%d,%d,%d,%d", &x, &y, &w, &h); err != nil || w <= 0 || h <= 0 {
		return def
	}
	return image.Rect(x, y, x+w, y+h)
}
