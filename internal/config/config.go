package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/playperu/campustour/internal/author"
	"github.com/playperu/campustour/internal/loader"
	"github.com/playperu/campustour/internal/quest"
)

type Config struct {
	HTTPAddr  string     `env:"HTTP_ADDR" envDefault:":8080"`
	DBPath    string     `env:"DB_PATH" envDefault:"data/tour.db"`
	RedisURL  string     `env:"REDIS_URL"`
	LogLevel  slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	ImagesDir string     `env:"IMAGES_DIR" envDefault:"public/tour_images"`
	PublicDir string     `env:"PUBLIC_DIR" envDefault:"public"`
	// ServerURL is where tourctl finds the persistence service.
	ServerURL string `env:"TOUR_SERVER_URL" envDefault:"http://localhost:8080"`

	Tuning Tuning
}

// Tuning holds the timing knobs of the viewer, the authoring session and the
// quest.
type Tuning struct {
	UpgradeDelay      time.Duration `env:"UPGRADE_DELAY" envDefault:"1500ms"`
	NavigateDelay     time.Duration `env:"NAVIGATE_DELAY" envDefault:"1s"`
	ReadyMaxFrames    int           `env:"READY_MAX_FRAMES" envDefault:"120"`
	FrameInterval     time.Duration `env:"FRAME_INTERVAL" envDefault:"16ms"`
	SuppressWindow    time.Duration `env:"SUPPRESS_WINDOW" envDefault:"100ms"`
	QuestTick         time.Duration `env:"QUEST_TICK" envDefault:"1s"`
	QuestHistoryLimit int           `env:"QUEST_HISTORY_LIMIT" envDefault:"5"`
}

// Load reads the given .env files (".env" if none), ignoring missing ones,
// then parses the environment. Variables already set win over file values.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", f, err)
		}
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if cfg.Tuning.ReadyMaxFrames <= 0 {
		return nil, fmt.Errorf("READY_MAX_FRAMES must be positive, got %d", cfg.Tuning.ReadyMaxFrames)
	}
	if cfg.Tuning.QuestHistoryLimit <= 0 {
		return nil, fmt.Errorf("QUEST_HISTORY_LIMIT must be positive, got %d", cfg.Tuning.QuestHistoryLimit)
	}
	return &cfg, nil
}

func (t Tuning) Loader(mode loader.Mode) loader.Options {
	return loader.Options{
		Mode:          mode,
		InitialDelay:  t.UpgradeDelay,
		NavigateDelay: t.NavigateDelay,
		FrameInterval: t.FrameInterval,
		MaxFrames:     t.ReadyMaxFrames,
	}
}

func (t Tuning) Author() author.Options {
	return author.Options{SuppressWindow: t.SuppressWindow}
}

func (t Tuning) Quest() quest.Options {
	return quest.Options{TickInterval: t.QuestTick, HistoryLimit: t.QuestHistoryLimit}
}
