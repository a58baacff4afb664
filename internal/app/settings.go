package app

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// settingsFileName is looked up in the user's home directory when no
// explicit settings path is given.
const settingsFileName = ".scengrid.yaml"

// Duration accepts Go duration strings ("30s", "2m") in the settings file.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// QueueSettings override the built-in batch queue templates and cadence.
// Unset fields keep the built-in values; the project file's queue block
// overrides these in turn.
type QueueSettings struct {
	System            string   `yaml:"system"`
	QueueName         string   `yaml:"queue_name"`
	WalltimeMinutes   int      `yaml:"walltime_minutes"`
	SubmitTemplate    string   `yaml:"submit_template"`
	PollTemplate      string   `yaml:"poll_template"`
	CancelTemplate    string   `yaml:"cancel_template"`
	PollInterval      Duration `yaml:"poll_interval"`
	PollFailuresFatal int      `yaml:"poll_failures_fatal"`
	MaxQueuedJobs     int      `yaml:"max_queued_jobs"`
}

// Settings are the user-level defaults read from ~/.scengrid.yaml. Every
// field is optional; command-line flags override all of them.
type Settings struct {
	Workers    int    `yaml:"workers"`
	Mode       string `yaml:"mode"`
	LogLevel   string `yaml:"log_level"`
	LogFormat  string `yaml:"log_format"`
	StatusPort int    `yaml:"status_port"`

	Queue QueueSettings `yaml:"queue"`
}

func (s *Settings) validate() error {
	if s.Mode != "" && s.Mode != ModeLocal && s.Mode != ModeCluster {
		return fmt.Errorf("invalid mode %q: must be %q or %q", s.Mode, ModeLocal, ModeCluster)
	}
	switch s.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q", s.LogLevel)
	}
	switch s.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid log_format %q", s.LogFormat)
	}
	return nil
}

// LoadSettings reads the settings file. With an empty path the default
// location is tried and a missing file yields empty settings; an explicitly
// named file must exist.
func LoadSettings(path string) (*Settings, error) {
	explicit := path != ""
	if !explicit {
		home, err := os.UserHomeDir()
		if err != nil {
			return &Settings{}, nil
		}
		path = filepath.Join(home, settingsFileName)
	}

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) && !explicit {
		return &Settings{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open settings file: %w", err)
	}
	defer f.Close()

	settings := &Settings{}
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(settings); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse settings file %q: %w", path, err)
	}
	if err := settings.validate(); err != nil {
		return nil, fmt.Errorf("settings file %q: %w", path, err)
	}
	return settings, nil
}
