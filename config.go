package main

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	bind           string
	detectorScript string
	emojis         []string
	envFile        string
	gameDuration   time.Duration
	leadIn         time.Duration
	port           int
	prefix         string
	profile        bool
	roundTimeout   time.Duration
	sessionTimeout time.Duration
	tlsCert        string
	tlsKey         string
	verbose        bool
	version        bool

	emojiSet EmojiSet
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if err := c.timings().validate(); err != nil {
		return err
	}

	set, err := parseEmojiSet(c.emojis)
	if err != nil {
		return fmt.Errorf("invalid --emoji: %w", err)
	}
	c.emojiSet = set

	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func (c *Config) timings() Timings {
	return Timings{
		Round:  c.roundTimeout,
		Game:   c.gameDuration,
		LeadIn: c.leadIn,
	}
}

// loadEnvFile reads KEY=value pairs into the environment. A missing file is fine.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}

	err := godotenv.Load(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", path, err)
	}

	return nil
}

// bindEnv copies MIMICME_* values onto every flag not given on the command line.
func bindEnv(v *viper.Viper, fs *pflag.FlagSet) {
	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("MIMICME")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "mimicme",
		Short:         "Mimic the emoji on screen with your face before the timer runs out.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := loadEnvFile(cfg.envFile); err != nil {
				return err
			}
			bindEnv(v, cmd.Flags())
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			setupLogging(cfg)
			return ServePage(cmd.Context(), cfg)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: MIMICME_BIND)")
	fs.StringVar(&cfg.detectorScript, "detector-script", "https://download.affectiva.com/js/3.2/affdex.js", "url of the face detector sdk loaded by the game page (env: MIMICME_DETECTOR_SCRIPT)")
	fs.StringSliceVar(&cfg.emojis, "emoji", defaultEmojiEntries(), "target emojis, as codepoints, U+XXXX or literal emoji (env: MIMICME_EMOJI)")
	fs.StringVar(&cfg.envFile, "env-file", ".env", "file of KEY=value pairs loaded into the environment (env: MIMICME_ENV_FILE)")
	fs.DurationVar(&cfg.gameDuration, "game-duration", 16*time.Second, "length of a whole game (env: MIMICME_GAME_DURATION)")
	fs.DurationVar(&cfg.leadIn, "lead-in", 2*time.Second, "pause between the go cue and the first target (env: MIMICME_LEAD_IN)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: MIMICME_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: MIMICME_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers under /debug (env: MIMICME_PROFILE)")
	fs.DurationVar(&cfg.roundTimeout, "round-timeout", 8*time.Second, "time to mimic a target before it counts as a miss (env: MIMICME_ROUND_TIMEOUT)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 60*time.Minute, "time before idle game sessions are ended (env: MIMICME_SESSION_TIMEOUT)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: MIMICME_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: MIMICME_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: MIMICME_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: MIMICME_VERSION)")

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("mimicme v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
