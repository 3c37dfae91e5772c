package main

import (
	"io"
	"os"
	"strings"

	"github.com/go-go-golems/docqa/cmd/docqa/cmds"
	"github.com/go-go-golems/docqa/pkg/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

var rootCmd = &cobra.Command{
	Use:   "docqa",
	Short: "docqa asks questions about your documents",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// reinitialize the logger because we can now parse --log-level and co
		// from the command line flag
		initLogger()
	},
}

func initLogger() {
	logLevel := viper.GetString("log-level")
	verbose := viper.GetBool("verbose")
	if verbose && logLevel != "trace" {
		logLevel = "debug"
	}

	err := InitLogger(&logConfig{
		Level:      logLevel,
		LogFile:    viper.GetString("log-file"),
		LogFormat:  viper.GetString("log-format"),
		WithCaller: viper.GetBool("with-caller"),
	})
	cobra.CheckErr(err)
}

type logConfig struct {
	WithCaller bool
	Level      string
	LogFormat  string
	LogFile    string
}

func initCommands(rootCmd *cobra.Command, configPath string, envFile string) error {
	if envFile != "" {
		config.LoadDotEnv(envFile)
	} else {
		config.LoadDotEnv()
	}

	// Load the variables from the environment
	viper.SetEnvPrefix(config.AppName)

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.docqa")
		viper.AddConfigPath("/etc/docqa")

		xdgConfigPath, err := os.UserConfigDir()
		if err == nil {
			viper.AddConfigPath(xdgConfigPath + "/docqa")
		}
	}

	err := viper.ReadInConfig()
	// if the file does not exist, continue normally
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		// Config file not found; ignore error
	} else if err != nil {
		// Config file was found but another error was produced
		return err
	}
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	err = viper.BindPFlags(rootCmd.PersistentFlags())
	if err != nil {
		return err
	}

	// this still won't pick up on --verbose to show debug logging when the commands
	// are parsed, but at least it will configure it based on the config file
	initLogger()

	log.Debug().
		Str("config", viper.ConfigFileUsed()).
		Msg("Loaded configuration")

	return nil
}

func InitLogger(config *logConfig) error {
	if config.WithCaller {
		log.Logger = log.With().Caller().Logger()
	}
	// default is text
	var logWriter io.Writer
	if config.LogFormat == "json" {
		logWriter = os.Stderr
	} else {
		logWriter = zerolog.ConsoleWriter{Out: os.Stderr}
	}

	if config.LogFile != "" {
		logWriter = io.MultiWriter(
			logWriter,
			zerolog.ConsoleWriter{
				NoColor: true,
				Out: &lumberjack.Logger{
					Filename:   config.LogFile,
					MaxSize:    10, // megabytes
					MaxBackups: 3,
					MaxAge:     28,    //days
					Compress:   false, // disabled by default
				},
			})
	}

	log.Logger = log.Output(logWriter)

	switch config.Level {
	case "trace":
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case "fatal":
		zerolog.SetGlobalLevel(zerolog.FatalLevel)
	}

	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// flagValue parses the flags one time just to catch --config and --env-file.
func flagValue(name string) string {
	for idx, arg := range os.Args {
		if arg == "--"+name && len(os.Args) > idx+1 {
			return os.Args[idx+1]
		}
		if strings.HasPrefix(arg, "--"+name+"=") {
			return strings.TrimPrefix(arg, "--"+name+"=")
		}
	}
	return ""
}

func init() {
	// logging flags
	rootCmd.PersistentFlags().Bool("with-caller", false, "Log caller")
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level (trace, debug, info, warn, error, fatal)")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format (json, text)")
	rootCmd.PersistentFlags().String("log-file", "", "Log file (default: stderr)")

	rootCmd.PersistentFlags().String("config", "", "Path to config file (default ~/.docqa/config.yaml)")
	rootCmd.PersistentFlags().String("env-file", "", "Path to a .env file (default ./.env)")
	rootCmd.PersistentFlags().Bool("verbose", false, "Verbose output")

	// backend and storage flags
	rootCmd.PersistentFlags().String("base-url", config.DefaultURL, "Backend base URL")
	rootCmd.PersistentFlags().String("viewer-base-url", "", "Base URL for document links (default: base-url)")
	rootCmd.PersistentFlags().String("tenant", "", "Tenant (client id), default from credentials or "+config.DefaultTenant)
	rootCmd.PersistentFlags().String("user-id", "", "User id attached to feedback")
	rootCmd.PersistentFlags().String("token", "", "Bearer token (default from credentials)")
	rootCmd.PersistentFlags().String("store", string(config.StoreYAML), "Thread store (memory, yaml, sqlite, pebble)")
	rootCmd.PersistentFlags().String("store-path", "", "Thread store location")
	rootCmd.PersistentFlags().Duration("timeout", 0, "HTTP timeout, 0 waits indefinitely")

	err := initCommands(rootCmd, flagValue("config"), flagValue("env-file"))
	if err != nil {
		panic(err)
	}

	rootCmd.AddCommand(
		cmds.NewChatCommand(),
		cmds.NewAskCommand(),
		cmds.NewHistoryCommand(),
		cmds.NewThreadsCommand(),
		cmds.NewFeedbackCommand(),
		cmds.NewDashboardCommand(),
		cmds.NewLoginCommand(),
		cmds.NewRegisterCommand(),
		cmds.NewForgotPasswordCommand(),
		cmds.NewMockBackendCommand(),
	)
}
