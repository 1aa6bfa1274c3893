package app

import (
	"os"
	"os/signal"
	"syscall"

	runtime "github.com/banzaicloud/logrus-runtime-formatter"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// App holds attributes for the switch-backup application
type App struct {
	v *viper.Viper
	// switch-backup configuration.
	Config *Configuration
	// Logger is the app logger
	Logger *logrus.Logger
}

// New returns a new instance of the switch-backup app.
//
// logLevel overrides the configured level when set.
func New(cfgFile, logLevel string) (*App, error) {
	app := &App{
		v:      viper.New(),
		Config: &Configuration{},
		Logger: logrus.New(),
	}

	if err := app.LoadConfiguration(cfgFile); err != nil {
		return nil, err
	}

	if logLevel != "" {
		app.Config.LogLevel = logLevel
	}

	// set log level, format
	switch app.Config.LogLevel {
	case "debug":
		app.Logger.Level = logrus.DebugLevel
	case "trace":
		app.Logger.Level = logrus.TraceLevel
	default:
		app.Logger.Level = logrus.InfoLevel
	}

	app.Logger.SetFormatter(
		&runtime.Formatter{ChildFormatter: &logrus.JSONFormatter{}},
	)

	return app, nil
}

// NotifySignals returns a channel receiving SIGINT, SIGTERM and SIGHUP.
func (a *App) NotifySignals() <-chan os.Signal {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	return ch
}
