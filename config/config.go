package config

import (
	"fmt"
	"net/http"
	"os"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap"
)

// Config holds the project config values
type Config struct {
	URL             string  `env:"DB_URI"`
	DatabaseName    string  `env:"DB_NAME"`
	BaseURL         string  `env:"BASE_URL"`
	Port            string  `env:"PORT" envDefault:"8080"`
	Environment     string  `env:"APP_ENV" envDefault:"local"`
	SocketJWTSecret string  `env:"SOCKET_JWT_SECRET"`
	SendgridAPIKey  string  `env:"SENDGRID_API_KEY"`
	SupportEmail    string  `env:"SUPPORT_EMAIL"`
	MessageRPS      float64 `env:"CHAT_MESSAGE_RPS" envDefault:"5"`
	MessageBurst    int     `env:"CHAT_MESSAGE_BURST" envDefault:"10"`
}

// New sets up all config related services
func New() *Config {
	conf := &Config{}
	if err := env.Parse(conf); err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse environment: %v\n", err)
	}

	//setup zap logger and replace default logger
	logger, err := setLogger(conf.Environment)
	if err != nil {
		logger = zap.NewExample()
	}
	defer logger.Sync()
	_ = zap.ReplaceGlobals(logger)

	return conf
}

// setLogger returns the zap logger for the given environment
func setLogger(environment string) (*zap.Logger, error) {
	switch environment {
	case "production":
		return zap.NewProduction()
	case "development":
		return zap.NewDevelopment()
	default:
		return zap.NewExample(), nil
	}
}

// ErrorStatus is a useful function that will log, write http headers and body for a
// give message, status code and err
func ErrorStatus(message string, httpStatusCode int, w http.ResponseWriter, err error) {
	zap.S().With(err).Error(message)
	w.WriteHeader(httpStatusCode)
	w.Write([]byte(fmt.Sprintf(`{"response": "%s, %v"}`, message, err)))
}
