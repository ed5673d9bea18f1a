package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"shield/cli"
	"shield/secretmanager"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
)

var (
	loadEnv   = godotenv.Load
	getSecret = secretmanager.GetSecret
	setEnv    = os.Setenv
	execute   = cli.Execute
)

type postgresSecret struct {
	Username             string `json:"username"`
	Password             string `json:"password"`
	Engine               string `json:"engine"`
	Host                 string `json:"host"`
	Port                 int    `json:"port"`
	DBInstanceIdentifier string `json:"dbInstanceIdentifier"`
	DBName               string `json:"dbname"`
}

func validatePostgresSecret(secret postgresSecret) error {
	if secret.Username == "" || secret.Password == "" || secret.Host == "" {
		return errors.New("postgres secret must include username, password and host")
	}
	if secret.Port <= 0 || secret.Port > 65535 {
		return fmt.Errorf("postgres secret has invalid port %d", secret.Port)
	}
	if secret.DBName == "" && secret.DBInstanceIdentifier == "" {
		return errors.New("postgres secret must include dbname or dbInstanceIdentifier")
	}
	return nil
}

func loadPostgresSecret(secretName string) (postgresSecret, error) {
	raw, err := getSecret(secretName)
	if err != nil {
		return postgresSecret{}, fmt.Errorf("error retrieving Postgres secret: %w", err)
	}
	var secret postgresSecret
	if err := json.Unmarshal([]byte(raw), &secret); err != nil {
		return postgresSecret{}, fmt.Errorf("error parsing Postgres secret JSON: %w", err)
	}
	if err := validatePostgresSecret(secret); err != nil {
		return postgresSecret{}, err
	}
	return secret, nil
}

func loadProdSecrets() error {
	secretName := os.Getenv("DB_SECRET_NAME")
	if secretName == "" {
		secretName = "prod/postgres"
	}

	secret, err := loadPostgresSecret(secretName)
	if err != nil {
		return err
	}

	values := map[string]string{
		"DB_USERNAME":            secret.Username,
		"DB_PASSWORD":            secret.Password,
		"DB_ENGINE":              secret.Engine,
		"DB_HOST":                secret.Host,
		"DB_INSTANCE_IDENTIFIER": secret.DBInstanceIdentifier,
		"DB_NAME":                secret.DBName,
		"DB_PORT":                strconv.Itoa(secret.Port),
	}
	for key, value := range values {
		if value == "" {
			continue
		}
		if err := setEnv(key, value); err != nil {
			return fmt.Errorf("set %s: %w", key, err)
		}
	}
	return nil
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	logger := log.NewWithOptions(stderr, log.Options{Prefix: "shield"})

	if err := loadEnv(); err != nil {
		logger.Debug("No .env file found; using system environment variables")
	}
	appEnv := os.Getenv("APP_ENV")
	if appEnv == "" {
		appEnv = "dev"
	}

	if appEnv == "prod" {
		if err := loadProdSecrets(); err != nil {
			logger.Error("load production secrets", "error", err)
			return cli.StatusFailure
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return execute(ctx, args, stdout, stderr)
}
