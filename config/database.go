package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

var (
	db *gorm.DB
)

func GetDB() *gorm.DB {
	return db
}

func init() {
	// Load env from .env
	godotenv.Load()
}

// DatabaseDSN builds the MySQL DSN from DB_* env vars.
// DB_HOST may be "/cloudsql/<CONNECTION_NAME>" to dial the Cloud SQL unix socket.
func DatabaseDSN() string {
	dbUser := os.Getenv("DB_USER")
	dbPassword := os.Getenv("DB_PASSWORD")
	dbHost := os.Getenv("DB_HOST")
	dbPort := os.Getenv("DB_PORT")
	dbName := os.Getenv("DB_NAME")

	network := "tcp"
	address := fmt.Sprintf("%s:%s", dbHost, dbPort)
	if strings.HasPrefix(dbHost, "/cloudsql/") {
		network = "unix"
		address = dbHost
	}

	return fmt.Sprintf("%s:%s@%s(%s)/%s?multiStatements=true&parseTime=true&charset=utf8mb4",
		dbUser,
		dbPassword,
		network,
		address,
		dbName,
	)
}

// ConnectDatabaseWithRetry connects and sets the global DB.
// It gives up after maxAttempts (0 = retry forever).
func ConnectDatabaseWithRetry(maxAttempts int) (*gorm.DB, error) {
	return ConnectDatabaseDSN(DatabaseDSN(), maxAttempts)
}

func ConnectDatabaseDSN(dsn string, maxAttempts int) (*gorm.DB, error) {
	var attempt int
	for {
		attempt++
		conn, err := gorm.Open(mysql.Open(dsn), initConfig())
		if err == nil {
			if sqlDB, derr := conn.DB(); derr == nil && sqlDB != nil {
				maxOpen := intFromEnv("DB_MAX_OPEN_CONNS", 10)
				maxIdle := intFromEnv("DB_MAX_IDLE_CONNS", 5)
				connMaxLife := time.Duration(intFromEnv("DB_CONN_MAX_LIFETIME_SECONDS", 300)) * time.Second
				connMaxIdle := time.Duration(intFromEnv("DB_CONN_MAX_IDLE_TIME_SECONDS", 60)) * time.Second

				if maxOpen > 0 {
					sqlDB.SetMaxOpenConns(maxOpen)
				}
				if maxIdle >= 0 {
					sqlDB.SetMaxIdleConns(maxIdle)
				}
				if connMaxLife > 0 {
					sqlDB.SetConnMaxLifetime(connMaxLife)
				}
				if connMaxIdle > 0 {
					sqlDB.SetConnMaxIdleTime(connMaxIdle)
				}
			}

			if pluginErr := conn.Use(otelgorm.NewPlugin()); pluginErr != nil {
				log.Printf("db connected but failed to install otelgorm plugin: %v", pluginErr)
			}
			log.Printf("connected to database (attempt=%d)", attempt)
			db = conn
			return conn, nil
		}

		if maxAttempts > 0 && attempt >= maxAttempts {
			return nil, fmt.Errorf("connect database after %d attempts: %w", attempt, err)
		}
		sleep := time.Second * time.Duration(1<<min(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		log.Printf("failed to connect database (attempt=%d): %v; retrying in %s", attempt, err, sleep)
		time.Sleep(sleep)
	}
}

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func initConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         initLog(),
		NamingStrategy: initNamingStrategy(),
	}
}

func initLog() logger.Interface {
	return logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			Colorful:                  false,
			LogLevel:                  logger.Error,
			SlowThreshold:             time.Second,
			IgnoreRecordNotFoundError: true,
		},
	)
}

func initNamingStrategy() *schema.NamingStrategy {
	return &schema.NamingStrategy{
		SingularTable: false,
		TablePrefix:   "",
	}
}
