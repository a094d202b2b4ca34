package core

import (
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		Env          string
		Build        string
		AppName      string
		Debug        bool
		TestMode     bool
		SecretKey    string
		RollbarToken string
		WorkDir      string

		Server     ServerConfig
		Database   DatabaseConfig
		Redis      RedisConfig
		Attendance AttendanceConfig
	}

	ServerConfig struct {
		Host                      string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	RedisConfig struct {
		Addr     string
		Password string
		DB       int
	}

	AttendanceConfig struct {
		// Timezone is the club's IANA location; calendar days are computed in it.
		Timezone          string
		MaxInflightWrites int
		StoreBackend      string // memory | postgres
		FeedBackend       string // postgres | redis
		FeedChannel       string
	}
)

func (db DatabaseConfig) Address() string {
	return net.JoinHostPort(db.Host, db.Port)
}

// Location loads the configured club timezone, falling back to UTC.
func (a AttendanceConfig) Location() *time.Location {
	if a.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		log.Printf("config: invalid attendance timezone %q, using UTC: %v", a.Timezone, err)
		return time.UTC
	}
	return loc
}

func setDefaults(v *viper.Viper) {
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("build", "develop")
	v.SetDefault("appName", "Kilabu")
	v.SetDefault("secretKey", "k1l@bu-7y$2n&q+fp0)d=9ow!vx8zr(m4tg#e6j3h^b5*ca1s")
	v.SetDefault("rollbarToken", "")

	v.SetDefault("server.host", ":8000")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 4*time.Hour)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "kilabu")
	v.SetDefault("database.user", "kilabu")
	v.SetDefault("database.password", "kilabu")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "postgres")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("attendance.timezone", "UTC")
	v.SetDefault("attendance.maxInflightWrites", 8)
	v.SetDefault("attendance.storeBackend", "memory")
	v.SetDefault("attendance.feedBackend", "postgres")
	v.SetDefault("attendance.feedChannel", "attendance_records_changed")
}

// NewConfig loads the configuration from defaults, `config/.env.<env>` and the environment.
// Environment variables are prefixed by the env name, eg. PROD_DATABASE_HOST.
func NewConfig() *Config {
	v := viper.New()
	setDefaults(v)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	wd := Getwd()
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		Env:          env,
		Build:        v.GetString("build"),
		AppName:      v.GetString("appName"),
		Debug:        v.GetBool("debug"),
		TestMode:     v.GetBool("testMode"),
		SecretKey:    v.GetString("secretKey"),
		RollbarToken: v.GetString("rollbarToken"),
		WorkDir:      wd,
		Server: ServerConfig{
			Host:                      v.GetString("server.host"),
			DebugHost:                 v.GetString("server.debugHost"),
			ShutdownTimeout:           v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwtRefreshExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetString("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Attendance: AttendanceConfig{
			Timezone:          v.GetString("attendance.timezone"),
			MaxInflightWrites: v.GetInt("attendance.maxInflightWrites"),
			StoreBackend:      v.GetString("attendance.storeBackend"),
			FeedBackend:       v.GetString("attendance.feedBackend"),
			FeedChannel:       v.GetString("attendance.feedChannel"),
		},
	}
}

// NewTestConfig returns a Config suitable for tests: no .env lookup, no remote logging.
func NewTestConfig() *Config {
	v := viper.New()
	setDefaults(v)
	return &Config{
		Env:       "TEST",
		Build:     "test",
		AppName:   v.GetString("appName"),
		Debug:     true,
		TestMode:  true,
		SecretKey: "secret",
		Server: ServerConfig{
			ShutdownTimeout:           v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwtRefreshExpirationDelta"),
		},
		Attendance: AttendanceConfig{
			Timezone:          "UTC",
			MaxInflightWrites: v.GetInt("attendance.maxInflightWrites"),
			StoreBackend:      "memory",
			FeedChannel:       v.GetString("attendance.feedChannel"),
		},
	}
}

func (c *Config) String() string {
	return fmt.Sprintf("%s/%s (%s)", c.AppName, c.Build, c.Env)
}
