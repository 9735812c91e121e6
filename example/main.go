package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	auth "github.com/wispberry-tech/desa-auth"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("PORT", "8080")
	v.SetDefault("APP_ENV", "production")
	v.SetDefault("SQLITE_PATH", "desa.db")
	v.SetDefault("SESSION_LIFETIME", 3600)
	v.SetDefault("MAX_LOGIN_ATTEMPTS", 5)
	v.SetDefault("LOCKOUT_DURATION", 900)
	v.SetDefault("RATE_LIMIT_LOGIN", 5)
	v.SetDefault("RATE_LIMIT_WINDOW", 3600)
	v.SetDefault("REMEMBER_TOKEN_LIFETIME", 7*24*3600)
	v.SetDefault("DB_QUERY_TIMEOUT", 30)
	v.SetDefault("ADMIN_USERNAME", "admin")
	v.SetDefault("ADMIN_EMAIL", "admin@desa.local")

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	queryTimeout := time.Duration(v.GetInt("DB_QUERY_TIMEOUT")) * time.Second

	var storage auth.Storage
	if dsn := v.GetString("DATABASE_URL"); dsn != "" {
		pg, err := auth.NewPostgresStorage(dsn)
		if err != nil {
			log.Fatalf("Failed to open PostgreSQL storage: %v", err)
		}
		pg.SetQueryTimeout(queryTimeout)
		if err := auth.RunMigrations(pg.DB()); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
		storage = pg
	} else {
		lite, err := auth.NewSQLiteStorage(v.GetString("SQLITE_PATH"))
		if err != nil {
			log.Fatalf("Failed to open SQLite storage: %v", err)
		}
		lite.SetQueryTimeout(queryTimeout)
		if err := lite.CreateTables(); err != nil {
			log.Fatalf("Failed to create tables: %v", err)
		}
		storage = lite
	}
	defer storage.Close()

	if pw := v.GetString("ADMIN_PASSWORD"); pw != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if _, err := auth.EnsureAdminUser(ctx,
			storage, v.GetString("ADMIN_USERNAME"), v.GetString("ADMIN_EMAIL"), pw); err != nil {
			log.Fatalf("Failed to seed admin user: %v", err)
		}
		cancel()
	}

	authService, err := auth.NewAuthService(auth.Config{
		Storage: storage,
		Logger:  logger,
		SecurityConfig: auth.SecurityConfig{
			SessionTimeout:        time.Duration(v.GetInt("SESSION_LIFETIME")) * time.Second,
			MaxLoginAttempts:      v.GetInt("MAX_LOGIN_ATTEMPTS"),
			LockoutDuration:       time.Duration(v.GetInt("LOCKOUT_DURATION")) * time.Second,
			RateLimitMaxAttempts:  v.GetInt("RATE_LIMIT_LOGIN"),
			RateLimitWindow:       time.Duration(v.GetInt("RATE_LIMIT_WINDOW")) * time.Second,
			RememberTokenLifetime: time.Duration(v.GetInt("REMEMBER_TOKEN_LIFETIME")) * time.Second,
			Environment:           v.GetString("APP_ENV"),
		},
	})
	if err != nil {
		log.Fatalf("Failed to create auth service: %v", err)
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-CSRF-Token"},
		AllowCredentials: true,
	}))

	r.Mount("/auth", authService.Routes())

	// Dashboard endpoints sit behind the guard; the CRUD layer itself
	// lives elsewhere.
	r.With(authService.RequireAuth()).Get("/api/me", func(w http.ResponseWriter, r *http.Request) {
		user, _ := auth.GetUserFromContext(r)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"data":{"username":"` + user.Username + `"}}`))
	})
	r.With(authService.RequireAuth("penduduk.read")).Get("/api/penduduk", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"data":[]}`))
	})

	addr := ":" + v.GetString("PORT")
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("Starting server", "addr", addr, "env", v.GetString("APP_ENV"))
	if err := server.ListenAndServe(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
