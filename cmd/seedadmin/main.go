package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"time"

	"inquiryflow/auth"
	"inquiryflow/config"
	"inquiryflow/db"
)

func main() {
	logger := log.New(os.Stdout, "[seedadmin] ", log.LstdFlags|log.Lmicroseconds|log.LUTC)

	email := flag.String("email", os.Getenv("SEED_ADMIN_EMAIL"), "admin email")
	password := flag.String("password", os.Getenv("SEED_ADMIN_PASSWORD"), "admin password (min 8 characters)")
	name := flag.String("name", "Administrator", "admin full name")
	id := flag.String("id", "", "admin employee id; generated with the PB-AM prefix when empty")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		logger.Fatal("DATABASE_URL is required: employees live in postgres")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("bootstrap database pool: %v", err)
	}
	defer pool.Close()

	authSvc := auth.NewService(auth.NewRepository(pool), cfg.JWTSecret).WithTokenTTL(cfg.JWTTTL)
	emp, err := authSvc.Register(ctx, auth.RegisterRequest{
		EmployeeID: *id,
		Email:      *email,
		Password:   *password,
		FullName:   *name,
		Role:       auth.RoleAdmin,
	})
	if errors.Is(err, auth.ErrDuplicateEmployee) {
		logger.Printf("admin %s already exists; nothing to do", *email)
		return
	}
	if err != nil {
		logger.Fatalf("register admin: %v", err)
	}

	token, err := authSvc.IssueToken(emp.ID, emp.Role)
	if err != nil {
		logger.Fatalf("issue token: %v", err)
	}
	logger.Printf("created admin %s <%s>", emp.ID, emp.Email)
	os.Stdout.WriteString(token + "\n")
}
