// Command setadmin stores the admin credential used by the admin API.
//
//	go run ./cmd/setadmin -email owner@example.com -password 'long secret'
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/contentgate/internal/config"
	"github.com/contentgate/internal/db"
	"github.com/contentgate/internal/logging"
	"github.com/contentgate/internal/service"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, "text")

	email := flag.String("email", "", "admin email")
	password := flag.String("password", "", "admin password, at least 8 characters")
	flag.Parse()

	// 初始化数据库
	store, err := db.Open(cfg.DatabasePath)
	if err != nil {
		logger.WithError(err).Fatal("failed to open database")
	}
	defer store.Close()

	admins := service.NewAdminService(store)
	if err := admins.ChangeCredential(context.Background(), *email, *password); err != nil {
		if service.IsValidation(err) {
			fmt.Fprintln(os.Stderr, err)
			flag.Usage()
			store.Close()
			os.Exit(2)
		}
		logger.WithError(err).Fatal("failed to save admin credential")
	}

	fmt.Printf("admin credential saved for %s in %s\n", *email, cfg.DatabasePath)
}
