// Command plantctl is the administrator's console for plantdesk accounts. It
// talks to the database directly through the same service the desktop login
// uses, so every action lands in the audit log.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/plantdesk/plantdesk/internal/config"
	"github.com/plantdesk/plantdesk/internal/database"
	"github.com/plantdesk/plantdesk/internal/logger"
	"github.com/plantdesk/plantdesk/internal/service"
)

func main() {
	if err := newRootCmd(openPostgres).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// openPostgres wires the auth service over the configured database
func openPostgres(ctx context.Context) (*service.AuthService, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format).WithComponent("plantctl")

	db, err := database.NewPostgres(cfg.Database, cfg.Pool)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// One operator command at a time needs no warm connections
	poolCfg := cfg.Pool
	poolCfg.MinConnections = 0
	p, err := db.NewPool(ctx, poolCfg)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to open connection pool: %w", err)
	}

	svc := service.NewAuthService(p, service.PostgresStores, cfg.Security, log)
	closeFn := func() {
		p.Shutdown()
		db.Close()
	}
	return svc, closeFn, nil
}
