package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"whipcast/internal/core/domain"
	repositories "whipcast/internal/infrastructure/repositories"
	redisrepo "whipcast/internal/infrastructure/repositories/redis"
	"whipcast/pkg/config"
	"whipcast/pkg/logger"
	"whipcast/pkg/utils"
)

const usage = `sessionctl inspects and clears persisted publish session state.

Usage:
  sessionctl [-config path] <command> <room-id>

Commands:
  show          print the stored session, last input id and run marker
  clear         remove the stored session for the room
  clear-last    remove the stored last input id
  clear-marker  remove the run marker (next start counts as fresh)
  unlock        force-release the auto-resume lock
`

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() != 2 {
		flag.Usage()
		os.Exit(2)
	}
	command := flag.Arg(0)
	roomID := domain.RoomID(flag.Arg(1))

	cfg, err := config.Load(*configPath)
	if err != nil {
		cfg = config.DefaultConfig()
	}

	zapLogger := logger.New("warn", "console")
	defer zapLogger.Sync()

	factory, err := repositories.NewRepositoryFactory(cfg, zapLogger.Sugar())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to session store: %v\n", err)
		os.Exit(1)
	}
	defer factory.Close()
	repo := factory.CreateSessionRepository()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch command {
	case "show":
		session, err := repo.Load(ctx, roomID)
		switch {
		case errors.Is(err, domain.ErrSessionNotFound):
			fmt.Println("session: none")
		case err != nil:
			fail("load session", err)
		default:
			out, _ := json.MarshalIndent(session, "", "  ")
			fmt.Printf("session: %s\n", out)
			fmt.Printf("age: %s\n", utils.FormatDuration(time.Since(session.CreatedAt)))
		}

		lastInput, err := repo.LoadLastInputID(ctx, roomID)
		switch {
		case errors.Is(err, domain.ErrLastInputNotFound):
			fmt.Println("last input: none")
		case err != nil:
			fail("load last input", err)
		default:
			fmt.Printf("last input: %s\n", lastInput)
		}

		marker, err := repo.HasRunMarker(ctx, roomID)
		if err != nil {
			fail("read run marker", err)
		}
		fmt.Printf("run marker: %v\n", marker)

	case "clear":
		if err := repo.Clear(ctx, roomID); err != nil {
			fail("clear session", err)
		}
		fmt.Println("session cleared")

	case "clear-last":
		if err := repo.ClearLastInputID(ctx, roomID); err != nil {
			fail("clear last input", err)
		}
		fmt.Println("last input cleared")

	case "clear-marker":
		if err := repo.ClearRunMarker(ctx, roomID); err != nil {
			fail("clear run marker", err)
		}
		fmt.Println("run marker cleared")

	case "unlock":
		// The agent's own release only works for the lock it acquired; the
		// CLI force-deletes whatever holder is stuck.
		if cfg.Redis.Enabled {
			client, err := redisrepo.NewRedisClient(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PoolSize, zapLogger.Sugar())
			if err != nil {
				fail("connect to redis", err)
			}
			defer client.Close()
			if err := redisrepo.ForceReleaseResumeLock(ctx, client, roomID); err != nil {
				fail("release resume lock", err)
			}
		} else if err := repo.ReleaseResumeLock(ctx, roomID); err != nil {
			fail("release resume lock", err)
		}
		fmt.Println("resume lock released")

	default:
		flag.Usage()
		os.Exit(2)
	}
}

func fail(what string, err error) {
	fmt.Fprintf(os.Stderr, "failed to %s: %v\n", what, err)
	os.Exit(1)
}
