package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"boardsync/api"
	"boardsync/broadcast"
	"boardsync/storage"
)

func envInt(name string, def int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		log.Fatalf("invalid %s: %q", name, raw)
	}
	return n
}

func envDur(name string, def time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		log.Fatalf("invalid %s: %q", name, raw)
	}
	return d
}

func redisOptions(connStr string) *redis.Options {
	opts, err := redis.ParseURL(connStr)
	if err == nil {
		return opts
	}
	parts := strings.Split(connStr, ",")
	opts = &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(kv[0]) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.ToLower(kv[1]) == "true" {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts
}

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}

	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	tasksTableName := os.Getenv("TASKS_TABLE")
	columnsTableName := os.Getenv("COLUMNS_TABLE")
	if connStr == "" || tasksTableName == "" || columnsTableName == "" {
		log.Fatal("missing storage config")
	}
	pageSize := envInt("TASKS_PAGE_SIZE", 20)

	tableStore, err := storage.New(connStr, tasksTableName, columnsTableName, pageSize)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	redisConn := os.Getenv("REDIS_CONNECTION_STRING")
	if redisConn == "" {
		log.Fatal("missing redis config")
	}
	rc := redis.NewClient(redisOptions(redisConn))

	store := storage.NewCache(tableStore, rc, envDur("PAGE_CACHE_TTL", 30*time.Second))
	deduper := api.NewRedisDeduper(rc, envDur("IDEMPOTENCY_TTL", 24*time.Hour))

	var auth *api.Auth
	if os.Getenv("LOCAL_AUTH_MODE") != "" {
		auth = api.NewAuth(nil, "", "")
	} else {
		jwtAudience := os.Getenv("AUTH0_AUDIENCE")
		domain := os.Getenv("AUTH0_DOMAIN")
		if jwtAudience == "" || domain == "" {
			log.Fatal("missing Auth0 config")
		}
		jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", domain)
		jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
		if err != nil {
			log.Fatalf("jwks: %v", err)
		}
		auth = api.NewAuth(jwks, jwtAudience, "https://"+domain+"/")
	}

	logger := log.New()
	ctx := context.Background()

	channel := os.Getenv("EVENTS_CHANNEL")
	if channel == "" {
		channel = "boardsync:events"
	}
	router := broadcast.NewRouter(logger)
	bridge := broadcast.NewBridge(rc, channel, router, logger)

	// Events that fail to reach redis are parked on a queue and
	// replayed, so a redis blip does not lose board updates.
	outbox := api.NewOutbox(bridge, nil, envDur("OUTBOX_FLUSH_INTERVAL", 5*time.Second), logger)
	if queueName := os.Getenv("EVENTS_FALLBACK_QUEUE"); queueName != "" {
		parked, err := azqueue.NewQueueClientFromConnectionString(connStr, queueName, nil)
		if err != nil {
			log.Fatalf("fallback queue: %v", err)
		}
		outbox = api.NewOutbox(bridge, parked, envDur("OUTBOX_FLUSH_INTERVAL", 5*time.Second), logger)
	}
	router.AttachPublisher(outbox)
	go bridge.Run(ctx)
	go outbox.Run(ctx)

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	e.Use(api.GzipRequestMiddleware())

	api.Register(e, store, auth, router, deduper, logger)

	listenAddr := ":8080"
	if val, ok := os.LookupEnv("FUNCTIONS_CUSTOMHANDLER_PORT"); ok {
		listenAddr = ":" + val
	}

	e.Logger.Fatal(e.Start(listenAddr))
}
