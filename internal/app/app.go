package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/eamarucci/bot-answer/internal/access"
	"github.com/eamarucci/bot-answer/internal/ask"
	"github.com/eamarucci/bot-answer/internal/bridge"
	"github.com/eamarucci/bot-answer/internal/config"
	"github.com/eamarucci/bot-answer/internal/credential"
	"github.com/eamarucci/bot-answer/internal/db"
	"github.com/eamarucci/bot-answer/internal/http/api/admin"
	"github.com/eamarucci/bot-answer/internal/http/api/bot"
	"github.com/eamarucci/bot-answer/internal/llm"
	"github.com/eamarucci/bot-answer/internal/logging"
	"github.com/eamarucci/bot-answer/internal/modelalias"
	"github.com/eamarucci/bot-answer/internal/modelcatalog"
	"github.com/eamarucci/bot-answer/internal/oauth"
	"github.com/eamarucci/bot-answer/internal/providers"
	"github.com/eamarucci/bot-answer/internal/ratelimit"
	"github.com/eamarucci/bot-answer/internal/roomsettings"
	"github.com/eamarucci/bot-answer/internal/secretbox"
	internalsettings "github.com/eamarucci/bot-answer/internal/settings"
	"github.com/eamarucci/bot-answer/internal/store"
	internalusage "github.com/eamarucci/bot-answer/internal/usage"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	settingsRefreshInterval = 30 * time.Second
	catalogHTTPTimeout      = 15 * time.Second
	shutdownTimeout         = 10 * time.Second
	oauthStateLabel         = "oauth-state"
)

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	conn, err := db.Open(cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	return db.Migrate(conn.WithContext(ctx))
}

// Runtime is the wired application: the HTTP engine plus the resources that
// must be released on shutdown.
type Runtime struct {
	Engine *gin.Engine
	Ask    *ask.Service
	DB     *gorm.DB

	bridge  *bridge.Resolver
	rooms   *roomsettings.Store
	limiter *ratelimit.Manager
}

// Close releases the bridge pool, the redis connection and the room settings file.
func (r *Runtime) Close() {
	if r == nil {
		return
	}
	r.limiter.Close()
	if r.bridge != nil {
		r.bridge.Close()
	}
	if r.rooms != nil {
		if errClose := r.rooms.Close(); errClose != nil {
			log.WithError(errClose).Warn("close room settings")
		}
	}
}

// Build wires every component from cfg. Background loops stop when ctx ends.
func Build(ctx context.Context, cfg config.AppConfig) (*Runtime, error) {
	conn, err := db.Open(cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return nil, errMigrate
	}
	if errReload := internalsettings.Reload(ctx, conn); errReload != nil {
		log.WithError(errReload).Warn("load db settings")
	}
	internalsettings.StartRefresher(ctx, conn, settingsRefreshInterval)
	logAdminState(ctx, conn)

	box, err := secretbox.New(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("app: encryption key: %w", err)
	}
	stateKey, err := box.SubKey(oauthStateLabel)
	if err != nil {
		return nil, err
	}
	st := store.New(conn)

	table := providers.Default().WithBaseURL(providers.OpenRouter, cfg.LLM.OpenRouterBaseURL)
	httpClient := &http.Client{}

	anthropicClient := oauth.NewAnthropicClient(httpClient)
	openaiClient := oauth.NewOpenAIClient(httpClient)
	grants := oauth.NewManager(nil, st, box, map[providers.ID]oauth.Refresher{
		providers.Anthropic: anthropicClient,
		providers.OpenAI:    openaiClient,
	}, nil)

	resolver := credential.NewResolver(box, st, credential.Options{
		EnvFallbackKey: cfg.LLM.FallbackAPIKey,
		VisionMarkers:  cfg.LLM.VisionMarkers,
	})
	adapter := llm.NewAdapter(table, httpClient, llm.AdapterConfig{
		MaxTokens:        cfg.LLM.MaxTokens,
		IncludeReasoning: cfg.LLM.IncludeReasoning,
	})
	completer := llm.NewClient(adapter, grants, cfg.LLM.Timeout)

	bridgeResolver, err := bridge.Open(ctx, cfg.Bridge.DSN, cfg.Bridge.GhostPrefix)
	if err != nil {
		return nil, err
	}
	rooms, err := roomsettings.Open(cfg.RoomSettings.Path, roomsettings.Defaults{
		Model:         cfg.Models.Default,
		BasePrompt:    cfg.Prompts.Base,
		DefaultPrompt: cfg.Prompts.Default,
	})
	if err != nil {
		bridgeResolver.Close()
		return nil, err
	}
	modelalias.Configure(cfg.Models.Default, cfg.Models.Vision, cfg.Models.Aliases)

	catalog := modelcatalog.New(conn, table, &http.Client{Timeout: catalogHTTPTimeout})
	modelcatalog.NewSyncer(catalog, 0, modelcatalog.Source{
		Provider: providers.OpenRouter,
		Key:      catalogKey(st, box, cfg.LLM.FallbackAPIKey),
	}).Start(ctx)

	recorder := internalusage.NewRecorder(conn)
	limiter := ratelimit.NewManager(nil, nil, nil)
	svc := ask.NewService(ask.Config{
		DefaultModel: cfg.Models.Default,
		VisionModel:  cfg.Models.Vision,
		BasePrompt:   cfg.Prompts.Base,
	}, ask.Deps{
		Access:    access.NewChecker(st, bridgeResolver),
		Identity:  bridgeResolver,
		Rooms:     rooms,
		Resolver:  resolver,
		Completer: completer,
		Limiter:   limiter,
		Usage:     recorder,
	})

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger())
	admin.RegisterAdminRoutes(engine, admin.Deps{
		Store:  st,
		Sealer: box,
		Grants: grants,
		OAuthClients: map[providers.ID]oauth.Client{
			providers.Anthropic: anthropicClient,
			providers.OpenAI:    openaiClient,
		},
		StateKey:  stateKey,
		Portals:   bridgeResolver,
		Catalog:   catalog,
		Usage:     recorder,
		Providers: table,
	})
	bot.RegisterRoutes(engine, svc, rooms, cfg.Bot.Token)
	if cfg.Bot.Token == "" {
		log.Warn("bot api token not set; /v0/bot is unauthenticated")
	}

	return &Runtime{Engine: engine, Ask: svc, DB: conn, bridge: bridgeResolver, rooms: rooms, limiter: limiter}, nil
}

// RunServer boots the HTTP server and blocks until ctx is cancelled.
func RunServer(ctx context.Context, cfg config.AppConfig) error {
	logging.Setup(cfg.Log)
	log.WithField("database", describeDSN(cfg.DatabaseDSN)).Info("opening database")

	rt, err := Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           rt.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Infof("starting bot-answer on %s (config=%s)", cfg.Listen, cfg.ConfigPath)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case errServe := <-errCh:
		if errors.Is(errServe, http.ErrServerClosed) {
			return nil
		}
		return errServe
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if errShutdown := srv.Shutdown(shutdownCtx); errShutdown != nil {
		return fmt.Errorf("app: shutdown: %w", errShutdown)
	}
	log.Info("server stopped")
	return nil
}

// catalogKey picks the key used for background catalog syncs: the stored
// server fallback key, else the environment key.
func catalogKey(st *store.Store, box *secretbox.Box, envKey string) modelcatalog.KeyFunc {
	return func(ctx context.Context) (string, error) {
		keys, err := st.FallbackKeys(ctx)
		if err != nil {
			return "", err
		}
		if keys.Text != "" {
			if plain, errOpen := box.Decrypt(keys.Text); errOpen == nil {
				return plain, nil
			}
			return keys.Text, nil
		}
		return envKey, nil
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		entry := log.WithFields(log.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"latency": time.Since(start).Round(time.Millisecond),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("request")
			return
		}
		entry.Debug("request")
	}
}
