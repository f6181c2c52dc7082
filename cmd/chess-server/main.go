package main

import (
    "context"
    "errors"
    "log"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/gin-gonic/gin"
    "go.uber.org/zap"

    "github.com/YassineElZaart/learn-chess/internal/archive"
    appcfg "github.com/YassineElZaart/learn-chess/internal/config"
    "github.com/YassineElZaart/learn-chess/internal/httpapi"
    "github.com/YassineElZaart/learn-chess/internal/hub"
    "github.com/YassineElZaart/learn-chess/internal/msgcat"
    "github.com/YassineElZaart/learn-chess/internal/notify"
    "github.com/YassineElZaart/learn-chess/internal/obslog"
    "github.com/YassineElZaart/learn-chess/internal/render"
    "github.com/YassineElZaart/learn-chess/internal/rules"
    "github.com/YassineElZaart/learn-chess/internal/session"
    "github.com/YassineElZaart/learn-chess/internal/store"
)

func main() {
    cfg, err := appcfg.Load()
    if err != nil {
        log.Fatalf("config error: %v", err)
    }
    if err := obslog.InitFromEnv(); err != nil {
        log.Fatalf("logger init error: %v", err)
    }
    defer obslog.Sync()
    logger := obslog.L()

    ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
    defer stop()

    openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
    backend, err := store.Open(openCtx, cfg)
    cancel()
    if err != nil {
        logger.Fatal("store_open_failed", zap.String("backend", cfg.StoreBackend), zap.Error(err))
    }
    defer func() { _ = backend.Close() }()

    catalog, err := msgcat.New(cfg.MessagesDir)
    if err != nil {
        logger.Fatal("messages_load_failed", zap.Error(err))
    }

    oracle := rules.New()
    opts := []session.Option{
        session.WithMessages(catalog),
        session.WithStrictNegotiation(cfg.StrictNegotiation),
    }

    var arch *archive.Archive
    if backend.DB != nil {
        arch = archive.New(backend.DB)
        if err := arch.Migrate(ctx); err != nil {
            logger.Fatal("archive_migrate_failed", zap.Error(err))
        }
        opts = append(opts, session.WithResultSink(arch))
    }
    if cfg.ResultWebhookURL != "" {
        opts = append(opts, session.WithResultSink(notify.New(cfg.ResultWebhookURL, notify.WithRenderer(catalog))))
    }
    machine := session.New(backend.Store, oracle, opts...)

    h := hub.New(hub.WithSendBuffer(cfg.WSSendBuffer), hub.WithPingInterval(cfg.WSPingInterval))
    deps := httpapi.Deps{
        Machine:        machine,
        Oracle:         oracle,
        Hub:            h,
        Renderer:       render.New(render.WithPieceDir(cfg.PiecesDir)),
        OriginPatterns: cfg.WSOriginPatterns,
    }
    if arch != nil {
        deps.Archive = arch
    }

    gin.SetMode(gin.ReleaseMode)
    srv := &http.Server{
        Addr:              cfg.HTTPAddr,
        Handler:           httpapi.New(deps).Handler(),
        ReadHeaderTimeout: 10 * time.Second,
    }

    errCh := make(chan error, 1)
    go func() {
        logger.Info("http_listen",
            zap.String("addr", cfg.HTTPAddr),
            zap.String("backend", backend.Kind),
            zap.Bool("archive", arch != nil),
            zap.Bool("webhook", cfg.ResultWebhookURL != ""),
            zap.Bool("strict_negotiation", cfg.StrictNegotiation),
        )
        errCh <- srv.ListenAndServe()
    }()

    select {
    case <-ctx.Done():
    case err := <-errCh:
        if err != nil && !errors.Is(err, http.ErrServerClosed) {
            logger.Error("http_serve_failed", zap.Error(err))
        }
    }

    logger.Info("shutdown")
    h.Close()
    shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
    defer cancelShutdown()
    if err := srv.Shutdown(shutdownCtx); err != nil {
        logger.Warn("http_shutdown_error", zap.Error(err))
    }
}
