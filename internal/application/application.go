package application

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/psds-microservice/citizen-desk/internal/bot"
	"github.com/psds-microservice/citizen-desk/internal/config"
	"github.com/psds-microservice/citizen-desk/internal/database"
	"github.com/psds-microservice/citizen-desk/internal/dialog"
	"github.com/psds-microservice/citizen-desk/internal/events"
	"github.com/psds-microservice/citizen-desk/internal/handler"
	"github.com/psds-microservice/citizen-desk/internal/kafka"
	"github.com/psds-microservice/citizen-desk/internal/mq"
	"github.com/psds-microservice/citizen-desk/internal/nats"
	"github.com/psds-microservice/citizen-desk/internal/notify"
	"github.com/psds-microservice/citizen-desk/internal/repository"
	"github.com/psds-microservice/citizen-desk/internal/router"
	"github.com/psds-microservice/citizen-desk/internal/searchindex"
	"github.com/psds-microservice/citizen-desk/internal/service"
	"github.com/psds-microservice/citizen-desk/internal/session"
	"github.com/psds-microservice/citizen-desk/internal/transport"
	"github.com/psds-microservice/citizen-desk/internal/transport/telegram"
	"github.com/psds-microservice/citizen-desk/pkg/logger"
)

// App runs the chat bot and the operator HTTP API over one ticket store.
type App struct {
	cfg      *config.Config
	log      *logger.Logger
	db       *gorm.DB
	httpSrv  *http.Server
	poller   *telegram.Bot
	handler  transport.Handler
	notifier *notify.Notifier
	bus      *events.Bus
	search   *searchindex.Client
}

// New prepares the store and wires every component. Without a bot token
// only the HTTP API is served.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	db, err := database.Prepare(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	var (
		poller *telegram.Bot
		sender transport.Sender
	)
	if cfg.BotToken != "" {
		poller, err = telegram.New(cfg.BotToken, log)
		if err != nil {
			return nil, err
		}
		sender = poller
	} else {
		log.Warn("BOT_TOKEN is not set: chat bot disabled, notifications are logged only")
		sender = logSender{log: log.Named("offline")}
	}

	bus, err := Events(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	search := searchindex.NewClient(cfg.SearchServiceURL, log)
	notifier := notify.New(sender, cfg.NotifyTimeout, log)

	svc := service.NewTicketService(service.Deps{
		Tickets:     repository.NewTicketRepository(db),
		Directory:   repository.NewDirectoryRepository(db),
		Notifier:    notifier,
		Events:      bus,
		Search:      search,
		Logger:      log,
		AdminSecret: cfg.AdminSecret,
	})
	index := dialog.NewIndex()
	bridge := dialog.NewBridge(index, svc, notifier, log)
	svc.OnTerminal(bridge.ForceStop)

	chat := bot.New(bot.Deps{
		Service:  svc,
		Dialogs:  bridge,
		Sessions: session.NewManager(session.NewMemoryStore(), index),
		Sender:   sender,
		Logger:   log,
	})

	h := router.New(router.Handlers{
		Health:      handler.NewHealthHandler(db),
		Tickets:     handler.NewTicketHandler(svc),
		Departments: handler.NewDepartmentHandler(svc),
	}, cfg.AdminAPIToken)
	httpSrv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &App{
		cfg:      cfg,
		log:      log,
		db:       db,
		httpSrv:  httpSrv,
		poller:   poller,
		handler:  chat,
		notifier: notifier,
		bus:      bus,
		search:   search,
	}, nil
}

// Events connects every configured ticket event backend.
func Events(ctx context.Context, cfg *config.Config, log *logger.Logger) (*events.Bus, error) {
	var backends []events.Backend
	if p := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicTicket); p != nil {
		backends = append(backends, p)
	}
	if cfg.NATS.URL != "" {
		p, err := nats.Connect(ctx, cfg.NATS.URL, cfg.NATS.SubjectPrefix, log)
		if err != nil {
			return nil, fmt.Errorf("nats: %w", err)
		}
		backends = append(backends, p)
	}
	if cfg.RabbitMQ.URL != "" {
		p, err := mq.NewRabbitPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, log)
		if err != nil {
			return nil, fmt.Errorf("rabbitmq: %w", err)
		}
		backends = append(backends, p)
	}
	for _, b := range backends {
		log.Info("ticket events enabled", zap.String("backend", b.Name()))
	}
	return events.NewBus(log, backends...), nil
}

// Run serves until ctx is cancelled, then drains in-flight work.
func (a *App) Run(ctx context.Context) error {
	host := a.cfg.AppHost
	if host == "0.0.0.0" {
		host = "localhost"
	}
	base := "http://" + host + ":" + a.cfg.HTTPPort
	a.log.Info("HTTP server listening",
		zap.String("addr", a.httpSrv.Addr),
		zap.String("swagger", base+"/swagger"),
		zap.String("metrics", base+"/metrics"),
		zap.String("api", base+"/api/v1/"))

	errCh := make(chan error, 1)
	go func() {
		if err := a.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	var wg sync.WaitGroup
	if a.poller != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.log.Info("chat bot polling")
			a.poller.Poll(ctx, a.handler)
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		runErr = fmt.Errorf("http: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.httpSrv.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("http shutdown: %w", err)
	}
	wg.Wait()
	a.notifier.Wait()
	a.search.Wait()
	a.bus.Close()
	if sqlDB, err := a.db.DB(); err == nil {
		sqlDB.Close()
	}
	a.log.Info("stopped")
	return runErr
}

// logSender stands in for the chat transport when no bot token is set.
type logSender struct {
	log *logger.Logger
}

func (s logSender) SendMessage(_ context.Context, chatID int64, text string, _ *transport.Keyboard) (int, error) {
	s.log.Info("message", zap.Int64("chat_id", chatID), zap.String("text", text))
	return 0, nil
}

func (s logSender) SendMedia(_ context.Context, chatID int64, mediaRef, caption string, _ *transport.Keyboard) error {
	s.log.Info("media", zap.Int64("chat_id", chatID), zap.String("media_ref", mediaRef), zap.String("caption", caption))
	return nil
}

func (s logSender) SendLocation(_ context.Context, chatID int64, loc transport.Location) error {
	s.log.Info("location", zap.Int64("chat_id", chatID), zap.Float64("lat", loc.Latitude), zap.Float64("lon", loc.Longitude))
	return nil
}

func (s logSender) SendDocument(_ context.Context, chatID int64, doc transport.Document, _ string) error {
	s.log.Info("document", zap.Int64("chat_id", chatID), zap.String("name", doc.Name), zap.Int("bytes", len(doc.Content)))
	return nil
}

func (s logSender) EditMessage(_ context.Context, chatID int64, messageID int, text string, _ *transport.Keyboard) error {
	s.log.Info("edit", zap.Int64("chat_id", chatID), zap.Int("message_id", messageID), zap.String("text", text))
	return nil
}

func (s logSender) AnswerCallback(context.Context, string, string) error {
	return nil
}
