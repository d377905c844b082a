package main

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/K3das/qin-bridge/asr"
	whispercli "github.com/K3das/qin-bridge/asr/whisper-cli"
	workerswhisper "github.com/K3das/qin-bridge/asr/workers-whisper"
	"github.com/K3das/qin-bridge/bridge"
	"github.com/K3das/qin-bridge/chat"
	"github.com/K3das/qin-bridge/feedback"
	"github.com/K3das/qin-bridge/media"
	"github.com/K3das/qin-bridge/menu"
	"github.com/K3das/qin-bridge/messages"
	"github.com/K3das/qin-bridge/notify"
	"github.com/K3das/qin-bridge/ntfy"
	"github.com/K3das/qin-bridge/server"
	"github.com/K3das/qin-bridge/store"
	"github.com/K3das/qin-bridge/utils"
	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

var CommitHash = ""

const (
	asrBackendWhisperCLI     = "whisper_cli"
	asrBackendWorkersWhisper = "workers_whisper"
)

type config struct {
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8081"`
	StaticDir  string `env:"STATIC_DIR"`
	MenuFile   string `env:"MENU_FILE"`
	BodyLimit  int    `env:"BODY_LIMIT" envDefault:"12582912"`

	Clawdbot        chat.RemoteOptions   `envPrefix:"CLAWDBOT_"`
	ClawdbotCLI     chat.LocalCLIOptions `envPrefix:"CLAWDBOT_"`
	DisableFallback bool                 `env:"DISABLE_CLI_FALLBACK"`

	FFmpegBinary  string `env:"FFMPEG_BINARY" envDefault:"ffmpeg"`
	FFprobeBinary string `env:"FFPROBE_BINARY" envDefault:"ffprobe"`
	StagingDir    string `env:"STAGING_DIR"`
	MaxAudioSize  int64  `env:"MAX_AUDIO_SIZE" envDefault:"10485760"`
	ProbeDuration bool   `env:"PROBE_DURATION" envDefault:"true"`

	ASRBackend            string                                      `env:"ASR_BACKEND" envDefault:"whisper_cli"`
	WhisperOptions        whispercli.Options                          `envPrefix:"WHISPER_"`
	WorkersWhisperOptions workerswhisper.WorkersWhisperClientOptions `envPrefix:"ASR_WORKERS_WHISPER_"`

	FeedbackLogFile      string       `env:"FEEDBACK_LOG_FILE" envDefault:"feedback.log"`
	PostgresDSN          string       `env:"POSTGRES_DSN"`
	Ntfy                 ntfy.Options `envPrefix:"NTFY_"`
	DesktopNotifications bool         `env:"DESKTOP_NOTIFICATIONS" envDefault:"true"`
	DiscordWebhookURL    string       `env:"DISCORD_WEBHOOK_URL"`
}

const environmentPrefix = "QIN_"
const logLevelEnvKey = environmentPrefix + "LOG_LEVEL"

func createLog() *zap.Logger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = ""

	logLevelValue := os.Getenv(logLevelEnvKey)
	logLevel, logLevelErr := zapcore.ParseLevel(logLevelValue)

	if logLevelErr != nil {
		logLevel = zapcore.InfoLevel
	}

	rawLog := zap.New(zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.Lock(os.Stdout),
		logLevel,
	)).Named("qin_bridge")

	if CommitHash != "" {
		rawLog = rawLog.With(zap.String("commit", CommitHash))
	}

	if logLevelErr != nil && logLevelValue != "" {
		rawLog.With(zap.String(logLevelEnvKey, logLevelValue)).Warn("unable to parse log level, using INFO")
	}

	return rawLog
}

func loadMenu(path string) (*menu.Menu, error) {
	if path == "" {
		return menu.Default(), nil
	}
	return menu.LoadFile(path)
}

func newRecognizer(parentLogger *zap.Logger, cfg config) (asr.Recognizer, error) {
	switch cfg.ASRBackend {
	case asrBackendWhisperCLI:
		return whispercli.NewRecognizer(parentLogger, cfg.WhisperOptions), nil
	case asrBackendWorkersWhisper:
		if cfg.WorkersWhisperOptions.Account == "" || cfg.WorkersWhisperOptions.Token == "" {
			return nil, errors.New("workers whisper needs an account id and token")
		}
		return workerswhisper.NewWorkersWhisperClient(cfg.WorkersWhisperOptions), nil
	default:
		return nil, errors.New("unknown asr backend " + cfg.ASRBackend)
	}
}

func newNotifier(log *zap.Logger, cfg config) notify.Notifier {
	notifiers := notify.Multi{}

	if cfg.DesktopNotifications {
		notifiers = append(notifiers, notify.NewDesktop(notify.DesktopOptions{}))
	}

	if cfg.DiscordWebhookURL != "" {
		webhook, err := notify.NewDiscordWebhook(cfg.DiscordWebhookURL)
		if err != nil {
			log.Fatal("failed to create discord webhook notifier", zap.Error(err))
		}
		notifiers = append(notifiers, webhook)
	}

	return notifiers
}

func main() {
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	menuFile := cli.StringP("menu", "m", "", "Menu file path, overrides "+environmentPrefix+"MENU_FILE")
	cli.Parse()

	envErr := godotenv.Load(*envFile)

	parentLogger := createLog()
	defer parentLogger.Sync()

	log := parentLogger.Named("main")
	log.With(zap.String("min_log_level", parentLogger.Level().String())).Info("starting")

	if envErr != nil && !errors.Is(envErr, fs.ErrNotExist) {
		log.Warn("failed to load env file", zap.String("path", *envFile), zap.Error(envErr))
	}

	cfg := config{}
	if err := env.ParseWithOptions(&cfg, env.Options{
		Prefix: environmentPrefix,
	}); err != nil {
		log.Fatal("failed to parse config", zap.Error(err))
	}
	if *menuFile != "" {
		cfg.MenuFile = *menuFile
	}

	m, err := loadMenu(cfg.MenuFile)
	if err != nil {
		log.Fatal("failed to load menu", zap.String("path", cfg.MenuFile), zap.Error(err))
	}

	recognizer, err := newRecognizer(parentLogger, cfg)
	if err != nil {
		log.Fatal("failed to create recognizer", zap.Error(err))
	}

	adapter := asr.NewAdapter(asr.AdapterOptions{
		ParentLogger: parentLogger,
		Recognizer:   recognizer,
		Tools: media.NewFFmpeg(
			media.WithFFmpegBinary(cfg.FFmpegBinary),
			media.WithFFprobeBinary(cfg.FFprobeBinary),
		),
		StagingDir:    cfg.StagingDir,
		MaxAudioSize:  cfg.MaxAudioSize,
		ProbeDuration: cfg.ProbeDuration,
	})

	remote, err := chat.NewRemote(parentLogger, cfg.Clawdbot)
	if err != nil {
		log.Fatal("failed to create remote chat client", zap.Error(err))
	}

	gatewayOptions := chat.GatewayOptions{
		ParentLogger: parentLogger,
		Primary:      remote,
	}
	if !cfg.DisableFallback {
		gatewayOptions.Fallback = chat.NewLocalCLI(parentLogger, cfg.ClawdbotCLI)
	}

	b := bridge.New(bridge.Options{
		ParentLogger: parentLogger,
		Menu:         m,
		Gateway:      chat.NewGateway(gatewayOptions),
		Transcriber:  adapter,
	})

	messageProvider, err := messages.NewProvider()
	if err != nil {
		log.Fatal("failed to create message provider", zap.Error(err))
	}

	recorders := feedback.Recorders{}
	if cfg.FeedbackLogFile != "" {
		recorders = append(recorders, feedback.NewFileLog(cfg.FeedbackLogFile))
	}

	var history feedback.History
	if cfg.PostgresDSN != "" {
		s := store.NewStore(parentLogger)
		if err := s.Connect(context.Background(), cfg.PostgresDSN); err != nil {
			log.Fatal("failed to connect store", zap.Error(err))
		}
		defer s.Close()
		recorders = append(recorders, s)
		history = s
	}

	feedbackHandler := feedback.NewHandler(feedback.HandlerOptions{
		ParentLogger: parentLogger,
		Recorder:     recorders,
		Notifier:     newNotifier(log, cfg),
		Messages:     messageProvider,
	})

	srv := server.New(server.Options{
		ParentLogger: parentLogger,
		Bridge:       b,
		Feedback:     feedbackHandler,
		History:      history,
		StaticDir:    cfg.StaticDir,
		BodyLimit:    cfg.BodyLimit,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g := errgroup.Group{}

	// HTTP server
	g.Go(func() (err error) {
		defer cancel()
		defer utils.PanicToError(log, &err)

		return srv.Run(ctx, cfg.ListenAddr)
	})

	// ntfy relay
	if cfg.Ntfy.Topic != "" {
		listener, err := ntfy.NewListener(parentLogger, cfg.Ntfy, feedbackHandler)
		if err != nil {
			log.Fatal("failed to create ntfy listener", zap.Error(err))
		}

		g.Go(func() (err error) {
			defer cancel()
			defer utils.PanicToError(log, &err)

			return listener.Run(ctx)
		})
	}

	shutdownSignal := make(chan os.Signal, 1)
	signal.Notify(shutdownSignal, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-shutdownSignal:
		cancel()
		log.Info("received signal, shutting down")
	case <-ctx.Done():
		log.Info("context done, shutting down")
	}

	err = g.Wait()
	if err != nil {
		log.Fatal("error group error", zap.Error(err))
	}
}
