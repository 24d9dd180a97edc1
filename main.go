package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"copilot/core"
	"copilot/factories"
	"copilot/protocol"
	"copilot/runner"
	"copilot/session"
	ollamallm "copilot/services/ollama/llm"
	"copilot/store"
	"copilot/transcript"
	"copilot/transports/websocket"
)

func main() {
	var settingsPath string
	flag.StringVar(&settingsPath, "settings", "", "path to settings.json (defaults to SETTINGS_PATH or ./settings.json)")
	flag.Parse()

	if err := godotenv.Load(".env.local"); err != nil {
		core.GetLogger().With(map[string]any{"error": err}).Warn("No .env.local file found or failed to load")
	}

	logger := core.GetLogger()

	if settingsPath == "" {
		settingsPath = getEnv("SETTINGS_PATH", "./settings.json")
	}
	settings, err := factories.SettingsConfigFromFile(settingsPath)
	if err != nil {
		logger.With(map[string]any{"path": settingsPath, "error": err}).Warn("failed to load settings, using defaults")
		settings = factories.DefaultSettingsConfig()
	}
	applyEnvOverrides(&settings)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Persistence ---
	fileStore := store.NewFileStore(settings.Store.Path)
	sessions := session.NewManager(fileStore, settings.Profile.SystemInstruction, logger)
	if restored := sessions.Restore(); restored != nil {
		logger.With(map[string]any{
			"session_id": restored.ShortID(),
			"history":    len(restored.History()),
		}).Info("restored previous session")
	}

	// --- Inference ---
	llmService := ollamallm.NewOllamaLLMService(settings.Ollama, logger)

	// --- UI transport ---
	uiServer := websocket.NewServer(websocket.ServerConfig{
		Addr:            settings.Server.Addr,
		Path:            settings.Server.Path,
		AudioFormat:     audioFormatFromName(settings.Server.AudioEncoding),
		AudioSampleRate: settings.Server.AudioSampleRate,
		Logger:          logger,
	}, websocket.Handler{})

	// --- Transcript buffer ---
	buffer := transcript.NewBuffer(func(preview string) {
		uiServer.SendPartialTranscript(preview, transcript.WordCount(preview))
	})

	// --- Orchestration ---
	run := runner.NewRunner(sessions, buffer, llmService, runner.Callbacks{
		OnSessionChanged: func(summary session.Summary) {
			createdAt := ""
			if !summary.CreatedAt.IsZero() {
				createdAt = summary.CreatedAt.Format(time.RFC3339)
			}
			uiServer.SendSessionStatus(protocol.SessionStatusPayload{
				SessionID:      summary.SessionID,
				CreatedAt:      createdAt,
				ProfilePreview: summary.ProfilePreview,
				HistoryCount:   summary.HistoryCount,
				Active:         summary.Active,
			})
		},
		OnProcessingStateChanged: uiServer.SendProcessingState,
		OnAnswer:                 uiServer.SendAnswer,
		OnError: func(kind runner.ErrorKind, message string) {
			uiServer.SendError(string(kind), message)
		},
	}, runner.Config{
		InferenceTimeout: settings.Runner.InferenceTimeout(),
	}, logger)

	wireUICommands(uiServer, run, buffer, settings)

	// An unreachable Ollama at startup is not fatal; triggers will surface
	// inference errors until it comes up and the process is restarted.
	if err := run.Start(ctx); err != nil {
		logger.With(map[string]any{"error": err}).Error("llm connection check failed")
	}
	if err := uiServer.Start(); err != nil {
		logger.With(map[string]any{"error": err}).Fatal("failed to start ui server")
	}

	// Autostart a session when the settings file carries a profile.
	if settings.Profile.MyProfile != "" || settings.Profile.JobContext != "" {
		if sessions.Current() == nil {
			run.StartSession(settings.Profile.MyProfile, settings.Profile.JobContext, settings.Profile.SystemInstruction)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.With(map[string]any{"signal": sig.String()}).Info("Shutting down...")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := uiServer.Stop(shutdownCtx); err != nil {
		logger.With(map[string]any{"error": err}).Warn("ui server shutdown failed")
	}
	run.Stop()
}

// wireUICommands connects UI commands to the runner. Handlers are installed
// after construction so the server and runner can reference each other.
func wireUICommands(uiServer *websocket.Server, run *runner.Runner, buffer *transcript.Buffer, settings factories.SettingsConfig) {
	uiServer.SetHandler(websocket.Handler{
		OnStartSession: func(profile, jobContext, systemInstruction string) {
			if profile == "" && jobContext == "" {
				profile = settings.Profile.MyProfile
				jobContext = settings.Profile.JobContext
			}
			run.StartSession(profile, jobContext, systemInstruction)
		},
		OnProcessNow:   run.ProcessNow,
		OnClearSession: run.ClearSession,
		OnClearBuffer:  buffer.Clear,
		OnTranscriptSegment: func(text string, final bool) {
			if final {
				buffer.Append(text)
			} else {
				buffer.SetPartial(text)
			}
		},
	})
}

func applyEnvOverrides(settings *factories.SettingsConfig) {
	settings.Ollama.BaseURL = getEnv("OLLAMA_BASE_URL", settings.Ollama.BaseURL)
	settings.Ollama.Model = getEnv("OLLAMA_MODEL", settings.Ollama.Model)
	settings.Ollama.MaxTokens = getEnvAsInt("OLLAMA_MAX_TOKENS", settings.Ollama.MaxTokens)
	settings.Server.Addr = getEnv("UI_SERVER_ADDR", settings.Server.Addr)
	settings.Store.Path = getEnv("SESSION_STORE_PATH", settings.Store.Path)
	settings.Runner.InferenceTimeoutSeconds = getEnvAsInt("INFERENCE_TIMEOUT_SECONDS", settings.Runner.InferenceTimeoutSeconds)
}

func audioFormatFromName(name string) core.AudioEncodingFormat {
	switch strings.ToLower(name) {
	case "ulaw":
		return core.ULAW
	case "alaw":
		return core.ALAW
	default:
		return core.PCM
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}
