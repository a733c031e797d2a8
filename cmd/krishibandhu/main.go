package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/Adityatewari181/krishi-bandhu/internal/assistant"
	"github.com/Adityatewari181/krishi-bandhu/internal/config"
	"github.com/Adityatewari181/krishi-bandhu/internal/metrics"
	"github.com/Adityatewari181/krishi-bandhu/internal/playback"
	"github.com/Adityatewari181/krishi-bandhu/internal/query"
	"github.com/Adityatewari181/krishi-bandhu/internal/record"
	"github.com/Adityatewari181/krishi-bandhu/internal/submit"
)

// tokenEnvVar names the environment variable holding the backend token.
const tokenEnvVar = "KRISHI_BANDHU_TOKEN"

var (
	answerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("35")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("35")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))
)

var (
	configPath string
	playReply  bool

	cfg    *config.Config
	logger *slog.Logger
	asst   *assistant.Assistant
)

func main() {
	root := &cobra.Command{
		Use:          "krishibandhu",
		Short:        "Farming Q&A assistant client",
		Long:         "krishibandhu records voice questions, submits text, voice, and image queries to the krishi-bandhu backend, and plays back spoken answers.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setup()
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "path to configuration file")

	askCmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Submit a text question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd.Context(), strings.Join(args, " "))
		},
	}
	askCmd.Flags().BoolVar(&playReply, "play", false, "play the spoken answer if the backend provides one")

	voiceCmd := &cobra.Command{
		Use:   "voice",
		Short: "Record a voice question and submit it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			transcription, _ := cmd.Flags().GetString("transcription")
			imagePath, _ := cmd.Flags().GetString("image")
			return runVoice(cmd.Context(), transcription, imagePath)
		},
	}
	voiceCmd.Flags().String("transcription", "", "transcription of the recorded question")
	voiceCmd.Flags().String("image", "", "attach an image to the voice question")
	voiceCmd.Flags().BoolVar(&playReply, "play", false, "play the spoken answer if the backend provides one")

	imageCmd := &cobra.Command{
		Use:   "image <path> [caption]",
		Short: "Submit an image question",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			caption := ""
			if len(args) > 1 {
				caption = args[1]
			}
			text, _ := cmd.Flags().GetString("text")
			return runImage(cmd.Context(), args[0], caption, text)
		},
	}
	imageCmd.Flags().String("text", "", "submit as a text+image question with this text")
	imageCmd.Flags().BoolVar(&playReply, "play", false, "play the spoken answer if the backend provides one")

	pingCmd := &cobra.Command{
		Use:   "ping",
		Short: "Check backend health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			if err := asst.Health(ctx); err != nil {
				return err
			}
			fmt.Println(labelStyle.Render("backend is healthy"))
			return nil
		},
	}

	root.AddCommand(askCmd, voiceCmd, imageCmd, pingCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: "+err.Error()))
		os.Exit(1)
	}
}

func setup() error {
	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err = initLogger(&cfg.Logging)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	m := metrics.NewDefault()
	if cfg.Metrics.Enabled {
		go serveMetrics(cfg.Metrics.Address)
	}

	tokens := submit.StaticToken(os.Getenv(tokenEnvVar))
	asst = assistant.New(cfg, tokens, record.NewMicrophone(), playback.NewSpeaker(), m, logger)
	return nil
}

// initLogger builds the slog logger from configuration.
func initLogger(cfg *config.LoggingConfig) (*slog.Logger, error) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level: %s", cfg.Level)
	}

	output := os.Stderr
	if cfg.Output != "" && cfg.Output != "stderr" {
		if cfg.Output == "stdout" {
			output = os.Stdout
		} else {
			file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err != nil {
				return nil, fmt.Errorf("failed to open log file: %w", err)
			}
			output = file
		}
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler), nil
}

func serveMetrics(address string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(address, mux); err != nil {
		logger.Error("metrics listener failed", slog.String("error", err.Error()))
	}
}

func runAsk(ctx context.Context, question string) error {
	resp, err := asst.Ask(ctx, question)
	if err != nil {
		return err
	}
	return renderResponse(ctx, resp)
}

func runVoice(ctx context.Context, transcription, imagePath string) error {
	blob, err := recordQuestion()
	if err != nil {
		return err
	}
	if blob == nil {
		fmt.Println(dimStyle.Render("recording discarded"))
		return nil
	}

	var resp *query.NormalizedResponse
	if imagePath != "" {
		image, filename, contentType, err := readImage(imagePath)
		if err != nil {
			return err
		}
		resp, err = asst.AskVoiceImage(ctx, blob, transcription, image, filename, contentType)
		if err != nil {
			return err
		}
	} else {
		resp, err = asst.AskVoice(ctx, blob, transcription)
		if err != nil {
			return err
		}
	}

	return renderResponse(ctx, resp)
}

// recordQuestion drives the interactive recording flow: Enter stops,
// "p" pauses and resumes, "d" discards. Stops landing inside the
// confirmation window ask before committing.
func recordQuestion() (*query.NativeBlob, error) {
	if err := asst.StartRecording(); err != nil {
		return nil, err
	}

	fmt.Println(labelStyle.Render("recording...") + dimStyle.Render("  [Enter] stop  [p] pause/resume  [d] discard"))

	reader := bufio.NewReader(os.Stdin)
	paused := false

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			_ = asst.DiscardRecording()
			return nil, fmt.Errorf("input closed: %w", err)
		}

		switch strings.TrimSpace(line) {
		case "p":
			if paused {
				if err := asst.ResumeRecording(); err != nil {
					return nil, err
				}
				paused = false
				fmt.Println(labelStyle.Render("recording..."))
			} else {
				if err := asst.PauseRecording(); err != nil {
					return nil, err
				}
				paused = true
				fmt.Println(dimStyle.Render("paused"))
			}

		case "d":
			if err := asst.DiscardRecording(); err != nil {
				return nil, err
			}
			return nil, nil

		default:
			blob, pending, err := asst.RequestStopRecording()
			if err != nil {
				return nil, err
			}
			if pending == nil {
				return blob, nil
			}

			fmt.Print(dimStyle.Render("that was very short, keep it? [y/N] "))
			answer, err := reader.ReadString('\n')
			if err != nil || strings.TrimSpace(strings.ToLower(answer)) != "y" {
				if err := pending.Cancel(); err != nil {
					return nil, err
				}
				fmt.Println(labelStyle.Render("recording...") + dimStyle.Render("  still going"))
				continue
			}
			return pending.Confirm()
		}
	}
}

func runImage(ctx context.Context, path, caption, text string) error {
	image, filename, contentType, err := readImage(path)
	if err != nil {
		return err
	}

	var resp *query.NormalizedResponse
	if text != "" {
		resp, err = asst.AskTextImage(ctx, text, image, filename, contentType)
	} else {
		resp, err = asst.AskImage(ctx, image, filename, contentType, caption)
	}
	if err != nil {
		return err
	}

	return renderResponse(ctx, resp)
}

func readImage(path string) (data []byte, filename, contentType string, err error) {
	data, err = os.ReadFile(path)
	if err != nil {
		return nil, "", "", fmt.Errorf("failed to read image: %w", err)
	}

	filename = filepath.Base(path)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		contentType = "image/png"
	case ".jpg", ".jpeg":
		contentType = "image/jpeg"
	case ".webp":
		contentType = "image/webp"
	default:
		contentType = "application/octet-stream"
	}
	return data, filename, contentType, nil
}

func renderResponse(ctx context.Context, resp *query.NormalizedResponse) error {
	if !resp.Success {
		fmt.Println(errorStyle.Render(resp.Message))
		return fmt.Errorf("query failed: %s", resp.Failure)
	}

	if resp.Transcription != "" {
		fmt.Println(dimStyle.Render("heard: " + resp.Transcription))
	}
	fmt.Println(answerStyle.Render(resp.Text))

	if playReply && resp.AudioRef != "" {
		return playAnswer(ctx, resp)
	}
	return nil
}

// playAnswer downloads and plays the spoken answer, blocking until the
// track ends.
func playAnswer(ctx context.Context, resp *query.NormalizedResponse) error {
	if err := asst.LoadReplyAudio(ctx, resp); err != nil {
		return err
	}

	player, err := asst.Player()
	if err != nil {
		return err
	}

	if err := player.Play(); err != nil {
		return err
	}

	fmt.Println(dimStyle.Render(fmt.Sprintf("playing answer (%s)", player.Duration().Round(time.Second))))

	for player.State() == playback.StatePlaying {
		select {
		case <-ctx.Done():
			return player.Pause()
		case <-time.After(100 * time.Millisecond):
		}
	}

	return asst.Close()
}
