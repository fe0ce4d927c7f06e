package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"videoInsight/annotator"
	"videoInsight/config"
	"videoInsight/core"
	"videoInsight/initialization"
	"videoInsight/logger"
	"videoInsight/server"
	"videoInsight/storage"
	"videoInsight/utils"
)

// bootstrap 加载配置、日志并组装服务
func bootstrap(ctx context.Context) (*initialization.Services, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Warn("configuration incomplete", "error", err)
		config.PrintConfigInstructions()
	}
	return initialization.NewSystemInitializer(cfg, log).InitializeSystem(ctx)
}

func newServeCmd() *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer svc.Close()
			defer svc.Logger.Sync()

			cfg := svc.Config
			if port == "" {
				port = cfg.Port
			}
			if _, err := utils.ParsePort(port); err != nil {
				return err
			}

			health := server.NewHealthHandler(svc.StoreKind, svc.SessionsKind, cfg.ChatModel).
				AddCheck("document_store", server.StoreCheck(svc.Store), true).
				AddCheck("upload_dir", server.WritableDirCheck(cfg.UploadDir), true).
				AddCheck("yt_dlp", server.BinaryCheck(cfg.YtDlpPath), false)
			if cache, ok := svc.Embedder.(*storage.CachedEmbedder); ok {
				health.AddCheck("embedding_cache", server.CacheCheck(cache), false)
			}

			srv := server.NewServer(server.RouterConfig{
				Video:        server.NewVideoHandler(svc.Analyzer, svc.Registry, svc.Downloader, cfg.UploadDir, cfg.MaxUploadBytes(), svc.Logger),
				Conversation: server.NewConversationHandler(svc.Registry, svc.Logger),
				Health:       health,
				Logger:       svc.Logger,
			})
			return srv.Run(ctx, ":"+port)
		},
	}
	cmd.Flags().StringVarP(&port, "port", "p", "", "Listen port (default from config)")
	return cmd
}

func newAnalyzeCmd() *cobra.Command {
	var chat bool
	cmd := &cobra.Command{
		Use:   "analyze <path|url>",
		Short: "Analyze a local video, a YouTube url or a gs:// object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer svc.Close()
			defer svc.Logger.Sync()

			src, cleanup, err := resolveSource(ctx, args[0], svc.Downloader)
			if err != nil {
				return err
			}
			defer cleanup()

			videoID, summary, err := svc.Analyzer.Analyze(ctx, src)
			if err != nil {
				return err
			}
			svc.Registry.Start(ctx, videoID, summary)

			if jsonOutput {
				printJSON(core.AnalyzeResponse{VideoID: videoID, Result: summary})
			} else {
				fmt.Printf("Video ID: %s\n\n%s\n", videoID, summary)
			}
			if !chat {
				return nil
			}
			return chatLoop(ctx, os.Stdin, os.Stdout, svc.Registry, videoID)
		},
	}
	cmd.Flags().BoolVar(&chat, "chat", false, "Start an interactive conversation after the analysis")
	return cmd
}

func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat <video_id>",
		Short: "Talk about a previously analyzed video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer svc.Close()
			defer svc.Logger.Sync()

			return chatLoop(ctx, os.Stdin, os.Stdout, svc.Registry, args[0])
		},
	}
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Validate the configuration and print a report",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			report := config.GetGlobalValidator().ValidateConfig(cfg)
			if jsonOutput {
				printJSON(report)
			} else {
				fmt.Print(report.GetFormattedReport())
			}
			if !report.Valid {
				return errors.New("configuration is invalid")
			}
			return nil
		},
	}
}

// resolveSource 把命令行参数转换为视频输入，下载的文件由 cleanup 删除
func resolveSource(ctx context.Context, arg string, dl server.Downloader) (annotator.VideoSource, func(), error) {
	noop := func() {}
	switch {
	case strings.HasPrefix(arg, "gs://"):
		return annotator.FromURI(arg), noop, nil
	case strings.HasPrefix(arg, "http://"), strings.HasPrefix(arg, "https://"):
		path, err := dl.Download(ctx, arg)
		if err != nil {
			return annotator.VideoSource{}, noop, err
		}
		return annotator.FromFile(path), func() { _ = os.Remove(path) }, nil
	}
	if !utils.AllowedVideoFile(arg) {
		return annotator.VideoSource{}, noop, fmt.Errorf("%s: %w", arg, core.ErrUnsupportedFileType)
	}
	if !utils.FileExists(arg) {
		return annotator.VideoSource{}, noop, fmt.Errorf("video file %s not found", arg)
	}
	return annotator.FromFile(arg), noop, nil
}

type responder interface {
	Respond(ctx context.Context, videoID, userText string) (string, error)
}

// chatLoop 逐行读取输入直到 "exit" 或 EOF
func chatLoop(ctx context.Context, in io.Reader, out io.Writer, r responder, videoID string) error {
	fmt.Fprintln(out, "Type 'exit' to end the conversation.")
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for {
		fmt.Fprint(out, "You: ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if strings.EqualFold(text, "exit") {
			return nil
		}
		reply, err := r.Respond(ctx, videoID, text)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Assistant: %s\n", reply)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
