package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"voxline.dev/call"
	"voxline.dev/provider"
	"voxline.dev/ui"
	"voxline.dev/web"
)

var logger *log.Logger

func init() {
	cobra.OnInitialize(initConfig)
	talkCmd.Flags().Bool("headless", false, "Run without the TUI, log events instead")
	talkCmd.Flags().String("record", "", "Record remote audio to an OGG file")
	rootCmd.AddCommand(talkCmd)
	rootCmd.AddCommand(providersCmd)
	rootCmd.AddCommand(serveCmd)

	rootCmd.PersistentFlags().String("provider", "", "Voice provider ID")
	rootCmd.PersistentFlags().String("model", "", "Model override")
	rootCmd.PersistentFlags().String("voice", "", "Voice override")
	rootCmd.PersistentFlags().String("system", "", "System instructions")
	rootCmd.PersistentFlags().String("api-key", "", "Provider API key")
	rootCmd.PersistentFlags().
		String("capture-cmd", "ffmpeg -f pulse -i default -f s16le -ar 48000 -ac 1 -", "Microphone capture command producing s16le PCM on stdout")
	rootCmd.PersistentFlags().
		String("playback-cmd", "ffplay -f s16le -ar 48000 -ch_layout mono -nodisp -autoexit -", "Playback command reading s16le PCM on stdin")
	rootCmd.PersistentFlags().Int("http-port", 8080, "Debug HTTP server port")

	viper.BindPFlag("provider", rootCmd.PersistentFlags().Lookup("provider"))
	viper.BindPFlag("model", rootCmd.PersistentFlags().Lookup("model"))
	viper.BindPFlag("voice", rootCmd.PersistentFlags().Lookup("voice"))
	viper.BindPFlag("system", rootCmd.PersistentFlags().Lookup("system"))
	viper.BindPFlag("api_key", rootCmd.PersistentFlags().Lookup("api-key"))
	viper.BindPFlag(
		"capture_cmd",
		rootCmd.PersistentFlags().Lookup("capture-cmd"),
	)
	viper.BindPFlag(
		"playback_cmd",
		rootCmd.PersistentFlags().Lookup("playback-cmd"),
	)
	viper.BindPFlag("http_port", rootCmd.PersistentFlags().Lookup("http-port"))
}

func initConfig() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.SetEnvPrefix("voxline")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			fmt.Printf("Error reading config file: %s\n", err)
		}
	}

	logger = log.New(os.Stderr)
}

var rootCmd = &cobra.Command{
	Use:   "voxline",
	Short: "Voxline talks to realtime voice AI providers",
	Long:  `Voxline manages realtime voice sessions: microphone and speaker audio over a peer connection, transcripts over a data channel.`,
}

var talkCmd = &cobra.Command{
	Use:   "talk",
	Short: "Start a voice conversation",
	Run:   runTalk,
}

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List known providers in a table",
	Run:   runProviders,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start a conversation and expose it over HTTP",
	Run:   runServe,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func runTalk(cmd *cobra.Command, args []string) {
	mainLogger, callLogger := createLoggers()

	cfg, err := buildConfig(mainLogger, true)
	if err != nil {
		mainLogger.Fatal("configure session", "error", err.Error())
	}

	recordPath, _ := cmd.Flags().GetString("record")
	opts, cleanup, err := sessionOptions(callLogger, recordPath)
	if err != nil {
		mainLogger.Fatal("open record file", "error", err.Error())
	}
	defer cleanup()

	session := call.New(cfg, opts)
	defer session.Close()

	if err := session.Connect(cmd.Context()); err != nil {
		mainLogger.Fatal("connect", "error", err.Error())
	}

	headless, _ := cmd.Flags().GetBool("headless")
	if headless {
		waitForSignal(session, mainLogger)
		return
	}

	if err := ui.Run(session); err != nil {
		mainLogger.Fatal("run UI", "error", err.Error())
	}
}

func runServe(cmd *cobra.Command, args []string) {
	mainLogger, callLogger := createLoggers()

	cfg, err := buildConfig(mainLogger, false)
	if err != nil {
		mainLogger.Fatal("configure session", "error", err.Error())
	}

	opts, cleanup, err := sessionOptions(callLogger, "")
	if err != nil {
		mainLogger.Fatal("configure session", "error", err.Error())
	}
	defer cleanup()

	session := call.New(cfg, opts)
	defer session.Close()

	if err := session.Connect(cmd.Context()); err != nil {
		mainLogger.Fatal("connect", "error", err.Error())
	}

	port := viper.GetInt("http_port")
	if err := web.Serve(session, port, mainLogger); err != nil {
		mainLogger.Fatal("start HTTP server", "error", err.Error())
	}
}

func runProviders(cmd *cobra.Command, args []string) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Signaling", "Default Model", "Voices"})
	table.SetBorder(false)
	table.SetCenterSeparator("|")
	table.SetColumnSeparator("|")
	table.SetRowSeparator("-")
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)

	for _, p := range provider.All() {
		scheme := "http"
		if p.Scheme == provider.SignalSocket {
			scheme = "websocket"
		}
		table.Append([]string{
			p.ID,
			scheme,
			p.DefaultModel,
			strings.Join(p.AllowedVoices, ", "),
		})
	}

	table.Render()
}

// buildConfig resolves the provider profile and validates the
// selection. With interactive set, missing choices are asked with a
// form instead of silently defaulted.
func buildConfig(mainLogger *log.Logger, interactive bool) (provider.Config, error) {
	providerID := viper.GetString("provider")
	model := viper.GetString("model")
	voice := viper.GetString("voice")

	if interactive && providerID == "" {
		if err := pickSelection(&providerID, &model, &voice); err != nil {
			return provider.Config{}, err
		}
	}

	profile := provider.ResolveOrDefault(providerID, mainLogger)

	apiKey := viper.GetString("api_key")
	if apiKey == "" {
		apiKey = os.Getenv(strings.ToUpper(profile.ID) + "_API_KEY")
	}

	return provider.BuildConfig(
		profile,
		apiKey,
		model,
		voice,
		viper.GetString("system"),
	)
}

func pickSelection(providerID, model, voice *string) error {
	providerOptions := make([]huh.Option[string], 0)
	for _, p := range provider.All() {
		providerOptions = append(
			providerOptions,
			huh.NewOption(
				fmt.Sprintf("%s (%s)", p.ID, p.DefaultModel),
				p.ID,
			),
		)
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Choose a provider").
				Options(providerOptions...).
				Value(providerID),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	profile, err := provider.Resolve(*providerID)
	if err != nil {
		return err
	}

	voiceForm := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Choose a model").
				Options(huh.NewOptions(profile.AllowedModels...)...).
				Value(model),
			huh.NewSelect[string]().
				Title("Choose a voice").
				Options(huh.NewOptions(profile.AllowedVoices...)...).
				Value(voice),
		),
	)
	return voiceForm.Run()
}

func sessionOptions(callLogger *log.Logger, recordPath string) (call.Options, func(), error) {
	opts := call.Options{
		CaptureCommand:  strings.Fields(viper.GetString("capture_cmd")),
		PlaybackCommand: strings.Fields(viper.GetString("playback_cmd")),
		Logger:          callLogger,
	}

	cleanup := func() {}
	if recordPath != "" {
		f, err := os.Create(recordPath)
		if err != nil {
			return call.Options{}, nil, err
		}
		opts.RecordTo = f
		cleanup = func() { f.Close() }
	}
	return opts, cleanup, nil
}

func waitForSignal(session *call.Session, mainLogger *log.Logger) {
	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)

	for {
		select {
		case <-sc:
			session.Disconnect()
			return
		case <-session.Updates():
			if session.Status() == call.StatusDisconnected {
				mainLogger.Info("session ended")
				return
			}
		}
	}
}

func createLoggers() (mainLogger, callLogger *log.Logger) {
	logger.SetLevel(log.DebugLevel)
	logger.SetReportCaller(true)
	logger.SetCallerFormatter(
		func(file string, line int, funcName string) string {
			path, err := filepath.Rel(".", file)
			if err != nil {
				path = file
			}
			return fmt.Sprintf("%s:%d", path, line)
		},
	)

	styles := log.DefaultStyles()
	styles.Prefix = styles.Prefix.MarginTop(1).
		Bold(false).Transform(func(s string) string {
		return strings.TrimSuffix(s, ":")
	})
	styles.Levels[log.InfoLevel] = styles.Levels[log.InfoLevel].
		MaxWidth(6).
		MarginRight(1).
		Bold(false)
	styles.Levels[log.ErrorLevel] = styles.Levels[log.ErrorLevel].
		MaxWidth(6).
		MarginRight(1).
		Bold(false)
	styles.Message = styles.Message.Bold(true).Width(24)
	styles.Key = styles.Key.MarginLeft(1).
		Bold(false).
		Foreground(lipgloss.Color("#ff8800"))

	logger.SetStyles(styles)

	mainLogger = logger.With().WithPrefix("main")
	callLogger = logger.With().WithPrefix("call")

	return
}
