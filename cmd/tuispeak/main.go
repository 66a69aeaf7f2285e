// Package main provides the CLI entrypoint for tuispeak.
package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-shellwords"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/verte-zerg/tuispeak/internal/config"
	"github.com/verte-zerg/tuispeak/internal/engine"
	"github.com/verte-zerg/tuispeak/internal/generator"
	"github.com/verte-zerg/tuispeak/internal/lesson"
	"github.com/verte-zerg/tuispeak/internal/model"
	"github.com/verte-zerg/tuispeak/internal/observe"
	"github.com/verte-zerg/tuispeak/internal/speech"
	"github.com/verte-zerg/tuispeak/internal/stats"
	"github.com/verte-zerg/tuispeak/internal/statsui"
	"github.com/verte-zerg/tuispeak/internal/store"
	"github.com/verte-zerg/tuispeak/internal/textmatch"
	"github.com/verte-zerg/tuispeak/internal/tui"
)

const (
	defaultLesson      = "greetings"
	defaultOrder       = model.OrderSequential
	defaultWeakTop     = 8
	defaultWeakFactor  = 2.0
	defaultWeakWindow  = 20
	defaultCurveWindow = 20
	defaultWordRows    = 15
	defaultCurveWords  = 5
)

var version = "dev"

var (
	logLevel string

	practiceLesson     string
	practiceLessonFile string
	practiceOrder      string
	practiceTimed      bool
	practiceFocusWeak  bool
	practiceWeakTop    int
	practiceWeakFactor float64
	practiceWeakWindow int

	engineKind     string
	engineCommand  string
	engineCapture  string
	engineLanguage string
	engineNatsURL  string
	metricsAddr    string

	statsLesson      string
	statsSince       string
	statsLast        int
	statsCurveWindow int
	statsWords       string
	statsTUI         bool

	scoreTarget string
	scoreSpoken string
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "tuispeak",
		Short:         "TUI speaking trainer",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          runPracticeCmd,
	}

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.Flags().StringVar(&practiceLesson, "lesson", defaultLesson, "lesson id or title")
	rootCmd.Flags().StringVar(&practiceLessonFile, "lesson-file", "", "YAML or text lesson file")
	rootCmd.Flags().StringVar(&practiceOrder, "order", defaultOrder, "sentence order (sequential, shuffle, weak)")
	rootCmd.Flags().BoolVar(&practiceTimed, "timed", false, "use a countdown for every sentence")
	rootCmd.Flags().BoolVar(&practiceFocusWeak, "focus-weak", false, "bias practice toward weak words")
	rootCmd.Flags().IntVar(&practiceWeakTop, "weak-top", defaultWeakTop, "number of weak words to focus on")
	rootCmd.Flags().Float64Var(&practiceWeakFactor, "weak-factor", defaultWeakFactor, "weight factor for weak words")
	rootCmd.Flags().IntVar(&practiceWeakWindow, "weak-window", defaultWeakWindow, "number of recent attempts to compute weak words")
	rootCmd.Flags().StringVar(&engineKind, "engine", engine.KindManual, "speech engine ("+strings.Join(engine.Kinds, ", ")+")")
	rootCmd.Flags().StringVar(&engineCommand, "engine-command", "", "recognizer command for the exec engine")
	rootCmd.Flags().StringVar(&engineCapture, "capture-command", "", "audio capture command for the deepgram engine")
	rootCmd.Flags().StringVar(&engineLanguage, "language", "", "recognition language")
	rootCmd.Flags().StringVar(&engineNatsURL, "nats-url", "", "NATS server URL for the nats engine")
	rootCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newLessonsCmd())
	rootCmd.AddCommand(newStatsCmd())
	rootCmd.AddCommand(newScoreCmd())

	return rootCmd
}

func runPracticeCmd(cmd *cobra.Command, _ []string) error {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyStringConfig(cmd, "lesson", &practiceLesson, fileCfg.Practice.Lesson)
	applyStringConfig(cmd, "lesson-file", &practiceLessonFile, fileCfg.Practice.LessonFile)
	applyStringConfig(cmd, "order", &practiceOrder, fileCfg.Practice.Order)
	applyBoolConfig(cmd, "timed", &practiceTimed, fileCfg.Practice.Timed)
	applyBoolConfig(cmd, "focus-weak", &practiceFocusWeak, fileCfg.Practice.FocusWeak)
	applyIntConfig(cmd, "weak-top", &practiceWeakTop, fileCfg.Practice.WeakTop)
	applyFloatConfig(cmd, "weak-factor", &practiceWeakFactor, fileCfg.Practice.WeakFactor)
	applyIntConfig(cmd, "weak-window", &practiceWeakWindow, fileCfg.Practice.WeakWindow)
	applyStringConfig(cmd, "engine", &engineKind, fileCfg.Engine.Kind)
	applyStringConfig(cmd, "engine-command", &engineCommand, fileCfg.Engine.Command)
	applyStringConfig(cmd, "capture-command", &engineCapture, fileCfg.Engine.CaptureCommand)
	applyStringConfig(cmd, "language", &engineLanguage, fileCfg.Engine.Language)
	applyStringConfig(cmd, "nats-url", &engineNatsURL, fileCfg.Engine.NatsURL)
	applyStringConfig(cmd, "metrics-addr", &metricsAddr, fileCfg.Metrics.Addr)

	cfg := model.Config{
		Lesson:     practiceLesson,
		LessonFile: practiceLessonFile,
		Order:      strings.ToLower(strings.TrimSpace(practiceOrder)),
		Timed:      practiceTimed,
		FocusWeak:  practiceFocusWeak,
		WeakTop:    practiceWeakTop,
		WeakFactor: practiceWeakFactor,
		WeakWindow: practiceWeakWindow,
	}
	if cfg.Order == model.OrderWeak {
		cfg.FocusWeak = true
	}
	if err := validateConfig(cfg); err != nil {
		return err
	}
	if err := fileCfg.Session.Validate(); err != nil {
		return fmt.Errorf("invalid [session] config: %w", err)
	}
	sessionCfg := fileCfg.Session.Apply(speech.DefaultConfig())
	sessionCfg.UseTimer = cfg.Timed

	log, closeLog, err := openLogger(logLevel)
	if err != nil {
		return err
	}
	defer closeLog()

	current, err := resolveLesson(cfg)
	if err != nil {
		return err
	}

	st, err := store.Open(config.DefaultDBPath())
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()

	weakSet := map[string]struct{}{}
	if cfg.FocusWeak {
		aggs, err := st.GetWeakWords(context.Background(), cfg.WeakWindow, "")
		if err != nil {
			log.Warn("failed to load weak words", "error", err)
		} else {
			weakSet = stats.SelectWeakWords(aggs, cfg.WeakTop)
		}
	}

	built, err := engine.Build(engineSettings(fileCfg.Engine), log)
	if err != nil {
		return fmt.Errorf("failed to build engine: %w", err)
	}
	defer built.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if metricsAddr != "" {
		provider, err := observe.InitProvider(version)
		if err != nil {
			return fmt.Errorf("failed to init metrics: %w", err)
		}
		defer func() {
			sctx, scancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer scancel()
			if err := provider.Shutdown(sctx); err != nil {
				log.Warn("failed to shut down metrics", "error", err)
			}
		}()
		g.Go(func() error {
			return observe.Serve(gctx, metricsAddr, provider.Handler, log)
		})
	}
	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	bridge := tui.NewBridge()
	opts := []speech.Option{
		speech.WithConfig(sessionCfg),
		speech.WithLogger(log),
		speech.WithCallbacks(bridge.Callbacks()),
		speech.WithRecorder(metrics),
	}
	if built.Permissions != nil {
		opts = append(opts, speech.WithPermissions(built.Permissions))
	}
	ctrl := speech.NewController(built.Engine, opts...)
	defer ctrl.Close()
	defer bridge.Close()

	deps := tui.Deps{
		Sessions:  ctrl,
		Bridge:    bridge,
		History:   st,
		Generator: generator.New(),
		Log:       log,
	}
	if built.Manual != nil {
		deps.Typist = built.Manual
	}
	if built.Publisher != nil {
		deps.Publisher = built.Publisher
	}

	log.Info("practice started", "lesson", current.ID, "engine", engineKind, "order", cfg.Order, "timed", cfg.Timed)
	practice := tui.NewModel(cfg, current, deps, weakSet)
	program := tea.NewProgram(practice, tea.WithAltScreen(), tea.WithContext(gctx))
	g.Go(func() error {
		defer cancel()
		if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			return fmt.Errorf("failed to run TUI: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func engineSettings(file config.EngineConfig) engine.Settings {
	s := engine.Settings{
		Kind:           engineKind,
		Command:        engineCommand,
		CaptureCommand: engineCapture,
		Language:       engineLanguage,
		NatsURL:        engineNatsURL,
	}
	if file.DeepgramKey != nil {
		s.DeepgramKey = *file.DeepgramKey
	}
	if file.DeepgramModel != nil {
		s.DeepgramModel = *file.DeepgramModel
	}
	if file.NatsPrefix != nil {
		s.NatsPrefix = *file.NatsPrefix
	}
	return s
}

// resolveLesson finds the lesson to practice. A lesson file replaces the
// catalog lookup; with several lessons in the file, --lesson picks one.
func resolveLesson(cfg model.Config) (lesson.Lesson, error) {
	if cfg.LessonFile != "" {
		lessons, err := lesson.Load(cfg.LessonFile)
		if err != nil {
			return lesson.Lesson{}, fmt.Errorf("failed to load lesson file: %w", err)
		}
		if len(lessons) == 1 {
			return lessons[0], nil
		}
		if l, ok := lesson.Find(lessons, cfg.Lesson); ok {
			return l, nil
		}
		return lessons[0], nil
	}
	lessons, err := lesson.Catalog(config.DefaultLessonDir())
	if err != nil {
		return lesson.Lesson{}, fmt.Errorf("failed to load lessons: %w", err)
	}
	l, ok := lesson.Find(lessons, cfg.Lesson)
	if !ok {
		return lesson.Lesson{}, fmt.Errorf("lesson %q not found\nRun: tuispeak lessons", cfg.Lesson)
	}
	return l, nil
}

func openLogger(level string) (*slog.Logger, func(), error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, nil, fmt.Errorf("invalid --log-level %q", level)
	}
	path := config.DefaultLogPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	log := slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: lvl}))
	return log, func() { _ = f.Close() }, nil
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := config.DefaultConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts, err := shellwords.Parse(editor)
	if err != nil {
		return fmt.Errorf("failed to parse $EDITOR: %w", err)
	}
	if len(parts) == 0 {
		return fmt.Errorf("editor command is empty")
	}
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

func newLessonsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lessons",
		Short: "List available lessons",
		Args:  cobra.NoArgs,
		RunE:  runLessonsCmd,
	}
}

func runLessonsCmd(cmd *cobra.Command, _ []string) error {
	lessons, err := lesson.Catalog(config.DefaultLessonDir())
	if err != nil {
		return fmt.Errorf("failed to load lessons: %w", err)
	}
	return writeLessons(cmd.OutOrStdout(), lessons)
}

func writeLessons(w io.Writer, lessons []lesson.Lesson) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tLEVEL\tSENTENCES\tSOURCE")
	for _, l := range lessons {
		level := string(l.Difficulty)
		if level == "" {
			level = "-"
		}
		source := l.Source
		if source == "" {
			source = "built-in"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", l.ID, l.Title, level, len(l.Sentences), source)
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show stats",
		Args:  cobra.NoArgs,
		RunE:  runStatsCmd,
	}
	cmd.Flags().StringVar(&statsLesson, "lesson", "", "lesson filter")
	cmd.Flags().StringVar(&statsSince, "since", "", "start date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&statsLast, "last", 0, "limit to last N attempts")
	cmd.Flags().IntVar(&statsCurveWindow, "curve-window", defaultCurveWindow, "moving average window")
	cmd.Flags().StringVar(&statsWords, "words", "", "words for per-word curves (comma separated)")
	cmd.Flags().BoolVar(&statsTUI, "tui", false, "browse stats interactively")
	return cmd
}

func runStatsCmd(cmd *cobra.Command, _ []string) error {
	var sinceTime *time.Time
	if statsSince != "" {
		parsed, err := time.ParseInLocation("2006-01-02", statsSince, time.Local)
		if err != nil {
			return fmt.Errorf("invalid --since value: %w", err)
		}
		sinceTime = &parsed
	}
	if statsLast < 0 {
		return fmt.Errorf("--last must be >= 0")
	}
	if statsCurveWindow < 1 {
		return fmt.Errorf("--curve-window must be >= 1")
	}

	cfg := model.StatsConfig{
		Lesson:      statsLesson,
		Since:       sinceTime,
		Last:        statsLast,
		CurveWindow: statsCurveWindow,
		Words:       statsWords,
	}

	st, err := store.Open(config.DefaultDBPath())
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()

	if statsTUI {
		program := tea.NewProgram(statsui.NewModel(st, cfg), tea.WithAltScreen())
		if _, err := program.Run(); err != nil {
			return fmt.Errorf("failed to run stats TUI: %w", err)
		}
		return nil
	}
	return writeStats(cmd.Context(), cmd.OutOrStdout(), st, cfg)
}

func writeStats(ctx context.Context, w io.Writer, st *store.Store, cfg model.StatsConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	report, err := stats.BuildReport(ctx, st, cfg)
	if err != nil {
		return fmt.Errorf("failed to build report: %w", err)
	}
	var buf bytes.Buffer
	if err := stats.RenderSummary(&buf, report.Attempts); err != nil {
		return err
	}
	if len(report.Attempts) > 0 {
		if err := stats.RenderCurves(&buf, report.Attempts, cfg.CurveWindow, 0); err != nil {
			return err
		}
		if err := stats.RenderWordTable(&buf, report.WordAggsWindow, defaultWordRows); err != nil {
			return err
		}
		words := splitWords(cfg.Words)
		if len(words) == 0 {
			words = stats.TopWordsByFrequency(report.WordAggsAll, defaultCurveWords)
		}
		if len(words) > 0 {
			perAttempt, err := st.ListWordStatsForAttempts(ctx, attemptIDs(report.Attempts), words)
			if err != nil {
				return fmt.Errorf("failed to load word stats: %w", err)
			}
			if err := stats.RenderWordCurves(&buf, report.Attempts, perAttempt, words, cfg.CurveWindow, 0); err != nil {
				return err
			}
		}
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func attemptIDs(attempts []model.AttemptAggregate) []int64 {
	ids := make([]int64, len(attempts))
	for i, a := range attempts {
		ids[i] = a.AttemptID
	}
	return ids
}

func splitWords(input string) []string {
	return textmatch.Tokenize(strings.ReplaceAll(input, ",", " "))
}

func newScoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score a spoken transcript against a target sentence",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return writeScore(cmd.OutOrStdout(), scoreTarget, scoreSpoken)
		},
	}
	cmd.Flags().StringVar(&scoreTarget, "target", "", "target sentence")
	cmd.Flags().StringVar(&scoreSpoken, "spoken", "", "what was said")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}

func writeScore(w io.Writer, target, spoken string) error {
	accuracy := textmatch.Score(target, spoken)
	review := textmatch.Review(target, spoken)
	matched, near, missed := textmatch.Counts(review)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Accuracy: %d%% (%s)\n", accuracy, textmatch.Grade(accuracy))
	fmt.Fprintf(tw, "Matched: %d  Near: %d  Missed: %d\n\n", matched, near, missed)
	for _, r := range review {
		heard := r.Heard
		if heard == "" {
			heard = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Word, r.Status, heard)
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func applyStringConfig(cmd *cobra.Command, name string, target, value *string) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyIntConfig(cmd *cobra.Command, name string, target, value *int) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyFloatConfig(cmd *cobra.Command, name string, target, value *float64) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyBoolConfig(cmd *cobra.Command, name string, target, value *bool) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func defaultConfigTemplate() string {
	return fmt.Sprintf(`# tuispeak configuration
# Uncomment a value to enable it. CLI flags override config values.

[practice]
# lesson = %q        # Lesson id or title (see: tuispeak lessons)
# lesson-file = ""            # YAML or text lesson file
# order = %q         # sequential, shuffle, or weak
# timed = false               # Countdown for every sentence
# focus-weak = false          # Bias practice toward weak words
# weak-top = %d                # Number of weak words to focus on
# weak-factor = %.1f           # Weight factor for weak words
# weak-window = %d            # Number of recent attempts to compute weak words

[session]
# max-restarts = %d            # Consecutive recognizer restarts without a result
# silence-ms = %d           # Minimum silence before an untimed attempt finalizes
# stall-ms = %d             # Restart when an interim result stops changing
# snapshot-ms = %d           # Debounce for the final transcript snapshot
# max-session-s = %d          # Cap on untimed attempts (0 disables)
# min-confidence = 0.0        # Drop final segments scored below this (0-1)

[engine]
# kind = "manual"             # manual, exec, deepgram, or nats
# command = ""                # Recognizer command for the exec engine
# capture-command = ""        # Audio capture command for deepgram (raw 16 kHz mono PCM)
# deepgram-key = ""           # Defaults to $DEEPGRAM_API_KEY
# deepgram-model = ""
# language = ""
# nats-url = ""               # Defaults to nats://127.0.0.1:4222
# nats-subject-prefix = ""

[metrics]
# addr = ""                   # e.g. "127.0.0.1:9464" to serve /metrics
`,
		defaultLesson,
		defaultOrder,
		defaultWeakTop,
		defaultWeakFactor,
		defaultWeakWindow,
		speech.DefaultConfig().MaxRestarts,
		speech.DefaultConfig().SilenceThreshold.Milliseconds(),
		speech.DefaultConfig().StallThreshold.Milliseconds(),
		speech.DefaultConfig().SnapshotDelay.Milliseconds(),
		int(speech.DefaultConfig().MaxSessionDuration.Seconds()),
	)
}

func validateConfig(cfg model.Config) error {
	switch cfg.Order {
	case model.OrderSequential, model.OrderShuffle, model.OrderWeak:
	default:
		return fmt.Errorf("--order must be one of sequential, shuffle, weak")
	}
	if strings.TrimSpace(cfg.Lesson) == "" && cfg.LessonFile == "" {
		return fmt.Errorf("--lesson must not be empty")
	}
	if cfg.WeakTop < 0 {
		return fmt.Errorf("--weak-top must be >= 0")
	}
	if cfg.WeakFactor < 0 {
		return fmt.Errorf("--weak-factor must be >= 0")
	}
	if cfg.WeakWindow < 0 {
		return fmt.Errorf("--weak-window must be >= 0")
	}
	return nil
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}
