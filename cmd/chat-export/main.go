package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/liao/chat-export/internal/ai"
	"github.com/liao/chat-export/internal/chat"
	"github.com/liao/chat-export/internal/config"
	"github.com/liao/chat-export/internal/export"
	"github.com/liao/chat-export/internal/parser"
	"github.com/liao/chat-export/internal/rag"
)

// listFlag 可重复的字符串参数
type listFlag []string

func (l *listFlag) String() string { return strings.Join(*l, ",") }

func (l *listFlag) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func main() {
	configPath := flag.String("config", "", "config file path (yaml/toml/json, optional)")
	inputFile := flag.String("input", "", "chat export file (.txt, .html or encrypted .enc)")
	outputDir := flag.String("output", "", "output directory (overrides export.output_dir)")
	formats := flag.String("format", "", "comma separated export formats: "+strings.Join(export.Formats, ",")+","+config.FormatVectors)
	headerFormat := flag.String("header", "", "header format: auto, android, ios, custom")
	turns := flag.Bool("turns", true, "merge consecutive messages from the same sender into turns")
	mainSubject := flag.String("main", "", "main subject (the assistant side in paired exports)")
	decryptKey := flag.String("decrypt-key", "", "decryption password for .enc files (from env DECRYPT_KEY if not set)")
	gap := flag.Int("gap", -1, "conversation gap in minutes for user/assistant exports (0 = whole chat)")
	compress := flag.Bool("compress", false, "zstd-compress exported files")
	search := flag.String("search", "", "query an existing vectors dir instead of exporting")
	verbose := flag.Bool("v", false, "debug logging")
	var renames listFlag
	flag.Var(&renames, "rename", "rename a subject, old=new (repeatable)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// 命令行参数覆盖配置文件
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if *outputDir != "" {
		cfg.Export.OutputDir = *outputDir
	}
	if *formats != "" {
		cfg.Export.Formats = splitList(*formats)
	}
	if *headerFormat != "" {
		cfg.Parse.Format = *headerFormat
	}
	if set["turns"] {
		cfg.Parse.Turns = *turns
	}
	if *mainSubject != "" {
		cfg.Subjects.Main = *mainSubject
	}
	if *decryptKey != "" {
		cfg.Parse.DecryptKey = *decryptKey
	}
	if *gap >= 0 {
		cfg.Export.ConversationGapMin = *gap
	}
	if set["compress"] {
		cfg.Export.Compress = *compress
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}
	cfg.Subjects.Rename = append(cfg.Subjects.Rename, renames...)
	if cfg.Export.VectorsDir == "" {
		cfg.Export.VectorsDir = filepath.Join(cfg.Export.OutputDir, "vectors")
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel(cfg.Log.Level)})))

	ctx := context.Background()

	if *search != "" {
		if err := runSearch(ctx, cfg, *search); err != nil {
			slog.Error("search failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if *inputFile == "" {
		fmt.Fprintf(os.Stderr, "Usage: chat-export -input <file> [-config <file>] [-format csv,jsonl,...] [-main <name>] [-rename old=new]\n")
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	if err := run(ctx, cfg, *inputFile); err != nil {
		slog.Error("export failed", "error", err)
		os.Exit(1)
	}
	slog.Info("done!")
}

func run(ctx context.Context, cfg *config.Config, inputFile string) error {
	// 1. 解析聊天记录
	opts, err := cfg.ChatOptions()
	if err != nil {
		return err
	}
	c, err := chat.Load(inputFile, opts)
	if err != nil {
		return err
	}
	logReport(c.Report())

	// 2. 改名和主发送者
	rules, err := cfg.Subjects.Renames()
	if err != nil {
		return err
	}
	for _, r := range rules {
		if err := c.ReplaceSubject(r.Old, r.New); err != nil {
			return fmt.Errorf("rename %q: %w", r.Old, err)
		}
		slog.Info("renamed subject", "old", r.Old, "new", r.New)
	}
	if cfg.Subjects.Main != "" {
		if err := c.SetMainSubject(cfg.Subjects.Main); err != nil {
			return fmt.Errorf("set main subject: %w", err)
		}
	}
	mainName, _ := c.MainSubject()
	slog.Info("subjects", "names", c.Subjects(), "main", mainName)

	// 3. 导出
	ds := c.Dataset()
	exportOpts := cfg.ExportOptions()
	var written []string
	for _, format := range cfg.Export.Formats {
		if format == config.FormatVectors {
			n, err := vectorize(ctx, cfg, ds.Turns, exportOpts.Gap)
			if err != nil {
				return err
			}
			written = append(written, fmt.Sprintf("%-22s %s (%d documents)", format, cfg.Export.VectorsDir, n))
			continue
		}

		path := filepath.Join(cfg.Export.OutputDir, export.DefaultFileName(format))
		if cfg.Export.Compress && format != export.FormatSQLite {
			path += export.CompressedSuffix
		}
		stats, err := export.ExportFile(ctx, path, format, ds, exportOpts)
		if err != nil {
			return err
		}
		if stats.Dropped > 0 {
			slog.Warn("turns dropped by alternation rule", "format", format, "dropped", stats.Dropped)
		}
		slog.Info("exported", "format", format, "path", path, "rows", stats.Rows, "pairs", stats.Pairs)
		written = append(written, fmt.Sprintf("%-22s %s (%d rows)", format, path, stats.Rows))
	}

	// 4. 生成导出报告（不输出任何聊天内容）
	report := fmt.Sprintf(`Export Report
=============
Pattern:       %s
Messages:      %d
Turns:         %d
Subjects:      %d
Parse errors:  %d
Orphan lines:  %d
Placeholders:  %d
Outputs:
  %s
`, c.Pattern(), len(ds.Messages), len(ds.Turns), len(ds.Subjects),
		len(c.Report().Errors), len(c.Report().Orphans), c.DroppedPlaceholders(),
		strings.Join(written, "\n  "))
	fmt.Println(report)
	return nil
}

func vectorize(ctx context.Context, cfg *config.Config, turns []parser.Turn, gap time.Duration) (int, error) {
	client, err := ai.NewClient(ctx, cfg.Gemini.APIKey, cfg.Gemini.EmbeddingModel, cfg.Gemini.RPMLimit)
	if err != nil {
		return 0, err
	}
	store, err := rag.NewStore(cfg.Export.VectorsDir, client.EmbedFunc())
	if err != nil {
		return 0, err
	}

	slog.Info("vectorizing conversations...")
	n, err := store.AddConversations(ctx, parser.SplitConversations(turns, gap), 20)
	if err != nil {
		return n, fmt.Errorf("vectorize: %w", err)
	}
	slog.Info("vectorization complete", "total_vectors", store.Count())
	return n, nil
}

func runSearch(ctx context.Context, cfg *config.Config, query string) error {
	client, err := ai.NewClient(ctx, cfg.Gemini.APIKey, cfg.Gemini.EmbeddingModel, cfg.Gemini.RPMLimit)
	if err != nil {
		return err
	}
	store, err := rag.NewStore(cfg.Export.VectorsDir, client.EmbedFunc())
	if err != nil {
		return err
	}
	results, err := rag.NewPipeline(store, 5, 0).Retrieve(ctx, query)
	if err != nil {
		return err
	}
	for _, r := range results {
		fmt.Printf("--- %s (%.3f)\n%s\n", r.ID, r.Similarity, r.Content)
	}
	return nil
}

func logReport(r parser.Report) {
	for i, e := range r.Errors {
		if i >= 10 {
			slog.Warn("more parse errors omitted", "count", len(r.Errors)-i)
			break
		}
		slog.Warn("skipped message", "line", e.Line, "dropped_lines", e.Dropped, "error", e.Err)
	}
	if len(r.Orphans) > 0 {
		slog.Warn("discarded lines before first message", "count", len(r.Orphans), "first_line", r.Orphans[0].Line)
	}
}

func logLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
