package infrastructure

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/yourusername/vgrab-go/internal/domain"
	"github.com/yourusername/vgrab-go/pkg/logger"
	"go.uber.org/zap"
)

// progressPrefix marks the machine-readable progress lines on yt-dlp's stdout
const progressPrefix = "vgrab|"

// progressTemplate makes yt-dlp print one parseable line per progress tick
const progressTemplate = "download:" + progressPrefix +
	"%(progress.status)s|%(progress.downloaded_bytes)s|%(progress.total_bytes)s|" +
	"%(progress.total_bytes_estimate)s|%(progress._percent_str)s|%(progress.eta)s|%(progress._eta_str)s"

// BinaryFetcher implements Fetcher by running the yt-dlp executable.
// Everything the process prints, except progress lines, is appended to the
// per-day fetch log.
type BinaryFetcher struct {
	config      *domain.FetcherConfig
	logsDir     string
	eventLogger *logger.MultiLogger // For LogAppError only
	logger      *zap.Logger
}

// NewBinaryFetcher creates a new yt-dlp process fetcher
func NewBinaryFetcher(config *domain.FetcherConfig, logsDir string, eventLogger *logger.MultiLogger, log *zap.Logger) *BinaryFetcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &BinaryFetcher{
		config:      config,
		logsDir:     logsDir,
		eventLogger: eventLogger,
		logger:      log,
	}
}

// Name returns the backend name
func (f *BinaryFetcher) Name() string {
	return domain.BackendBinary
}

// buildArgs builds the yt-dlp argument list.
// exec.Command passes args directly to the process, no shell quoting needed.
func (f *BinaryFetcher) buildArgs(source string, opts domain.FetchOptions) []string {
	var args []string
	if opts.Quiet {
		args = append(args, "--quiet")
	}
	if opts.NoWarnings {
		args = append(args, "--no-warnings")
	}
	if opts.Progress != nil {
		args = append(args, "--newline", "--progress", "--progress-template", progressTemplate)
	}
	if opts.Format != "" {
		args = append(args, "-f", opts.Format)
	}
	if opts.OutputTemplate != "" {
		args = append(args, "-o", opts.OutputTemplate)
	}
	if f.config.CookieFile != "" && fileExists(f.config.CookieFile) {
		args = append(args, "--cookies", f.config.CookieFile)
	}
	return append(args, source)
}

// Fetch runs yt-dlp for source and blocks until it exits
func (f *BinaryFetcher) Fetch(ctx context.Context, source string, opts domain.FetchOptions) error {
	args := f.buildArgs(source, opts)
	cmdLine := commandLine(f.config.YTDLPBinary, args)

	fetchLog, err := f.openLogFile()
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer fetchLog.Close()

	writeLogHeader(fetchLog, source, cmdLine)
	f.logger.Debug("Running yt-dlp", zap.String("command", cmdLine))

	cmd := exec.CommandContext(ctx, f.config.YTDLPBinary, args...)
	cmd.Stderr = fetchLog
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to attach stdout: %w", err)
	}

	if err := cmd.Start(); err != nil {
		writeLogFooter(fetchLog, false, fmt.Sprintf("start failed: %v", err))
		return fmt.Errorf("failed to start yt-dlp: %w", err)
	}

	scanErr := relayOutput(stdout, fetchLog, opts.Progress)
	err = cmd.Wait()

	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		writeLogFooter(fetchLog, false, fmt.Sprintf("yt-dlp failed: %v", err))
		return fmt.Errorf("yt-dlp failed: %w", err)
	}
	if scanErr != nil && f.eventLogger != nil {
		f.eventLogger.LogAppError("Failed to read yt-dlp output", zap.String("source", source), zap.Error(scanErr))
	}

	writeLogFooter(fetchLog, true, fmt.Sprintf("Downloaded: %s", source))
	return nil
}

// commandLine renders the invocation for the fetch log so it can be pasted
// into a shell. Format selectors, output templates and URLs carry brackets,
// percent signs, question marks and ampersands, so any argument outside the
// plain set is single-quoted.
func commandLine(binary string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, shellQuote(binary))
	for _, arg := range args {
		parts = append(parts, shellQuote(arg))
	}
	return strings.Join(parts, " ")
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if strings.IndexFunc(s, func(c rune) bool { return !isPlainArgRune(c) }) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func isPlainArgRune(c rune) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	}
	return strings.ContainsRune("-_./:=@,+", c)
}

// relayOutput forwards progress lines to hook and copies everything else to log
func relayOutput(r io.Reader, log io.Writer, hook domain.ProgressHook) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if report, ok := parseProgressLine(line); ok {
			if hook != nil {
				hook(report)
			}
			continue
		}
		fmt.Fprintln(log, line)
	}
	return scanner.Err()
}

// parseProgressLine parses one line printed through progressTemplate.
// yt-dlp prints NA for fields it does not know.
func parseProgressLine(line string) (domain.ProgressReport, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, progressPrefix) {
		return domain.ProgressReport{}, false
	}

	fields := strings.Split(strings.TrimPrefix(line, progressPrefix), "|")
	if len(fields) != 7 {
		return domain.ProgressReport{}, false
	}

	report := domain.ProgressReport{
		Status:             fields[0],
		DownloadedBytes:    parseBytes(fields[1]),
		TotalBytes:         parseBytes(fields[2]),
		TotalBytesEstimate: parseBytes(fields[3]),
		PercentText:        optional(fields[4]),
		ETA:                -1,
		ETAText:            optional(fields[6]),
	}
	if secs, err := strconv.ParseFloat(strings.TrimSpace(fields[5]), 64); err == nil && secs >= 0 {
		report.ETA = time.Duration(secs * float64(time.Second))
	}
	if report.ETAText == "Unknown" {
		report.ETAText = ""
	}
	return report, true
}

func parseBytes(s string) int64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v < 0 {
		return 0
	}
	return int64(v)
}

func optional(s string) string {
	s = strings.TrimSpace(s)
	if s == "NA" {
		return ""
	}
	return s
}

// openLogFile opens the fetch log file for today
func (f *BinaryFetcher) openLogFile() (*os.File, error) {
	if err := os.MkdirAll(f.logsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	dateStr := time.Now().Format("20060102")
	path := filepath.Join(f.logsDir, string(logger.CategoryFetch)+"-"+dateStr+".log")
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
}

// writeLogHeader writes the fetch start marker
func writeLogHeader(w io.Writer, source, cmdLine string) {
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	fmt.Fprintf(w, "\n=== [%s] Fetch: %s ===\n", timestamp, source)
	fmt.Fprintf(w, "$ %s\n", cmdLine)
}

// writeLogFooter writes the fetch end marker
func writeLogFooter(w io.Writer, success bool, message string) {
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	status := "SUCCESS"
	if !success {
		status = "FAILED"
	}
	fmt.Fprintf(w, "[%s] %s: %s\n", timestamp, status, message)
	fmt.Fprint(w, "=== END ===\n\n")
}

// fileExists checks if a file exists
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
