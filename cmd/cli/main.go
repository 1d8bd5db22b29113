package main

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"

	"github.com/yourusername/vgrab-go/api/handlers"
	"github.com/yourusername/vgrab-go/internal/app"
	"github.com/yourusername/vgrab-go/internal/domain"
)

var (
	serverURL   string
	noAutoStart bool
	configFile  string
	verbose     bool
	cliConfig   *domain.Config
	rootCmd     = &cobra.Command{
		Use:               "vgrab",
		Short:             "vgrab - video download manager",
		Long:              `Download videos locally or through a running vgrab server.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: loadCLIConfig,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "Server URL (default from server.host and server.port)")
	rootCmd.PersistentFlags().BoolVar(&noAutoStart, "no-auto-start", false, "Don't auto-start server if not running")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")

	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(pruneCmd)
}

// loadCLIConfig reads the shared config; the server URL defaults to the
// address the server would listen on with the same config
func loadCLIConfig(cmd *cobra.Command, args []string) error {
	config, err := app.LoadConfig(configFile)
	if err != nil {
		return err
	}
	cliConfig = config
	if serverURL == "" {
		serverURL = serverAddress(config)
	}
	serverURL = strings.TrimRight(serverURL, "/")
	return nil
}

// ensureServer starts the server if it does not answer (unless --no-auto-start)
func ensureServer(cmd *cobra.Command) {
	if noAutoStart {
		return
	}
	launcher := newServerLauncher(cliConfig, serverURL, configFile)
	if err := launcher.ensure(cmd.Context(), cmd.ErrOrStderr()); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v\n", err)
	}
}

var addCmd = &cobra.Command{
	Use:   "add [url]",
	Short: "Start a download on the server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ensureServer(cmd)

		quality, _ := cmd.Flags().GetString("quality")
		dir, _ := cmd.Flags().GetString("dir")
		follow, _ := cmd.Flags().GetBool("follow")

		payload := map[string]string{"url": args[0]}
		if quality != "" {
			payload["quality"] = quality
		}
		if dir != "" {
			payload["destination"] = dir
		}

		// Subscribe before submitting so no event is missed
		var conn *websocket.Conn
		if follow {
			var err error
			conn, err = dialEvents()
			if err != nil {
				return fmt.Errorf("failed to subscribe to events: %w", err)
			}
			defer conn.Close()
		}

		var record domain.JobRecord
		if err := newAPIClient(serverURL).do(http.MethodPost, "/api/v1/jobs", payload, &record); err != nil {
			return err
		}

		fmt.Printf("Download added successfully!\n")
		fmt.Printf("ID: %s\n", record.ID)
		fmt.Printf("State: %s\n", record.State)

		if conn == nil {
			return nil
		}
		return followJob(conn, record)
	},
}

// dialEvents opens the server's event stream
func dialEvents() (*websocket.Conn, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, err
	}
	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
	u.Path = "/api/v1/events"

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	return conn, err
}

// followJob renders the job's events until it terminates
func followJob(conn *websocket.Conn, record domain.JobRecord) error {
	pc := mpb.New(mpb.WithWidth(64))
	bar := newBarObserver(pc, record.Source)

	var result error
	for {
		var event handlers.Event
		if err := conn.ReadJSON(&event); err != nil {
			result = finishFromRecord(bar, record.ID, err)
			break
		}
		if event.JobID != record.ID {
			continue
		}
		if event.Type != handlers.EventProgress && event.Job == nil {
			continue
		}

		switch event.Type {
		case handlers.EventProgress:
			if event.Progress != nil {
				bar.OnProgress(*event.Progress)
			}
			continue
		case handlers.EventCompletion:
			bar.OnCompletion(*event.Job)
		case handlers.EventFailure:
			bar.OnFailure(*event.Job)
			result = fmt.Errorf("download failed: %s", event.Job.ErrorMessage)
		default:
			continue
		}
		break
	}

	pc.Wait()
	return result
}

// finishFromRecord settles the bar from the stored job once the event stream is gone
func finishFromRecord(bar *barObserver, id string, streamErr error) error {
	var r domain.JobRecord
	if err := newAPIClient(serverURL).do(http.MethodGet, "/api/v1/jobs/"+id, nil, &r); err != nil || !r.IsTerminal() {
		bar.bar.Abort(false)
		return fmt.Errorf("event stream closed: %w", streamErr)
	}
	if r.State == domain.StateSucceeded {
		bar.OnCompletion(r)
		return nil
	}
	bar.OnFailure(r)
	return fmt.Errorf("download failed: %s", r.ErrorMessage)
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ensureServer(cmd)

		query := url.Values{}
		if state, _ := cmd.Flags().GetString("state"); state != "" {
			query.Set("state", state)
		}
		if limit, _ := cmd.Flags().GetInt("limit"); limit > 0 {
			query.Set("limit", fmt.Sprint(limit))
		}
		path := "/api/v1/jobs"
		if len(query) > 0 {
			path += "?" + query.Encode()
		}

		var records []domain.JobRecord
		if err := newAPIClient(serverURL).do(http.MethodGet, path, nil, &records); err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tURL\tQUALITY\tSTATE\tPROGRESS\tCREATED")
		for _, r := range records {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				truncate(r.ID, 8),
				truncate(r.Source, 40),
				r.Quality,
				r.State,
				progressText(r),
				r.CreatedAt.Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show job statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ensureServer(cmd)

		var stats domain.JobStats
		if err := newAPIClient(serverURL).do(http.MethodGet, "/api/v1/jobs/stats", nil, &stats); err != nil {
			return err
		}

		fmt.Println("Job Statistics:")
		fmt.Printf("  Total:     %d\n", stats.Total)
		fmt.Printf("  Pending:   %d\n", stats.Pending)
		fmt.Printf("  Running:   %d\n", stats.Running)
		fmt.Printf("  Succeeded: %d\n", stats.Succeeded)
		fmt.Printf("  Failed:    %d\n", stats.Failed)
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get [id]",
	Short: "Get job details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ensureServer(cmd)

		var r domain.JobRecord
		if err := newAPIClient(serverURL).do(http.MethodGet, "/api/v1/jobs/"+args[0], nil, &r); err != nil {
			return err
		}

		fmt.Printf("Job Details:\n")
		fmt.Printf("  ID:          %s\n", r.ID)
		fmt.Printf("  URL:         %s\n", r.Source)
		fmt.Printf("  Quality:     %s (%s)\n", r.Quality, r.Format)
		fmt.Printf("  Destination: %s\n", r.Destination)
		fmt.Printf("  State:       %s\n", r.State)
		fmt.Printf("  Progress:    %s\n", progressText(r))
		fmt.Printf("  Created:     %s\n", r.CreatedAt.Format("2006-01-02 15:04:05"))
		if r.ResultMessage != "" {
			fmt.Printf("  Result:      %s\n", r.ResultMessage)
		}
		if r.ErrorMessage != "" {
			fmt.Printf("  Error:       %s\n", r.ErrorMessage)
		}
		return nil
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel [id]",
	Short: "Cancel a running job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ensureServer(cmd)

		if err := newAPIClient(serverURL).do(http.MethodPost, "/api/v1/jobs/"+args[0]+"/cancel", nil, nil); err != nil {
			return err
		}
		fmt.Println("Cancellation requested")
		return nil
	},
}

var removeCmd = &cobra.Command{
	Use:   "rm [id]",
	Short: "Remove a finished job from history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ensureServer(cmd)

		if err := newAPIClient(serverURL).do(http.MethodDelete, "/api/v1/jobs/"+args[0], nil, nil); err != nil {
			return err
		}
		fmt.Println("Job removed")
		return nil
	},
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove finished jobs from history",
	RunE: func(cmd *cobra.Command, args []string) error {
		ensureServer(cmd)

		path := "/api/v1/jobs/prune"
		if state, _ := cmd.Flags().GetString("state"); state != "" {
			path += "?" + url.Values{"state": {state}}.Encode()
		}

		var result app.PruneResult
		if err := newAPIClient(serverURL).do(http.MethodPost, path, nil, &result); err != nil {
			return err
		}
		fmt.Printf("Removed %d jobs, %d left\n", result.Deleted, result.Remaining)
		return nil
	},
}

func init() {
	addCmd.Flags().StringP("quality", "q", "", "Quality: best, 720p, 480p, 360p, audio-only")
	addCmd.Flags().StringP("dir", "d", "", "Destination directory on the server")
	addCmd.Flags().BoolP("follow", "f", false, "Show progress until the job ends")
	listCmd.Flags().StringP("state", "s", "", "Filter by state")
	listCmd.Flags().IntP("limit", "n", 0, "Show at most n jobs")
	pruneCmd.Flags().StringP("state", "s", "", "Only succeeded or failed jobs")
}

// progressText renders a record's progress for tables
func progressText(r domain.JobRecord) string {
	switch {
	case r.State == domain.StateSucceeded:
		return "100%"
	case r.BytesTotal > 0:
		return fmt.Sprintf("%.1f%%", r.Percent)
	case r.PercentText != "":
		return r.PercentText
	default:
		return "-"
	}
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
