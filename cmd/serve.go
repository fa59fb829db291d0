package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/bugboard/internal/api"
	"github.com/joescharf/bugboard/internal/daemon"
	"github.com/joescharf/bugboard/internal/logger"
	"github.com/joescharf/bugboard/internal/telemetry"
)

const (
	shutdownTimeout = 10 * time.Second
	stopTimeout     = 5 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the REST API server in the foreground",
	Long: `Run the bugboard REST API server in the foreground.
By default it listens on port 5000. Use --port or server.port to change it.

Use 'bugboard serve start' to run it in the background instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveRun(cmd.Context())
	},
}

var serveStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the server in the background",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStartRun()
	},
}

var serveStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the background server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStopRun()
	},
}

var serveStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the background server is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStatusRun()
	},
}

func init() {
	serveCmd.PersistentFlags().IntP("port", "p", 5000, "port to listen on")
	_ = viper.BindPFlag("server.port", serveCmd.PersistentFlags().Lookup("port"))
	serveCmd.Flags().Bool("debug", false, "include error detail in responses")
	_ = viper.BindPFlag("server.debug", serveCmd.Flags().Lookup("debug"))

	serveCmd.AddCommand(serveStartCmd)
	serveCmd.AddCommand(serveStopCmd)
	serveCmd.AddCommand(serveStatusCmd)
	rootCmd.AddCommand(serveCmd)
}

// pidFile returns the daemon state file under state_dir.
func pidFile() *daemon.PIDFile {
	return daemon.NewPIDFile(filepath.Join(viper.GetString("state_dir"), appName+"-serve.pid"))
}

// serveLogPath returns where the background server writes its output.
func serveLogPath() string {
	return filepath.Join(viper.GetString("state_dir"), appName+"-serve.log")
}

func serveRun(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, daemon.ShutdownSignals()...)
	defer stop()

	srvLog, err := logger.New(viper.GetString("log.mode"))
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer srvLog.Sync()
	log = srvLog

	shutdownTracing, err := telemetry.Init(ctx, srvLog, telemetry.Config{
		Enabled:     viper.GetBool("tracing.enabled"),
		Endpoint:    viper.GetString("tracing.endpoint"),
		Insecure:    true,
		SampleRatio: viper.GetFloat64("tracing.sample_ratio"),
		Environment: viper.GetString("log.mode"),
		Version:     buildVersion,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(tctx); err != nil {
			srvLog.Warn("tracing shutdown", "error", err)
		}
	}()

	svc, err := getService()
	if err != nil {
		return err
	}

	if viper.GetString("log.mode") == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	handler := api.NewServer(svc, srvLog, api.Config{
		Debug:       viper.GetBool("server.debug"),
		CORSOrigins: viper.GetStringSlice("server.cors_origins"),
		Tracing:     viper.GetBool("tracing.enabled"),
	}).Router()

	port := viper.GetInt("server.port")
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", srv.Addr, err)
	}

	srvLog.Info("server listening", "port", port, "store", viper.GetString("store.driver"))
	fmt.Fprintf(ui.Out, "Server running on port %d\n", port)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	srvLog.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	closeStore()
	srvLog.Info("server stopped")
	return nil
}

func serveStartRun() error {
	pf := pidFile()
	if st, running := pf.IsRunning(); running {
		return fmt.Errorf("server already running (PID %d, port %d)", st.PID, st.Port)
	}

	port := viper.GetInt("server.port")
	logPath := serveLogPath()

	if dryRun {
		ui.DryRunMsg("Would start server on port %d (log: %s)", port, logPath)
		return nil
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("find executable: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()

	args := []string{"serve", "--port", strconv.Itoa(port)}
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		args = append(args, "--config", cfgFile)
	}
	child := exec.Command(exe, args...)
	child.Stdout = logFile
	child.Stderr = logFile
	daemon.Detach(child)

	if err := child.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	state := daemon.State{PID: child.Process.Pid, Port: port, LogPath: logPath}
	if err := pf.Acquire(state); err != nil {
		_ = child.Process.Kill()
		return err
	}
	_ = child.Process.Release()

	ui.Success("Server started (PID %d) on http://localhost:%d", state.PID, port)
	ui.VerboseLog("Logs: %s", logPath)
	return nil
}

func serveStopRun() error {
	pf := pidFile()
	st, running := pf.IsRunning()
	if !running {
		_ = pf.Remove()
		return fmt.Errorf("server is not running")
	}

	if dryRun {
		ui.DryRunMsg("Would stop server (PID %d)", st.PID)
		return nil
	}

	if err := pf.Terminate(); err != nil {
		return fmt.Errorf("signal server: %w", err)
	}
	if !waitForExit(pf, stopTimeout) {
		ui.Warning("Server did not exit after %s, killing", stopTimeout)
		if err := pf.Kill(); err != nil {
			return fmt.Errorf("kill server: %w", err)
		}
		waitForExit(pf, stopTimeout)
	}
	if err := pf.Remove(); err != nil {
		return fmt.Errorf("remove PID file: %w", err)
	}
	ui.Success("Server stopped (PID %d)", st.PID)
	return nil
}

func serveStatusRun() error {
	st, running := pidFile().IsRunning()
	if !running {
		ui.Info("Server is %s", "not running")
		return nil
	}
	ui.Success("Server is running (PID %d) on port %d, up %s", st.PID, st.Port, st.Uptime())
	if st.LogPath != "" {
		ui.Info("Logs: %s", st.LogPath)
	}
	return nil
}

func waitForExit(pf *daemon.PIDFile, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if _, running := pf.IsRunning(); !running {
			return true
		}
		time.Sleep(100 * time.Millisecond)
	}
	return false
}
