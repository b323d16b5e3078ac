package main

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/packetflow/router/control"
	"github.com/packetflow/router/ioselect"
	"github.com/packetflow/router/master"
	"github.com/packetflow/router/router"
	"github.com/packetflow/router/thread"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run CONFIG",
	Short: "Build a router from CONFIG and run it until signaled",
	Args:  cobra.ExactArgs(1),
	RunE:  runRouter,
}

func init() {
	runCmd.Flags().Int("threads", 0, "Number of Threads (default: the config file's threads, which defaults to 1)")
	runCmd.Flags().String("backend", "", "ioselect backend override (poll, select, kqueue); default platform choice")
}

// liveRouter holds the state run needs to hand a control.RouterSource and
// a SIGHUP handler: the current Master plus the config file path to
// re-read when rebuilding a Router. Rebuilds use builtinRegistry(); the
// reg field is not read.
type liveRouter struct {
	mu  sync.RWMutex
	m   *master.Master
	cfg string
	reg func() *router.Registry
}

func (lr *liveRouter) source() *router.Router {
	lr.mu.RLock()
	defer lr.mu.RUnlock()
	return lr.m.ActiveRouter()
}

// reload re-reads lr.cfg and hot-swaps it in via Master.SwapRouter,
// per spec.md §4.C.
func (lr *liveRouter) reload() error {
	lr.mu.RLock()
	m, path := lr.m, lr.cfg
	lr.mu.RUnlock()

	cfg, err := loadConfig(path)
	if err != nil {
		return err
	}
	r, err := buildRouter(cfg, builtinRegistry())
	if err != nil {
		return fmt.Errorf("routerd: rebuilding router: %w", err)
	}
	_, err = m.SwapRouter(r)
	return err
}

func runRouter(cmd *cobra.Command, args []string) error {
	cfgPath := args[0]
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}

	threadCount, _ := cmd.Flags().GetInt("threads")
	if threadCount <= 0 {
		threadCount = cfg.Threads
	}
	if threadCount <= 0 {
		threadCount = runtime.NumCPU()
	}

	backendName, _ := cmd.Flags().GetString("backend")

	m := master.New(log)
	for i := 0; i < threadCount; i++ {
		selector, err := newSelector(backendName)
		if err != nil {
			return fmt.Errorf("routerd: selector for thread %d: %w", i, err)
		}
		m.AddThread(thread.New(i, selector, thread.WithLogger(log)))
	}

	r, err := buildRouter(cfg, builtinRegistry())
	if err != nil {
		return fmt.Errorf("routerd: building router: %w", err)
	}
	if _, err := m.SwapRouter(r); err != nil {
		return fmt.Errorf("routerd: activating router: %w", err)
	}

	lr := &liveRouter{m: m, cfg: cfgPath}

	var ctlListener net.Listener
	if cfg.Control.Address != "" {
		ctlListener, err = net.Listen(cfg.Control.Network, cfg.Control.Address)
		if err != nil {
			return fmt.Errorf("routerd: control listener: %w", err)
		}
		srv := control.New(lr.source, log)
		go func() {
			if err := srv.Serve(ctlListener); err != nil {
				log.Warning().Err(err).Log("control socket stopped")
			}
		}()
	}

	var metricsServer *http.Server
	if cfg.Metrics.Address != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", master.MetricsHandler())
		metricsServer = &http.Server{Addr: cfg.Metrics.Address, Handler: mux}
		go func() {
			ticker := time.NewTicker(time.Second)
			defer ticker.Stop()
			for range ticker.C {
				m.Observe()
			}
		}()
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warning().Err(err).Log("metrics server stopped")
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	runDone := make(chan struct{})
	go func() {
		m.Run()
		close(runDone)
	}()

	for {
		select {
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGHUP:
				if err := lr.reload(); err != nil {
					log.Warning().Err(err).Log("hot swap failed")
				} else {
					log.Info().Log("hot swap complete")
				}
				continue
			default:
				log.Info().Log("shutting down")
				if ctlListener != nil {
					ctlListener.Close()
				}
				if metricsServer != nil {
					metricsServer.Close()
				}
				if active := m.ActiveRouter(); active != nil {
					m.KillRouter(active)
				}
				m.Shutdown()
				<-runDone
				return nil
			}
		case <-runDone:
			return nil
		}
	}
}

func newSelector(backend string) (*ioselect.SelectSet, error) {
	if backend == "" {
		return ioselect.Default(), nil
	}
	return ioselect.WithBackend(backend)
}
