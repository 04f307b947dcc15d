// Package main is the metisd forwarder entrypoint: load configuration,
// wire the dispatcher-owned core (PIT/FIB/content store/connection table)
// to the configured listeners, expose the CPI and status surfaces, and run
// until signaled to stop.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/PARC/Metis/internal/config"
	"github.com/PARC/Metis/internal/connection"
	"github.com/PARC/Metis/internal/cpi"
	"github.com/PARC/Metis/internal/cstore"
	"github.com/PARC/Metis/internal/dispatcher"
	"github.com/PARC/Metis/internal/fib"
	"github.com/PARC/Metis/internal/listener"
	"github.com/PARC/Metis/internal/metislog"
	"github.com/PARC/Metis/internal/pit"
	"github.com/PARC/Metis/internal/processor"
	"github.com/PARC/Metis/internal/stats"
	"github.com/PARC/Metis/internal/status"
	"github.com/PARC/Metis/internal/wireformat"
)

const (
	defaultConfigLoc = `/opt/metis/etc/metisd.conf`
	appName          = `metisd`
	shutdownTimeout  = 5 * time.Second
)

// version is set at build time via -ldflags; "devel" otherwise.
var version = "devel"

var (
	confLoc = flag.String("config-file", defaultConfigLoc, "Location for configuration file")
	ver     = flag.Bool("version", false, "Print the version information and exit")
)

func main() {
	flag.Parse()
	if *ver {
		fmt.Printf("%s %s\n", appName, version)
		os.Exit(0)
	}

	var cfg config.Config
	if err := config.LoadConfigFile(&cfg, *confLoc); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config file %v: %v\n", *confLoc, err)
		os.Exit(1)
	}
	if err := cfg.Verify(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config file %v: %v\n", *confLoc, err)
		os.Exit(1)
	}

	log := metislog.New(os.Stderr)
	log.SetAppname(appName)
	if cfg.Global.Log_File != `` {
		fout, err := os.OpenFile(cfg.Global.Log_File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open log file %v: %v\n", cfg.Global.Log_File, err)
			os.Exit(1)
		}
		log.AddWriter(fout)
	}
	if lvl, err := metislog.LevelFromString(cfg.Global.Log_Level); err == nil {
		log.SetLevel(lvl)
	}

	id, ok := cfg.Global.UUID()
	if !ok {
		id = uuid.New()
		if err := cfg.Global.SetForwarderUUID(id, *confLoc); err != nil {
			log.Warn("failed to persist generated Forwarder-UUID", metislog.KVErr(err))
		}
	}
	log.Info("starting", metislog.KV("forwarder-uuid", id.String()), metislog.KV("config-file", *confLoc))

	disp, err := dispatcher.NewEpollDispatcher()
	if err != nil {
		log.Critical("failed to create dispatcher", metislog.KVErr(err))
		os.Exit(1)
	}

	pitTable := pit.NewTable(cfg.Global.PIT_Capacity)
	fibTable := fib.NewTable()
	cs := cstore.NewStore(cfg.Global.Cache_Capacity, dispatcher.NanosToTicks(cfg.Global.CacheDefaultLifetime().Nanoseconds()))
	conns := connection.NewTable()
	syms := connection.NewSymbolicTable()
	st := stats.NewRegistry()
	debug := cfg.Global.Debug

	// Sweep the FIB and PIT of a connection the moment it leaves the
	// connection table, whether that removal was requested over the CPI
	// or discovered by a listener's read loop noticing a socket error.
	conns.SetOnRemove(func(id wireformat.ConnectionID) {
		fibTable.RemoveByConnection(id)
		pitTable.RemoveConnection(id)
	})

	proc := &processor.Processor{
		CS:                           cs,
		PIT:                          pitTable,
		FIB:                          fibTable,
		Conns:                        conns,
		Stats:                        st,
		Log:                          log,
		Now:                          disp.Now,
		DefaultInterestLifetimeTicks: dispatcher.MillisToTicks(4000),
		DefaultCacheLifetimeTicks:    dispatcher.NanosToTicks(cfg.Global.CacheDefaultLifetime().Nanoseconds()),
	}

	type namedCloser struct {
		name string
		fn   func() error
	}
	var closers []namedCloser
	etherListeners := make(map[string]*listener.EtherListener)

	for name, lc := range cfg.TCP {
		l, lerr := listener.ListenTCP(lc.Bind_String, disp, proc, conns, st, log)
		if lerr != nil {
			log.Critical("failed to bind tcp listener", metislog.KV("name", name), metislog.KVErr(lerr))
			os.Exit(1)
		}
		l.Serve()
		closers = append(closers, namedCloser{"tcp:" + name, l.Close})
	}
	for name, lc := range cfg.UDP {
		l, lerr := listener.ListenUDP(lc.Bind_String, disp, proc, conns, st, log)
		if lerr != nil {
			log.Critical("failed to bind udp listener", metislog.KV("name", name), metislog.KVErr(lerr))
			os.Exit(1)
		}
		l.Serve()
		closers = append(closers, namedCloser{"udp:" + name, l.Close})
	}
	for name, lc := range cfg.Local {
		l, lerr := listener.ListenLocal(lc.Socket_Path, disp, proc, conns, st, log)
		if lerr != nil {
			log.Critical("failed to bind local listener", metislog.KV("name", name), metislog.KVErr(lerr))
			os.Exit(1)
		}
		l.Serve()
		closers = append(closers, namedCloser{"local:" + name, l.Close})
	}
	for name, lc := range cfg.Ether {
		var mac net.HardwareAddr
		if lc.Local_MAC != `` {
			if mac, err = net.ParseMAC(lc.Local_MAC); err != nil {
				log.Critical("invalid Local-MAC", metislog.KV("name", name), metislog.KVErr(err))
				os.Exit(1)
			}
		}
		l, lerr := listener.ListenEther(lc.Interface, layers.EthernetType(lc.EtherType()), mac, int32(lc.Snap_Len), disp, proc, conns, st, log)
		if lerr != nil {
			log.Critical("failed to bind ether listener", metislog.KV("name", name), metislog.KV("interface", lc.Interface), metislog.KVErr(lerr))
			os.Exit(1)
		}
		l.Serve()
		etherListeners[lc.Interface] = l
		closers = append(closers, namedCloser{"ether:" + name, l.Close})
	}

	if len(closers) == 0 {
		log.Critical("no listeners configured")
		os.Exit(1)
	}

	handler := cpi.NewHandler(disp, fibTable, conns, syms, st, log, &debug, proc, etherListeners)

	for name, rc := range cfg.Route {
		if rerr := handler.AddRoute(cpi.AddRouteRequest{Prefix: rc.Prefix, Connection: rc.Nexthop_Connection, Cost: uint32(rc.Cost)}); rerr != nil {
			log.Warn("failed to seed static route, retry via CPI once its connection exists",
				metislog.KV("route", name), metislog.KV("prefix", rc.Prefix), metislog.KVErr(rerr))
		}
	}

	collector := status.NewCollector(status.Sources{
		ConnectionCount: func() int { return len(handler.ListConnections()) },
		PITEntryCount:   pitTable.Len,
		RouteCount:      func() int { return len(handler.ListRoutes()) },
		CacheStats:      handler.CacheStats,
		Debug:           handler.Debug,
	})
	statusSrv := status.NewServer(collector, log)
	httpSrv := &http.Server{Addr: cfg.Global.Status_Bind, Handler: statusSrv.Handler()}
	go func() {
		if serr := httpSrv.ListenAndServe(); serr != nil && serr != http.ErrServerClosed {
			log.Error("status server exited", metislog.KVErr(serr))
		}
	}()
	log.Info("status surface listening", metislog.KV("bind", cfg.Global.Status_Bind))

	watcher, werr := config.WatchFile(*confLoc, log, func(c *config.Config) error {
		if lvl, lerr := metislog.LevelFromString(c.Global.Log_Level); lerr == nil {
			log.SetLevel(lvl)
		}
		handler.SetDebug(cpi.SetDebugRequest{Debug: c.Global.Debug})
		return nil
	})
	if werr != nil {
		log.Warn("config file watch unavailable", metislog.KVErr(werr))
	}

	onSignal := func() {
		log.Info("received shutdown signal")
		disp.Stop()
	}
	if h, serr := disp.RegisterSignal(int(syscall.SIGINT), onSignal); serr != nil {
		log.Warn("failed to register SIGINT handler", metislog.KVErr(serr))
	} else {
		defer h.Cancel()
	}
	if h, serr := disp.RegisterSignal(int(syscall.SIGTERM), onSignal); serr != nil {
		log.Warn("failed to register SIGTERM handler", metislog.KVErr(serr))
	} else {
		defer h.Cancel()
	}

	log.Info("forwarder running")
	runErr := disp.Run()

	if watcher != nil {
		watcher.Close()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := httpSrv.Shutdown(shutdownCtx); serr != nil {
		log.Error("status server shutdown failed", metislog.KVErr(serr))
	}

	var g errgroup.Group
	for _, c := range closers {
		c := c
		g.Go(func() error {
			if cerr := c.fn(); cerr != nil {
				return fmt.Errorf("%s: %w", c.name, cerr)
			}
			return nil
		})
	}
	if gerr := g.Wait(); gerr != nil {
		log.Error("error closing listeners", metislog.KVErr(gerr))
	}

	if runErr != nil {
		log.Error("dispatcher exited with error", metislog.KVErr(runErr))
		os.Exit(1)
	}
	log.Info("forwarder exiting")
}
