package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"mintgate.io/internal/campaign"
	"mintgate.io/internal/config"
	"mintgate.io/internal/logging"
	"mintgate.io/internal/metrics"
	"mintgate.io/internal/persistence/datadir"
	"mintgate.io/internal/persistence/indexdb"
	"mintgate.io/internal/persistence/journal"
	"mintgate.io/internal/persistence/objstore"
	"mintgate.io/internal/persistence/snapshot"
	"mintgate.io/internal/transport/feed"
	"mintgate.io/internal/transport/ws"
)

func main() {
	var (
		configPath  = pflag.String("config", "./configs/campaign.yaml", "campaign config path")
		envFile     = pflag.String("env-file", ".env", "dotenv file applied before environment overrides (missing is fine)")
		snapPath    = pflag.String("snapshot", "", `snapshot to resume from (default: latest in data dir; "-" ignores snapshots)`)
		enablePprof = pflag.Bool("pprof", false, "serve /debug/pprof on the loopback interface")
	)
	pflag.Parse()

	cfg, err := config.Resolve(*configPath, *envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signalContext()
	defer cancel()

	if err := run(ctx, cfg, *snapPath, *enablePprof, logger); err != nil {
		logger.Fatal("mintd stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, snapPath string, enablePprof bool, logger *zap.Logger) error {
	ccfg, err := cfg.Build()
	if err != nil {
		return err
	}
	layout := datadir.CampaignLayout(cfg.Server.DataDir, ccfg.ID)
	if err := layout.Ensure(); err != nil {
		return err
	}
	log := logger.With(zap.String("campaign", ccfg.ID))

	c, rec, err := layout.Recover(ctx, ccfg, datadir.RecoverOptions{SnapshotPath: snapPath})
	if err != nil {
		return fmt.Errorf("recover: %w", err)
	}
	log.Info("campaign loaded",
		zap.String("snapshot", rec.SnapshotPath),
		zap.Uint64("snapshot_seq", rec.SnapshotSeq),
		zap.Int("replayed", rec.Replayed),
		zap.Int("journal_segments", rec.Journal.Segments),
		zap.Int("journal_truncated", rec.Journal.Truncated),
		zap.Uint64("seq", c.Seq()))

	// Closed after the journals below so their last segments are queued.
	mirror, err := openMirror(cfg, logger.Named("mirror"))
	if err != nil {
		return err
	}
	defer mirror.Close()

	if created, err := layout.WriteDeploymentOnce(datadir.NewDeployment(ccfg, time.Now())); err != nil {
		return fmt.Errorf("deployment record: %w", err)
	} else if created {
		log.Info("deployment recorded", zap.String("path", layout.DeploymentPath()))
		mirror.Enqueue(layout.DeploymentPath())
	}

	j := journal.NewJournal(layout.Dir)
	defer j.Close()
	audit := journal.NewAuditLog(layout.Dir)
	defer audit.Close()
	if mirror != nil {
		j.OnSegmentClosed(mirror.Enqueue)
		audit.OnSegmentClosed(mirror.Enqueue)
	}

	// Optional read model; it never affects campaign state.
	var idx *indexdb.SQLiteIndex
	if !cfg.Server.DisableIndex {
		idx, err = indexdb.OpenSQLite(layout.IndexPath(), ccfg.ID, logger.Named("index"))
		if err != nil {
			return fmt.Errorf("open index: %w", err)
		}
		defer idx.Close()
		n, err := idx.CatchUp(ctx, rec.Entries)
		if err != nil {
			log.Warn("index catch-up skipped", zap.Error(err))
		} else if n > 0 {
			log.Info("index catching up", zap.Int("entries", n))
		}
	}

	hub := feed.NewHub(ccfg.ID, cfg.Server.FeedBuffer, c.Seq(), logger.Named("feed"))

	rt := campaign.NewRuntime(c, campaign.RuntimeConfig{
		QueueSize:     cfg.Server.QueueSize,
		SnapshotEvery: cfg.Server.SnapshotEvery,
	}, logger.Named("runtime"))
	rt.SetJournal(j)
	rt.AddAuditLog(audit)
	rt.AddSink(hub)
	if idx != nil {
		rt.AddAuditLog(idx)
		rt.AddSink(idx)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	rt.SetObserver(metrics.NewRuntime(reg, ccfg.ID, metrics.Source{
		Status:      rt.Status,
		QueueDepth:  rt.QueueDepth,
		Subscribers: hub.Subscribers,
	}))

	// Snapshot writer.
	sw := &snapshotWriter{layout: layout, idx: idx, mirror: mirror, log: log}
	if rec.SnapshotPath != "" {
		sw.lastSeq, sw.wrote = rec.SnapshotSeq, true
	}
	snapCh := make(chan snapshot.SnapshotV1, 2)
	rt.SetSnapshotSink(snapCh)
	var writer sync.WaitGroup
	writer.Add(1)
	go func() {
		defer writer.Done()
		for snap := range snapCh {
			sw.write(snap)
		}
	}()

	loopDone := make(chan error, 1)
	go func() { loopDone <- rt.Run(ctx) }()

	wsSrv := ws.NewServer(rt, ws.Options{
		RequireSignature: cfg.Auth.RequireSignature,
		MaxClockSkew:     cfg.Auth.MaxClockSkew,
		RequestTimeout:   cfg.Server.RequestTimeout,
	}, logger.Named("ws"))
	feedSrv := feed.NewServer(hub, false, logger.Named("feed"))

	a := &api{
		backend:       rt,
		reg:           reg,
		adminLoopback: cfg.Server.AdminLoopback,
		timeout:       cfg.Server.RequestTimeout,
		index:         idx,
		mirror:        mirror,
	}
	mux := a.routes()
	mux.HandleFunc("/v1/ws", wsSrv.Handler())
	mux.HandleFunc("/v1/feed", feedSrv.WSHandler())
	if enablePprof {
		mux.HandleFunc("/debug/pprof/", loopbackOnly(pprof.Index))
		mux.HandleFunc("/debug/pprof/cmdline", loopbackOnly(pprof.Cmdline))
		mux.HandleFunc("/debug/pprof/profile", loopbackOnly(pprof.Profile))
		mux.HandleFunc("/debug/pprof/symbol", loopbackOnly(pprof.Symbol))
		mux.HandleFunc("/debug/pprof/trace", loopbackOnly(pprof.Trace))
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		runErr = fmt.Errorf("listen: %w", err)
	case err := <-loopDone:
		runErr = fmt.Errorf("runtime: %w", err)
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = srv.Shutdown(shutdownCtx)

	rt.Stop()
	<-rt.Done()
	close(snapCh)
	writer.Wait()

	// The loop has exited, so the campaign can be read directly.
	if !rt.Durable() {
		log.Error("skipping shutdown snapshot: campaign state is ahead of the journal", zap.Uint64("seq", c.Seq()))
		return runErr
	}
	final := c.ExportSnapshot()
	if sw.needsFinal(final.Header.Seq) {
		sw.write(final)
	}
	log.Info("stopped", zap.Uint64("seq", final.Header.Seq), zap.Uint64("total_minted", final.TotalMinted))
	return runErr
}

// openMirror returns nil when off-site copies are disabled.
func openMirror(cfg config.Config, log *zap.Logger) (*objstore.Mirror, error) {
	m := cfg.Mirror
	if !m.Enabled {
		return nil, nil
	}
	client, err := objstore.NewClient(m.Endpoint, m.Bucket, m.Region, objstore.Credentials{
		AccessKeyID:     m.AccessKeyID,
		SecretAccessKey: m.SecretAccessKey,
	})
	if err != nil {
		return nil, err
	}
	log.Info("mirroring data dir", zap.String("endpoint", m.Endpoint), zap.String("bucket", m.Bucket), zap.String("prefix", m.Prefix))
	return objstore.NewMirror(client, cfg.Server.DataDir, objstore.MirrorOptions{
		Prefix:        m.Prefix,
		Workers:       m.Workers,
		QueueCapacity: m.QueueSize,
	}, log), nil
}

// snapshotWriter is used by one goroutine at a time: the writer goroutine,
// then the shutdown path after it has finished.
type snapshotWriter struct {
	layout datadir.Layout
	idx    *indexdb.SQLiteIndex
	mirror *objstore.Mirror
	log    *zap.Logger

	// lastSeq is the seq of the newest snapshot on disk, valid when wrote.
	lastSeq uint64
	wrote   bool
}

func (w *snapshotWriter) write(snap snapshot.SnapshotV1) {
	path := w.layout.SnapshotPath(snap.Header.Seq)
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		w.log.Warn("snapshot write failed", zap.Uint64("seq", snap.Header.Seq), zap.Error(err))
		return
	}
	w.lastSeq, w.wrote = snap.Header.Seq, true
	w.log.Debug("snapshot written", zap.String("path", path))
	if w.idx != nil {
		w.idx.RecordSnapshot(path, snap)
	}
	w.mirror.Enqueue(path)
}

func (w *snapshotWriter) needsFinal(seq uint64) bool { return !w.wrote || w.lastSeq != seq }

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
