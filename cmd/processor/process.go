package main

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dgnsrekt/segstream/internal/coordinator"
	"github.com/dgnsrekt/segstream/internal/imgcodec"
	"github.com/dgnsrekt/segstream/internal/journal"
	"github.com/dgnsrekt/segstream/internal/notify"
	"github.com/dgnsrekt/segstream/internal/output"
	"github.com/dgnsrekt/segstream/internal/process"
	"github.com/dgnsrekt/segstream/internal/segment"
	"github.com/dgnsrekt/segstream/internal/server"
	"github.com/dgnsrekt/segstream/internal/transport"
	"github.com/dgnsrekt/segstream/internal/ws"
)

func processCmd() *cobra.Command {
	var (
		host      string
		port      int
		batchSize int
		workers   int
		outputDir string
		pipelined bool
	)

	cmd := &cobra.Command{
		Use:   "segstream-processor",
		Short: "Receive camera frames and replace their background",
		Long: `Accept one camera connection, batch the incoming frames and write a
background-replaced copy of each frame to the output directory.

Examples:
  # Listen on localhost:6100 and write to ./output_frames
  segstream-processor

  # Larger batches on four workers
  segstream-processor --batch-size 32 --workers 4`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			flags := cmd.Flags()
			if flags.Changed("host") {
				cfg.Stream.Host = host
			}
			if flags.Changed("port") {
				cfg.Stream.Port = port
			}
			if flags.Changed("batch-size") {
				cfg.Processing.BatchSize = batchSize
			}
			if flags.Changed("workers") {
				cfg.Processing.Workers = workers
			}
			if flags.Changed("output-dir") {
				cfg.Processing.OutputDir = outputDir
			}
			if flags.Changed("pipelined") {
				cfg.Processing.Pipelined = pipelined
			}
			if err := cfg.Validate(); err != nil {
				logger.Error("invalid configuration", zap.Error(err))
				return err
			}

			runID := uuid.New().String()
			log := logger.With(zap.String("run", runID))
			return runProcessor(ctx, runID, log)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "listen host (overrides stream.host)")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides stream.port)")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "frames per batch")
	cmd.Flags().IntVar(&workers, "workers", 0, "frames processed concurrently within a batch")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "directory for processed frames")
	cmd.Flags().BoolVar(&pipelined, "pipelined", false, "receive the next batch while processing the current one")

	return cmd
}

func runProcessor(ctx context.Context, runID string, log *zap.Logger) error {
	pc := cfg.Processing

	encoder, err := imgcodec.New(pc.OutputFormat, pc.JPEGQuality)
	if err != nil {
		return err
	}
	out, err := output.NewManager(pc.OutputDir, encoder.Ext())
	if err != nil {
		log.Error("failed to prepare output directory", zap.Error(err))
		return err
	}
	policy, err := pc.Policy()
	if err != nil {
		return err
	}

	stage := process.NewStage(process.Options{
		Decoder:   imgcodec.JPEG(0),
		Encoder:   encoder,
		Segmenter: segment.NewBorderSegmenter(pc.SegmenterTolerance),
		Policy:    policy,
		Output:    out,
		Workers:   pc.Workers,
	}, log)

	// Bind before touching the journal so a second processor on a taken
	// port leaves the existing journal intact.
	ln, err := transport.Listen(cfg.Stream.Addr())
	if err != nil {
		log.Error("failed to listen", zap.String("addr", cfg.Stream.Addr()), zap.Error(err))
		return err
	}
	defer ln.Close()

	var sinks []coordinator.Sink
	if cfg.Journal.Enabled {
		jw, err := journal.Create(cfg.JournalPath())
		if err != nil {
			log.Error("failed to create outcome journal", zap.Error(err))
			return err
		}
		defer func() {
			if err := jw.Close(); err != nil {
				log.Warn("closing outcome journal", zap.Error(err))
			}
		}()
		sinks = append(sinks, jw)
		log.Info("journaling outcomes", zap.String("path", cfg.JournalPath()))
	}

	// The feed and status server stop when the run returns, not on interrupt.
	auxCtx, stopAux := context.WithCancel(context.Background())
	defer stopAux()

	var hub *ws.Hub
	if cfg.HTTP.Enabled {
		hub = ws.NewHub(log)
		go hub.Run(auxCtx)
		sinks = append(sinks, hub)
	}

	coord := coordinator.New(stage, coordinator.Options{
		BatchSize:      pc.BatchSize,
		ReadBufferSize: cfg.Stream.ReadBufferSize,
		MaxRecordSize:  cfg.Stream.MaxRecordSize,
		Pipelined:      pc.Pipelined,
	}, log, sinks...)

	if cfg.HTTP.Enabled {
		stats := func() any { return coord.Stats() }
		events := server.NewStatsStream(stats, cfg.HTTP.StatsInterval, log)
		go events.Run(auxCtx)

		router := server.NewRouter(server.Options{
			Stats:  stats,
			Feed:   hub.HandleWS,
			Events: events.HandleSSE,
		}, log)
		srv := server.New(cfg.HTTP.Addr, router, log)
		go func() {
			if err := srv.Run(auxCtx); err != nil {
				log.Error("status server failed", zap.Error(err))
			}
		}()
	}

	log.Info("processor starting",
		zap.String("addr", ln.Addr()),
		zap.Int("batch_size", pc.BatchSize),
		zap.Int("workers", pc.Workers),
		zap.Bool("pipelined", pc.Pipelined),
		zap.String("output_dir", out.Dir()),
	)

	start := time.Now()
	st, runErr := coord.Serve(ctx, ln)
	if runErr != nil {
		log.Error("processor failed", zap.Error(runErr))
	}

	summary := notify.RunSummary{
		RunID:     runID,
		Frames:    st.FramesProcessed,
		Succeeded: st.Succeeded,
		Failed:    st.Failed,
		Malformed: st.Malformed,
		Dropped:   st.Dropped,
		Batches:   st.Batches,
		OutputDir: out.Dir(),
	}
	notifyCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	notifier := notify.New(&cfg.Notify, log)
	if runErr != nil {
		_ = notifier.SendFailure(notifyCtx, summary, time.Since(start), runErr)
	} else {
		_ = notifier.SendSuccess(notifyCtx, summary, time.Since(start))
	}

	return runErr
}
