package main

import (
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dgnsrekt/segstream/internal/capture"
	"github.com/dgnsrekt/segstream/internal/producer"
	"github.com/dgnsrekt/segstream/internal/transport"
)

func streamCmd() *cobra.Command {
	var (
		host      string
		port      int
		maxFrames int
		fps       float64
		source    string
		dir       string
	)

	cmd := &cobra.Command{
		Use:   "segstream-camera",
		Short: "Capture frames and stream them to the processor",
		Long: `Capture frames from a source, encode them as JPEG and stream them
over TCP to a running segstream-processor.

Examples:
  # Stream the synthetic test pattern to localhost:6100
  segstream-camera

  # Replay a directory of images, 100 frames at 10 fps
  segstream-camera --source directory --dir ./fixtures --max-frames 100 --fps 10`,
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
			if flags.Changed("max-frames") {
				cfg.Camera.MaxFrames = maxFrames
			}
			if flags.Changed("fps") {
				cfg.Camera.FPS = fps
			}
			if flags.Changed("source") {
				cfg.Camera.Source = source
			}
			if flags.Changed("dir") {
				cfg.Camera.Directory = dir
			}
			if err := cfg.Validate(); err != nil {
				logger.Error("invalid configuration", zap.Error(err))
				return err
			}

			log := logger.With(zap.String("run", uuid.New().String()))

			src, err := capture.Open(capture.Options{
				Kind:      cfg.Camera.Source,
				Directory: cfg.Camera.Directory,
				Loop:      cfg.Camera.Loop,
				Width:     cfg.Camera.Width,
				Height:    cfg.Camera.Height,
			})
			if err != nil {
				log.Error("failed to open capture source", zap.Error(err))
				return err
			}
			defer src.Close()

			addr := cfg.Stream.Addr()
			log.Info("connecting to processor", zap.String("addr", addr))
			conn, err := transport.Dial(ctx, addr, transport.DialOptions{
				MaxRetries: cfg.Stream.MaxRetries,
				RetryDelay: cfg.Stream.RetryDelay,
			}, log)
			if err != nil {
				if ctx.Err() != nil {
					log.Info("stopped before connecting")
					return nil
				}
				log.Error("failed to connect", zap.Error(err))
				return err
			}
			defer conn.Close()
			log.Info("connected", zap.String("remote", conn.RemoteAddr()))

			p := producer.New(src, producer.Options{
				FPS:         cfg.Camera.FPS,
				JPEGQuality: cfg.Camera.JPEGQuality,
				MaxFrames:   cfg.Camera.MaxFrames,
				StatsEvery:  cfg.Camera.StatsEvery,
			}, log)
			p.Attach(conn)

			err = p.Run(ctx)
			st := p.Stats()
			log.Info("camera finished",
				zap.String("state", string(st.State)),
				zap.Uint64("frames_sent", st.FramesSent),
				zap.Uint64("bytes_sent", conn.BytesSent()),
				zap.Float64("average_fps", st.AverageFPS()),
			)
			return err
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "processor host (overrides stream.host)")
	cmd.Flags().IntVar(&port, "port", 0, "processor port (overrides stream.port)")
	cmd.Flags().IntVar(&maxFrames, "max-frames", 0, "stop after N frames, 0 for unlimited")
	cmd.Flags().Float64Var(&fps, "fps", 0, "capture rate in frames per second")
	cmd.Flags().StringVar(&source, "source", "", "capture source: synthetic or directory")
	cmd.Flags().StringVar(&dir, "dir", "", "image directory for the directory source")

	return cmd
}
