package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"mbif/bridge"
	"mbif/config"
	"mbif/core"
	"mbif/host/serial"
	"mbif/sim"
	"mbif/storage"
)

var (
	configPath = flag.String("config", "", "YAML config file")
	listen     = flag.String("listen", "", "Serve the bridge on a TCP address instead of the serial device")
)

func main() {
	flag.Parse()
	logger := log.New(os.Stderr, "mbif-sim: ", log.LstdFlags)

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			logger.Fatalf("load config: %v", err)
		}
	}
	if err := config.Validate(cfg); err != nil {
		logger.Fatalf("invalid config: %v", err)
	}

	core.SetDebugWriter(func(s string) { logger.Print(s) })
	core.SetDebugEnabled(cfg.Debug)

	geo := cfg.Geometry()
	mem := storage.NewMemFlash(geo)
	if cfg.Storage.Image != "" {
		if err := loadImage(mem, cfg.Storage.Image); err != nil {
			logger.Fatalf("load image: %v", err)
		}
	}
	save := func() error {
		if cfg.Storage.Image == "" {
			return nil
		}
		return saveImage(mem, cfg.Storage.Image)
	}

	dev, err := sim.NewWithFlash(sim.Config{
		Geometry:       geo,
		BoardID:        cfg.Device.BoardID,
		DAPLinkVersion: cfg.Device.DAPLinkVersion,
		Monitor:        cfg.Monitor(),
		USB:            cfg.USBState(),
		ExportDir:      cfg.ExportDir,
		OnRemount: func(sc storage.Config) error {
			logger.Printf("remount: %q visible=%v size=%d", sc.DisplayName(), sc.Visible, sc.FileSize)
			return save()
		},
	}, mem)
	if err != nil {
		logger.Fatalf("create device: %v", err)
	}
	defer dev.Close()

	dev.Power.OnEnter(func(mode core.PowerMode) {
		logger.Printf("power: entering %v", mode)
		if mode == core.PowerModeDown {
			if err := save(); err != nil {
				logger.Printf("save image: %v", err)
			}
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := dev.Bus.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Printf("bus: %v", err)
		}
	}()

	if *listen != "" {
		err = serveTCP(ctx, *listen, dev, logger)
	} else {
		err = serveSerial(ctx, cfg, dev, logger)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Printf("serve: %v", err)
	}

	// Remount and power hooks already run under the bus lock
	dev.Bus.Do(func() {
		if err := save(); err != nil {
			logger.Printf("save image: %v", err)
		}
	})
	st := dev.Bus.Stats()
	logger.Printf("stopped: %d busy reads, %d overruns, %d bus errors", st.BusyReads, st.Overruns, st.BusErrors)
}

func serve(ctx context.Context, rw io.ReadWriter, dev *sim.Device, logger *log.Logger) error {
	srv := bridge.NewServer(rw, dev.Bus,
		bridge.WithLine(dev.Line.Asserted),
		bridge.WithLogger(logger),
	)
	err := srv.Serve(ctx)
	st := srv.Stats()
	logger.Printf("bridge closed: %d frames, %d resyncs, %d errors", st.Frames, st.Resyncs, st.Errors)
	return err
}

func serveSerial(ctx context.Context, cfg *config.Config, dev *sim.Device, logger *log.Logger) error {
	if cfg.Serial.Device == "" {
		return errors.New("no serial device configured; use -listen or set serial.device")
	}
	scfg := serial.DefaultConfig(cfg.Serial.Device)
	scfg.Baud = cfg.Serial.Baud
	scfg.ReadTimeout = cfg.Serial.ReadTimeoutMs
	port, err := serial.Open(scfg)
	if err != nil {
		return err
	}
	defer port.Close()
	if err := port.Flush(); err != nil {
		logger.Printf("flush: %v", err)
	}
	logger.Printf("serving on %s", scfg.Device)
	return serve(ctx, port, dev, logger)
}

// serveTCP accepts one host connection at a time
func serveTCP(ctx context.Context, addr string, dev *sim.Device, logger *log.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	logger.Printf("listening on %s", ln.Addr())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		logger.Printf("host connected from %s", conn.RemoteAddr())
		err = serve(ctx, conn, dev, logger)
		conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			logger.Printf("connection: %v", err)
		}
	}
}

func loadImage(mem *storage.MemFlash, path string) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()
	return mem.LoadHex(f)
}

// saveImage writes through a temporary file so a crash never leaves a
// truncated image
func saveImage(mem *storage.MemFlash, path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".flash-*.hex")
	if err != nil {
		return err
	}
	if err := mem.DumpHex(tmp); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
