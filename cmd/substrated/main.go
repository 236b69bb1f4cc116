package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/btcsuite/btclog/v2"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/spf13/pflag"

	"github.com/basprt/actorframe/internal/actorutil"
	"github.com/basprt/actorframe/internal/baselib/actor"
	"github.com/basprt/actorframe/internal/baselib/address"
	"github.com/basprt/actorframe/internal/baselib/atom"
	"github.com/basprt/actorframe/internal/baselib/registry"
	"github.com/basprt/actorframe/internal/build"
	"github.com/basprt/actorframe/internal/config"
	"github.com/basprt/actorframe/internal/net/basp"
	"github.com/basprt/actorframe/internal/net/middleman"
	"github.com/basprt/actorframe/internal/net/mux"
	"github.com/basprt/actorframe/internal/net/proxy"
	"github.com/basprt/actorframe/internal/net/remote"
)

const echoPoolSize = 4

func main() {
	var (
		bindAddr       = pflag.String("bind", "0.0.0.0", "Address to publish the BASP listener on")
		port           = pflag.Int("port", 0, "Port to publish the BASP listener on (0 picks an ephemeral port)")
		appIDs         = pflag.StringSlice("app-id", []string{"actorframe"}, "Application identifiers this node advertises during handshake")
		heartbeat      = pflag.Duration("heartbeat-interval", 0, "Heartbeat interval for peer connections (0 disables heartbeats)")
		connTimeout    = pflag.Duration("connection-timeout", 0, "Peer connection timeout (0 disables timeout enforcement)")
		utilityActors  = pflag.Bool("attach-utility-actors", true, "Register the built-in remote-echo utility actor")
		logDir         = pflag.String("log-dir", "", "Directory for log files (empty disables file logging)")
		maxLogFiles    = pflag.Int("max-log-files", build.DefaultMaxLogFiles, "Maximum number of rotated log files to keep")
		maxLogFileSize = pflag.Int("max-log-file-size", build.DefaultMaxLogFileSize, "Maximum log file size in MB before rotation")
		wireTrace      = pflag.Bool("basp-wire-trace", false, "Dump every inbound/outbound BASP frame to a dedicated, frequently-rotated log file")
	)
	pflag.Parse()

	// Initialize the rotating log file writer if a log directory is
	// configured.
	var logRotator *build.RotatingLogWriter
	if *logDir != "" {
		logRotator = build.NewRotatingLogWriter()
		err := logRotator.InitLogRotator(&build.LogRotatorConfig{
			LogDir:         *logDir,
			MaxLogFiles:    *maxLogFiles,
			MaxLogFileSize: *maxLogFileSize,
		})
		if err != nil {
			log.Printf("Failed to init log rotator: %v (continuing without file logging)", err)
			logRotator = nil
		} else {
			defer logRotator.Close()
			log.SetOutput(io.MultiWriter(os.Stderr, logRotator))
			log.SetFlags(log.LstdFlags)
		}
	}

	log.Printf("actorframe daemon starting, commit=%s", commitInfo())

	// Assemble the dual-stream (console + optional file) btclog handler
	// set and hand each of the spec-named packages its own tagged
	// sub-logger, matching lnd's subsystem-logging convention.
	var handlers []btclog.Handler
	handlers = append(handlers, btclog.NewDefaultHandler(os.Stderr))
	if logRotator != nil {
		handlers = append(handlers, btclog.NewDefaultHandler(logRotator))
	}
	combined := build.NewHandlerSet(handlers...)
	subLoggers := build.NewSubLoggerGenerator(combined)

	actor.UseLogger(subLoggers.Logger("ACTR"))
	mux.UseLogger(subLoggers.Logger("MUX "))
	proxy.UseLogger(subLoggers.Logger("PRXY"))
	middleman.UseLogger(subLoggers.Logger("MDLM"))
	registry.UseLogger(subLoggers.Logger("REGY"))
	remote.UseLogger(subLoggers.Logger("RMTE"))

	// The BASP wire layer is the chattiest subsystem by far (every frame
	// in and out); keep it at Info on the console but let the rotated
	// main log capture Debug so a post-mortem can inspect wire traffic
	// without drowning interactive operators in frame-level noise.
	if logRotator != nil && len(handlers) > 1 {
		combined.SetHandlerLevel(1, btclog.LevelDebug)
	}

	// A BASP wire trace is high-volume enough to warrant its own,
	// smaller, faster-rotating file rather than sharing the main log.
	var wireTraceRotator *build.RotatingLogWriter
	if *wireTrace && *logDir != "" {
		wireTraceRotator = build.NewRotatingLogWriter()
		traceCfg := build.WireTraceLogRotatorConfig(*logDir)
		traceCfg.DisableCompression = true
		if err := wireTraceRotator.InitLogRotator(traceCfg); err != nil {
			log.Printf("Failed to init BASP wire-trace rotator: %v (falling back to the main log)", err)
			wireTraceRotator = nil
		} else {
			defer wireTraceRotator.Close()
		}
	}
	if wireTraceRotator != nil {
		traceHandler := build.NewHandlerSet(btclog.NewDefaultHandler(wireTraceRotator))
		traceHandler.SetLevel(btclog.LevelDebug)
		basp.UseLogger(build.NewSubLoggerGenerator(traceHandler).Logger("BASP"))
	} else {
		basp.UseLogger(subLoggers.Logger("BASP"))
	}

	cfg := config.New(map[string]any{
		config.KeyAppIdentifiers:      *appIDs,
		config.KeyHeartbeatInterval:   *heartbeat,
		config.KeyConnectionTimeout:   *connTimeout,
		config.KeyAttachUtilityActors: *utilityActors,
	})

	nodeID := address.NewNodeID()
	log.Printf("node-id=%s", nodeID.String())

	reg := registry.New()
	dispatcher := remote.New(reg)

	actorSystem := actor.NewActorSystem()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := actorSystem.Shutdown(shutdownCtx); err != nil {
			log.Printf("Actor system shutdown incomplete: %v (some actors may have leaked)", err)
		}
	}()

	var echoPool actor.ActorRef[actor.Message, any]
	if cfg.AttachUtilityActors() {
		echoPool = attachEchoActor(actorSystem, dispatcher)
	}

	mm, err := middleman.New(middleman.Config{
		Local: basp.HandshakeInfo{
			NodeID:          [16]byte(nodeID),
			ApplicationIDs:  cfg.AppIdentifiers(),
			ProtocolVersion: 1,
		},
		HeartbeatInterval: cfg.HeartbeatInterval(),
		ConnectionTimeout: cfg.ConnectionTimeout(),
		Dispatcher:        dispatcher,
	})
	if err != nil {
		log.Fatalf("Failed to create middleman: %v", err)
	}

	go func() {
		if err := mm.Run(); err != nil {
			log.Printf("Reactor stopped: %v", err)
		}
	}()

	boundPort, err := mm.Publish(*bindAddr, *port)
	if err != nil {
		log.Fatalf("Failed to publish on %s:%d: %v", *bindAddr, *port, err)
	}
	log.Printf("Published BASP listener on %s:%d", *bindAddr, boundPort)
	defer mm.Shutdown()

	if echoPool != nil {
		selfCheckCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_, err := actorutil.AskAwait(selfCheckCtx, echoPool, Ping{})
		cancel()
		if err != nil {
			log.Printf("Remote-echo pool self-check failed: %v", err)
		} else {
			log.Println("Remote-echo pool self-check passed")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received %v, initiating graceful shutdown (send again to force exit)...", sig)
		cancel()

		sig = <-sigCh
		log.Printf("Received %v again, forcing immediate exit", sig)
		os.Exit(1)
	}()

	<-ctx.Done()
	log.Println("Shutdown complete")
}

// Ping is the local self-check request sent to the remote-echo pool at
// startup; it never crosses the wire, unlike remote.Envelope. Its
// MessageType is tagged with the shared atom.Ping control atom rather than
// an ad hoc string.
type Ping struct{ actor.BaseMessage }

func (Ping) MessageType() string { return atom.Ping.String() }

// Pong is Ping's response, tagged with atom.Pong.
type Pong struct{ actor.BaseMessage }

func (Pong) MessageType() string { return atom.Pong.String() }

// attachEchoActor starts a small pool of remote-echo workers, registers it
// under address-id 1 as dispatcher's delivery target, and returns an
// ActorRef so the caller can run a startup self-check through the same
// path remote traffic uses. Every decoded remote message addressed to
// actor-id 1 is logged and acknowledged, giving a zero-configuration way
// to verify connectivity between two nodes without standing up an
// application-level actor first.
func attachEchoActor(actorSystem *actor.ActorSystem, dispatcher *remote.Dispatcher) actor.ActorRef[actor.Message, any] {
	const echoActorID = address.ActorID(1)

	echoBehavior := func(idx int) actor.ActorBehavior[actor.Message, any] {
		return actor.NewFunctionBehavior(
			func(ctx context.Context, msg actor.Message) fn.Result[any] {
				switch m := msg.(type) {
				case remote.Envelope:
					log.Printf("remote-echo[%d]: message from %s: %s", idx, m.From, m.Payload.Stringify())
					return fn.Ok[any](nil)
				case Ping:
					return fn.Ok[any](Pong{})
				default:
					return fn.Ok[any](nil)
				}
			},
		)
	}

	pool := actorutil.NewPool(actorutil.PoolConfig[actor.Message, any]{
		ID:      "remote-echo",
		Size:    echoPoolSize,
		Factory: echoBehavior,
		DLO:     actorSystem.DeadLetters(),
	})

	poolRef := actorutil.NewPoolRef(pool)
	dispatcher.Register(echoActorID, poolRef)
	return poolRef
}

// commitInfo returns the best available build identifier: the VCS revision
// embedded by the Go toolchain, falling back to "dev" for an unstamped
// build (e.g. `go run`).
func commitInfo() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}
	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" {
			if len(setting.Value) > 12 {
				return setting.Value[:12]
			}
			return setting.Value
		}
	}
	return "dev"
}
