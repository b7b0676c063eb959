package main

import (
	"log/slog"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/smazurov/torfleet/cmd"
	"github.com/smazurov/torfleet/internal/config"
	"github.com/smazurov/torfleet/internal/logging"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port                 string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`
	ServerAllowedOrigins string `help:"Comma-separated CORS origins, a TOML array also works (empty allows any)" default:"" toml:"server.allowed_origins" env:"SERVER_ALLOWED_ORIGINS"`

	// Daemon settings
	DaemonPath        string        `help:"Default daemon executable" default:"" toml:"daemon.path" env:"DAEMON_PATH"`
	DaemonName        string        `help:"Process name swept on start and stop" default:"tor" toml:"daemon.name" env:"DAEMON_NAME"`
	DaemonCount       int           `help:"Default number of instances" default:"1" toml:"daemon.count" env:"DAEMON_COUNT"`
	DaemonExtraArgs   string        `help:"Extra arguments appended to every daemon command line" default:"" toml:"daemon.extra_args" env:"DAEMON_EXTRA_ARGS"`
	DaemonKillGrace   time.Duration `help:"Time between SIGTERM and SIGKILL" default:"5s" toml:"daemon.kill_grace" env:"DAEMON_KILL_GRACE"`
	DaemonSettleDelay time.Duration `help:"Wait before counting survivors of a batch" default:"3s" toml:"daemon.settle_delay" env:"DAEMON_SETTLE_DELAY"`

	// Port and data settings
	PortsSocksBase   int    `help:"First SOCKS port" default:"9050" toml:"ports.socks_base" env:"PORTS_SOCKS_BASE"`
	PortsControlBase int    `help:"First control port" default:"9151" toml:"ports.control_base" env:"PORTS_CONTROL_BASE"`
	DataDirName      string `help:"Data directory created next to the executable" default:"TorData" toml:"data.dir_name" env:"DATA_DIR_NAME"`
	ProxyScheme      string `help:"Scheme of reported endpoints" default:"socks5" toml:"proxy.scheme" env:"PROXY_SCHEME"`

	// Features settings
	FeaturesMetrics bool `help:"Expose Prometheus metrics on /metrics" default:"true" toml:"features.metrics" env:"FEATURES_METRICS"`

	// Auth settings
	AuthUsername string `help:"Basic auth username (empty disables auth)" default:"" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Logging settings
	LoggingLevel   string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat  string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingMain    string `help:"Main logging level" default:"info" toml:"logging.main" env:"LOGGING_MAIN"`
	LoggingFleet   string `help:"Supervisor logging level" default:"info" toml:"logging.fleet" env:"LOGGING_FLEET"`
	LoggingTor     string `help:"Daemon output logging level" default:"info" toml:"logging.tor" env:"LOGGING_TOR"`
	LoggingProcess string `help:"Process lifecycle logging level" default:"info" toml:"logging.process" env:"LOGGING_PROCESS"`
	LoggingAPI     string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
	LoggingHTTP    string `help:"HTTP request logging level" default:"info" toml:"logging.http" env:"LOGGING_HTTP"`
	LoggingConfig  string `help:"Config watcher logging level" default:"info" toml:"logging.config" env:"LOGGING_CONFIG"`
}

func (o *Options) loggingConfig() logging.Config {
	return logging.Config{
		Level:  o.LoggingLevel,
		Format: o.LoggingFormat,
		Modules: map[string]string{
			"main":    o.LoggingMain,
			"fleet":   o.LoggingFleet,
			"tor":     o.LoggingTor,
			"process": o.LoggingProcess,
			"api":     o.LoggingAPI,
			"http":    o.LoggingHTTP,
			"config":  o.LoggingConfig,
		},
	}
}

func (o *Options) fleetConfig(logger *slog.Logger) cmd.FleetConfig {
	extra, err := cmd.ParseExtraArgs(o.DaemonExtraArgs)
	if err != nil {
		logger.Warn("Ignoring daemon extra args", "error", err)
		extra = nil
	}
	return cmd.FleetConfig{
		DaemonPath:  o.DaemonPath,
		DaemonName:  o.DaemonName,
		DaemonCount: o.DaemonCount,
		ExtraArgs:   extra,
		KillGrace:   o.DaemonKillGrace,
		SettleDelay: o.DaemonSettleDelay,
		SOCKSBase:   o.PortsSocksBase,
		ControlBase: o.PortsControlBase,
		DataDirName: o.DataDirName,
		Scheme:      o.ProxyScheme,
	}
}

// buildService creates the API mode. Replaced in tests.
var buildService = newService

func main() {
	newCLI().Run()
}

// newCLI builds the root command (the API server) and its subcommands.
func newCLI() humacli.CLI {
	// Filled once options are parsed; subcommands read it when they run.
	fleetCfg := &cmd.FleetConfig{}

	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		// Defaults and flags only; reloads layer file and env on top again.
		base := *opts
		source := config.NewSource(opts.Config, cli.Root())
		if loadErr := source.Load(opts); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(opts.loggingConfig())
		logger := logging.GetLogger("main")

		*fleetCfg = opts.fleetConfig(logger)

		// The callback runs before every subcommand too; the server and its
		// supervisor only exist once the root command starts serving.
		var (
			mu  sync.Mutex
			svc *service
		)
		hooks.OnStart(func() {
			mu.Lock()
			svc = buildService(opts, base, source, *fleetCfg)
			mu.Unlock()
			svc.run(opts.Port)
		})
		hooks.OnStop(func() {
			mu.Lock()
			s := svc
			mu.Unlock()
			if s != nil {
				s.shutdown()
			}
		})
	})

	cli.Root().Use = "torfleet"
	cli.Root().Short = "Run and supervise a fleet of local tor proxy instances"

	cli.Root().AddCommand(cmd.CreateStartCmd(fleetCfg))
	cli.Root().AddCommand(cmd.CreateStopCmd(fleetCfg))
	cli.Root().AddCommand(cmd.CreatePlanCmd(fleetCfg))
	cli.Root().AddCommand(cmd.CreateVersionCmd())
	return cli
}
