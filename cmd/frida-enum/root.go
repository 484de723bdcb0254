package main

import (
	"fmt"

	"github.com/apk-analysis/frida-enum/internal/catalog"
	"github.com/apk-analysis/frida-enum/internal/config"
	"github.com/apk-analysis/frida-enum/internal/console"
	"github.com/apk-analysis/frida-enum/internal/dex"
	"github.com/apk-analysis/frida-enum/internal/frida"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// app 命令共享的状态，在 PersistentPreRunE 中初始化
type app struct {
	v        *viper.Viper
	cfg      *config.Config
	logger   *logrus.Logger
	console  *console.Console
	registry *prometheus.Registry
	metrics  *catalog.Metrics

	// executor 为 nil 时直接运行 frida 命令
	executor frida.Executor
}

// 命令行参数与配置 key 的对应关系
var flagKeys = map[string]string{
	"log-level":        "log.level",
	"log-format":       "log.format",
	"max-elements":     "console.max_elements",
	"deep":             "console.deep",
	"frida":            "frida.binary",
	"host":             "frida.host",
	"device":           "frida.device",
	"usb":              "frida.usb",
	"target":           "frida.target",
	"spawn":            "frida.spawn",
	"timeout":          "frida.timeout",
	"script-dir":       "frida.script_dir",
	"max-capture":      "frida.max_capture",
	"dex-concurrency":  "dex.concurrency",
	"retries":          "retry.max_attempts",
	"metrics-textfile": "metrics.textfile",
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "frida-enum",
		Short:         "Enumerate classes and methods of an Android app, live through Frida or offline from its DEX files",
		Version:       fmt.Sprintf("%s (build %s, commit %s)", Version, BuildTime, GitCommit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.writeMetrics()
		},
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "Config file (yaml)")
	flags.String("log-level", "info", "Log level: debug, info, warn, error")
	flags.String("log-format", "text", "Log format: text, json")
	flags.Int("max-elements", console.DefaultMaxElements, "Maximum array elements shown per log argument")
	flags.Bool("deep", false, "Dump containers as full JSON")
	flags.String("frida", frida.DefaultBinary, "frida executable")
	flags.StringP("host", "H", "", "Connect to remote frida-server, e.g. 192.168.2.34:27042")
	flags.StringP("device", "D", "", "Connect to device with the given serial")
	flags.BoolP("usb", "U", true, "Connect to USB device")
	flags.StringP("target", "n", "", "Package or process name")
	flags.BoolP("spawn", "f", false, "Spawn the target instead of attaching")
	flags.Duration("timeout", 0, "Timeout of a single enumeration")
	flags.String("script-dir", "", "Directory for generated agent scripts")
	flags.String("apk", "", "Read classes from an APK instead of a live process")
	flags.String("dex", "", "Read classes from a DEX file instead of a live process")
	flags.Int("dex-concurrency", 4, "Parallel DEX entries parsed per APK")
	flags.Int("retries", 3, "Attempts to start frida")
	flags.String("metrics-textfile", "", "Write Prometheus metrics to this file on exit")

	root.AddCommand(
		newClassesCmd(a),
		newFindCmd(a),
		newMethodsCmd(a),
		newNetCmd(a),
		newPackageInfoCmd(a),
	)
	return root
}

// setup 加载配置并创建日志、console 与指标
// 只有显式给出的命令行参数才覆盖配置文件
func (a *app) setup(cmd *cobra.Command) error {
	a.v = viper.New()

	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || !f.Changed || bindErr != nil {
			return
		}
		bindErr = a.v.BindPFlag(key, f)
	})
	if bindErr != nil {
		return fmt.Errorf("failed to bind flags: %w", bindErr)
	}

	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadWith(a.v, path)
	if err != nil {
		return err
	}
	a.cfg = cfg

	a.logger = config.InitLogger(&cfg.Log)
	a.logger.SetOutput(cmd.ErrOrStderr())
	a.console = console.New(config.NewConsoleLogger(cmd.OutOrStdout()), cfg.Console.Options())

	a.registry = prometheus.NewRegistry()
	a.metrics, err = catalog.NewMetrics(a.registry)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}
	return nil
}

func (a *app) writeMetrics() error {
	if a.cfg == nil || a.cfg.Metrics.Textfile == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(a.cfg.Metrics.Textfile, a.registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	a.logger.WithField("path", a.cfg.Metrics.Textfile).Debug("Metrics written")
	return nil
}

// runtime 按参数选择离线 DEX 或在线 frida
func (a *app) runtime(cmd *cobra.Command) (catalog.Runtime, error) {
	apk, _ := cmd.Flags().GetString("apk")
	dexPath, _ := cmd.Flags().GetString("dex")

	switch {
	case apk != "" && dexPath != "":
		return nil, fmt.Errorf("--apk and --dex are mutually exclusive")
	case apk != "":
		return dex.NewLoader(a.logger, a.cfg.Dex.Concurrency).Open(apk)
	case dexPath != "":
		return dex.NewLoader(a.logger, a.cfg.Dex.Concurrency).Open(dexPath)
	}
	return a.fridaRuntime()
}

func (a *app) fridaRuntime() (*frida.Runtime, error) {
	if a.cfg.Frida.Target == "" {
		return nil, fmt.Errorf("no target: pass --target, --apk or --dex")
	}
	client := frida.NewClient(a.cfg.Frida.Options(), a.executor, a.logger)
	return frida.NewRuntime(client, a.cfg.Retry.Config(a.logger), a.logger), nil
}

func (a *app) newCatalog(cmd *cobra.Command) (*catalog.Catalog, error) {
	rt, err := a.runtime(cmd)
	if err != nil {
		return nil, err
	}
	return catalog.New(rt, a.logger, catalog.WithMetrics(a.metrics)), nil
}
