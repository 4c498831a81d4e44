package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/mohitkumar/flowfirst/agent"
	"github.com/mohitkumar/flowfirst/config"
	"github.com/mohitkumar/flowfirst/container"
	"github.com/mohitkumar/flowfirst/flow"
	"github.com/mohitkumar/flowfirst/logger"
	"github.com/mohitkumar/flowfirst/model"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type cli struct {
	cfg config.Config
}

func setupFlags(cmd *cobra.Command) error {
	defaults := model.DefaultResiliencePolicy()
	flags := cmd.PersistentFlags()
	flags.String("config-file", "", "Path to config file.")
	flags.Int("http-port", 8080, "http port for rest endpoints")
	flags.String("storage-impl", "memory", "implementation of underline storage (memory, redis, postgres)")
	flags.String("redis-addr", "localhost:6379", "comma separated list of redis host:port")
	flags.String("redis-password", "", "redis password")
	flags.String("namespace", "flowfirst", "namespace used in storage")
	flags.String("postgres-dsn", "", "postgres connection string")
	flags.String("public-base-url", "http://localhost:8080", "base url used to build public resume links")
	flags.Int("max-steps", 1000, "maximum number of nodes a single run may visit")
	flags.Int("default-timeout-ms", defaults.TimeoutMs, "default step timeout in ms, <= 0 disables it")
	flags.Int("default-max-attempts", defaults.MaxAttempts, "default number of attempts per step")
	flags.Int("default-base-ms", defaults.BaseMs, "default initial retry backoff in ms")
	flags.Int("default-max-ms", defaults.MaxMs, "default maximum retry backoff in ms")
	flags.Int("default-failure-threshold", defaults.FailureThreshold, "consecutive failures that open a circuit")
	flags.Int("default-cooldown-ms", defaults.CooldownMs, "time an open circuit waits before half opening")
	flags.String("analytics-file", "", "file receiving execution events as json lines")
	flags.String("log-level", "info", "log level")
	flags.Int("webhook-workers", 256, "capacity of the event webhook delivery queue")
	flags.Int("flow-cache-ttl-ms", 300000, "time flow definitions stay cached")
	return viper.BindPFlags(flags)
}

func (c *cli) setupConfig(cmd *cobra.Command, args []string) error {
	var err error

	configFile := viper.GetString("config-file")
	if len(configFile) > 0 {
		viper.SetConfigFile(configFile)
		if err = viper.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return err
			}
		}
	}

	c.cfg.HttpPort = viper.GetInt("http-port")
	c.cfg.StorageType = config.StorageType(viper.GetString("storage-impl"))
	c.cfg.RedisConfig.Addrs = strings.Split(viper.GetString("redis-addr"), ",")
	c.cfg.RedisConfig.Password = viper.GetString("redis-password")
	c.cfg.RedisConfig.Namespace = viper.GetString("namespace")
	c.cfg.PostgresConfig.DSN = viper.GetString("postgres-dsn")
	c.cfg.PublicBaseURL = viper.GetString("public-base-url")
	c.cfg.MaxSteps = viper.GetInt("max-steps")
	c.cfg.DefaultPolicy = model.ResiliencePolicy{
		TimeoutMs:        viper.GetInt("default-timeout-ms"),
		MaxAttempts:      viper.GetInt("default-max-attempts"),
		BaseMs:           viper.GetInt("default-base-ms"),
		MaxMs:            viper.GetInt("default-max-ms"),
		FailureThreshold: viper.GetInt("default-failure-threshold"),
		CooldownMs:       viper.GetInt("default-cooldown-ms"),
	}
	c.cfg.AnalyticsFile = viper.GetString("analytics-file")
	c.cfg.LogLevel = viper.GetString("log-level")
	c.cfg.WebhookWorkers = viper.GetInt("webhook-workers")
	c.cfg.FlowCacheTTLMs = viper.GetInt("flow-cache-ttl-ms")

	if err = logger.Init(c.cfg.LogLevel); err != nil {
		return err
	}
	return c.cfg.Validate()
}

func (c *cli) run(cmd *cobra.Command, args []string) error {
	a, err := agent.New(c.cfg)
	if err != nil {
		return err
	}
	if err = a.Start(); err != nil {
		return err
	}
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigc:
	case <-a.Done():
	}
	return a.Shutdown()
}

// load stores flow definition files straight into the configured storage.
func (c *cli) load(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	var wg sync.WaitGroup
	d := container.NewDiContainer()
	if err := d.Init(ctx, c.cfg, &wg); err != nil {
		return err
	}
	defer d.GetStorage().Close()
	for _, path := range args {
		f, err := flow.LoadDefinitionFile(path)
		if err != nil {
			return err
		}
		saved, err := d.GetMetadataService().SaveFlow(ctx, *f)
		if err != nil {
			return fmt.Errorf("save %s: %w", path, err)
		}
		logger.Info("flow loaded", zap.String("file", path), zap.String("flowId", saved.Id))
		fmt.Fprintln(cmd.OutOrStdout(), saved.Id)
	}
	return nil
}

func main() {
	cli := &cli{}

	cmd := &cobra.Command{
		Use:               "flowfirst",
		Short:             "Workflow execution engine with resumable human steps",
		PersistentPreRunE: cli.setupConfig,
		RunE:              cli.run,
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "load [files...]",
		Short: "Validate and store flow definition files",
		Args:  cobra.MinimumNArgs(1),
		RunE:  cli.load,
	})

	if err := setupFlags(cmd); err != nil {
		log.Fatal(err)
	}

	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
