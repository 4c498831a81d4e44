package container

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/mohitkumar/flowfirst/action"
	"github.com/mohitkumar/flowfirst/analytics"
	"github.com/mohitkumar/flowfirst/cache"
	"github.com/mohitkumar/flowfirst/config"
	"github.com/mohitkumar/flowfirst/engine"
	"github.com/mohitkumar/flowfirst/metadata"
	"github.com/mohitkumar/flowfirst/persistence"
	"github.com/mohitkumar/flowfirst/persistence/memory"
	pg "github.com/mohitkumar/flowfirst/persistence/postgres"
	rd "github.com/mohitkumar/flowfirst/persistence/redis"
	"github.com/mohitkumar/flowfirst/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const DEFAULT_WEBHOOK_WORKERS_CAPACITY = 256

type DIContainer struct {
	initialized      bool
	storage          persistence.Storage
	registry         *action.Registry
	metadataService  *metadata.MetadataServiceImpl
	engine           *engine.Engine
	executionService *service.WorkflowExecutionService
	webhookSink      *analytics.WebhookSink
	logCollector     *analytics.LogFileDataCollector
	metricsRegistry  *prometheus.Registry
}

func NewDiContainer() *DIContainer {
	return &DIContainer{
		initialized: false,
	}
}

func (d *DIContainer) setInitialized() {
	d.initialized = true
}

// Init builds every component from conf. wg tracks the background workers
// started later by Start.
func (d *DIContainer) Init(ctx context.Context, conf config.Config, wg *sync.WaitGroup) error {
	storage, err := newStorage(ctx, conf)
	if err != nil {
		return err
	}
	d.storage = storage

	client := &http.Client{}
	d.registry = action.NewDefaultRegistry(client)
	d.metadataService = metadata.NewMetadataService(storage, d.registry,
		cache.NewFlowCache(time.Duration(conf.FlowCacheTTLMs)*time.Millisecond))

	d.metricsRegistry = prometheus.NewRegistry()
	d.metricsRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	capacity := conf.WebhookWorkers
	if capacity <= 0 {
		capacity = DEFAULT_WEBHOOK_WORKERS_CAPACITY
	}
	d.webhookSink = analytics.NewWebhookSink(storage, &http.Client{Timeout: 10 * time.Second}, wg, capacity)
	sinks := []analytics.Sink{
		analytics.NewStatRecorder(storage),
		analytics.NewMetricsSink(d.metricsRegistry),
		d.webhookSink,
	}
	if len(conf.AnalyticsFile) > 0 {
		d.logCollector, err = analytics.NewLogFileDataCollector(conf.AnalyticsFile)
		if err != nil {
			return fmt.Errorf("open analytics file: %w", err)
		}
		sinks = append(sinks, d.logCollector)
	}

	d.engine = engine.NewEngine(engine.Config{
		PublicBaseURL: conf.PublicBaseURL,
		MaxSteps:      conf.MaxSteps,
		DefaultPolicy: conf.DefaultPolicy,
	}, d.metadataService, storage, d.registry, analytics.NewMultiSink(sinks...))
	d.executionService = service.NewWorkflowExecutionService(d.engine, storage, d.webhookSink)
	d.setInitialized()
	return nil
}

func newStorage(ctx context.Context, conf config.Config) (persistence.Storage, error) {
	switch conf.StorageType {
	case config.STORAGE_TYPE_REDIS:
		return rd.NewRedisStorage(rd.Config{
			Addrs:     conf.RedisConfig.Addrs,
			Password:  conf.RedisConfig.Password,
			Namespace: conf.RedisConfig.Namespace,
		}), nil
	case config.STORAGE_TYPE_POSTGRES:
		return pg.NewPgStorage(ctx, conf.PostgresConfig.DSN)
	case config.STORAGE_TYPE_INMEM, "":
		return memory.NewMemoryStorage(), nil
	}
	return nil, fmt.Errorf("unknown storage implementation %q", conf.StorageType)
}

func (d *DIContainer) check() {
	if !d.initialized {
		panic("container not initalized")
	}
}

func (d *DIContainer) Start() {
	d.check()
	d.webhookSink.Start()
}

func (d *DIContainer) Stop() error {
	d.check()
	d.webhookSink.Stop()
	if d.logCollector != nil {
		if err := d.logCollector.Close(); err != nil {
			return err
		}
	}
	return d.storage.Close()
}

func (d *DIContainer) GetStorage() persistence.Storage {
	d.check()
	return d.storage
}

func (d *DIContainer) GetRegistry() *action.Registry {
	d.check()
	return d.registry
}

func (d *DIContainer) GetMetadataService() metadata.MetadataService {
	d.check()
	return d.metadataService
}

func (d *DIContainer) GetEngine() *engine.Engine {
	d.check()
	return d.engine
}

func (d *DIContainer) GetExecutionService() *service.WorkflowExecutionService {
	d.check()
	return d.executionService
}

func (d *DIContainer) GetMetricsRegistry() *prometheus.Registry {
	d.check()
	return d.metricsRegistry
}
