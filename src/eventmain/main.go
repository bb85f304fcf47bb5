package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdk_trace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/jiaming2012/option-chain-stream/src/eventconsumers"
	"github.com/jiaming2012/option-chain-stream/src/eventmodels"
	"github.com/jiaming2012/option-chain-stream/src/eventproducers/optionsapi"
	"github.com/jiaming2012/option-chain-stream/src/eventpubsub"
	"github.com/jiaming2012/option-chain-stream/src/eventservices"
	"github.com/jiaming2012/option-chain-stream/src/logger"
	"github.com/jiaming2012/option-chain-stream/src/utils"
	"github.com/jiaming2012/option-chain-stream/src/worker"
)

const serviceName = "option-chain-stream"

// setupOTelSDK bootstraps the OpenTelemetry pipeline.
// If it does not return an error, make sure to call shutdown for proper cleanup.
func setupOTelSDK(ctx context.Context) (shutdown func(context.Context) error, err error) {
	var shutdownFuncs []func(context.Context) error

	// shutdown calls cleanup functions registered via shutdownFuncs.
	// The errors from the calls are joined.
	shutdown = func(ctx context.Context) error {
		var err error
		for _, fn := range shutdownFuncs {
			err = errors.Join(err, fn(ctx))
		}
		shutdownFuncs = nil
		return err
	}

	prop := propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
	otel.SetTextMapPropagator(prop)

	traceExporter, err := otlptrace.New(ctx, otlptracehttp.NewClient())
	if err != nil {
		return nil, err
	}

	res, _ := resource.New(ctx, resource.WithAttributes(attribute.String("service.name", serviceName)))

	tracerProvider := sdk_trace.NewTracerProvider(
		sdk_trace.WithBatcher(traceExporter),
		sdk_trace.WithResource(res),
	)
	shutdownFuncs = append(shutdownFuncs, tracerProvider.Shutdown)
	otel.SetTracerProvider(tracerProvider)

	metricExporter, err := otlpmetrichttp.New(ctx)
	if err != nil {
		err = errors.Join(err, shutdown(ctx))
		return nil, err
	}

	meterProvider := metric.NewMeterProvider(
		metric.WithReader(metric.NewPeriodicReader(metricExporter)),
		metric.WithResource(res),
	)
	shutdownFuncs = append(shutdownFuncs, meterProvider.Shutdown)
	otel.SetMeterProvider(meterProvider)

	if err = runtime.Start(runtime.WithMinimumReadMemStatsInterval(time.Second)); err != nil {
		err = errors.Join(err, shutdown(ctx))
		return nil, err
	}

	return shutdown, nil
}

// routeTagged wraps every matched route so the HTTP instrumentation reports
// the route template rather than the raw path.
func routeTagged(router *mux.Router) http.Handler {
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			pattern := r.URL.Path
			if route := mux.CurrentRoute(r); route != nil {
				if tpl, err := route.GetPathTemplate(); err == nil {
					pattern = tpl
				}
			}

			otelhttp.WithRouteTag(pattern, next).ServeHTTP(w, r)
		})
	})

	return otelhttp.NewHandler(router, serviceName)
}

func loadConfig() (eventmodels.StreamingCacheConfig, error) {
	path := os.Getenv("STREAM_CACHE_CONFIG")
	if path == "" {
		log.Info("STREAM_CACHE_CONFIG not set, using defaults")
		return eventmodels.DefaultStreamingCacheConfig(), nil
	}

	return eventmodels.LoadStreamingCacheConfig(path)
}

func newRedisClient(ctx context.Context) (*redis.Client, error) {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("newRedisClient: invalid REDIS_URL: %w", err)
	}

	redis.SetLogger(logger.NewLogrusLogger("go-redis"))
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("newRedisClient: ping failed: %w", err)
	}

	return client, nil
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	wg := sync.WaitGroup{}

	if err := utils.InitEnvironmentVariables(utils.GetEnvOrDefault("ENV_DIR", ".")); err != nil {
		log.Fatalf("failed to init environment variables: %v", err)
	}

	logJSON := strings.ToLower(os.Getenv("LOG_JSON")) == "true"
	if err := logger.Setup(os.Getenv("LOG_LEVEL"), logJSON); err != nil {
		log.Fatalf("failed to setup logger: %v", err)
	}

	restURL, err := utils.GetEnv("IBKR_REST_URL")
	if err != nil {
		log.Fatalf("$IBKR_REST_URL not set: %v", err)
	}

	wsURL, err := utils.GetEnv("IBKR_WS_URL")
	if err != nil {
		log.Fatalf("$IBKR_WS_URL not set: %v", err)
	}

	bearerToken := os.Getenv("IBKR_BEARER_TOKEN")
	port := utils.GetEnvOrDefault("PORT", "8080")

	// Set up OpenTelemetry.
	if strings.ToLower(os.Getenv("OTEL_ENABLED")) == "true" {
		otelShutdown, err := setupOTelSDK(ctx)
		if err != nil {
			log.Fatalf("failed to setup otel sdk: %v", err)
		}

		defer func() {
			if err := otelShutdown(context.Background()); err != nil {
				log.Errorf("otel shutdown: %v", err)
			}
		}()
	}

	config, err := loadConfig()
	if err != nil {
		log.Fatalf("failed to load streaming cache config: %v", err)
	}

	bus := eventpubsub.NewBus()
	conn := worker.NewIBStreamingConnection(wsURL, bearerToken)
	fetcher := eventservices.NewIBSnapshotFetcher(restURL, bearerToken, config)

	cache, err := eventconsumers.NewOptionChainStreamingCache(&wg, conn, fetcher, bus, config)
	if err != nil {
		log.Fatalf("failed to create option chain cache: %v", err)
	}

	redisClient, err := newRedisClient(ctx)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}

	var mirror *eventconsumers.OptionChainRedisMirror
	if redisClient != nil {
		mirror = eventconsumers.NewOptionChainRedisMirror(redisClient, cache, config.StaleThreshold)
		if err := mirror.Start(bus); err != nil {
			log.Fatalf("failed to start redis mirror: %v", err)
		}
	}

	for _, symbol := range config.Symbols {
		if _, err := cache.ScheduleMarketOpenStart(symbol); err != nil {
			log.Errorf("failed to schedule %s: %v", symbol, err)
		}
	}

	// Setup router
	router := mux.NewRouter()
	optionsapi.SetupHandler(router.PathPrefix("/streaming").Subrouter(), cache)

	srv := &http.Server{
		Handler: routeTagged(router),
		Addr:    fmt.Sprintf(":%s", port),
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		log.Infof("listening on :%s", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	// Create channel for shutdown signals.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	signal.Notify(stop, syscall.SIGTERM)

	log.Info("Main: init complete")

	// Block here until program is shut down
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("server shutdown: %v", err)
	}

	cache.StopAll()

	if mirror != nil {
		mirror.Stop()
	}

	bus.WaitAsync()

	if err := conn.Close(); err != nil {
		log.Errorf("streaming connection close: %v", err)
	}

	if redisClient != nil {
		redisClient.Close()
	}

	cancel()

	// Wait for refresh workers to shut down
	wg.Wait()

	log.Info("Main: gracefully stopped!")
}
