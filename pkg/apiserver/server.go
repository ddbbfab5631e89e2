package apiserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"calcbridge/pkg/apiserver/config"
	"calcbridge/pkg/apiserver/domain/service"
	"calcbridge/pkg/apiserver/event"
	"calcbridge/pkg/apiserver/event/calculator"
	"calcbridge/pkg/apiserver/event/correlator"
	"calcbridge/pkg/apiserver/infrastructure/clients"
	"calcbridge/pkg/apiserver/infrastructure/messaging"
	"calcbridge/pkg/apiserver/interfaces/api"
	"calcbridge/pkg/apiserver/interfaces/api/middleware"
	"calcbridge/pkg/apiserver/utils/container"
)

// APIServer interface for call api server
type APIServer interface {
	Run(context.Context, chan error) error
}

// restServer rest server
type restServer struct {
	webContainer  *gin.Engine
	beanContainer *container.Container
	cfg           config.Config
	broker        messaging.Broker
	correlator    *correlator.Correlator
	calculator    *calculator.Worker
}

// New create api server with config data
func New(cfg config.Config) (a APIServer) {
	return newRestServer(cfg)
}

func newRestServer(cfg config.Config) *restServer {
	return &restServer{
		webContainer:  gin.New(),
		beanContainer: container.NewContainer(),
		cfg:           cfg,
	}
}

func (s *restServer) ServeHTTP(res http.ResponseWriter, req *http.Request) {
	for _, pre := range api.GetAPIPrefix() {
		if strings.HasPrefix(req.URL.Path, pre) {
			s.webContainer.ServeHTTP(res, req)
			return
		}
	}
	req.URL.Path = "/"
	s.webContainer.ServeHTTP(res, req)
}

// bridgeStats feeds the readiness probe with the counters of whichever sides run here.
type bridgeStats struct {
	correlator *correlator.Correlator
	calculator *calculator.Worker
}

func (b *bridgeStats) Snapshot() map[string]interface{} {
	out := make(map[string]interface{}, 2)
	if b.correlator != nil {
		out["correlator"] = b.correlator.Stats()
	}
	if b.calculator != nil {
		out["calculator"] = b.calculator.Stats()
	}
	return out
}

func (s *restServer) buildIoCContainer() error {
	// workers and handlers of a previous server in this process must not leak into this one
	event.ResetWorkers()

	// infrastructure
	if err := s.beanContainer.ProvideWithName("RestServer", s); err != nil {
		return fmt.Errorf("fail to provides the RestServer bean to the container: %w", err)
	}

	broker, err := NewBroker(s.cfg)
	if err != nil {
		return fmt.Errorf("create %s broker failure %w", s.cfg.Messaging.Type, err)
	}
	s.broker = broker
	if err := s.beanContainer.ProvideWithName("broker", broker); err != nil {
		return fmt.Errorf("fail to provides the broker bean to the container: %w", err)
	}

	// provide config for downstream components that need it (inject by type)
	if err := s.beanContainer.Provides(&s.cfg); err != nil {
		return fmt.Errorf("fail to provides the config bean to the container: %w", err)
	}

	// domain - service
	services := service.InitServiceBean(s.cfg)
	var evaluator service.CalculatorService
	for _, svc := range services {
		if e, ok := svc.(service.CalculatorService); ok {
			evaluator = e
		}
		if err := s.beanContainer.Provides(svc); err != nil {
			return fmt.Errorf("fail to provides the service bean to the container: %w", err)
		}
	}

	// event
	var workers []event.Worker
	if s.cfg.RunsGateway() {
		if s.correlator, err = NewCorrelator(s.cfg, broker); err != nil {
			return err
		}
		if err := s.beanContainer.ProvideWithName("correlator", s.correlator); err != nil {
			return fmt.Errorf("fail to provides the correlator bean to the container: %w", err)
		}
		workers = append(workers, s.correlator)
	}
	if s.cfg.RunsCalculator() {
		if s.calculator, err = NewCalculatorWorker(s.cfg, broker, evaluator, NewReplayCache(s.cfg)); err != nil {
			return err
		}
		workers = append(workers, s.calculator)
	}
	event.InitEvent(workers...)

	if err := s.beanContainer.ProvideWithName("stats", &bridgeStats{correlator: s.correlator, calculator: s.calculator}); err != nil {
		return fmt.Errorf("fail to provides the stats bean to the container: %w", err)
	}

	// interfaces
	if err := s.beanContainer.Provides(api.InitAPIBean(s.cfg.RunsGateway())...); err != nil {
		return fmt.Errorf("fail to provides the api bean to the container: %w", err)
	}

	if err := s.beanContainer.Populate(); err != nil {
		return fmt.Errorf("fail to populate the bean container: %w", err)
	}
	return nil
}

func (s *restServer) RegisterAPIRoute() {
	s.webContainer.Use(gin.Recovery())

	s.webContainer.Use(middleware.CORS(middleware.CORSOptions{
		AllowOrigins:     s.cfg.CORS.AllowedOrigins,
		AllowCredentials: s.cfg.CORS.AllowCredentials,
		MaxAge:           s.cfg.CORS.MaxAge,
	}))

	// otelgin must run first so the logging middleware sees the request span
	if s.cfg.EnableTracing {
		s.webContainer.Use(otelgin.Middleware(s.cfg.ServiceName))
	}
	s.webContainer.Use(middleware.Logging())

	apis := api.GetRegisteredAPI()
	for _, prefix := range api.GetAPIPrefix() {
		group := s.webContainer.Group(prefix)
		for _, api := range apis {
			api.RegisterRoutes(group)
		}
	}
}

func (s *restServer) startHTTP(ctx context.Context) error {
	klog.Infof("HTTP APIs are being served on: %s", s.cfg.BindAddr)
	server := &http.Server{
		Addr:              s.cfg.BindAddr,
		Handler:           s,
		ReadHeaderTimeout: 2 * time.Second,
		ReadTimeout:       30 * time.Second,
		// a request may wait the full correlator timeout before answering
		WriteTimeout: s.cfg.Correlator.Timeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	shutdownComplete := make(chan struct{})
	go func() {
		<-ctx.Done()
		klog.Info("HTTP server shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			klog.Errorf("HTTP server graceful shutdown error: %v", err)
			if closeErr := server.Close(); closeErr != nil {
				klog.Errorf("HTTP server force close error: %v", closeErr)
			}
		} else {
			klog.Info("HTTP server graceful shutdown completed")
		}
		close(shutdownComplete)
	}()

	err := server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		<-shutdownComplete
		klog.Info("HTTP server closed normally")
		return nil
	}
	return err
}

// Run serves HTTP and runs the event workers until ctx is done, then releases the broker.
func (s *restServer) Run(ctx context.Context, errChan chan error) error {
	if err := s.buildIoCContainer(); err != nil {
		return err
	}
	defer s.close()

	s.RegisterAPIRoute()
	klog.InfoS("calcbridge starting", "role", s.cfg.Role, "broker", s.cfg.Messaging.Type,
		"wireFormat", s.cfg.Messaging.WireFormat, "requestTopic", s.cfg.RequestTopic(), "responseTopic", s.cfg.ResponseTopic())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		event.StartEventWorker(gctx, errChan)
		return nil
	})
	g.Go(func() error {
		return s.startHTTP(gctx)
	})
	return g.Wait()
}

func (s *restServer) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if s.broker != nil {
		if err := s.broker.Close(ctx); err != nil {
			klog.ErrorS(err, "close broker")
		}
	}
	if err := clients.CloseRedis(); err != nil {
		klog.ErrorS(err, "close redis client")
	}
	if err := clients.CloseNATS(); err != nil {
		klog.ErrorS(err, "close nats connection")
	}
	event.ResetWorkers()
}
