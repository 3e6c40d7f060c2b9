package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/droplinklabs/droplink/internal/config"
	gracedomain "github.com/droplinklabs/droplink/internal/grace/domain"
	ledgerdomain "github.com/droplinklabs/droplink/internal/ledger/domain"
	reconciledomain "github.com/droplinklabs/droplink/internal/reconcile/domain"
	subscriptiondomain "github.com/droplinklabs/droplink/internal/subscription/domain"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Server struct {
	cfg config.Config
	db  *gorm.DB
	log *zap.Logger

	subscriptionSvc subscriptiondomain.Service
	engine          reconciledomain.Engine
	enforcer        gracedomain.Enforcer
	ledger          ledgerdomain.Writer
	registry        *prometheus.Registry
}

type ServerParam struct {
	fx.In

	Cfg config.Config
	DB  *gorm.DB
	Log *zap.Logger

	SubscriptionSvc subscriptiondomain.Service
	Engine          reconciledomain.Engine
	Enforcer        gracedomain.Enforcer
	Ledger          ledgerdomain.Writer
	Registry        *prometheus.Registry
}

func NewServer(p ServerParam) *Server {
	return &Server{
		cfg: p.Cfg,
		db:  p.DB,
		log: p.Log.Named("server"),

		subscriptionSvc: p.SubscriptionSvc,
		engine:          p.Engine,
		enforcer:        p.Enforcer,
		ledger:          p.Ledger,
		registry:        p.Registry,
	}
}

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	v1 := r.Group("/v1")
	{
		v1.POST("/subscriptions", s.CreateSubscription)
		v1.GET("/subscriptions/:id", s.GetSubscription)
		v1.GET("/subscriptions/:id/history", s.GetSubscriptionHistory)
		v1.POST("/subscriptions/:id/activate", s.ActivateSubscription)
		v1.POST("/subscriptions/:id/cancel", s.CancelSubscription)
		v1.POST("/subscriptions/:id/change-plan", s.ChangePlan)
		v1.POST("/subscriptions/:id/grace-period", s.SetGracePeriod)
		v1.POST("/subscriptions/:id/reconcile", s.ReconcileSubscription)
		v1.POST("/grace/sweep", s.RunGraceSweep)
	}
	return r
}

func (s *Server) Healthz(c *gin.Context) {
	sqlDB, err := s.db.DB()
	if err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Start runs the HTTP listener under the fx lifecycle.
func Start(lc fx.Lifecycle, s *Server) {
	srv := &http.Server{
		Addr:    s.cfg.HTTPAddr,
		Handler: s.Router(),
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			s.log.Info("http server starting", zap.String("addr", s.cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					s.log.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

var Module = fx.Module("server",
	fx.Provide(NewServer),
)
