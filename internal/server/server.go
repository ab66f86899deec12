package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/allotment/internal/authorization"
	billingdomain "github.com/smallbiznis/allotment/internal/billing/domain"
	"github.com/smallbiznis/allotment/internal/catalog"
	"github.com/smallbiznis/allotment/internal/clock"
	"github.com/smallbiznis/allotment/internal/config"
	"github.com/smallbiznis/allotment/internal/identity"
	"github.com/smallbiznis/allotment/internal/observability"
	obsmiddleware "github.com/smallbiznis/allotment/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/allotment/internal/observability/metrics"
	obstracing "github.com/smallbiznis/allotment/internal/observability/tracing"
	paymenthistorydomain "github.com/smallbiznis/allotment/internal/paymenthistory/domain"
	pricedomain "github.com/smallbiznis/allotment/internal/price/domain"
	pricemodifierdomain "github.com/smallbiznis/allotment/internal/pricemodifier/domain"
	subscriptiondomain "github.com/smallbiznis/allotment/internal/subscription/domain"
	"github.com/smallbiznis/allotment/internal/treasury"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, s *Server, log *zap.Logger) {
	addr := strings.TrimSpace(cfg.HTTPAddr)
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Params struct {
	fx.In

	Engine         *gin.Engine
	Log            *zap.Logger
	Tokens         *identity.Tokens
	Authz          authorization.Service
	Catalog        *catalog.Catalog
	Clock          clock.Clock
	Billing        billingdomain.Service
	Subscriptions  subscriptiondomain.Service
	Prices         pricedomain.Service
	Modifiers      pricemodifierdomain.Service
	PaymentHistory paymenthistorydomain.Service
	Treasury       treasury.Gateway
}

type Server struct {
	engine         *gin.Engine
	log            *zap.Logger
	tokens         *identity.Tokens
	authz          authorization.Service
	catalog        *catalog.Catalog
	clock          clock.Clock
	billing        billingdomain.Service
	subscriptions  subscriptiondomain.Service
	prices         pricedomain.Service
	modifiers      pricemodifierdomain.Service
	paymentHistory paymenthistorydomain.Service
	treasury       treasury.Gateway
}

func NewServer(p Params) *Server {
	s := &Server{
		engine:         p.Engine,
		log:            p.Log.Named("http.server"),
		tokens:         p.Tokens,
		authz:          p.Authz,
		catalog:        p.Catalog,
		clock:          p.Clock,
		billing:        p.Billing,
		subscriptions:  p.Subscriptions,
		prices:         p.Prices,
		modifiers:      p.Modifiers,
		paymentHistory: p.PaymentHistory,
		treasury:       p.Treasury,
	}
	s.RegisterRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) RegisterRoutes() {
	s.engine.GET("/ready", s.Ready)

	api := s.engine.Group("", s.Authenticated())

	subscriptions := api.Group("/subscriptions")
	{
		subscriptions.GET("/info", s.Authorize(authorization.ObjectSubscription, authorization.ActionView), s.SubscriptionInfo)
		subscriptions.GET("", s.Authorize(authorization.ObjectSubscription, authorization.ActionView), s.ListSubscriptions)
		subscriptions.POST("", s.Authorize(authorization.ObjectSubscription, authorization.ActionCreate), s.CreateSubscription)
		subscriptions.PUT("/service/:serviceId", s.Authorize(authorization.ObjectSubscription, authorization.ActionUpdate), s.UpdateSubscription)
		subscriptions.POST("/services/add-seats", s.Authorize(authorization.ObjectSubscription, authorization.ActionUpdate), s.AddSeats)
		subscriptions.DELETE("/:id", s.Authorize(authorization.ObjectSubscription, authorization.ActionDelete), s.DeleteSubscription)
		subscriptions.POST("/:id/status", s.Authorize(authorization.ObjectSubscription, authorization.ActionStatus), s.TransitionSubscriptionStatus)
	}

	prices := api.Group("/subscription-prices")
	{
		prices.GET("", s.Authorize(authorization.ObjectPrice, authorization.ActionView), s.ListPrices)
		prices.GET("/:id", s.Authorize(authorization.ObjectPrice, authorization.ActionView), s.GetPrice)
		prices.POST("", s.Authorize(authorization.ObjectPrice, authorization.ActionCreate), s.CreatePrice)
		prices.PUT("/:id", s.Authorize(authorization.ObjectPrice, authorization.ActionUpdate), s.UpdatePrice)
		prices.DELETE("/:id", s.Authorize(authorization.ObjectPrice, authorization.ActionDelete), s.DeletePrice)
	}

	modifiers := api.Group("/subscription-price-modifiers")
	{
		modifiers.GET("", s.Authorize(authorization.ObjectPriceModifier, authorization.ActionView), s.ListModifiers)
		modifiers.GET("/:id", s.Authorize(authorization.ObjectPriceModifier, authorization.ActionView), s.GetModifier)
		modifiers.POST("", s.Authorize(authorization.ObjectPriceModifier, authorization.ActionCreate), s.CreateModifier)
		modifiers.PUT("/:id", s.Authorize(authorization.ObjectPriceModifier, authorization.ActionUpdate), s.UpdateModifier)
		modifiers.DELETE("/:id", s.Authorize(authorization.ObjectPriceModifier, authorization.ActionDelete), s.DeleteModifier)
	}

	api.GET("/payment-history", s.Authorize(authorization.ObjectPaymentHistory, authorization.ActionView), s.ListPaymentHistory)

	treasuryGroup := api.Group("/treasury", s.Authorize(authorization.ObjectTreasury, authorization.ActionView))
	{
		treasuryGroup.GET("/accounts", s.ListAccounts)
		treasuryGroup.GET("/exchange-rate", s.CurrentExchangeRate)
	}
}

// Ready reports 503 until the service catalog has loaded once.
func (s *Server) Ready(c *gin.Context) {
	if s.catalog == nil || !s.catalog.IsReady() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "starting"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
