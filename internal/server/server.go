package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	accountdomain "github.com/tripfolio/financeos/internal/account/domain"
	accrualdomain "github.com/tripfolio/financeos/internal/accrual/domain"
	auditdomain "github.com/tripfolio/financeos/internal/audit/domain"
	bookingdomain "github.com/tripfolio/financeos/internal/booking/domain"
	"github.com/tripfolio/financeos/internal/config"
	ledgerdomain "github.com/tripfolio/financeos/internal/ledger/domain"
	"github.com/tripfolio/financeos/internal/observability"
	obslogger "github.com/tripfolio/financeos/internal/observability/logger"
	obsmetrics "github.com/tripfolio/financeos/internal/observability/metrics"
	obstracing "github.com/tripfolio/financeos/internal/observability/tracing"
	refunddomain "github.com/tripfolio/financeos/internal/refund/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Log:             log,
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

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	db         *gorm.DB
	genID      *snowflake.Node
	auditSvc   auditdomain.Service
	accountSvc accountdomain.Service
	ledgerSvc  ledgerdomain.Service
	bookingSvc bookingdomain.Service
	accrualSvc accrualdomain.Service
	refundSvc  refunddomain.Service
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	DB         *gorm.DB
	GenID      *snowflake.Node
	AuditSvc   auditdomain.Service
	AccountSvc accountdomain.Service
	LedgerSvc  ledgerdomain.Service
	BookingSvc bookingdomain.Service
	AccrualSvc accrualdomain.Service
	RefundSvc  refunddomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		db:         p.DB,
		genID:      p.GenID,
		auditSvc:   p.AuditSvc,
		accountSvc: p.AccountSvc,
		ledgerSvc:  p.LedgerSvc,
		bookingSvc: p.BookingSvc,
		accrualSvc: p.AccrualSvc,
		refundSvc:  p.RefundSvc,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")
	api.Use(s.OrgContext())

	// -------- Accounts --------
	api.POST("/accounts", s.EnsureAccount)
	api.GET("/accounts/:id", s.GetAccountByID)
	api.GET("/accounts/:id/balance", s.GetAccountBalance)
	api.POST("/accounts/:id/recalculate", s.RecalculateAccountBalance)

	// -------- Ledger --------
	api.POST("/postings", s.PostLedgerEvent)
	api.GET("/postings", s.ListPostings)
	api.GET("/postings/:id", s.GetPostingByID)

	// -------- Bookings --------
	api.POST("/bookings", s.CreateBooking)
	api.GET("/bookings/:id", s.GetBookingByID)
	api.POST("/bookings/:id/quote", s.QuoteBooking)
	api.POST("/bookings/:id/confirm", s.ConfirmBooking)
	api.POST("/bookings/:id/cancel", s.CancelBooking)
	api.POST("/bookings/:id/voucher", s.VoucherBooking)
	api.POST("/bookings/:id/complete", s.CompleteBooking)
	api.GET("/bookings/:id/financials", s.GetBookingFinancials)

	// -------- Supplier accruals --------
	api.GET("/bookings/:id/accrual", s.GetSupplierAccrual)
	api.POST("/bookings/:id/accrual/reverse", s.ReverseSupplierAccrual)

	// -------- Refund cases --------
	api.POST("/bookings/:id/refund-cases", s.OpenRefundCase)
	api.GET("/bookings/:id/refund-cases", s.ListRefundCases)
	api.GET("/refund-cases/:id", s.GetRefundCaseByID)
	api.POST("/refund-cases/:id/approve", s.ApproveRefundCase)
	api.POST("/refund-cases/:id/reject", s.RejectRefundCase)
}
