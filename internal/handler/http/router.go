package http

import (
	"log/slog"

	"github.com/cmlabs-hris/payroll-engine/internal/domain/user"
	"github.com/cmlabs-hris/payroll-engine/internal/handler/http/middleware"
	"github.com/cmlabs-hris/payroll-engine/internal/pkg/jwt"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v3"
	"github.com/go-chi/jwtauth/v5"
)

type RouterConfig struct {
	AllowedOrigins []string
	LogLevel       slog.Level
}

func NewRouter(cfg RouterConfig, logger *slog.Logger, JWTService jwt.Service, payrollHandler PayrollHandler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link", "Content-Disposition"},
		MaxAge:           300,
	}))

	r.Use(httplog.RequestLogger(logger, &httplog.Options{
		Level:  cfg.LogLevel,
		Schema: httplog.SchemaECS,
	}))

	r.Use(chiMiddleware.CleanPath)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/healthz"))

	r.Route("/api/v1", func(r chi.Router) {

		// Requires authentication
		r.Group(func(r chi.Router) {
			r.Use(jwtauth.Verifier(JWTService.JWTAuth()))
			r.Use(middleware.AuthRequired(JWTService.JWTAuth()))

			r.Route("/payroll", func(r chi.Router) {
				r.With(middleware.RequirePermission(user.PermissionPayrollManage)).Post("/preview", payrollHandler.Preview)

				r.Route("/periods", func(r chi.Router) {
					r.With(middleware.RequirePermission(user.PermissionPayrollView)).Get("/", payrollHandler.ListPeriods)
					r.With(middleware.RequirePermission(user.PermissionPayrollManage)).Post("/", payrollHandler.CreatePeriod)

					r.Route("/{id}", func(r chi.Router) {
						r.Group(func(r chi.Router) {
							r.Use(middleware.RequirePermission(user.PermissionPayrollView))
							r.Get("/", payrollHandler.GetPeriod)
							r.Get("/lines", payrollHandler.ListLines)
							r.Get("/aggregate", payrollHandler.GetAggregate)
							r.Get("/history", payrollHandler.GetHistory)
							r.Get("/snapshot", payrollHandler.GetSnapshot)
							r.Get("/adjustments", payrollHandler.ListPeriodAdjustments)
							r.Get("/export/register", payrollHandler.ExportRegister)
						})

						r.Group(func(r chi.Router) {
							r.Use(middleware.RequirePermission(user.PermissionPayrollManage))
							r.Delete("/", payrollHandler.DeletePeriod)
							r.Post("/calculate", payrollHandler.Calculate)
						})

						r.Group(func(r chi.Router) {
							r.Use(middleware.RequirePermission(user.PermissionPayrollApprove))
							r.Post("/approve", payrollHandler.Approve)
							r.Post("/void", payrollHandler.Void)
						})

						r.With(middleware.RequirePermission(user.PermissionPayrollPay)).Post("/pay", payrollHandler.MarkPaid)
					})
				})

				r.Route("/lines/{lineID}", func(r chi.Router) {
					r.With(middleware.RequirePermission(user.PermissionPayrollView)).Get("/adjustments", payrollHandler.ListLineAdjustments)
					r.With(middleware.RequirePermission(user.PermissionPayrollView)).Get("/payslip", payrollHandler.ExportPayslip)
					r.With(middleware.RequirePermission(user.PermissionPayrollManage)).Post("/adjustments", payrollHandler.AddAdjustment)
				})

				r.With(middleware.RequirePermission(user.PermissionPayrollManage)).Delete("/adjustments/{id}", payrollHandler.RemoveAdjustment)
			})
		})
	})
	return r
}
