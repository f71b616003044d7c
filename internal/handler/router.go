package handler

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/civil-registry-api/internal/middleware"
	"github.com/noah-isme/civil-registry-api/internal/models"
	"github.com/noah-isme/civil-registry-api/internal/service"
	"github.com/noah-isme/civil-registry-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/civil-registry-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/civil-registry-api/pkg/middleware/requestid"
)

// RouterConfig carries everything NewRouter mounts.
type RouterConfig struct {
	APIPrefix      string
	AllowedOrigins []string
	EnableDocs     bool
	Logger         *zap.Logger
	Metrics        *service.MetricsService

	Tokens      middleware.TokenValidator
	Users       middleware.UserLoader
	Descriptors service.Descriptors

	Auth         *AuthHandler
	UserAdmin    *UserHandler
	Records      *RecordHandler
	Audit        *AuditHandler
	Certificates *CertificateHandler
	Health       *MetricsHandler
}

// NewRouter builds the gin engine with the full API surface.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(cfg.Logger))
	r.Use(corsmiddleware.New(cfg.AllowedOrigins))
	r.Use(middleware.Metrics(cfg.Metrics))
	r.Use(middleware.WithResponseMeta())

	if cfg.Health != nil {
		r.GET("/health", cfg.Health.Health)
		r.GET("/ready", cfg.Health.Ready)
		r.GET("/metrics", cfg.Health.Prometheus)
	}
	if cfg.EnableDocs {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	public := api.Group("")
	public.POST("/auth/login", cfg.Auth.Login)
	if cfg.Certificates != nil {
		public.GET("/certificates/verify", cfg.Certificates.Verify)
		public.GET("/certificates/download/:token", cfg.Certificates.Download)
	}

	secured := api.Group("")
	secured.Use(middleware.JWT(cfg.Tokens), middleware.Actor(cfg.Users))

	secured.GET("/auth/me", cfg.Auth.Me)
	secured.POST("/auth/change-password", cfg.Auth.ChangePassword)

	adminOnly := middleware.RequireRoles(models.RoleAdmin)
	adminOrSelf := middleware.RBAC(string(models.RoleAdmin), middleware.Self)

	users := secured.Group("/users")
	users.GET("", adminOnly, cfg.UserAdmin.List)
	users.POST("", adminOnly, cfg.UserAdmin.Create)
	users.GET("/:id", adminOrSelf, cfg.UserAdmin.Get)
	users.PUT("/:id", adminOnly, cfg.UserAdmin.Update)
	users.PATCH("/:id/status", adminOnly, cfg.UserAdmin.SetStatus)

	audit := secured.Group("/audit-logs")
	audit.GET("", adminOnly, cfg.Audit.List)
	audit.GET("/record/:type/:id", cfg.Audit.ForRecord)
	audit.GET("/user/:id", adminOrSelf, cfg.Audit.ForUser)

	downloadBase := cfg.APIPrefix + "/certificates/download"
	for _, recordType := range models.RecordTypes {
		desc, err := cfg.Descriptors.Get(recordType)
		if err != nil {
			continue
		}
		registerRecordRoutes(secured.Group("/"+desc.PathPrefix), cfg.Records, recordType, downloadBase)
	}

	return r
}

func registerRecordRoutes(group *gin.RouterGroup, h *RecordHandler, recordType models.RecordType, downloadBase string) {
	group.POST("", h.Create(recordType))
	group.GET("", h.List(recordType))
	group.GET("/export", h.Export(recordType))
	group.GET("/:id", h.Get(recordType))
	group.PUT("/:id", h.Update(recordType))
	status := h.UpdateStatus(recordType)
	group.PUT("/:id/status", status)
	group.PATCH("/:id/status", status)
	group.DELETE("/:id", h.Delete(recordType))
	group.POST("/:id/photo", h.UploadPhoto(recordType))
	group.GET("/:id/certificate", h.Certificate(recordType))
	group.GET("/:id/certificate/link", h.CertificateLink(recordType, downloadBase))
}
