// Package server - HTTP-Schnittstelle des Caption-Dienstes
// Beinhaltet: Server-Struct, Router-Registrierung, Host-Pruefung, Server-Start
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/imagecaption/captioner/api"
	"github.com/imagecaption/captioner/envconfig"
	"github.com/imagecaption/captioner/llm"
	"github.com/imagecaption/captioner/metrics"
	"github.com/imagecaption/captioner/runner"
)

var mode string = gin.ReleaseMode

func init() {
	switch mode {
	case gin.DebugMode:
	case gin.ReleaseMode:
	case gin.TestMode:
	default:
		mode = gin.DebugMode
	}

	gin.SetMode(mode)
}

// Captioner erzeugt Captions mit dem lokalen Modell
type Captioner interface {
	Generate(ctx context.Context, image []byte, o runner.Overrides) (string, error)
}

// RemoteCaptioner ist die erste Caption-Stufe ueber einen entfernten Dienst
type RemoteCaptioner interface {
	Caption(ctx context.Context, image []byte, filename string) string
}

// Refiner verfeinert Captions, erzeugt Hashtags und uebersetzt
type Refiner interface {
	Refine(ctx context.Context, req llm.RefinementRequest) string
	Hashtags(ctx context.Context, caption string) []string
	Translate(ctx context.Context, text, language string) string
}

// Server haelt die Komponenten hinter den Endpunkten. Fehlende Komponenten
// (nil) beantworten ihre Endpunkte mit 503.
type Server struct {
	addr    net.Addr
	origins []string

	captioner Captioner
	remote    RemoteCaptioner
	refiner   Refiner
}

// New erzeugt einen Server
func New(cfg envconfig.Config, c Captioner, rc RemoteCaptioner, r Refiner) *Server {
	return &Server{
		origins:   cfg.Origins,
		captioner: c,
		remote:    rc,
		refiner:   r,
	}
}

// isLocalIP prueft ob die IP-Adresse zu einem lokalen Interface gehoert
func isLocalIP(ip netip.Addr) bool {
	interfaces, err := net.Interfaces()
	if err != nil {
		return false
	}

	for _, iface := range interfaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			if parsed, _, err := net.ParseCIDR(a.String()); err == nil && parsed.String() == ip.String() {
				return true
			}
		}
	}
	return false
}

// allowedHost prueft ob ein Hostname auf diese Maschine zeigt
func allowedHost(host string) bool {
	host = strings.ToLower(host)

	if host == "" || host == "localhost" {
		return true
	}

	if hostname, err := os.Hostname(); err == nil && host == strings.ToLower(hostname) {
		return true
	}

	for _, tld := range []string{"localhost", "local", "internal"} {
		if strings.HasSuffix(host, "."+tld) {
			return true
		}
	}

	return false
}

// allowedHostsMiddleware blockiert fremde Host-Header, solange der Server
// nur auf Loopback lauscht
func allowedHostsMiddleware(addr net.Addr) gin.HandlerFunc {
	return func(c *gin.Context) {
		if addr == nil {
			c.Next()
			return
		}

		if addr, err := netip.ParseAddrPort(addr.String()); err == nil && !addr.Addr().IsLoopback() {
			c.Next()
			return
		}

		host, _, err := net.SplitHostPort(c.Request.Host)
		if err != nil {
			host = c.Request.Host
		}

		if addr, err := netip.ParseAddr(host); err == nil {
			if addr.IsLoopback() || addr.IsPrivate() || addr.IsUnspecified() || isLocalIP(addr) {
				c.Next()
				return
			}
		}

		if allowedHost(host) {
			if c.Request.Method == http.MethodOptions {
				c.AbortWithStatus(http.StatusNoContent)
				return
			}
			c.Next()
			return
		}

		c.AbortWithStatus(http.StatusForbidden)
	}
}

// GenerateRoutes erstellt den HTTP-Router
func (s *Server) GenerateRoutes() http.Handler {
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowWildcard = true
	corsConfig.AllowBrowserExtensions = true
	corsConfig.AllowHeaders = []string{
		"Authorization",
		"Content-Type",
		"User-Agent",
		"Accept",
		"X-Requested-With",
		"X-CSRFToken",
	}
	corsConfig.AllowOrigins = s.origins
	if len(corsConfig.AllowOrigins) == 0 {
		corsConfig.AllowOrigins = envconfig.AllowedOrigins()
	}

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.MaxMultipartMemory = MaxImageBytes
	r.Use(
		gin.Recovery(),
		requestLogger(),
		cors.New(corsConfig),
		allowedHostsMiddleware(s.addr),
	)

	// Allgemein
	r.GET("/", s.WelcomeHandler)
	r.HEAD("/", s.WelcomeHandler)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Lokales Modell
	r.POST("/"+api.PathCaption, s.GenerateCaptionHandler)

	// Caption-Pipeline
	r.POST("/"+api.PathRemoteCaption, s.RemoteCaptionHandler)
	r.POST("/"+api.PathRefine, s.RefineHandler)
	r.POST("/"+api.PathHashtags, s.HashtagsHandler)
	r.POST("/"+api.PathTranslate, s.TranslateHandler)

	return r
}

// requestLogger protokolliert jede Anfrage ueber slog
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("request",
			"method", c.Request.Method, "path", c.Request.URL.Path,
			"status", c.Writer.Status(), "duration", time.Since(start), "client", c.ClientIP())
	}
}

// Serve bedient ln bis ctx endet und faehrt dann geordnet herunter
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.addr = ln.Addr()

	srvr := &http.Server{
		Handler:           s.GenerateRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Listening on " + ln.Addr().String())
		errCh <- srvr.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		slog.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srvr.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}
