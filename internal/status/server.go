// Package status exposes the agent's local observability surface: health,
// Prometheus metrics, and a JSON snapshot of connection and call state.
package status

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"heartlink-client/pkg/logger"
	"heartlink-client/pkg/metrics"

	"heartlink-client/internal/domain"
)

// ConnectionStater reports the chat connection state
type ConnectionStater interface {
	State() domain.ChatConnectionState
}

// CallSnapshotter reports the current call session and pending offer
type CallSnapshotter interface {
	Snapshot() (*domain.CallSession, *domain.IncomingCallOffer)
}

// TimelineSizer reports timeline entry counts per conversation
type TimelineSizer interface {
	TimelineSizes() map[string]int
}

// Server is the local HTTP status server
type Server struct {
	serviceName string
	userID      string

	conn  ConnectionStater
	calls CallSnapshotter
	chat  TimelineSizer

	metrics *metrics.Metrics
	log     *zap.Logger
	http    *http.Server
}

// NewServer creates the status server; Start binds it
func NewServer(serviceName, userID string, conn ConnectionStater, calls CallSnapshotter, chat TimelineSizer, m *metrics.Metrics) *Server {
	return &Server{
		serviceName: serviceName,
		userID:      userID,
		conn:        conn,
		calls:       calls,
		chat:        chat,
		metrics:     m,
		log:         logger.Named("status"),
	}
}

// Router builds the gin router with recovery, request logging, and metrics
// middleware applied
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(s.recovery())
	router.Use(s.requestLogger())
	router.Use(s.prometheusMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": s.serviceName,
			"time":    time.Now().UTC(),
		})
	})

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(
		s.metrics.GetRegistry(),
		promhttp.HandlerOpts{EnableOpenMetrics: false},
	)))

	router.GET("/status", s.handleStatus)
	return router
}

func (s *Server) handleStatus(c *gin.Context) {
	body := gin.H{
		"service": s.serviceName,
		"user_id": s.userID,
	}
	if s.conn != nil {
		body["chat_connection"] = s.conn.State()
	}
	if s.calls != nil {
		session, offer := s.calls.Snapshot()
		body["call_session"] = session
		body["incoming_offer"] = offer
	}
	if s.chat != nil {
		body["timelines"] = s.chat.TimelineSizes()
	}
	c.JSON(http.StatusOK, body)
}

// recovery returns 500 on panic instead of dropping the connection
func (s *Server) recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				s.log.Error("panic in status handler", zap.Any("panic", err))
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "internal server error",
				})
			}
		}()
		c.Next()
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		s.log.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

func (s *Server) prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.metrics.IncrementHTTPRequestsInFlight()
		defer s.metrics.DecrementHTTPRequestsInFlight()

		start := time.Now()
		c.Next()

		s.metrics.RecordHTTPRequest(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(c.Writer.Status()),
			time.Since(start),
		)
	}
}

// Start serves until the listener fails or Shutdown is called
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.log.Info("status server listening", zap.String("addr", addr))
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
