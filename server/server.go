package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/xhad/yesno/internal/models"
	"github.com/xhad/yesno/internal/types"
	"github.com/xhad/yesno/pkg/config"
	"github.com/xhad/yesno/pkg/predictor"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Message is the websocket envelope in both directions. Clients send
// {"type":"predict","content":"<prompt>"}; the server answers with status,
// progress, result and error messages.
type Message struct {
	Type    string      `json:"type"`
	Content string      `json:"content"`
	Data    interface{} `json:"data,omitempty"`
}

// Predictor runs one prediction. *predictor.Pipeline implements it.
type Predictor interface {
	Run(ctx context.Context, req predictor.Request) (*models.Result, error)
}

type Config struct {
	Port       string
	RunTimeout time.Duration
	Logger     *zap.Logger
}

type WSServer struct {
	config    Config
	predictor Predictor
	router    *gin.Engine
	logger    *zap.Logger
}

func NewWSServer(p Predictor, config Config) *WSServer {
	if config.Port == "" {
		config.Port = "8080"
	}
	if config.RunTimeout == 0 {
		config.RunTimeout = 5 * time.Minute
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	s := &WSServer{
		config:    config,
		predictor: p,
		logger:    config.Logger,
	}
	s.router = s.routes()
	return s
}

func (s *WSServer) routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept"},
		MaxAge:          12 * time.Hour,
	}))

	router.GET("/health", s.health)
	router.GET("/ws", s.handleWebSocket)

	v1 := router.Group("/api/v1")
	v1.POST("/predict", s.predict)

	return router
}

// Handler exposes the router, mostly for tests.
func (s *WSServer) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *WSServer) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.config.Port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", zap.String("port", s.config.Port))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *WSServer) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *WSServer) predict(c *gin.Context) {
	var req predictor.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "prompt is required"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.config.RunTimeout)
	defer cancel()

	result, err := s.predictor.Run(ctx, req)
	if err != nil {
		s.logger.Warn("prediction failed", zap.Error(err))
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// statusFor maps run errors to HTTP statuses: catalog errors are the
// caller's fault, unparseable model output is an upstream failure.
func statusFor(err error) int {
	var parseErr *types.ParseError
	switch {
	case errors.Is(err, config.ErrUnsupportedTool), errors.Is(err, config.ErrUnsupportedModel):
		return http.StatusBadRequest
	case errors.As(err, &parseErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// wsConn serializes writes; gorilla connections allow one concurrent writer.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsConn) send(msg Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteJSON(msg)
}

func (s *WSServer) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	// Runs in flight are cancelled, then awaited, before the socket closes.
	var wg sync.WaitGroup
	defer wg.Wait()
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	ws := &wsConn{conn: conn}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("error reading message", zap.Error(err))
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.sendMessage(ws, Message{Type: "error", Content: fmt.Sprintf("invalid message: %v", err)})
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleMessage(ctx, ws, msg)
		}()
	}
}

func (s *WSServer) handleMessage(ctx context.Context, ws *wsConn, msg Message) {
	if msg.Type != "predict" {
		s.sendMessage(ws, Message{Type: "error", Content: fmt.Sprintf("unknown message type %q", msg.Type)})
		return
	}
	if strings.TrimSpace(msg.Content) == "" {
		s.sendMessage(ws, Message{Type: "error", Content: "prompt is required"})
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.RunTimeout)
	defer cancel()

	s.sendMessage(ws, Message{Type: "status", Content: "prediction started"})

	result, err := s.predictor.Run(ctx, predictor.Request{
		Prompt: msg.Content,
		OnProgress: func(ev models.ProgressEvent) {
			s.sendMessage(ws, Message{Type: "progress", Content: ev.Message, Data: ev})
		},
	})
	if err != nil {
		s.sendMessage(ws, Message{Type: "error", Content: err.Error()})
		return
	}

	s.sendMessage(ws, Message{Type: "result", Content: result.Question, Data: result})
}

func (s *WSServer) sendMessage(ws *wsConn, msg Message) {
	if err := ws.send(msg); err != nil {
		s.logger.Debug("error sending message", zap.String("type", msg.Type), zap.Error(err))
	}
}
