package api

import (
	"errors"
	"io"
	"log"
	"net/http"
	"slices"
	"time"

	"kairos-demo/server/internal/catalog"
	"kairos-demo/server/internal/config"
	"kairos-demo/server/internal/gateway"
	"kairos-demo/server/internal/model"
	"kairos-demo/server/internal/observe"
	"kairos-demo/server/internal/playback"
	"kairos-demo/server/internal/script"
	"kairos-demo/server/internal/session"
	"kairos-demo/server/internal/transcript"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// AppContext 是应用级偏好（首次访问标记），prefs.Store 满足该接口。
type AppContext interface {
	FirstVisit() bool
	MarkVisited() error
}

type Server struct {
	config   *config.Config
	catalog  *catalog.Holder
	resolver *script.Resolver
	store    session.Store
	app      AppContext
	metrics  *observe.Metrics
	logger   *log.Logger
	now      func() time.Time

	// newPacer 允许测试注入确定的节奏
	newPacer func() playback.Pacer

	upgrader websocket.Upgrader
}

func NewServer(cfg *config.Config, holder *catalog.Holder, store session.Store, app AppContext, metrics *observe.Metrics, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}

	s := &Server{
		config:   cfg,
		catalog:  holder,
		resolver: script.NewResolver(holder, logger),
		store:    store,
		app:      app,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
		newPacer: func() playback.Pacer { return playback.RandomPacer{} },
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// 非浏览器客户端不带 Origin
			origin := r.Header.Get("Origin")
			return origin == "" || s.allowedOrigin(origin)
		},
	}
	return s
}

func (s *Server) Routes() http.Handler {
	engine := gin.New()
	engine.Use(gin.Logger(), gin.Recovery(), s.metricsMiddleware(), s.corsMiddleware())

	engine.GET("/healthz", s.handleHealthz)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	engine.GET("/api/app", s.handleApp)
	engine.POST("/api/app/welcome", s.handleWelcome)

	engine.GET("/api/agents", s.handleAgents)
	engine.GET("/api/agents/:id", s.handleAgent)

	sessions := engine.Group("/api/sessions")
	sessions.GET("", s.handleListSessions)
	sessions.POST("", s.handleCreateSession)
	sessions.GET("/:id", s.handleGetSession)
	sessions.DELETE("/:id", s.handleDeleteSession)
	sessions.POST("/:id/playback", s.handleStartPlayback)
	sessions.POST("/:id/playback/cancel", s.handleCancelPlayback)
	sessions.POST("/:id/reset", s.handleReset)
	sessions.POST("/:id/messages", s.handleSubmitMessage)
	sessions.GET("/:id/stream", s.handleSessionStream)
	return engine
}

// handleHealthz 返回服务健康状态。
func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleApp(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"first_visit": s.app.FirstVisit()})
}

// handleWelcome 在欢迎页展示后调用，之后不再是首次访问。
func (s *Server) handleWelcome(c *gin.Context) {
	if err := s.app.MarkVisited(); err != nil {
		s.logger.Printf("[API] ❌ mark visited failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save preferences failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"first_visit": false})
}

// TopicChip 是对话窗口里的话题按钮。
type TopicChip struct {
	Index       int    `json:"index"`
	Label       string `json:"label"`
	Color       string `json:"color,omitempty"`
	Description string `json:"description,omitempty"`
	Turns       int    `json:"turns"`
}

type agentDetail struct {
	model.Agent
	Topics []TopicChip `json:"topics"`
}

// generalDemo 是没有配置话题的智能体显示的唯一按钮。
var generalDemo = TopicChip{Label: "General Demo", Color: "gray", Description: "Standard agent capabilities"}

func (s *Server) handleAgents(c *gin.Context) {
	c.JSON(http.StatusOK, s.catalog.Current().Agents())
}

func (s *Server) handleAgent(c *gin.Context) {
	entry, ok := s.catalog.Lookup(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "agent not found"})
		return
	}
	c.JSON(http.StatusOK, agentDetail{Agent: entry.Agent, Topics: topicChips(entry.Topics)})
}

func topicChips(topics []model.Topic) []TopicChip {
	if len(topics) == 0 {
		return []TopicChip{generalDemo}
	}
	chips := make([]TopicChip, len(topics))
	for i, t := range topics {
		label := t.Label
		if label == "" {
			label = t.Name
		}
		chips[i] = TopicChip{Index: i, Label: label, Color: t.Color, Description: t.Description, Turns: len(t.Turns)}
	}
	return chips
}

type createSessionRequest struct {
	AgentID string `json:"agent_id"`
}

// SessionView 是对话窗口的完整视图。
type SessionView struct {
	SessionID  string              `json:"session_id"`
	Agent      model.Agent         `json:"agent"`
	State      model.PlaybackState `json:"state"`
	Transcript []model.Message     `json:"transcript"`
	CreatedAt  time.Time           `json:"created_at"`
}

func sessionView(d *session.Dialog) SessionView {
	return SessionView{
		SessionID:  d.ID,
		Agent:      d.Agent,
		State:      d.Engine.State(),
		Transcript: d.Transcript().List(),
		CreatedAt:  d.CreatedAt,
	}
}

// handleCreateSession 打开一个智能体对话窗口。
func (s *Server) handleCreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.AgentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "agent_id required"})
		return
	}

	entry, ok := s.catalog.Lookup(req.AgentID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "agent not found"})
		return
	}

	now := s.now()
	d := session.NewDialog(uuid.NewString(), s.newEngine(entry.Agent), now)
	if err := s.store.Save(c.Request.Context(), d); err != nil {
		s.logger.Printf("[API] ❌ save session failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save session failed"})
		return
	}
	s.logger.Printf("[API] ✅ session %s opened for agent %s", d.ID, entry.Agent.ID)
	c.JSON(http.StatusCreated, sessionView(d))
}

func (s *Server) newEngine(agent model.Agent) *playback.Engine {
	return playback.New(playback.Config{
		Agent:      agent,
		Resolver:   s.resolver,
		Transcript: transcript.NewStore(s.now),
		Pacer:      s.newPacer(),
		Timing:     s.config.Playback.Timing(),
		FallbackReply: s.catalog.FallbackReply(),
		Logger:        s.logger,
		Metrics:       s.metrics,
	})
}

func (s *Server) handleListSessions(c *gin.Context) {
	dialogs, err := s.store.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list sessions failed"})
		return
	}
	views := make([]SessionView, len(dialogs))
	for i, d := range dialogs {
		views[i] = sessionView(d)
	}
	c.JSON(http.StatusOK, views)
}

func (s *Server) handleGetSession(c *gin.Context) {
	d, ok := s.dialog(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sessionView(d))
}

// handleDeleteSession 关闭对话窗口：停止回放，丢弃 transcript。
func (s *Server) handleDeleteSession(c *gin.Context) {
	d, err := s.store.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeStoreError(c, err)
		return
	}
	d.Close()
	s.logger.Printf("[API] 🔌 session %s closed", d.ID)
	c.Status(http.StatusNoContent)
}

type startPlaybackRequest struct {
	TopicIndex *int `json:"topic_index"`
}

func (s *Server) handleStartPlayback(c *gin.Context) {
	d, ok := s.dialog(c)
	if !ok {
		return
	}

	// 请求体可省略，默认播放第 0 个话题
	var req startPlaybackRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	idx := 0
	if req.TopicIndex != nil {
		idx = *req.TopicIndex
	}

	if err := d.Engine.Start(idx); err != nil {
		s.writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"state": d.Engine.State()})
}

func (s *Server) handleCancelPlayback(c *gin.Context) {
	d, ok := s.dialog(c)
	if !ok {
		return
	}
	d.Engine.Cancel()
	c.JSON(http.StatusOK, gin.H{"state": d.Engine.State()})
}

func (s *Server) handleReset(c *gin.Context) {
	d, ok := s.dialog(c)
	if !ok {
		return
	}
	d.Engine.Reset()
	c.JSON(http.StatusOK, gin.H{"state": d.Engine.State()})
}

type submitMessageRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleSubmitMessage(c *gin.Context) {
	d, ok := s.dialog(c)
	if !ok {
		return
	}

	var req submitMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if err := d.Engine.Submit(req.Text); err != nil {
		s.writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"state": d.Engine.State()})
}

// handleSessionStream 把对话窗口的实时视图推给 WebSocket 客户端
func (s *Server) handleSessionStream(c *gin.Context) {
	d, ok := s.dialog(c)
	if !ok {
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Printf("[API] ❌ Failed to upgrade websocket: %v", err)
		return
	}
	s.logger.Printf("[API] 👀 stream opened for session %s (origin=%q)", d.ID, c.Request.Header.Get("Origin"))

	gc := s.config.Gateway
	gw := gateway.New(d, conn, gateway.Config{
		PingInterval:   gc.PingInterval,
		WriteTimeout:   gc.WriteTimeout,
		OutboundBuffer: gc.OutboundBuffer,
		InboundBuffer:  gc.InboundBuffer,
	}, s.logger)
	gw.Start()

	// 阻塞直到连接关闭
	<-gw.Done()
	s.logger.Printf("[API] stream closed for session %s", d.ID)
}

// dialog 取出路径中的对话并记录一次操作，找不到时已写好响应。
func (s *Server) dialog(c *gin.Context) (*session.Dialog, bool) {
	d, err := s.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeStoreError(c, err)
		return nil, false
	}
	d.Touch(s.now())
	return d, true
}

func (s *Server) writeStoreError(c *gin.Context, err error) {
	if errors.Is(err, session.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	s.logger.Printf("[API] ❌ load session failed: %v", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "load session failed"})
}

func (s *Server) writeEngineError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, playback.ErrBusy):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, playback.ErrEmptyInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, playback.ErrClosed):
		// 请求拿到对话后它才被关闭，按已删除处理
		c.JSON(http.StatusNotFound, gin.H{"error": session.ErrNotFound.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (s *Server) allowedOrigin(origin string) bool {
	return slices.Contains(s.config.Server.AllowedOrigins, origin)
}

func (s *Server) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && s.allowedOrigin(origin) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
			c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// metricsMiddleware 按路由模板记录请求耗时，未匹配的路径统一记为 unmatched。
func (s *Server) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		s.metrics.RecordHTTPRequest(c.Request.Context(), c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
