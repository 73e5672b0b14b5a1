package server

import (
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/classdeck/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/classdeck/backend/internal/classroom"
	"github.com/MarcoPoloResearchLab/classdeck/backend/internal/draw"
	"github.com/MarcoPoloResearchLab/classdeck/backend/internal/owners"
	"github.com/MarcoPoloResearchLab/classdeck/backend/internal/reports"
)

const sessionContextKey = "classdeck_session"

var (
	errMissingSessions      = errors.New("session manager dependency required")
	errMissingReconciler    = errors.New("reconciler dependency required")
	errMissingTeacherSecret = errors.New("teacher secret required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// SessionManager issues and validates session tokens.
type SessionManager interface {
	IssueTeacherSession(owner string) (string, int64, error)
	IssuePortalSession(role, owner, classID, studentID string) (string, int64, error)
	ValidateToken(token string) (auth.SessionClaims, error)
}

// Dependencies wires the HTTP surface to the services behind it. Draw,
// Owners and Dispatcher are optional.
type Dependencies struct {
	Sessions      SessionManager
	Reconciler    *classroom.Reconciler
	Draw          *draw.Service
	Owners        *owners.Service
	Dispatcher    *RealtimeDispatcher
	TeacherSecret string
	Logger        *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Sessions == nil {
		return nil, errMissingSessions
	}
	if deps.Reconciler == nil {
		return nil, errMissingReconciler
	}
	if strings.TrimSpace(deps.TeacherSecret) == "" {
		return nil, errMissingTeacherSecret
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	dispatcher := deps.Dispatcher
	if dispatcher == nil {
		dispatcher = NewRealtimeDispatcher()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		sessions:      deps.Sessions,
		reconciler:    deps.Reconciler,
		draw:          deps.Draw,
		owners:        deps.Owners,
		dispatcher:    dispatcher,
		teacherSecret: deps.TeacherSecret,
		logger:        logger,
	}

	router.POST("/auth/login", handler.handleTeacherLogin)
	router.POST("/auth/code", handler.handleAccessCodeLogin)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/events", handler.handleEvents)

	teacherOnly := protected.Group("/")
	teacherOnly.Use(handler.requireTeacher)
	teacherOnly.POST("/sync/classes", handler.handleSyncClasses)
	teacherOnly.POST("/classes/:classID/behaviors", handler.handleSyncBehaviors)
	teacherOnly.POST("/classes/:classID/draw", handler.handleDraw)
	teacherOnly.GET("/classes/:classID/report", handler.handleReport)

	return router, nil
}

type httpHandler struct {
	sessions      SessionManager
	reconciler    *classroom.Reconciler
	draw          *draw.Service
	owners        *owners.Service
	dispatcher    *RealtimeDispatcher
	teacherSecret string
	logger        *zap.Logger
}

type teacherLoginPayload struct {
	Owner       string `json:"owner"`
	Secret      string `json:"secret"`
	DisplayName string `json:"display_name"`
}

type tokenResponsePayload struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
	Role        string `json:"role"`
	ClassID     string `json:"class_id,omitempty"`
	StudentID   string `json:"student_id,omitempty"`
}

func (h *httpHandler) handleTeacherLogin(c *gin.Context) {
	var request teacherLoginPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Owner) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if subtle.ConstantTimeCompare([]byte(request.Secret), []byte(h.teacherSecret)) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	owner := strings.TrimSpace(request.Owner)
	token, expiresIn, err := h.sessions.IssueTeacherSession(owner)
	if err != nil {
		h.logger.Error("failed to issue teacher session", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	if h.owners != nil {
		if err := h.owners.Touch(owner, request.DisplayName); err != nil {
			h.logger.Warn("owner registry update failed", zap.String("owner", owner), zap.Error(err))
		}
	}

	c.JSON(http.StatusOK, tokenResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
		Role:        auth.RoleTeacher,
	})
}

type accessCodeLoginPayload struct {
	Owner string `json:"owner"`
	Code  string `json:"code"`
}

func (h *httpHandler) handleAccessCodeLogin(c *gin.Context) {
	var request accessCodeLoginPayload
	if err := c.ShouldBindJSON(&request); err != nil ||
		strings.TrimSpace(request.Owner) == "" || strings.TrimSpace(request.Code) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	identity, err := h.reconciler.ResolveAccessCode(c.Request.Context(), request.Owner, request.Code)
	if err != nil {
		if errors.Is(err, classroom.ErrAccessCodeNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		h.logger.Error("access code resolution failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "store_unavailable"})
		return
	}

	token, expiresIn, err := h.sessions.IssuePortalSession(
		string(identity.Role), request.Owner, identity.ClassID.String(), identity.StudentID)
	if err != nil {
		h.logger.Error("failed to issue portal session", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	c.JSON(http.StatusOK, tokenResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
		Role:        string(identity.Role),
		ClassID:     identity.ClassID.String(),
		StudentID:   identity.StudentID,
	})
}

type syncClassesPayload struct {
	Classes   []*classroom.Class       `json:"classes"`
	Behaviors []classroom.BehaviorCard `json:"behaviors"`
}

type syncClassesResponse struct {
	Classes []*classroom.Class `json:"classes"`
}

func (h *httpHandler) handleSyncClasses(c *gin.Context) {
	claims := h.sessionClaims(c)
	owner := claims.Subject

	var request syncClassesPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	reconciled, err := h.reconciler.SyncClasses(c.Request.Context(), owner, request.Classes, request.Behaviors)
	if err != nil {
		h.logger.Error("class sync failed", zap.String("owner", owner), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "sync_failed"})
		return
	}

	classIDs := make([]string, 0, len(reconciled))
	for _, class := range reconciled {
		classIDs = append(classIDs, class.ID.String())
	}
	h.dispatcher.Publish(RealtimeMessage{
		OwnerID:   owner,
		EventType: RealtimeEventClassesChanged,
		ClassIDs:  classIDs,
		Timestamp: time.Now().UTC(),
	})

	c.JSON(http.StatusOK, syncClassesResponse{Classes: reconciled})
}

type syncBehaviorsPayload struct {
	Cards []classroom.BehaviorCard `json:"cards"`
	Sweep bool                     `json:"sweep"`
}

type syncBehaviorsResponse struct {
	Cards []classroom.BehaviorCard `json:"cards"`
}

func (h *httpHandler) handleSyncBehaviors(c *gin.Context) {
	classID := c.Param("classID")

	var request syncBehaviorsPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	reconciled, err := h.reconciler.SyncBehaviorCards(c.Request.Context(), classID, request.Cards, request.Sweep)
	if err != nil {
		h.logger.Error("behavior sync failed", zap.String("class_id", classID), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "sync_failed"})
		return
	}
	c.JSON(http.StatusOK, syncBehaviorsResponse{Cards: reconciled})
}

type drawResponsePayload struct {
	Student classroom.Student `json:"student"`
}

func (h *httpHandler) handleDraw(c *gin.Context) {
	if h.draw == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "draw_unavailable"})
		return
	}

	claims := h.sessionClaims(c)
	classID := c.Param("classID")

	class, err := h.reconciler.LoadClass(c.Request.Context(), claims.Subject, classID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "class_not_found"})
		return
	}

	winner, err := h.draw.Pick(c.Request.Context(), classID, class.Students)
	if err != nil {
		if errors.Is(err, draw.ErrNoCandidates) {
			c.JSON(http.StatusConflict, gin.H{"error": "no_candidates"})
			return
		}
		h.logger.Error("draw failed", zap.String("class_id", classID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "draw_failed"})
		return
	}
	c.JSON(http.StatusOK, drawResponsePayload{Student: winner})
}

func (h *httpHandler) handleReport(c *gin.Context) {
	claims := h.sessionClaims(c)
	classID := c.Param("classID")

	class, err := h.reconciler.LoadClass(c.Request.Context(), claims.Subject, classID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "class_not_found"})
		return
	}

	workbook, err := reports.WriteClassReport(class)
	if err != nil {
		h.logger.Error("report export failed", zap.String("class_id", classID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "report_failed"})
		return
	}

	filename := strings.ReplaceAll(class.Name, "\"", "") + ".xlsx"
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		workbook)
}

type realtimeEventPayload struct {
	Source    string   `json:"source"`
	ClassIDs  []string `json:"class_ids,omitempty"`
	Timestamp int64    `json:"timestamp"`
}

func (h *httpHandler) handleEvents(c *gin.Context) {
	claims := h.sessionClaims(c)
	owner := claims.Owner
	if owner == "" {
		owner = claims.Subject
	}

	stream, cleanup := h.dispatcher.Subscribe(c.Request.Context(), owner)
	defer cleanup()

	heartbeat := time.NewTicker(25 * time.Second)
	defer heartbeat.Stop()

	c.Header("Cache-Control", "no-cache")
	c.Stream(func(w io.Writer) bool {
		select {
		case message, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(message.EventType, realtimeEventPayload{
				Source:    realtimeSourceBackend,
				ClassIDs:  message.ClassIDs,
				Timestamp: message.Timestamp.Unix(),
			})
			return true
		case <-heartbeat.C:
			c.SSEvent(realtimeEventHeartbeat, realtimeEventPayload{
				Source:    realtimeSourceBackend,
				Timestamp: time.Now().Unix(),
			})
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	claims, err := h.sessions.ValidateToken(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(sessionContextKey, claims)
	c.Next()
}

func (h *httpHandler) requireTeacher(c *gin.Context) {
	claims := h.sessionClaims(c)
	if claims.Role != auth.RoleTeacher {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	c.Next()
}

func (h *httpHandler) sessionClaims(c *gin.Context) auth.SessionClaims {
	value, exists := c.Get(sessionContextKey)
	if !exists {
		return auth.SessionClaims{}
	}
	claims, ok := value.(auth.SessionClaims)
	if !ok {
		return auth.SessionClaims{}
	}
	return claims
}
