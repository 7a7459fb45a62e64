package api

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"camrig/config"
	"camrig/database"
	"camrig/monitoring"
	"camrig/recording"
	"camrig/session"
)

// Server exposes a read-only status API for the rig: the current session,
// the session/chunk registry, and basic health. It never mutates recording
// state; stopping a session is the job of the process signal path.
type Server struct {
	config   config.Config
	db       database.Database
	sess     *session.Session
	recorder *recording.ContinuousRecorder
}

// NewServer creates the status API server.
func NewServer(cfg config.Config, db database.Database, sess *session.Session, recorder *recording.ContinuousRecorder) *Server {
	return &Server{
		config:   cfg,
		db:       db,
		sess:     sess,
		recorder: recorder,
	}
}

// Start runs the HTTP server until ctx is cancelled, then shuts it down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	gin.SetMode(gin.ReleaseMode)
	r := gin.Default()
	s.setupRoutes(r)

	addr := ":" + s.config.Server.Port
	srv := &http.Server{Addr: addr, Handler: r}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[API] Status server listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) setupRoutes(r *gin.Engine) {
	api := r.Group("/api")
	{
		api.GET("/status", s.getStatus)
		api.GET("/sessions", s.listSessions)
		api.GET("/sessions/:id", s.getSession)
		api.GET("/sessions/:id/chunks", s.listChunks)
		api.GET("/health", s.getHealth)
	}
}

// getStatus reports the live session.
func (s *Server) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"session":      s.sess.Key(),
		"subject":      s.sess.Subject,
		"date":         s.sess.Date,
		"session_id":   s.sess.ID,
		"device_id":    s.sess.DeviceID,
		"total_frames": s.recorder.TotalFrames(),
	})
}

func (s *Server) listSessions(c *gin.Context) {
	sessions, err := s.db.ListSessions(100, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (s *Server) getSession(c *gin.Context) {
	rec, err := s.db.GetSession(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) listChunks(c *gin.Context) {
	chunks, err := s.db.GetChunksBySession(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"chunks": chunks})
}

// getHealth reports liveness plus the free space on the save root, the
// resource an unattended rig runs out of first.
func (s *Server) getHealth(c *gin.Context) {
	resp := gin.H{"status": "ok"}
	if free, err := monitoring.DiskFreeBytes(s.config.Paths.VideoSavePath); err == nil {
		resp["disk_free_bytes"] = free
	} else {
		resp["disk_error"] = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}
