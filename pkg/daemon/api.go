package daemon

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/makerspace/doorctl/pkg/config"
	"github.com/makerspace/doorctl/pkg/controller"
	"github.com/makerspace/doorctl/pkg/events"
	"github.com/makerspace/doorctl/pkg/types"
	"github.com/makerspace/doorctl/pkg/version"
)

const eventKeepAlive = 30 * time.Second

// doorController is what the API needs from *controller.Controller.
type doorController interface {
	Snapshot() controller.Snapshot
	Submit(a types.Action) error
}

// ActionRequest is the body of POST /action.
type ActionRequest struct {
	Action string `json:"action"`
}

type server struct {
	ctrl doorController
	conf *config.File
	hub  *events.EventHub
}

func newServer(ctrl doorController, conf *config.File, hub *events.EventHub) *server {
	return &server{ctrl: ctrl, conf: conf, hub: hub}
}

func (s *server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logrus.StandardLogger()))
	router.GET("/status", s.getStatus)
	router.GET("/config", s.getConfig)
	router.POST("/action", s.postAction)
	router.GET("/events", s.getEvents)
	router.GET("/version", getVersion)

	return router
}

func (s *server) getStatus(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, s.ctrl.Snapshot())
}

func (s *server) getConfig(c *gin.Context) {
	raw := s.conf.Raw()
	// Never hand secrets to local clients.
	raw.AuthorityToken = nil
	raw.SlackToken = nil
	raw.GatewayToken = nil
	raw.MQTTPassword = nil
	c.IndentedJSON(http.StatusOK, raw)
}

func (s *server) postAction(c *gin.Context) {
	var req ActionRequest
	if err := c.BindJSON(&req); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	action, err := types.ParseAction(req.Action)
	if err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	if err := s.ctrl.Submit(action); err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, controller.ErrBusy) {
			code = http.StatusServiceUnavailable
		}
		c.IndentedJSON(code, err.Error())
		_ = c.AbortWithError(code, err)
		return
	}

	logrus.WithField("action", action).Info("local action submitted")
	c.IndentedJSON(http.StatusAccepted, "queued "+string(action))
}

func (s *server) getEvents(c *gin.Context) {
	// GET /events?name=controller.card limits the stream to card swipes.
	ch := s.hub.Subscribe(c.QueryArray("name")...)
	defer s.hub.Unsubscribe(ch)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	// Clients wait for the headers before they start reading.
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	keepAlive := time.NewTicker(eventKeepAlive)
	defer keepAlive.Stop()

	c.Stream(func(_ io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case <-keepAlive.C:
			c.SSEvent("ping", "")
			return true
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(ev.Name, ev.Data)
			return true
		}
	})
}

func getVersion(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, version.Version)
}
