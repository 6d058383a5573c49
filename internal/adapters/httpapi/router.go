// Package httpapi exposes the room operations over HTTP, every
// response in the {success, data|error} envelope.
package httpapi

import (
	"context"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/pagebound/readingroom/internal/adapters/ws"
	"github.com/pagebound/readingroom/internal/app"
	"github.com/pagebound/readingroom/internal/config"
	"github.com/pagebound/readingroom/internal/domain"
)

const viewerKey = "viewer"

// ViewerMiddleware resolves the opaque reader identity from the
// session, minting a guest on first contact. Author identities are
// whatever the session layer put there; this subsystem does not verify
// them.
func ViewerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := sessions.Default(c)

		id, _ := sess.Get("user_id").(string)
		name, _ := sess.Get("user_name").(string)
		avatar, _ := sess.Get("user_avatar").(string)
		isAuthor, _ := sess.Get("user_is_author").(bool)

		var viewer *domain.User
		if id == "" {
			viewer = domain.NewGuest()
			sess.Set("user_id", string(viewer.ID))
			sess.Set("user_name", viewer.Name)
			if err := sess.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.httpapi").Msg("session save")
			}
		} else {
			viewer = &domain.User{ID: domain.UserID(id), Name: name, AvatarURL: avatar, IsAuthor: isAuthor}
		}

		c.Set(viewerKey, viewer)
		c.Next()
	}
}

func viewerFrom(c *gin.Context) *domain.User {
	v, _ := c.Get(viewerKey)
	u, ok := v.(*domain.User)
	if !ok {
		return domain.NewGuest()
	}
	return u
}

func SetupRouter(ctx context.Context, cfg *config.Config, api app.RoomAPI, wsCtl *ws.Controller) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("ReadingRoomSession", store))
	r.Use(ViewerMiddleware())

	log.Info().Str("module", "adapters.httpapi").Msg("router setup")

	h := &Handlers{API: api}

	apiGroup := r.Group("/api")
	rooms := apiGroup.Group("/rooms/:bookId")
	rooms.POST("/join", h.JoinRoom)
	rooms.POST("/leave", h.LeaveRoom)
	rooms.POST("/heartbeat", h.Heartbeat)
	rooms.GET("/members", h.Members)
	rooms.GET("/author", h.AuthorPresence)

	apiGroup.GET("/ws/presence", func(c *gin.Context) {
		wsCtl.HandlePresence(ctx, c)
	})

	return r
}
