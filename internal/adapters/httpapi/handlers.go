package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/pagebound/readingroom/internal/app"
	"github.com/pagebound/readingroom/internal/domain"
)

type Handlers struct {
	API app.RoomAPI
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

func fail(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"success": false, "error": msg})
}

func bookFrom(c *gin.Context) (domain.BookID, bool) {
	book := domain.BookID(c.Param("bookId"))
	if book == "" {
		fail(c, http.StatusBadRequest, "missing book id")
		return "", false
	}
	return book, true
}

func (h *Handlers) JoinRoom(c *gin.Context) {
	book, okBook := bookFrom(c)
	if !okBook {
		return
	}
	viewer := viewerFrom(c)

	m, err := h.API.JoinRoom(c.Request.Context(), book, *viewer)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.httpapi").Str("book", string(book)).Msg("join failed")
		fail(c, http.StatusInternalServerError, "could not join the reading room")
		return
	}
	ok(c, gin.H{"id": m.ID})
}

func (h *Handlers) LeaveRoom(c *gin.Context) {
	book, okBook := bookFrom(c)
	if !okBook {
		return
	}
	viewer := viewerFrom(c)

	receipt, err := h.API.LeaveRoom(c.Request.Context(), book, viewer.ID)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.httpapi").Str("book", string(book)).Msg("leave failed")
		fail(c, http.StatusInternalServerError, "could not leave the reading room")
		return
	}
	ok(c, gin.H{"leftAt": receipt.LeftAt})
}

func (h *Handlers) Heartbeat(c *gin.Context) {
	book, okBook := bookFrom(c)
	if !okBook {
		return
	}
	viewer := viewerFrom(c)

	updated, err := h.API.Heartbeat(c.Request.Context(), book, viewer.ID)
	if err != nil {
		fail(c, http.StatusInternalServerError, "heartbeat failed")
		return
	}
	ok(c, gin.H{"updated": updated})
}

func (h *Handlers) Members(c *gin.Context) {
	book, okBook := bookFrom(c)
	if !okBook {
		return
	}
	members, err := h.API.Members(c.Request.Context(), book)
	if err != nil {
		fail(c, http.StatusInternalServerError, "could not list members")
		return
	}
	ok(c, members)
}

func (h *Handlers) AuthorPresence(c *gin.Context) {
	book, okBook := bookFrom(c)
	if !okBook {
		return
	}
	snap, err := h.API.AuthorPresence(c.Request.Context(), book)
	if err != nil {
		fail(c, http.StatusInternalServerError, "could not fetch author presence")
		return
	}
	// snap is nil when the author was never seen; the envelope carries null.
	ok(c, snap)
}
