package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/forgehost/panel/internal/apierr"
	"github.com/forgehost/panel/internal/safefs"
)

// serverFS resolves :id to its ServerRecord and returns a safefs.FS scoped
// to that server's storage directory.
func (a *API) serverFS(c *gin.Context) (*safefs.FS, bool) {
	id, ok := a.serverID(c)
	if !ok {
		return nil, false
	}
	rec, err := a.eng.Registry.Get(id)
	if err != nil {
		renderError(c, err)
		return nil, false
	}
	return safefs.New(rec.StoragePath), true
}

func (a *API) listFiles(c *gin.Context) {
	fs, ok := a.serverFS(c)
	if !ok {
		return
	}
	entries, err := fs.List(c.Query("path"))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (a *API) readFile(c *gin.Context) {
	fs, ok := a.serverFS(c)
	if !ok {
		return
	}
	data, err := fs.Read(c.Query("path"))
	if err != nil {
		renderError(c, err)
		return
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", data)
}

func (a *API) downloadFile(c *gin.Context) {
	fs, ok := a.serverFS(c)
	if !ok {
		return
	}
	f, err := fs.Download(c.Query("path"))
	if err != nil {
		renderError(c, err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		renderError(c, apierr.Wrap(err))
		return
	}
	c.Header("Content-Disposition", "attachment; filename=\""+info.Name()+"\"")
	http.ServeContent(c.Writer, c.Request, info.Name(), info.ModTime(), f)
}

type writeFileRequest struct {
	Path    string `json:"path" binding:"required"`
	Content string `json:"content"`
}

func (a *API) writeFile(c *gin.Context) {
	fs, ok := a.serverFS(c)
	if !ok {
		return
	}
	var req writeFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, apierr.New(apierr.InvalidRequest, err.Error(), nil))
		return
	}
	if err := fs.Write(req.Path, []byte(req.Content)); err != nil {
		renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) uploadFile(c *gin.Context) {
	fs, ok := a.serverFS(c)
	if !ok {
		return
	}
	path := c.Query("path")
	header, err := c.FormFile("file")
	if err != nil {
		renderError(c, apierr.New(apierr.InvalidRequest, "missing \"file\" form field", nil))
		return
	}
	src, err := header.Open()
	if err != nil {
		renderError(c, apierr.Wrap(err))
		return
	}
	defer src.Close()

	if err := fs.Upload(path, src); err != nil {
		renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type mkdirRequest struct {
	Path string `json:"path" binding:"required"`
}

func (a *API) mkdir(c *gin.Context) {
	fs, ok := a.serverFS(c)
	if !ok {
		return
	}
	var req mkdirRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, apierr.New(apierr.InvalidRequest, err.Error(), nil))
		return
	}
	if err := fs.Mkdir(req.Path); err != nil {
		renderError(c, err)
		return
	}
	c.Status(http.StatusCreated)
}

func (a *API) deleteFile(c *gin.Context) {
	fs, ok := a.serverFS(c)
	if !ok {
		return
	}
	if err := fs.Delete(c.Query("path")); err != nil {
		renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
