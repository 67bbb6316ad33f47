package api

import (
	"encoding/base64"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"scanmesh/internal/errs"
	"scanmesh/pkg/export"
	"scanmesh/pkg/reconstruction"
)

const defaultUploadName = "upload.png"

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "scanmesh", "version": Version})
}

// convert accepts a multipart "image" file or a JSON body with
// image_base64 and converts the single image.
func (s *Server) convert(c *gin.Context) {
	var (
		req  imageRequest
		save func(path string) error
	)

	if strings.HasPrefix(c.ContentType(), "application/json") {
		if err := c.ShouldBindJSON(&req); err != nil {
			s.fail(c, http.StatusBadRequest, errors.Wrap(err, "invalid JSON body"))
			return
		}
		if req.ImageBase64 == "" {
			s.fail(c, http.StatusBadRequest, errors.New("no image provided"))
			return
		}
		raw := req.ImageBase64
		if strings.HasPrefix(raw, "data:") {
			if i := strings.Index(raw, ","); i >= 0 {
				raw = raw[i+1:]
			}
		}
		data, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			s.fail(c, http.StatusBadRequest, errors.Wrap(err, "invalid image_base64"))
			return
		}
		save = func(path string) error { return os.WriteFile(path, data, 0644) }
	} else {
		header, err := c.FormFile("image")
		if err != nil {
			s.fail(c, http.StatusBadRequest, errors.New("no image provided"))
			return
		}
		req.Filename = header.Filename
		save = func(path string) error { return c.SaveUploadedFile(header, path) }
	}

	if err := req.fromQuery(c); err != nil {
		s.fail(c, http.StatusBadRequest, err)
		return
	}

	uploadPath := s.uploadPath(req.Filename)
	if err := save(uploadPath); err != nil {
		s.fail(c, http.StatusInternalServerError, errs.Wrap(errs.ErrIOFailure, err, "save upload"))
		return
	}
	s.run(c, uploadPath, req.Filename, &req.conversionRequest, false)
}

// convertDICOMFolder converts a DICOM series in a directory the server can read.
func (s *Server) convertDICOMFolder(c *gin.Context) {
	if !strings.HasPrefix(c.ContentType(), "application/json") {
		s.fail(c, http.StatusBadRequest, errors.New("JSON body required"))
		return
	}
	var req folderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, errors.Wrap(err, "invalid JSON body"))
		return
	}
	if req.FolderPath == "" {
		s.fail(c, http.StatusBadRequest, errors.New("valid folder_path required"))
		return
	}
	if info, err := os.Stat(req.FolderPath); err != nil || !info.IsDir() {
		s.fail(c, http.StatusBadRequest, errors.New("valid folder_path required"))
		return
	}

	name := filepath.Base(strings.TrimRight(req.FolderPath, `/\`))
	s.run(c, req.FolderPath, name, &req.conversionRequest, true)
}

// run converts input into <base>_3d.<ext> in the output directory while
// holding the lock on that name.
func (s *Server) run(c *gin.Context, input, name string, req *conversionRequest, withSlices bool) {
	params := reconstruction.ParamsFromConfig(s.cfg, input, "")
	params.SaveIntermediaryResults = false
	if err := req.apply(params); err != nil {
		s.fail(c, http.StatusBadRequest, err)
		return
	}

	ext, _ := export.Extension(params.Format)
	outputName := baseName(name) + "_3d" + ext
	params.OutputFile = filepath.Join(s.cfg.Server.OutputDir, outputName)

	release, err := s.locker.Lock(c.Request.Context(), outputName)
	if err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}
	defer release()

	log.Infof("[API] Converting %s to %s", input, outputName)
	res, err := reconstruction.NewConverter(params).Process(c.Request.Context())
	if err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}

	stats := gin.H{
		"vertices":     res.Stats.Vertices,
		"faces":        res.Stats.Faces,
		"file_size_kb": res.FileSizeKB,
	}
	if withSlices {
		stats["slices_processed"] = res.SlicesProcessed
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"output_file":  outputName,
		"download_url": "/api/download/" + outputName,
		"statistics":   stats,
	})
}

func (s *Server) download(c *gin.Context) {
	path, ok := s.outputPath(c)
	if !ok {
		return
	}
	name := filepath.Base(path)
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.File(path)
}

func (s *Server) preview(c *gin.Context) {
	path, ok := s.outputPath(c)
	if !ok {
		return
	}
	p, err := export.ReadPreviewFile(path, export.MaxPreviewTriangles)
	if err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "vertices": p.Vertices, "faces": p.Faces})
}

// outputPath resolves the :filename parameter inside the output directory.
// It answers 400 for names that leave the directory and 404 for missing files.
func (s *Server) outputPath(c *gin.Context) (string, bool) {
	name := c.Param("filename")
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		s.fail(c, http.StatusBadRequest, errors.Errorf("invalid filename %q", name))
		return "", false
	}
	path := filepath.Join(s.cfg.Server.OutputDir, name)
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		s.fail(c, http.StatusNotFound, errors.New("file not found"))
		return "", false
	}
	return path, true
}

// uploadPath returns a collision-free location for an uploaded file,
// keeping its extension for format detection.
func (s *Server) uploadPath(filename string) string {
	if filename == "" {
		filename = defaultUploadName
	}
	id := uuid.Must(uuid.NewV4()).String()
	return filepath.Join(s.cfg.Server.UploadDir, id+"_"+filepath.Base(filename))
}

func baseName(name string) string {
	if name == "" {
		name = defaultUploadName
	}
	name = filepath.Base(name)
	return strings.TrimSuffix(name, filepath.Ext(name))
}
