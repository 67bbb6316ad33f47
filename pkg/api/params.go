package api

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"scanmesh/pkg/export"
	"scanmesh/pkg/reconstruction"
	"scanmesh/pkg/segmentation"
)

// conversionRequest holds the optional tuning parameters shared by both
// convert endpoints. Nil means "use the configured default".
type conversionRequest struct {
	Threshold *float64 `json:"threshold"`
	Simplify  *float64 `json:"simplify"`
	Smooth    *int     `json:"smooth"`
	Format    string   `json:"format"`
	Step      *int     `json:"step"`
}

// imageRequest is the JSON body of /api/convert.
type imageRequest struct {
	conversionRequest
	ImageBase64 string `json:"image_base64"`
	Filename    string `json:"filename"`
}

// folderRequest is the JSON body of /api/convert-dicom-folder.
type folderRequest struct {
	conversionRequest
	FolderPath string `json:"folder_path"`
}

// fromQuery fills unset fields from query string or form values.
func (r *conversionRequest) fromQuery(c *gin.Context) error {
	value := func(key string) string {
		if v := c.Query(key); v != "" {
			return v
		}
		return c.PostForm(key)
	}

	if v := value("threshold"); v != "" && r.Threshold == nil {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return errors.Errorf("invalid threshold %q", v)
		}
		r.Threshold = &f
	}
	if v := value("simplify"); v != "" && r.Simplify == nil {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return errors.Errorf("invalid simplify %q", v)
		}
		r.Simplify = &f
	}
	if v := value("smooth"); v != "" && r.Smooth == nil {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Errorf("invalid smooth %q", v)
		}
		r.Smooth = &n
	}
	if v := value("step"); v != "" && r.Step == nil {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Errorf("invalid step %q", v)
		}
		r.Step = &n
	}
	if r.Format == "" {
		r.Format = value("format")
	}
	return nil
}

// apply validates the request and overrides p with the values it sets.
func (r *conversionRequest) apply(p *reconstruction.Params) error {
	if r.Threshold != nil {
		p.Segmentation.Method = segmentation.MethodThreshold
		p.Segmentation.Cutoff = r.Threshold
	} else if p.Segmentation.Method == segmentation.MethodThreshold {
		p.Segmentation.Method = segmentation.MethodOtsu
	}
	if r.Simplify != nil {
		if *r.Simplify < 0 || *r.Simplify >= 1 {
			return errors.Errorf("simplify must be in [0,1), got %g", *r.Simplify)
		}
		p.Simplify = *r.Simplify
	}
	if r.Smooth != nil {
		if *r.Smooth < 0 {
			return errors.Errorf("smooth must not be negative, got %d", *r.Smooth)
		}
		p.SmoothIterations = *r.Smooth
	}
	if r.Step != nil {
		if *r.Step < 1 {
			return errors.Errorf("step must be at least 1, got %d", *r.Step)
		}
		p.Surface.Step = *r.Step
	}
	if r.Format != "" {
		p.Format = strings.ToLower(r.Format)
	}
	if _, err := export.Extension(p.Format); err != nil {
		return err
	}
	return nil
}
