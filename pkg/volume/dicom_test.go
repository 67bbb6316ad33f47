package volume

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/frame"
	"github.com/suyashkumar/dicom/pkg/tag"
	"github.com/suyashkumar/dicom/pkg/uid"

	"scanmesh/internal/models"
)

func mustElement(t *testing.T, tg tag.Tag, value interface{}) *dicom.Element {
	t.Helper()
	e, err := dicom.NewElement(tg, value)
	if err != nil {
		t.Fatalf("Failed to build element %v: %v", tg, err)
	}
	return e
}

// writeDICOM saves a 2x2 16-bit slice whose pixels are raw, raw+1, raw+2
// and raw+3 in row-major order.
func writeDICOM(t *testing.T, path string, raw int, extra ...*dicom.Element) {
	t.Helper()
	elements := []*dicom.Element{
		mustElement(t, tag.MediaStorageSOPClassUID, []string{"1.2.840.10008.5.1.4.1.1.2"}),
		mustElement(t, tag.MediaStorageSOPInstanceUID, []string{fmt.Sprintf("1.2.3.4.%d", raw)}),
		mustElement(t, tag.TransferSyntaxUID, []string{uid.ImplicitVRLittleEndian}),
		mustElement(t, tag.Rows, []int{2}),
		mustElement(t, tag.Columns, []int{2}),
		mustElement(t, tag.BitsAllocated, []int{16}),
		mustElement(t, tag.NumberOfFrames, []string{"1"}),
		mustElement(t, tag.SamplesPerPixel, []int{1}),
	}
	elements = append(elements, extra...)
	elements = append(elements, mustElement(t, tag.PixelData, dicom.PixelDataInfo{
		Frames: []*frame.Frame{{
			NativeData: frame.NativeFrame{
				BitsPerSample: 16,
				Rows:          2,
				Cols:          2,
				Data:          [][]int{{raw}, {raw + 1}, {raw + 2}, {raw + 3}},
			},
		}},
	}))
	sort.Slice(elements, func(i, j int) bool {
		a, b := elements[i].Tag, elements[j].Tag
		return a.Group < b.Group || (a.Group == b.Group && a.Element < b.Element)
	})

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create %s: %v", path, err)
	}
	defer f.Close()
	if err := dicom.Write(f, dicom.Dataset{Elements: elements}); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}

func TestLoadDICOMFilesCalibrated(t *testing.T) {
	dir := t.TempDir()
	for i, pos := range []float64{30, 10, 20} {
		name := filepath.Join(dir, fmt.Sprintf("%03d.dcm", i+1))
		writeDICOM(t, name, 100+int(pos)/10,
			mustElement(t, tag.ImagePositionPatient, []string{"0", "0", fmt.Sprint(pos)}),
			mustElement(t, tag.SliceThickness, []string{"2.5"}),
			mustElement(t, tag.PixelSpacing, []string{"0.7", "0.8"}),
			mustElement(t, tag.RescaleSlope, []string{"2"}),
			mustElement(t, tag.RescaleIntercept, []string{"-1024"}),
		)
	}

	vol, err := Load(dir, testOptions())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if vol.Width != 2 || vol.Height != 2 || vol.Depth != 3 {
		t.Fatalf("Expected a 2x2x3 volume, got %dx%dx%d", vol.Width, vol.Height, vol.Depth)
	}

	want := models.Spacing{Z: 2.5, Y: 0.7, X: 0.8}
	if vol.Spacing != want {
		t.Errorf("Expected spacing %+v, got %+v", want, vol.Spacing)
	}

	// planes follow patient position, not filename
	for z := 0; z < 3; z++ {
		raw := float64(101 + z)
		if got, want := vol.At(0, 0, z), raw*2-1024; got != want {
			t.Errorf("Plane %d: expected %g at (0,0), got %g", z, want, got)
		}
		if got, want := vol.At(1, 0, z), (raw+1)*2-1024; got != want {
			t.Errorf("Plane %d: expected %g at (1,0), got %g", z, want, got)
		}
		if got, want := vol.At(0, 1, z), (raw+2)*2-1024; got != want {
			t.Errorf("Plane %d: expected %g at (0,1), got %g", z, want, got)
		}
	}
}

func TestLoadDICOMFilesSliceLocation(t *testing.T) {
	dir := t.TempDir()
	writeDICOM(t, filepath.Join(dir, "a.dcm"), 7, mustElement(t, tag.SliceLocation, []string{"5"}))
	writeDICOM(t, filepath.Join(dir, "b.dcm"), 3, mustElement(t, tag.SliceLocation, []string{"-5"}))

	vol, err := LoadDICOMSeries(dir, testOptions())
	if err != nil {
		t.Fatalf("LoadDICOMSeries failed: %v", err)
	}
	if vol.Depth != 2 {
		t.Fatalf("Expected 2 slices, got %d", vol.Depth)
	}
	if vol.At(0, 0, 0) != 3 || vol.At(0, 0, 1) != 7 {
		t.Errorf("Expected uncalibrated values 3 then 7, got %g then %g", vol.At(0, 0, 0), vol.At(0, 0, 1))
	}
	if vol.Spacing != models.Isotropic() {
		t.Errorf("Expected default spacing without spacing tags, got %+v", vol.Spacing)
	}
}
