package models

import (
	"image"
)

// Slice represents a single decoded 2D scan plane with metadata
type Slice struct {
	// Image is the decoded plane for image inputs. It is nil for DICOM
	// slices, whose calibrated samples live in Pixels.
	Image image.Image

	// Pixels holds calibrated intensities in row-major order
	Pixels []float64

	// Width and Height are the in-plane dimensions in pixels
	Width, Height int

	// Index is the position of this slice in the input listing
	Index int

	// Filename is the original filename of the slice
	Filename string

	// Thickness is the physical thickness of the slice in mm
	Thickness float64

	// Position is the physical position of the slice along the scan axis
	Position float64

	// PixelSpacing is the physical row and column spacing in mm
	PixelSpacing [2]float64
}

// Spacing is the physical size of one voxel in mm along each axis
type Spacing struct {
	Z, Y, X float64
}

// Isotropic returns a spacing of 1mm along every axis
func Isotropic() Spacing {
	return Spacing{Z: 1, Y: 1, X: 1}
}

// Volume represents a 3D grid of scan intensities
type Volume struct {
	// Data is the 3D volume data as a 1D array, indexed z*Width*Height + y*Width + x
	Data []float64

	// Width is the width of the volume in voxels
	Width int

	// Height is the height of the volume in voxels
	Height int

	// Depth is the depth of the volume in voxels (the slice count)
	Depth int

	// Spacing is the physical size of each voxel in mm
	Spacing Spacing
}

// NewVolume allocates a zeroed volume
func NewVolume(width, height, depth int, spacing Spacing) *Volume {
	return &Volume{
		Data:    make([]float64, width*height*depth),
		Width:   width,
		Height:  height,
		Depth:   depth,
		Spacing: spacing,
	}
}

// Index returns the flat offset of voxel (x, y, z)
func (v *Volume) Index(x, y, z int) int {
	return z*v.Width*v.Height + y*v.Width + x
}

// At returns the intensity at voxel (x, y, z)
func (v *Volume) At(x, y, z int) float64 {
	return v.Data[v.Index(x, y, z)]
}

// Mask represents a binary occupancy grid with the same shape as its source Volume
type Mask struct {
	// Data holds 0 or 1 per voxel, indexed like Volume.Data
	Data []uint8

	Width, Height, Depth int

	// Spacing is inherited from the source volume
	Spacing Spacing
}

// NewMask allocates an empty mask shaped like vol
func NewMask(vol *Volume) *Mask {
	return &Mask{
		Data:    make([]uint8, len(vol.Data)),
		Width:   vol.Width,
		Height:  vol.Height,
		Depth:   vol.Depth,
		Spacing: vol.Spacing,
	}
}

// Clone returns a deep copy of the mask
func (m *Mask) Clone() *Mask {
	c := *m
	c.Data = make([]uint8, len(m.Data))
	copy(c.Data, m.Data)
	return &c
}

// Index returns the flat offset of voxel (x, y, z)
func (m *Mask) Index(x, y, z int) int {
	return z*m.Width*m.Height + y*m.Width + x
}

// Count returns the number of foreground voxels
func (m *Mask) Count() int {
	n := 0
	for _, v := range m.Data {
		n += int(v)
	}
	return n
}
