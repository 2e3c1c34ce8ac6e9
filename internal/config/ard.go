// Package config loads and validates the per-run ARD processing parameters.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ProductType selects the radiometric calibration recipe.
type ProductType string

const (
	// ProductRTC calibrates to beta nought and requires a terrain
	// flattening pass before geocoding.
	ProductRTC ProductType = "RTC"

	// ProductGTCGamma calibrates to ellipsoid-based gamma nought.
	ProductGTCGamma ProductType = "GTCgamma"

	// ProductGTCSigma calibrates to sigma nought.
	ProductGTCSigma ProductType = "GTCsigma"
)

// Valid reports whether p is one of the supported product types.
func (p ProductType) Valid() bool {
	switch p {
	case ProductRTC, ProductGTCGamma, ProductGTCSigma:
		return true
	}
	return false
}

// DEM describes the digital elevation model used by every geocoding stage.
// The field names mirror the processing-parameters file.
type DEM struct {
	Name                  string  `json:"dem name"`
	File                  string  `json:"dem file"`
	NoData                float64 `json:"dem nodata"`
	ResamplingMethod      string  `json:"dem resampling"`
	ImageResamplingMethod string  `json:"image resampling"`
}

// ARD is the immutable single-ARD section of the processing-parameters file,
// loaded once per run.
type ARD struct {
	Polarisation     string      `json:"polarisation"`
	HAAlpha          bool        `json:"H-A-Alpha"`
	RemovePolSpeckle bool        `json:"remove pol speckle"`
	RemoveSpeckle    bool        `json:"remove speckle"`
	ProductType      ProductType `json:"product type"`
	ToDB             bool        `json:"to db"`
	CreateLSMask     bool        `json:"create ls mask"`
	Resolution       float64     `json:"resolution"`
	DEM              *DEM        `json:"dem"`
	CoherenceBands   string      `json:"coherence bands"`
}

// Error describes an unreadable, malformed or incomplete
// processing-parameters file.
type Error struct {
	Path   string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("processing parameters %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("processing parameters %s: %s", e.Path, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// procFile mirrors the on-disk document layout: the single-ARD parameters sit
// under "processing parameters" -> "single ARD".
type procFile struct {
	ProcessingParameters struct {
		SingleARD *ARD `json:"single ARD"`
	} `json:"processing parameters"`
}

const maxFileSize = 1 * 1024 * 1024

// Load reads the processing-parameters file at path, extracts the single-ARD
// section and validates it. It has no side effects beyond the read.
func Load(path string) (*ARD, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, &Error{Path: path, Reason: fmt.Sprintf("must have .json extension, got %q", ext)}
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, &Error{Path: path, Reason: "unreadable", Err: err}
	}
	if fileInfo.Size() > maxFileSize {
		return nil, &Error{Path: path, Reason: fmt.Sprintf("too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)}
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, &Error{Path: path, Reason: "unreadable", Err: err}
	}

	var doc procFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &Error{Path: path, Reason: "malformed JSON", Err: err}
	}

	ard := doc.ProcessingParameters.SingleARD
	if ard == nil {
		return nil, &Error{Path: path, Reason: `missing "processing parameters" / "single ARD" section`}
	}

	if err := ard.Validate(); err != nil {
		return nil, &Error{Path: path, Reason: "invalid", Err: err}
	}

	return ard, nil
}

var knownChannels = map[string]bool{"VV": true, "VH": true, "HH": true, "HV": true}

// Validate checks the structural invariants of the single-ARD section.
// Coherence bands are only needed when a run requests coherence, so they are
// checked separately by ValidateCoherenceBands.
func (a *ARD) Validate() error {
	pols := a.Polarisations()
	if len(pols) == 0 {
		return fmt.Errorf("polarisation must list at least one channel")
	}
	for _, p := range pols {
		if !knownChannels[p] {
			return fmt.Errorf("unknown polarisation channel %q", p)
		}
	}

	if !a.ProductType.Valid() {
		return fmt.Errorf("product type must be one of RTC, GTCgamma, GTCsigma, got %q", a.ProductType)
	}

	if a.Resolution <= 0 {
		return fmt.Errorf("resolution must be positive, got %v", a.Resolution)
	}

	// Terrain correction always runs, so the DEM descriptor is always required.
	if a.DEM == nil {
		return fmt.Errorf("dem descriptor is required")
	}
	if a.DEM.Name == "" && a.DEM.File == "" {
		return fmt.Errorf("dem descriptor needs a dem name or external dem file")
	}
	if a.DEM.ResamplingMethod == "" {
		return fmt.Errorf("dem resampling method is required")
	}
	if a.DEM.ImageResamplingMethod == "" {
		return fmt.Errorf("image resampling method is required")
	}

	return nil
}

// ValidateCoherenceBands confirms the coherence band pairs are present and
// well formed. Callers invoke it only when a run requests coherence.
func (a *ARD) ValidateCoherenceBands() error {
	bands := splitList(a.CoherenceBands)
	if len(bands) == 0 {
		return fmt.Errorf("coherence requested but no coherence bands configured")
	}
	for _, b := range bands {
		if !knownChannels[b] {
			return fmt.Errorf("unknown coherence band %q", b)
		}
	}
	return nil
}

// Polarisations returns the configured polarisation channels as a list.
func (a *ARD) Polarisations() []string {
	return splitList(a.Polarisation)
}

// PolarisationArg renders the polarisation list in the engine's comma-joined
// argument form, with any stray whitespace removed.
func (a *ARD) PolarisationArg() string {
	return strings.Join(splitList(a.Polarisation), ",")
}

// CoherenceBandsArg renders the coherence band list for the engine.
func (a *ARD) CoherenceBandsArg() string {
	return strings.Join(splitList(a.CoherenceBands), ",")
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
