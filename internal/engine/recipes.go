package engine

import (
	"path/filepath"
	"strconv"

	"github.com/banshee-data/sar-ard/internal/config"
)

// Graph file names of the burst-processing chains shipped with the engine.
const (
	graphBurstSplit    = "S1_SLC_BurstSplit_AO.xml"
	graphHAAlpha       = "S1_SLC_Deb_Halpha.xml"
	graphHAAlphaSpk    = "S1_SLC_Deb_Spk_Halpha.xml"
	graphCalBeta       = "S1_SLC_TNR_Calbeta_Deb.xml"
	graphCalGamma      = "S1_SLC_TNR_CalGamma_Deb.xml"
	graphCalSigma      = "S1_SLC_TNR_CalSigma_Deb.xml"
	graphLayoverShadow = "S1_SLC_LS_TC.xml"
	graphCoregister    = "S1_SLC_Coreg.xml"
	graphCoherence     = "S1_SLC_Coh_Deb.xml"
)

// Recipes builds the per-stage engine invocations: the mechanical translation
// from processing parameters to graph/operator argument sets, with no
// decision logic of its own.
type Recipes struct {
	// GraphDir holds the engine's processing-graph XML files.
	GraphDir string
}

func (r Recipes) graph(name string) string {
	return filepath.Join(r.GraphDir, name)
}

func demParams(dem *config.DEM) []Param {
	return []Param{
		{"demName", dem.Name},
		{"externalDEMFile", dem.File},
		{"externalDEMNoDataValue", formatFloat(dem.NoData)},
		{"demResamplingMethod", dem.ResamplingMethod},
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Import extracts one burst from an original scene, updating orbit
// information on the way in.
func (r Recipes) Import(scene, outPrefix, logPath, swath string, burstIndex int, polarisation string) Invocation {
	return Invocation{
		Stage: "import",
		Graph: r.graph(graphBurstSplit),
		Params: []Param{
			{"input", scene},
			{"polar", polarisation},
			{"swath", swath},
			{"burst", strconv.Itoa(burstIndex)},
			{"output", outPrefix},
		},
		LogPath: logPath,
	}
}

// HAAlpha computes the H-A-alpha polarimetric decomposition, optionally with
// a polarimetric speckle filter in the chain.
func (r Recipes) HAAlpha(in, outPrefix, logPath string, polSpeckleFilter bool) Invocation {
	graph := graphHAAlpha
	if polSpeckleFilter {
		graph = graphHAAlphaSpk
	}
	return Invocation{
		Stage: "haa",
		Graph: r.graph(graph),
		Params: []Param{
			{"input", in},
			{"output", outPrefix},
		},
		LogPath: logPath,
	}
}

// Calibration removes thermal noise, calibrates and debursts. The product
// type selects among three calibration chains; RTC calibrates to beta nought
// and relies on a later terrain-flattening pass.
func (r Recipes) Calibration(in, outPrefix, logPath string, productType config.ProductType) Invocation {
	var graph string
	switch productType {
	case config.ProductRTC:
		graph = graphCalBeta
	case config.ProductGTCGamma:
		graph = graphCalGamma
	default:
		graph = graphCalSigma
	}
	return Invocation{
		Stage: "cal",
		Graph: r.graph(graph),
		Params: []Param{
			{"input", in},
			{"output", outPrefix},
		},
		LogPath: logPath,
	}
}

// TerrainFlattening corrects radiometric distortion along slopes.
func (r Recipes) TerrainFlattening(in, outPrefix, logPath string, dem *config.DEM) Invocation {
	params := []Param{
		{"additionalOverlap", "0.15"},
		{"oversamplingMultiple", "1.5"},
	}
	params = append(params, demParams(dem)...)
	return Invocation{
		Stage:    "rtc",
		Operator: "Terrain-Flattening",
		Params:   params,
		Target:   outPrefix,
		Sources:  []string{in},
		LogPath:  logPath,
	}
}

// SpeckleFilter applies the engine's default Lee-Sigma speckle filter.
func (r Recipes) SpeckleFilter(in, outPrefix, logPath string) Invocation {
	return Invocation{
		Stage:    "speckle",
		Operator: "Speckle-Filter",
		Params:   []Param{{"estimateENL", "true"}},
		Target:   outPrefix,
		Sources:  []string{in},
		LogPath:  logPath,
	}
}

// LinearToDB converts backscatter to dB scale.
func (r Recipes) LinearToDB(in, outPrefix, logPath string) Invocation {
	return Invocation{
		Stage:    "db",
		Operator: "LinearToFromdB",
		Target:   outPrefix,
		Sources:  []string{in},
		LogPath:  logPath,
	}
}

// LayoverShadowMask computes the terrain-induced distortion mask, geocoded to
// the output grid.
func (r Recipes) LayoverShadowMask(in, outPrefix, logPath string, resolution float64, dem *config.DEM) Invocation {
	return Invocation{
		Stage: "ls",
		Graph: r.graph(graphLayoverShadow),
		Params: []Param{
			{"input", in},
			{"resol", formatFloat(resolution)},
			{"dem", dem.Name},
			{"dem_file", dem.File},
			{"dem_nodata", formatFloat(dem.NoData)},
			{"dem_resampling", dem.ResamplingMethod},
			{"image_resampling", dem.ImageResamplingMethod},
			{"output", outPrefix},
		},
		LogPath: logPath,
	}
}

// Coregister back-geocodes a master/slave pair onto a common grid. Sufficient
// for coherence estimation; no ESD refinement.
func (r Recipes) Coregister(master, slave, outPrefix, logPath string, dem *config.DEM) Invocation {
	return Invocation{
		Stage: "coreg",
		Graph: r.graph(graphCoregister),
		Params: []Param{
			{"master", master},
			{"slave", slave},
			{"dem", dem.Name},
			{"dem_file", dem.File},
			{"dem_nodata", formatFloat(dem.NoData)},
			{"dem_resampling", dem.ResamplingMethod},
			{"output", outPrefix},
		},
		LogPath: logPath,
	}
}

// Coherence estimates interferometric coherence over the configured band
// pairs and debursts the result.
func (r Recipes) Coherence(in, outPrefix, logPath, bands string) Invocation {
	return Invocation{
		Stage: "coh",
		Graph: r.graph(graphCoherence),
		Params: []Param{
			{"input", in},
			{"polar", bands},
			{"output", outPrefix},
		},
		LogPath: logPath,
	}
}

// TerrainCorrection geocodes a radar-geometry product onto the output map
// grid.
func (r Recipes) TerrainCorrection(in, outPrefix, logPath string, resolution float64, dem *config.DEM) Invocation {
	params := demParams(dem)
	params = append(params,
		Param{"imgResamplingMethod", dem.ImageResamplingMethod},
		Param{"nodataValueAtSea", "false"},
		Param{"pixelSpacingInMeter", formatFloat(resolution)},
	)
	return Invocation{
		Stage:    "tc",
		Operator: "Terrain-Correction",
		Params:   params,
		Target:   outPrefix,
		Sources:  []string{in},
		LogPath:  logPath,
	}
}
