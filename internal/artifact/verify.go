package artifact

import (
	"encoding/binary"
	"math"
	"path/filepath"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/sar-ard/internal/monitoring"
)

// maxStatSamples caps how many raster values Verify decodes per band. The
// check only needs to prove the band holds usable data, not scan all of it.
const maxStatSamples = 1 << 16

// Verify confirms the artifact pair is complete. With requireStatistics it
// additionally decodes a sample of the first raster band and requires finite
// summary statistics, a cheap way to catch engine runs that exited cleanly
// but wrote an empty or corrupt product. Masks are verified without
// statistics since a legitimately sparse mask can be almost entirely zero.
func (s *Store) Verify(h Handle, requireStatistics bool) error {
	info, err := s.FS.Stat(h.Metadata())
	if err != nil {
		return &IntegrityError{Handle: h, Reason: "metadata file missing"}
	}
	if info.Size() == 0 {
		return &IntegrityError{Handle: h, Reason: "metadata file empty"}
	}

	entries, err := s.FS.ReadDir(h.Payload())
	if err != nil {
		return &IntegrityError{Handle: h, Reason: "payload directory missing"}
	}
	if len(entries) == 0 {
		return &IntegrityError{Handle: h, Reason: "payload directory empty"}
	}

	if !requireStatistics {
		return nil
	}

	var band string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".img") {
			band = filepath.Join(h.Payload(), entry.Name())
			break
		}
	}
	if band == "" {
		return &IntegrityError{Handle: h, Reason: "payload holds no raster bands"}
	}

	samples, err := s.readSamples(band)
	if err != nil {
		return &IntegrityError{Handle: h, Reason: "unreadable raster band: " + err.Error()}
	}
	if len(samples) == 0 {
		return &IntegrityError{Handle: h, Reason: "raster band holds no finite samples"}
	}

	mean, std := stat.MeanStdDev(samples, nil)
	if math.IsNaN(mean) || math.IsInf(mean, 0) {
		return &IntegrityError{Handle: h, Reason: "raster statistics not computable"}
	}
	if mean == 0 && (std == 0 || math.IsNaN(std)) {
		return &IntegrityError{Handle: h, Reason: "raster band is all zero"}
	}

	monitoring.Logf("verified %s: %d samples, mean %.4g, stddev %.4g", h, len(samples), mean, std)
	return nil
}

// readSamples decodes up to maxStatSamples big-endian float32 values from a
// raster band, discarding non-finite ones.
func (s *Store) readSamples(path string) ([]float64, error) {
	data, err := s.FS.ReadFile(path)
	if err != nil {
		return nil, err
	}

	n := len(data) / 4
	if n > maxStatSamples {
		n = maxStatSamples
	}

	samples := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		v := math.Float32frombits(binary.BigEndian.Uint32(data[i*4:]))
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			continue
		}
		samples = append(samples, f)
	}
	return samples, nil
}
