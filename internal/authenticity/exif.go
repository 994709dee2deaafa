package authenticity

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/rwcarlsen/goexif/exif"

	"github.com/Lllllllleong/documentverificationflow/internal/severity"
)

// checkEXIF inspects image metadata for editing traces. JPEG and TIFF
// inputs without EXIF warn, since cameras and scanners always write it;
// other formats are out of scope for this check.
func checkEXIF(content []byte) (severity.Severity, []string) {
	meta, err := exif.Decode(bytes.NewReader(content))
	if err != nil || meta == nil {
		if isEXIFCapableRaster(content) {
			return severity.Warning, []string{"no capture metadata in image"}
		}
		return severity.NotApplicable, nil
	}

	outcome := severity.Passed
	var signals []string

	if software := tagString(meta, exif.Software); software != "" {
		lower := strings.ToLower(software)
		for _, fingerprint := range editorFingerprints {
			if strings.Contains(lower, fingerprint) {
				outcome = severity.Combine(outcome, severity.Warning)
				signals = append(signals, fmt.Sprintf("image edited with %q", software))
				break
			}
		}
	}

	modified := tagString(meta, exif.DateTime)
	original := tagString(meta, exif.DateTimeOriginal)
	if modified != "" && original != "" && modified != original {
		outcome = severity.Combine(outcome, severity.Warning)
		signals = append(signals, fmt.Sprintf("modification time %q differs from capture time %q", modified, original))
	}

	_, latErr := meta.Get(exif.GPSLatitude)
	_, lonErr := meta.Get(exif.GPSLongitude)
	if (latErr == nil) != (lonErr == nil) {
		outcome = severity.Combine(outcome, severity.Warning)
		signals = append(signals, "incomplete gps coordinates in image metadata")
	}

	return outcome, signals
}

func isEXIFCapableRaster(content []byte) bool {
	return bytes.HasPrefix(content, []byte{0xFF, 0xD8}) ||
		bytes.HasPrefix(content, []byte("II*\x00")) ||
		bytes.HasPrefix(content, []byte("MM\x00*"))
}

func tagString(meta *exif.Exif, field exif.FieldName) string {
	tag, err := meta.Get(field)
	if err != nil {
		return ""
	}
	value, err := tag.StringVal()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(value)
}
