package images

import (
	"log/slog"

	exif "github.com/dsoprea/go-exif/v3"

	"zapscraper/internal/model"
)

// Inspector extracts EXIF metadata from downloaded images. Only JPEG
// and TIFF carry EXIF; other formats simply yield no findings.
type Inspector struct {
	logger *slog.Logger
}

// NewInspector creates an EXIF inspector.
func NewInspector(logger *slog.Logger) *Inspector {
	return &Inspector{logger: logger}
}

// Inspect scans image bytes for EXIF tags worth reporting. Images
// without EXIF data return no findings and no error.
func (i *Inspector) Inspect(data []byte, imageURL, listingURL string) []model.Finding {
	rawExif, err := exif.SearchAndExtractExif(data)
	if err != nil || rawExif == nil {
		return nil
	}

	entries, _, err := exif.GetFlatExifData(rawExif, nil)
	if err != nil {
		i.logger.Debug("failed to parse exif data", "image", imageURL, "error", err)
		return nil
	}

	var findings []model.Finding
	for _, entry := range entries {
		findingType, title, ok := classifyTag(entry.TagName)
		if !ok {
			continue
		}
		findings = append(findings, model.Finding{
			Type:     findingType,
			Title:    title,
			Value:    entry.TagName + ": " + entry.Formatted,
			Location: listingURL + " -> " + imageURL,
		})
	}
	return findings
}

// classifyTag maps an EXIF tag name to a finding type. Tags that carry
// no privacy signal are skipped.
func classifyTag(tagName string) (findingType, title string, ok bool) {
	switch tagName {
	case "GPSLatitude", "GPSLongitude", "GPSLatitudeRef", "GPSLongitudeRef":
		return "exif_gps", "GPS coordinates in listing photo", true
	case "Make", "Model":
		return "exif_camera", "Camera information in listing photo", true
	case "SerialNumber", "CameraSerialNumber", "BodySerialNumber", "LensSerialNumber":
		return "exif_serial", "Device serial number in listing photo", true
	case "Software", "ProcessingSoftware":
		return "exif_software", "Software information in listing photo", true
	case "Artist", "Author", "Copyright", "XPAuthor":
		return "exif_author", "Author information in listing photo", true
	case "DateTimeOriginal", "DateTimeDigitized", "DateTime":
		return "exif_datetime", "Timestamp in listing photo", true
	default:
		return "", "", false
	}
}
