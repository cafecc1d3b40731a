package comic

import (
	"encoding/xml"
	"fmt"
)

// ComicInfoFilename is the metadata document's name inside the archive.
const ComicInfoFilename = "ComicInfo.xml"

// ComicInfo is the metadata document embedded at the top level of every
// produced archive, in the shape library servers index.
type ComicInfo struct {
	XMLName xml.Name `xml:"ComicInfo"`
	Title   string   `xml:"Title"`
	Writer  string   `xml:"Writer"`
	Year    int      `xml:"Year"`
	Month   int      `xml:"Month"`
	Day     int      `xml:"Day"`
	Tags    string   `xml:"Tags"`
}

// NewComicInfo maps a GalleryInfo onto the archive metadata document.
func NewComicInfo(info GalleryInfo) ComicInfo {
	return ComicInfo{
		Title:  info.Title,
		Writer: info.Author,
		Year:   info.Downloaded.Year(),
		Month:  int(info.Downloaded.Month()),
		Day:    info.Downloaded.Day(),
		Tags:   info.Tags,
	}
}

// Marshal renders the document with the standard XML header.
func (ci ComicInfo) Marshal() ([]byte, error) {
	body, err := xml.MarshalIndent(ci, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ComicInfo: %w", err)
	}
	return append([]byte(xml.Header), append(body, '\n')...), nil
}
