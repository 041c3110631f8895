package codec

import "LinkFM/model"

// ToModel converts decoded handle metadata into the shared track shape.
func (i *TrackInfo) ToModel() *model.TrackInfo {
	return &model.TrackInfo{
		Identifier: i.Identifier,
		IsSeekable: !i.IsStream,
		Author:     i.Author,
		Length:     i.Length,
		IsStream:   i.IsStream,
		Title:      i.Title,
		URI:        i.URI,
		ArtworkURL: i.ArtworkURL,
		ISRC:       i.ISRC,
		SourceName: i.SourceName,
		ProbeInfo:  i.ProbeInfo,
	}
}
