package normalize

import (
	"testing"

	"github.com/gotd/td/tg"
	"github.com/stretchr/testify/assert"

	"github.com/blockedby/telememo/internal/models"
)

func document(attrs ...tg.DocumentAttributeClass) *tg.MessageMediaDocument {
	return &tg.MessageMediaDocument{Document: &tg.Document{Attributes: attrs}}
}

func TestMediaTypeOf(t *testing.T) {
	tests := []struct {
		name  string
		media tg.MessageMediaClass
		want  models.MediaType
	}{
		{"nil", nil, models.MediaNone},
		{"empty", &tg.MessageMediaEmpty{}, models.MediaNone},
		{"photo", &tg.MessageMediaPhoto{}, models.MediaPhoto},
		{"plain document", document(&tg.DocumentAttributeFilename{FileName: "a.pdf"}), models.MediaDocument},
		{"document without body", &tg.MessageMediaDocument{}, models.MediaDocument},
		{"video", document(&tg.DocumentAttributeVideo{}), models.MediaVideo},
		{"round video", document(&tg.DocumentAttributeVideo{RoundMessage: true}), models.MediaRoundVideo},
		{"gif", document(&tg.DocumentAttributeVideo{}, &tg.DocumentAttributeAnimated{}), models.MediaAnimation},
		{"audio", document(&tg.DocumentAttributeAudio{}), models.MediaAudio},
		{"voice", document(&tg.DocumentAttributeAudio{Voice: true}), models.MediaVoice},
		{"sticker", document(&tg.DocumentAttributeImageSize{}, &tg.DocumentAttributeSticker{}), models.MediaSticker},
		{"webpage", &tg.MessageMediaWebPage{}, models.MediaWebPage},
		{"geo", &tg.MessageMediaGeo{}, models.MediaGeo},
		{"geo live", &tg.MessageMediaGeoLive{}, models.MediaGeo},
		{"venue", &tg.MessageMediaVenue{}, models.MediaVenue},
		{"contact", &tg.MessageMediaContact{}, models.MediaContact},
		{"poll", &tg.MessageMediaPoll{}, models.MediaPoll},
		{"dice", &tg.MessageMediaDice{}, models.MediaDice},
		{"unsupported", &tg.MessageMediaUnsupported{}, models.MediaOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MediaTypeOf(tt.media))
		})
	}
}
