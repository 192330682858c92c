package normalize

import (
	"github.com/gotd/td/tg"

	"github.com/blockedby/telememo/internal/models"
)

// MediaTypeOf classifies a message attachment. A nil attachment is MediaNone.
func MediaTypeOf(media tg.MessageMediaClass) models.MediaType {
	switch m := media.(type) {
	case nil, *tg.MessageMediaEmpty:
		return models.MediaNone
	case *tg.MessageMediaPhoto:
		return models.MediaPhoto
	case *tg.MessageMediaDocument:
		doc, ok := m.Document.(*tg.Document)
		if !ok {
			return models.MediaDocument
		}
		return documentType(doc)
	case *tg.MessageMediaWebPage:
		return models.MediaWebPage
	case *tg.MessageMediaGeo, *tg.MessageMediaGeoLive:
		return models.MediaGeo
	case *tg.MessageMediaVenue:
		return models.MediaVenue
	case *tg.MessageMediaContact:
		return models.MediaContact
	case *tg.MessageMediaPoll:
		return models.MediaPoll
	case *tg.MessageMediaDice:
		return models.MediaDice
	default:
		return models.MediaOther
	}
}

// documentType looks at document attributes. A GIF carries both the animated
// and the video attribute, a sticker may carry an image size attribute too.
func documentType(doc *tg.Document) models.MediaType {
	var animated, video, round, audio, voice bool

	for _, attr := range doc.Attributes {
		switch a := attr.(type) {
		case *tg.DocumentAttributeSticker:
			return models.MediaSticker
		case *tg.DocumentAttributeAnimated:
			animated = true
		case *tg.DocumentAttributeVideo:
			video = true
			round = a.RoundMessage
		case *tg.DocumentAttributeAudio:
			audio = true
			voice = a.Voice
		}
	}

	switch {
	case animated:
		return models.MediaAnimation
	case round:
		return models.MediaRoundVideo
	case video:
		return models.MediaVideo
	case voice:
		return models.MediaVoice
	case audio:
		return models.MediaAudio
	default:
		return models.MediaDocument
	}
}
