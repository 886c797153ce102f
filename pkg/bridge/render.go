package bridge

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tinyland-inc/telebridge/pkg/host"
	"github.com/tinyland-inc/telebridge/pkg/telegram"
)

// Fallback texts for multimedia content. The two variants are deliberately
// distinct: one means the bridge has no rendering for the type at all, the
// other means it rendered a structured part the client may not display.
const (
	notHandledText   = "Telebridge doesn't support this type of multimedia messages yet."
	notSupportedText = "The client doesn't support this type of multimedia messages."
)

// renderBody converts a raw message plus its resolved media metadata into
// the ordered body part sequence. The order is a client-facing contract:
// plain text, structured media, thumbnail, fallback text, caption.
func (c *TextChannel) renderBody(msg telegram.Message, media telegram.MediaInfo) host.PartList {
	var body host.PartList

	if msg.Text != "" {
		body = append(body, host.Part{
			host.KeyContentType: host.ContentTypeText,
			host.KeyContent:     msg.Text,
		})
	}

	if msg.Type == telegram.MessageText {
		return body
	}

	handled := true
	switch msg.Type {
	case telegram.MessageGeo:
		body = append(body, host.Part{
			host.KeyContentType: host.ContentTypeGeoJSON,
			host.KeyAlternative: host.AltMultimedia,
			host.KeyContent:     geoPointJSON(media.Latitude, media.Longitude),
		})
	case telegram.MessageContact:
		data, err := contactVCard(media)
		if err != nil {
			c.log.Warn().Uint32("message", msg.ID).Err(err).Msg("contact vcard suppressed")
			break
		}
		body = append(body, host.Part{
			host.KeyContentType: host.ContentTypeVCard,
			host.KeyAlternative: host.AltMultimedia,
			host.KeyContent:     data,
		})
	case telegram.MessageWebPage:
		body = append(body, host.Part{
			host.KeyInterface:   host.IfaceWebPage,
			host.KeyAlternative: host.AltMultimedia,
			host.KeyTitle:       media.Title,
			host.KeyURL:         media.URL,
			host.KeyDisplayURL:  media.DisplayURL,
			host.KeySiteName:    media.SiteName,
			host.KeyDescription: media.Description,
		})
	default:
		handled = false
	}

	if len(media.CachedPhoto) > 0 {
		body = append(body, host.Part{
			host.KeyContentType: host.ContentTypeJPEG,
			host.KeyAlternative: host.AltMultimedia,
			host.KeyThumbnail:   true,
			host.KeyContent:     media.CachedPhoto,
		})
	}

	fallback := host.Part{
		host.KeyContentType: host.ContentTypeText,
		host.KeyAlternative: host.AltMultimedia,
	}
	if media.Alt != "" {
		fallback[host.KeyContent] = media.Alt
	} else {
		text := notHandledText
		if handled {
			text = notSupportedText
		}
		if len(body) > 0 {
			// Keep the notice below whatever content already rendered.
			text = "\n" + text
		}
		fallback[host.KeyContent] = text
	}
	body = append(body, fallback)

	if media.Caption != "" {
		body = append(body, host.Part{
			host.KeyContentType: host.ContentTypeText,
			host.KeyAlternative: host.AltCaption,
			host.KeyContent:     "\n" + media.Caption,
		})
	}

	return body
}

// geoPointJSON renders a GeoJSON-style point payload. Coordinates keep an
// explicit decimal point so whole-number values stay recognizable as floats.
func geoPointJSON(lat, lon float64) string {
	return fmt.Sprintf(`{"type":"point","coordinates":[%s, %s]}`, formatCoord(lat), formatCoord(lon))
}

func formatCoord(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// contactVCard builds a minimal vCard 4.0 from contact media. A contact
// without any usable name is unrenderable.
func contactVCard(media telegram.MediaInfo) (string, error) {
	name := strings.Join(strings.Fields(media.FirstName+" "+media.LastName), " ")
	if name == "" {
		return "", fmt.Errorf("%w: contact has no name", ErrUnrenderableContent)
	}
	lines := []string{
		"BEGIN:VCARD",
		"VERSION:4.0",
		"FN:" + name,
	}
	if media.Phone != "" {
		lines = append(lines, "TEL;PREF:tel+"+strings.TrimPrefix(media.Phone, "+"))
	}
	// N:Family Names;Given Names;Additional Names;Prefixes;Suffixes
	lines = append(lines,
		"N:"+media.LastName+";"+media.FirstName+";;;",
		"END:VCARD",
	)
	return strings.Join(lines, "\r\n"), nil
}
