package main

import (
	"net/url"
	"strings"

	"github.com/matheus3301/meshchat/internal/protocol"
	qrcode "github.com/skip2/go-qrcode"
)

// shareURI is the text a peer scans to learn this device's identity.
func shareURI(p *protocol.Profile) string {
	q := url.Values{}
	q.Set("name", p.Name)
	return "meshchat://peer/" + url.PathEscape(p.ID) + "?" + q.Encode()
}

// renderQR draws content with half-block characters, two bitmap rows per
// terminal line.
func renderQR(content string) (string, error) {
	qr, err := qrcode.New(content, qrcode.Low)
	if err != nil {
		return "", err
	}

	bitmap := qr.Bitmap()
	var sb strings.Builder
	for y := 0; y < len(bitmap); y += 2 {
		sb.WriteString("  ")
		for x := range bitmap[y] {
			top := bitmap[y][x]
			bot := y+1 < len(bitmap) && bitmap[y+1][x]
			switch {
			case top && bot:
				sb.WriteRune('█')
			case top:
				sb.WriteRune('▀')
			case bot:
				sb.WriteRune('▄')
			default:
				sb.WriteRune(' ')
			}
		}
		sb.WriteRune('\n')
	}
	return sb.String(), nil
}
