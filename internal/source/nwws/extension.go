package nwws

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"gosrc.io/xmpp/stanza"
)

// OIMessage is the nwws-oi <x> extension carried on room messages. The
// chardata holds the raw product text; the attributes repeat the WMO heading
// fields the channel has already split out.
//
// See https://www.weather.gov/nwws/configuration for the message format.
type OIMessage struct {
	stanza.MsgExtension
	XMLName xml.Name `xml:"nwws-oi x"`
	Text    string   `xml:",chardata"`
	// Four character issuing center, e.g. KCLE.
	Cccc string `xml:"cccc,attr"`
	// Six character WMO product designator, e.g. WUUS53.
	Ttaaii string `xml:"ttaaii,attr"`
	// Issuance time, ISO 8601 UTC.
	Issue string `xml:"issue,attr"`
	// AWIPS ID (AFOS PIL), e.g. SVRCLE.
	AwipsID string `xml:"awipsid,attr"`
	// The id attribute is "<ingest process>.<sequence number>". The sequence
	// increments per product, so a jump means the stream dropped products.
	ID string `xml:"id,attr"`
}

// SequenceID splits the id attribute into the upstream ingest process name
// and the per-process product sequence number.
func (m *OIMessage) SequenceID() (process string, seq int, err error) {
	before, after, ok := strings.Cut(m.ID, ".")
	if !ok {
		return "", 0, fmt.Errorf("malformed nwws-oi id %q", m.ID)
	}
	seq, err = strconv.Atoi(after)
	if err != nil {
		return "", 0, fmt.Errorf("malformed nwws-oi id %q: %w", m.ID, err)
	}
	return before, seq, nil
}

func init() {
	stanza.TypeRegistry.MapExtension(stanza.PKTMessage, xml.Name{Space: "nwws-oi", Local: "x"}, OIMessage{})
}
