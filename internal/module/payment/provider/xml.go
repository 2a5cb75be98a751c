package provider

import (
	"bytes"
	"encoding/xml"
	"fmt"

	"github.com/go-pay/gopay"
)

// encodeXML renders a BodyMap as the flat <xml> document the WeChat V2 API
// speaks: one root element with scalar children.
func encodeXML(bm gopay.BodyMap) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := xml.NewEncoder(buf).Encode(bm); err != nil {
		return nil, fmt.Errorf("%w: encode xml: %v", ErrUnexpected, err)
	}
	return buf.Bytes(), nil
}

// decodeXML parses a flat <xml> document into a BodyMap. CDATA-wrapped and
// plain text children are equivalent.
func decodeXML(data []byte) (gopay.BodyMap, error) {
	bm := make(gopay.BodyMap)
	if err := xml.Unmarshal(data, &bm); err != nil {
		return nil, fmt.Errorf("%w: decode xml: %v", ErrChannelAPI, err)
	}
	return bm, nil
}
